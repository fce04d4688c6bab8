package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
)

// fakeControlPlane scripts control plane behavior for driver tests.
type fakeControlPlane struct {
	images          map[string]ImageInfo
	inspectImageErr error

	createID  string
	createErr error
	lastSpec  *ContainerSpec

	statuses   []string
	lastStatus string
	inspectErr error

	startCalls int
	startErr   error

	killCalls int
	killErr   error

	removeCalls int
	removeForce bool
	removeErr   error

	waitCalls   int
	waitCode    int
	waitErr     error
	waitTimeout time.Duration

	logText string
}

func (f *fakeControlPlane) InspectImage(_ context.Context, ref string) (ImageInfo, error) {
	if f.inspectImageErr != nil {
		return ImageInfo{}, f.inspectImageErr
	}
	info, ok := f.images[ref]
	if !ok {
		return ImageInfo{}, fmt.Errorf("image %s: %w", ref, errdefs.ErrNotFound)
	}
	return info, nil
}

func (f *fakeControlPlane) CreateContainer(_ context.Context, spec ContainerSpec) (CreatedContainer, error) {
	if f.createErr != nil {
		return CreatedContainer{}, f.createErr
	}
	captured := spec
	f.lastSpec = &captured
	return CreatedContainer{ID: f.createID}, nil
}

func (f *fakeControlPlane) StartContainer(_ context.Context, _ string) error {
	f.startCalls++
	return f.startErr
}

func (f *fakeControlPlane) InspectContainer(_ context.Context, id string) (ContainerInfo, error) {
	if f.inspectErr != nil {
		return ContainerInfo{}, f.inspectErr
	}
	status := f.lastStatus
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		f.statuses = f.statuses[1:]
		f.lastStatus = status
	}
	return ContainerInfo{ID: id, Status: status, Running: status == "running"}, nil
}

func (f *fakeControlPlane) KillContainer(_ context.Context, _ string) error {
	f.killCalls++
	return f.killErr
}

func (f *fakeControlPlane) RemoveContainer(_ context.Context, _ string, force bool) error {
	f.removeCalls++
	f.removeForce = force
	return f.removeErr
}

func (f *fakeControlPlane) ContainerLogs(_ context.Context, _ string) (string, error) {
	return f.logText, nil
}

func (f *fakeControlPlane) WaitContainer(_ context.Context, _ string, timeout time.Duration) (int, error) {
	f.waitCalls++
	f.waitTimeout = timeout
	if f.waitErr != nil {
		return -1, f.waitErr
	}
	return f.waitCode, nil
}
