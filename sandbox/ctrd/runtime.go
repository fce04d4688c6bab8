// Package ctrd implements sandbox.ControlPlane against a containerd
// daemon. Containers are created without any network wiring, so they get
// only a loopback interface, which satisfies the sandbox's
// network-disabled contract.
package ctrd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/namespaces"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"

	"pkt.systems/pslog"
	"pkt.systems/sandrun/sandbox"
)

const labelManaged = "sandrun.managed"

// Config configures the containerd control plane.
type Config struct {
	Address   string
	Namespace string
}

// Runtime implements sandbox.ControlPlane using containerd.
type Runtime struct {
	client    *containerd.Client
	namespace string
	logs      *captureSet
}

// New constructs a containerd control plane, trying fallback socket paths
// if needed.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	log := pslog.Ctx(ctx).With("runtime", "containerd")
	addresses := candidateAddresses(cfg.Address)
	var lastErr error
	for _, addr := range addresses {
		log.Debug("containerd connect attempt", "address", addr)
		client, err := containerd.New(addr)
		if err == nil {
			namespace := cfg.Namespace
			if namespace == "" {
				namespace = "sandrun"
			}
			log.Info("containerd runtime ready", "address", addr, "namespace", namespace)
			return &Runtime{
				client:    client,
				namespace: namespace,
				logs:      newCaptureSet(defaultLogBufferBytes),
			}, nil
		}
		log.Warn("containerd connect failed", "address", addr, "err", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("containerd address not configured")
	}
	log.Warn("containerd runtime unavailable", "err", lastErr)
	return nil, lastErr
}

// Close releases the containerd client.
func (r *Runtime) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// InspectImage resolves image metadata by name or target digest. The tag
// set is every image name in the namespace sharing the same target, which
// is the containerd equivalent of an image's repo tags.
func (r *Runtime) InspectImage(ctx context.Context, ref string) (sandbox.ImageInfo, error) {
	log := r.logger(ctx).With("image", ref)
	log.Debug("containerd image inspect")
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	list, err := r.client.ImageService().List(ctx)
	if err != nil {
		log.Warn("containerd image inspect failed", "err", err)
		return sandbox.ImageInfo{}, err
	}
	var target *ocispec.Descriptor
	for _, img := range list {
		if img.Name == ref {
			t := img.Target
			target = &t
			break
		}
	}
	if target == nil {
		for _, img := range list {
			if img.Target.Digest.String() == ref {
				t := img.Target
				target = &t
				break
			}
		}
	}
	if target == nil {
		log.Debug("containerd image missing")
		return sandbox.ImageInfo{}, fmt.Errorf("image %s: %w", ref, errdefs.ErrNotFound)
	}
	var tags []string
	for _, img := range list {
		if img.Target.Digest == target.Digest {
			tags = append(tags, img.Name)
		}
	}
	return sandbox.ImageInfo{ID: target.Digest.String(), RepoTags: tags}, nil
}

// CreateContainer creates a container and its snapshot without starting a
// task.
func (r *Runtime) CreateContainer(ctx context.Context, spec sandbox.ContainerSpec) (sandbox.CreatedContainer, error) {
	log := r.logger(ctx).With("image", spec.Image)
	log.Info("containerd create start")
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	image, err := r.client.GetImage(ctx, spec.Image)
	if err != nil {
		if errdefs.IsNotFound(err) {
			log.Warn("containerd create failed", "reason", "image not found")
			return sandbox.CreatedContainer{}, fmt.Errorf("image %s: %w", spec.Image, errdefs.ErrNotFound)
		}
		log.Warn("containerd create failed", "err", err)
		return sandbox.CreatedContainer{}, err
	}
	if err := image.Unpack(ctx, ""); err != nil && !errdefs.IsAlreadyExists(err) {
		log.Warn("containerd image unpack failed", "err", err)
		return sandbox.CreatedContainer{}, err
	}

	labels := map[string]string{labelManaged: "true"}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	id := fmt.Sprintf("sandrun-%d", time.Now().UnixNano())
	specOpts := []oci.SpecOpts{oci.WithImageConfig(image)}
	if len(spec.Entrypoint) > 0 {
		specOpts = append(specOpts, oci.WithProcessArgs(spec.Entrypoint...))
	}
	if spec.WorkingDir != "" {
		specOpts = append(specOpts, oci.WithProcessCwd(spec.WorkingDir))
	}
	if len(spec.Mounts) > 0 {
		specOpts = append(specOpts, oci.WithMounts(mapMounts(spec.Mounts)))
	}
	container, err := r.client.NewContainer(ctx, id,
		containerd.WithImage(image),
		containerd.WithContainerLabels(labels),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(specOpts...),
	)
	if err != nil {
		log.Warn("containerd create failed", "err", err)
		return sandbox.CreatedContainer{}, err
	}
	log.Info("containerd create ok", "id", container.ID())
	return sandbox.CreatedContainer{ID: container.ID()}, nil
}

// StartContainer creates the container task with log capture attached and
// starts it.
func (r *Runtime) StartContainer(ctx context.Context, id string) error {
	log := r.logger(ctx).With("container", id)
	log.Info("containerd start")
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		log.Warn("containerd start failed", "err", err)
		return wrapNotFound(err, id)
	}
	capture := r.logs.ensure(id)
	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, capture, capture)))
	if err != nil {
		log.Warn("containerd task create failed", "err", err)
		return err
	}
	if err := task.Start(ctx); err != nil {
		log.Warn("containerd task start failed", "err", err)
		_, _ = task.Delete(ctx)
		return err
	}
	log.Info("containerd start ok")
	return nil
}

// InspectContainer reports the container status in the Docker-style
// vocabulary the sandbox state mapping understands.
func (r *Runtime) InspectContainer(ctx context.Context, id string) (sandbox.ContainerInfo, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return sandbox.ContainerInfo{}, wrapNotFound(err, id)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			// No task yet: the container exists but was never started.
			return sandbox.ContainerInfo{ID: id, Status: "created"}, nil
		}
		return sandbox.ContainerInfo{}, err
	}
	status, err := task.Status(ctx)
	if err != nil {
		return sandbox.ContainerInfo{}, err
	}
	info := sandbox.ContainerInfo{ID: id}
	switch status.Status {
	case containerd.Created:
		info.Status = "created"
	case containerd.Running:
		info.Status = "running"
		info.Running = true
	case containerd.Stopped:
		info.Status = "exited"
		info.ExitCode = int(status.ExitStatus)
	case containerd.Paused, containerd.Pausing:
		info.Status = "paused"
	default:
		info.Status = string(status.Status)
	}
	return info, nil
}

// KillContainer sends SIGKILL to the container task and all its processes.
func (r *Runtime) KillContainer(ctx context.Context, id string) error {
	log := r.logger(ctx).With("container", id)
	log.Info("containerd kill")
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return wrapNotFound(err, id)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return wrapNotFound(err, id)
	}
	if err := task.Kill(ctx, unix.SIGKILL, containerd.WithKillAll); err != nil && !errdefs.IsNotFound(err) {
		log.Warn("containerd kill failed", "err", err)
		return err
	}
	log.Info("containerd kill ok")
	return nil
}

// RemoveContainer deletes the container task, the container and its
// snapshot. With force the task is killed first.
func (r *Runtime) RemoveContainer(ctx context.Context, id string, force bool) error {
	log := r.logger(ctx).With("container", id)
	log.Info("containerd remove start")
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		r.logs.clear(id)
		return wrapNotFound(err, id)
	}
	if task, err := container.Task(ctx, nil); err == nil {
		var deleteOpts []containerd.ProcessDeleteOpts
		if force {
			deleteOpts = append(deleteOpts, containerd.WithProcessKill)
		}
		if _, err := task.Delete(ctx, deleteOpts...); err != nil && !errdefs.IsNotFound(err) {
			log.Warn("containerd task delete failed", "err", err)
			return err
		}
	} else if !errdefs.IsNotFound(err) {
		return err
	}
	err = container.Delete(ctx, containerd.WithSnapshotCleanup)
	r.logs.clear(id)
	if err != nil && !errdefs.IsNotFound(err) {
		log.Warn("containerd remove failed", "err", err)
		return err
	}
	log.Info("containerd remove ok")
	return nil
}

// ContainerLogs returns the combined stdout and stderr captured since the
// task started.
func (r *Runtime) ContainerLogs(ctx context.Context, id string) (string, error) {
	capture := r.logs.get(id)
	if capture == nil {
		return "", nil
	}
	return string(capture.Snapshot()), nil
}

// WaitContainer blocks until the container task exits, returning its exit
// code. A lapsed timeout is reported as context.DeadlineExceeded.
func (r *Runtime) WaitContainer(ctx context.Context, id string, timeout time.Duration) (int, error) {
	log := r.logger(ctx).With("container", id)
	log.Debug("containerd wait start", "timeout_ms", timeout.Milliseconds())
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return -1, wrapNotFound(err, id)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return -1, wrapNotFound(err, id)
	}
	// Status first: a task that already stopped will not signal Wait again
	// in every containerd version, so don't block on one.
	if status, err := task.Status(ctx); err == nil && status.Status == containerd.Stopped {
		log.Debug("containerd wait ok", "exit_code", status.ExitStatus)
		return int(status.ExitStatus), nil
	}
	statusCh, err := task.Wait(ctx)
	if err != nil {
		log.Warn("containerd wait failed", "err", err)
		return -1, err
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case status := <-statusCh:
		code, _, err := status.Result()
		if err != nil {
			log.Warn("containerd wait failed", "err", err)
			return -1, err
		}
		log.Debug("containerd wait ok", "exit_code", code)
		return int(code), nil
	case <-timer:
		log.Debug("containerd wait timeout")
		return -1, context.DeadlineExceeded
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (r *Runtime) logger(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx).With("runtime", "containerd")
}

func wrapNotFound(err error, id string) error {
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("container %s: %w", id, errdefs.ErrNotFound)
	}
	return err
}

func mapMounts(mounts []sandbox.Mount) []specs.Mount {
	out := make([]specs.Mount, 0, len(mounts))
	for _, mount := range mounts {
		opts := []string{"rbind"}
		if mount.ReadOnly {
			opts = append(opts, "ro")
		} else {
			opts = append(opts, "rw")
		}
		out = append(out, specs.Mount{
			Type:        "bind",
			Source:      mount.Source,
			Destination: strings.TrimSuffix(mount.Target, "/"),
			Options:     opts,
		})
	}
	return out
}

func candidateAddresses(primary string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		addr = normalizeAddress(addr)
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	add(primary)

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		add(filepath.Join(runtimeDir, "containerd", "containerd.sock"))
	}
	add("/run/containerd/containerd.sock")
	return out
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	addr = strings.TrimPrefix(addr, "unix://")
	addr = strings.TrimPrefix(addr, "unix:")
	return addr
}
