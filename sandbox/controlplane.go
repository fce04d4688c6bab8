package sandbox

import (
	"context"
	"time"
)

// ControlPlane is the container runtime surface the sandbox consumes. One
// long-lived implementation is shared by the image validator and every job
// driver; not-found conditions are reported with containerd/errdefs
// sentinels so callers can classify them without knowing the backend.
type ControlPlane interface {
	// InspectImage resolves image metadata by name or content id.
	InspectImage(ctx context.Context, ref string) (ImageInfo, error)
	// CreateContainer creates a container without starting it.
	CreateContainer(ctx context.Context, spec ContainerSpec) (CreatedContainer, error)
	// StartContainer starts a created container.
	StartContainer(ctx context.Context, id string) error
	// InspectContainer returns the authoritative container status.
	InspectContainer(ctx context.Context, id string) (ContainerInfo, error)
	// KillContainer forcibly terminates a running container.
	KillContainer(ctx context.Context, id string) error
	// RemoveContainer removes a container, force-killing it first if asked.
	RemoveContainer(ctx context.Context, id string, force bool) error
	// ContainerLogs returns the combined stdout and stderr text.
	ContainerLogs(ctx context.Context, id string) (string, error)
	// WaitContainer blocks until the container reaches a terminal state and
	// returns its exit code. A timeout of zero or less blocks indefinitely;
	// a lapsed timeout is reported as context.DeadlineExceeded.
	WaitContainer(ctx context.Context, id string, timeout time.Duration) (int, error)
}

// ImageInfo is the control plane's view of an image.
type ImageInfo struct {
	ID       string
	RepoTags []string
}

// Mount binds a host path into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerSpec describes the container to create for a job.
type ContainerSpec struct {
	Image           string
	Entrypoint      []string
	WorkingDir      string
	Volumes         []string
	Mounts          []Mount
	NetworkDisabled bool
	Labels          map[string]string
}

// CreatedContainer is the handle returned by CreateContainer.
type CreatedContainer struct {
	ID       string
	Warnings []string
}

// ContainerInfo is the control plane's view of a container.
type ContainerInfo struct {
	ID       string
	Status   string
	Running  bool
	ExitCode int
}
