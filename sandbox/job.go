package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"pkt.systems/pslog"
)

const (
	// TaskScript is the script file name inside the task directory.
	TaskScript = "job.py"
	// ParamsFile is the params file name inside the task directory.
	ParamsFile = "params.py"
	// ResourcesDir is the read-only resources mount point in the container.
	ResourcesDir = "/golem/resources/"
	// OutputDir is the read-write output mount point in the container.
	OutputDir = "/golem/output/"

	// NoExitCode is returned by Wait when no exit code is applicable:
	// the job is not in a waitable state, or the timeout lapsed before the
	// container reached a terminal state.
	NoExitCode = -1

	interpreterPath = "/usr/bin/python"
)

// JobSpec fully describes one job before any container exists.
type JobSpec struct {
	// Image is the validated image the job runs in.
	Image *ImageRef
	// Script is the job script source.
	Script string
	// Params is injected into the script via the params codec.
	Params map[string]any
	// WorkDir is the task subdirectory, relative to ResourceDir.
	WorkDir string
	// ResourceDir is the host input root, mounted read-only.
	ResourceDir string
	// OutputDir is the host output root, mounted read-write.
	OutputDir string
	// Codec overrides the parameter serialization; default PythonParams.
	Codec ParamsCodec
}

// Job owns one container's full lifecycle. It is not safe for concurrent
// use; callers running many jobs drive each job from its own goroutine
// with its own Job.
type Job struct {
	cp      ControlPlane
	spec    JobSpec
	codec   ParamsCodec
	script  string
	taskDir string

	created     *CreatedContainer
	containerID string
	state       State
}

// NewJob builds a job driver around an injected control plane. No container
// exists until Prepare is called.
func NewJob(cp ControlPlane, spec JobSpec) (*Job, error) {
	if cp == nil {
		return nil, errors.New("control plane is required")
	}
	if spec.Image == nil {
		return nil, errors.New("job image is required")
	}
	if strings.TrimSpace(spec.WorkDir) == "" {
		return nil, errors.New("job work dir is required")
	}
	if strings.TrimSpace(spec.ResourceDir) == "" {
		return nil, errors.New("job resource dir is required")
	}
	if strings.TrimSpace(spec.OutputDir) == "" {
		return nil, errors.New("job output dir is required")
	}
	codec := spec.Codec
	if codec == nil {
		codec = PythonParams{}
	}
	return &Job{
		cp:      cp,
		spec:    spec,
		codec:   codec,
		script:  spec.Script,
		taskDir: filepath.Join(spec.ResourceDir, spec.WorkDir),
		state:   StateNew,
	}, nil
}

// TaskDir returns the host directory the script and params files are
// written into.
func (j *Job) TaskDir() string { return j.taskDir }

// ContainerID returns the runtime-assigned container id, or "" before
// Prepare and after Cleanup.
func (j *Job) ContainerID() string { return j.containerID }

// Prepare writes the job inputs into the task directory and creates the
// container. The steps are not transactional: a failure after the files
// are written leaves them in place, and the caller's cleanup guarantee is
// still expected to run since a container may have been created.
func (j *Job) Prepare(ctx context.Context) error {
	if j.state != StateNew || j.created != nil {
		return fmt.Errorf("prepare: %w (state %s)", ErrJobPrepared, j.state)
	}
	log := pslog.Ctx(ctx).With("image", j.spec.Image.FullName(), "work_dir", j.spec.WorkDir)
	log.Info("job prepare start")

	if err := os.MkdirAll(j.taskDir, 0o755); err != nil {
		log.Warn("job prepare failed", "err", err)
		return fmt.Errorf("task dir: %w", err)
	}
	if len(j.spec.Params) > 0 {
		encoded, err := j.codec.Encode(j.spec.Params)
		if err != nil {
			log.Warn("job prepare failed", "err", err)
			return fmt.Errorf("encode params: %w", err)
		}
		if err := os.WriteFile(j.paramsPath(), encoded, 0o644); err != nil {
			log.Warn("job prepare failed", "err", err)
			return fmt.Errorf("write params: %w", err)
		}
		j.script = j.codec.Header() + j.script
	}
	if err := os.WriteFile(j.scriptPath(), []byte(j.script), 0o644); err != nil {
		log.Warn("job prepare failed", "err", err)
		return fmt.Errorf("write script: %w", err)
	}

	created, err := j.cp.CreateContainer(ctx, ContainerSpec{
		Image:      j.spec.Image.FullName(),
		Entrypoint: []string{interpreterPath, TaskScript},
		WorkingDir: path.Join(ResourcesDir, j.spec.WorkDir),
		Volumes:    []string{ResourcesDir, OutputDir},
		Mounts: []Mount{
			{Source: j.spec.ResourceDir, Target: ResourcesDir, ReadOnly: true},
			{Source: j.spec.OutputDir, Target: OutputDir},
		},
		NetworkDisabled: true,
	})
	if err != nil {
		log.Warn("job prepare failed", "err", err)
		return err
	}
	if created.ID == "" {
		log.Warn("job prepare failed", "err", ErrNoContainerID)
		return ErrNoContainerID
	}
	j.created = &created
	j.containerID = created.ID
	j.state = StateCreated
	log.Info("job prepare ok", "container", j.containerID)
	return nil
}

// Start starts the container if its reconciled status is Created and
// returns the freshly queried container info. Any other status is a no-op
// reporting started=false.
func (j *Job) Start(ctx context.Context) (ContainerInfo, bool, error) {
	status, err := j.Status(ctx)
	if err != nil {
		return ContainerInfo{}, false, err
	}
	if status != StateCreated {
		return ContainerInfo{}, false, nil
	}
	log := pslog.Ctx(ctx).With("container", j.containerID)
	log.Info("job start")
	if err := j.cp.StartContainer(ctx, j.containerID); err != nil {
		log.Warn("job start failed", "err", err)
		return ContainerInfo{}, false, err
	}
	info, err := j.cp.InspectContainer(ctx, j.containerID)
	if err != nil {
		log.Warn("job start inspect failed", "err", err)
		return ContainerInfo{}, false, err
	}
	if state, err := ParseState(info.Status); err == nil {
		j.state = state
	}
	log.Info("job start ok", "status", info.Status)
	return info, true, nil
}

// Wait blocks until the container reaches a terminal state or the timeout
// lapses, and returns the exit code. It returns NoExitCode without error
// when the job is not Running or Exited, and when the timeout lapses
// before the container finishes; a lapsed timeout is not a failure.
// A timeout of zero or less blocks indefinitely.
func (j *Job) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	status, err := j.Status(ctx)
	if err != nil {
		return NoExitCode, err
	}
	if status != StateRunning && status != StateExited {
		return NoExitCode, nil
	}
	code, err := j.cp.WaitContainer(ctx, j.containerID, timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NoExitCode, nil
		}
		return NoExitCode, err
	}
	return code, nil
}

// Logs returns the combined stdout and stderr text captured for the
// container, or "" when no container exists.
func (j *Job) Logs(ctx context.Context) (string, error) {
	if j.created == nil {
		return "", nil
	}
	return j.cp.ContainerLogs(ctx, j.containerID)
}

// Status returns the control plane's authoritative status while a
// container exists; before creation and after removal it returns the
// cached state, since there is nothing to query.
func (j *Job) Status(ctx context.Context) (State, error) {
	if j.created == nil {
		return j.state, nil
	}
	info, err := j.cp.InspectContainer(ctx, j.containerID)
	if err != nil {
		return j.state, err
	}
	state, err := ParseState(info.Status)
	if err != nil {
		return j.state, err
	}
	j.state = state
	return state, nil
}

// Cleanup tears the container down: a running container is killed first,
// then the container is force-removed and the handle cleared. With no
// container it is a no-op, so calling it twice is safe. A container the
// control plane no longer knows counts as already removed; other kill or
// remove failures propagate, since the caller must know teardown did not
// complete.
func (j *Job) Cleanup(ctx context.Context) error {
	if j.created == nil {
		return nil
	}
	log := pslog.Ctx(ctx).With("container", j.containerID)
	log.Info("job cleanup start")

	status, err := j.Status(ctx)
	if err != nil && !errdefs.IsNotFound(err) {
		log.Warn("job cleanup status failed", "err", err)
		return err
	}
	gone := errdefs.IsNotFound(err)
	if !gone && status == StateRunning {
		if err := j.cp.KillContainer(ctx, j.containerID); err != nil && !errdefs.IsNotFound(err) {
			log.Warn("job cleanup kill failed", "err", err)
			return err
		}
		j.state = StateKilled
		log.Info("job killed")
	}
	if !gone {
		if err := j.cp.RemoveContainer(ctx, j.containerID, true); err != nil && !errdefs.IsNotFound(err) {
			log.Warn("job cleanup remove failed", "err", err)
			return err
		}
	}
	j.created = nil
	j.containerID = ""
	j.state = StateRemoved
	log.Info("job cleanup ok")
	return nil
}

// Run is the scoped form of the job lifecycle: Prepare, then fn, with
// Cleanup guaranteed on every exit path including a panic in fn. A cleanup
// failure is reported when fn itself succeeded.
func (j *Job) Run(ctx context.Context, fn func(ctx context.Context, job *Job) error) (err error) {
	if err := j.Prepare(ctx); err != nil {
		// A container may exist despite the failure; tear it down.
		if cleanupErr := j.Cleanup(ctx); cleanupErr != nil {
			pslog.Ctx(ctx).Warn("job cleanup after failed prepare", "err", cleanupErr)
		}
		return err
	}
	defer func() {
		cleanupErr := j.Cleanup(ctx)
		if err == nil {
			err = cleanupErr
		}
	}()
	return fn(ctx, j)
}

func (j *Job) scriptPath() string {
	return filepath.Join(j.taskDir, TaskScript)
}

func (j *Job) paramsPath() string {
	return filepath.Join(j.taskDir, j.codec.Filename())
}
