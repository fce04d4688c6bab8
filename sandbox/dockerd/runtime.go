// Package dockerd implements sandbox.ControlPlane against the Docker
// Engine HTTP API over a unix socket or TCP address.
package dockerd

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/containerd/errdefs"

	"pkt.systems/pslog"
	"pkt.systems/sandrun/sandbox"
)

// Config configures the Docker control plane.
type Config struct {
	Address string
}

// Runtime implements sandbox.ControlPlane using the Docker Engine API.
type Runtime struct {
	client *client
}

// New constructs a Docker control plane, trying fallback socket addresses
// if needed.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	log := pslog.Ctx(ctx).With("runtime", "docker")
	addresses := candidateAddresses(cfg.Address)
	var lastErr error
	for _, addr := range addresses {
		log.Debug("docker connect attempt", "address", addr)
		cl, err := newClient(addr)
		if err != nil {
			log.Warn("docker connect failed", "address", addr, "err", err)
			lastErr = err
			continue
		}
		if err := cl.ping(ctx); err != nil {
			log.Warn("docker ping failed", "address", addr, "err", err)
			lastErr = err
			continue
		}
		log.Info("docker runtime ready", "address", addr)
		return &Runtime{client: cl}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("docker address not configured")
	}
	log.Warn("docker runtime unavailable", "err", lastErr)
	return nil, lastErr
}

// Close releases any resources held by the runtime.
func (r *Runtime) Close() error { return nil }

// InspectImage resolves image metadata by name or content id.
func (r *Runtime) InspectImage(ctx context.Context, ref string) (sandbox.ImageInfo, error) {
	log := r.logger(ctx).With("image", ref)
	log.Debug("docker image inspect")
	res, err := r.client.do(ctx, "GET", fmt.Sprintf("/images/%s/json", escapeImagePath(ref)), nil, nil, "")
	if err != nil {
		log.Warn("docker image inspect failed", "err", err)
		return sandbox.ImageInfo{}, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == 404 {
		log.Debug("docker image missing")
		return sandbox.ImageInfo{}, fmt.Errorf("image %s: %w", ref, errdefs.ErrNotFound)
	}
	if res.StatusCode >= 300 {
		log.Warn("docker image inspect failed", "status", res.StatusCode)
		return sandbox.ImageInfo{}, readAPIError("image inspect", ref, res)
	}
	var inspect inspectImage
	if err := json.NewDecoder(res.Body).Decode(&inspect); err != nil {
		return sandbox.ImageInfo{}, err
	}
	return sandbox.ImageInfo{ID: inspect.ID, RepoTags: inspect.RepoTags}, nil
}

// CreateContainer creates a container without starting it.
func (r *Runtime) CreateContainer(ctx context.Context, spec sandbox.ContainerSpec) (sandbox.CreatedContainer, error) {
	log := r.logger(ctx).With("image", spec.Image)
	log.Info("docker create start")
	volumes := map[string]struct{}{}
	for _, v := range spec.Volumes {
		volumes[v] = struct{}{}
	}
	req := map[string]any{
		"Image":           spec.Image,
		"Entrypoint":      spec.Entrypoint,
		"WorkingDir":      spec.WorkingDir,
		"NetworkDisabled": spec.NetworkDisabled,
	}
	if len(volumes) > 0 {
		req["Volumes"] = volumes
	}
	if len(spec.Labels) > 0 {
		req["Labels"] = spec.Labels
	}
	hostConfig := map[string]any{}
	if binds := buildBinds(spec.Mounts); len(binds) > 0 {
		hostConfig["Binds"] = binds
	}
	if spec.NetworkDisabled {
		hostConfig["NetworkMode"] = "none"
	}
	if len(hostConfig) > 0 {
		req["HostConfig"] = hostConfig
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return sandbox.CreatedContainer{}, err
	}
	res, err := r.client.do(ctx, "POST", "/containers/create", nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		log.Warn("docker create failed", "err", err)
		return sandbox.CreatedContainer{}, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == 404 {
		log.Warn("docker create failed", "reason", "image not found")
		return sandbox.CreatedContainer{}, fmt.Errorf("image %s: %w", spec.Image, errdefs.ErrNotFound)
	}
	if res.StatusCode >= 300 {
		log.Warn("docker create failed", "status", res.StatusCode)
		return sandbox.CreatedContainer{}, readAPIError("create", spec.Image, res)
	}
	var created createResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		return sandbox.CreatedContainer{}, err
	}
	log.Info("docker create ok", "id", created.ID)
	return sandbox.CreatedContainer{ID: created.ID, Warnings: created.Warnings}, nil
}

// StartContainer starts a created container.
func (r *Runtime) StartContainer(ctx context.Context, id string) error {
	log := r.logger(ctx).With("container", id)
	log.Info("docker start")
	res, err := r.client.do(ctx, "POST", fmt.Sprintf("/containers/%s/start", url.PathEscape(id)), nil, nil, "")
	if err != nil {
		log.Warn("docker start failed", "err", err)
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == 304 {
		log.Info("docker start skipped", "reason", "already started")
		return nil
	}
	if res.StatusCode == 404 {
		return fmt.Errorf("container %s: %w", id, errdefs.ErrNotFound)
	}
	if res.StatusCode >= 300 {
		log.Warn("docker start failed", "status", res.StatusCode)
		return readAPIError("start", id, res)
	}
	log.Info("docker start ok")
	return nil
}

// InspectContainer returns the authoritative container status.
func (r *Runtime) InspectContainer(ctx context.Context, id string) (sandbox.ContainerInfo, error) {
	res, err := r.client.do(ctx, "GET", fmt.Sprintf("/containers/%s/json", url.PathEscape(id)), nil, nil, "")
	if err != nil {
		return sandbox.ContainerInfo{}, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == 404 {
		return sandbox.ContainerInfo{}, fmt.Errorf("container %s: %w", id, errdefs.ErrNotFound)
	}
	if res.StatusCode >= 300 {
		return sandbox.ContainerInfo{}, readAPIError("inspect", id, res)
	}
	var inspect inspectContainer
	if err := json.NewDecoder(res.Body).Decode(&inspect); err != nil {
		return sandbox.ContainerInfo{}, err
	}
	return sandbox.ContainerInfo{
		ID:       inspect.ID,
		Status:   inspect.State.Status,
		Running:  inspect.State.Running,
		ExitCode: inspect.State.ExitCode,
	}, nil
}

// KillContainer forcibly terminates a running container.
func (r *Runtime) KillContainer(ctx context.Context, id string) error {
	log := r.logger(ctx).With("container", id)
	log.Info("docker kill")
	query := url.Values{}
	query.Set("signal", "SIGKILL")
	res, err := r.client.do(ctx, "POST", fmt.Sprintf("/containers/%s/kill", url.PathEscape(id)), query, nil, "")
	if err != nil {
		log.Warn("docker kill failed", "err", err)
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == 404 {
		return fmt.Errorf("container %s: %w", id, errdefs.ErrNotFound)
	}
	if res.StatusCode >= 300 {
		log.Warn("docker kill failed", "status", res.StatusCode)
		return readAPIError("kill", id, res)
	}
	log.Info("docker kill ok")
	return nil
}

// RemoveContainer removes a container.
func (r *Runtime) RemoveContainer(ctx context.Context, id string, force bool) error {
	log := r.logger(ctx).With("container", id)
	log.Info("docker remove start")
	query := url.Values{}
	if force {
		query.Set("force", "true")
	}
	res, err := r.client.do(ctx, "DELETE", fmt.Sprintf("/containers/%s", url.PathEscape(id)), query, nil, "")
	if err != nil {
		log.Warn("docker remove failed", "err", err)
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == 404 {
		return fmt.Errorf("container %s: %w", id, errdefs.ErrNotFound)
	}
	if res.StatusCode >= 300 {
		log.Warn("docker remove failed", "status", res.StatusCode)
		return readAPIError("remove", id, res)
	}
	log.Info("docker remove ok")
	return nil
}

// ContainerLogs returns the combined stdout and stderr text.
func (r *Runtime) ContainerLogs(ctx context.Context, id string) (string, error) {
	query := url.Values{}
	query.Set("stdout", "1")
	query.Set("stderr", "1")
	res, err := r.client.do(ctx, "GET", fmt.Sprintf("/containers/%s/logs", url.PathEscape(id)), query, nil, "")
	if err != nil {
		return "", err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == 404 {
		return "", fmt.Errorf("container %s: %w", id, errdefs.ErrNotFound)
	}
	if res.StatusCode >= 300 {
		return "", readAPIError("logs", id, res)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	var combined bytes.Buffer
	// Both streams land in one buffer in arrival order.
	if err := copyDockerStream(bytes.NewReader(data), &combined, &combined); err != nil {
		// A TTY container streams raw text without multiplex headers.
		return string(data), nil
	}
	return combined.String(), nil
}

// WaitContainer blocks until the container stops, returning its exit code.
// A lapsed timeout is reported as context.DeadlineExceeded.
func (r *Runtime) WaitContainer(ctx context.Context, id string, timeout time.Duration) (int, error) {
	log := r.logger(ctx).With("container", id)
	log.Debug("docker wait start", "timeout_ms", timeout.Milliseconds())
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res, err := r.client.do(waitCtx, "POST", fmt.Sprintf("/containers/%s/wait", url.PathEscape(id)), nil, nil, "")
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			log.Debug("docker wait timeout")
			return -1, context.DeadlineExceeded
		}
		log.Warn("docker wait failed", "err", err)
		return -1, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode == 404 {
		return -1, fmt.Errorf("container %s: %w", id, errdefs.ErrNotFound)
	}
	if res.StatusCode >= 300 {
		log.Warn("docker wait failed", "status", res.StatusCode)
		return -1, readAPIError("wait", id, res)
	}
	var wait waitResponse
	if err := json.NewDecoder(res.Body).Decode(&wait); err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			log.Debug("docker wait timeout")
			return -1, context.DeadlineExceeded
		}
		return -1, err
	}
	if wait.Error.Message != "" {
		log.Warn("docker wait failed", "err", wait.Error.Message)
		return -1, fmt.Errorf("docker wait: %s", wait.Error.Message)
	}
	log.Debug("docker wait ok", "exit_code", wait.StatusCode)
	return wait.StatusCode, nil
}

func (r *Runtime) logger(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx).With("runtime", "docker")
}

func buildBinds(mounts []sandbox.Mount) []string {
	if len(mounts) == 0 {
		return nil
	}
	out := make([]string, 0, len(mounts))
	for _, m := range mounts {
		if m.Source == "" || m.Target == "" {
			continue
		}
		entry := m.Source + ":" + m.Target
		if m.ReadOnly {
			entry += ":ro"
		} else {
			entry += ":rw"
		}
		out = append(out, entry)
	}
	return out
}

func copyDockerStream(r io.Reader, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		if header[0] > 2 || header[1] != 0 || header[2] != 0 || header[3] != 0 {
			return errors.New("not a multiplexed stream: " + strconv.Itoa(int(header[0])))
		}
		size := binary.BigEndian.Uint32(header[4:8])
		if size == 0 {
			continue
		}
		var dst io.Writer
		switch header[0] {
		case 2:
			dst = stderr
		default:
			dst = stdout
		}
		if _, err := io.CopyN(dst, r, int64(size)); err != nil {
			return err
		}
	}
}
