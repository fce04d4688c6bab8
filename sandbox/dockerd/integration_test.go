package dockerd

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"pkt.systems/sandrun/sandbox"
)

// Requires a reachable Docker daemon with busybox pulled. Enable with
// SANDRUN_DOCKER_TEST=1 and optionally SANDRUN_DOCKER_IMAGE.
func TestContainerLifecycleAgainstDocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping docker integration test in short mode")
	}
	if os.Getenv("SANDRUN_DOCKER_TEST") == "" {
		t.Skip("SANDRUN_DOCKER_TEST not set")
	}
	image := os.Getenv("SANDRUN_DOCKER_IMAGE")
	if image == "" {
		image = "busybox:latest"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rt, err := New(ctx, Config{Address: os.Getenv("SANDRUN_DOCKER_ADDR")})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	defer func() { _ = rt.Close() }()

	if _, err := rt.InspectImage(ctx, image); err != nil {
		t.Skipf("image %s not present: %v", image, err)
	}

	created, err := rt.CreateContainer(ctx, sandbox.ContainerSpec{
		Image:           image,
		Entrypoint:      []string{"/bin/sh", "-c", "echo hello"},
		NetworkDisabled: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = rt.RemoveContainer(ctx, created.ID, true) }()

	if err := rt.StartContainer(ctx, created.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	code, err := rt.WaitContainer(ctx, created.ID, time.Minute)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	logs, err := rt.ContainerLogs(ctx, created.ID)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(logs, "hello") {
		t.Fatalf("logs %q", logs)
	}
	if err := rt.RemoveContainer(ctx, created.ID, true); err != nil {
		t.Fatalf("remove: %v", err)
	}
}
