package main

import (
	"context"
	"fmt"

	"pkt.systems/sandrun/internal/appconfig"
	"pkt.systems/sandrun/sandbox"
	"pkt.systems/sandrun/sandbox/ctrd"
	"pkt.systems/sandrun/sandbox/dockerd"
)

func selectControlPlane(ctx context.Context, cfg appconfig.Config) (sandbox.ControlPlane, func() error, error) {
	switch cfg.Runtime {
	case "docker":
		cp, err := dockerd.New(ctx, dockerd.Config{
			Address: cfg.Docker.Address,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("docker connection failed: %w", err)
		}
		return cp, cp.Close, nil
	case "containerd":
		cp, err := ctrd.New(ctx, ctrd.Config{
			Address:   cfg.Containerd.Address,
			Namespace: cfg.Containerd.Namespace,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("containerd connection failed (%s): %w", cfg.Containerd.Address, err)
		}
		return cp, cp.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported runtime %q", cfg.Runtime)
	}
}
