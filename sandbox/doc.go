// Package sandbox drives a single ephemeral job through an isolated
// container: it validates the image the job may run against, writes the
// job's script and parameters into the task directory, creates the
// container with read-only resource and read-write output mounts and no
// network, and guarantees the container is killed and removed when the
// job's scope ends.
//
// The container runtime is reached through the ControlPlane interface; a
// single long-lived implementation (sandbox/dockerd or sandbox/ctrd) is
// injected into both the image validator and the job driver.
package sandbox
