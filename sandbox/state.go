package sandbox

import "fmt"

// State is the job lifecycle state. The happy path is
// New -> Created -> Running -> Exited -> Removed; Stopped and Killed cover
// containers halted from outside and forced termination during cleanup.
type State int

const (
	// StateNew means no container exists yet.
	StateNew State = iota
	// StateCreated means the container exists but has not started.
	StateCreated
	// StateRunning means the container process is running.
	StateRunning
	// StateExited means the container process finished on its own.
	StateExited
	// StateStopped means the container was halted without exiting.
	StateStopped
	// StateKilled means the container was forcibly terminated.
	StateKilled
	// StateRemoved means the container has been removed; terminal.
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateStopped:
		return "stopped"
	case StateKilled:
		return "killed"
	case StateRemoved:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState maps the control plane's raw status vocabulary onto State.
// This is the only place that changes if the runtime's vocabulary does.
func ParseState(raw string) (State, error) {
	switch raw {
	case "created":
		return StateCreated, nil
	case "running", "restarting":
		return StateRunning, nil
	case "exited", "dead":
		return StateExited, nil
	case "stopped", "paused", "pausing", "removing":
		return StateStopped, nil
	default:
		return StateNew, fmt.Errorf("unrecognized container status %q", raw)
	}
}
