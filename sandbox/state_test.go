package sandbox

import "testing"

func TestParseState(t *testing.T) {
	cases := map[string]State{
		"created":    StateCreated,
		"running":    StateRunning,
		"restarting": StateRunning,
		"exited":     StateExited,
		"dead":       StateExited,
		"stopped":    StateStopped,
		"paused":     StateStopped,
		"pausing":    StateStopped,
		"removing":   StateStopped,
	}
	for raw, want := range cases {
		got, err := ParseState(raw)
		if err != nil {
			t.Errorf("ParseState(%q): %v", raw, err)
			continue
		}
		if got != want {
			t.Errorf("ParseState(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestParseStateUnknown(t *testing.T) {
	for _, raw := range []string{"", "limbo", "RUNNING"} {
		if _, err := ParseState(raw); err == nil {
			t.Errorf("ParseState(%q): expected error", raw)
		}
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateNew:     "new",
		StateCreated: "created",
		StateRunning: "running",
		StateExited:  "exited",
		StateStopped: "stopped",
		StateKilled:  "killed",
		StateRemoved: "removed",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}
