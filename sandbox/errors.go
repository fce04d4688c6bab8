package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContainerID indicates the control plane reported a successful
	// container create without returning an identifier. This is an internal
	// consistency failure, not a recoverable condition.
	ErrNoContainerID = errors.New("container create returned no id")
	// ErrJobPrepared indicates Prepare was called on a job that already
	// owns a container.
	ErrJobPrepared = errors.New("job is already prepared")
)

// ValidationError reports an image reference that does not match what the
// control plane knows about the image.
type ValidationError struct {
	Repository string
	Tag        string
	ID         string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "image validation failed"
	}
	ref := e.Repository + ":" + e.Tag
	if e.ID != "" {
		return fmt.Sprintf("image %s (id %s): %s", ref, e.ID, e.Reason)
	}
	return fmt.Sprintf("image %s: %s", ref, e.Reason)
}

// APIError wraps a failure communicating with or executing against the
// container control plane.
type APIError struct {
	Op  string
	Ref string
	Err error
}

func (e *APIError) Error() string {
	if e == nil {
		return "control plane error"
	}
	if e.Ref != "" {
		return fmt.Sprintf("control plane %s %s: %v", e.Op, e.Ref, e.Err)
	}
	return fmt.Sprintf("control plane %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
