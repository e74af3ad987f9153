package clicker

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no target matched a descriptor before the timeout.
	ErrNotFound = errors.New("target not found")
	// ErrHook is returned when a BeforeClick or AfterClick hook failed.
	ErrHook = errors.New("hook failed")
	// ErrInvalidConfig is returned by New for unusable configuration.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrAlreadyRunning is returned by Run when a run is in progress.
	ErrAlreadyRunning = errors.New("activator already running")
)

// NotFoundError reports a locate that timed out
type NotFoundError struct {
	Descriptor Descriptor
	Timeout    time.Duration
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for %q", e.Timeout, e.Descriptor)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// HookError wraps a failure raised by a user hook
type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string { return fmt.Sprintf("%s hook: %v", e.Hook, e.Err) }

func (e *HookError) Unwrap() error { return e.Err }

func (e *HookError) Is(target error) bool { return target == ErrHook }

// StepError is the single failure surfaced for a step, carrying the active descriptor
type StepError struct {
	Descriptor Descriptor
	Err        error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %q: %v", e.Descriptor, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }
