package clicker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Descriptor is a symbolic reference to a location in the UI tree, e.g. a CSS selector
type Descriptor string

// Target is a live handle to an element matching a Descriptor.
// Its concrete type is owned by the Environment that produced it.
type Target interface{}

// Signal is a pointer notification dispatched on a target after the primary activation
type Signal string

const (
	SignalPressDown Signal = "mousedown"
	SignalRelease   Signal = "mouseup"
)

// RepeatForever makes the activator cycle until stopped
const RepeatForever = 0

// ClickEvent is the payload handed to the BeforeClick and AfterClick hooks
type ClickEvent struct {
	Target     Target
	Descriptor Descriptor
}

// HookFunc runs around the activation gesture. A returned error aborts the run.
type HookFunc func(ctx context.Context, ev ClickEvent) error

// Callbacks are optional extension points. A nil field is a no-op.
type Callbacks struct {
	BeforeClick HookFunc
	AfterClick  HookFunc
	OnError     func(err error, d Descriptor)
	OnStart     func()
	OnStop      func()
	OnLog       func(msg string)
}

// Config configures an Activator
type Config struct {
	// Descriptors are processed in order, one step each. Must not be empty.
	Descriptors []Descriptor

	// Delay is the pause after each step. Zero is allowed.
	// Default: 100ms.
	Delay time.Duration

	// Timeout bounds how long a target is waited for.
	// Default: 10s.
	Timeout time.Duration

	// Repeat is the number of full cycles before the run stops on its own.
	// RepeatForever (0) means unbounded.
	Repeat int

	Callbacks Callbacks

	// Logger receives every log event at debug level. The zero value discards.
	Logger zerolog.Logger
}

// DefaultConfig returns the defaults applied to a zero Config
func DefaultConfig() Config {
	return Config{
		Delay:   100 * time.Millisecond,
		Timeout: 10 * time.Second,
		Repeat:  RepeatForever,
	}
}

// State is a snapshot of an Activator's mutable state
type State struct {
	CurrentIndex    int
	CompletedCycles int
	Running         bool
	RunID           string
}
