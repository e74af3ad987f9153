package clicker

import (
	"context"
	"time"
)

// Tree queries the observed UI tree
type Tree interface {
	// Find returns the first live target matching d, or false if none exists yet.
	Find(ctx context.Context, d Descriptor) (Target, bool, error)

	// Observe calls onChange after every structural change of the tree
	// until the returned subscription is cancelled.
	Observe(ctx context.Context, onChange func()) (Subscription, error)
}

// Subscription is an active structural-change observer
type Subscription interface {
	Cancel() error
}

// Pointer performs the activation gesture on a target
type Pointer interface {
	// Activate sends the primary activation (a click) to t.
	Activate(ctx context.Context, t Target) error

	// Notify dispatches a bubbling pointer signal on t.
	Notify(ctx context.Context, t Target, s Signal) error
}

// Frames yields to the host's rendering cadence between steps
type Frames interface {
	NextFrame(ctx context.Context) error
}

// FramesFunc adapts a function to Frames
type FramesFunc func(ctx context.Context) error

func (f FramesFunc) NextFrame(ctx context.Context) error { return f(ctx) }

// Immediate is a Frames that never waits
var Immediate Frames = FramesFunc(func(ctx context.Context) error { return ctx.Err() })

// Timer is a pending call scheduled on a Clock
type Timer interface {
	Stop() bool
}

// Clock schedules delayed calls
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// WallClock is the real-time Clock
var WallClock Clock = wallClock{}

// Environment bundles the capabilities the activator consumes.
// Tree and Pointer are required; Frames defaults to Immediate and Clock to WallClock.
type Environment struct {
	Tree    Tree
	Pointer Pointer
	Frames  Frames
	Clock   Clock
}

// sleep waits d on clock, returning early if ctx ends
func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	fired := make(chan struct{})
	t := clock.AfterFunc(d, func() { close(fired) })
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-fired:
		return nil
	}
}
