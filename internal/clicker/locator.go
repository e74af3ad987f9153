package clicker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Locator resolves descriptors to live targets, waiting for the tree to change
// when no match exists yet
type Locator struct {
	Tree  Tree
	Clock Clock
	// Timeout <= 0 means DefaultConfig().Timeout.
	Timeout time.Duration
	// Log receives the waiting, match and timeout events. May be nil.
	Log func(msg string)
}

// Locate returns the target matching d. If none exists it watches the tree
// until one appears, failing with *NotFoundError once Timeout elapses.
// The subscription and the timer are released on every return path.
func (l *Locator) Locate(ctx context.Context, d Descriptor) (Target, error) {
	clock := l.Clock
	if clock == nil {
		clock = WallClock
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	l.logf("Waiting for target: %s", d)

	changed := make(chan struct{}, 1)
	var disarmed atomic.Bool
	sub, err := l.Tree.Observe(ctx, func() {
		if disarmed.Load() {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("observing tree: %w", err)
	}

	expired := make(chan struct{})
	timer := clock.AfterFunc(timeout, func() { close(expired) })

	defer func() {
		disarmed.Store(true)
		timer.Stop()
		_ = sub.Cancel()
	}()

	target, ok, err := l.Tree.Find(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("finding %q: %w", d, err)
	}
	if ok {
		l.logf("Target found immediately: %s", d)
		return target, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-expired:
			l.logf("Timeout waiting for target: %s", d)
			return nil, &NotFoundError{Descriptor: d, Timeout: timeout}
		case <-changed:
			target, ok, err := l.Tree.Find(ctx, d)
			if err != nil {
				return nil, fmt.Errorf("finding %q: %w", d, err)
			}
			if ok {
				l.logf("Target found: %s", d)
				return target, nil
			}
		}
	}
}

func (l *Locator) logf(format string, args ...interface{}) {
	if l.Log != nil {
		l.Log(fmt.Sprintf(format, args...))
	}
}
