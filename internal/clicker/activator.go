// Package clicker cycles pointer activations through an ordered list of UI targets.
package clicker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Activator waits for each descriptor's target in turn, activates it, and
// repeats the sequence until Repeat cycles complete, Stop is called, or a step fails.
// Instances share nothing and are safe for concurrent use.
type Activator struct {
	cfg Config
	env Environment

	mu              sync.Mutex
	currentIndex    int
	completedCycles int
	running         bool
	epoch           uint64
	current         *run
}

// run is one Start..stop lifetime. A newer Start supersedes it through epoch.
type run struct {
	id     string
	epoch  uint64
	done   chan struct{}
	cancel context.CancelFunc
	err    error
	logger zerolog.Logger
	onLog  func(string)

	// prev is the run this one replaced; its loop must end before this one steps.
	prev *run
	// stale is set once a newer run exists; a stale run no longer reaches OnLog.
	stale atomic.Bool
}

func (r *run) log(msg string) {
	r.logger.Debug().Msg(msg)
	if r.onLog != nil && !r.stale.Load() {
		r.onLog(msg)
	}
}

func (r *run) logf(format string, args ...interface{}) {
	r.log(fmt.Sprintf(format, args...))
}

// New creates an Activator
func New(cfg Config, env Environment) (*Activator, error) {
	if len(cfg.Descriptors) == 0 {
		return nil, fmt.Errorf("at least one descriptor is required: %w", ErrInvalidConfig)
	}
	for i, d := range cfg.Descriptors {
		if d == "" {
			return nil, fmt.Errorf("descriptor %d is empty: %w", i, ErrInvalidConfig)
		}
	}
	if cfg.Delay < 0 {
		return nil, fmt.Errorf("delay must not be negative: %w", ErrInvalidConfig)
	}
	if cfg.Repeat < 0 {
		return nil, fmt.Errorf("repeat must not be negative: %w", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if env.Tree == nil || env.Pointer == nil {
		return nil, fmt.Errorf("environment needs a tree and a pointer: %w", ErrInvalidConfig)
	}
	if env.Frames == nil {
		env.Frames = Immediate
	}
	if env.Clock == nil {
		env.Clock = WallClock
	}

	cfg.Descriptors = append([]Descriptor(nil), cfg.Descriptors...)

	return &Activator{cfg: cfg, env: env}, nil
}

// Start begins a run in the background. It is a no-op while running.
// Cancelling ctx ends the run as Stop would.
func (a *Activator) Start(ctx context.Context) {
	ctx, r := a.begin(ctx)
	if r == nil {
		return
	}
	go func() { _ = a.loop(ctx, r) }()
}

// Run starts a run and blocks until it ends. It returns the *StepError that
// aborted the run, or nil when it completed or was stopped.
func (a *Activator) Run(ctx context.Context) error {
	ctx, r := a.begin(ctx)
	if r == nil {
		return ErrAlreadyRunning
	}
	return a.loop(ctx, r)
}

// Stop ends the current run. A step already in flight is not interrupted; it
// exits at its next checkpoint without further side effects.
func (a *Activator) Stop() {
	a.mu.Lock()
	r := a.current
	a.mu.Unlock()
	if r != nil {
		a.stopRun(r)
	}
}

// Done returns a channel closed when the latest run has ended
func (a *Activator) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.current.done
}

// Wait blocks until the latest run ends and returns its error
func (a *Activator) Wait(ctx context.Context) error {
	a.mu.Lock()
	r := a.current
	a.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return r.err
	}
}

// State returns a snapshot of the activator state
func (a *Activator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := State{
		CurrentIndex:    a.currentIndex,
		CompletedCycles: a.completedCycles,
		Running:         a.running,
	}
	if a.current != nil {
		s.RunID = a.current.id
	}
	return s
}

// begin claims the activator for a new run. A previous run whose step is
// still in flight is marked stale and its context cancelled; the new loop
// waits for it to end so two steps never overlap.
func (a *Activator) begin(ctx context.Context) (context.Context, *run) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ctx, nil
	}
	a.epoch++
	ctx, cancel := context.WithCancel(ctx)
	r := &run{
		id:     uuid.NewString(),
		epoch:  a.epoch,
		done:   make(chan struct{}),
		cancel: cancel,
		onLog:  a.cfg.Callbacks.OnLog,
		prev:   a.current,
	}
	r.logger = a.cfg.Logger.With().Str("run", r.id).Logger()
	if r.prev != nil {
		r.prev.stale.Store(true)
		r.prev.cancel()
	}
	a.current = r
	a.completedCycles = 0
	a.running = true
	a.mu.Unlock()

	r.log("Starting activator.")
	if a.cfg.Callbacks.OnStart != nil {
		a.cfg.Callbacks.OnStart()
	}
	return ctx, r
}

// loop is the cycle controller. Each iteration executes the current step,
// advances the index, and yields a frame before the next one.
func (a *Activator) loop(ctx context.Context, r *run) error {
	defer close(r.done)
	defer r.cancel()

	if prev := r.prev; prev != nil {
		r.prev = nil
		select {
		case <-prev.done:
		case <-ctx.Done():
		}
	}

	for {
		d, ok := a.next(ctx, r)
		if !ok {
			return nil
		}

		err := a.executeStep(ctx, r, d)
		switch {
		case err == nil:
		case errors.Is(err, errHalted), ctx.Err() != nil, !a.alive(r):
			// Stopped while suspended: the failure is not reported.
			continue
		default:
			a.fail(r, d, err)
			return err
		}

		if !a.advance(r) {
			continue
		}
		if err := a.env.Frames.NextFrame(ctx); err != nil && ctx.Err() == nil && a.alive(r) {
			err = &StepError{Descriptor: d, Err: fmt.Errorf("yielding frame: %w", err)}
			a.fail(r, d, err)
			return err
		}
	}
}

// next returns the descriptor to process, or false once the run is over.
// It fires OnStop when the run ends naturally or after an observed stop.
func (a *Activator) next(ctx context.Context, r *run) (Descriptor, bool) {
	if ctx.Err() != nil {
		a.stopRun(r)
	}

	a.mu.Lock()
	if r.epoch != a.epoch {
		a.mu.Unlock()
		r.log("Run superseded.")
		return "", false
	}
	if a.running && !a.repeatReached() {
		d := a.cfg.Descriptors[a.currentIndex]
		a.mu.Unlock()
		return d, true
	}
	a.running = false
	a.currentIndex = 0
	a.mu.Unlock()

	r.log("Process stopped.")
	if a.cfg.Callbacks.OnStop != nil {
		a.cfg.Callbacks.OnStop()
	}
	return "", false
}

func (a *Activator) repeatReached() bool {
	return a.cfg.Repeat != RepeatForever && a.completedCycles >= a.cfg.Repeat
}

// advance moves to the next descriptor. It returns false without mutating
// anything when r is no longer the live run.
func (a *Activator) advance(r *run) bool {
	a.mu.Lock()
	if !a.aliveLocked(r) {
		a.mu.Unlock()
		return false
	}
	a.currentIndex = (a.currentIndex + 1) % len(a.cfg.Descriptors)
	wrapped := a.currentIndex == 0
	if wrapped {
		a.completedCycles++
	}
	cycles := a.completedCycles
	a.mu.Unlock()

	if wrapped {
		repeat := "∞"
		if a.cfg.Repeat != RepeatForever {
			repeat = strconv.Itoa(a.cfg.Repeat)
		}
		r.logf("Completed cycle %d/%s", cycles, repeat)
	}
	return true
}

func (a *Activator) fail(r *run, d Descriptor, err error) {
	r.err = err
	r.logger.Error().Err(err).Str("descriptor", string(d)).Msg("step failed")
	if r.onLog != nil {
		r.onLog(fmt.Sprintf("Error encountered: %v", err))
	}
	if a.cfg.Callbacks.OnError != nil {
		a.cfg.Callbacks.OnError(err, d)
	}
	a.stopRun(r)
}

// stopRun stops r if it is still the live run
func (a *Activator) stopRun(r *run) {
	a.mu.Lock()
	if !a.aliveLocked(r) {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.currentIndex = 0
	a.mu.Unlock()

	r.log("Stopping activator.")
}

func (a *Activator) alive(r *run) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aliveLocked(r)
}

func (a *Activator) aliveLocked(r *run) bool {
	return a.running && a.epoch == r.epoch
}
