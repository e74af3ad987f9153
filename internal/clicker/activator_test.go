package clicker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/seqclick/internal/clicker"
	"github.com/v0xg/seqclick/internal/clicker/clickertest"
)

// recorder collects callback invocations in call order
type recorder struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Count(event string) int {
	n := 0
	for _, e := range r.Events() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) callbacks() clicker.Callbacks {
	return clicker.Callbacks{
		OnStart: func() { r.add("start") },
		OnStop:  func() { r.add("stop") },
		OnError: func(err error, d clicker.Descriptor) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.add("error %s", d)
		},
	}
}

func descriptors(ds ...string) []clicker.Descriptor {
	out := make([]clicker.Descriptor, 0, len(ds))
	for _, d := range ds {
		out = append(out, clicker.Descriptor(d))
	}
	return out
}

func TestNew(t *testing.T) {
	env := clickertest.Env(clickertest.NewTree(), &clickertest.Pointer{}, nil, nil)

	tests := map[string]struct {
		config clicker.Config
		env    clicker.Environment
		expErr bool
	}{
		"valid config should create activator": {
			config: clicker.Config{Descriptors: descriptors("#a"), Delay: 0, Timeout: time.Second, Repeat: 1},
			env:    env,
		},
		"zero timeout should fall back to default": {
			config: clicker.Config{Descriptors: descriptors("#a")},
			env:    env,
		},
		"missing descriptors should fail": {
			config: clicker.Config{},
			env:    env,
			expErr: true,
		},
		"empty descriptor should fail": {
			config: clicker.Config{Descriptors: descriptors("#a", "")},
			env:    env,
			expErr: true,
		},
		"negative delay should fail": {
			config: clicker.Config{Descriptors: descriptors("#a"), Delay: -time.Millisecond},
			env:    env,
			expErr: true,
		},
		"negative repeat should fail": {
			config: clicker.Config{Descriptors: descriptors("#a"), Repeat: -1},
			env:    env,
			expErr: true,
		},
		"missing tree should fail": {
			config: clicker.Config{Descriptors: descriptors("#a")},
			env:    clicker.Environment{Pointer: &clickertest.Pointer{}},
			expErr: true,
		},
		"missing pointer should fail": {
			config: clicker.Config{Descriptors: descriptors("#a")},
			env:    clicker.Environment{Tree: clickertest.NewTree()},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			a, err := clicker.New(test.config, test.env)

			if test.expErr {
				require.ErrorIs(err, clicker.ErrInvalidConfig)
				require.Nil(a)
			} else {
				require.NoError(err)
				require.NotNil(a)
			}
		})
	}
}

func TestRunTwoTargetsTwoCycles(t *testing.T) {
	require := require.New(t)

	tree := clickertest.NewTree("#a", "#b")
	pointer := &clickertest.Pointer{}
	frames := &clickertest.Frames{}
	rec := &recorder{}
	logs := &logSink{}

	cb := rec.callbacks()
	cb.OnLog = logs.Log
	a, err := clicker.New(clicker.Config{
		Descriptors: descriptors("#a", "#b"),
		Delay:       0,
		Repeat:      2,
		Callbacks:   cb,
		Logger:      zerolog.Nop(),
	}, clickertest.Env(tree, pointer, frames, nil))
	require.NoError(err)

	require.NoError(a.Run(context.Background()))

	require.Equal(descriptors("#a", "#b", "#a", "#b"), pointer.Clicks())
	require.Equal([]string{"start", "stop"}, rec.Events())
	require.Equal(4, frames.Count())

	st := a.State()
	require.Equal(2, st.CompletedCycles)
	require.Equal(0, st.CurrentIndex)
	require.False(st.Running)
	require.NotEmpty(st.RunID)

	var processed, cycles []string
	for _, m := range logs.Messages() {
		switch m {
		case "Processing descriptor: #a", "Processing descriptor: #b":
			processed = append(processed, m)
		case "Completed cycle 1/2", "Completed cycle 2/2":
			cycles = append(cycles, m)
		}
	}
	require.Equal([]string{
		"Processing descriptor: #a",
		"Processing descriptor: #b",
		"Processing descriptor: #a",
		"Processing descriptor: #b",
	}, processed)
	require.Equal([]string{"Completed cycle 1/2", "Completed cycle 2/2"}, cycles)
	require.Equal("Process stopped.", logs.Messages()[len(logs.Messages())-1])
}

func TestRunCompletesRepeatCycles(t *testing.T) {
	tests := map[string]struct {
		descriptors []clicker.Descriptor
		repeat      int
	}{
		"single descriptor once":  {descriptors: descriptors("#a"), repeat: 1},
		"single descriptor twice": {descriptors: descriptors("#a"), repeat: 2},
		"three descriptors three": {descriptors: descriptors("#a", "#b", "#c"), repeat: 3},
		"five descriptors once":   {descriptors: descriptors("#1", "#2", "#3", "#4", "#5"), repeat: 1},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			tree := clickertest.NewTree(test.descriptors...)
			pointer := &clickertest.Pointer{}
			rec := &recorder{}
			a, err := clicker.New(clicker.Config{
				Descriptors: test.descriptors,
				Repeat:      test.repeat,
				Callbacks:   rec.callbacks(),
			}, clickertest.Env(tree, pointer, nil, nil))
			require.NoError(err)

			require.NoError(a.Run(context.Background()))

			require.Len(pointer.Clicks(), len(test.descriptors)*test.repeat)
			require.Equal(1, rec.Count("stop"))
			st := a.State()
			require.Equal(test.repeat, st.CompletedCycles)
			require.Equal(0, st.CurrentIndex)
			require.False(st.Running)
		})
	}
}

func TestActivationOrder(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	pointer := &clickertest.Pointer{OnSignal: func(s clickertest.Signal) { rec.add("%s", s) }}
	cb := clicker.Callbacks{
		BeforeClick: func(_ context.Context, ev clicker.ClickEvent) error {
			rec.add("before %s", ev.Descriptor)
			return nil
		},
		AfterClick: func(_ context.Context, ev clicker.ClickEvent) error {
			require.Equal(ev.Descriptor, ev.Target.(*clickertest.Element).Descriptor)
			rec.add("after %s", ev.Descriptor)
			return nil
		},
	}
	a, err := clicker.New(clicker.Config{
		Descriptors: descriptors("#a"),
		Repeat:      1,
		Callbacks:   cb,
	}, clickertest.Env(clickertest.NewTree("#a"), pointer, nil, nil))
	require.NoError(err)

	require.NoError(a.Run(context.Background()))

	require.Equal([]string{
		"before #a",
		"click #a",
		"mousedown #a",
		"mouseup #a",
		"after #a",
	}, rec.Events())
}

func TestStartIsIdempotent(t *testing.T) {
	require := require.New(t)

	tree := clickertest.NewTree()
	pointer := &clickertest.Pointer{}
	rec := &recorder{}
	a, err := clicker.New(clicker.Config{
		Descriptors: descriptors("#a"),
		Repeat:      1,
		Callbacks:   rec.callbacks(),
	}, clickertest.Env(tree, pointer, nil, nil))
	require.NoError(err)

	a.Start(context.Background())
	require.Eventually(func() bool { return tree.Subscribers() == 1 }, time.Second, time.Millisecond)
	runID := a.State().RunID

	a.Start(context.Background())
	require.ErrorIs(a.Run(context.Background()), clicker.ErrAlreadyRunning)
	require.Equal(1, rec.Count("start"))
	require.Equal(runID, a.State().RunID)
	require.True(a.State().Running)

	tree.Add("#a")
	require.NoError(a.Wait(context.Background()))
	require.Equal([]string{"start", "stop"}, rec.Events())
	require.Equal(descriptors("#a"), pointer.Clicks())
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	logs := &logSink{}
	cb := rec.callbacks()
	cb.OnLog = logs.Log
	a, err := clicker.New(clicker.Config{
		Descriptors: descriptors("#a"),
		Repeat:      1,
		Callbacks:   cb,
	}, clickertest.Env(clickertest.NewTree("#a"), &clickertest.Pointer{}, nil, nil))
	require.NoError(err)

	a.Stop()
	require.Empty(rec.Events())
	require.Empty(logs.Messages())

	require.NoError(a.Run(context.Background()))
	n := len(logs.Messages())

	a.Stop()
	require.Equal([]string{"start", "stop"}, rec.Events())
	require.Len(logs.Messages(), n)
}

func TestStopDuringLocateExitsQuietly(t *testing.T) {
	require := require.New(t)

	tree := clickertest.NewTree()
	pointer := &clickertest.Pointer{}
	rec := &recorder{}
	a, err := clicker.New(clicker.Config{
		Descriptors: descriptors("#a", "#b"),
		Callbacks:   rec.callbacks(),
	}, clickertest.Env(tree, pointer, nil, nil))
	require.NoError(err)

	a.Start(context.Background())
	require.Eventually(func() bool { return tree.Subscribers() == 1 }, time.Second, time.Millisecond)

	a.Stop()
	require.False(a.State().Running)

	// The in-flight locate resolves, but no gesture follows.
	tree.Add("#a")
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("run did not end after stop")
	}

	require.Empty(pointer.Signals())
	require.Equal([]string{"start", "stop"}, rec.Events())
	require.Equal(0, a.State().CurrentIndex)
	require.Equal(0, tree.Subscribers())
}

func TestStopFromHookEndsUnboundedRun(t *testing.T) {
	require := require.New(t)

	tree := clickertest.NewTree("#a", "#b")
	pointer := &clickertest.Pointer{}
	rec := &recorder{}

	var a *clicker.Activator
	clicks := 0
	cb := rec.callbacks()
	cb.AfterClick = func(_ context.Context, ev clicker.ClickEvent) error {
		clicks++
		if clicks == 5 {
			a.Stop()
		}
		return nil
	}

	var err error
	a, err = clicker.New(clicker.Config{
		Descriptors: descriptors("#a", "#b"),
		Repeat:      clicker.RepeatForever,
		Callbacks:   cb,
	}, clickertest.Env(tree, pointer, nil, nil))
	require.NoError(err)

	require.NoError(a.Run(context.Background()))

	require.Equal(descriptors("#a", "#b", "#a", "#b", "#a"), pointer.Clicks())
	require.Equal([]string{"start", "stop"}, rec.Events())
	st := a.State()
	require.Equal(2, st.CompletedCycles)
	require.Equal(0, st.CurrentIndex)
	require.False(st.Running)
}

func TestBeforeClickFailureShortCircuits(t *testing.T) {
	require := require.New(t)

	ds := descriptors("#1", "#2", "#3", "#4", "#5")
	tree := clickertest.NewTree(ds...)
	pointer := &clickertest.Pointer{}
	rec := &recorder{}
	errBoom := errors.New("boom")

	var a *clicker.Activator
	var indexAtError int
	var after []clicker.Descriptor
	cb := rec.callbacks()
	cb.BeforeClick = func(_ context.Context, ev clicker.ClickEvent) error {
		if ev.Descriptor == "#3" {
			return errBoom
		}
		return nil
	}
	cb.AfterClick = func(_ context.Context, ev clicker.ClickEvent) error {
		after = append(after, ev.Descriptor)
		return nil
	}
	onError := cb.OnError
	cb.OnError = func(err error, d clicker.Descriptor) {
		indexAtError = a.State().CurrentIndex
		onError(err, d)
	}

	var err error
	a, err = clicker.New(clicker.Config{Descriptors: ds, Callbacks: cb}, clickertest.Env(tree, pointer, nil, nil))
	require.NoError(err)

	runErr := a.Run(context.Background())
	require.Error(runErr)

	require.Equal(descriptors("#1", "#2"), after)
	require.Equal(descriptors("#1", "#2"), pointer.Clicks())
	require.Equal(2, indexAtError)
	require.Equal([]string{"start", "error #3"}, rec.Events())

	errs := rec.Errors()
	require.Len(errs, 1)
	require.ErrorIs(errs[0], clicker.ErrHook)
	require.ErrorIs(errs[0], errBoom)
	var stepErr *clicker.StepError
	require.ErrorAs(errs[0], &stepErr)
	require.Equal(clicker.Descriptor("#3"), stepErr.Descriptor)
	var hookErr *clicker.HookError
	require.ErrorAs(errs[0], &hookErr)
	require.Equal("beforeClick", hookErr.Hook)
	require.Equal(runErr, errs[0])

	st := a.State()
	require.False(st.Running)
	require.Equal(0, st.CurrentIndex)
}

func TestStepFailures(t *testing.T) {
	errBoom := errors.New("boom")

	tests := map[string]struct {
		tree      func() *clickertest.Tree
		pointer   func() *clickertest.Pointer
		cb        clicker.Callbacks
		expIs     error
		expClicks int
	}{
		"missing target should time out": {
			tree:    func() *clickertest.Tree { return clickertest.NewTree("#a") },
			pointer: func() *clickertest.Pointer { return &clickertest.Pointer{} },
			expIs:   clicker.ErrNotFound,
			// #a is clicked before #b times out.
			expClicks: 1,
		},
		"failing after hook should abort": {
			tree:    func() *clickertest.Tree { return clickertest.NewTree("#a", "#b") },
			pointer: func() *clickertest.Pointer { return &clickertest.Pointer{} },
			cb: clicker.Callbacks{AfterClick: func(context.Context, clicker.ClickEvent) error {
				return errBoom
			}},
			expIs:     clicker.ErrHook,
			expClicks: 1,
		},
		"panicking hook should abort": {
			tree:    func() *clickertest.Tree { return clickertest.NewTree("#a", "#b") },
			pointer: func() *clickertest.Pointer { return &clickertest.Pointer{} },
			cb: clicker.Callbacks{BeforeClick: func(context.Context, clicker.ClickEvent) error {
				panic("hook exploded")
			}},
			expIs:     clicker.ErrHook,
			expClicks: 0,
		},
		"failing pointer should abort": {
			tree: func() *clickertest.Tree { return clickertest.NewTree("#a", "#b") },
			pointer: func() *clickertest.Pointer {
				p := &clickertest.Pointer{}
				p.FailWith(errBoom)
				return p
			},
			expIs:     errBoom,
			expClicks: 0,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			tree := test.tree()
			pointer := test.pointer()
			a, err := clicker.New(clicker.Config{
				Descriptors: descriptors("#a", "#b"),
				Timeout:     20 * time.Millisecond,
				Callbacks:   test.cb,
			}, clickertest.Env(tree, pointer, nil, nil))
			require.NoError(err)

			err = a.Run(context.Background())

			require.ErrorIs(err, test.expIs)
			var stepErr *clicker.StepError
			require.ErrorAs(err, &stepErr)
			require.Len(pointer.Clicks(), test.expClicks)
			require.False(a.State().Running)
			require.Equal(0, tree.Subscribers())
		})
	}
}

func TestContextCancelStopsRun(t *testing.T) {
	require := require.New(t)

	tree := clickertest.NewTree()
	rec := &recorder{}
	a, err := clicker.New(clicker.Config{
		Descriptors: descriptors("#a"),
		Callbacks:   rec.callbacks(),
	}, clickertest.Env(tree, &clickertest.Pointer{}, nil, nil))
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(func() bool { return tree.Subscribers() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	require.Equal([]string{"start", "stop"}, rec.Events())
	require.Empty(rec.Errors())
	require.False(a.State().Running)
	require.Equal(0, tree.Subscribers())
}

func TestRestartResetsCycles(t *testing.T) {
	require := require.New(t)

	rec := &recorder{}
	a, err := clicker.New(clicker.Config{
		Descriptors: descriptors("#a", "#b"),
		Repeat:      1,
		Callbacks:   rec.callbacks(),
	}, clickertest.Env(clickertest.NewTree("#a", "#b"), &clickertest.Pointer{}, nil, nil))
	require.NoError(err)

	require.NoError(a.Run(context.Background()))
	first := a.State()
	require.NoError(a.Run(context.Background()))
	second := a.State()

	require.Equal(1, first.CompletedCycles)
	require.Equal(1, second.CompletedCycles)
	require.NotEqual(first.RunID, second.RunID)
	require.Equal([]string{"start", "stop", "start", "stop"}, rec.Events())
}

func TestInstancesAreIndependent(t *testing.T) {
	require := require.New(t)

	tree := clickertest.NewTree("#a", "#b")
	p1, p2 := &clickertest.Pointer{}, &clickertest.Pointer{}
	a1, err := clicker.New(clicker.Config{Descriptors: descriptors("#a"), Repeat: 3}, clickertest.Env(tree, p1, nil, nil))
	require.NoError(err)
	a2, err := clicker.New(clicker.Config{Descriptors: descriptors("#b"), Repeat: 2}, clickertest.Env(tree, p2, nil, nil))
	require.NoError(err)

	a1.Start(context.Background())
	a2.Start(context.Background())
	require.NoError(a1.Wait(context.Background()))
	require.NoError(a2.Wait(context.Background()))

	require.Equal(descriptors("#a", "#a", "#a"), p1.Clicks())
	require.Equal(descriptors("#b", "#b"), p2.Clicks())
}

func TestStopRacingFailureIsQuiet(t *testing.T) {
	errBoom := errors.New("boom")

	tests := map[string]struct {
		tree    *clickertest.Tree
		hook    func(a *clicker.Activator) clicker.HookFunc
		trigger func(clock *clickertest.Clock, a *clicker.Activator)
	}{
		"timeout expiring after stop should not be reported": {
			tree: clickertest.NewTree(),
			trigger: func(clock *clickertest.Clock, a *clicker.Activator) {
				a.Stop()
				clock.Advance(time.Second)
			},
		},
		"hook failing after stop should not be reported": {
			tree: clickertest.NewTree("#a"),
			hook: func(a *clicker.Activator) clicker.HookFunc {
				return func(context.Context, clicker.ClickEvent) error {
					a.Stop()
					return errBoom
				}
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			clock := &clickertest.Clock{}
			pointer := &clickertest.Pointer{}
			rec := &recorder{}
			cb := rec.callbacks()

			var a *clicker.Activator
			if test.hook != nil {
				cb.BeforeClick = func(ctx context.Context, ev clicker.ClickEvent) error {
					return test.hook(a)(ctx, ev)
				}
			}

			var err error
			a, err = clicker.New(clicker.Config{
				Descriptors: descriptors("#a"),
				Timeout:     time.Second,
				Callbacks:   cb,
			}, clickertest.Env(test.tree, pointer, nil, clock))
			require.NoError(err)

			a.Start(context.Background())
			if test.trigger != nil {
				require.Eventually(func() bool { return clock.Pending() == 1 }, time.Second, time.Millisecond)
				test.trigger(clock, a)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			require.NoError(a.Wait(ctx))

			require.Equal([]string{"start", "stop"}, rec.Events())
			require.Empty(rec.Errors())
			require.Empty(pointer.Signals())
			require.False(a.State().Running)
			require.Equal(0, test.tree.Subscribers())
		})
	}
}

func TestRestartWaitsForSupersededRun(t *testing.T) {
	require := require.New(t)

	tree := clickertest.NewTree()
	pointer := &clickertest.Pointer{}
	logs := &logSink{}
	rec := &recorder{}
	cb := rec.callbacks()
	cb.OnLog = logs.Log

	a, err := clicker.New(clicker.Config{
		Descriptors: descriptors("#a"),
		Repeat:      1,
		Callbacks:   cb,
	}, clickertest.Env(tree, pointer, nil, nil))
	require.NoError(err)

	a.Start(context.Background())
	require.Eventually(func() bool { return tree.Subscribers() == 1 }, time.Second, time.Millisecond)
	first := a.State().RunID

	a.Stop()
	a.Start(context.Background())
	require.NotEqual(first, a.State().RunID)

	require.Eventually(func() bool { return tree.Observed() == 2 && tree.Subscribers() == 1 }, time.Second, time.Millisecond)
	require.LessOrEqual(tree.PeakSubscribers(), 1)

	tree.Add("#a")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(a.Wait(ctx))

	require.Equal(descriptors("#a"), pointer.Clicks())
	require.Equal([]string{"start", "start", "stop"}, rec.Events())
	require.NotContains(logs.Messages(), "Run superseded.")
	require.Equal(0, tree.Subscribers())
	require.Equal(1, a.State().CompletedCycles)
}
