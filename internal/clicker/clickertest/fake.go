// Package clickertest provides an in-memory environment for exercising the activator.
package clickertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/v0xg/seqclick/internal/clicker"
)

// Element is the target handle produced by Tree
type Element struct {
	Descriptor clicker.Descriptor
}

// Tree is a fake UI tree. Mutations notify subscribers synchronously.
type Tree struct {
	mu       sync.Mutex
	present  map[clicker.Descriptor]*Element
	subs     map[int]func()
	nextSub  int
	findErr  error
	finds    int
	observed int
	peak     int
}

// NewTree returns a tree containing the given descriptors
func NewTree(ds ...clicker.Descriptor) *Tree {
	t := &Tree{
		present: map[clicker.Descriptor]*Element{},
		subs:    map[int]func(){},
	}
	for _, d := range ds {
		t.present[d] = &Element{Descriptor: d}
	}
	return t
}

// Add inserts a target for d and notifies subscribers
func (t *Tree) Add(d clicker.Descriptor) {
	t.mu.Lock()
	t.present[d] = &Element{Descriptor: d}
	t.mu.Unlock()
	t.Touch()
}

// Remove deletes the target for d and notifies subscribers
func (t *Tree) Remove(d clicker.Descriptor) {
	t.mu.Lock()
	delete(t.present, d)
	t.mu.Unlock()
	t.Touch()
}

// Touch notifies subscribers without changing the tree
func (t *Tree) Touch() {
	t.mu.Lock()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, t.subs[id])
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// FailFind makes every following Find return err
func (t *Tree) FailFind(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.findErr = err
}

// Subscribers returns the number of active subscriptions
func (t *Tree) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Observed returns the number of subscriptions ever made
func (t *Tree) Observed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observed
}

// PeakSubscribers returns the highest number of simultaneous subscriptions seen
func (t *Tree) PeakSubscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// Finds returns the number of Find calls
func (t *Tree) Finds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finds
}

func (t *Tree) Find(ctx context.Context, d clicker.Descriptor) (clicker.Target, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finds++
	if t.findErr != nil {
		return nil, false, t.findErr
	}
	el, ok := t.present[d]
	if !ok {
		return nil, false, nil
	}
	return el, true, nil
}

func (t *Tree) Observe(ctx context.Context, onChange func()) (clicker.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.observed++
	t.subs[id] = onChange
	if len(t.subs) > t.peak {
		t.peak = len(t.subs)
	}
	return &subscription{tree: t, id: id}, nil
}

type subscription struct {
	tree *Tree
	id   int
}

func (s *subscription) Cancel() error {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	delete(s.tree.subs, s.id)
	return nil
}

// Signal is one pointer event recorded by Pointer
type Signal struct {
	Descriptor clicker.Descriptor
	Kind       string
}

func (s Signal) String() string { return fmt.Sprintf("%s %s", s.Kind, s.Descriptor) }

// Pointer records activation gestures
type Pointer struct {
	mu      sync.Mutex
	signals []Signal
	fail    error

	// OnSignal, if set, is called after each recorded signal.
	OnSignal func(Signal)
}

// FailWith makes every following signal return err
func (p *Pointer) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

// Signals returns the recorded signals in order
func (p *Pointer) Signals() []Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Signal(nil), p.signals...)
}

// Clicks returns the descriptors that received a primary activation, in order
func (p *Pointer) Clicks() []clicker.Descriptor {
	var ds []clicker.Descriptor
	for _, s := range p.Signals() {
		if s.Kind == "click" {
			ds = append(ds, s.Descriptor)
		}
	}
	return ds
}

func (p *Pointer) Activate(ctx context.Context, t clicker.Target) error {
	return p.record(t, "click")
}

func (p *Pointer) Notify(ctx context.Context, t clicker.Target, s clicker.Signal) error {
	return p.record(t, string(s))
}

func (p *Pointer) record(t clicker.Target, kind string) error {
	el, ok := t.(*Element)
	if !ok {
		return fmt.Errorf("unexpected target %T", t)
	}

	p.mu.Lock()
	if p.fail != nil {
		err := p.fail
		p.mu.Unlock()
		return err
	}
	s := Signal{Descriptor: el.Descriptor, Kind: kind}
	p.signals = append(p.signals, s)
	cb := p.OnSignal
	p.mu.Unlock()

	if cb != nil {
		cb(s)
	}
	return nil
}

// Frames counts yields and never blocks
type Frames struct {
	mu    sync.Mutex
	count int
}

func (f *Frames) NextFrame(ctx context.Context) error {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
	return ctx.Err()
}

// Count returns the number of frames yielded
func (f *Frames) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Clock is a manual clock. Timers fire only from Advance.
type Clock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*timer
}

type timer struct {
	clock   *Clock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *Clock) AfterFunc(d time.Duration, f func()) clicker.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of timers neither fired nor stopped
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in deadline order
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*timer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Env returns an environment wired to the fakes
func Env(tree *Tree, pointer *Pointer, frames *Frames, clock *Clock) clicker.Environment {
	env := clicker.Environment{Tree: tree, Pointer: pointer}
	if frames != nil {
		env.Frames = frames
	}
	if clock != nil {
		env.Clock = clock
	}
	return env
}
