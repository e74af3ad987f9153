package clicker

import (
	"context"
	"errors"
	"fmt"
)

// errHalted marks a step abandoned because its run was stopped while it was suspended
var errHalted = errors.New("run halted")

// executeStep processes one descriptor: locate, beforeClick, activation
// gesture, afterClick, delay. Any failure is returned as a *StepError.
func (a *Activator) executeStep(ctx context.Context, r *run, d Descriptor) error {
	if err := a.step(ctx, r, d); err != nil {
		if errors.Is(err, errHalted) {
			return err
		}
		return &StepError{Descriptor: d, Err: err}
	}
	return nil
}

func (a *Activator) step(ctx context.Context, r *run, d Descriptor) error {
	r.logf("Processing descriptor: %s", d)

	loc := Locator{Tree: a.env.Tree, Clock: a.env.Clock, Timeout: a.cfg.Timeout, Log: r.log}
	target, err := loc.Locate(ctx, d)
	if err != nil {
		return err
	}
	if !a.alive(r) {
		return errHalted
	}

	ev := ClickEvent{Target: target, Descriptor: d}
	cb := a.cfg.Callbacks

	if cb.BeforeClick != nil {
		r.logf("Executing beforeClick hook for: %s", d)
		if err := callHook(ctx, "beforeClick", cb.BeforeClick, ev); err != nil {
			return err
		}
		if !a.alive(r) {
			return errHalted
		}
	}

	r.logf("Clicking target: %s", d)
	if err := activate(ctx, a.env.Pointer, target); err != nil {
		return err
	}

	if cb.AfterClick != nil {
		r.logf("Executing afterClick hook for: %s", d)
		if err := callHook(ctx, "afterClick", cb.AfterClick, ev); err != nil {
			return err
		}
	}

	if err := sleep(ctx, a.env.Clock, a.cfg.Delay); err != nil {
		return err
	}
	if !a.alive(r) {
		return errHalted
	}
	return nil
}

// activate performs the gesture: primary activation, then press-down and release
func activate(ctx context.Context, p Pointer, t Target) error {
	if err := p.Activate(ctx, t); err != nil {
		return fmt.Errorf("activating target: %w", err)
	}
	for _, s := range []Signal{SignalPressDown, SignalRelease} {
		if err := p.Notify(ctx, t, s); err != nil {
			return fmt.Errorf("dispatching %s: %w", s, err)
		}
	}
	return nil
}

func callHook(ctx context.Context, name string, hook HookFunc, ev ClickEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HookError{Hook: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if err := hook(ctx, ev); err != nil {
		return &HookError{Hook: name, Err: err}
	}
	return nil
}
