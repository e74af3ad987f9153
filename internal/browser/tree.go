package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"github.com/ysmood/gson"

	"github.com/v0xg/seqclick/internal/clicker"
)

const observeJS = `(name) => {
	const observer = new MutationObserver(() => window[name](null));
	observer.observe(document.body || document.documentElement, { childList: true, subtree: true });
	window[name + "_observer"] = observer;
}`

const disconnectJS = `(name) => {
	const observer = window[name + "_observer"];
	if (observer) {
		observer.disconnect();
		delete window[name + "_observer"];
	}
}`

// Find resolves d as a CSS selector without waiting
func (b *Browser) Find(ctx context.Context, d clicker.Descriptor) (clicker.Target, bool, error) {
	has, el, err := b.page.Context(ctx).Has(string(d))
	if err != nil {
		return nil, false, err
	}
	if !has {
		return nil, false, nil
	}
	return el, true, nil
}

// Observe installs a MutationObserver on the page whose callbacks are bridged
// to onChange through an exposed binding
func (b *Browser) Observe(ctx context.Context, onChange func()) (clicker.Subscription, error) {
	name := "__seqclick_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	stop, err := b.page.Context(ctx).Expose(name, func(gson.JSON) (interface{}, error) {
		onChange()
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("exposing %s: %w", name, err)
	}

	if _, err := b.page.Context(ctx).Eval(observeJS, name); err != nil {
		_ = stop()
		return nil, fmt.Errorf("installing mutation observer: %w", err)
	}

	return &subscription{page: b.page, name: name, stop: stop}, nil
}

type subscription struct {
	page *rod.Page
	name string
	stop func() error
	once sync.Once
	err  error
}

func (s *subscription) Cancel() error {
	s.once.Do(func() {
		_, err := s.page.Eval(disconnectJS, s.name)
		if stopErr := s.stop(); err == nil {
			err = stopErr
		}
		s.err = err
	})
	return s.err
}
