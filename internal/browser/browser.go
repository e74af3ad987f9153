package browser

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/seqclick/internal/clicker"
)

// Options configures the launched browser
type Options struct {
	Width      int
	Height     int
	Headless   bool
	Timeout    time.Duration // page load bound
	ProfileDir string        // Chrome/Chromium profile directory for authenticated sessions
}

// Browser wraps the Rod browser and the page the activator works on
type Browser struct {
	browser *rod.Browser
	page    *rod.Page
}

// Launch starts Chromium, opens url and waits for it to settle
func Launch(url string, opts Options) (*Browser, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	path, _ := launcher.LookPath()
	l := launcher.New().Bin(path).Headless(opts.Headless)
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	b := &Browser{browser: browser}
	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("opening %s: %w", url, err)
	}
	b.page = page

	if opts.Width > 0 && opts.Height > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Width,
			Height:            opts.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("setting viewport: %w", err)
		}
	}

	if err := page.Timeout(opts.Timeout).WaitLoad(); err != nil {
		b.Close()
		return nil, fmt.Errorf("waiting for %s to load: %w", url, err)
	}

	// Don't hang on persistent connections (WebSockets, polling, etc.)
	page.Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()

	return b, nil
}

// Close cleans up browser resources
func (b *Browser) Close() {
	if b.page != nil {
		_ = b.page.Close()
	}
	if b.browser != nil {
		_ = b.browser.Close()
	}
}

// Page returns the underlying Rod page
func (b *Browser) Page() *rod.Page {
	return b.page
}

// Environment exposes the page as the activator's UI tree, pointer and frame source
func (b *Browser) Environment() clicker.Environment {
	return clicker.Environment{
		Tree:    b,
		Pointer: b,
		Frames:  b,
		Clock:   clicker.WallClock,
	}
}
