// Package recording captures a screenshot after every activation and saves the run as a GIF.
package recording

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"github.com/v0xg/seqclick/internal/clicker"
	"github.com/v0xg/seqclick/internal/gifgen"
	"github.com/v0xg/seqclick/internal/overlay"
)

// Source provides screenshots and target positions
type Source interface {
	Screenshot() (image.Image, error)
	Center(t clicker.Target) (image.Point, error)
}

// Recorder accumulates annotated shots of a run
type Recorder struct {
	src    Source
	logger zerolog.Logger

	mu    sync.Mutex
	shots []overlay.Shot
}

// New creates a Recorder
func New(src Source, logger zerolog.Logger) *Recorder {
	return &Recorder{src: src, logger: logger}
}

// Capture records the page right after ev's target was activated.
// It is shaped as an AfterClick hook. Capture failures are logged, not returned,
// so recording never aborts a run.
func (r *Recorder) Capture(_ context.Context, ev clicker.ClickEvent) error {
	img, err := r.src.Screenshot()
	if err != nil {
		r.logger.Warn().Err(err).Str("descriptor", string(ev.Descriptor)).Msg("screenshot failed")
		return nil
	}

	shot := overlay.Shot{Image: img}
	if p, err := r.src.Center(ev.Target); err == nil {
		shot.Click = p
		shot.Clicked = true
	} else {
		r.logger.Debug().Err(err).Str("descriptor", string(ev.Descriptor)).Msg("no position for target")
	}

	r.mu.Lock()
	r.shots = append(r.shots, shot)
	r.mu.Unlock()
	return nil
}

// Len returns the number of captured shots
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shots)
}

// Save writes the captured shots to path as a GIF and returns its size in bytes
func (r *Recorder) Save(path string, opts gifgen.Options) (int64, error) {
	r.mu.Lock()
	shots := append([]overlay.Shot(nil), r.shots...)
	r.mu.Unlock()

	if len(shots) == 0 {
		return 0, fmt.Errorf("nothing recorded")
	}

	size, err := gifgen.Generate(overlay.Apply(shots), path, opts)
	if err != nil {
		return 0, fmt.Errorf("generating GIF: %w", err)
	}
	return size, nil
}
