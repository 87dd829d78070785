package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"timeline-editor/internal/compositor"
)

// Renderer recomposes the session frame when it is invalidated. Any number of
// invalidations before the loop wakes produce a single composition.
type Renderer struct {
	s     *Session
	log   logrus.FieldLogger
	dirty chan struct{}
	quit  chan struct{}
	once  sync.Once

	mu        sync.Mutex
	latest    *compositor.Frame
	latestSeq uint64

	seq     atomic.Uint64
	renders atomic.Int64
}

func newRenderer(s *Session, log logrus.FieldLogger) *Renderer {
	return &Renderer{
		s:     s,
		log:   log,
		dirty: make(chan struct{}, 1),
		quit:  make(chan struct{}),
	}
}

// Invalidate marks the frame stale. It never blocks.
func (r *Renderer) Invalidate() {
	select {
	case r.dirty <- struct{}{}:
	default:
	}
}

// Run recomposes on invalidation until ctx is done or the session closes.
func (r *Renderer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.quit:
			return nil
		case <-r.dirty:
			if _, err := r.RenderNow(ctx); err != nil {
				r.log.WithError(err).Warn("render failed")
			}
		}
	}
}

// RenderNow composes immediately. A composition that finishes after a newer
// one does not replace it.
func (r *Renderer) RenderNow(ctx context.Context) (*compositor.Frame, error) {
	seq := r.seq.Add(1)
	f, err := r.s.Compose(ctx)
	if err != nil {
		return nil, err
	}
	r.renders.Add(1)

	r.mu.Lock()
	if seq > r.latestSeq {
		r.latest, r.latestSeq = f, seq
	}
	r.mu.Unlock()
	if n := len(f.Skipped()); n > 0 {
		r.log.WithFields(logrus.Fields{"time": f.Time, "skipped": n}).Debug("frame composed with skipped layers")
	}
	return f, nil
}

// Latest returns the most recent composite, or nil before the first render.
func (r *Renderer) Latest() *compositor.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Renders counts completed compositions.
func (r *Renderer) Renders() int64 { return r.renders.Load() }

func (r *Renderer) stop() { r.once.Do(func() { close(r.quit) }) }
