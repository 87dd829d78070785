package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"timeline-editor/internal/compositor"
	"timeline-editor/internal/models"
	"timeline-editor/internal/storage"
)

const (
	DefaultFrameCacheSize = 256
	DefaultExtractors     = 2
	defaultFrameRate      = 30.0
)

type frameKey struct {
	asset uuid.UUID
	index int64
}

type frameResult struct {
	img image.Image
	err error
}

// Provider loads asset pixels for the compositor. Still images are decoded
// once and kept. Video frames are extracted in the background: a request for
// an uncached frame returns compositor.ErrNotReady and starts an extraction,
// so a later render picks the frame up.
type Provider struct {
	src       storage.Source
	extractor FrameExtractor
	log       logrus.FieldLogger
	frameRate float64

	group  singleflight.Group
	sem    *semaphore.Weighted
	frames *frameCache

	mu      sync.Mutex
	images  map[uuid.UUID]image.Image
	pending map[frameKey]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ProviderOption func(*Provider)

func WithFrameRate(fps float64) ProviderOption {
	return func(p *Provider) {
		if fps > 0 {
			p.frameRate = fps
		}
	}
}

func WithFrameCacheSize(n int) ProviderOption {
	return func(p *Provider) { p.frames = newFrameCache(n) }
}

func WithExtractors(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithProviderLogger(l logrus.FieldLogger) ProviderOption {
	return func(p *Provider) { p.log = l }
}

func NewProvider(src storage.Source, extractor FrameExtractor, opts ...ProviderOption) *Provider {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		src:       src,
		extractor: extractor,
		log:       logrus.StandardLogger(),
		frameRate: defaultFrameRate,
		sem:       semaphore.NewWeighted(DefaultExtractors),
		frames:    newFrameCache(DefaultFrameCacheSize),
		images:    make(map[uuid.UUID]image.Image),
		pending:   make(map[frameKey]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Image decodes a still image asset. Concurrent callers for the same asset
// share one decode.
func (p *Provider) Image(ctx context.Context, asset models.Asset) (image.Image, error) {
	p.mu.Lock()
	img, ok := p.images[asset.ID]
	p.mu.Unlock()
	if ok {
		return img, nil
	}

	ch := p.group.DoChan(asset.ID.String(), func() (any, error) {
		rc, err := p.src.Open(p.ctx, asset.Src)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", asset.Src, err)
		}
		p.mu.Lock()
		p.images[asset.ID] = img
		p.mu.Unlock()
		return img, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	}
}

// VideoFrame returns the cached frame nearest sourceMs, or ErrNotReady while
// it is being extracted. Failed extractions are cached too so a broken source
// does not respawn ffmpeg on every render.
func (p *Provider) VideoFrame(ctx context.Context, asset models.Asset, sourceMs float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := frameKey{asset: asset.ID, index: p.frameIndex(sourceMs)}
	if res, ok := p.frames.Get(key); ok {
		return res.img, res.err
	}

	p.mu.Lock()
	if _, busy := p.pending[key]; busy {
		p.mu.Unlock()
		return nil, compositor.ErrNotReady
	}
	if p.ctx.Err() != nil {
		p.mu.Unlock()
		return nil, p.ctx.Err()
	}
	p.pending[key] = struct{}{}
	p.wg.Add(1)
	p.mu.Unlock()

	go p.extract(key, asset, float64(key.index)*1000/p.frameRate)
	return nil, compositor.ErrNotReady
}

func (p *Provider) frameIndex(ms float64) int64 {
	if ms < 0 {
		ms = 0
	}
	return int64(math.Floor(ms / 1000 * p.frameRate))
}

func (p *Provider) extract(key frameKey, asset models.Asset, ms float64) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.pending, key)
		p.mu.Unlock()
	}()

	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		return
	}
	defer p.sem.Release(1)

	log := p.log.WithFields(logrus.Fields{"assetId": asset.ID, "ms": ms})
	loc, err := p.src.Locate(p.ctx, asset.Src)
	if err == nil {
		var img image.Image
		img, err = p.extractor.Frame(p.ctx, loc, ms)
		if err == nil {
			p.frames.Add(key, frameResult{img: img})
			return
		}
	}
	if errors.Is(err, context.Canceled) || p.ctx.Err() != nil {
		return
	}
	log.WithError(err).Warn("frame extraction failed")
	p.frames.Add(key, frameResult{err: err})
}

// Forget drops everything cached for an asset, e.g. after it is removed.
func (p *Provider) Forget(id uuid.UUID) {
	p.mu.Lock()
	delete(p.images, id)
	p.mu.Unlock()
	dropAsset(p.frames, id)
	p.group.Forget(id.String())
}

// Wait blocks until in-flight extractions are done.
func (p *Provider) Wait() {
	p.wg.Wait()
}

// Close cancels pending extractions and waits for them to exit.
func (p *Provider) Close() {
	p.mu.Lock()
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}
