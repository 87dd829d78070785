// Package session is one open editor: a project model, the playhead, the
// timeline zoom and the current selection.
//
// All methods are safe for concurrent use. Model mutations and reads are
// serialized by the session lock; change callbacks always run with it released.
package session

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"timeline-editor/internal/compositor"
	"timeline-editor/internal/models"
	"timeline-editor/internal/playback"
	"timeline-editor/internal/project"
	"timeline-editor/internal/resolver"
	"timeline-editor/internal/timescale"
)

var ErrNoCompositor = errors.New("session has no compositor")

// ChangeKind says what part of the editor state moved.
type ChangeKind string

const (
	ChangeProject   ChangeKind = "project"
	ChangeSelection ChangeKind = "selection"
	ChangeTime      ChangeKind = "time"
	ChangePlayback  ChangeKind = "playback"
	ChangeZoom      ChangeKind = "zoom"
)

type Change struct {
	Kind  ChangeKind           `json:"kind"`
	Time  float64              `json:"time"`
	State models.PlaybackState `json:"state"`
}

type Option func(*config)

type config struct {
	id        uuid.UUID
	model     *project.Model
	comp      *compositor.Compositor
	log       logrus.FieldLogger
	clockOpts []playback.Option
	syncTolMs float64
	modelOpts []project.Option
}

func WithID(id uuid.UUID) Option { return func(c *config) { c.id = id } }

// WithModel opens an existing project instead of a new empty one.
func WithModel(m *project.Model) Option { return func(c *config) { c.model = m } }

func WithProjectOptions(opts ...project.Option) Option {
	return func(c *config) { c.modelOpts = append(c.modelOpts, opts...) }
}

func WithCompositor(comp *compositor.Compositor) Option { return func(c *config) { c.comp = comp } }

func WithLogger(l logrus.FieldLogger) Option { return func(c *config) { c.log = l } }

func WithClockOptions(opts ...playback.Option) Option {
	return func(c *config) { c.clockOpts = append(c.clockOpts, opts...) }
}

func WithSyncTolerance(ms float64) Option { return func(c *config) { c.syncTolMs = ms } }

type Session struct {
	id  uuid.UUID
	log logrus.FieldLogger

	mu        sync.RWMutex
	model     *project.Model
	zoom      float64
	selAssets []uuid.UUID
	selClips  []uuid.UUID
	selTracks []uuid.UUID

	clock    *playback.Clock
	sync     playback.Synchronizer
	comp     *compositor.Compositor
	renderer *Renderer

	subsMu sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

func New(opts ...Option) *Session {
	cfg := config{id: uuid.New(), log: logrus.StandardLogger()}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.model == nil {
		cfg.model = project.New(cfg.modelOpts...)
	}

	s := &Session{
		id:    cfg.id,
		log:   cfg.log.WithField("session_id", cfg.id),
		model: cfg.model,
		zoom:  1,
		sync:  playback.Synchronizer{Tolerance: cfg.syncTolMs},
		comp:  cfg.comp,
		subs:  make(map[int]func(Change)),
	}
	clockOpts := append([]playback.Option{
		playback.WithLogger(s.log),
		playback.WithOnChange(s.onClock),
	}, cfg.clockOpts...)
	s.clock = playback.New(clockOpts...)
	s.clock.SetDuration(s.durationLocked())
	if s.comp != nil {
		s.renderer = newRenderer(s, s.log)
	}
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

// Renderer is nil when the session has no compositor.
func (s *Session) Renderer() *Renderer { return s.renderer }

// Subscribe registers fn for every change. The returned func unregisters it.
func (s *Session) Subscribe(fn func(Change)) func() {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Session) publish(ch Change) {
	if s.renderer != nil && ch.Kind != ChangeSelection && ch.Kind != ChangeZoom {
		s.renderer.Invalidate()
	}
	s.subsMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()
	for _, fn := range fns {
		fn(ch)
	}
}

func (s *Session) onClock(ev playback.Event) {
	kind := ChangeTime
	if ev.Ended {
		kind = ChangePlayback
	}
	s.publish(Change{Kind: kind, Time: ev.Time, State: ev.State})
}

// mutate runs fn under the write lock, then prunes the selection, refreshes the
// playback duration and publishes kind when fn succeeded.
func (s *Session) mutate(kind ChangeKind, fn func(m *project.Model) error) error {
	s.mu.Lock()
	err := fn(s.model)
	if err == nil {
		s.pruneLocked()
		s.clock.SetDuration(s.durationLocked())
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(Change{Kind: kind, Time: s.clock.Time(), State: s.clock.State()})
	return nil
}

// pruneLocked drops selected ids whose entity no longer exists.
func (s *Session) pruneLocked() {
	s.selAssets = slices.DeleteFunc(s.selAssets, func(id uuid.UUID) bool { return !s.model.HasAsset(id) })
	s.selClips = slices.DeleteFunc(s.selClips, func(id uuid.UUID) bool { return !s.model.HasClip(id) })
	s.selTracks = slices.DeleteFunc(s.selTracks, func(id uuid.UUID) bool { return !s.model.HasTrack(id) })
}

// durationLocked is the playback end: the configured duration, or the end of
// the last clip when none is set.
func (s *Session) durationLocked() float64 {
	if d := s.model.Settings().Duration; d > 0 {
		return d
	}
	return s.model.ContentEnd()
}

// Duration returns the effective playback duration in ms.
func (s *Session) Duration() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durationLocked()
}

// Replace swaps in a loaded project, clearing the selection and rewinding.
func (s *Session) Replace(m *project.Model) {
	s.clock.Pause()
	s.mu.Lock()
	s.model = m
	s.selAssets, s.selClips, s.selTracks = nil, nil, nil
	s.clock.SetDuration(s.durationLocked())
	s.mu.Unlock()
	s.clock.Seek(0)
	s.publish(Change{Kind: ChangeProject, State: models.Paused})
}

// Close stops playback and rendering.
func (s *Session) Close() {
	s.clock.Close()
	if s.renderer != nil {
		s.renderer.stop()
	}
}

// --- assets

func (s *Session) AddAsset(in project.AssetInput) (a models.Asset, err error) {
	err = s.mutate(ChangeProject, func(m *project.Model) error {
		a, err = m.AddAsset(in)
		return err
	})
	return a, err
}

// RemoveAsset deletes the asset and every clip that uses it, and returns the
// removed clip ids.
func (s *Session) RemoveAsset(id uuid.UUID) (removed []uuid.UUID, err error) {
	err = s.mutate(ChangeProject, func(m *project.Model) error {
		removed, err = m.RemoveAsset(id)
		return err
	})
	if err == nil {
		s.log.WithFields(logrus.Fields{"asset_id": id, "clips_removed": len(removed)}).Info("asset removed")
	}
	return removed, err
}

// --- tracks

func (s *Session) AddTrack(tt models.TrackType) (t models.Track, err error) {
	err = s.mutate(ChangeProject, func(m *project.Model) error {
		t, err = m.AddTrack(tt)
		return err
	})
	return t, err
}

func (s *Session) RemoveTrack(id uuid.UUID) (removed []uuid.UUID, err error) {
	err = s.mutate(ChangeProject, func(m *project.Model) error {
		removed, err = m.RemoveTrack(id)
		return err
	})
	return removed, err
}

func (s *Session) SetTrackLocked(id uuid.UUID, locked bool) error {
	return s.mutate(ChangeProject, func(m *project.Model) error { return m.SetTrackLocked(id, locked) })
}

func (s *Session) SetTrackVisible(id uuid.UUID, visible bool) error {
	return s.mutate(ChangeProject, func(m *project.Model) error { return m.SetTrackVisible(id, visible) })
}

func (s *Session) RenameTrack(id uuid.UUID, name string) error {
	return s.mutate(ChangeProject, func(m *project.Model) error { return m.RenameTrack(id, name) })
}

func (s *Session) UpdateTrack(id uuid.UUID, patch project.TrackPatch) (t models.Track, err error) {
	err = s.mutate(ChangeProject, func(m *project.Model) error {
		t, err = m.UpdateTrack(id, patch)
		return err
	})
	return t, err
}

// --- clips

func (s *Session) AddClip(in project.ClipInput) (c models.Clip, err error) {
	err = s.mutate(ChangeProject, func(m *project.Model) error {
		c, err = m.AddClip(in)
		return err
	})
	return c, err
}

func (s *Session) RemoveClip(id uuid.UUID) error {
	return s.mutate(ChangeProject, func(m *project.Model) error { return m.RemoveClip(id) })
}

func (s *Session) UpdateClip(id uuid.UUID, patch project.ClipPatch) (c models.Clip, err error) {
	err = s.mutate(ChangeProject, func(m *project.Model) error {
		c, err = m.UpdateClip(id, patch)
		return err
	})
	return c, err
}

// --- project

func (s *Session) Rename(name string) error {
	return s.mutate(ChangeProject, func(m *project.Model) error { return m.Rename(name) })
}

func (s *Session) UpdateSettings(patch project.SettingsPatch) (st models.Settings, err error) {
	err = s.mutate(ChangeProject, func(m *project.Model) error {
		st, err = m.UpdateSettings(patch)
		return err
	})
	return st, err
}

// Snapshot returns a detached copy of the project document.
func (s *Session) Snapshot() models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Snapshot()
}

// --- selection

// SelectAsset replaces the asset selection with id.
func (s *Session) SelectAsset(id uuid.UUID) error {
	return s.selectOne(&s.selAssets, id, false, func(m *project.Model) bool { return m.HasAsset(id) }, project.ErrAssetNotFound)
}

// SelectClip selects id, adding to the selection when additive is set.
// Selecting an already selected clip additively deselects it.
func (s *Session) SelectClip(id uuid.UUID, additive bool) error {
	return s.selectOne(&s.selClips, id, additive, func(m *project.Model) bool { return m.HasClip(id) }, project.ErrClipNotFound)
}

func (s *Session) SelectTrack(id uuid.UUID, additive bool) error {
	return s.selectOne(&s.selTracks, id, additive, func(m *project.Model) bool { return m.HasTrack(id) }, project.ErrTrackNotFound)
}

func (s *Session) selectOne(sel *[]uuid.UUID, id uuid.UUID, additive bool, exists func(*project.Model) bool, notFound error) error {
	s.mu.Lock()
	if !exists(s.model) {
		s.mu.Unlock()
		return &project.Error{Op: "select", ID: id, Err: notFound}
	}
	switch {
	case !additive:
		*sel = []uuid.UUID{id}
	case slices.Contains(*sel, id):
		*sel = slices.DeleteFunc(*sel, func(x uuid.UUID) bool { return x == id })
	default:
		*sel = append(*sel, id)
	}
	s.mu.Unlock()
	s.publish(Change{Kind: ChangeSelection})
	return nil
}

func (s *Session) ClearSelection() {
	s.mu.Lock()
	s.selAssets, s.selClips, s.selTracks = nil, nil, nil
	s.mu.Unlock()
	s.publish(Change{Kind: ChangeSelection})
}

// --- playhead and transport

// SetCurrentTime seeks in either playback state and returns the clamped time.
func (s *Session) SetCurrentTime(ms float64) float64 {
	return s.clock.Seek(ms)
}

// SeekToPosition seeks to a ruler click offset at the current zoom.
func (s *Session) SeekToPosition(px float64) float64 {
	return s.clock.Seek(s.Mapper().Seek(px))
}

// SeekNextEdit moves the playhead to the next clip boundary, if any.
func (s *Session) SeekNextEdit() (float64, bool) {
	s.mu.RLock()
	edge, ok := resolver.NextEdge(s.model.Tracks(), s.clock.Time())
	s.mu.RUnlock()
	if !ok {
		return s.clock.Time(), false
	}
	return s.clock.Seek(edge), true
}

func (s *Session) SeekPrevEdit() (float64, bool) {
	s.mu.RLock()
	edge, ok := resolver.PrevEdge(s.model.Tracks(), s.clock.Time())
	s.mu.RUnlock()
	if !ok {
		return s.clock.Time(), false
	}
	return s.clock.Seek(edge), true
}

func (s *Session) CurrentTime() float64 { return s.clock.Time() }

func (s *Session) PlaybackState() models.PlaybackState { return s.clock.State() }

// Play reports false when nothing is on the timeline.
func (s *Session) Play() bool {
	ok := s.clock.Play()
	if ok {
		s.publish(Change{Kind: ChangePlayback, Time: s.clock.Time(), State: models.Playing})
	}
	return ok
}

func (s *Session) Pause() {
	s.clock.Pause()
	s.publish(Change{Kind: ChangePlayback, Time: s.clock.Time(), State: models.Paused})
}

func (s *Session) TogglePlayback() models.PlaybackState {
	if s.clock.State() == models.Playing {
		s.Pause()
	} else {
		s.Play()
	}
	return s.clock.State()
}

// --- zoom and ruler

// SetZoom clamps zoom to the supported range and returns the applied value.
func (s *Session) SetZoom(zoom float64) float64 {
	z := timescale.ClampZoom(zoom)
	s.mu.Lock()
	s.zoom = z
	s.mu.Unlock()
	s.publish(Change{Kind: ChangeZoom})
	return z
}

func (s *Session) Zoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoom
}

func (s *Session) Mapper() timescale.Mapper {
	return timescale.Mapper{Zoom: s.Zoom()}
}

// Ruler lays out ticks for the effective duration at the current zoom.
func (s *Session) Ruler() []timescale.Tick {
	s.mu.RLock()
	m, d := timescale.Mapper{Zoom: s.zoom}, s.durationLocked()
	s.mu.RUnlock()
	return m.Ticks(d)
}

// --- reads

// State returns a snapshot of the editor. Selected ids that no longer exist
// are filtered out.
func (s *Session) State() models.EditorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keep := func(ids []uuid.UUID, exists func(uuid.UUID) bool) []uuid.UUID {
		out := make([]uuid.UUID, 0, len(ids))
		for _, id := range ids {
			if exists(id) {
				out = append(out, id)
			}
		}
		return out
	}
	return models.EditorState{
		SessionID:        s.id,
		Project:          s.model.Snapshot(),
		CurrentTime:      s.clock.Time(),
		SelectedAssetIDs: keep(s.selAssets, s.model.HasAsset),
		SelectedClipIDs:  keep(s.selClips, s.model.HasClip),
		SelectedTrackIDs: keep(s.selTracks, s.model.HasTrack),
		PlaybackState:    s.clock.State(),
		Zoom:             s.zoom,
	}
}

// ActiveClips resolves the clips under the playhead.
func (s *Session) ActiveClips() []resolver.Active {
	return s.ActiveAt(s.clock.Time())
}

func (s *Session) ActiveAt(t float64) []resolver.Active {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resolver.Resolve(s.model.Tracks(), t)
}

// Compose renders the frame under the playhead. The session lock is held only
// while the document is copied.
func (s *Session) Compose(ctx context.Context) (*compositor.Frame, error) {
	if s.comp == nil {
		return nil, ErrNoCompositor
	}
	s.mu.RLock()
	t := s.clock.Time()
	doc := s.model.Snapshot()
	s.mu.RUnlock()
	return s.comp.Compose(ctx, doc, t, resolver.Resolve(doc.Tracks, t))
}

// SyncMedia keeps the media elements of active clips on the playhead.
// elements is keyed by clip id; clips without an element are ignored.
// It returns how many elements were re-seeked.
func (s *Session) SyncMedia(elements map[uuid.UUID]playback.MediaElement) (int, error) {
	t := s.clock.Time()
	var (
		seeked int
		errs   []error
	)
	for _, a := range s.ActiveAt(t) {
		el, ok := elements[a.Clip.ID]
		if !ok {
			continue
		}
		did, err := s.sync.Sync(a.Clip.SourceTime(t), el)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if did {
			seeked++
		}
	}
	return seeked, errors.Join(errs...)
}
