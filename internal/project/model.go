// Package project owns the editing document: assets, tracks and clips.
//
// Entities are stored in an arena keyed by uuid handles. Tracks keep an ordered
// list of clip handles, and every clip records the handle of its one owning
// track, so removals cascade structurally instead of leaving ids dangling.
// Every mutation validates against a scratch copy of the affected entity and
// only commits when all invariants hold; a returned error means nothing changed.
//
// Model is not safe for concurrent use. The session serializes access.
package project

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"timeline-editor/internal/models"
	"timeline-editor/internal/validation"
)

const DefaultName = "未命名项目"

type trackEntry struct {
	track models.Track // Clips is always nil here; see clips
	clips []uuid.UUID
}

type Model struct {
	id        uuid.UUID
	name      string
	createdAt time.Time
	updatedAt time.Time
	settings  models.Settings

	assets     map[uuid.UUID]*models.Asset
	assetOrder []uuid.UUID
	tracks     map[uuid.UUID]*trackEntry
	trackOrder []uuid.UUID
	clips      map[uuid.UUID]*models.Clip

	now   func() time.Time
	newID func() uuid.UUID
}

type Option func(*Model)

// WithClock replaces time.Now for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithIDs replaces uuid.New for handle allocation.
func WithIDs(newID func() uuid.UUID) Option {
	return func(m *Model) { m.newID = newID }
}

func WithName(name string) Option {
	return func(m *Model) { m.name = name }
}

func blank(opts []Option) *Model {
	m := &Model{
		name:     DefaultName,
		settings: models.DefaultSettings(),
		assets:   make(map[uuid.UUID]*models.Asset),
		tracks:   make(map[uuid.UUID]*trackEntry),
		clips:    make(map[uuid.UUID]*models.Clip),
		now:      time.Now,
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// New creates the default project: one empty video track and one empty audio track.
func New(opts ...Option) *Model {
	m := blank(opts)
	m.id = m.newID()
	m.createdAt = m.now()
	m.updatedAt = m.createdAt
	m.insertTrack(models.TrackVideo)
	m.insertTrack(models.TrackAudio)
	return m
}

func (m *Model) ID() uuid.UUID { return m.id }

func (m *Model) Name() string { return m.name }

func (m *Model) Settings() models.Settings { return m.settings }

func (m *Model) UpdatedAt() time.Time { return m.updatedAt }

func (m *Model) HasAsset(id uuid.UUID) bool {
	_, ok := m.assets[id]
	return ok
}

func (m *Model) HasTrack(id uuid.UUID) bool {
	_, ok := m.tracks[id]
	return ok
}

func (m *Model) HasClip(id uuid.UUID) bool {
	_, ok := m.clips[id]
	return ok
}

func (m *Model) AssetCount() int { return len(m.assets) }

func (m *Model) TrackCount() int { return len(m.tracks) }

func (m *Model) ClipCount() int { return len(m.clips) }

func (m *Model) touch() { m.updatedAt = m.now() }

func (m *Model) Rename(name string) error {
	if n := utf8.RuneCountInString(name); n == 0 || n > validation.MaxNameLength {
		return invalid("rename project", m.id, "name must be 1-255 characters")
	}
	m.name = name
	m.touch()
	return nil
}

// ── Assets ────────────────────────────────────────────────────────────────────

func (m *Model) AddAsset(in AssetInput) (models.Asset, error) {
	if err := validation.Struct(in); err != nil {
		return models.Asset{}, invalid("add asset", uuid.Nil, err.Error())
	}
	if in.Duration != nil && !in.Type.Timed() {
		return models.Asset{}, invalid("add asset", uuid.Nil, "duration is only meaningful for video and audio")
	}
	a := models.Asset{
		ID:        m.newID(),
		Name:      in.Name,
		Type:      in.Type,
		Src:       in.Src,
		Duration:  in.Duration,
		Thumbnail: in.Thumbnail,
		CreatedAt: m.now(),
	}
	a = a.Clone() // detach Duration from the caller
	m.assets[a.ID] = &a
	m.assetOrder = append(m.assetOrder, a.ID)
	m.touch()
	return a.Clone(), nil
}

func (m *Model) Asset(id uuid.UUID) (models.Asset, bool) {
	a, ok := m.assets[id]
	if !ok {
		return models.Asset{}, false
	}
	return a.Clone(), true
}

// RemoveAsset deletes the asset and every clip that references it, and returns the
// ids of the removed clips. It is rejected when a dependent clip sits on a locked track.
func (m *Model) RemoveAsset(id uuid.UUID) ([]uuid.UUID, error) {
	if _, ok := m.assets[id]; !ok {
		return nil, opError("remove asset", id, ErrAssetNotFound)
	}
	for _, tid := range m.trackOrder {
		te := m.tracks[tid]
		if !te.track.IsLocked {
			continue
		}
		for _, cid := range te.clips {
			if m.clips[cid].AssetID == id {
				return nil, opError("remove asset", id, fmt.Errorf("%w: clip %s depends on it", ErrTrackLocked, cid))
			}
		}
	}
	var removed []uuid.UUID
	for _, tid := range m.trackOrder {
		te := m.tracks[tid]
		kept := te.clips[:0]
		for _, cid := range te.clips {
			if m.clips[cid].AssetID == id {
				removed = append(removed, cid)
				delete(m.clips, cid)
				continue
			}
			kept = append(kept, cid)
		}
		te.clips = kept
	}
	delete(m.assets, id)
	m.assetOrder = without(m.assetOrder, id)
	m.touch()
	return removed, nil
}

// ── Tracks ────────────────────────────────────────────────────────────────────

func (m *Model) insertTrack(tt models.TrackType) models.Track {
	n := 1
	for _, tid := range m.trackOrder {
		if m.tracks[tid].track.Type == tt {
			n++
		}
	}
	t := models.Track{
		ID:        m.newID(),
		Name:      fmt.Sprintf("%s轨道 %d", tt.Label(), n),
		Type:      tt,
		IsLocked:  false,
		IsVisible: true,
	}
	m.tracks[t.ID] = &trackEntry{track: t}
	m.trackOrder = append(m.trackOrder, t.ID)
	return t
}

// AddTrack appends an empty, unlocked, visible track named after its type.
func (m *Model) AddTrack(tt models.TrackType) (models.Track, error) {
	if !tt.Valid() {
		return models.Track{}, opError("add track", uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidTrackType, tt))
	}
	t := m.insertTrack(tt)
	m.touch()
	t.Clips = []models.Clip{}
	return t, nil
}

// RemoveTrack deletes the track together with its clips and returns the removed clip ids.
func (m *Model) RemoveTrack(id uuid.UUID) ([]uuid.UUID, error) {
	te, ok := m.tracks[id]
	if !ok {
		return nil, opError("remove track", id, ErrTrackNotFound)
	}
	if te.track.IsLocked {
		return nil, opError("remove track", id, ErrTrackLocked)
	}
	removed := append([]uuid.UUID(nil), te.clips...)
	for _, cid := range removed {
		delete(m.clips, cid)
	}
	delete(m.tracks, id)
	m.trackOrder = without(m.trackOrder, id)
	m.touch()
	return removed, nil
}

func (m *Model) Track(id uuid.UUID) (models.Track, bool) {
	te, ok := m.tracks[id]
	if !ok {
		return models.Track{}, false
	}
	return m.materialize(te), true
}

// Lane returns the creation-order index of the track.
func (m *Model) Lane(id uuid.UUID) int {
	for i, tid := range m.trackOrder {
		if tid == id {
			return i
		}
	}
	return -1
}

func (m *Model) SetTrackLocked(id uuid.UUID, locked bool) error {
	te, ok := m.tracks[id]
	if !ok {
		return opError("lock track", id, ErrTrackNotFound)
	}
	te.track.IsLocked = locked
	m.touch()
	return nil
}

// SetTrackVisible is allowed on locked tracks; the lock covers clip edits only.
func (m *Model) SetTrackVisible(id uuid.UUID, visible bool) error {
	te, ok := m.tracks[id]
	if !ok {
		return opError("show track", id, ErrTrackNotFound)
	}
	te.track.IsVisible = visible
	m.touch()
	return nil
}

func (m *Model) RenameTrack(id uuid.UUID, name string) error {
	_, err := m.updateTrack("rename track", id, TrackPatch{Name: &name})
	return err
}

// UpdateTrack applies every field of patch or, on error, none of them.
func (m *Model) UpdateTrack(id uuid.UUID, patch TrackPatch) (models.Track, error) {
	return m.updateTrack("update track", id, patch)
}

func (m *Model) updateTrack(op string, id uuid.UUID, patch TrackPatch) (models.Track, error) {
	te, ok := m.tracks[id]
	if !ok {
		return models.Track{}, opError(op, id, ErrTrackNotFound)
	}
	if patch.Name != nil {
		if n := utf8.RuneCountInString(*patch.Name); n == 0 || n > validation.MaxNameLength {
			return models.Track{}, invalid(op, id, "name must be 1-255 characters")
		}
	}
	if patch.Locked != nil {
		te.track.IsLocked = *patch.Locked
	}
	if patch.Visible != nil {
		te.track.IsVisible = *patch.Visible
	}
	if patch.Name != nil {
		te.track.Name = *patch.Name
	}
	m.touch()
	return m.materialize(te), nil
}

// ── Clips ─────────────────────────────────────────────────────────────────────

func (m *Model) AddClip(in ClipInput) (models.Clip, error) {
	const op = "add clip"
	if err := validation.Struct(in); err != nil {
		return models.Clip{}, invalid(op, uuid.Nil, err.Error())
	}
	te, ok := m.tracks[in.TrackID]
	if !ok {
		return models.Clip{}, opError(op, in.TrackID, ErrTrackNotFound)
	}
	if te.track.IsLocked {
		return models.Clip{}, opError(op, in.TrackID, ErrTrackLocked)
	}
	if err := m.checkPlacement(op, in.AssetID, te.track); err != nil {
		return models.Clip{}, err
	}

	c := models.Clip{
		ID:        m.newID(),
		AssetID:   in.AssetID,
		TrackID:   in.TrackID,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		InPoint:   in.InPoint,
		OutPoint:  in.OutPoint,
		Content:   models.NewContent(te.track.Type.ClipKind()),
	}
	if err := applyContent(op, uuid.Nil, c.Content, in.ContentFields); err != nil {
		return models.Clip{}, err
	}
	if err := checkRanges(op, uuid.Nil, c); err != nil {
		return models.Clip{}, err
	}

	m.clips[c.ID] = &c
	te.clips = append(te.clips, c.ID)
	m.touch()
	return c.Clone(), nil
}

func (m *Model) Clip(id uuid.UUID) (models.Clip, bool) {
	c, ok := m.clips[id]
	if !ok {
		return models.Clip{}, false
	}
	return c.Clone(), true
}

// ClipIndex returns the clip's position within its track's clip list.
func (m *Model) ClipIndex(id uuid.UUID) int {
	c, ok := m.clips[id]
	if !ok {
		return -1
	}
	for i, cid := range m.tracks[c.TrackID].clips {
		if cid == id {
			return i
		}
	}
	return -1
}

func (m *Model) RemoveClip(id uuid.UUID) error {
	c, ok := m.clips[id]
	if !ok {
		return opError("remove clip", id, ErrClipNotFound)
	}
	te := m.tracks[c.TrackID]
	if te.track.IsLocked {
		return opError("remove clip", id, ErrTrackLocked)
	}
	te.clips = without(te.clips, id)
	delete(m.clips, id)
	m.touch()
	return nil
}

// UpdateClip shallow-merges patch into the clip and returns the result.
func (m *Model) UpdateClip(id uuid.UUID, patch ClipPatch) (models.Clip, error) {
	const op = "update clip"
	cur, ok := m.clips[id]
	if !ok {
		return models.Clip{}, opError(op, id, ErrClipNotFound)
	}
	if err := validation.Struct(patch); err != nil {
		return models.Clip{}, invalid(op, id, err.Error())
	}
	from := m.tracks[cur.TrackID]
	if from.track.IsLocked {
		return models.Clip{}, opError(op, id, ErrTrackLocked)
	}

	next := cur.Clone()
	to := from
	if patch.TrackID != nil && *patch.TrackID != cur.TrackID {
		te, ok := m.tracks[*patch.TrackID]
		if !ok {
			return models.Clip{}, opError(op, *patch.TrackID, ErrTrackNotFound)
		}
		if te.track.IsLocked {
			return models.Clip{}, opError(op, *patch.TrackID, ErrTrackLocked)
		}
		if te.track.Type.ClipKind() != next.Kind() {
			return models.Clip{}, opError(op, id, fmt.Errorf("%w: cannot move a %s clip to a %s track", ErrKindMismatch, next.Kind(), te.track.Type))
		}
		to = te
		next.TrackID = te.track.ID
	}
	if patch.AssetID != nil {
		next.AssetID = *patch.AssetID
	}
	if patch.AssetID != nil || to != from {
		if err := m.checkPlacement(op, next.AssetID, to.track); err != nil {
			return models.Clip{}, err
		}
	}
	if patch.StartTime != nil {
		next.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		next.EndTime = *patch.EndTime
	}
	if patch.InPoint != nil {
		next.InPoint = *patch.InPoint
	}
	if patch.OutPoint != nil {
		next.OutPoint = *patch.OutPoint
	}
	if err := applyContent(op, id, next.Content, patch.ContentFields); err != nil {
		return models.Clip{}, err
	}
	if err := checkRanges(op, id, next); err != nil {
		return models.Clip{}, err
	}

	// commit
	if to != from {
		from.clips = without(from.clips, id)
		to.clips = append(to.clips, id)
	}
	*cur = next
	m.touch()
	return next.Clone(), nil
}

func (m *Model) checkPlacement(op string, assetID uuid.UUID, t models.Track) error {
	a, ok := m.assets[assetID]
	if !ok {
		return opError(op, assetID, ErrAssetNotFound)
	}
	if !a.Type.PlaceableOn(t.Type) {
		return opError(op, assetID, fmt.Errorf("%w: %s asset on %s track", ErrKindMismatch, a.Type, t.Type))
	}
	return nil
}

func checkRanges(op string, id uuid.UUID, c models.Clip) error {
	for _, v := range []float64{c.StartTime, c.EndTime, c.InPoint, c.OutPoint} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid(op, id, "times must be finite")
		}
	}
	if c.EndTime <= c.StartTime {
		return opError(op, id, ErrInvalidTimeRange)
	}
	if c.InPoint < 0 || c.OutPoint < c.InPoint {
		return opError(op, id, ErrInvalidSourceRange)
	}
	return nil
}

// ── Settings ──────────────────────────────────────────────────────────────────

func (m *Model) UpdateSettings(patch SettingsPatch) (models.Settings, error) {
	if err := validation.Struct(patch); err != nil {
		return m.settings, opError("update settings", m.id, fmt.Errorf("%w: %v", ErrInvalidSettings, err))
	}
	s := m.settings
	if patch.Width != nil {
		s.Width = *patch.Width
	}
	if patch.Height != nil {
		s.Height = *patch.Height
	}
	if patch.FrameRate != nil {
		s.FrameRate = *patch.FrameRate
	}
	if patch.Duration != nil {
		s.Duration = *patch.Duration
	}
	m.settings = s
	m.touch()
	return s, nil
}

// ContentEnd is the latest clip end time across all tracks, 0 for an empty timeline.
func (m *Model) ContentEnd() float64 {
	end := 0.0
	for _, c := range m.clips {
		end = math.Max(end, c.EndTime)
	}
	return end
}

// ── Read views ────────────────────────────────────────────────────────────────

func (m *Model) materialize(te *trackEntry) models.Track {
	t := te.track
	t.Clips = make([]models.Clip, len(te.clips))
	for i, cid := range te.clips {
		t.Clips[i] = m.clips[cid].Clone()
	}
	return t
}

// Tracks returns deep copies of all tracks in lane order.
func (m *Model) Tracks() []models.Track {
	out := make([]models.Track, len(m.trackOrder))
	for i, tid := range m.trackOrder {
		out[i] = m.materialize(m.tracks[tid])
	}
	return out
}

func (m *Model) Assets() []models.Asset {
	out := make([]models.Asset, len(m.assetOrder))
	for i, aid := range m.assetOrder {
		out[i] = m.assets[aid].Clone()
	}
	return out
}

// Snapshot returns the whole project as a detached document.
func (m *Model) Snapshot() models.Project {
	return models.Project{
		ID:        m.id,
		Name:      m.name,
		CreatedAt: m.createdAt,
		UpdatedAt: m.updatedAt,
		Assets:    m.Assets(),
		Tracks:    m.Tracks(),
		Settings:  m.settings,
	}
}

func without(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
