package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"timeline-editor/internal/compositor"
	"timeline-editor/internal/jobs"
	"timeline-editor/internal/media"
	"timeline-editor/internal/models"
	"timeline-editor/internal/project"
	"timeline-editor/internal/service"
	"timeline-editor/internal/session"
	"timeline-editor/internal/storage"
	"timeline-editor/internal/validation"
	"timeline-editor/internal/worker"
)

const maxBodyBytes = 1 << 20

// AssetCache is told when an asset leaves a session so decoded pixels can go.
type AssetCache interface {
	Forget(id uuid.UUID)
}

type EditorHandler struct {
	Hub      *Hub
	Projects *service.ProjectService // nil disables save/open
	Jobs     *worker.Dispatcher
	Source   storage.Source
	Prober   media.Prober
	Cache    AssetCache
	Log      logrus.FieldLogger
}

// Routes mounts the editor API on r, which is expected to be the /api/v1 subrouter.
func (h *EditorHandler) Routes(r *mux.Router) {
	r.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	r.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	r.HandleFunc("/sessions/{id}", h.RenameProject).Methods("PATCH")
	r.HandleFunc("/sessions/{id}", h.CloseSession).Methods("DELETE")

	r.HandleFunc("/sessions/{id}/assets", h.AddAsset).Methods("POST")
	r.HandleFunc("/sessions/{id}/assets/import", h.ImportAsset).Methods("POST")
	r.HandleFunc("/sessions/{id}/assets/{assetId}", h.RemoveAsset).Methods("DELETE")

	r.HandleFunc("/sessions/{id}/tracks", h.AddTrack).Methods("POST")
	r.HandleFunc("/sessions/{id}/tracks/{trackId}", h.UpdateTrack).Methods("PATCH")
	r.HandleFunc("/sessions/{id}/tracks/{trackId}", h.RemoveTrack).Methods("DELETE")

	r.HandleFunc("/sessions/{id}/clips", h.AddClip).Methods("POST")
	r.HandleFunc("/sessions/{id}/clips/{clipId}", h.UpdateClip).Methods("PATCH")
	r.HandleFunc("/sessions/{id}/clips/{clipId}", h.RemoveClip).Methods("DELETE")

	r.HandleFunc("/sessions/{id}/selection", h.Select).Methods("POST")
	r.HandleFunc("/sessions/{id}/time", h.Seek).Methods("PUT")
	r.HandleFunc("/sessions/{id}/playback/{action:play|pause|toggle}", h.Playback).Methods("POST")
	r.HandleFunc("/sessions/{id}/zoom", h.SetZoom).Methods("PUT")
	r.HandleFunc("/sessions/{id}/settings", h.UpdateSettings).Methods("PATCH")
	r.HandleFunc("/sessions/{id}/ruler", h.Ruler).Methods("GET")
	r.HandleFunc("/sessions/{id}/active", h.Active).Methods("GET")
	r.HandleFunc("/sessions/{id}/frame.png", h.Frame).Methods("GET")
	r.HandleFunc("/sessions/{id}/save", h.Save).Methods("POST")

	r.HandleFunc("/projects", h.ListProjects).Methods("GET")
	r.HandleFunc("/projects/{projectId}/open", h.OpenProject).Methods("POST")
	r.HandleFunc("/projects/{projectId}", h.DeleteProject).Methods("DELETE")

	r.HandleFunc("/jobs/{jobId}", h.JobStatus).Methods("GET")
}

// ── Sessions ──────────────────────────────────────────────────────────────────

func (h *EditorHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"max=255"`
	}
	if !h.decode(w, r, &req, true) {
		return
	}
	var opts []session.Option
	if req.Name != "" {
		opts = append(opts, session.WithProjectOptions(project.WithName(req.Name)))
	}
	s := h.Hub.Open(opts...)
	respond(w, http.StatusCreated, s.State())
}

func (h *EditorHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, s.State())
}

func (h *EditorHandler) RenameProject(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !h.decode(w, r, &req, false) {
		return
	}
	if err := s.Rename(req.Name); err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, s.State())
}

func (h *EditorHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Hub.CloseSession(id); err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "closed"})
}

// ── Assets ────────────────────────────────────────────────────────────────────

func (h *EditorHandler) AddAsset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in project.AssetInput
	if !h.decode(w, r, &in, false) {
		return
	}
	a, err := s.AddAsset(in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, a)
}

// ImportAsset queues a probe-and-add job. Name, type and duration are filled
// in from the source when left out.
func (h *EditorHandler) ImportAsset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Name     string           `json:"name" validate:"max=255"`
		Type     models.AssetType `json:"type" validate:"omitempty,oneof=video image audio text"`
		Src      string           `json:"src" validate:"required,max=4096"`
		Duration *float64         `json:"duration" validate:"omitempty,gte=0"`
	}
	if !h.decode(w, r, &req, false) {
		return
	}
	in := project.AssetInput{Name: req.Name, Type: req.Type, Src: req.Src, Duration: req.Duration}
	if h.Jobs == nil || h.Prober == nil || h.Source == nil {
		writeError(w, http.StatusServiceUnavailable, "media import is not configured")
		return
	}
	job := jobs.NewImportAsset(in, s, h.Source, h.Prober)
	job.Log = h.Log.WithField("session_id", s.ID())
	if err := h.Jobs.Submit(job); err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusAccepted, map[string]string{"jobId": job.ID()})
}

func (h *EditorHandler) RemoveAsset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "assetId")
	if !ok {
		return
	}
	removed, err := s.RemoveAsset(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if h.Cache != nil {
		h.Cache.Forget(id)
	}
	respond(w, http.StatusOK, map[string]any{"removedClipIds": nonNil(removed)})
}

// ── Tracks ────────────────────────────────────────────────────────────────────

func (h *EditorHandler) AddTrack(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Type models.TrackType `json:"type" validate:"required"`
	}
	if !h.decode(w, r, &req, false) {
		return
	}
	t, err := s.AddTrack(req.Type)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, t)
}

// UpdateTrack sets any of locked, visible and name. The patch is applied as a
// whole or not at all.
func (h *EditorHandler) UpdateTrack(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "trackId")
	if !ok {
		return
	}
	var patch project.TrackPatch
	if !h.decode(w, r, &patch, false) {
		return
	}
	t, err := s.UpdateTrack(id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, t)
}

func (h *EditorHandler) RemoveTrack(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "trackId")
	if !ok {
		return
	}
	removed, err := s.RemoveTrack(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"removedClipIds": nonNil(removed)})
}

// ── Clips ─────────────────────────────────────────────────────────────────────

func (h *EditorHandler) AddClip(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var in project.ClipInput
	if !h.decode(w, r, &in, false) {
		return
	}
	c, err := s.AddClip(in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, c)
}

func (h *EditorHandler) UpdateClip(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "clipId")
	if !ok {
		return
	}
	var patch project.ClipPatch
	if !h.decode(w, r, &patch, false) {
		return
	}
	c, err := s.UpdateClip(id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, c)
}

func (h *EditorHandler) RemoveClip(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "clipId")
	if !ok {
		return
	}
	if err := s.RemoveClip(id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Selection, playhead, zoom ─────────────────────────────────────────────────

func (h *EditorHandler) Select(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Kind     string    `json:"kind" validate:"oneof=asset clip track none"`
		ID       uuid.UUID `json:"id"`
		Additive bool      `json:"additive"`
	}
	if !h.decode(w, r, &req, false) {
		return
	}
	var err error
	switch req.Kind {
	case "asset":
		err = s.SelectAsset(req.ID)
	case "clip":
		err = s.SelectClip(req.ID, req.Additive)
	case "track":
		err = s.SelectTrack(req.ID, req.Additive)
	default:
		s.ClearSelection()
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, s.State())
}

// Seek accepts exactly one of time (ms), position (ruler px at the current
// zoom) or edge ("next" / "prev").
func (h *EditorHandler) Seek(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Time     *float64 `json:"time"`
		Position *float64 `json:"position"`
		Edge     string   `json:"edge" validate:"omitempty,oneof=next prev"`
	}
	if !h.decode(w, r, &req, false) {
		return
	}
	set := 0
	for _, b := range []bool{req.Time != nil, req.Position != nil, req.Edge != ""} {
		if b {
			set++
		}
	}
	if set != 1 {
		writeError(w, http.StatusBadRequest, "exactly one of time, position or edge is required")
		return
	}

	var t float64
	switch {
	case req.Time != nil:
		t = s.SetCurrentTime(*req.Time)
	case req.Position != nil:
		t = s.SeekToPosition(*req.Position)
	case req.Edge == "next":
		t, _ = s.SeekNextEdit()
	default:
		t, _ = s.SeekPrevEdit()
	}
	respond(w, http.StatusOK, map[string]any{"currentTime": t, "playbackState": s.PlaybackState()})
}

func (h *EditorHandler) Playback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	switch mux.Vars(r)["action"] {
	case "play":
		if !s.Play() {
			writeError(w, http.StatusConflict, "nothing to play: timeline is empty")
			return
		}
	case "pause":
		s.Pause()
	case "toggle":
		s.TogglePlayback()
	}
	respond(w, http.StatusOK, map[string]any{"currentTime": s.CurrentTime(), "playbackState": s.PlaybackState()})
}

func (h *EditorHandler) SetZoom(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Zoom float64 `json:"zoom"`
	}
	if !h.decode(w, r, &req, false) {
		return
	}
	respond(w, http.StatusOK, map[string]float64{"zoom": s.SetZoom(req.Zoom)})
}

func (h *EditorHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var patch project.SettingsPatch
	if !h.decode(w, r, &patch, false) {
		return
	}
	st, err := s.UpdateSettings(patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, st)
}

// ── Derived views ─────────────────────────────────────────────────────────────

func (h *EditorHandler) Ruler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	m := s.Mapper()
	respond(w, http.StatusOK, map[string]any{
		"zoom":     m.Zoom,
		"duration": s.Duration(),
		"width":    m.TimeToPosition(s.Duration()),
		"ticks":    s.Ruler(),
	})
}

type activeClip struct {
	Clip       models.Clip `json:"clip"`
	TrackID    uuid.UUID   `json:"trackId"`
	TrackType  string      `json:"trackType"`
	Lane       int         `json:"lane"`
	SourceTime float64     `json:"sourceTime"`
}

// Active lists the clips under the playhead, or under ?t= when given.
func (h *EditorHandler) Active(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	t := s.CurrentTime()
	if q := r.URL.Query().Get("t"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "t must be a number of milliseconds")
			return
		}
		t = v
	}
	out := []activeClip{}
	for _, a := range s.ActiveAt(t) {
		out = append(out, activeClip{
			Clip:       a.Clip,
			TrackID:    a.Track.ID,
			TrackType:  string(a.Track.Type),
			Lane:       a.Lane,
			SourceTime: a.Clip.SourceTime(t),
		})
	}
	respond(w, http.StatusOK, map[string]any{"time": t, "clips": out})
}

// Frame renders the playhead frame as PNG. grid, titleSafe and actionSafe
// query flags overlay composition guides on the preview only.
func (h *EditorHandler) Frame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	rd := s.Renderer()
	if rd == nil {
		h.fail(w, r, session.ErrNoCompositor)
		return
	}
	f, err := rd.RenderNow(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	g := compositor.Guides{
		Grid:       flag(q.Get("grid")),
		TitleSafe:  flag(q.Get("titleSafe")),
		ActionSafe: flag(q.Get("actionSafe")),
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Time", strconv.FormatFloat(f.Time, 'f', -1, 64))
	w.Header().Set("X-Skipped-Layers", strconv.Itoa(len(f.Skipped())))
	if err := compositor.EncodePNG(w, compositor.Preview(f, g)); err != nil {
		h.Log.WithError(err).Warn("frame write failed")
	}
}

// ── Persistence ───────────────────────────────────────────────────────────────

func (h *EditorHandler) Save(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	doc := s.Snapshot()
	version, err := h.Projects.Save(r.Context(), doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"projectId": doc.ID, "version": version})
}

// OpenProject loads a saved project into a fresh session.
func (h *EditorHandler) OpenProject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "projectId")
	if !ok {
		return
	}
	m, version, err := h.Projects.Load(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s := h.Hub.Open(session.WithModel(m))
	respond(w, http.StatusCreated, map[string]any{"version": version, "state": s.State()})
}

func (h *EditorHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.Projects.List(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list)
}

func (h *EditorHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "projectId")
	if !ok {
		return
	}
	if err := h.Projects.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *EditorHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	if h.Jobs == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	res, ok := h.Jobs.Result(mux.Vars(r)["jobId"])
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	respond(w, http.StatusOK, res)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (h *EditorHandler) pathID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[key])
	if err != nil {
		writeError(w, http.StatusBadRequest, key+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *EditorHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return nil, false
	}
	s, err := h.Hub.Get(id)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return s, true
}

// decode reads a JSON body into v and runs struct validation. With optional
// set, an empty body is accepted.
func (h *EditorHandler) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return false
		}
	}
	if err := validation.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// fail maps domain errors onto status codes.
func (h *EditorHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.Log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, project.ErrAssetNotFound),
		errors.Is(err, project.ErrTrackNotFound),
		errors.Is(err, project.ErrClipNotFound),
		errors.Is(err, service.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, project.ErrTrackLocked):
		return http.StatusConflict
	case errors.Is(err, project.ErrKindMismatch),
		errors.Is(err, project.ErrInvalidTimeRange),
		errors.Is(err, project.ErrInvalidSourceRange),
		errors.Is(err, project.ErrInvalidTrackType),
		errors.Is(err, project.ErrInvalidSettings),
		errors.Is(err, project.ErrInvalidDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, project.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, worker.ErrQueueFull),
		errors.Is(err, worker.ErrStopped),
		errors.Is(err, service.ErrNoDatabase):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrNoCompositor):
		return http.StatusNotImplemented
	case errors.Is(err, compositor.ErrInvalidCanvas):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

func flag(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
