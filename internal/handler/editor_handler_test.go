package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeline-editor/internal/compositor"
	"timeline-editor/internal/media"
	"timeline-editor/internal/models"
	"timeline-editor/internal/playback"
	"timeline-editor/internal/session"
	"timeline-editor/internal/worker"
)

type stubSource struct{}

func (stubSource) Open(context.Context, string) (io.ReadCloser, error) { return nil, io.EOF }
func (stubSource) Locate(_ context.Context, src string) (string, error) {
	return "/srv/" + src, nil
}

type stubProber struct{}

func (stubProber) Probe(context.Context, string) (media.Info, error) {
	return media.Info{DurationMs: 3000, HasVideo: true}, nil
}

type forgetful struct{ ids []uuid.UUID }

func (f *forgetful) Forget(id uuid.UUID) { f.ids = append(f.ids, id) }

type apiFixture struct {
	srv   *httptest.Server
	hub   *Hub
	jobs  *worker.Dispatcher
	cache *forgetful
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	comp := compositor.New(nil, compositor.WithLogger(log))
	hub := NewHub(log, func() []session.Option {
		return []session.Option{
			session.WithCompositor(comp),
			session.WithLogger(log),
			session.WithClockOptions(playback.WithTick(0)),
		}
	})
	jobs := worker.NewDispatcher(1, 4, log)
	jobs.Run()
	cache := &forgetful{}
	h := &EditorHandler{Hub: hub, Jobs: jobs, Source: stubSource{}, Prober: stubProber{}, Cache: cache, Log: log}

	r := mux.NewRouter()
	h.Routes(r.PathPrefix("/api/v1").Subrouter())
	srv := httptest.NewServer(RequestLogger(log)(r))
	t.Cleanup(func() {
		srv.Close()
		jobs.Stop(context.Background())
		hub.Close()
	})
	return &apiFixture{srv: srv, hub: hub, jobs: jobs, cache: cache}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+"/api/v1"+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *apiFixture) create(t *testing.T) models.EditorState {
	t.Helper()
	var st models.EditorState
	require.Equal(t, http.StatusCreated, f.do(t, "POST", "/sessions", map[string]string{"name": "Promo"}, &st))
	return st
}

func TestCreateAndGetSession(t *testing.T) {
	f := newAPI(t)
	st := f.create(t)
	assert.Equal(t, "Promo", st.Project.Name)
	assert.Len(t, st.Project.Tracks, 2)
	assert.Equal(t, models.Paused, st.PlaybackState)

	var got models.EditorState
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/sessions/"+st.SessionID.String(), nil, &got))
	assert.Equal(t, st.Project.ID, got.Project.ID)

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/sessions/"+uuid.NewString(), nil, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/sessions/not-a-uuid", nil, nil))
}

func TestCreateSessionWithoutBody(t *testing.T) {
	f := newAPI(t)
	resp, err := http.Post(f.srv.URL+"/api/v1/sessions", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestClipLifecycle(t *testing.T) {
	f := newAPI(t)
	st := f.create(t)
	base := "/sessions/" + st.SessionID.String()
	video := st.Project.Tracks[0]

	var asset models.Asset
	require.Equal(t, http.StatusCreated, f.do(t, "POST", base+"/assets",
		map[string]any{"name": "logo", "type": "image", "src": "logo.png"}, &asset))

	var clip models.Clip
	require.Equal(t, http.StatusCreated, f.do(t, "POST", base+"/clips", map[string]any{
		"assetId": asset.ID, "trackId": video.ID, "startTime": 0, "endTime": 2000,
	}, &clip))
	assert.Equal(t, models.ClipVideo, clip.Kind())

	var updated models.Clip
	require.Equal(t, http.StatusOK, f.do(t, "PATCH", base+"/clips/"+clip.ID.String(),
		map[string]any{"endTime": 4000}, &updated))
	assert.Equal(t, 4000.0, updated.EndTime)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, "PATCH", base+"/clips/"+clip.ID.String(),
		map[string]any{"endTime": 0}, nil), "end before start")

	var active struct {
		Time  float64      `json:"time"`
		Clips []activeClip `json:"clips"`
	}
	require.Equal(t, http.StatusOK, f.do(t, "GET", base+"/active?t=1000", nil, &active))
	require.Len(t, active.Clips, 1)
	assert.Equal(t, clip.ID, active.Clips[0].Clip.ID)

	// Locked tracks refuse edits.
	require.Equal(t, http.StatusOK, f.do(t, "PATCH", base+"/tracks/"+video.ID.String(), map[string]any{"locked": true}, nil))
	assert.Equal(t, http.StatusConflict, f.do(t, "DELETE", base+"/clips/"+clip.ID.String(), nil, nil))
	require.Equal(t, http.StatusOK, f.do(t, "PATCH", base+"/tracks/"+video.ID.String(), map[string]any{"locked": false}, nil))

	var removed struct {
		RemovedClipIDs []uuid.UUID `json:"removedClipIds"`
	}
	require.Equal(t, http.StatusOK, f.do(t, "DELETE", base+"/assets/"+asset.ID.String(), nil, &removed))
	assert.Equal(t, []uuid.UUID{clip.ID}, removed.RemovedClipIDs)
	assert.Equal(t, []uuid.UUID{asset.ID}, f.cache.ids)
}

func TestRejectedTrackPatchChangesNothing(t *testing.T) {
	f := newAPI(t)
	st := f.create(t)
	base := "/sessions/" + st.SessionID.String()
	track := base + "/tracks/" + st.Project.Tracks[0].ID.String()

	assert.Equal(t, http.StatusBadRequest, f.do(t, "PATCH", track, map[string]any{"locked": true, "name": ""}, nil))

	var got models.EditorState
	require.Equal(t, http.StatusOK, f.do(t, "GET", base, nil, &got))
	assert.False(t, got.Project.Tracks[0].IsLocked)
	assert.Equal(t, st.Project.Tracks[0].Name, got.Project.Tracks[0].Name)

	var tr models.Track
	require.Equal(t, http.StatusOK, f.do(t, "PATCH", track, map[string]any{"locked": true, "name": "Main"}, &tr))
	assert.True(t, tr.IsLocked)
	assert.Equal(t, "Main", tr.Name)
}

func TestBadRequests(t *testing.T) {
	f := newAPI(t)
	st := f.create(t)
	base := "/sessions/" + st.SessionID.String()

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", base+"/assets", map[string]any{"type": "image"}, nil), "name required")
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", base+"/assets", map[string]any{"name": "x", "type": "image", "bogus": 1}, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, "POST", base+"/tracks", map[string]any{"type": "effect"}, nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, "DELETE", base+"/clips/"+uuid.NewString(), nil, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", base+"/time", map[string]any{"time": 1, "edge": "next"}, nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", base+"/selection", map[string]any{"kind": "clip", "id": uuid.New()}, nil))
}

func TestSettingsDurationIsBounded(t *testing.T) {
	f := newAPI(t)
	st := f.create(t)
	base := "/sessions/" + st.SessionID.String()

	assert.Equal(t, http.StatusBadRequest, f.do(t, "PATCH", base+"/settings", map[string]any{"duration": 1e20}, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, "PATCH", base+"/settings", map[string]any{"duration": models.MaxDuration + 1}, nil))

	var ruler struct {
		Duration float64 `json:"duration"`
		Ticks    []any   `json:"ticks"`
	}
	require.Equal(t, http.StatusOK, f.do(t, "GET", base+"/ruler", nil, &ruler))
	assert.Zero(t, ruler.Duration, "rejected patch left settings alone")
	assert.NotEmpty(t, ruler.Ticks)
}

func TestTransportAndZoom(t *testing.T) {
	f := newAPI(t)
	st := f.create(t)
	base := "/sessions/" + st.SessionID.String()

	assert.Equal(t, http.StatusConflict, f.do(t, "POST", base+"/playback/play", nil, nil), "empty timeline")

	var settings models.Settings
	require.Equal(t, http.StatusOK, f.do(t, "PATCH", base+"/settings", map[string]any{"duration": 10000}, &settings))
	assert.Equal(t, 10000.0, settings.Duration)

	var tr struct {
		CurrentTime   float64              `json:"currentTime"`
		PlaybackState models.PlaybackState `json:"playbackState"`
	}
	require.Equal(t, http.StatusOK, f.do(t, "POST", base+"/playback/play", nil, &tr))
	assert.Equal(t, models.Playing, tr.PlaybackState)
	require.Equal(t, http.StatusOK, f.do(t, "POST", base+"/playback/toggle", nil, &tr))
	assert.Equal(t, models.Paused, tr.PlaybackState)

	require.Equal(t, http.StatusOK, f.do(t, "PUT", base+"/time", map[string]any{"time": 99999}, &tr))
	assert.Equal(t, 10000.0, tr.CurrentTime, "clamped to duration")

	var z map[string]float64
	require.Equal(t, http.StatusOK, f.do(t, "PUT", base+"/zoom", map[string]any{"zoom": 2}, &z))
	assert.Equal(t, 2.0, z["zoom"])
	require.Equal(t, http.StatusOK, f.do(t, "PUT", base+"/time", map[string]any{"position": 100}, &tr))
	assert.Equal(t, 500.0, tr.CurrentTime)

	var ruler struct {
		Ticks []json.RawMessage `json:"ticks"`
	}
	require.Equal(t, http.StatusOK, f.do(t, "GET", base+"/ruler", nil, &ruler))
	assert.NotEmpty(t, ruler.Ticks)
}

func TestFramePNG(t *testing.T) {
	f := newAPI(t)
	st := f.create(t)

	resp, err := http.Get(f.srv.URL + "/api/v1/sessions/" + st.SessionID.String() + "/frame.png?grid=true")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "0", resp.Header.Get("X-Skipped-Layers"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 1920, img.Bounds().Dx())
	assert.Equal(t, 1080, img.Bounds().Dy())
}

func TestImportAssetJob(t *testing.T) {
	f := newAPI(t)
	st := f.create(t)

	var accepted map[string]string
	require.Equal(t, http.StatusAccepted, f.do(t, "POST", "/sessions/"+st.SessionID.String()+"/assets/import",
		map[string]any{"src": "raw/intro.mp4"}, &accepted))
	jobID := accepted["jobId"]
	require.NotEmpty(t, jobID)

	require.NoError(t, f.jobs.Stop(context.Background()))
	var res worker.Result
	require.Equal(t, http.StatusOK, f.do(t, "GET", "/jobs/"+jobID, nil, &res))
	assert.Equal(t, worker.StatusDone, res.Status)

	s, err := f.hub.Get(st.SessionID)
	require.NoError(t, err)
	assets := s.Snapshot().Assets
	require.Len(t, assets, 1)
	assert.Equal(t, "intro.mp4", assets[0].Name)
	require.NotNil(t, assets[0].Duration)
	assert.Equal(t, 3000.0, *assets[0].Duration)

	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, "POST", "/sessions/"+st.SessionID.String()+"/assets/import",
		map[string]any{"src": "raw/outro.mp4"}, nil), "dispatcher stopped")
}

func TestPersistenceWithoutDatabase(t *testing.T) {
	f := newAPI(t)
	st := f.create(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, "POST", "/sessions/"+st.SessionID.String()+"/save", nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, "GET", "/projects", nil, nil))
}

func TestCloseSession(t *testing.T) {
	f := newAPI(t)
	st := f.create(t)
	assert.Equal(t, 1, f.hub.Len())
	assert.Equal(t, http.StatusOK, f.do(t, "DELETE", "/sessions/"+st.SessionID.String(), nil, nil))
	assert.Equal(t, 0, f.hub.Len())
	assert.Equal(t, http.StatusNotFound, f.do(t, "DELETE", "/sessions/"+st.SessionID.String(), nil, nil))
}
