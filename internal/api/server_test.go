package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacahan/trailtag/internal/agentpipeline"
	"github.com/sacahan/trailtag/internal/executor"
	"github.com/sacahan/trailtag/internal/metadatatool"
	"github.com/sacahan/trailtag/internal/model"
	"github.com/sacahan/trailtag/internal/stream"
	"github.com/sacahan/trailtag/internal/workflow"
)

// fakeRegistry is a minimal in-memory jobRegistry + jobs.Registry-compatible
// fake, also satisfying stream.Generator's jobReader and executor's
// jobRegistry interfaces (same method shapes).
type fakeRegistry struct {
	mu       sync.Mutex
	byID     map[string]model.Job
	byVideo  map[string]string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{byID: map[string]model.Job{}, byVideo: map[string]string{}}
}

func (f *fakeRegistry) Create(_ context.Context, job model.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[job.JobID] = job
	f.byVideo[job.VideoID] = job.JobID
}

func (f *fakeRegistry) Save(_ context.Context, job model.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[job.JobID] = job
}

func (f *fakeRegistry) Get(_ context.Context, jobID string) (model.Job, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.byID[jobID]
	return j, ok
}

func (f *fakeRegistry) ByVideo(_ context.Context, videoID string) (model.Job, bool) {
	f.mu.Lock()
	jobID, ok := f.byVideo[videoID]
	f.mu.Unlock()
	if !ok {
		return model.Job{}, false
	}
	return f.Get(context.Background(), jobID)
}

// fakeCache is a minimal cacheFacade fake with direct Set for test setup.
type fakeCache struct {
	mu   sync.Mutex
	data map[string]any
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]any{}} }

func (f *fakeCache) Get(_ context.Context, key string, _ map[string]any) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key]
}

func (f *fakeCache) Set(_ context.Context, key string, value any, _ map[string]any, _ int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Round-trip through JSON like the real cache facade does, so handlers
	// see the same any-typed shape (map[string]any) they would in production.
	data, err := json.Marshal(value)
	if err != nil {
		return false
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return false
	}
	f.data[key] = decoded
	return true
}

func newTestServer(subtitles metadatatool.Checker, pipeline agentpipeline.Pipeline) (*Server, *fakeRegistry, *fakeCache) {
	registry := newFakeRegistry()
	fcache := newFakeCache()
	exec := executor.New(2, registry)
	driver := workflow.New(pipeline, fcache)
	streamer := stream.New(registry, 5*time.Millisecond)
	srv := New(registry, exec, driver, fcache, streamer, subtitles, func() bool { return false }, "test")
	return srv, registry, fcache
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(&metadatatool.Stub{}, &agentpipeline.Stub{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["degraded"])
}

func TestHandleAnalyzeInvalidURL(t *testing.T) {
	srv, _, _ := newTestServer(&metadatatool.Stub{}, &agentpipeline.Stub{})
	body, _ := json.Marshal(AnalyzeRequest{URL: "https://example.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/videos/analyze", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, "INVALID_URL", apiErr.Code)
}

func TestHandleAnalyzeNoSubtitles(t *testing.T) {
	subtitles := &metadatatool.Stub{Available: map[string]model.SubtitleStatus{}}
	srv, _, _ := newTestServer(subtitles, &agentpipeline.Stub{})
	body, _ := json.Marshal(AnalyzeRequest{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	req := httptest.NewRequest(http.MethodPost, "/api/videos/analyze", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, "SUBTITLES_UNAVAILABLE", apiErr.Code)
}

func TestHandleAnalyzeSubmitsQueuedJob(t *testing.T) {
	videoID := "dQw4w9WgXcQ"
	subtitles := &metadatatool.Stub{Available: map[string]model.SubtitleStatus{
		videoID: model.NewSubtitleStatus([]string{"zh-TW"}, nil, "zh-TW"),
	}}
	pipeline := &agentpipeline.Stub{Subtitles: "zh-TW", Topic: "test", Routes: []model.RouteItem{
		{Location: "台北", Coordinates: &model.LonLat{Lon: 121.5, Lat: 25.0}},
	}}
	srv, registry, _ := newTestServer(subtitles, pipeline)

	body, _ := json.Marshal(AnalyzeRequest{URL: "https://www.youtube.com/watch?v=" + videoID})
	req := httptest.NewRequest(http.MethodPost, "/api/videos/analyze", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var job model.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, videoID, job.VideoID)
	assert.False(t, job.Cached)

	assert.Eventually(t, func() bool {
		j, ok := registry.Get(context.Background(), job.JobID)
		return ok && j.Status == model.JobStatusDone
	}, time.Second, 5*time.Millisecond)
}

func TestHandleGetJobNotFound(t *testing.T) {
	srv, _, _ := newTestServer(&metadatatool.Stub{}, &agentpipeline.Stub{})
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, "JOB_NOT_FOUND", apiErr.Code)
	assert.Contains(t, apiErr.Details, "missing")
}

func TestHandleGetLocationsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(&metadatatool.Stub{}, &agentpipeline.Stub{})
	req := httptest.NewRequest(http.MethodGet, "/api/videos/unknown/locations", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, "LOCATIONS_NOT_FOUND", apiErr.Code)
}

func TestHandleGetJobByVideoNotFound(t *testing.T) {
	srv, _, _ := newTestServer(&metadatatool.Stub{}, &agentpipeline.Stub{})
	req := httptest.NewRequest(http.MethodGet, "/api/videos/unknown/job", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, "VIDEO_JOB_NOT_FOUND", apiErr.Code)
}

func TestHandleCheckSubtitles(t *testing.T) {
	videoID := "dQw4w9WgXcQ"
	subtitles := &metadatatool.Stub{Available: map[string]model.SubtitleStatus{
		videoID: model.NewSubtitleStatus(nil, []string{"en"}, "en"),
	}}
	srv, _, _ := newTestServer(subtitles, &agentpipeline.Stub{})
	req := httptest.NewRequest(http.MethodGet, "/api/videos/"+videoID+"/subtitles/check", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var status model.SubtitleStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Available)
}

func TestHandleStreamEmitsErrorForMissingJob(t *testing.T) {
	srv, _, _ := newTestServer(&metadatatool.Stub{}, &agentpipeline.Stub{})
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/missing/stream", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, strings.Contains(w.Body.String(), "event: error"))
}

func TestHandleMetricsExposesPrometheusFormat(t *testing.T) {
	srv, _, _ := newTestServer(&metadatatool.Stub{}, &agentpipeline.Stub{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "trailtag_")
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv, _, _ := newTestServer(&metadatatool.Stub{}, &agentpipeline.Stub{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
