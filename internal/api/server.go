// Package api implements the HTTP Surface (C8): the public REST/SSE
// endpoints spec §4.8 defines, wiring together the Job Registry (C4), the
// Executor (C5), the Workflow Driver (C6), the Progress Event Stream (C7),
// and the Cache Facade. See spec §6.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sacahan/trailtag/internal/executor"
	"github.com/sacahan/trailtag/internal/log"
	"github.com/sacahan/trailtag/internal/metadatatool"
	"github.com/sacahan/trailtag/internal/model"
	"github.com/sacahan/trailtag/internal/stream"
	"github.com/sacahan/trailtag/internal/videoid"
	"github.com/sacahan/trailtag/internal/workflow"
)

// jobRegistry is the subset of *jobs.Registry the HTTP surface needs.
type jobRegistry interface {
	Create(ctx context.Context, job model.Job)
	Get(ctx context.Context, jobID string) (model.Job, bool)
	ByVideo(ctx context.Context, videoID string) (model.Job, bool)
}

// cacheFacade is the subset of *cache.Cache the HTTP surface needs.
type cacheFacade interface {
	Get(ctx context.Context, key string, params map[string]any) any
}

// Server holds every collaborator the HTTP surface dispatches to. The
// executor, driver and stream generator are held concretely rather than
// behind local interfaces: each already declares a typed Workflow/
// ProgressFunc contract between C5 and C6, and redeclaring it here would
// just be a second, incompatible copy of the same named function type.
type Server struct {
	registry   jobRegistry
	executor   *executor.Executor
	driver     *workflow.Driver
	cache      cacheFacade
	streamer   *stream.Generator
	subtitles  metadatatool.Checker
	validate   *validator.Validate
	version    string
	isDegraded func() bool
}

// New constructs a Server. serviceVersion is reported from /health.
func New(
	registry jobRegistry,
	exec *executor.Executor,
	driver *workflow.Driver,
	c cacheFacade,
	streamer *stream.Generator,
	subtitles metadatatool.Checker,
	isDegraded func() bool,
	serviceVersion string,
) *Server {
	return &Server{
		registry:   registry,
		executor:   exec,
		driver:     driver,
		cache:      c,
		streamer:   streamer,
		subtitles:  subtitles,
		validate:   validator.New(),
		version:    serviceVersion,
		isDegraded: isDegraded,
	}
}

// Handler builds the routed, middleware-wrapped http.Handler for the whole
// HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/videos/analyze", s.handleAnalyze)
	r.Get("/api/jobs/{job_id}", s.handleGetJob)
	r.Get("/api/jobs/{job_id}/stream", s.handleStream)
	r.Get("/api/videos/{video_id}/locations", s.handleGetLocations)
	r.Get("/api/videos/{video_id}/subtitles/check", s.handleCheckSubtitles)
	r.Get("/api/videos/{video_id}/job", s.handleGetJobByVideo)
	return applyMiddleware(r, "trailtag-api")
}

// handleHealth reports liveness plus cache-degradation status, grounded on
// health_check in original_source/src/api/main.py.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	degraded := s.isDegraded != nil && s.isDegraded()
	status := "ok"
	if degraded {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
		"degraded":  degraded,
	})
}

// handleAnalyze implements POST /api/videos/analyze, grounded on
// analyze_video in original_source/src/api/routes/main_routes.py: extract
// video_id, pre-check subtitles (422 only when they are unavailable and no
// cached analysis exists), reuse a cached analysis synchronously if present,
// otherwise create a queued job and submit it for background execution.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.WithContext(ctx, log.WithComponent("api"))

	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, ErrValidation, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		RespondError(w, r, http.StatusBadRequest, ErrValidation, err.Error())
		return
	}

	videoID, err := videoid.Extract(req.URL)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, ErrInvalidURL, err.Error())
		return
	}

	subtitleStatus, err := s.subtitles.CheckSubtitles(ctx, videoID)
	if err != nil {
		logger.Warn().Err(err).Str("video_id", videoID).Msg("subtitle check failed, treating as unavailable")
		subtitleStatus = model.SubtitleStatus{Available: false}
	}
	cached := s.cache.Get(ctx, "analysis:"+videoID, nil)
	if !subtitleStatus.Available && cached == nil {
		RespondError(w, r, http.StatusUnprocessableEntity, ErrSubtitlesUnavailable, map[string]any{
			"suggestion":      "請選擇有字幕的影片，或者等待 YouTube 生成自動字幕後再試",
			"video_id":        videoID,
			"subtitle_status": subtitleStatus,
		})
		return
	}

	now := time.Now().UTC()

	if cached != nil {
		job := model.Job{
			JobID:                uuid.New().String(),
			VideoID:              videoID,
			Status:               model.JobStatusDone,
			Phase:                model.PhaseGeocode,
			Progress:             100,
			Cached:               true,
			SubtitleAvailability: subtitleStatus,
		}
		job.Touch(now)
		s.registry.Create(ctx, job)
		respondJSON(w, http.StatusOK, job)
		return
	}

	job := model.Job{
		JobID:                uuid.New().String(),
		VideoID:              videoID,
		Status:               model.JobStatusQueued,
		Phase:                model.PhaseNone,
		Progress:             0,
		Cached:               false,
		SubtitleAvailability: subtitleStatus,
	}
	job.Touch(now)
	s.registry.Create(ctx, job)

	if _, err := s.executor.Submit(job, s.driver.Execute); err != nil {
		logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to submit job")
		RespondError(w, r, http.StatusInternalServerError, ErrInternal)
		return
	}
	logger.Info().Str("event", "job_created").Str("job_id", job.JobID).Str("video_id", videoID).Msg("job submitted")

	respondJSON(w, http.StatusOK, job)
}

// handleGetJob implements GET /api/jobs/{job_id}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, ok := s.registry.Get(r.Context(), jobID)
	if !ok {
		RespondError(w, r, http.StatusNotFound, ErrJobNotFound, "任務不存在: "+jobID)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// handleGetLocations implements GET /api/videos/{video_id}/locations.
func (s *Server) handleGetLocations(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "video_id")
	raw := s.cache.Get(r.Context(), "analysis:"+videoID, nil)
	if raw == nil {
		RespondError(w, r, http.StatusNotFound, ErrLocationsNotFound, "找不到影片地點資料: "+videoID)
		return
	}
	mv, err := decodeMapVisualization(raw)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, mv)
}

// handleCheckSubtitles implements GET /api/videos/{video_id}/subtitles/check.
func (s *Server) handleCheckSubtitles(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "video_id")
	status, err := s.subtitles.CheckSubtitles(r.Context(), videoID)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, "無法檢查影片字幕狀態: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleGetJobByVideo implements GET /api/videos/{video_id}/job, grounded on
// get_job_by_video in main_routes.py.
func (s *Server) handleGetJobByVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "video_id")
	job, ok := s.registry.ByVideo(r.Context(), videoID)
	if !ok {
		RespondError(w, r, http.StatusNotFound, ErrVideoJobNotFound, "找不到針對影片的進行中任務: "+videoID)
		return
	}
	resp := JobStatusResponse{
		JobID:    job.JobID,
		Status:   job.Status,
		Phase:    job.Phase,
		Progress: job.Progress,
		Stats:    map[string]any{},
	}
	if job.Status == model.JobStatusFailed || job.Status == model.JobStatusCanceled {
		resp.Error = job.Error
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleStream implements GET /api/jobs/{job_id}/stream. It sets SSE
// headers, then delegates to the Progress Event Stream generator (C7),
// which owns framing and termination.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := s.streamer.Stream(r.Context(), jobID, w); err != nil {
		log.WithContext(r.Context(), log.WithComponent("api")).Warn().Err(err).Str("job_id", jobID).Msg("stream ended with error")
	}
}
