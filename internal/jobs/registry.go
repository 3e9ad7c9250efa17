// Package jobs implements the Job Registry & Video-Job Map (C4): a
// bidirectional mapping job_id -> Job and video_id -> current job_id,
// realized entirely through the Cache Facade's key spaces. See spec §4.4.
package jobs

import (
	"context"

	"github.com/sacahan/trailtag/internal/log"
	"github.com/sacahan/trailtag/internal/metrics"
	"github.com/sacahan/trailtag/internal/model"
)

// terminalTTLSeconds is the advisory TTL applied to a job record once it
// reaches a terminal state (spec §3: "TTL after terminal state: 60 seconds").
const terminalTTLSeconds = 60

// cacheFacade is the subset of *cache.Cache the registry needs.
type cacheFacade interface {
	Get(ctx context.Context, key string, params map[string]any) any
	Set(ctx context.Context, key string, value any, params map[string]any, ttl int) bool
	Delete(ctx context.Context, key string, params map[string]any)
}

// Registry is the Job Registry & Video-Job Map (C4).
type Registry struct {
	cache cacheFacade
}

// New constructs a Registry over the given Cache Facade.
func New(c cacheFacade) *Registry {
	return &Registry{cache: c}
}

func jobKey(jobID string) string      { return "job:" + jobID }
func videoJobKey(videoID string) string { return "video_job:" + videoID }

// Create writes the initial job:{job_id} record and the video_job:{video_id}
// mapping. Called once on submission, before the job is handed to the
// executor (C5).
func (r *Registry) Create(ctx context.Context, job model.Job) {
	r.cache.Set(ctx, jobKey(job.JobID), job, nil, 0)
	r.cache.Set(ctx, videoJobKey(job.VideoID), job.JobID, nil, 0)
}

// Save overwrites job:{job_id}. On a terminal transition it applies the
// 60-second advisory TTL and deletes the video_job mapping so a later
// submission for the same video is free to proceed (spec §4.4). Mapping
// deletion failure is logged but never fatal — the registry does not
// surface an error, matching the teacher's "storage is advisory" stance.
func (r *Registry) Save(ctx context.Context, job model.Job) {
	ttl := 0
	if job.Status.IsTerminal() {
		ttl = terminalTTLSeconds
	}
	r.cache.Set(ctx, jobKey(job.JobID), job, nil, ttl)
	if job.Status.IsTerminal() {
		metrics.RecordJobTerminal(job.Status)
		r.cache.Delete(ctx, videoJobKey(job.VideoID), nil)
	}
}

// Get looks up a job by id. The bool is false on a cache miss or TTL
// expiry — callers should treat this identically to spec's NotFoundError.
func (r *Registry) Get(ctx context.Context, jobID string) (model.Job, bool) {
	raw := r.cache.Get(ctx, jobKey(jobID), nil)
	job, ok := decodeJob(raw)
	if !ok {
		log.WithComponent("jobs").Debug().Str("job_id", jobID).Msg("job not found")
	}
	return job, ok
}

// ByVideo resolves the job currently mapped to videoID. It never scans all
// jobs (spec §4.4): it reads video_job:{video_id} for the job_id, then
// job:{job_id}. A miss at either step is reported as not-found, with
// distinct logging so a dangling-mapping bug is visible separately from an
// ordinary job-not-found.
func (r *Registry) ByVideo(ctx context.Context, videoID string) (model.Job, bool) {
	raw := r.cache.Get(ctx, videoJobKey(videoID), nil)
	jobID, ok := raw.(string)
	if !ok || jobID == "" {
		log.WithComponent("jobs").Debug().Str("video_id", videoID).Msg("video-job mapping not found")
		return model.Job{}, false
	}
	job, ok := r.Get(ctx, jobID)
	if !ok {
		log.WithComponent("jobs").Warn().
			Str("video_id", videoID).
			Str("job_id", jobID).
			Msg("video-job mapping points to missing job")
	}
	return job, ok
}

// decodeJob converts the any returned by the cache facade back into a
// model.Job. The facade round-trips through JSON, so a Set(ctx, key, job,
// ...) followed by Get yields a map[string]any that must be re-marshaled.
func decodeJob(raw any) (model.Job, bool) {
	if raw == nil {
		return model.Job{}, false
	}
	if job, ok := raw.(model.Job); ok {
		return job, true
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return model.Job{}, false
	}
	job, err := remarshalJob(m)
	if err != nil {
		return model.Job{}, false
	}
	return job, true
}
