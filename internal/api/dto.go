package api

import "github.com/sacahan/trailtag/internal/model"

// AnalyzeRequest is the POST /api/videos/analyze body.
type AnalyzeRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// JobResponse mirrors a Job record verbatim, matching the original system's
// JobResponse(**job) construction in main_routes.py: every field of the
// stored job is returned as-is, including subtitle_availability.
type JobResponse = model.Job

// JobStatusResponse is the GET /api/videos/{video_id}/job shape: a
// deliberately narrower projection than JobResponse (no result, no
// subtitle_availability), per get_job_by_video in main_routes.py.
type JobStatusResponse struct {
	JobID    string          `json:"job_id"`
	Status   model.JobStatus `json:"status"`
	Phase    model.JobPhase  `json:"phase"`
	Progress int             `json:"progress"`
	Stats    map[string]any  `json:"stats"`
	Error    *model.JobError `json:"error"`
}
