// Package metadatatool declares the external video-metadata collaborator
// contract C8 uses for the subtitle pre-check (spec §4.8: "C8 invokes an
// external metadata tool to compute SubtitleStatus"). Like internal/agentpipeline,
// the real collaborator (YoutubeMetadataTool in the CrewAI original) is out
// of scope; only its contract and a deterministic stub are specified here.
package metadatatool

import (
	"context"

	"github.com/sacahan/trailtag/internal/model"
)

// Checker probes subtitle/caption availability for a video.
type Checker interface {
	CheckSubtitles(ctx context.Context, videoID string) (model.SubtitleStatus, error)
}

// Stub is a deterministic Checker for wiring and tests. Grounded on
// check_subtitle_availability's exception path in
// original_source/src/api/routes/main_routes.py: a failure is reported as
// an error, never as a silently-unavailable SubtitleStatus, leaving the
// caller (C8) to decide the HTTP status.
type Stub struct {
	// Available videoID -> SubtitleStatus results to return.
	Available map[string]model.SubtitleStatus
	// Err, if set, is returned for every CheckSubtitles call.
	Err error
}

// CheckSubtitles implements Checker.
func (s *Stub) CheckSubtitles(_ context.Context, videoID string) (model.SubtitleStatus, error) {
	if s.Err != nil {
		return model.SubtitleStatus{}, s.Err
	}
	if status, ok := s.Available[videoID]; ok {
		return status, nil
	}
	return model.SubtitleStatus{Available: false}, nil
}
