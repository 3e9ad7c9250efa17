// Package stream implements the Progress Event Stream (C7): a per-connection
// polling generator that turns job:{job_id} reads into framed
// Server-Sent Events. See spec §4.7.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sacahan/trailtag/internal/log"
	"github.com/sacahan/trailtag/internal/metrics"
	"github.com/sacahan/trailtag/internal/model"
)

// EventType is one of the four SSE event kinds spec §4.7 defines.
type EventType string

const (
	EventPhaseUpdate EventType = "phase_update"
	EventCompleted   EventType = "completed"
	EventError       EventType = "error"
	EventHeartbeat   EventType = "heartbeat"
)

const defaultPollInterval = 2 * time.Second

// jobReader is the subset of *jobs.Registry the generator needs.
type jobReader interface {
	Get(ctx context.Context, jobID string) (model.Job, bool)
}

// Generator produces the SSE event sequence for a single job_id connection.
// A Generator is stateless and safe to reuse across connections; all
// per-connection state (last-seen phase/progress) lives on the stack of Stream.
type Generator struct {
	registry     jobReader
	pollInterval time.Duration
}

// New constructs a Generator. A non-positive pollInterval falls back to the
// spec default of ~2 seconds.
func New(registry jobReader, pollInterval time.Duration) *Generator {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Generator{registry: registry, pollInterval: pollInterval}
}

// Stream runs the polling loop for jobID, writing framed SSE events to w
// until the job reaches a terminal state, the job is not found, or ctx is
// canceled (the HTTP transport closed, per spec §4.7 "the generator is
// reaped"). It never returns an error for a clean client disconnect; write
// failures downstream of the transport are returned so the caller can log
// them.
func (g *Generator) Stream(ctx context.Context, jobID string, w io.Writer) error {
	logger := log.WithComponent("stream")

	metrics.IncSSEConnections()
	defer metrics.DecSSEConnections()

	var lastPhase model.JobPhase
	var lastProgress = -1
	first := true

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		job, ok := g.registry.Get(ctx, jobID)
		if !ok {
			logger.Debug().Str("job_id", jobID).Msg("stream: job not found, ending generator")
			return writeEvent(w, EventError, map[string]any{"message": "Job not found"}, jobID)
		}

		if first || job.Phase != lastPhase || job.Progress != lastProgress {
			if err := writeEvent(w, EventPhaseUpdate, map[string]any{
				"phase":    job.Phase,
				"progress": job.Progress,
			}, jobID); err != nil {
				return err
			}
			lastPhase = job.Phase
			lastProgress = job.Progress
			first = false
		}

		switch job.Status {
		case model.JobStatusDone:
			logger.Debug().Str("job_id", jobID).Msg("stream: job done, ending generator")
			return writeEvent(w, EventCompleted, map[string]any{"job_id": jobID, "progress": 100}, jobID)
		case model.JobStatusFailed, model.JobStatusCanceled:
			logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("stream: job terminal, ending generator")
			return writeEvent(w, EventError, map[string]any{"job_id": jobID, "status": job.Status}, jobID)
		}

		if err := writeEvent(w, EventHeartbeat, map[string]any{
			"timestamp": time.Now().UTC().Unix(),
			"status":    job.Status,
		}, jobID); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(g.pollInterval):
		}
	}
}

// writeEvent frames a single SSE event in the wire format
// "event: <type>\ndata: <json>\nid: <job_id>\n\n" and flushes w if it
// supports http.Flusher, per the teacher's response-writer flushing idiom.
func writeEvent(w io.Writer, eventType EventType, data any, jobID string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\nid: %s\n\n", eventType, payload, jobID); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
