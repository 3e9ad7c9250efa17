package agentpipeline

import (
	"context"

	"github.com/sacahan/trailtag/internal/model"
)

// geocodeLimiter is the subset of *ratelimit.Limiter the stub needs, kept
// as a local interface so agentpipeline (a contract-only package) doesn't
// import an implementation package directly.
type geocodeLimiter interface {
	Allow() bool
}

// Stub is a deterministic Pipeline used for wiring and tests in place of
// the real CrewAI-driven agent pipeline. It runs instantly and never calls
// an external service.
type Stub struct {
	// Subtitles seeds the metadata phase's subtitles field. Empty makes the
	// guardrail reject the phase on every attempt, exhausting retries.
	Subtitles string
	// Topic seeds the summary phase's opaque output.
	Topic string
	// Routes seeds the geocode phase's MapVisualization.
	Routes []model.RouteItem
	// Limiter, if set, gates each route's geocode result the way the real
	// external geocoding tool is gated (spec §5): a denied Allow() call
	// drops that route's coordinates rather than failing the phase, since
	// "denied requests return null and are not retried by the bucket
	// itself".
	Limiter geocodeLimiter
}

// Run implements Pipeline.
func (s *Stub) Run(ctx context.Context, input Input, guardrail Guardrail, onPhase func(PhaseOutput)) (PhaseOutput, error) {
	metadata := PhaseOutput{Phase: model.PhaseMetadata, Data: map[string]any{
		"video_id":  input.VideoID,
		"subtitles": nilIfEmpty(s.Subtitles),
	}}

	var lastErr error
	// One initial attempt plus up to MaxPhaseRetries retries.
	for attempt := 0; attempt <= MaxPhaseRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return PhaseOutput{}, err
		}
		if guardrail == nil {
			lastErr = nil
			break
		}
		if verr := guardrail(metadata); verr != nil {
			lastErr = verr
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return PhaseOutput{}, lastErr
	}
	if onPhase != nil {
		onPhase(metadata)
	}

	if err := ctx.Err(); err != nil {
		return PhaseOutput{}, err
	}
	summary := PhaseOutput{Phase: model.PhaseSummary, Data: map[string]any{
		"video_id": input.VideoID,
		"topic":    s.Topic,
	}}
	if onPhase != nil {
		onPhase(summary)
	}

	if err := ctx.Err(); err != nil {
		return PhaseOutput{}, err
	}
	routes := s.Routes
	if s.Limiter != nil {
		routes = make([]model.RouteItem, len(s.Routes))
		copy(routes, s.Routes)
		for i, r := range routes {
			if r.Coordinates != nil && !s.Limiter.Allow() {
				routes[i].Coordinates = nil
			}
		}
	}
	geocode := PhaseOutput{Phase: model.PhaseGeocode, Data: model.MapVisualization{
		VideoID: input.VideoID,
		Routes:  routes,
	}}
	if onPhase != nil {
		onPhase(geocode)
	}
	return geocode, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
