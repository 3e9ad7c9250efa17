// Package agentpipeline specifies the contract for the external LLM-agent
// pipeline collaborator: metadata extraction -> content summarization ->
// geocoding. Per spec §1 this component is out of scope — its prompts,
// tools, and model choice are opaque; only the phase/guardrail/output
// contract below is specified.
package agentpipeline

import (
	"context"

	"github.com/sacahan/trailtag/internal/model"
)

// MaxPhaseRetries bounds how many times a single phase is retried after a
// guardrail rejection, mirroring the CrewAI task guardrail's retry
// semantics (spec §4.6: "retry the phase up to 3 times").
const MaxPhaseRetries = 3

// Input is fed to Pipeline.Run once per job.
type Input struct {
	JobID         string
	VideoID       string
	SearchSubject string
}

// PhaseOutput is the opaque payload produced by one pipeline phase. Data
// holds whichever shape the underlying framework surfaced first: a
// structured object, a json-dict map, or a raw string — mirroring CrewAI's
// TaskOutput.pydantic / .json_dict / .raw fallback chain.
type PhaseOutput struct {
	Phase model.JobPhase
	Data  any
}

// GuardrailError reports a phase that failed output validation. The
// pipeline is responsible for retrying the phase internally, up to
// MaxPhaseRetries, before surfacing this to the caller.
type GuardrailError struct {
	Phase   model.JobPhase
	Message string
}

func (e *GuardrailError) Error() string { return e.Message }

// Guardrail validates one phase's output; a non-nil error requests a retry.
type Guardrail func(PhaseOutput) error

// Pipeline is the out-of-scope external agent pipeline collaborator.
type Pipeline interface {
	// Run executes all three phases once end to end. guardrail is consulted
	// after the metadata phase — the only phase with a required-field
	// contract (spec §4.6) — and is retried internally up to
	// MaxPhaseRetries before Run returns the last *GuardrailError. onPhase
	// reports each phase completion (not retries) for progress tracking.
	// The returned PhaseOutput is the geocode phase's final artifact.
	Run(ctx context.Context, input Input, guardrail Guardrail, onPhase func(PhaseOutput)) (PhaseOutput, error)
}
