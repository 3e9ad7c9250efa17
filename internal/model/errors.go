package model

import "fmt"

// ValidationError covers malformed requests: a bad URL, a missing field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError covers an unknown job_id or video_id.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// NewNotFoundError builds a NotFoundError with a formatted message.
func NewNotFoundError(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// NoSubtitlesError is raised when the subtitle probe reports unavailable
// and no cached analysis exists for the video.
type NoSubtitlesError struct {
	VideoID string
	Status  SubtitleStatus
}

func (e *NoSubtitlesError) Error() string {
	return fmt.Sprintf("video %s has no usable subtitles", e.VideoID)
}

// WorkflowError covers a guardrail violation or exception inside the
// workflow driver (C6). It never crosses the HTTP boundary directly — it
// becomes job state (spec §7) — but is typed so callers can distinguish it
// from transport-level failures when inspecting a failed Job.
type WorkflowError struct {
	Kind    string // "validation" | "exception"
	Message string
}

func (e *WorkflowError) Error() string { return e.Message }

// AsJobError converts a WorkflowError into the Job-persisted error shape.
func (e *WorkflowError) AsJobError() *JobError {
	return &JobError{Type: e.Kind, Message: e.Message}
}

// InternalError covers storage I/O failures and other unexpected faults
// that should map to HTTP 500 without leaking internals.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error { return e.Cause }
