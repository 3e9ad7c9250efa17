package api

import (
	"encoding/json"
	"net/http"

	"github.com/sacahan/trailtag/internal/log"
)

// APIError is the uniform error envelope for every non-2xx response.
// Grounded on the teacher's internal/api/errors.go.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Details   any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string { return e.Message }

// Named errors this surface actually returns, trimmed from the teacher's
// much larger catalogue down to the codes spec §7/§8 require.
var (
	ErrInvalidURL = &APIError{
		Code:    "INVALID_URL",
		Message: "無效的 YouTube URL",
	}
	ErrSubtitlesUnavailable = &APIError{
		Code:    "SUBTITLES_UNAVAILABLE",
		Message: "此影片沒有可用的字幕或自動字幕，無法進行分析",
	}
	ErrJobNotFound = &APIError{
		Code:    "JOB_NOT_FOUND",
		Message: "任務不存在",
	}
	ErrLocationsNotFound = &APIError{
		Code:    "LOCATIONS_NOT_FOUND",
		Message: "找不到影片地點資料",
	}
	ErrVideoJobNotFound = &APIError{
		Code:    "VIDEO_JOB_NOT_FOUND",
		Message: "找不到針對影片的進行中任務",
	}
	ErrValidation = &APIError{
		Code:    "VALIDATION_ERROR",
		Message: "請求格式錯誤",
	}
	ErrInternal = &APIError{
		Code:    "INTERNAL_ERROR",
		Message: "伺服器內部錯誤",
	}
)

// RespondError clones apiErr, stamps the request ID from ctx, and writes it
// as the JSON body at statusCode. details, if given, replaces the Details
// field (its first element only, matching the teacher's variadic shape).
func RespondError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *APIError, details ...any) {
	response := &APIError{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		RequestID: log.RequestIDFromContext(r.Context()),
	}
	if len(details) > 0 {
		response.Details = details[0]
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, apiErr.Message, statusCode)
	}
}

// respondJSON writes status as the response code and v as the JSON body.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
