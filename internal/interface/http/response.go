package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/brainbites/progression-engine/internal/domain/shared"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error. Fields carries the context of a domain
// error, e.g. the balance and requested amount of an insufficient debit.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// writeJSON writes a successful JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string, fields map[string]any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message, Fields: fields},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: getRequestID(r.Context()),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// errorCodes maps specific engine errors to stable API codes. Order matters:
// the first match wins.
var errorCodes = []struct {
	err  error
	code string
}{
	{shared.ErrNoLivesRemaining, "no_lives_remaining"},
	{shared.ErrLivesAtCapacity, "lives_at_capacity"},
	{shared.ErrInsufficientXP, "insufficient_xp"},
	{shared.ErrInvalidAmount, "invalid_amount"},
	{shared.ErrInvalidMetric, "invalid_metric"},
	{shared.ErrUserNotFound, "user_not_found"},
	{shared.ErrBadgeNotFound, "badge_not_found"},
	{shared.ErrUserExists, "user_exists"},
	{shared.ErrInvalidCriterion, "invalid_criterion"},
}

// statusOf returns the HTTP status and API code for err.
func statusOf(err error) (int, string) {
	code := ""
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			code = c.code
			break
		}
	}

	var status int
	switch {
	case shared.IsNotFound(err):
		status = http.StatusNotFound
	case shared.IsAlreadyExists(err):
		status = http.StatusConflict
	case shared.IsStateConflict(err):
		status = http.StatusUnprocessableEntity
	case shared.IsValidation(err):
		status = http.StatusBadRequest
	case shared.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	if code == "" {
		code = defaultCodes[status]
	}
	return status, code
}

var defaultCodes = map[int]string{
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "already_exists",
	http.StatusUnprocessableEntity: "invalid_state",
	http.StatusBadRequest:          "invalid_input",
	http.StatusServiceUnavailable:  "unavailable",
	http.StatusInternalServerError: "internal_error",
}

// writeError maps err onto a status code and writes it. Internal errors are
// logged and their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed", logger.String("path", r.URL.Path), logger.Err(err))
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, r, status, code, "temporarily unavailable, retry", nil)
			return
		}
		writeJSONError(w, r, status, code, "an unexpected error occurred", nil)
		return
	}

	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) {
		message = de.Message
	}
	writeJSONError(w, r, status, code, message, shared.FieldsOf(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst as is.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return shared.WrapError("http", "DecodeBody", shared.ErrInvalidInput, "malformed JSON body", err)
	}
	return nil
}

// getQueryParamInt extracts an integer query parameter with a default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, shared.NewDomainError("http", "ParseQuery", shared.ErrInvalidInput,
			fmt.Sprintf("query parameter %q must be an integer", key)).With(key, value)
	}
	return n, nil
}
