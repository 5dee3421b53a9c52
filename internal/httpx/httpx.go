// Package httpx holds the JSON request and response helpers shared by the
// HTTP handlers, including the mapping from domain errors to responses.
package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"libradesk/internal/domain"
	"libradesk/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Decode reads a JSON body into v. Malformed bodies and unknown fields are
// invalid input.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Invalid("request body is empty")
		}
		return &domain.InputError{Reason: "request body is not valid JSON", Cause: err}
	}
	return nil
}

// UUIDParam parses a chi URL parameter as a UUID.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.Invalid("%s is not a valid id", name)
	}
	return id, nil
}

// IntQuery reads an integer query parameter, falling back to def when it is
// missing or malformed.
func IntQuery(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// Status maps an error to its HTTP status and the message shown to clients.
// Messages never carry internal state; invalid input echoes only its reason.
func Status(err error) (int, string) {
	var input *domain.InputError
	switch {
	case errors.Is(err, domain.ErrBookUnavailable):
		return http.StatusConflict, "Book is not available for loan."
	case errors.Is(err, domain.ErrMemberIneligible):
		return http.StatusConflict, "Member cannot borrow more books."
	case errors.Is(err, domain.ErrDuplicateLoan):
		return http.StatusConflict, "This loan has already been recorded today."
	case errors.Is(err, domain.ErrLoanNotActive):
		return http.StatusConflict, "This loan is not active."
	case errors.Is(err, domain.ErrDuplicateISBN):
		return http.StatusConflict, "A book with this ISBN already exists."
	case errors.Is(err, domain.ErrDuplicateEmail):
		return http.StatusConflict, "A member with this email already exists."
	case errors.Is(err, store.ErrDuplicateUsername):
		return http.StatusConflict, "This username is already taken."
	case errors.Is(err, store.ErrConcurrencyConflict):
		return http.StatusConflict, "The record was changed by another request. Please try again."
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "The requested record was not found."
	case errors.As(err, &input):
		return http.StatusBadRequest, input.Reason
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "The request is not valid."
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "Authentication required."
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "You are not allowed to do this."
	case errors.Is(err, domain.ErrTooManyRequests):
		return http.StatusTooManyRequests, "Too many requests. Please slow down."
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusInternalServerError, "Inventory records are inconsistent. The operation was not applied."
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}

// WriteError logs err and writes its mapped response. Server-side failures
// are logged at error level with the request id; client errors at debug.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code, msg := Status(err)
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", code,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	}
	if code >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", attrs...)
	} else {
		logger.DebugContext(r.Context(), "request rejected", attrs...)
	}
	WriteJSON(w, code, ErrorResponse{Code: code, Message: msg})
}

// Retry runs one transactional operation, retrying it on concurrency
// conflicts with exponential backoff.
func Retry(r *http.Request, operation string, fn store.RetryableFunc) error {
	return store.RetryWithExponentialBackoff(r.Context(), fn, store.WithOperation(operation))
}
