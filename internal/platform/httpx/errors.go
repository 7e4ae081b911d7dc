package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/carecoord/authcore/internal/shared"
)

// Machine-readable error codes carried in ErrorBody.Code.
const (
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodeDuplicateIdentity       = "DUPLICATE_IDENTITY"
	CodeInvalidCredentials      = "AUTH_INVALID_CREDENTIALS"
	CodeSessionExpired          = "AUTH_SESSION_EXPIRED"
	CodeSessionCompromised      = "AUTH_SESSION_COMPROMISED"
	CodeTokenInvalid            = "AUTH_TOKEN_INVALID"
	CodeUnauthenticated         = "AUTH_UNAUTHENTICATED"
	CodeInsufficientRole        = "AUTH_INSUFFICIENT_ROLE"
	CodeInsufficientPermissions = "AUTH_INSUFFICIENT_PERMISSIONS"
	CodeZoneAccessDenied        = "AUTH_ZONE_ACCESS_DENIED"
	CodeNotFound                = "NOT_FOUND"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInternal                = "INTERNAL_ERROR"
)

// RespondError maps domain errors to the JSON error envelope.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var validation *shared.ValidationError
	switch {
	case errors.As(err, &validation):
		details := make(map[string]any, len(validation.Fields))
		for field, msg := range validation.Fields {
			details[field] = msg
		}
		Error(w, r, http.StatusBadRequest, CodeValidationFailed, "request validation failed", map[string]any{"fields": details})
	case errors.Is(err, shared.ErrValidation):
		Error(w, r, http.StatusBadRequest, CodeValidationFailed, err.Error(), nil)
	case errors.Is(err, shared.ErrDuplicateIdentity):
		Error(w, r, http.StatusConflict, CodeDuplicateIdentity, "an account with this email already exists", nil)
	case errors.Is(err, shared.ErrInvalidCredentials):
		Error(w, r, http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password", nil)
	case errors.Is(err, shared.ErrSessionCompromised):
		Error(w, r, http.StatusUnauthorized, CodeSessionCompromised, "session revoked, sign in again", nil)
	case errors.Is(err, shared.ErrSessionExpired), errors.Is(err, shared.ErrTokenExpired):
		Error(w, r, http.StatusUnauthorized, CodeSessionExpired, "session expired, sign in again", nil)
	case errors.Is(err, shared.ErrTokenMalformed):
		Error(w, r, http.StatusUnauthorized, CodeTokenInvalid, "token is invalid", nil)
	case errors.Is(err, shared.ErrUnauthenticated):
		Error(w, r, http.StatusUnauthorized, CodeUnauthenticated, "authentication required", nil)
	case errors.Is(err, shared.ErrNotFound):
		Error(w, r, http.StatusNotFound, CodeNotFound, "resource not found", nil)
	case errors.Is(err, shared.ErrUnavailable):
		logInternal(r, logger, err)
		Error(w, r, http.StatusInternalServerError, CodeInternal, "temporarily unavailable, retry later", map[string]any{"retryable": true})
	default:
		logInternal(r, logger, err)
		Error(w, r, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}

// RateLimited answers 429 with a retry hint.
func RateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	seconds := int(retryAfter.Seconds())
	if w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	Error(w, r, http.StatusTooManyRequests, CodeRateLimited, "too many requests", map[string]any{"retryAfterSeconds": seconds})
}

func logInternal(r *http.Request, logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	attrs := []any{slog.Any("error", err)}
	if r != nil {
		attrs = append(attrs,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
		)
	}
	logger.Error("request failed", attrs...)
}
