package app

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Error kinds. Every DomainError carries one, so callers can match with
// errors.Is without looking at HTTP details.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrPersistence   = errors.New("persistence failed")
	ErrConfiguration = errors.New("configuration missing")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnavailable   = errors.New("dependency unavailable")
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any

	kind  error
	cause error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Is(target error) bool {
	return e != nil && e.kind != nil && target == e.kind
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	err := domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
	err.kind = ErrValidation
	return err
}

func invalidBody(err error) *DomainError {
	out := domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
	out.kind = ErrValidation
	return out
}

func notFoundError(what string) *DomainError {
	err := domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
	err.kind = ErrNotFound
	return err
}

func persistenceError(op string, cause error) *DomainError {
	err := domainError(http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to "+op+", try again", nil)
	err.kind = ErrPersistence
	err.cause = errors.Wrapf(cause, "%s", op)
	return err
}

func configurationError(message string, details any) *DomainError {
	err := domainError(http.StatusUnprocessableEntity, "CONFIGURATION_ERROR", message, details)
	err.kind = ErrConfiguration
	return err
}

func forbiddenError(action string) *DomainError {
	err := domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"action": action})
	err.kind = ErrForbidden
	return err
}

func unauthorizedError(message string) *DomainError {
	err := domainError(http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
	err.kind = ErrUnauthorized
	return err
}

func rateLimitedError() *DomainError {
	err := domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down", nil)
	err.kind = ErrRateLimited
	return err
}

func unavailableError(code, message string, cause error) *DomainError {
	err := domainError(http.StatusServiceUnavailable, code, message, nil)
	err.kind = ErrUnavailable
	err.cause = cause
	return err
}

// storeError turns a store failure into NotFound (sql.ErrNoRows) or
// Persistence.
func storeError(op, what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError(what)
	}
	return persistenceError(op, err)
}
