package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Access errors raised by the access policy
type (
	// UnauthorizedError indicates the caller has no identity where one is required
	UnauthorizedError struct {
		Message string
	}

	// ForbiddenError indicates the caller is authenticated but does not own the document
	ForbiddenError struct {
		Message string
	}
)

func (e *UnauthorizedError) Error() string { return e.Message }
func (e *ForbiddenError) Error() string    { return e.Message }

func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *ForbiddenError) StatusCode() int    { return http.StatusForbidden }

// Is lets errors.Is match typed errors against the sentinels below
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }
func (e *ForbiddenError) Is(target error) bool    { return target == ErrForbidden }

// Sentinel errors - use with errors.Is().
//
// ErrUnauthorized is the "Unauthenticated" failure kind (no identity) and
// ErrForbidden is the "Unauthorized" kind (identity present, not the owner).
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthenticated")
	ErrForbidden    = errors.New("unauthorized")

	// ErrNotImplemented marks features whose backing service is not configured
	ErrNotImplemented = errors.New("not implemented")
)
