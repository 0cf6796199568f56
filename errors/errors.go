// Package errors defines the failure taxonomy shared by the operations
// layer and both transports.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotMember        = fmt.Errorf("not a member of the conversation")
	ErrForbidden        = fmt.Errorf("operation not allowed for this role")
	ErrNotFound         = fmt.Errorf("not found")
	ErrConflict         = fmt.Errorf("conflicting state")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrUploadFailed     = fmt.Errorf("upload failed")
	ErrInvalidPassword  = fmt.Errorf("password does not meet complexity requirements")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)

// HTTPStatus maps a domain error to its transport status. Unknown errors
// are treated as internal.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotMember), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidPassword):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUploadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the wire identifier used in error events and REST bodies.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidPassword):
		return "invalid_password"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	default:
		return "internal"
	}
}
