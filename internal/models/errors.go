package models

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrReadOnly         = errors.New("read-only role")
	ErrUnauthorized     = errors.New("not authenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("stale version")
	ErrPositionMismatch = errors.New("task is not at the given position")
	ErrClosed           = errors.New("view closed")
	ErrAlreadyConfirmed = errors.New("proposal already settled")
)

// Describe turns an error into the short message shown next to the control
// that triggered it. Authorization failures are not told apart from other
// rejections.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		prefix := ErrValidation.Error() + ": "
		if i := strings.Index(err.Error(), prefix); i >= 0 {
			return err.Error()[i+len(prefix):]
		}
		return "Please fill in the required fields."
	case errors.Is(err, ErrConflict):
		return "This task changed elsewhere. Reload the board and try again."
	case errors.Is(err, ErrReadOnly), errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized):
		return "You can't make this change."
	case errors.Is(err, ErrNotFound):
		return "That item no longer exists."
	case errors.Is(err, ErrPositionMismatch):
		return "The board was out of date. Try the move again."
	case errors.Is(err, ErrClosed):
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "The request timed out."
	default:
		return "Something went wrong. Please try again."
	}
}
