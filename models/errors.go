package models

import "errors"

// Domain error kinds. Services wrap these with detail using fmt.Errorf("%w: ...")
// and callers classify with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrDuplicateLike   = errors.New("duplicate like")
	ErrSelfInteraction = errors.New("self interaction")
	ErrBlocked         = errors.New("blocked")
	ErrInvalidState    = errors.New("invalid state")
	ErrConflict        = errors.New("conflict")
)

// ErrorKind returns a stable machine-readable name for err, or "internal_error".
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrDuplicateLike):
		return "duplicate_like"
	case errors.Is(err, ErrSelfInteraction):
		return "self_interaction"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "internal_error"
}
