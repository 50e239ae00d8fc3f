package memberships

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("membership not found")
	ErrForbidden     = errors.New("forbidden")
	ErrBadState      = errors.New("invalid state")
	ErrAlreadyMember = errors.New("already an active member")
	// ErrStaleState: la membresía cambió de estado entre la lectura y la escritura
	ErrStaleState = errors.New("membership state changed")
)
