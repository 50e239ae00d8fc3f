package records

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("record not found")
	// ErrForbidden: la capa de aplicación deniega.
	ErrForbidden = errors.New("forbidden")
	// ErrPolicyDenied: la capa de datos rechazó la escritura.
	ErrPolicyDenied = errors.New("denied by storage policy")
	// ErrStaleState: el registro cambió entre la decisión y la escritura
	// (p.ej. dos submit concurrentes: solo uno gana).
	ErrStaleState = errors.New("record state changed")
)
