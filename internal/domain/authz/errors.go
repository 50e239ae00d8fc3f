package authz

import "errors"

// Solo la entrada mal formada es un error; una denegación es un valor (Decision).
var (
	ErrUnknownRole     = errors.New("authz: unknown role")
	ErrUnknownResource = errors.New("authz: unknown resource")
	ErrUnknownAction   = errors.New("authz: unknown action")

	// ErrImpersonation: solo un admin puede "ver como" otro rol.
	ErrImpersonation = errors.New("authz: only admin may act with another effective role")

	// ErrNotMember: el usuario no tiene membresía activa en el tenant.
	ErrNotMember = errors.New("authz: no active membership in tenant")

	ErrInvalidPolicy = errors.New("authz: invalid policy")
)
