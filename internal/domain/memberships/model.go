package memberships

import (
	"time"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/domain/authz/rls"
)

type Status string

const (
	StatusInvited Status = "invited"
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInvited, StatusActive, StatusRevoked:
		return true
	}
	return false
}

type Tenant struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// Membership es la fila que convierte a un usuario en actor de un tenant.
// Solo una membresía activa por (tenant, usuario).
type Membership struct {
	ID       string
	TenantID string
	ActorID  string // usuario del proveedor de identidad
	Role     authz.Role
	Status   Status

	InvitedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}

// Target: el "dueño" de una membresía es el propio miembro; así un admin no
// puede editar ni revocar la suya.
func (m Membership) Target() authz.Target {
	return authz.Target{TenantID: m.TenantID, OwnerActorID: m.ActorID}
}

func (m Membership) Row() rls.Row {
	return rls.Row{TenantID: m.TenantID, OwnerActorID: m.ActorID}
}

// Actor devuelve el actor que representa la membresía (sin impersonación).
func (m Membership) Actor() authz.Actor {
	return authz.Actor{ID: m.ActorID, TenantID: m.TenantID, Role: m.Role}
}
