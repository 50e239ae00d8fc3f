package memberships

import "context"

// Repository es el plano de identidad: corre con el dueño de las tablas, sin
// sesión de actor. Las decisiones las toma el Service con el motor.
type Repository interface {
	// CreateTenant guarda el tenant y la membresía del fundador juntos.
	CreateTenant(ctx context.Context, t Tenant, founder Membership) error
	GetTenant(ctx context.Context, id string) (Tenant, error)

	Create(ctx context.Context, m Membership) error
	// Update escribe m solo si la fila sigue en el estado from; si no, ErrStaleState.
	Update(ctx context.Context, m Membership, from Status) error
	GetByID(ctx context.Context, id string) (Membership, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Membership, error)
	ListByActor(ctx context.Context, actorID string) ([]Membership, error)
	// GetActive devuelve la membresía activa de actorID en tenantID.
	GetActive(ctx context.Context, tenantID, actorID string) (Membership, error)
}
