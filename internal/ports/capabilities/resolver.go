package capabilities

import "context"

// PlatformAdmin habilita operaciones globales (crear tenants). Es distinto del rol
// admin de un tenant y nunca se deriva de una membresía.
const PlatformAdmin = "platform:admin"

// Resolver responde capabilities globales de un usuario.
type Resolver interface {
	Has(ctx context.Context, userID string, capability string) (bool, error)
}
