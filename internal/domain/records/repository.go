package records

import (
	"context"
	"time"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/domain/authz/rls"
)

// Repository es la capa de datos. Cada operación corre con la sesión del actor y
// aplica la política compilada (rls) de forma atómica: la condición de fila y la
// escritura son una sola sentencia.
type Repository interface {
	// Locate devuelve solo el tenant dueño del registro. Sirve para distinguir un
	// id inexistente de uno de otro tenant (evento de seguridad); nunca expone la fila.
	Locate(ctx context.Context, rt authz.ResourceType, id string) (tenantID string, err error)

	Create(ctx context.Context, s rls.Session, rec Record) error
	GetByID(ctx context.Context, s rls.Session, rt authz.ResourceType, id string) (Record, error)
	List(ctx context.Context, s rls.Session, rt authz.ResourceType, filter ListFilter) ([]Record, error)
	Update(ctx context.Context, s rls.Session, rt authz.ResourceType, id string, p Patch, at time.Time) (Record, error)
	Delete(ctx context.Context, s rls.Session, rt authz.ResourceType, id string) error

	// Transition mueve el status solo si el status actual es un origen válido y la
	// condición de la acción se cumple, en una única actualización condicional.
	Transition(ctx context.Context, s rls.Session, rt authz.ResourceType, id string, a authz.Action, at time.Time) (Record, error)
}
