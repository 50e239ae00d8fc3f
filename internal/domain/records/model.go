package records

import (
	"time"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/domain/authz/rls"
)

// Record es un registro de un tenant: una hoja de horas, un gasto, un hito, etc.
// Todos los tipos comparten la misma forma; lo específico va en Details.
type Record struct {
	ID       string
	TenantID string
	Resource authz.ResourceType

	OwnerActorID string
	Status       authz.Status // vacío para tipos sin ciclo de vida
	Chargeable   bool         // solo expense

	Title   string
	Details map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Record) flags() map[string]bool {
	flags := authz.FlagsFor(r.Resource)
	if len(flags) == 0 {
		return nil
	}
	out := make(map[string]bool, len(flags))
	for _, f := range flags {
		if f == authz.FlagChargeable {
			out[f] = r.Chargeable
		}
	}
	return out
}

// Target es la foto que evalúa la capa de aplicación.
func (r Record) Target() authz.Target {
	return authz.Target{
		TenantID:     r.TenantID,
		OwnerActorID: r.OwnerActorID,
		Status:       r.Status,
		Flags:        r.flags(),
	}
}

// Row es la misma foto vista por la política de la capa de datos.
func (r Record) Row() rls.Row {
	return rls.Row{
		TenantID:     r.TenantID,
		OwnerActorID: r.OwnerActorID,
		Status:       r.Status,
		Flags:        r.flags(),
	}
}

// Patch: nil = no tocar.
type Patch struct {
	Title      *string
	Chargeable *bool
	Details    map[string]any
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Chargeable == nil && p.Details == nil
}

// Apply devuelve r con el patch aplicado.
func (p Patch) Apply(r Record) Record {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Chargeable != nil {
		r.Chargeable = *p.Chargeable
	}
	if p.Details != nil {
		r.Details = p.Details
	}
	return r
}

type ListFilter struct {
	Status       authz.Status
	OwnerActorID string
	Query        string // búsqueda simple en title
	Limit        int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Supports indica si rt se guarda como registro (las membresías tienen su propio módulo).
func Supports(rt authz.ResourceType) bool {
	return rt.Valid() && rt != authz.ResourceTenantMembership
}
