package authz

// Actor es quien llama, ya resuelto dentro de un tenant.
//
// Role es el rol real de la membresía. EffectiveRole es el rol con el que un admin
// "ve como" otro rol; vacío significa sin impersonación. Ambos viajan explícitos en
// cada chequeo para que la auditoría registre los dos.
type Actor struct {
	ID            string
	TenantID      string
	Role          Role
	EffectiveRole Role
}

// Effective es el rol con el que se evalúa la matriz.
func (a Actor) Effective() Role {
	if a.EffectiveRole == "" {
		return a.Role
	}
	return a.EffectiveRole
}

// Impersonating indica si el actor evalúa con un rol distinto al real.
func (a Actor) Impersonating() bool {
	return a.EffectiveRole != "" && a.EffectiveRole != a.Role
}

// Target es la foto del objeto sobre el que se decide.
// TenantID vacío representa un objeto aún no persistido (p.ej. create):
// queda en el tenant del actor.
type Target struct {
	TenantID     string
	OwnerActorID string
	Status       Status
	Flags        map[string]bool
}

// Flag devuelve el valor del flag; ausente equivale a false.
func (t Target) Flag(name string) bool {
	if t.Flags == nil {
		return false
	}
	return t.Flags[name]
}
