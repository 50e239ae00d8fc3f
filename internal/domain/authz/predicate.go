package authz

import (
	"fmt"
	"strings"
)

// Predicate es una regla a nivel de objeto. Solo puede angostar un grant de rol:
// se evalúa únicamente cuando la matriz ya dijo que sí.
//
// Los tipos concretos son exportados para que el compilador de políticas de la
// capa de datos (paquete rls) los traduzca sin duplicar la lógica.
type Predicate interface {
	Name() string
	Eval(actor Actor, t Target) bool
}

// Ownership: target.owner_actor_id == actor.id.
type Ownership struct{}

func Owner() Predicate { return Ownership{} }

func (Ownership) Name() string { return "ownership" }

func (Ownership) Eval(actor Actor, t Target) bool {
	return actor.ID != "" && t.OwnerActorID == actor.ID
}

// StatusIn: target.status ∈ Statuses.
type StatusIn struct {
	Statuses []Status
}

func Statuses(s ...Status) Predicate {
	cp := make([]Status, len(s))
	copy(cp, s)
	return StatusIn{Statuses: cp}
}

// StatusGate arma el StatusIn con los estados de origen de la transición (rt, a).
// Entra en pánico si la transición no existe: la tabla es estática.
func StatusGate(rt ResourceType, a Action) Predicate {
	tr, ok := TransitionFor(rt, a)
	if !ok {
		panic(fmt.Sprintf("authz: no transition for %s.%s", rt, a))
	}
	return StatusIn{Statuses: tr.From}
}

func (p StatusIn) Name() string {
	parts := make([]string, 0, len(p.Statuses))
	for _, s := range p.Statuses {
		parts = append(parts, string(s))
	}
	return "status_in(" + strings.Join(parts, ",") + ")"
}

func (p StatusIn) Eval(_ Actor, t Target) bool {
	for _, s := range p.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

// SideRouting asigna la acción a exactamente uno de dos roles según un flag del objeto.
// Ej.: validar un gasto -> is_chargeable ? finance_customer : finance_supplier.
type SideRouting struct {
	Flag      string
	WhenSet   Role
	WhenUnset Role
}

func RouteByFlag(flag string, whenSet, whenUnset Role) Predicate {
	return SideRouting{Flag: flag, WhenSet: whenSet, WhenUnset: whenUnset}
}

func (p SideRouting) Name() string {
	return fmt.Sprintf("side_routing(%s?%s:%s)", p.Flag, p.WhenSet, p.WhenUnset)
}

// RoutedTo devuelve el rol que tiene la autoridad para el objeto t.
func (p SideRouting) RoutedTo(t Target) Role {
	if t.Flag(p.Flag) {
		return p.WhenSet
	}
	return p.WhenUnset
}

func (p SideRouting) Eval(actor Actor, t Target) bool {
	return actor.Effective() == p.RoutedTo(t)
}

// RoleIn: el rol efectivo pertenece a Roles. Sirve como rama "rol elevado" en AnyOf.
type RoleIn struct {
	Roles []Role
}

func AnyRole(roles ...Role) Predicate {
	cp := make([]Role, len(roles))
	copy(cp, roles)
	return RoleIn{Roles: cp}
}

func (p RoleIn) Name() string {
	parts := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		parts = append(parts, string(r))
	}
	return "role_in(" + strings.Join(parts, ",") + ")"
}

func (p RoleIn) Eval(actor Actor, _ Target) bool {
	eff := actor.Effective()
	for _, r := range p.Roles {
		if r == eff {
			return true
		}
	}
	return false
}

// AnyOf es el OR lógico de sub-reglas con nombre propio.
type AnyOf struct {
	Label string
	Rules []Predicate
}

func Any(label string, rules ...Predicate) Predicate {
	return AnyOf{Label: label, Rules: rules}
}

func (p AnyOf) Name() string { return p.Label }

func (p AnyOf) Eval(actor Actor, t Target) bool {
	for _, r := range p.Rules {
		if r.Eval(actor, t) {
			return true
		}
	}
	return false
}

// AllOf es el AND lógico de sub-reglas con nombre propio.
type AllOf struct {
	Label string
	Rules []Predicate
}

func All(label string, rules ...Predicate) Predicate {
	return AllOf{Label: label, Rules: rules}
}

func (p AllOf) Name() string { return p.Label }

func (p AllOf) Eval(actor Actor, t Target) bool {
	if len(p.Rules) == 0 {
		return false
	}
	for _, r := range p.Rules {
		if !r.Eval(actor, t) {
			return false
		}
	}
	return true
}

// Not invierte una sub-regla (p.ej. "no sobre la propia membresía").
type Not struct {
	Rule Predicate
}

func Negate(p Predicate) Predicate { return Not{Rule: p} }

func (p Not) Name() string { return "not(" + p.Rule.Name() + ")" }

func (p Not) Eval(actor Actor, t Target) bool { return !p.Rule.Eval(actor, t) }
