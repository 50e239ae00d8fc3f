package authz

import (
	"fmt"
	"sort"
)

// Grant es una celda de la matriz (rol, recurso, acción).
type Grant struct {
	Allowed bool
	Rule    Predicate // nil: el grant de rol es final
}

// Declaration es una línea de la tabla declarativa tal como fue escrita.
// Se conserva para poder auditar la tabla (p.ej. que dos roles no compartan una línea).
type Declaration struct {
	Resource ResourceType
	Action   Action
	Roles    []Role
	Allowed  bool
	Rule     Predicate
}

type line struct {
	roles   []Role
	allowed bool
	rule    Predicate
}

func allow(rule Predicate, roles ...Role) line {
	return line{roles: roles, allowed: true, rule: rule}
}

func deny(roles ...Role) line {
	return line{roles: roles, allowed: false}
}

// Table es la forma declarativa: recurso -> acción -> líneas.
type Table map[ResourceType]map[Action][]line

type cellKey struct {
	role     Role
	resource ResourceType
	action   Action
}

// Policy es la fuente única de verdad. Se compila a dos destinos: la matriz en
// proceso (Matrix/Evaluate) y la política de la capa de datos (paquete rls).
type Policy struct {
	cells map[cellKey]Grant
	decls []Declaration
}

// NewPolicy valida y construye la política. Exige que cada (rol, recurso, acción
// soportada) esté declarada exactamente una vez; una celda ausente es un error, no
// un "false" implícito.
func NewPolicy(t Table) (*Policy, error) {
	p := &Policy{cells: map[cellKey]Grant{}}

	resources := make([]ResourceType, 0, len(t))
	for rt := range t {
		resources = append(resources, rt)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i] < resources[j] })

	for _, rt := range resources {
		if !rt.Valid() {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidPolicy, ErrUnknownResource, rt)
		}
		actions := t[rt]
		for _, a := range ActionsFor(rt) {
			for _, ln := range actions[a] {
				if !ln.allowed && ln.rule != nil {
					return nil, fmt.Errorf("%w: %s.%s: deny line carries a rule", ErrInvalidPolicy, rt, a)
				}
				if len(ln.roles) == 0 {
					return nil, fmt.Errorf("%w: %s.%s: empty role list", ErrInvalidPolicy, rt, a)
				}
				for _, role := range ln.roles {
					if !role.Valid() {
						return nil, fmt.Errorf("%w: %w: %q", ErrInvalidPolicy, ErrUnknownRole, role)
					}
					k := cellKey{role: role, resource: rt, action: a}
					if _, dup := p.cells[k]; dup {
						return nil, fmt.Errorf("%w: %s.%s declared twice for %s", ErrInvalidPolicy, rt, a, role)
					}
					p.cells[k] = Grant{Allowed: ln.allowed, Rule: ln.rule}
				}
				roles := make([]Role, len(ln.roles))
				copy(roles, ln.roles)
				p.decls = append(p.decls, Declaration{
					Resource: rt,
					Action:   a,
					Roles:    roles,
					Allowed:  ln.allowed,
					Rule:     ln.rule,
				})
			}
		}
		for a := range actions {
			if !Supports(rt, a) {
				return nil, fmt.Errorf("%w: %s does not support %q", ErrInvalidPolicy, rt, a)
			}
		}
	}

	for _, rt := range Resources() {
		for _, a := range ActionsFor(rt) {
			for _, role := range Roles() {
				if _, ok := p.cells[cellKey{role: role, resource: rt, action: a}]; !ok {
					return nil, fmt.Errorf("%w: missing cell %s.%s for %s", ErrInvalidPolicy, rt, a, role)
				}
			}
		}
	}

	return p, nil
}

// MustPolicy es NewPolicy para tablas estáticas.
func MustPolicy(t Table) *Policy {
	p, err := NewPolicy(t)
	if err != nil {
		panic(err)
	}
	return p
}

// Grant devuelve la celda declarada; ok=false si no existe.
func (p *Policy) Grant(role Role, rt ResourceType, a Action) (Grant, bool) {
	g, ok := p.cells[cellKey{role: role, resource: rt, action: a}]
	return g, ok
}

// Declarations devuelve las líneas de la tabla en orden de declaración.
func (p *Policy) Declarations() []Declaration {
	out := make([]Declaration, len(p.decls))
	copy(out, p.decls)
	return out
}
