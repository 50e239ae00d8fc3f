package rls

import (
	"fmt"
	"sort"

	"project-tracker/internal/domain/authz"
)

// Operation es la operación de storage sobre la que se aplica una política.
type Operation string

const (
	OpSelect Operation = "SELECT"
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

var operations = []Operation{OpSelect, OpInsert, OpUpdate, OpDelete}

// OperationOf: view lee, create inserta, delete borra; cualquier otra acción
// (edit y transiciones de estado) es un update.
func OperationOf(a authz.Action) Operation {
	switch a {
	case authz.ActionView:
		return OpSelect
	case authz.ActionCreate:
		return OpInsert
	case authz.ActionDelete:
		return OpDelete
	default:
		return OpUpdate
	}
}

// Clause habilita una acción para un rol bajo una condición de fila.
type Clause struct {
	Action authz.Action
	Role   authz.Role
	Cond   Expr
}

// TablePolicy son las cláusulas de una tabla agrupadas por operación.
type TablePolicy struct {
	Resource authz.ResourceType
	Table    string
	Clauses  map[Operation][]Clause
}

// StoragePolicy es la política de la capa de datos compilada desde authz.Policy.
type StoragePolicy struct {
	tables map[authz.ResourceType]*TablePolicy
}

// Compile traduce cada celda permitida de la política a una cláusula. Las celdas
// denegadas no generan nada: en la capa de datos la ausencia de cláusula es deny.
func Compile(p *authz.Policy) (*StoragePolicy, error) {
	sp := &StoragePolicy{tables: map[authz.ResourceType]*TablePolicy{}}
	for _, rt := range authz.Resources() {
		name, ok := Table(rt)
		if !ok {
			return nil, fmt.Errorf("rls: no table for %s", rt)
		}
		tp := &TablePolicy{Resource: rt, Table: name, Clauses: map[Operation][]Clause{}}
		for _, a := range authz.ActionsFor(rt) {
			for _, role := range authz.Roles() {
				g, ok := p.Grant(role, rt, a)
				if !ok || !g.Allowed {
					continue
				}
				var cond Expr = Bool(true)
				if g.Rule != nil {
					c, err := compilePredicate(rt, g.Rule)
					if err != nil {
						return nil, fmt.Errorf("rls: %s.%s for %s: %w", rt, a, role, err)
					}
					cond = c
				}
				op := OperationOf(a)
				tp.Clauses[op] = append(tp.Clauses[op], Clause{Action: a, Role: role, Cond: cond})
			}
		}
		sp.tables[rt] = tp
	}
	return sp, nil
}

func MustCompile(p *authz.Policy) *StoragePolicy {
	sp, err := Compile(p)
	if err != nil {
		panic(err)
	}
	return sp
}

func compilePredicate(rt authz.ResourceType, p authz.Predicate) (Expr, error) {
	switch v := p.(type) {
	case authz.Ownership:
		return ActorIs{Column: ownerColumn(rt)}, nil
	case authz.StatusIn:
		vals := make([]string, 0, len(v.Statuses))
		for _, s := range v.Statuses {
			vals = append(vals, string(s))
		}
		return ColumnIn{Column: ColStatus, Values: vals}, nil
	case authz.SideRouting:
		return Or{
			And{FlagIs{Column: v.Flag, Value: true}, MemberRoleIn{Roles: []authz.Role{v.WhenSet}}},
			And{FlagIs{Column: v.Flag, Value: false}, MemberRoleIn{Roles: []authz.Role{v.WhenUnset}}},
		}, nil
	case authz.RoleIn:
		roles := make([]authz.Role, len(v.Roles))
		copy(roles, v.Roles)
		return MemberRoleIn{Roles: roles}, nil
	case authz.AnyOf:
		out := make(Or, 0, len(v.Rules))
		for _, r := range v.Rules {
			e, err := compilePredicate(rt, r)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case authz.AllOf:
		if len(v.Rules) == 0 {
			return Bool(false), nil
		}
		out := make(And, 0, len(v.Rules))
		for _, r := range v.Rules {
			e, err := compilePredicate(rt, r)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case authz.Not:
		e, err := compilePredicate(rt, v.Rule)
		if err != nil {
			return nil, err
		}
		return Not{X: e}, nil
	default:
		return nil, fmt.Errorf("unsupported predicate %T (%s)", p, p.Name())
	}
}

// Table devuelve la política compilada de rt.
func (sp *StoragePolicy) Table(rt authz.ResourceType) (*TablePolicy, bool) {
	tp, ok := sp.tables[rt]
	return tp, ok
}

// Tables en orden estable por nombre de tabla.
func (sp *StoragePolicy) Tables() []*TablePolicy {
	out := make([]*TablePolicy, 0, len(sp.tables))
	for _, tp := range sp.tables {
		out = append(out, tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

// Condition es la condición de fila para (rt, a) con el rol de la membresía.
// ok=false si el rol no tiene cláusula: la operación está denegada.
func (sp *StoragePolicy) Condition(rt authz.ResourceType, a authz.Action, role authz.Role) (Expr, bool) {
	tp, ok := sp.tables[rt]
	if !ok {
		return nil, false
	}
	for _, c := range tp.Clauses[OperationOf(a)] {
		if c.Action == a && c.Role == role {
			return c.Cond, true
		}
	}
	return nil, false
}
