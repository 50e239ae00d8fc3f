package authz

import "fmt"

// Matrix responde si un rol puede intentar una acción sobre un tipo de recurso,
// sin mirar ninguna instancia.
type Matrix struct {
	policy *Policy
}

func NewMatrix(p *Policy) *Matrix {
	return &Matrix{policy: p}
}

// Allowed: rol o recurso fuera del conjunto cerrado es error. Una acción que el
// recurso no soporta es simplemente false.
func (m *Matrix) Allowed(role Role, rt ResourceType, a Action) (bool, error) {
	g, err := m.grant(role, rt, a)
	if err != nil {
		return false, err
	}
	return g.Allowed, nil
}

func (m *Matrix) grant(role Role, rt ResourceType, a Action) (Grant, error) {
	if !role.Valid() {
		return Grant{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if !rt.Valid() {
		return Grant{}, fmt.Errorf("%w: %q", ErrUnknownResource, rt)
	}
	g, ok := m.policy.Grant(role, rt, a)
	if !ok {
		return Grant{}, nil
	}
	return g, nil
}

// Policy expone la política de la que se construyó la matriz.
func (m *Matrix) Policy() *Policy { return m.policy }

// Row es una fila exportable de la matriz (para clientes y para policyctl export).
type Row struct {
	Role     Role         `json:"role" yaml:"role"`
	Resource ResourceType `json:"resource" yaml:"resource"`
	Action   Action       `json:"action" yaml:"action"`
	Allowed  bool         `json:"allowed" yaml:"allowed"`
	Rule     string       `json:"rule,omitempty" yaml:"rule,omitempty"`
}

// Rows enumera todas las celdas en orden estable: recurso, acción, rol.
func (m *Matrix) Rows() []Row {
	out := make([]Row, 0, len(Resources())*len(Roles())*4)
	for _, rt := range Resources() {
		for _, a := range ActionsFor(rt) {
			for _, role := range Roles() {
				g, _ := m.policy.Grant(role, rt, a)
				r := Row{Role: role, Resource: rt, Action: a, Allowed: g.Allowed}
				if g.Rule != nil {
					r.Rule = g.Rule.Name()
				}
				out = append(out, r)
			}
		}
	}
	return out
}
