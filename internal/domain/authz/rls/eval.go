package rls

import "project-tracker/internal/domain/authz"

// Session es lo que la capa de datos sabe del que llama: su id, el tenant de la
// sesión y el rol real de su membresía. No conoce el rol "ver como".
type Session struct {
	ActorID  string
	TenantID string
	Role     authz.Role
}

// Row es la fila tal como la ve la política.
type Row struct {
	TenantID     string
	OwnerActorID string
	Status       authz.Status
	Flags        map[string]bool
}

func (r Row) column(name string) string {
	switch name {
	case ColTenant:
		return r.TenantID
	case ColOwner, "actor_id":
		return r.OwnerActorID
	case ColStatus:
		return string(r.Status)
	default:
		return ""
	}
}

// Eval interpreta e sobre una fila.
func Eval(e Expr, s Session, r Row) bool {
	switch v := e.(type) {
	case Bool:
		return bool(v)
	case ActorIs:
		return s.ActorID != "" && r.column(v.Column) == s.ActorID
	case ColumnIn:
		got := r.column(v.Column)
		for _, want := range v.Values {
			if got == want {
				return true
			}
		}
		return false
	case FlagIs:
		return r.Flags[v.Column] == v.Value
	case MemberRoleIn:
		for _, role := range v.Roles {
			if s.Role == role {
				return true
			}
		}
		return false
	case And:
		for _, x := range v {
			if !Eval(x, s, r) {
				return false
			}
		}
		return true
	case Or:
		for _, x := range v {
			if Eval(x, s, r) {
				return true
			}
		}
		return false
	case Not:
		return !Eval(v.X, s, r)
	default:
		return false
	}
}

// Permits responde lo que respondería la base: fila del tenant de la sesión y
// alguna cláusula de op para el rol de la membresía que se cumpla.
func (sp *StoragePolicy) Permits(op Operation, rt authz.ResourceType, s Session, r Row) bool {
	tp, ok := sp.tables[rt]
	if !ok || !inTenant(s, r) {
		return false
	}
	for _, c := range tp.Clauses[op] {
		if c.Role == s.Role && Eval(c.Cond, s, r) {
			return true
		}
	}
	return false
}

// PermitsAction es Permits restringido a la cláusula de una acción concreta. Es lo
// que aplica una escritura condicional (WHERE de Condition).
func (sp *StoragePolicy) PermitsAction(a authz.Action, rt authz.ResourceType, s Session, r Row) bool {
	if !inTenant(s, r) {
		return false
	}
	cond, ok := sp.Condition(rt, a, s.Role)
	if !ok {
		return false
	}
	return Eval(cond, s, r)
}

func inTenant(s Session, r Row) bool {
	return s.TenantID != "" && r.TenantID == s.TenantID
}
