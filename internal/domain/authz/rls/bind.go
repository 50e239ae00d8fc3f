package rls

import (
	"fmt"
	"strings"
)

// Bind traduce e a un fragmento WHERE con placeholders $next, $next+1, ...
// El rol de la sesión se pliega a TRUE/FALSE: en una escritura condicional ya se
// sabe con qué rol se llama.
func Bind(e Expr, s Session, next int) (string, []any) {
	b := binder{s: s, next: next}
	sql := b.bind(e)
	return sql, b.args
}

type binder struct {
	s    Session
	next int
	args []any
}

func (b *binder) arg(v any) string {
	b.args = append(b.args, v)
	p := fmt.Sprintf("$%d", b.next)
	b.next++
	return p
}

func (b *binder) bind(e Expr) string {
	switch v := e.(type) {
	case Bool:
		return boolSQL(bool(v))
	case ActorIs:
		if b.s.ActorID == "" {
			return "FALSE"
		}
		return v.Column + " = " + b.arg(b.s.ActorID)
	case ColumnIn:
		if len(v.Values) == 0 {
			return "FALSE"
		}
		ph := make([]string, 0, len(v.Values))
		for _, val := range v.Values {
			ph = append(ph, b.arg(val))
		}
		return v.Column + " IN (" + strings.Join(ph, ", ") + ")"
	case FlagIs:
		return flagSQL(v)
	case MemberRoleIn:
		for _, r := range v.Roles {
			if r == b.s.Role {
				return "TRUE"
			}
		}
		return "FALSE"
	case And:
		return b.join(v, " AND ", "TRUE")
	case Or:
		return b.join(v, " OR ", "FALSE")
	case Not:
		return "NOT (" + b.bind(v.X) + ")"
	default:
		return "FALSE"
	}
}

func (b *binder) join(xs []Expr, sep, empty string) string {
	if len(xs) == 0 {
		return empty
	}
	parts := make([]string, 0, len(xs))
	for _, x := range xs {
		parts = append(parts, b.bind(x))
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func boolSQL(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func flagSQL(v FlagIs) string {
	if v.Value {
		return v.Column + " IS TRUE"
	}
	return v.Column + " IS NOT TRUE"
}
