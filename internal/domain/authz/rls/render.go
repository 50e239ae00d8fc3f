package rls

import (
	"fmt"
	"sort"
	"strings"

	"project-tracker/internal/domain/authz"
)

// Dialect nombra las funciones SQL que exponen la sesión a las políticas.
type Dialect struct {
	Schema     string // schema de las tablas
	ActorFunc  string // id del actor de la sesión
	TenantFunc string // tenant de la sesión
	RoleFunc   string // rol de la membresía activa del actor en ese tenant
	LocateFunc string // tenant de un registro por id, sin aplicar políticas
	AppRole    string // rol de base con el que conecta la aplicación
}

// DefaultDialect: las funciones leen set_config('app.actor_id'|'app.tenant_id').
var DefaultDialect = Dialect{
	Schema:     "public",
	ActorFunc:  "app.current_actor_id()",
	TenantFunc: "app.current_tenant_id()",
	RoleFunc:   "app.member_role()",
	LocateFunc: "app.record_tenant",
	AppRole:    "app_service",
}

// Settings que el adapter de Postgres fija por transacción.
const (
	SettingActorID  = "app.actor_id"
	SettingTenantID = "app.tenant_id"
)

func (d Dialect) sessionFunctions() string {
	var b strings.Builder
	b.WriteString("CREATE SCHEMA IF NOT EXISTS app;\n\n")
	fmt.Fprintf(&b, "CREATE OR REPLACE FUNCTION %s RETURNS text LANGUAGE sql STABLE AS $$\n  SELECT nullif(current_setting('%s', true), '')\n$$;\n\n", d.ActorFunc, SettingActorID)
	fmt.Fprintf(&b, "CREATE OR REPLACE FUNCTION %s RETURNS text LANGUAGE sql STABLE AS $$\n  SELECT nullif(current_setting('%s', true), '')\n$$;\n\n", d.TenantFunc, SettingTenantID)
	fmt.Fprintf(&b, "CREATE OR REPLACE FUNCTION %s RETURNS text LANGUAGE sql STABLE SECURITY DEFINER AS $$\n"+
		"  SELECT role FROM %s.tenant_memberships\n"+
		"  WHERE tenant_id = %s AND actor_id = %s AND status = 'active'\n$$;\n\n",
		d.RoleFunc, d.Schema, d.TenantFunc, d.ActorFunc)
	// Solo revela el tenant de un id (para detectar accesos cruzados). Su dueño
	// debe tener BYPASSRLS.
	b.WriteString("CREATE OR REPLACE FUNCTION " + d.LocateFunc + "(tbl text, rid text) RETURNS text\n" +
		"LANGUAGE plpgsql STABLE SECURITY DEFINER AS $$\n" +
		"DECLARE t text;\n" +
		"BEGIN\n" +
		"  EXECUTE format('SELECT tenant_id FROM %I.%I WHERE id = $1', '" + d.Schema + "', tbl) INTO t USING rid;\n" +
		"  RETURN t;\n" +
		"END\n$$;\n\n")

	// Las SECURITY DEFINER no quedan abiertas a PUBLIC; sin AppRole solo el dueño las llama.
	for _, fn := range []string{d.RoleFunc, d.LocateFunc + "(text, text)"} {
		fmt.Fprintf(&b, "REVOKE ALL ON FUNCTION %s FROM PUBLIC;\n", fn)
		if d.AppRole != "" {
			fmt.Fprintf(&b, "GRANT EXECUTE ON FUNCTION %s TO %s;\n", fn, d.AppRole)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// RenderSQL genera el DDL de row-level security para todas las tablas.
//
// tenant_memberships habilita RLS sin FORCE: el dueño de la tabla (el que ejecuta
// member_role()) la lee sin políticas.
func (sp *StoragePolicy) RenderSQL(d Dialect) string {
	var b strings.Builder
	b.WriteString("-- Generated by policyctl. Do not edit.\n\n")
	b.WriteString(d.sessionFunctions())

	for _, tp := range sp.Tables() {
		qt := d.Schema + "." + tp.Table
		fmt.Fprintf(&b, "-- %s\n", tp.Resource)
		fmt.Fprintf(&b, "ALTER TABLE %s ENABLE ROW LEVEL SECURITY;\n", qt)
		if tp.Resource != authz.ResourceTenantMembership {
			fmt.Fprintf(&b, "ALTER TABLE %s FORCE ROW LEVEL SECURITY;\n", qt)
		}
		for _, op := range operations {
			name := tp.Table + "_" + strings.ToLower(string(op))
			fmt.Fprintf(&b, "DROP POLICY IF EXISTS %s ON %s;\n", name, qt)
			clauses := tp.Clauses[op]
			using := d.tenantCheck() + " AND " + d.render(d.roleClauses(clauses))
			switch op {
			case OpSelect, OpDelete:
				fmt.Fprintf(&b, "CREATE POLICY %s ON %s FOR %s\n  USING (%s);\n", name, qt, op, using)
			case OpInsert:
				fmt.Fprintf(&b, "CREATE POLICY %s ON %s FOR %s\n  WITH CHECK (%s);\n", name, qt, op, using)
			case OpUpdate:
				// La fila nueva ya cambió de estado: WITH CHECK solo exige tenant y un
				// rol con alguna cláusula de update.
				check := d.tenantCheck() + " AND " + d.render(MemberRoleIn{Roles: rolesOf(clauses)})
				fmt.Fprintf(&b, "CREATE POLICY %s ON %s FOR %s\n  USING (%s)\n  WITH CHECK (%s);\n", name, qt, op, using, check)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (d Dialect) tenantCheck() string {
	return ColTenant + " = " + d.TenantFunc
}

// roleClauses agrupa los roles que comparten condición: (rol IN (...) AND cond) OR ...
func (d Dialect) roleClauses(cs []Clause) Expr {
	type group struct {
		key   string
		roles []authz.Role
		cond  Expr
	}
	var groups []*group
	byKey := map[string]*group{}
	for _, c := range cs {
		k := d.render(c.Cond)
		g, ok := byKey[k]
		if !ok {
			g = &group{key: k, cond: c.Cond}
			byKey[k] = g
			groups = append(groups, g)
		}
		if !hasRole(g.roles, c.Role) {
			g.roles = append(g.roles, c.Role)
		}
	}

	out := make(Or, 0, len(groups))
	for _, g := range groups {
		if c, ok := g.cond.(Bool); ok && bool(c) {
			out = append(out, MemberRoleIn{Roles: g.roles})
			continue
		}
		out = append(out, And{MemberRoleIn{Roles: g.roles}, g.cond})
	}
	return out
}

func (d Dialect) render(e Expr) string {
	switch v := e.(type) {
	case Bool:
		return boolSQL(bool(v))
	case ActorIs:
		return v.Column + " = " + d.ActorFunc
	case ColumnIn:
		if len(v.Values) == 0 {
			return "FALSE"
		}
		return v.Column + " IN (" + quoteAll(v.Values) + ")"
	case FlagIs:
		return flagSQL(v)
	case MemberRoleIn:
		if len(v.Roles) == 0 {
			return "FALSE"
		}
		names := make([]string, 0, len(v.Roles))
		for _, r := range v.Roles {
			names = append(names, string(r))
		}
		return d.RoleFunc + " IN (" + quoteAll(names) + ")"
	case And:
		return d.join(v, " AND ", "TRUE")
	case Or:
		return d.join(v, " OR ", "FALSE")
	case Not:
		return "NOT (" + d.render(v.X) + ")"
	default:
		return "FALSE"
	}
}

func (d Dialect) join(xs []Expr, sep, empty string) string {
	if len(xs) == 0 {
		return empty
	}
	parts := make([]string, 0, len(xs))
	for _, x := range xs {
		parts = append(parts, d.render(x))
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func rolesOf(cs []Clause) []authz.Role {
	var out []authz.Role
	for _, c := range cs {
		if !hasRole(out, c.Role) {
			out = append(out, c.Role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func hasRole(rs []authz.Role, r authz.Role) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

func quoteAll(vals []string) string {
	q := make([]string, 0, len(vals))
	for _, v := range vals {
		q = append(q, "'"+strings.ReplaceAll(v, "'", "''")+"'")
	}
	return strings.Join(q, ", ")
}
