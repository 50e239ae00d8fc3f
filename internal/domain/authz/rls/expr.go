package rls

import "project-tracker/internal/domain/authz"

// Expr es una condición de fila. Es el lenguaje común entre el intérprete en
// proceso (Eval), el WHERE parametrizado (Bind) y el DDL de políticas (RenderSQL).
type Expr interface {
	isExpr()
}

// Bool es una constante.
type Bool bool

// ActorIs: la columna es el actor de la sesión.
type ActorIs struct {
	Column string
}

// ColumnIn: la columna está en Values.
type ColumnIn struct {
	Column string
	Values []string
}

// FlagIs: la columna booleana vale Value (NULL cuenta como false).
type FlagIs struct {
	Column string
	Value  bool
}

// MemberRoleIn: el rol de la membresía de la sesión está en Roles.
type MemberRoleIn struct {
	Roles []authz.Role
}

// And vacío es verdadero; Or vacío es falso.
type And []Expr
type Or []Expr

type Not struct {
	X Expr
}

func (Bool) isExpr()         {}
func (ActorIs) isExpr()      {}
func (ColumnIn) isExpr()     {}
func (FlagIs) isExpr()       {}
func (MemberRoleIn) isExpr() {}
func (And) isExpr()          {}
func (Or) isExpr()           {}
func (Not) isExpr()          {}

// Columnas comunes a todas las tablas con registros de un tenant.
const (
	ColTenant = "tenant_id"
	ColOwner  = "owner_actor_id"
	ColStatus = "status"
)

var tables = map[authz.ResourceType]string{
	authz.ResourceTimesheet:        "timesheets",
	authz.ResourceExpense:          "expenses",
	authz.ResourceMilestone:        "milestones",
	authz.ResourceDeliverable:      "deliverables",
	authz.ResourceKPI:              "kpis",
	authz.ResourceQualityStandard:  "quality_standards",
	authz.ResourceRAIDItem:         "raid_items",
	authz.ResourcePartner:          "partners",
	authz.ResourceTeamMember:       "team_resources",
	authz.ResourceTenantMembership: "tenant_memberships",
}

// Table devuelve la tabla que guarda rt.
func Table(rt authz.ResourceType) (string, bool) {
	t, ok := tables[rt]
	return t, ok
}

// ownerColumn: en tenant_memberships el "dueño" de la fila es el miembro.
func ownerColumn(rt authz.ResourceType) string {
	if rt == authz.ResourceTenantMembership {
		return "actor_id"
	}
	return ColOwner
}
