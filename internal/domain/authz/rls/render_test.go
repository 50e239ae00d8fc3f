package rls

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"project-tracker/internal/domain/authz"
)

func TestRenderSQL(t *testing.T) {
	sql := MustCompile(authz.Default()).RenderSQL(DefaultDialect)

	assert.Contains(t, sql, "CREATE OR REPLACE FUNCTION app.member_role()")
	assert.Contains(t, sql, "CREATE OR REPLACE FUNCTION app.record_tenant(tbl text, rid text)")
	assert.Contains(t, sql, "REVOKE ALL ON FUNCTION app.record_tenant(text, text) FROM PUBLIC;\n"+
		"GRANT EXECUTE ON FUNCTION app.record_tenant(text, text) TO app_service;")
	assert.Contains(t, sql, "REVOKE ALL ON FUNCTION app.member_role() FROM PUBLIC;\n"+
		"GRANT EXECUTE ON FUNCTION app.member_role() TO app_service;")
	assert.Contains(t, sql, "ALTER TABLE public.timesheets ENABLE ROW LEVEL SECURITY;")
	assert.Contains(t, sql, "ALTER TABLE public.timesheets FORCE ROW LEVEL SECURITY;")
	assert.NotContains(t, sql, "ALTER TABLE public.tenant_memberships FORCE")

	// milestones.delete es solo de rol, agrupado en una cláusula.
	assert.Contains(t, sql,
		"CREATE POLICY milestones_delete ON public.milestones FOR DELETE\n"+
			"  USING (tenant_id = app.current_tenant_id() AND (app.member_role() IN ('customer_manager', 'supplier_manager', 'admin')));")

	// el ruteo por is_chargeable llega a la política de update de expenses
	assert.Contains(t, sql, "is_chargeable IS TRUE AND app.member_role() IN ('finance_customer')")
	assert.Contains(t, sql, "is_chargeable IS NOT TRUE AND app.member_role() IN ('finance_supplier')")

	for _, table := range []string{"timesheets", "expenses", "milestones", "deliverables", "kpis",
		"quality_standards", "raid_items", "partners", "team_resources", "tenant_memberships"} {
		for _, op := range []string{"select", "insert", "update", "delete"} {
			assert.Contains(t, sql, "CREATE POLICY "+table+"_"+op+" ON public."+table)
		}
	}
	assert.Equal(t, 10*4, strings.Count(sql, "CREATE POLICY "))
}

func TestRenderSQL_WithoutAppRoleOnlyRevokes(t *testing.T) {
	d := DefaultDialect
	d.AppRole = ""
	sql := MustCompile(authz.Default()).RenderSQL(d)

	assert.Contains(t, sql, "REVOKE ALL ON FUNCTION app.record_tenant(text, text) FROM PUBLIC;")
	assert.NotContains(t, sql, "GRANT EXECUTE")
}

func TestRenderSQL_QuotesValues(t *testing.T) {
	d := DefaultDialect
	assert.Equal(t, "status IN ('it''s')", d.render(ColumnIn{Column: "status", Values: []string{"it's"}}))
}
