package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"project-tracker/internal/domain/authz"
)

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	code, _, stderr := runCmd(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Usage:")

	code, _, stderr = runCmd(t, "deploy")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, `unknown command "deploy"`)
}

func TestRun_SQL(t *testing.T) {
	code, out, _ := runCmd(t, "sql", "--schema", "tracker", "--app-role", "tracker_api")
	require.Equal(t, exitOK, code)

	assert.Contains(t, out, "GRANT EXECUTE ON FUNCTION app.record_tenant(text, text) TO tracker_api;")
	assert.NotContains(t, out, "TO app_service")

	assert.Contains(t, out, "ALTER TABLE tracker.timesheets ENABLE ROW LEVEL SECURITY;")
	assert.Contains(t, out, "ALTER TABLE tracker.timesheets FORCE ROW LEVEL SECURITY;")
	assert.NotContains(t, out, "ALTER TABLE tracker.tenant_memberships FORCE")
	assert.Contains(t, out, "CREATE POLICY expenses_update ON tracker.expenses")

	code, _, _ = runCmd(t, "sql", "--schema", " ")
	assert.Equal(t, exitUsage, code)

	code, _, _ = runCmd(t, "sql", "--app-role", "")
	assert.Equal(t, exitUsage, code)
}

func TestRun_ExportJSON(t *testing.T) {
	code, out, _ := runCmd(t, "export", "--role", "finance_supplier", "--resource", "expense")
	require.Equal(t, exitOK, code)

	var rows []authz.Row
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.NotEmpty(t, rows)

	allowed := map[authz.Action]bool{}
	for _, r := range rows {
		assert.Equal(t, authz.RoleFinanceSupplier, r.Role)
		assert.Equal(t, authz.ResourceExpense, r.Resource)
		allowed[r.Action] = r.Allowed
	}
	assert.True(t, allowed[authz.ActionValidate])
	assert.False(t, allowed[authz.ActionCreate])
}

func TestRun_ExportYAML(t *testing.T) {
	code, out, _ := runCmd(t, "export", "-f", "yaml", "--role", "viewer", "--resource", "milestone")
	require.Equal(t, exitOK, code)

	var rows []authz.Row
	require.NoError(t, yaml.Unmarshal([]byte(out), &rows))
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.Equal(t, authz.RoleViewer, r.Role)
		assert.Equal(t, r.Action == authz.ActionView, r.Allowed, "%s.%s", r.Resource, r.Action)
	}
}

func TestRun_ExportRejectsUnknownInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"format", []string{"export", "--format", "xml"}},
		{"role", []string{"export", "--role", "owner"}},
		{"resource", []string{"export", "--resource", "invoice"}},
		{"flag", []string{"export", "--nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCmd(t, tt.args...)
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestRun_CheckDefaultPolicyIsConsistent(t *testing.T) {
	code, out, stderr := runCmd(t, "check", "--parallel", "3")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, out, "ok:")

	code, _, _ = runCmd(t, "check", "--parallel", "0")
	assert.Equal(t, exitUsage, code)
}
