package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tenantA = "tenant-A"
	tenantB = "tenant-B"
)

func actorAs(role Role) Actor {
	return Actor{ID: "actor-" + string(role), TenantID: tenantA, Role: role}
}

func evaluate(t *testing.T, actor Actor, rt ResourceType, a Action, target *Target) Decision {
	t.Helper()
	d, err := Evaluate(NewMatrix(Default()), actor, rt, a, target)
	require.NoError(t, err)
	return d
}

func TestScenario_OwnerSubmitsOwnDraftTimesheet(t *testing.T) {
	c := actorAs(RoleContributor)
	d := evaluate(t, c, ResourceTimesheet, ActionSubmit, &Target{OwnerActorID: c.ID, Status: StatusDraft})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonObjectRulePassed, d.Reason)
	assert.Equal(t, "timesheet_submit", d.Rule)
}

func TestScenario_ContributorCannotSubmitOthersTimesheet(t *testing.T) {
	c := actorAs(RoleContributor)
	d := evaluate(t, c, ResourceTimesheet, ActionSubmit, &Target{OwnerActorID: "someone-else", Status: StatusDraft})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonObjectRuleDenied, d.Reason)
}

func TestScenario_ExpenseValidationRoutedByChargeable(t *testing.T) {
	fc := actorAs(RoleFinanceCustomer)
	chargeable := &Target{Status: StatusSubmitted, Flags: map[string]bool{FlagChargeable: true}}
	internal := &Target{Status: StatusSubmitted, Flags: map[string]bool{FlagChargeable: false}}

	assert.True(t, evaluate(t, fc, ResourceExpense, ActionValidate, chargeable).Allowed)

	d := evaluate(t, fc, ResourceExpense, ActionValidate, internal)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonObjectRuleDenied, d.Reason)

	fs := actorAs(RoleFinanceSupplier)
	assert.False(t, evaluate(t, fs, ResourceExpense, ActionValidate, chargeable).Allowed)
	assert.True(t, evaluate(t, fs, ResourceExpense, ActionValidate, internal).Allowed)
}

func TestScenario_MilestoneDeleteIsRoleOnly(t *testing.T) {
	d := evaluate(t, actorAs(RoleSupplierManager), ResourceMilestone, ActionDelete, &Target{})
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonGranted, d.Reason)
	assert.Empty(t, d.Rule)

	d = evaluate(t, actorAs(RoleViewer), ResourceMilestone, ActionDelete, &Target{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRoleDenied, d.Reason)
}

func TestScenario_CrossTenantDeniedForEveryRole(t *testing.T) {
	for _, role := range Roles() {
		t.Run(string(role), func(t *testing.T) {
			d := evaluate(t, actorAs(role), ResourceDeliverable, ActionView, &Target{TenantID: tenantB})
			assert.False(t, d.Allowed)
			assert.Equal(t, ReasonCrossTenant, d.Reason)
		})
	}
}

func TestEvaluate_CrossTenantCheckedBeforeRole(t *testing.T) {
	// viewer no puede borrar milestones, pero la razón debe ser el cruce de tenant.
	d := evaluate(t, actorAs(RoleViewer), ResourceMilestone, ActionDelete, &Target{TenantID: tenantB})
	assert.Equal(t, ReasonCrossTenant, d.Reason)
}

func TestEvaluate_RoleDeniedShortCircuits(t *testing.T) {
	// Un viewer "dueño" de un Draft no pasa: la regla de objeto no se evalúa.
	v := actorAs(RoleViewer)
	d := evaluate(t, v, ResourceTimesheet, ActionSubmit, &Target{OwnerActorID: v.ID, Status: StatusDraft})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRoleDenied, d.Reason)
	assert.Empty(t, d.Rule)
}

func TestEvaluate_NilTargetWithRuleDenies(t *testing.T) {
	d := evaluate(t, actorAs(RoleContributor), ResourceTimesheet, ActionEdit, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonObjectRuleDenied, d.Reason)

	d = evaluate(t, actorAs(RoleContributor), ResourceTimesheet, ActionCreate, nil)
	assert.True(t, d.Allowed)
}

func TestEvaluate_SameTenantOrUnsetTenant(t *testing.T) {
	c := actorAs(RoleContributor)
	for _, tenant := range []string{"", tenantA} {
		d := evaluate(t, c, ResourceTimesheet, ActionEdit, &Target{TenantID: tenant, OwnerActorID: c.ID, Status: StatusRejected})
		assert.True(t, d.Allowed, "tenant=%q", tenant)
	}
}

func TestEvaluate_UnsupportedActionIsFalse(t *testing.T) {
	d := evaluate(t, actorAs(RoleAdmin), ResourceMilestone, ActionSignOff, &Target{})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRoleDenied, d.Reason)
}

func TestEvaluate_MalformedInput(t *testing.T) {
	m := NewMatrix(Default())

	_, err := Evaluate(m, Actor{ID: "x", TenantID: tenantA, Role: "owner"}, ResourceTimesheet, ActionView, nil)
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = Evaluate(m, actorAs(RoleAdmin), "invoice", ActionView, nil)
	assert.ErrorIs(t, err, ErrUnknownResource)

	_, err = Evaluate(m, Actor{ID: "x", TenantID: tenantA, Role: RoleAdmin, EffectiveRole: "owner"}, ResourceTimesheet, ActionView, nil)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestEvaluate_Impersonation(t *testing.T) {
	m := NewMatrix(Default())

	// admin viendo como viewer: decide como viewer y registra ambos roles.
	a := Actor{ID: "adm", TenantID: tenantA, Role: RoleAdmin, EffectiveRole: RoleViewer}
	d, err := Evaluate(m, a, ResourceMilestone, ActionDelete, &Target{})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, RoleViewer, d.Role)
	assert.Equal(t, RoleAdmin, d.ActualRole)

	// solo un admin puede impersonar
	c := Actor{ID: "c", TenantID: tenantA, Role: RoleContributor, EffectiveRole: RoleAdmin}
	_, err = Evaluate(m, c, ResourceMilestone, ActionDelete, &Target{})
	assert.ErrorIs(t, err, ErrImpersonation)

	// mismo rol no es impersonación
	same := Actor{ID: "c", TenantID: tenantA, Role: RoleContributor, EffectiveRole: RoleContributor}
	_, err = Evaluate(m, same, ResourceMilestone, ActionView, &Target{})
	assert.NoError(t, err)
}

func TestEvaluate_RoleChangeSeenOnNextCheck(t *testing.T) {
	e := NewEngine(Default())
	ctx := context.Background()
	a := actorAs(RoleViewer)
	assert.False(t, e.Can(ctx, a, ResourceMilestone, ActionCreate, nil))
	a.Role = RoleCustomerManager
	assert.True(t, e.Can(ctx, a, ResourceMilestone, ActionCreate, nil))
}

type recordingObserver struct {
	events []DecisionEvent
}

func (r *recordingObserver) ObserveDecision(_ context.Context, ev DecisionEvent) {
	r.events = append(r.events, ev)
}

func TestEngine_NotifiesObservers(t *testing.T) {
	obs := &recordingObserver{}
	e := NewEngine(Default(), obs, nil)
	ctx := context.Background()

	assert.False(t, e.Can(ctx, actorAs(RoleViewer), ResourceKPI, ActionEdit, nil))
	assert.False(t, e.Can(ctx, Actor{Role: "ghost"}, ResourceKPI, ActionEdit, nil))

	require.Len(t, obs.events, 2)
	assert.Equal(t, ReasonRoleDenied, obs.events[0].Decision.Reason)
	assert.ErrorIs(t, obs.events[1].Err, ErrUnknownRole)
}

func TestEngine_Permissions(t *testing.T) {
	obs := &recordingObserver{}
	e := NewEngine(Default(), obs)
	ctx := context.Background()
	c := actorAs(RoleContributor)

	perms, err := e.Permissions(ctx, c, ResourceTimesheet, &Target{TenantID: tenantA, OwnerActorID: c.ID, Status: StatusDraft})
	require.NoError(t, err)
	assert.Equal(t, map[Action]bool{
		ActionView:     true,
		ActionCreate:   true,
		ActionEdit:     true,
		ActionDelete:   true,
		ActionSubmit:   true,
		ActionValidate: false,
		ActionReject:   false,
	}, perms)

	// un evento por acción, con la misma decisión que devolvió el mapa
	require.Len(t, obs.events, len(ActionsFor(ResourceTimesheet)))
	for i, a := range ActionsFor(ResourceTimesheet) {
		ev := obs.events[i]
		assert.Equal(t, a, ev.Action)
		assert.Equal(t, c, ev.Actor)
		assert.Equal(t, perms[a], ev.Decision.Allowed, a)
	}
	assert.Equal(t, ReasonRoleDenied, obs.events[len(obs.events)-1].Decision.Reason)

	obs.events = nil
	perms, err = e.Permissions(ctx, c, ResourceTimesheet, &Target{TenantID: tenantB})
	require.NoError(t, err)
	for a, ok := range perms {
		assert.False(t, ok, a)
	}
	require.Len(t, obs.events, 1)
	assert.Equal(t, ReasonCrossTenant, obs.events[0].Decision.Reason)

	_, err = e.Permissions(ctx, c, "invoice", nil)
	assert.ErrorIs(t, err, ErrUnknownResource)
}
