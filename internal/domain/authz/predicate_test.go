package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnership(t *testing.T) {
	p := Owner()
	assert.True(t, p.Eval(Actor{ID: "a"}, Target{OwnerActorID: "a"}))
	assert.False(t, p.Eval(Actor{ID: "a"}, Target{OwnerActorID: "b"}))
	// actor sin id nunca es dueño de un objeto sin dueño
	assert.False(t, p.Eval(Actor{}, Target{}))
}

func TestStatusGate(t *testing.T) {
	p := StatusGate(ResourceTimesheet, ActionSubmit)
	assert.Equal(t, "status_in(Draft,Rejected)", p.Name())
	assert.True(t, p.Eval(Actor{}, Target{Status: StatusDraft}))
	assert.True(t, p.Eval(Actor{}, Target{Status: StatusRejected}))
	assert.False(t, p.Eval(Actor{}, Target{Status: StatusSubmitted}))
	assert.False(t, p.Eval(Actor{}, Target{}))

	assert.Panics(t, func() { StatusGate(ResourceKPI, ActionSubmit) })
}

func TestSideRouting(t *testing.T) {
	p := RouteByFlag(FlagChargeable, RoleFinanceCustomer, RoleFinanceSupplier).(SideRouting)

	set := Target{Flags: map[string]bool{FlagChargeable: true}}
	unset := Target{}

	assert.Equal(t, RoleFinanceCustomer, p.RoutedTo(set))
	assert.Equal(t, RoleFinanceSupplier, p.RoutedTo(unset))

	assert.True(t, p.Eval(Actor{Role: RoleFinanceCustomer}, set))
	assert.False(t, p.Eval(Actor{Role: RoleFinanceCustomer}, unset))
	assert.True(t, p.Eval(Actor{Role: RoleFinanceSupplier}, unset))
	assert.False(t, p.Eval(Actor{Role: RoleFinanceSupplier}, set))
	assert.False(t, p.Eval(Actor{Role: RoleAdmin}, set))

	// se evalúa con el rol efectivo
	assert.True(t, p.Eval(Actor{Role: RoleAdmin, EffectiveRole: RoleFinanceCustomer}, set))
}

func TestCombinators(t *testing.T) {
	owner := Actor{ID: "a", Role: RoleContributor}
	manager := Actor{ID: "m", Role: RoleSupplierManager}
	draft := Target{OwnerActorID: "a", Status: StatusDraft}
	submitted := Target{OwnerActorID: "a", Status: StatusSubmitted}

	either := Any("owner_or_manager", Owner(), AnyRole(RoleSupplierManager))
	assert.Equal(t, "owner_or_manager", either.Name())
	assert.True(t, either.Eval(owner, draft))
	assert.True(t, either.Eval(manager, draft))
	assert.False(t, either.Eval(Actor{ID: "z", Role: RoleContributor}, draft))

	all := All("edit", Statuses(StatusDraft), either)
	assert.True(t, all.Eval(owner, draft))
	assert.False(t, all.Eval(owner, submitted))
	assert.False(t, All("empty").Eval(owner, draft))
	assert.False(t, Any("empty").Eval(owner, draft))

	not := Negate(Owner())
	assert.Equal(t, "not(ownership)", not.Name())
	assert.False(t, not.Eval(owner, draft))
	assert.True(t, not.Eval(manager, draft))
}

func TestDefaultRulesNamed(t *testing.T) {
	for _, d := range Default().Declarations() {
		if d.Rule != nil {
			assert.NotEmpty(t, d.Rule.Name(), "%s.%s", d.Resource, d.Action)
		}
	}
}
