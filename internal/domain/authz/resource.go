package authz

import (
	"fmt"
	"strings"
)

// ResourceType identifica el tipo de registro protegido.
type ResourceType string

const (
	ResourceTimesheet        ResourceType = "timesheet"
	ResourceExpense          ResourceType = "expense"
	ResourceMilestone        ResourceType = "milestone"
	ResourceDeliverable      ResourceType = "deliverable"
	ResourceKPI              ResourceType = "kpi"
	ResourceQualityStandard  ResourceType = "quality_standard"
	ResourceRAIDItem         ResourceType = "raid_item"
	ResourcePartner          ResourceType = "partner"
	ResourceTeamMember       ResourceType = "resource"
	ResourceTenantMembership ResourceType = "tenant_membership"
)

var allResources = []ResourceType{
	ResourceTimesheet,
	ResourceExpense,
	ResourceMilestone,
	ResourceDeliverable,
	ResourceKPI,
	ResourceQualityStandard,
	ResourceRAIDItem,
	ResourcePartner,
	ResourceTeamMember,
	ResourceTenantMembership,
}

func Resources() []ResourceType {
	out := make([]ResourceType, len(allResources))
	copy(out, allResources)
	return out
}

func (rt ResourceType) Valid() bool {
	_, ok := resourceActions[rt]
	return ok
}

func ParseResource(s string) (ResourceType, error) {
	rt := ResourceType(strings.ToLower(strings.TrimSpace(s)))
	if !rt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, s)
	}
	return rt, nil
}

// Flags de objeto que pueden participar en reglas.
const (
	FlagChargeable = "is_chargeable"
)

var resourceFlags = map[ResourceType][]string{
	ResourceExpense: {FlagChargeable},
}

// FlagsFor lista los flags de gating que expone el tipo de recurso.
func FlagsFor(rt ResourceType) []string {
	src := resourceFlags[rt]
	out := make([]string, len(src))
	copy(out, src)
	return out
}
