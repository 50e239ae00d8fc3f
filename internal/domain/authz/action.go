package authz

import (
	"fmt"
	"strings"
)

// Action es un verbo del vocabulario de cada recurso.
type Action string

const (
	ActionView     Action = "view"
	ActionCreate   Action = "create"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
	ActionSubmit   Action = "submit"
	ActionValidate Action = "validate"
	ActionReject   Action = "reject"
	ActionSignOff  Action = "sign_off"
	ActionClose    Action = "close"
)

var crud = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete}

// resourceActions es el vocabulario cerrado por recurso.
// Agregar un verbo acá obliga a declarar la celda para cada rol (ver NewPolicy).
var resourceActions = map[ResourceType][]Action{
	ResourceTimesheet:        append(crud[:4:4], ActionSubmit, ActionValidate, ActionReject),
	ResourceExpense:          append(crud[:4:4], ActionSubmit, ActionValidate, ActionReject),
	ResourceMilestone:        crud,
	ResourceDeliverable:      append(crud[:4:4], ActionSubmit, ActionSignOff),
	ResourceKPI:              crud,
	ResourceQualityStandard:  crud,
	ResourceRAIDItem:         append(crud[:4:4], ActionClose),
	ResourcePartner:          crud,
	ResourceTeamMember:       crud,
	ResourceTenantMembership: crud,
}

// ActionsFor devuelve los verbos soportados por rt (nil si rt es desconocido).
func ActionsFor(rt ResourceType) []Action {
	src, ok := resourceActions[rt]
	if !ok {
		return nil
	}
	out := make([]Action, len(src))
	copy(out, src)
	return out
}

// Supports indica si a pertenece al vocabulario de rt.
func Supports(rt ResourceType, a Action) bool {
	for _, x := range resourceActions[rt] {
		if x == a {
			return true
		}
	}
	return false
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete,
		ActionSubmit, ActionValidate, ActionReject, ActionSignOff, ActionClose:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// IsTransition indica si el verbo mueve el status del objeto.
func IsTransition(rt ResourceType, a Action) bool {
	_, ok := TransitionFor(rt, a)
	return ok
}
