package authz

import (
	"context"
	"fmt"
)

// Reason identifica qué paso produjo la decisión.
type Reason string

const (
	ReasonGranted          Reason = "granted"
	ReasonObjectRulePassed Reason = "object_rule_passed"
	ReasonCrossTenant      Reason = "cross_tenant_access"
	ReasonRoleDenied       Reason = "role_denied"
	ReasonObjectRuleDenied Reason = "object_rule_denied"
)

// Decision es el resultado de un chequeo. Una denegación es un valor, no un error.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Rule es el nombre de la regla de objeto evaluada, si hubo una.
	Rule string
	// Role es el rol efectivo con el que se evaluó; ActualRole el de la membresía.
	Role       Role
	ActualRole Role
}

// Evaluate es la decisión pura: sin I/O y sin estado.
//
// target nil significa "sin instancia" (p.ej. mostrar el botón de crear). Si la
// celda tiene una regla de objeto se evalúa contra un Target vacío, lo que
// normalmente deniega.
func Evaluate(m *Matrix, actor Actor, rt ResourceType, a Action, target *Target) (Decision, error) {
	if !actor.Role.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownRole, actor.Role)
	}
	eff := actor.Effective()
	if !eff.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownRole, eff)
	}
	if actor.Impersonating() && actor.Role != RoleAdmin {
		return Decision{}, ErrImpersonation
	}
	if !rt.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownResource, rt)
	}

	d := Decision{Role: eff, ActualRole: actor.Role}

	// 1. tenant: antes que cualquier otra cosa, para todo rol.
	if target != nil && target.TenantID != "" && target.TenantID != actor.TenantID {
		d.Reason = ReasonCrossTenant
		return d, nil
	}

	// 2. matriz
	g, err := m.grant(eff, rt, a)
	if err != nil {
		return Decision{}, err
	}
	if !g.Allowed {
		d.Reason = ReasonRoleDenied
		return d, nil
	}

	// 3. sin regla: el sí del rol es final
	if g.Rule == nil {
		d.Allowed = true
		d.Reason = ReasonGranted
		return d, nil
	}

	// 4. regla de objeto
	var t Target
	if target != nil {
		t = *target
	}
	d.Rule = g.Rule.Name()
	if g.Rule.Eval(actor, t) {
		d.Allowed = true
		d.Reason = ReasonObjectRulePassed
	} else {
		d.Reason = ReasonObjectRuleDenied
	}
	return d, nil
}

// DecisionEvent es lo que recibe un Observer por cada chequeo.
type DecisionEvent struct {
	Actor    Actor
	Resource ResourceType
	Action   Action
	Decision Decision
	Err      error
}

// Observer recibe cada decisión (auditoría, detección de sondeo entre tenants).
// No puede cambiar el resultado.
type Observer interface {
	ObserveDecision(ctx context.Context, ev DecisionEvent)
}

// Engine es Evaluate más observadores. No cachea nada: el rol llega en el Actor de
// cada llamada, así un cambio de rol se ve en el chequeo siguiente.
type Engine struct {
	matrix    *Matrix
	observers []Observer
}

func NewEngine(p *Policy, observers ...Observer) *Engine {
	obs := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			obs = append(obs, o)
		}
	}
	return &Engine{matrix: NewMatrix(p), observers: obs}
}

func (e *Engine) Matrix() *Matrix { return e.matrix }

func (e *Engine) Authorize(ctx context.Context, actor Actor, rt ResourceType, a Action, target *Target) (Decision, error) {
	d, err := Evaluate(e.matrix, actor, rt, a, target)
	e.notify(ctx, DecisionEvent{Actor: actor, Resource: rt, Action: a, Decision: d, Err: err})
	return d, err
}

// Can es Authorize para la UI: cualquier error se degrada a false.
func (e *Engine) Can(ctx context.Context, actor Actor, rt ResourceType, a Action, target *Target) bool {
	d, err := e.Authorize(ctx, actor, rt, a, target)
	return err == nil && d.Allowed
}

// Permissions evalúa todas las acciones de rt para el actor y notifica cada
// decisión. Un target de otro tenant genera un único evento, no uno por acción.
func (e *Engine) Permissions(ctx context.Context, actor Actor, rt ResourceType, target *Target) (map[Action]bool, error) {
	actions := ActionsFor(rt)
	if actions == nil {
		err := fmt.Errorf("%w: %q", ErrUnknownResource, rt)
		e.notify(ctx, DecisionEvent{Actor: actor, Resource: rt, Err: err})
		return nil, err
	}

	out := make(map[Action]bool, len(actions))
	for i, a := range actions {
		d, err := Evaluate(e.matrix, actor, rt, a, target)
		if err != nil {
			e.notify(ctx, DecisionEvent{Actor: actor, Resource: rt, Action: a, Err: err})
			return nil, err
		}
		if d.Reason == ReasonCrossTenant {
			if i == 0 {
				e.notify(ctx, DecisionEvent{Actor: actor, Resource: rt, Action: a, Decision: d})
			}
			out[a] = false
			continue
		}
		e.notify(ctx, DecisionEvent{Actor: actor, Resource: rt, Action: a, Decision: d})
		out[a] = d.Allowed
	}
	return out, nil
}

func (e *Engine) notify(ctx context.Context, ev DecisionEvent) {
	for _, o := range e.observers {
		o.ObserveDecision(ctx, ev)
	}
}
