package authz

import (
	"context"
	"errors"

	"project-tracker/internal/platform/logger"
)

// LogObserver registra decisiones con la severidad que corresponde a cada clase:
// entrada mal formada -> error, cruce de tenant -> warn (evento de seguridad),
// denegación común -> debug.
type LogObserver struct {
	log logger.Logger
}

func NewLogObserver(l logger.Logger) *LogObserver {
	return &LogObserver{log: l.With(map[string]any{"component": "authz"})}
}

func (o *LogObserver) ObserveDecision(_ context.Context, ev DecisionEvent) {
	fields := map[string]any{
		"actor_id":  ev.Actor.ID,
		"tenant_id": ev.Actor.TenantID,
		"role":      string(ev.Actor.Role),
		"resource":  string(ev.Resource),
		"action":    string(ev.Action),
	}
	if ev.Actor.Impersonating() {
		fields["effective_role"] = string(ev.Actor.EffectiveRole)
	}

	if ev.Err != nil {
		fields["err"] = ev.Err.Error()
		if errors.Is(ev.Err, ErrImpersonation) {
			fields["security_event"] = "impersonation_rejected"
			o.log.Warn("authz: impersonation rejected", fields)
			return
		}
		o.log.Error("authz: malformed authorization input", fields)
		return
	}

	d := ev.Decision
	fields["reason"] = string(d.Reason)
	if d.Rule != "" {
		fields["rule"] = d.Rule
	}

	switch d.Reason {
	case ReasonCrossTenant:
		fields["security_event"] = string(ReasonCrossTenant)
		o.log.Warn("authz: cross-tenant access denied", fields)
	case ReasonRoleDenied, ReasonObjectRuleDenied:
		o.log.Debug("authz: denied", fields)
	}
}
