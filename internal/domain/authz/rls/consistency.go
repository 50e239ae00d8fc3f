package rls

import (
	"fmt"

	"project-tracker/internal/domain/authz"
)

// Divergence es un caso en que la capa de aplicación permite algo que la capa de
// datos no.
type Divergence struct {
	Actor    authz.Actor
	Resource authz.ResourceType
	Action   authz.Action
	Target   authz.Target
}

func (d Divergence) String() string {
	return fmt.Sprintf("%s(as %s) %s.%s on tenant=%q owner=%q status=%q flags=%v",
		d.Actor.Role, d.Actor.Effective(), d.Resource, d.Action,
		d.Target.TenantID, d.Target.OwnerActorID, d.Target.Status, d.Target.Flags)
}

const (
	sweepSelf   = "actor-self"
	sweepOther  = "actor-other"
	sweepHome   = "tenant-home"
	sweepRemote = "tenant-remote"
)

// CheckConsistency recorre exhaustivamente rol (y rol efectivo para admin) ×
// recurso × acción × estado × dueño × flags × tenant, y devuelve cada tupla en la
// que Evaluate permite y la política compilada deniega. Vacío significa que la
// capa de aplicación es un espejo igual o más estricto.
func CheckConsistency(p *authz.Policy, sp *StoragePolicy) ([]Divergence, error) {
	var out []Divergence
	for _, rt := range authz.Resources() {
		ds, err := CheckResource(p, sp, rt)
		if err != nil {
			return nil, err
		}
		out = append(out, ds...)
	}
	return out, nil
}

// CheckResource es el barrido de CheckConsistency restringido a un recurso.
func CheckResource(p *authz.Policy, sp *StoragePolicy, rt authz.ResourceType) ([]Divergence, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: %q", authz.ErrUnknownResource, rt)
	}
	m := authz.NewMatrix(p)

	var actors []authz.Actor
	for _, role := range authz.Roles() {
		actors = append(actors, authz.Actor{ID: sweepSelf, TenantID: sweepHome, Role: role})
	}
	for _, eff := range authz.Roles() {
		if eff != authz.RoleAdmin {
			actors = append(actors, authz.Actor{ID: sweepSelf, TenantID: sweepHome, Role: authz.RoleAdmin, EffectiveRole: eff})
		}
	}

	statuses := append([]authz.Status{""}, authz.StatusesFor(rt)...)
	flagSets := flagCombinations(authz.FlagsFor(rt))

	var out []Divergence
	for _, a := range authz.ActionsFor(rt) {
		for _, actor := range actors {
			sess := Session{ActorID: actor.ID, TenantID: actor.TenantID, Role: actor.Role}
			for _, tenant := range []string{sweepHome, sweepRemote} {
				for _, st := range statuses {
					for _, owner := range []string{sweepSelf, sweepOther} {
						for _, flags := range flagSets {
							tg := authz.Target{TenantID: tenant, OwnerActorID: owner, Status: st, Flags: flags}
							d, err := authz.Evaluate(m, actor, rt, a, &tg)
							if err != nil {
								return nil, err
							}
							if !d.Allowed {
								continue
							}
							row := Row{TenantID: tenant, OwnerActorID: owner, Status: st, Flags: flags}
							if !sp.PermitsAction(a, rt, sess, row) || !sp.Permits(OperationOf(a), rt, sess, row) {
								out = append(out, Divergence{Actor: actor, Resource: rt, Action: a, Target: tg})
							}
						}
					}
				}
			}
		}
	}
	return out, nil
}

// flagCombinations es el producto cartesiano de los flags en {false, true}.
// Sin flags devuelve un único conjunto nil.
func flagCombinations(flags []string) []map[string]bool {
	out := []map[string]bool{nil}
	for _, f := range flags {
		next := make([]map[string]bool, 0, len(out)*2)
		for _, base := range out {
			for _, v := range []bool{false, true} {
				set := make(map[string]bool, len(base)+1)
				for k, bv := range base {
					set[k] = bv
				}
				set[f] = v
				next = append(next, set)
			}
		}
		out = next
	}
	return out
}
