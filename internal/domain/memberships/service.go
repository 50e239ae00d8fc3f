package memberships

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/ports/capabilities"
)

type Service struct {
	repo   Repository
	engine *authz.Engine
	caps   capabilities.Resolver
	now    func() time.Time
}

// NewService: caps puede ser nil; en ese caso nadie puede crear tenants.
func NewService(repo Repository, engine *authz.Engine, caps capabilities.Resolver) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		caps:   caps,
		now:    time.Now,
	}
}

// CreateTenant requiere platform:admin. El creador queda como admin activo.
func (s *Service) CreateTenant(ctx context.Context, userID, name string) (Tenant, Membership, error) {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return Tenant{}, Membership{}, ErrInvalidInput
	}

	if s.caps == nil {
		return Tenant{}, Membership{}, ErrForbidden
	}
	ok, err := s.caps.Has(ctx, userID, capabilities.PlatformAdmin)
	if err != nil {
		return Tenant{}, Membership{}, fmt.Errorf("resolve capabilities: %w", err)
	}
	if !ok {
		return Tenant{}, Membership{}, ErrForbidden
	}

	now := s.now()
	t := Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: userID,
		CreatedAt: now,
	}
	m := Membership{
		ID:        uuid.NewString(),
		TenantID:  t.ID,
		ActorID:   userID,
		Role:      authz.RoleAdmin,
		Status:    StatusActive,
		InvitedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateTenant(ctx, t, m); err != nil {
		return Tenant{}, Membership{}, err
	}
	return t, m, nil
}

type InviteInput struct {
	ActorID string
	Role    authz.Role
}

// Invite crea una invitación. Re-invitar a alguien con invitación pendiente
// actualiza el rol de esa misma invitación.
func (s *Service) Invite(ctx context.Context, actor authz.Actor, in InviteInput) (Membership, error) {
	inviteeID := strings.TrimSpace(in.ActorID)
	if inviteeID == "" || !in.Role.Valid() {
		return Membership{}, ErrInvalidInput
	}

	target := authz.Target{TenantID: actor.TenantID, OwnerActorID: inviteeID}
	if err := s.authorize(ctx, actor, authz.ActionCreate, &target); err != nil {
		return Membership{}, err
	}

	now := s.now()

	existing, err := s.latestFor(ctx, actor.TenantID, inviteeID)
	if err != nil {
		return Membership{}, err
	}
	switch existing.Status {
	case StatusActive:
		return Membership{}, ErrAlreadyMember
	case StatusInvited:
		existing.Role = in.Role
		existing.InvitedBy = actor.ID
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing, StatusInvited); err != nil {
			return Membership{}, err
		}
		return existing, nil
	}

	m := Membership{
		ID:        uuid.NewString(),
		TenantID:  actor.TenantID,
		ActorID:   inviteeID,
		Role:      in.Role,
		Status:    StatusInvited,
		InvitedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// Accept lo ejecuta el invitado; todavía no es actor del tenant, por eso se
// valida por identidad y no con la matriz.
func (s *Service) Accept(ctx context.Context, userID, membershipID string) (Membership, error) {
	userID = strings.TrimSpace(userID)
	membershipID = strings.TrimSpace(membershipID)
	if userID == "" || membershipID == "" {
		return Membership{}, ErrInvalidInput
	}

	m, err := s.repo.GetByID(ctx, membershipID)
	if err != nil {
		return Membership{}, err
	}
	if m.ActorID != userID {
		// no revelar invitaciones ajenas
		return Membership{}, ErrNotFound
	}

	switch m.Status {
	case StatusActive:
		return m, nil
	case StatusRevoked:
		return Membership{}, ErrBadState
	}

	if _, err := s.repo.GetActive(ctx, m.TenantID, userID); err == nil {
		return Membership{}, ErrAlreadyMember
	} else if !errors.Is(err, ErrNotFound) {
		return Membership{}, err
	}

	from := m.Status
	m.Status = StatusActive
	m.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, m, from); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// ChangeRole es la única forma de mutar el rol de un actor.
func (s *Service) ChangeRole(ctx context.Context, actor authz.Actor, membershipID string, role authz.Role) (Membership, error) {
	if !role.Valid() {
		return Membership{}, ErrInvalidInput
	}
	m, err := s.load(ctx, actor, membershipID, authz.ActionEdit)
	if err != nil {
		return Membership{}, err
	}
	if m.Status == StatusRevoked {
		return Membership{}, ErrBadState
	}
	if m.Role == role {
		return m, nil
	}

	m.Role = role
	m.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, m, m.Status); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// Revoke destruye al actor: desde ahora ResolveActor falla para ese usuario.
func (s *Service) Revoke(ctx context.Context, actor authz.Actor, membershipID string) (Membership, error) {
	m, err := s.load(ctx, actor, membershipID, authz.ActionDelete)
	if err != nil {
		return Membership{}, err
	}

	// Idempotente
	if m.Status == StatusRevoked {
		return m, nil
	}

	from := m.Status
	now := s.now()
	m.Status = StatusRevoked
	m.UpdatedAt = now
	m.RevokedAt = &now
	if err := s.repo.Update(ctx, m, from); err != nil {
		return Membership{}, err
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, actor authz.Actor) ([]Membership, error) {
	if err := s.authorize(ctx, actor, authz.ActionView, nil); err != nil {
		return nil, err
	}
	return s.repo.ListByTenant(ctx, actor.TenantID)
}

// ListMine devuelve las membresías del usuario en todos los tenants,
// opcionalmente filtradas por status.
func (s *Service) ListMine(ctx context.Context, userID string, statuses ...Status) ([]Membership, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	items, err := s.repo.ListByActor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return items, nil
	}

	allowed := make(map[Status]struct{}, len(statuses))
	for _, st := range statuses {
		allowed[st] = struct{}{}
	}
	out := make([]Membership, 0, len(items))
	for _, m := range items {
		if _, ok := allowed[m.Status]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// ResolveActor lee la membresía activa en cada request: un cambio de rol o una
// revocación se ven en el siguiente chequeo. viewAs vacío significa sin
// impersonación; solo un admin puede usarlo.
func (s *Service) ResolveActor(ctx context.Context, tenantID, userID, viewAs string) (authz.Actor, error) {
	tenantID = strings.TrimSpace(tenantID)
	userID = strings.TrimSpace(userID)
	if tenantID == "" || userID == "" {
		return authz.Actor{}, authz.ErrNotMember
	}

	m, err := s.repo.GetActive(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return authz.Actor{}, authz.ErrNotMember
		}
		return authz.Actor{}, err
	}
	actor := m.Actor()

	if strings.TrimSpace(viewAs) == "" {
		return actor, nil
	}
	eff, err := authz.ParseRole(viewAs)
	if err != nil {
		return authz.Actor{}, err
	}
	if actor.Role != authz.RoleAdmin {
		return authz.Actor{}, authz.ErrImpersonation
	}
	actor.EffectiveRole = eff
	return actor, nil
}

func (s *Service) load(ctx context.Context, actor authz.Actor, membershipID string, a authz.Action) (Membership, error) {
	membershipID = strings.TrimSpace(membershipID)
	if membershipID == "" {
		return Membership{}, ErrNotFound
	}

	m, err := s.repo.GetByID(ctx, membershipID)
	if err != nil {
		return Membership{}, err
	}

	t := m.Target()
	d, err := s.engine.Authorize(ctx, actor, authz.ResourceTenantMembership, a, &t)
	if err != nil {
		return Membership{}, err
	}
	if !d.Allowed {
		if d.Reason == authz.ReasonCrossTenant {
			return Membership{}, ErrNotFound
		}
		return Membership{}, fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}
	return m, nil
}

func (s *Service) authorize(ctx context.Context, actor authz.Actor, a authz.Action, t *authz.Target) error {
	d, err := s.engine.Authorize(ctx, actor, authz.ResourceTenantMembership, a, t)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}
	return nil
}

// latestFor devuelve la membresía más reciente de (tenant, usuario), o una vacía.
func (s *Service) latestFor(ctx context.Context, tenantID, actorID string) (Membership, error) {
	items, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return Membership{}, err
	}
	var winner Membership
	for _, m := range items {
		if m.ActorID != actorID {
			continue
		}
		if winner.ID == "" || m.UpdatedAt.After(winner.UpdatedAt) {
			winner = m
		}
	}
	return winner, nil
}
