package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/domain/authz/rls"
)

type Service struct {
	repo   Repository
	engine *authz.Engine
	now    func() time.Time
}

func NewService(repo Repository, engine *authz.Engine) *Service {
	return &Service{
		repo:   repo,
		engine: engine,
		now:    time.Now,
	}
}

// sessionOf: la capa de datos solo conoce el rol real de la membresía.
func sessionOf(a authz.Actor) rls.Session {
	return rls.Session{ActorID: a.ID, TenantID: a.TenantID, Role: a.Role}
}

func checkResource(rt authz.ResourceType) error {
	if !Supports(rt) {
		return fmt.Errorf("%w: resource %q", ErrInvalidInput, rt)
	}
	return nil
}

type CreateInput struct {
	Title      string
	Chargeable bool
	Details    map[string]any
}

func (s *Service) Create(ctx context.Context, actor authz.Actor, rt authz.ResourceType, in CreateInput) (Record, error) {
	if err := checkResource(rt); err != nil {
		return Record{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Record{}, fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	if in.Chargeable && rt != authz.ResourceExpense {
		return Record{}, fmt.Errorf("%w: %s is never chargeable", ErrInvalidInput, rt)
	}

	now := s.now()
	rec := Record{
		ID:           uuid.NewString(),
		TenantID:     actor.TenantID,
		Resource:     rt,
		OwnerActorID: actor.ID,
		Status:       authz.InitialStatus(rt),
		Chargeable:   in.Chargeable,
		Title:        title,
		Details:      in.Details,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	target := rec.Target()
	if err := s.authorize(ctx, actor, rt, authz.ActionCreate, &target); err != nil {
		return Record{}, err
	}
	if err := s.repo.Create(ctx, sessionOf(actor), rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, actor authz.Actor, rt authz.ResourceType, id string) (Record, error) {
	return s.load(ctx, actor, rt, id, authz.ActionView)
}

func (s *Service) List(ctx context.Context, actor authz.Actor, rt authz.ResourceType, filter ListFilter) ([]Record, error) {
	if err := checkResource(rt); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, rt, authz.ActionView, nil); err != nil {
		return nil, err
	}

	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}

	items, err := s.repo.List(ctx, sessionOf(actor), rt, filter)
	if err != nil {
		return nil, err
	}

	// La capa de datos ya filtró; acá se aplica el espejo en proceso, que con
	// "ver como" puede ser más estricto.
	out := make([]Record, 0, len(items))
	for _, rec := range items {
		t := rec.Target()
		if s.engine.Can(ctx, actor, rt, authz.ActionView, &t) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, actor authz.Actor, rt authz.ResourceType, id string, p Patch) (Record, error) {
	if p.Empty() {
		return Record{}, fmt.Errorf("%w: empty patch", ErrInvalidInput)
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return Record{}, fmt.Errorf("%w: title required", ErrInvalidInput)
		}
		p.Title = &t
	}
	if p.Chargeable != nil && rt != authz.ResourceExpense {
		return Record{}, fmt.Errorf("%w: %s is never chargeable", ErrInvalidInput, rt)
	}

	if _, err := s.load(ctx, actor, rt, id, authz.ActionEdit); err != nil {
		return Record{}, err
	}
	rec, err := s.repo.Update(ctx, sessionOf(actor), rt, id, p, s.now())
	if err != nil {
		return Record{}, staleIfDenied(err)
	}
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, actor authz.Actor, rt authz.ResourceType, id string) error {
	if _, err := s.load(ctx, actor, rt, id, authz.ActionDelete); err != nil {
		return err
	}
	return staleIfDenied(s.repo.Delete(ctx, sessionOf(actor), rt, id))
}

// Transition ejecuta submit/validate/reject/sign_off/close.
func (s *Service) Transition(ctx context.Context, actor authz.Actor, rt authz.ResourceType, id string, a authz.Action) (Record, error) {
	if err := checkResource(rt); err != nil {
		return Record{}, err
	}
	if !authz.IsTransition(rt, a) {
		return Record{}, fmt.Errorf("%w: %s does not support %q", ErrInvalidInput, rt, a)
	}
	if _, err := s.load(ctx, actor, rt, id, a); err != nil {
		return Record{}, err
	}
	return s.repo.Transition(ctx, sessionOf(actor), rt, id, a, s.now())
}

// Permissions devuelve qué acciones puede intentar el actor: sobre un registro si
// id no es vacío, o a nivel tipo (p.ej. si mostrar "crear").
func (s *Service) Permissions(ctx context.Context, actor authz.Actor, rt authz.ResourceType, id string) (map[authz.Action]bool, error) {
	if err := checkResource(rt); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		t := authz.Target{TenantID: actor.TenantID, OwnerActorID: actor.ID, Status: authz.InitialStatus(rt)}
		return s.engine.Permissions(ctx, actor, rt, &t)
	}
	rec, err := s.load(ctx, actor, rt, id, authz.ActionView)
	if err != nil {
		return nil, err
	}
	t := rec.Target()
	return s.engine.Permissions(ctx, actor, rt, &t)
}

// load resuelve el registro visible para el actor y decide la acción sobre él.
// Un id de otro tenant pasa por el motor (queda registrado) y se responde como
// inexistente.
func (s *Service) load(ctx context.Context, actor authz.Actor, rt authz.ResourceType, id string, a authz.Action) (Record, error) {
	if err := checkResource(rt); err != nil {
		return Record{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Record{}, ErrNotFound
	}

	tenantID, err := s.repo.Locate(ctx, rt, id)
	if err != nil {
		return Record{}, err
	}
	if tenantID != actor.TenantID {
		d, err := s.engine.Authorize(ctx, actor, rt, a, &authz.Target{TenantID: tenantID})
		if err != nil {
			return Record{}, err
		}
		if !d.Allowed {
			return Record{}, ErrNotFound
		}
	}

	rec, err := s.repo.GetByID(ctx, sessionOf(actor), rt, id)
	if err != nil {
		return Record{}, err
	}
	t := rec.Target()
	if err := s.authorize(ctx, actor, rt, a, &t); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Service) authorize(ctx context.Context, actor authz.Actor, rt authz.ResourceType, a authz.Action, t *authz.Target) error {
	d, err := s.engine.Authorize(ctx, actor, rt, a, t)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}
	return nil
}

// Si la capa de aplicación acaba de permitir y la de datos rechaza, la fila cambió
// en el medio.
func staleIfDenied(err error) error {
	if errors.Is(err, ErrPolicyDenied) {
		return fmt.Errorf("%w: %v", ErrStaleState, err)
	}
	return err
}
