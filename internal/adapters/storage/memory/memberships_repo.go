package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"project-tracker/internal/domain/memberships"
)

type membershipRepo struct {
	mu      sync.RWMutex
	tenants map[string]memberships.Tenant
	byID    map[string]memberships.Membership
}

func NewMembershipRepo() memberships.Repository {
	return &membershipRepo{
		tenants: make(map[string]memberships.Tenant),
		byID:    make(map[string]memberships.Membership),
	}
}

func (r *membershipRepo) CreateTenant(ctx context.Context, t memberships.Tenant, founder memberships.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" || founder.ID == "" {
		return errors.New("tenant and membership id required")
	}
	if _, exists := r.tenants[t.ID]; exists {
		return errors.New("tenant already exists")
	}
	if _, exists := r.byID[founder.ID]; exists {
		return errors.New("membership already exists")
	}
	r.tenants[t.ID] = t
	r.byID[founder.ID] = founder
	return nil
}

func (r *membershipRepo) GetTenant(ctx context.Context, id string) (memberships.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return memberships.Tenant{}, memberships.ErrNotFound
	}
	return t, nil
}

func (r *membershipRepo) Create(ctx context.Context, m memberships.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == "" {
		return errors.New("membership id required")
	}
	if _, exists := r.byID[m.ID]; exists {
		return errors.New("membership already exists")
	}
	if _, ok := r.tenants[m.TenantID]; !ok {
		return memberships.ErrNotFound
	}
	r.byID[m.ID] = m
	return nil
}

func (r *membershipRepo) Update(ctx context.Context, m memberships.Membership, from memberships.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == "" {
		return errors.New("membership id required")
	}
	cur, exists := r.byID[m.ID]
	if !exists {
		return memberships.ErrNotFound
	}
	if cur.Status != from {
		return memberships.ErrStaleState
	}
	// mismo índice único que la tabla: una activa por (tenant, usuario)
	if m.Status == memberships.StatusActive {
		for _, other := range r.byID {
			if other.ID != m.ID && other.TenantID == m.TenantID && other.ActorID == m.ActorID && other.Status == memberships.StatusActive {
				return memberships.ErrAlreadyMember
			}
		}
	}
	r.byID[m.ID] = m
	return nil
}

func (r *membershipRepo) GetByID(ctx context.Context, id string) (memberships.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return memberships.Membership{}, memberships.ErrNotFound
	}
	return m, nil
}

func (r *membershipRepo) ListByTenant(ctx context.Context, tenantID string) ([]memberships.Membership, error) {
	return r.filter(func(m memberships.Membership) bool { return m.TenantID == tenantID }), nil
}

func (r *membershipRepo) ListByActor(ctx context.Context, actorID string) ([]memberships.Membership, error) {
	return r.filter(func(m memberships.Membership) bool { return m.ActorID == actorID }), nil
}

func (r *membershipRepo) GetActive(ctx context.Context, tenantID, actorID string) (memberships.Membership, error) {
	items := r.filter(func(m memberships.Membership) bool {
		return m.TenantID == tenantID && m.ActorID == actorID && m.Status == memberships.StatusActive
	})
	if len(items) == 0 {
		return memberships.Membership{}, memberships.ErrNotFound
	}
	return items[0], nil
}

func (r *membershipRepo) filter(keep func(memberships.Membership) bool) []memberships.Membership {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]memberships.Membership, 0)
	for _, m := range r.byID {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
