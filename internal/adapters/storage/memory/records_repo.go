package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/domain/authz/rls"
	"project-tracker/internal/domain/records"
)

// recordRepo guarda registros en memoria y aplica la política compilada como lo
// haría la base: toda lectura y escritura pasa por rls.
type recordRepo struct {
	mu     sync.RWMutex
	policy *rls.StoragePolicy
	byID   map[authz.ResourceType]map[string]records.Record
}

func NewRecordRepo(policy *rls.StoragePolicy) records.Repository {
	return &recordRepo{
		policy: policy,
		byID:   make(map[authz.ResourceType]map[string]records.Record),
	}
}

func (r *recordRepo) Locate(ctx context.Context, rt authz.ResourceType, id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[rt][id]
	if !ok {
		return "", records.ErrNotFound
	}
	return rec.TenantID, nil
}

func (r *recordRepo) Create(ctx context.Context, s rls.Session, rec records.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("record id required")
	}
	if !r.policy.PermitsAction(authz.ActionCreate, rec.Resource, s, rec.Row()) {
		return records.ErrPolicyDenied
	}

	table := r.byID[rec.Resource]
	if table == nil {
		table = make(map[string]records.Record)
		r.byID[rec.Resource] = table
	}
	if _, exists := table[rec.ID]; exists {
		return errors.New("record already exists")
	}
	table[rec.ID] = clone(rec)
	return nil
}

func (r *recordRepo) GetByID(ctx context.Context, s rls.Session, rt authz.ResourceType, id string) (records.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[rt][id]
	if !ok || !r.policy.Permits(rls.OpSelect, rt, s, rec.Row()) {
		return records.Record{}, records.ErrNotFound
	}
	return clone(rec), nil
}

func (r *recordRepo) List(ctx context.Context, s rls.Session, rt authz.ResourceType, filter records.ListFilter) ([]records.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]records.Record, 0)
	for _, rec := range r.byID[rt] {
		if !r.policy.Permits(rls.OpSelect, rt, s, rec.Row()) {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.OwnerActorID != "" && rec.OwnerActorID != filter.OwnerActorID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(rec.Title), q) {
			continue
		}
		out = append(out, clone(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = records.DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *recordRepo) Update(ctx context.Context, s rls.Session, rt authz.ResourceType, id string, p records.Patch, at time.Time) (records.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.visible(s, rt, id)
	if err != nil {
		return records.Record{}, err
	}
	if !r.policy.PermitsAction(authz.ActionEdit, rt, s, rec.Row()) {
		return records.Record{}, records.ErrPolicyDenied
	}

	rec = p.Apply(rec)
	rec.UpdatedAt = at
	r.byID[rt][id] = clone(rec)
	return rec, nil
}

func (r *recordRepo) Delete(ctx context.Context, s rls.Session, rt authz.ResourceType, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.visible(s, rt, id)
	if err != nil {
		return err
	}
	if !r.policy.PermitsAction(authz.ActionDelete, rt, s, rec.Row()) {
		return records.ErrPolicyDenied
	}
	delete(r.byID[rt], id)
	return nil
}

// Transition: chequeo y escritura bajo el mismo lock; dos llamadas concurrentes
// sobre el mismo registro no pueden ver ambas el status de origen.
func (r *recordRepo) Transition(ctx context.Context, s rls.Session, rt authz.ResourceType, id string, a authz.Action, at time.Time) (records.Record, error) {
	tr, ok := authz.TransitionFor(rt, a)
	if !ok {
		return records.Record{}, records.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.visible(s, rt, id)
	if err != nil {
		return records.Record{}, err
	}
	if !tr.Allows(rec.Status) {
		return records.Record{}, records.ErrStaleState
	}
	if !r.policy.PermitsAction(a, rt, s, rec.Row()) {
		return records.Record{}, records.ErrPolicyDenied
	}

	rec.Status = tr.To
	rec.UpdatedAt = at
	r.byID[rt][id] = clone(rec)
	return rec, nil
}

func (r *recordRepo) visible(s rls.Session, rt authz.ResourceType, id string) (records.Record, error) {
	rec, ok := r.byID[rt][id]
	if !ok || !r.policy.Permits(rls.OpSelect, rt, s, rec.Row()) {
		return records.Record{}, records.ErrNotFound
	}
	return rec, nil
}

// clone copia Details para que el caller no comparta el mapa guardado.
func clone(rec records.Record) records.Record {
	if rec.Details != nil {
		d := make(map[string]any, len(rec.Details))
		for k, v := range rec.Details {
			d[k] = v
		}
		rec.Details = d
	}
	return rec
}
