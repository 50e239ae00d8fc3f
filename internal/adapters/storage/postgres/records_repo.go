package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/domain/authz/rls"
	"project-tracker/internal/domain/records"
)

const recordColumns = "id, tenant_id, owner_actor_id, status, is_chargeable, title, details, created_at, updated_at"

// RecordsRepo guarda cada tipo de registro en su tabla. Además de las políticas
// RLS de la base (policyctl sql), cada escritura lleva en su WHERE la condición de
// la acción compilada desde la misma política: la verificación y el cambio son
// una sola sentencia.
type RecordsRepo struct {
	db     *sql.DB
	policy *rls.StoragePolicy
}

func NewRecordsRepo(db *sql.DB, policy *rls.StoragePolicy) *RecordsRepo {
	return &RecordsRepo{db: db, policy: policy}
}

var _ records.Repository = (*RecordsRepo)(nil)

func table(rt authz.ResourceType) (string, error) {
	t, ok := rls.Table(rt)
	if !ok || !records.Supports(rt) {
		return "", fmt.Errorf("%w: resource %q", records.ErrInvalidInput, rt)
	}
	return t, nil
}

// inSession abre una transacción con la sesión del actor visible para las
// políticas (app.current_actor_id(), app.current_tenant_id()).
func (r *RecordsRepo) inSession(ctx context.Context, s rls.Session, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`SELECT set_config('`+rls.SettingActorID+`', $1, true), set_config('`+rls.SettingTenantID+`', $2, true)`,
		s.ActorID, s.TenantID,
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *RecordsRepo) Locate(ctx context.Context, rt authz.ResourceType, id string) (string, error) {
	tbl, err := table(rt)
	if err != nil {
		return "", err
	}
	var tenant sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT `+rls.DefaultDialect.LocateFunc+`($1, $2)`, tbl, id).Scan(&tenant); err != nil {
		return "", err
	}
	if !tenant.Valid {
		return "", records.ErrNotFound
	}
	return tenant.String, nil
}

func (r *RecordsRepo) Create(ctx context.Context, s rls.Session, rec records.Record) error {
	tbl, err := table(rec.Resource)
	if err != nil {
		return err
	}
	cond, ok := r.policy.Condition(rec.Resource, authz.ActionCreate, s.Role)
	if !ok {
		return records.ErrPolicyDenied
	}
	details, err := marshalDetails(rec.Details)
	if err != nil {
		return err
	}

	where, wargs := rls.Bind(cond, s, 11)
	q := `
		INSERT INTO ` + tbl + ` (` + recordColumns + `)
		SELECT v.* FROM (VALUES ($1::text, $2::text, $3::text, $4::text, $5::boolean, $6::text, $7::jsonb, $8::timestamptz, $9::timestamptz))
			AS v(` + recordColumns + `)
		WHERE v.tenant_id = $10 AND ` + where

	args := append([]any{
		rec.ID, rec.TenantID, rec.OwnerActorID, string(rec.Status), rec.Chargeable,
		rec.Title, details, rec.CreatedAt, rec.UpdatedAt, s.TenantID,
	}, wargs...)

	return r.inSession(ctx, s, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return records.ErrPolicyDenied
		}
		return nil
	})
}

func (r *RecordsRepo) GetByID(ctx context.Context, s rls.Session, rt authz.ResourceType, id string) (records.Record, error) {
	var out records.Record
	err := r.inSession(ctx, s, func(tx *sql.Tx) error {
		rec, err := r.get(ctx, tx, s, rt, id)
		out = rec
		return err
	})
	return out, err
}

func (r *RecordsRepo) get(ctx context.Context, tx *sql.Tx, s rls.Session, rt authz.ResourceType, id string) (records.Record, error) {
	tbl, err := table(rt)
	if err != nil {
		return records.Record{}, err
	}
	id = strings.TrimSpace(id)
	cond, ok := r.policy.Condition(rt, authz.ActionView, s.Role)
	if id == "" || !ok {
		return records.Record{}, records.ErrNotFound
	}
	where, wargs := rls.Bind(cond, s, 3)
	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+tbl+` WHERE id = $1 AND tenant_id = $2 AND `+where,
		append([]any{id, s.TenantID}, wargs...)...,
	)
	return scanRecord(row, rt)
}

func (r *RecordsRepo) List(ctx context.Context, s rls.Session, rt authz.ResourceType, filter records.ListFilter) ([]records.Record, error) {
	tbl, err := table(rt)
	if err != nil {
		return nil, err
	}
	cond, ok := r.policy.Condition(rt, authz.ActionView, s.Role)
	if !ok {
		return []records.Record{}, nil
	}

	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + recordColumns + ` FROM ` + tbl + ` WHERE tenant_id = $1`)
	args := []any{s.TenantID}
	argN := 2

	if filter.Status != "" {
		sb.WriteString(fmt.Sprintf(" AND status = $%d", argN))
		args = append(args, string(filter.Status))
		argN++
	}
	if filter.OwnerActorID != "" {
		sb.WriteString(fmt.Sprintf(" AND owner_actor_id = $%d", argN))
		args = append(args, filter.OwnerActorID)
		argN++
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		sb.WriteString(fmt.Sprintf(" AND title ILIKE $%d", argN))
		args = append(args, "%"+q+"%")
		argN++
	}

	where, wargs := rls.Bind(cond, s, argN)
	sb.WriteString(" AND " + where)
	args = append(args, wargs...)
	argN += len(wargs)

	limit := filter.Limit
	if limit <= 0 {
		limit = records.DefaultListLimit
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", argN))
	args = append(args, limit)

	out := make([]records.Record, 0)
	err = r.inSession(ctx, s, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows, rt)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RecordsRepo) Update(ctx context.Context, s rls.Session, rt authz.ResourceType, id string, p records.Patch, at time.Time) (records.Record, error) {
	tbl, err := table(rt)
	if err != nil {
		return records.Record{}, err
	}
	cond, ok := r.policy.Condition(rt, authz.ActionEdit, s.Role)
	if !ok {
		return records.Record{}, records.ErrPolicyDenied
	}

	sets := []string{}
	args := []any{}
	argN := 1
	set := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argN))
		args = append(args, v)
		argN++
	}
	if p.Title != nil {
		set("title", *p.Title)
	}
	if p.Chargeable != nil {
		set("is_chargeable", *p.Chargeable)
	}
	if p.Details != nil {
		d, err := marshalDetails(p.Details)
		if err != nil {
			return records.Record{}, err
		}
		set("details", d)
	}
	set("updated_at", at)

	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d AND tenant_id = $%d AND `, tbl, strings.Join(sets, ", "), argN, argN+1)
	args = append(args, id, s.TenantID)
	where, wargs := rls.Bind(cond, s, argN+2)
	q += where + ` RETURNING ` + recordColumns
	args = append(args, wargs...)

	var out records.Record
	err = r.inSession(ctx, s, func(tx *sql.Tx) error {
		rec, err := scanRecord(tx.QueryRowContext(ctx, q, args...), rt)
		if errors.Is(err, records.ErrNotFound) {
			return r.classify(ctx, tx, s, rt, id, nil)
		}
		out = rec
		return err
	})
	return out, err
}

func (r *RecordsRepo) Delete(ctx context.Context, s rls.Session, rt authz.ResourceType, id string) error {
	tbl, err := table(rt)
	if err != nil {
		return err
	}
	cond, ok := r.policy.Condition(rt, authz.ActionDelete, s.Role)
	if !ok {
		return records.ErrPolicyDenied
	}
	where, wargs := rls.Bind(cond, s, 3)

	return r.inSession(ctx, s, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM `+tbl+` WHERE id = $1 AND tenant_id = $2 AND `+where,
			append([]any{id, s.TenantID}, wargs...)...,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return r.classify(ctx, tx, s, rt, id, nil)
		}
		return nil
	})
}

func (r *RecordsRepo) Transition(ctx context.Context, s rls.Session, rt authz.ResourceType, id string, a authz.Action, at time.Time) (records.Record, error) {
	tbl, err := table(rt)
	if err != nil {
		return records.Record{}, err
	}
	tr, ok := authz.TransitionFor(rt, a)
	if !ok {
		return records.Record{}, records.ErrInvalidInput
	}
	cond, ok := r.policy.Condition(rt, a, s.Role)
	if !ok {
		return records.Record{}, records.ErrPolicyDenied
	}

	args := []any{string(tr.To), at, id, s.TenantID}
	from := make([]string, 0, len(tr.From))
	for _, st := range tr.From {
		args = append(args, string(st))
		from = append(from, fmt.Sprintf("$%d", len(args)))
	}
	where, wargs := rls.Bind(cond, s, len(args)+1)
	args = append(args, wargs...)

	q := `UPDATE ` + tbl + ` SET status = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4 AND status IN (` + strings.Join(from, ", ") + `) AND ` + where + `
		RETURNING ` + recordColumns

	var out records.Record
	err = r.inSession(ctx, s, func(tx *sql.Tx) error {
		rec, err := scanRecord(tx.QueryRowContext(ctx, q, args...), rt)
		if errors.Is(err, records.ErrNotFound) {
			return r.classify(ctx, tx, s, rt, id, &tr)
		}
		out = rec
		return err
	})
	return out, err
}

// classify explica por qué una escritura condicional no tocó filas.
func (r *RecordsRepo) classify(ctx context.Context, tx *sql.Tx, s rls.Session, rt authz.ResourceType, id string, tr *authz.Transition) error {
	cur, err := r.get(ctx, tx, s, rt, id)
	if err != nil {
		return err
	}
	if tr != nil && !tr.Allows(cur.Status) {
		return records.ErrStaleState
	}
	return records.ErrPolicyDenied
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, rt authz.ResourceType) (records.Record, error) {
	var (
		rec     records.Record
		status  string
		details []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.TenantID,
		&rec.OwnerActorID,
		&status,
		&rec.Chargeable,
		&rec.Title,
		&details,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return records.Record{}, records.ErrNotFound
		}
		return records.Record{}, err
	}
	rec.Resource = rt
	rec.Status = authz.Status(status)
	if len(details) > 0 && string(details) != "null" {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return records.Record{}, fmt.Errorf("decode details: %w", err)
		}
	}
	return rec, nil
}

func marshalDetails(d map[string]any) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("%w: details: %v", records.ErrInvalidInput, err)
	}
	return b, nil
}
