package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/domain/memberships"
)

const membershipColumns = "id, tenant_id, actor_id, role, status, invited_by, created_at, updated_at, revoked_at"

// uniqueViolation es el SQLSTATE del índice parcial "una activa por (tenant, actor)".
const uniqueViolation = "23505"

// MembershipsRepo corre como dueño de tenant_memberships: es la tabla que las
// políticas RLS consultan para resolver el rol, por eso no lleva FORCE.
type MembershipsRepo struct {
	db *sql.DB
}

func NewMembershipsRepo(db *sql.DB) *MembershipsRepo {
	return &MembershipsRepo{db: db}
}

var _ memberships.Repository = (*MembershipsRepo)(nil)

func (r *MembershipsRepo) CreateTenant(ctx context.Context, t memberships.Tenant, founder memberships.Membership) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenants (id, name, created_by, created_at)
		VALUES ($1,$2,$3,$4)
	`, t.ID, t.Name, t.CreatedBy, t.CreatedAt); err != nil {
		return err
	}
	if err := insertMembership(ctx, tx, founder); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *MembershipsRepo) GetTenant(ctx context.Context, id string) (memberships.Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return memberships.Tenant{}, memberships.ErrNotFound
	}

	var t memberships.Tenant
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, created_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.CreatedBy, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return memberships.Tenant{}, memberships.ErrNotFound
	}
	return t, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMembership(ctx context.Context, db execer, m memberships.Membership) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tenant_memberships (`+membershipColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		m.ID,
		m.TenantID,
		m.ActorID,
		string(m.Role),
		string(m.Status),
		m.InvitedBy,
		m.CreatedAt,
		m.UpdatedAt,
		toNullTime(m.RevokedAt),
	)
	return mapUnique(err)
}

func (r *MembershipsRepo) Create(ctx context.Context, m memberships.Membership) error {
	return insertMembership(ctx, r.db, m)
}

func (r *MembershipsRepo) Update(ctx context.Context, m memberships.Membership, from memberships.Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tenant_memberships
		SET
			role = $2,
			status = $3,
			invited_by = $4,
			updated_at = $5,
			revoked_at = $6
		WHERE id = $1 AND status = $7
	`,
		m.ID,
		string(m.Role),
		string(m.Status),
		m.InvitedBy,
		m.UpdatedAt,
		toNullTime(m.RevokedAt),
		string(from),
	)
	if err != nil {
		return mapUnique(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// 0 filas: o no existe, o alguien cambió el estado antes.
	var cur string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM tenant_memberships WHERE id = $1`, m.ID).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return memberships.ErrNotFound
	}
	if err != nil {
		return err
	}
	return memberships.ErrStaleState
}

func (r *MembershipsRepo) GetByID(ctx context.Context, id string) (memberships.Membership, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return memberships.Membership{}, memberships.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM tenant_memberships WHERE id = $1`, id)
	return scanMembership(row)
}

func (r *MembershipsRepo) ListByTenant(ctx context.Context, tenantID string) ([]memberships.Membership, error) {
	return r.list(ctx, `SELECT `+membershipColumns+` FROM tenant_memberships WHERE tenant_id = $1 ORDER BY created_at ASC, id`, tenantID)
}

func (r *MembershipsRepo) ListByActor(ctx context.Context, actorID string) ([]memberships.Membership, error) {
	return r.list(ctx, `SELECT `+membershipColumns+` FROM tenant_memberships WHERE actor_id = $1 ORDER BY updated_at DESC, id`, actorID)
}

func (r *MembershipsRepo) GetActive(ctx context.Context, tenantID, actorID string) (memberships.Membership, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+membershipColumns+`
		FROM tenant_memberships
		WHERE tenant_id = $1
		  AND actor_id = $2
		  AND status = 'active'
	`, tenantID, actorID)
	return scanMembership(row)
}

func (r *MembershipsRepo) list(ctx context.Context, q string, arg string) ([]memberships.Membership, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return []memberships.Membership{}, nil
	}
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]memberships.Membership, 0)
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMembership(row scanner) (memberships.Membership, error) {
	var (
		m         memberships.Membership
		role      string
		status    string
		revokedAt sql.NullTime
	)
	if err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.ActorID,
		&role,
		&status,
		&m.InvitedBy,
		&m.CreatedAt,
		&m.UpdatedAt,
		&revokedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return memberships.Membership{}, memberships.ErrNotFound
		}
		return memberships.Membership{}, err
	}
	m.Role = authz.Role(role)
	m.Status = memberships.Status(status)
	if revokedAt.Valid {
		t := revokedAt.Time
		m.RevokedAt = &t
	}
	return m, nil
}

func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return memberships.ErrAlreadyMember
	}
	return err
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
