package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/immo-leads/internal/auth"
	"github.com/ignite/immo-leads/internal/domain"
)

// AdminRepo implements auth.AdminRepository against PostgreSQL.
type AdminRepo struct{ db *sql.DB }

// NewAdminRepo creates a Postgres-backed admin repository.
func NewAdminRepo(db *sql.DB) *AdminRepo { return &AdminRepo{db: db} }

const adminColumns = `id, email, name, phone, password_hash, active, last_login_at, created_at`

func (r *AdminRepo) one(ctx context.Context, q string, arg interface{}) (*domain.AdminUser, error) {
	var (
		a     domain.AdminUser
		login sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&a.ID, &a.Email, &a.Name, &a.Phone,
		&a.PasswordHash, &a.Active, &login, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, auth.ErrAdminNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	a.LastLoginAt = timePtr(login)
	return &a, nil
}

func (r *AdminRepo) Create(ctx context.Context, a *domain.AdminUser) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_users (id, email, name, phone, password_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Email, a.Name, a.Phone, a.PasswordHash, a.Active, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

func (r *AdminRepo) Get(ctx context.Context, id string) (*domain.AdminUser, error) {
	return r.one(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE id = $1`, id)
}

func (r *AdminRepo) GetByEmail(ctx context.Context, email string) (*domain.AdminUser, error) {
	return r.one(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE email = lower($1)`, email)
}

func (r *AdminRepo) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE admin_users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch admin login: %w", err)
	}
	return nil
}

// SetPassword replaces an admin's password hash.
func (r *AdminRepo) SetPassword(ctx context.Context, email, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE admin_users SET password_hash = $2 WHERE email = lower($1)`, email, hash)
	if err != nil {
		return fmt.Errorf("set admin password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrAdminNotFound
	}
	return nil
}
