package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, channel domain.CampaignChannel, value string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppressions WHERE channel = $1 AND value = $2)`,
		channel, value,
	).Scan(&exists)
	return exists, err
}

// Suppress keeps the first record of an address; later signals are no-ops.
func (r *SuppressionRepo) Suppress(ctx context.Context, s *domain.Suppression) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (id, channel, value, reason, source, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (channel, value) DO NOTHING
	`, s.ID, s.Channel, s.Value, s.Reason, s.Source)
	if err != nil {
		return fmt.Errorf("suppress: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, channel domain.CampaignChannel, value string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE channel = $1 AND value = $2`,
		channel, value,
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

// List returns every matching entry when f.Limit is zero.
func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	var w where
	if f.Channel != "" {
		w.add("channel = $%d", f.Channel)
	}
	if f.Reason != "" {
		w.add("reason = $%d", f.Reason)
	}
	if f.Search != "" {
		w.add("value ILIKE $%d", "%"+f.Search+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppressions`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	q, args := w.page(`SELECT id, channel, value, reason, source, created_at FROM suppressions`+w.sql()+
		` ORDER BY created_at DESC`, limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	out := []domain.Suppression{}
	for rows.Next() {
		var s domain.Suppression
		if err := rows.Scan(&s.ID, &s.Channel, &s.Value, &s.Reason, &s.Source, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}
