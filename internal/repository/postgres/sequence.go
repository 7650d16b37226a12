package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/service/sequence"
)

// SequenceRepo implements sequence.Repository against PostgreSQL.
type SequenceRepo struct{ db *sql.DB }

// NewSequenceRepo creates a Postgres-backed drip repository.
func NewSequenceRepo(db *sql.DB) *SequenceRepo { return &SequenceRepo{db: db} }

const sequenceColumns = `id, lead_id, guide_id, persona, email, first_name, step, day_offset,
	template_key, status, attempts, last_error, scheduled_for, sent_at, created_at, updated_at`

func scanSequence(s rowScanner) (*domain.EmailSequence, error) {
	var (
		e      domain.EmailSequence
		sentAt sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.LeadID, &e.GuideID, &e.Persona, &e.Email, &e.FirstName,
		&e.Step, &e.DayOffset, &e.TemplateKey, &e.Status, &e.Attempts, &e.LastError,
		&e.ScheduledFor, &sentAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.SentAt = timePtr(sentAt)
	return &e, nil
}

func (r *SequenceRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.EmailSequence, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.EmailSequence{}
	for rows.Next() {
		e, err := scanSequence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *SequenceRepo) CreateBatch(ctx context.Context, rows []domain.EmailSequence) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO email_sequences (id, lead_id, guide_id, persona, email, first_name,
			step, day_offset, template_key, status, attempts, scheduled_for, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range rows {
		row := &rows[i]
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, row.ID, row.LeadID, row.GuideID, row.Persona, row.Email,
			row.FirstName, row.Step, row.DayOffset, row.TemplateKey, row.Status, row.Attempts,
			row.ScheduledFor, row.CreatedAt, row.UpdatedAt); err != nil {
			return fmt.Errorf("insert step %d: %w", row.Step, err)
		}
	}
	return tx.Commit()
}

func (r *SequenceRepo) ExistsPending(ctx context.Context, email, guideID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM email_sequences
		WHERE email = $1 AND guide_id = $2 AND status IN ('pending', 'sending'))`,
		email, guideID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists pending: %w", err)
	}
	return exists, nil
}

// ClaimDue locks due rows with SKIP LOCKED so concurrent workers split the
// batch instead of sending a row twice. A step whose predecessor was sent at
// or after now waits for the next tick.
func (r *SequenceRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.EmailSequence, error) {
	rows, err := r.query(ctx, `
		WITH due AS (
			SELECT s.id FROM email_sequences s
			WHERE s.status = 'pending' AND s.scheduled_for <= $1
			  AND NOT EXISTS (
				SELECT 1 FROM email_sequences p
				WHERE p.lead_id = s.lead_id AND p.guide_id = s.guide_id
				  AND p.step < s.step
				  AND (p.status IN ('pending', 'sending') OR p.sent_at >= $1))
			ORDER BY s.scheduled_for
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE email_sequences e SET status = 'sending', updated_at = $1
		FROM due WHERE e.id = due.id
		RETURNING `+prefixed("e.", sequenceColumns), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due: %w", err)
	}
	return rows, nil
}

func (r *SequenceRepo) exec(ctx context.Context, op, q string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sequence.ErrNotFound
	}
	return nil
}

func (r *SequenceRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return r.exec(ctx, "mark sent", `
		UPDATE email_sequences SET status = 'sent', sent_at = $2, attempts = attempts + 1,
			last_error = '', updated_at = $2
		WHERE id = $1`, id, sentAt)
}

func (r *SequenceRepo) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return r.exec(ctx, "mark retry", `
		UPDATE email_sequences SET status = 'pending', attempts = $2, scheduled_for = $3,
			last_error = $4, updated_at = NOW()
		WHERE id = $1`, id, attempts, next, lastErr)
}

func (r *SequenceRepo) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	return r.exec(ctx, "mark failed", `
		UPDATE email_sequences SET status = 'failed', attempts = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1`, id, attempts, lastErr)
}

func (r *SequenceRepo) MarkCancelled(ctx context.Context, id, reason string) error {
	return r.exec(ctx, "mark cancelled", `
		UPDATE email_sequences SET status = 'cancelled', last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, reason)
}

func (r *SequenceRepo) cancelWhere(ctx context.Context, cond string, arg interface{}) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_sequences SET status = 'cancelled', updated_at = NOW()
		WHERE `+cond+` AND status = 'pending'`, arg)
	if err != nil {
		return 0, fmt.Errorf("cancel sequences: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *SequenceRepo) CancelPendingForLead(ctx context.Context, leadID string) (int, error) {
	return r.cancelWhere(ctx, "lead_id = $1", leadID)
}

func (r *SequenceRepo) CancelPendingForEmail(ctx context.Context, email string) (int, error) {
	return r.cancelWhere(ctx, "lower(email) = lower($1)", email)
}

func (r *SequenceRepo) RecoverStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_sequences SET status = 'pending', updated_at = NOW()
		WHERE status = 'sending' AND updated_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("recover stale: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *SequenceRepo) ListByLead(ctx context.Context, leadID string) ([]domain.EmailSequence, error) {
	rows, err := r.query(ctx, `SELECT `+sequenceColumns+` FROM email_sequences
		WHERE lead_id = $1 ORDER BY guide_id, step`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list sequences by lead: %w", err)
	}
	return rows, nil
}

func (r *SequenceRepo) List(ctx context.Context, f sequence.ListFilter) ([]domain.EmailSequence, int, error) {
	var w where
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if f.Persona != "" {
		w.add("persona = $%d", f.Persona)
	}
	if f.Email != "" {
		w.add("email ILIKE $%d", "%"+f.Email+"%")
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_sequences`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sequences: %w", err)
	}
	q, args := w.page(`SELECT `+sequenceColumns+` FROM email_sequences`+w.sql()+` ORDER BY scheduled_for DESC`,
		clampLimit(f.Limit, 50, 500), f.Offset)
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sequences: %w", err)
	}
	return rows, total, nil
}

func (r *SequenceRepo) Stats(ctx context.Context) (*sequence.Stats, error) {
	st := &sequence.Stats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'sending'),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'cancelled'),
		       COUNT(*) FILTER (WHERE status = 'pending' AND scheduled_for <= NOW())
		FROM email_sequences`).Scan(&st.Pending, &st.Sending, &st.Sent, &st.Failed, &st.Cancelled, &st.DueNow)
	if err != nil {
		return nil, fmt.Errorf("sequence stats: %w", err)
	}
	return st, nil
}
