package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/service/sequence"
)

// TemplateRepo implements sequence.TemplateRepository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed drip template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `id, persona, step, subject, html, text, active, created_at, updated_at`

func scanTemplate(s rowScanner) (*domain.EmailTemplate, error) {
	var t domain.EmailTemplate
	if err := s.Scan(&t.ID, &t.Persona, &t.Step, &t.Subject, &t.HTML, &t.Text, &t.Active,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepo) one(ctx context.Context, q string, args ...interface{}) (*domain.EmailTemplate, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx, q, args...))
	if err == sql.ErrNoRows {
		return nil, sequence.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) Find(ctx context.Context, persona domain.Persona, step int) (*domain.EmailTemplate, error) {
	return r.one(ctx, `SELECT `+templateColumns+` FROM email_templates
		WHERE persona = $1 AND step = $2 AND active
		ORDER BY updated_at DESC LIMIT 1`, persona, step)
}

func (r *TemplateRepo) Get(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	return r.one(ctx, `SELECT `+templateColumns+` FROM email_templates WHERE id = $1`, id)
}

func (r *TemplateRepo) List(ctx context.Context) ([]domain.EmailTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM email_templates ORDER BY persona, step, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := []domain.EmailTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Create inserts a template. An active template replaces the active one of
// the same persona and step.
func (r *TemplateRepo) Create(ctx context.Context, t *domain.EmailTemplate) (string, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if t.Active {
		if _, err := tx.ExecContext(ctx, `
			UPDATE email_templates SET active = false, updated_at = NOW()
			WHERE persona = $1 AND step = $2 AND active`, t.Persona, t.Step); err != nil {
			return "", fmt.Errorf("deactivate previous template: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO email_templates (id, persona, step, subject, html, text, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.Persona, t.Step, t.Subject, t.HTML, t.Text, t.Active, t.CreatedAt, t.UpdatedAt); err != nil {
		return "", fmt.Errorf("create template: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (r *TemplateRepo) Update(ctx context.Context, id string, u sequence.TemplateUpdate) error {
	var s setList
	if u.Subject != nil {
		s.add("subject", *u.Subject)
	}
	if u.HTML != nil {
		s.add("html", *u.HTML)
	}
	if u.Text != nil {
		s.add("text", *u.Text)
	}
	if u.Active != nil {
		s.add("active", *u.Active)
	}
	if s.empty() {
		return nil
	}
	q, args := s.query("email_templates", id, true)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sequence.ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM email_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sequence.ErrTemplateNotFound
	}
	return nil
}
