package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/service/guide"
)

// GuideRepo implements guide.Repository against PostgreSQL.
type GuideRepo struct{ db *sql.DB }

// NewGuideRepo creates a Postgres-backed guide repository.
func NewGuideRepo(db *sql.DB) *GuideRepo { return &GuideRepo{db: db} }

const guideColumns = `id, slug, persona, title, subtitle, description, html_content, pdf_key,
	published, downloads, created_at, updated_at`

func scanGuide(s rowScanner) (*domain.Guide, error) {
	var g domain.Guide
	if err := s.Scan(&g.ID, &g.Slug, &g.Persona, &g.Title, &g.Subtitle, &g.Description,
		&g.HTMLContent, &g.PDFKey, &g.Published, &g.Downloads, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GuideRepo) one(ctx context.Context, q string, arg interface{}) (*domain.Guide, error) {
	g, err := scanGuide(r.db.QueryRowContext(ctx, q, arg))
	if err == sql.ErrNoRows {
		return nil, guide.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get guide: %w", err)
	}
	return g, nil
}

func (r *GuideRepo) Create(ctx context.Context, g *domain.Guide) (string, error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guides (id, slug, persona, title, subtitle, description, html_content,
			pdf_key, published, downloads, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,$11)`,
		g.ID, g.Slug, g.Persona, g.Title, g.Subtitle, g.Description, g.HTMLContent,
		g.PDFKey, g.Published, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("create guide: %w", err)
	}
	return g.ID, nil
}

func (r *GuideRepo) Get(ctx context.Context, id string) (*domain.Guide, error) {
	return r.one(ctx, `SELECT `+guideColumns+` FROM guides WHERE id = $1`, id)
}

func (r *GuideRepo) GetBySlug(ctx context.Context, slug string) (*domain.Guide, error) {
	return r.one(ctx, `SELECT `+guideColumns+` FROM guides WHERE slug = $1`, slug)
}

func (r *GuideRepo) List(ctx context.Context, f guide.ListFilter) ([]domain.Guide, error) {
	var w where
	if f.Persona != "" {
		w.add("persona = $%d", f.Persona)
	}
	if f.Published != nil {
		w.add("published = $%d", *f.Published)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+guideColumns+` FROM guides`+w.sql()+` ORDER BY persona, title`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list guides: %w", err)
	}
	defer rows.Close()

	out := []domain.Guide{}
	for rows.Next() {
		g, err := scanGuide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guide: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (r *GuideRepo) execOne(ctx context.Context, op, q string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return guide.ErrNotFound
	}
	return nil
}

func (r *GuideRepo) Update(ctx context.Context, id string, u guide.UpdateFields) error {
	var s setList
	if u.Title != nil {
		s.add("title", *u.Title)
	}
	if u.Subtitle != nil {
		s.add("subtitle", *u.Subtitle)
	}
	if u.Description != nil {
		s.add("description", *u.Description)
	}
	if u.HTMLContent != nil {
		s.add("html_content", *u.HTMLContent)
	}
	if u.Persona != nil {
		s.add("persona", *u.Persona)
	}
	if u.Published != nil {
		s.add("published", *u.Published)
	}
	if u.Slug != nil {
		s.add("slug", *u.Slug)
	}
	if s.empty() {
		return nil
	}
	q, args := s.query("guides", id, true)
	return r.execOne(ctx, "update guide", q, args...)
}

func (r *GuideRepo) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete guide", `DELETE FROM guides WHERE id = $1`, id)
}

func (r *GuideRepo) SetPDFKey(ctx context.Context, id, key string) error {
	return r.execOne(ctx, "set pdf key", `UPDATE guides SET pdf_key = $2, updated_at = NOW() WHERE id = $1`, id, key)
}

func (r *GuideRepo) IncrementDownloads(ctx context.Context, id string) error {
	return r.execOne(ctx, "count download", `UPDATE guides SET downloads = downloads + 1 WHERE id = $1`, id)
}

func (r *GuideRepo) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM guides WHERE slug = $1 AND id::text <> $2)`,
		slug, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("slug exists: %w", err)
	}
	return exists, nil
}
