package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/service/article"
	"github.com/lib/pq"
)

// ArticleRepo implements article.Repository against PostgreSQL.
type ArticleRepo struct{ db *sql.DB }

// NewArticleRepo creates a Postgres-backed article repository.
func NewArticleRepo(db *sql.DB) *ArticleRepo { return &ArticleRepo{db: db} }

const articleColumns = `id, slug, title, meta_description, content, persona, keywords, status,
	generated, sources, published_at, created_at, updated_at`

func scanArticle(s rowScanner) (*domain.Article, error) {
	var (
		a         domain.Article
		published sql.NullTime
	)
	if err := s.Scan(&a.ID, &a.Slug, &a.Title, &a.MetaDescription, &a.Content, &a.Persona,
		pq.Array(&a.Keywords), &a.Status, &a.Generated, pq.Array(&a.Sources), &published,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.PublishedAt = timePtr(published)
	return &a, nil
}

func (r *ArticleRepo) one(ctx context.Context, q string, arg interface{}) (*domain.Article, error) {
	a, err := scanArticle(r.db.QueryRowContext(ctx, q, arg))
	if err == sql.ErrNoRows {
		return nil, article.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}

func (r *ArticleRepo) Create(ctx context.Context, a *domain.Article) (string, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	if a.Sources == nil {
		a.Sources = []string{}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO articles (id, slug, title, meta_description, content, persona, keywords,
			status, generated, sources, published_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.Slug, a.Title, a.MetaDescription, a.Content, a.Persona, pq.Array(a.Keywords),
		a.Status, a.Generated, pq.Array(a.Sources), nullTime(a.PublishedAt), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("create article: %w", err)
	}
	return a.ID, nil
}

func (r *ArticleRepo) Get(ctx context.Context, id string) (*domain.Article, error) {
	return r.one(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
}

func (r *ArticleRepo) GetBySlug(ctx context.Context, slug string) (*domain.Article, error) {
	return r.one(ctx, `SELECT `+articleColumns+` FROM articles WHERE slug = $1`, slug)
}

// List orders published articles by publication date and drafts by edit
// date.
func (r *ArticleRepo) List(ctx context.Context, f article.ListFilter) ([]domain.Article, int, error) {
	var w where
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if f.Persona != "" {
		w.add("persona = $%d", f.Persona)
	}
	if f.Search != "" {
		w.add("(title ILIKE $%[1]d OR meta_description ILIKE $%[1]d)", "%"+f.Search+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}

	q, args := w.page(`SELECT `+articleColumns+` FROM articles`+w.sql()+
		` ORDER BY COALESCE(published_at, updated_at) DESC`, clampLimit(f.Limit, 20, 200), f.Offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	out := []domain.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

func (r *ArticleRepo) Update(ctx context.Context, id string, u article.UpdateFields) error {
	var s setList
	if u.Title != nil {
		s.add("title", *u.Title)
	}
	if u.Slug != nil {
		s.add("slug", *u.Slug)
	}
	if u.MetaDescription != nil {
		s.add("meta_description", *u.MetaDescription)
	}
	if u.Content != nil {
		s.add("content", *u.Content)
	}
	if u.Persona != nil {
		s.add("persona", *u.Persona)
	}
	if u.Keywords != nil {
		s.add("keywords", pq.Array(*u.Keywords))
	}
	if s.empty() {
		return nil
	}
	q, args := s.query("articles", id, true)
	return r.execOne(ctx, "update article", q, args...)
}

func (r *ArticleRepo) execOne(ctx context.Context, op, q string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return article.ErrNotFound
	}
	return nil
}

func (r *ArticleRepo) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "delete article", `DELETE FROM articles WHERE id = $1`, id)
}

func (r *ArticleRepo) SetStatus(ctx context.Context, id string, status domain.ArticleStatus, publishedAt *time.Time) error {
	return r.execOne(ctx, "set article status", `
		UPDATE articles SET status = $2, published_at = $3, updated_at = NOW() WHERE id = $1`,
		id, status, nullTime(publishedAt))
}

func (r *ArticleRepo) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM articles WHERE slug = $1 AND id::text <> $2)`,
		slug, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("slug exists: %w", err)
	}
	return exists, nil
}
