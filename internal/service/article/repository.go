package article

import (
	"context"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
)

// Repository defines the data access contract for articles.
type Repository interface {
	Create(ctx context.Context, a *domain.Article) (string, error)
	Get(ctx context.Context, id string) (*domain.Article, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Article, error)
	List(ctx context.Context, f ListFilter) ([]domain.Article, int, error)
	Update(ctx context.Context, id string, u UpdateFields) error
	Delete(ctx context.Context, id string) error

	// SetStatus publishes or unpublishes. publishedAt is nil for drafts.
	SetStatus(ctx context.Context, id string, status domain.ArticleStatus, publishedAt *time.Time) error

	// SlugExists reports whether another article (not excludeID) uses slug.
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
}

// ListFilter controls paging and filtering for article lists.
type ListFilter struct {
	Status  domain.ArticleStatus
	Persona domain.Persona
	Search  string
	Limit   int
	Offset  int
}

// UpdateFields holds the mutable article fields. Nil fields are not applied.
type UpdateFields struct {
	Title           *string         `json:"title"`
	Slug            *string         `json:"slug"`
	MetaDescription *string         `json:"meta_description"`
	Content         *string         `json:"content"`
	Persona         *domain.Persona `json:"persona"`
	Keywords        *[]string       `json:"keywords"`
}
