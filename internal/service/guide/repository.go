package guide

import (
	"context"

	"github.com/ignite/immo-leads/internal/domain"
)

// Repository defines the data access contract for guides.
type Repository interface {
	Create(ctx context.Context, g *domain.Guide) (string, error)
	Get(ctx context.Context, id string) (*domain.Guide, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Guide, error)
	List(ctx context.Context, f ListFilter) ([]domain.Guide, error)
	Update(ctx context.Context, id string, u UpdateFields) error
	Delete(ctx context.Context, id string) error
	SetPDFKey(ctx context.Context, id, key string) error
	IncrementDownloads(ctx context.Context, id string) error
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
}

// ListFilter narrows guide lists. Published nil lists every guide.
type ListFilter struct {
	Persona   domain.Persona
	Published *bool
}

// UpdateFields holds the mutable guide fields. Nil fields are not applied.
type UpdateFields struct {
	Title       *string         `json:"title"`
	Subtitle    *string         `json:"subtitle"`
	Description *string         `json:"description"`
	HTMLContent *string         `json:"html_content"`
	Persona     *domain.Persona `json:"persona"`
	Published   *bool           `json:"published"`
	Slug        *string         `json:"slug"`
}
