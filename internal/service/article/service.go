package article

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/ignite/immo-leads/internal/ai"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/logger"
)

const (
	maxSlugLen     = 80
	maxMetaDescLen = 160
	maxSlugTries   = 50
)

// Completer is a chat model. *ai.ChatClient satisfies it.
type Completer interface {
	Complete(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error)
	Configured() bool
}

// FeedSource lists recent news items. *ai.FeedReader satisfies it.
type FeedSource interface {
	Latest(ctx context.Context, limit int) ([]ai.FeedItem, error)
}

// Deps are the optional collaborators used for generation and topic ideas.
type Deps struct {
	Researcher Completer // Perplexity
	Writer     Completer // OpenAI
	Feeds      FeedSource
}

// Service implements article business logic.
type Service struct {
	repo Repository
	deps Deps
	now  func() time.Time
}

// NewService creates an article service.
func NewService(repo Repository, deps Deps) *Service {
	return &Service{repo: repo, deps: deps, now: time.Now}
}

// CreateInput holds the fields for a new article.
type CreateInput struct {
	Title           string         `json:"title"`
	Slug            string         `json:"slug"`
	MetaDescription string         `json:"meta_description"`
	Content         string         `json:"content"`
	Persona         domain.Persona `json:"persona"`
	Keywords        []string       `json:"keywords"`
}

// Slugify turns a French title into a URL slug ("Vendre après un décès"
// becomes "vendre-apres-un-deces").
func Slugify(s string) string {
	out := slug.MakeLang(s, "fr")
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "-")
	}
	return out
}

// uniqueSlug returns base, or base-2, base-3... when taken by another
// article.
func (s *Service) uniqueSlug(ctx context.Context, base, excludeID string) (string, error) {
	if base == "" {
		base = "article"
	}
	candidate := base
	for i := 2; i < maxSlugTries+2; i++ {
		taken, err := s.repo.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return base + "-" + uuid.New().String()[:8], nil
}

func validPersona(p domain.Persona) error {
	if p != "" && !p.Valid() {
		return fmt.Errorf("%w: unknown persona %q", ErrInvalidInput, p)
	}
	return nil
}

// Create stores a draft article with a unique slug derived from the given
// slug or the title.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Article, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if err := validPersona(in.Persona); err != nil {
		return nil, err
	}
	return s.create(ctx, &domain.Article{
		Title:           in.Title,
		Slug:            in.Slug,
		MetaDescription: in.MetaDescription,
		Content:         in.Content,
		Persona:         in.Persona,
		Keywords:        cleanKeywords(in.Keywords),
	})
}

func (s *Service) create(ctx context.Context, a *domain.Article) (*domain.Article, error) {
	base := Slugify(a.Slug)
	if base == "" {
		base = Slugify(a.Title)
	}
	sl, err := s.uniqueSlug(ctx, base, "")
	if err != nil {
		return nil, fmt.Errorf("slug: %w", err)
	}

	now := s.now()
	a.ID = uuid.New().String()
	a.Slug = sl
	a.Status = domain.ArticleDraft
	a.MetaDescription = truncateRunes(strings.TrimSpace(a.MetaDescription), maxMetaDescLen)
	a.CreatedAt, a.UpdatedAt = now, now

	id, err := s.repo.Create(ctx, a)
	if err != nil {
		return nil, err
	}
	a.ID = id
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Article, error) {
	return s.repo.Get(ctx, id)
}

// GetPublished returns a published article by slug; drafts are not found.
func (s *Service) GetPublished(ctx context.Context, sl string) (*domain.Article, error) {
	a, err := s.repo.GetBySlug(ctx, sl)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.ArticlePublished {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Article, int, error) {
	return s.repo.List(ctx, f)
}

// ListPublished lists published articles for the public site.
func (s *Service) ListPublished(ctx context.Context, f ListFilter) ([]domain.Article, int, error) {
	f.Status = domain.ArticlePublished
	return s.repo.List(ctx, f)
}

// Update edits an article. A changed slug is made unique; a changed title
// alone keeps the existing slug so published URLs stay stable.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if u.Persona != nil {
		if err := validPersona(*u.Persona); err != nil {
			return err
		}
	}
	if u.Slug != nil {
		sl, err := s.uniqueSlug(ctx, Slugify(*u.Slug), id)
		if err != nil {
			return fmt.Errorf("slug: %w", err)
		}
		u.Slug = &sl
	}
	if u.MetaDescription != nil {
		m := truncateRunes(strings.TrimSpace(*u.MetaDescription), maxMetaDescLen)
		u.MetaDescription = &m
	}
	if u.Keywords != nil {
		k := cleanKeywords(*u.Keywords)
		u.Keywords = &k
	}
	return s.repo.Update(ctx, id, u)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Publish makes an article public. Publishing needs content.
func (s *Service) Publish(ctx context.Context, id string) (*domain.Article, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Content) == "" {
		return nil, fmt.Errorf("%w: cannot publish an empty article", ErrInvalidInput)
	}
	if a.Status == domain.ArticlePublished {
		return a, nil
	}
	now := s.now()
	if err := s.repo.SetStatus(ctx, id, domain.ArticlePublished, &now); err != nil {
		return nil, err
	}
	a.Status, a.PublishedAt = domain.ArticlePublished, &now
	return a, nil
}

// Unpublish moves an article back to draft.
func (s *Service) Unpublish(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SetStatus(ctx, id, domain.ArticleDraft, nil)
}

func cleanKeywords(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

func logGeneration(a *domain.Article, research, write *ai.ChatResponse) {
	kv := []interface{}{"article_id", a.ID, "slug", a.Slug, "persona", string(a.Persona), "sources", len(a.Sources)}
	if research != nil {
		kv = append(kv, "research_tokens", research.OutputTokens)
	}
	if write != nil {
		kv = append(kv, "model", write.Model, "output_tokens", write.OutputTokens)
	}
	logger.Info("article: generated draft", kv...)
}
