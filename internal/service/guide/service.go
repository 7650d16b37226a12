package guide

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pdf"
	"github.com/ignite/immo-leads/internal/pkg/logger"
)

// Service implements guide management and PDF delivery.
type Service struct {
	repo     Repository
	renderer pdf.Renderer
	store    pdf.Store
	urlTTL   time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a guide service. renderer and store may be nil when
// PDFs are disabled; downloads then fail with ErrPDFUnavailable.
func NewService(repo Repository, renderer pdf.Renderer, store pdf.Store, urlTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		renderer: renderer,
		store:    store,
		urlTTL:   urlTTL,
		log:      logger.Named("guide"),
		now:      time.Now,
	}
}

// CreateInput holds the fields for a new guide.
type CreateInput struct {
	Slug        string         `json:"slug"`
	Persona     domain.Persona `json:"persona"`
	Title       string         `json:"title"`
	Subtitle    string         `json:"subtitle"`
	Description string         `json:"description"`
	HTMLContent string         `json:"html_content"`
	Published   bool           `json:"published"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Guide, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !in.Persona.Valid() {
		return nil, fmt.Errorf("%w: unknown persona %q", ErrInvalidInput, in.Persona)
	}
	base := in.Slug
	if base == "" {
		base = in.Title
	}
	sl, err := s.uniqueSlug(ctx, slug.MakeLang(base, "fr"), "")
	if err != nil {
		return nil, err
	}

	now := s.now()
	g := &domain.Guide{
		ID:          uuid.New().String(),
		Slug:        sl,
		Persona:     in.Persona,
		Title:       in.Title,
		Subtitle:    strings.TrimSpace(in.Subtitle),
		Description: strings.TrimSpace(in.Description),
		HTMLContent: in.HTMLContent,
		Published:   in.Published,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.repo.Create(ctx, g)
	if err != nil {
		return nil, err
	}
	g.ID = id
	s.log.Info("guide created", "guide_id", id, "slug", sl, "persona", string(g.Persona))
	return g, nil
}

func (s *Service) uniqueSlug(ctx context.Context, base, excludeID string) (string, error) {
	if base == "" {
		base = "guide"
	}
	candidate := base
	for i := 2; i < 52; i++ {
		taken, err := s.repo.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", fmt.Errorf("slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return base + "-" + uuid.New().String()[:8], nil
}

// Get returns a guide by id. It also serves as the sequence guide lookup.
func (s *Service) Get(ctx context.Context, id string) (*domain.Guide, error) {
	return s.repo.Get(ctx, id)
}

// GetPublished returns a published guide by slug.
func (s *Service) GetPublished(ctx context.Context, sl string) (*domain.Guide, error) {
	g, err := s.repo.GetBySlug(ctx, sl)
	if err != nil {
		return nil, err
	}
	if !g.Published {
		return nil, ErrNotFound
	}
	return g, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Guide, error) {
	return s.repo.List(ctx, f)
}

// ListPublished lists guides shown on the public site, without their HTML.
func (s *Service) ListPublished(ctx context.Context, persona domain.Persona) ([]domain.Guide, error) {
	published := true
	gs, err := s.repo.List(ctx, ListFilter{Persona: persona, Published: &published})
	if err != nil {
		return nil, err
	}
	for i := range gs {
		gs[i].HTMLContent = ""
	}
	return gs, nil
}

// Update edits a guide. Changing the HTML drops the stored PDF key so the
// next download renders the new version.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if u.Persona != nil && !u.Persona.Valid() {
		return fmt.Errorf("%w: unknown persona %q", ErrInvalidInput, *u.Persona)
	}
	if u.Slug != nil {
		sl, err := s.uniqueSlug(ctx, slug.MakeLang(*u.Slug, "fr"), id)
		if err != nil {
			return err
		}
		u.Slug = &sl
	}
	if err := s.repo.Update(ctx, id, u); err != nil {
		return err
	}
	if u.HTMLContent != nil {
		if err := s.repo.SetPDFKey(ctx, id, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	g, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if g.HasPDF() && s.store != nil {
		if err := s.store.Delete(ctx, g.PDFKey); err != nil {
			s.log.Warn("delete pdf failed", "guide_id", id, "key", g.PDFKey, "error", err)
		}
	}
	return nil
}

// RenderPDF prints the guide HTML to PDF and stores it under
// <persona>/<slug>-<unix>.pdf.
func (s *Service) RenderPDF(ctx context.Context, id string) (*domain.Guide, error) {
	if s.renderer == nil || s.store == nil {
		return nil, ErrPDFUnavailable
	}
	g, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(g.HTMLContent) == "" {
		return nil, ErrNoContent
	}

	start := s.now()
	data, err := s.renderer.Render(ctx, document(g))
	if err != nil {
		return nil, fmt.Errorf("render guide %s: %w", g.Slug, err)
	}
	key := fmt.Sprintf("%s/%s-%d.pdf", g.Persona, g.Slug, start.Unix())
	if err := s.store.Put(ctx, key, data); err != nil {
		return nil, err
	}
	if err := s.repo.SetPDFKey(ctx, g.ID, key); err != nil {
		return nil, err
	}
	old := g.PDFKey
	g.PDFKey = key
	if old != "" && old != key {
		if err := s.store.Delete(ctx, old); err != nil {
			s.log.Warn("delete previous pdf failed", "guide_id", g.ID, "key", old, "error", err)
		}
	}
	s.log.Info("guide pdf rendered", "guide_id", g.ID, "key", key, "bytes", len(data), "elapsed", time.Since(start).String())
	return g, nil
}

// Download is a resolved guide file: either a direct URL to redirect to or
// a body to stream.
type Download struct {
	Guide    *domain.Guide
	URL      string
	Body     io.ReadCloser
	Filename string
}

// Open resolves the PDF of a published guide and counts the download. A
// guide without a stored PDF is rendered first.
func (s *Service) Open(ctx context.Context, guideID string) (*Download, error) {
	if s.store == nil {
		return nil, ErrPDFUnavailable
	}
	g, err := s.repo.Get(ctx, guideID)
	if err != nil {
		return nil, err
	}
	if !g.Published {
		return nil, ErrNotFound
	}
	if !g.HasPDF() {
		if g, err = s.RenderPDF(ctx, guideID); err != nil {
			if errors.Is(err, ErrNoContent) {
				return nil, ErrPDFUnavailable
			}
			return nil, err
		}
	}

	d := &Download{Guide: g, Filename: g.Slug + ".pdf"}
	if d.URL, err = s.store.URL(ctx, g.PDFKey, s.urlTTL); err != nil {
		return nil, err
	}
	if d.URL == "" {
		if d.Body, err = s.store.Open(ctx, g.PDFKey); err != nil {
			if errors.Is(err, pdf.ErrNotFound) {
				return nil, ErrPDFUnavailable
			}
			return nil, err
		}
	}

	if err := s.repo.IncrementDownloads(ctx, g.ID); err != nil {
		s.log.Warn("count download failed", "guide_id", g.ID, "error", err)
	}
	return d, nil
}
