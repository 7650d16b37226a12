package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/article"
	"github.com/ignite/immo-leads/internal/service/guide"
	"github.com/ignite/immo-leads/internal/service/lead"
)

func (h *Handlers) publishedGuide(r *http.Request, id string) (*domain.Guide, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: guide_id is required", lead.ErrInvalidInput)
	}
	g, err := h.Guides.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !g.Published {
		return nil, guide.ErrNotFound
	}
	return g, nil
}

// publicGuide hides the HTML source and storage key.
type publicGuide struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Persona     domain.Persona `json:"persona"`
	Title       string         `json:"title"`
	Subtitle    string         `json:"subtitle,omitempty"`
	Description string         `json:"description"`
}

// ListGuides returns published guides, optionally for one persona.
//
//	GET /api/guides?persona=
func (h *Handlers) ListGuides(w http.ResponseWriter, r *http.Request) {
	guides, err := h.Guides.ListPublished(r.Context(), domain.Persona(r.URL.Query().Get("persona")))
	if err != nil {
		respondServiceError(w, err, "could not load guides")
		return
	}
	out := make([]publicGuide, 0, len(guides))
	for _, g := range guides {
		out = append(out, publicGuide{
			ID:          g.ID,
			Slug:        g.Slug,
			Persona:     g.Persona,
			Title:       g.Title,
			Subtitle:    g.Subtitle,
			Description: g.Description,
		})
	}
	httputil.OK(w, out)
}

// DownloadGuide serves the PDF of a guide to the holder of a signed link.
// The token names the guide; the slug in the path is cosmetic. Object
// storage answers with a redirect to a presigned URL; local storage streams
// the file.
//
//	GET /api/guides/{slug}/download?token=
func (h *Handlers) DownloadGuide(w http.ResponseWriter, r *http.Request) {
	guideID, leadID, err := h.Links.VerifyDownload(r.URL.Query().Get("token"))
	if err != nil {
		httputil.ErrorCode(w, http.StatusForbidden, "invalid_token", "download link is invalid or expired")
		return
	}
	d, err := h.Guides.Open(r.Context(), guideID)
	if err != nil {
		respondServiceError(w, err, "could not open the guide")
		return
	}
	logger.Info("guide: download", "guide_id", guideID, "lead_id", leadID)

	if d.URL != "" {
		http.Redirect(w, r, d.URL, http.StatusFound)
		return
	}
	defer d.Body.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, d.Body); err != nil {
		logger.Warn("guide: stream interrupted", "guide_id", guideID, "error", err)
	}
}

// ListArticles returns published articles, newest first.
//
//	GET /api/articles?persona=&q=&page=&limit=
func (h *Handlers) ListArticles(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 12, 50)
	q := r.URL.Query()
	items, total, err := h.Articles.ListPublished(r.Context(), article.ListFilter{
		Persona: domain.Persona(q.Get("persona")),
		Search:  q.Get("q"),
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
	if err != nil {
		respondServiceError(w, err, "could not load articles")
		return
	}
	if items == nil {
		items = []domain.Article{}
	}
	httputil.OK(w, NewPaginatedResponse(items, p, total))
}

// GetArticle returns one published article by slug.
//
//	GET /api/articles/{slug}
func (h *Handlers) GetArticle(w http.ResponseWriter, r *http.Request) {
	a, err := h.Articles.GetPublished(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondServiceError(w, err, "could not load the article")
		return
	}
	httputil.OK(w, a)
}
