package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/article"
)

// AdminListArticles returns drafts and published articles.
//
//	GET /api/admin/articles?status=&persona=&q=&page=&limit=
func (h *Handlers) AdminListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	items, total, err := h.Articles.List(r.Context(), article.ListFilter{
		Status:  domain.ArticleStatus(q.Get("status")),
		Persona: domain.Persona(q.Get("persona")),
		Search:  q.Get("q"),
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
	if err != nil {
		respondServiceError(w, err, "failed to list articles")
		return
	}
	if items == nil {
		items = []domain.Article{}
	}
	httputil.OK(w, NewPaginatedResponse(items, p, total))
}

// AdminCreateArticle stores a hand-written draft.
//
//	POST /api/admin/articles
func (h *Handlers) AdminCreateArticle(w http.ResponseWriter, r *http.Request) {
	var in article.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	a, err := h.Articles.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, err, "failed to create article")
		return
	}
	httputil.Created(w, a)
}

// AdminGetArticle returns an article in any state.
//
//	GET /api/admin/articles/{id}
func (h *Handlers) AdminGetArticle(w http.ResponseWriter, r *http.Request) {
	a, err := h.Articles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to load article")
		return
	}
	httputil.OK(w, a)
}

// AdminUpdateArticle edits an article.
//
//	PATCH /api/admin/articles/{id}
func (h *Handlers) AdminUpdateArticle(w http.ResponseWriter, r *http.Request) {
	var u article.UpdateFields
	if !httputil.Decode(w, r, &u) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Articles.Update(r.Context(), id, u); err != nil {
		respondServiceError(w, err, "failed to update article")
		return
	}
	a, err := h.Articles.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load article")
		return
	}
	httputil.OK(w, a)
}

// AdminDeleteArticle removes an article.
//
//	DELETE /api/admin/articles/{id}
func (h *Handlers) AdminDeleteArticle(w http.ResponseWriter, r *http.Request) {
	if err := h.Articles.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err, "failed to delete article")
		return
	}
	httputil.NoContent(w)
}

// AdminPublishArticle makes an article public.
//
//	POST /api/admin/articles/{id}/publish
func (h *Handlers) AdminPublishArticle(w http.ResponseWriter, r *http.Request) {
	a, err := h.Articles.Publish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to publish article")
		return
	}
	httputil.OK(w, a)
}

// AdminUnpublishArticle returns an article to draft.
//
//	POST /api/admin/articles/{id}/unpublish
func (h *Handlers) AdminUnpublishArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Articles.Unpublish(r.Context(), id); err != nil {
		respondServiceError(w, err, "failed to unpublish article")
		return
	}
	a, err := h.Articles.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load article")
		return
	}
	httputil.OK(w, a)
}

// AdminGenerateArticle writes a draft with the language model.
//
//	POST /api/admin/articles/generate
func (h *Handlers) AdminGenerateArticle(w http.ResponseWriter, r *http.Request) {
	var in article.GenerateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	a, err := h.Articles.Generate(r.Context(), in)
	if err != nil {
		respondServiceError(w, err, "failed to generate article")
		return
	}
	logger.Info("articles: generated", "admin", adminEmail(r), "article_id", a.ID, "slug", a.Slug)
	httputil.Created(w, a)
}

// AdminArticleTopics suggests topics from the configured news feeds.
//
//	GET /api/admin/articles/topics?persona=&limit=
func (h *Handlers) AdminArticleTopics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	ideas, err := h.Articles.SuggestTopics(r.Context(), domain.Persona(q.Get("persona")), limit)
	if err != nil {
		respondServiceError(w, err, "failed to load topic ideas")
		return
	}
	if ideas == nil {
		ideas = []article.TopicIdea{}
	}
	httputil.OK(w, ideas)
}
