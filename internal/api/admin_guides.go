package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/service/guide"
)

// AdminListGuides returns every guide.
//
//	GET /api/admin/guides?persona=&published=
func (h *Handlers) AdminListGuides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := guide.ListFilter{Persona: domain.Persona(q.Get("persona"))}
	if v := q.Get("published"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.ErrorCode(w, http.StatusBadRequest, "invalid_input", "published must be true or false")
			return
		}
		f.Published = &b
	}
	gs, err := h.Guides.List(r.Context(), f)
	if err != nil {
		respondServiceError(w, err, "failed to list guides")
		return
	}
	if gs == nil {
		gs = []domain.Guide{}
	}
	httputil.OK(w, gs)
}

// AdminCreateGuide stores a guide.
//
//	POST /api/admin/guides
func (h *Handlers) AdminCreateGuide(w http.ResponseWriter, r *http.Request) {
	var in guide.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	g, err := h.Guides.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, err, "failed to create guide")
		return
	}
	httputil.Created(w, g)
}

// AdminGetGuide returns one guide with its HTML source.
//
//	GET /api/admin/guides/{id}
func (h *Handlers) AdminGetGuide(w http.ResponseWriter, r *http.Request) {
	g, err := h.Guides.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to load guide")
		return
	}
	httputil.OK(w, g)
}

// AdminUpdateGuide edits a guide. Content changes drop the stored PDF so the
// next download renders it again.
//
//	PATCH /api/admin/guides/{id}
func (h *Handlers) AdminUpdateGuide(w http.ResponseWriter, r *http.Request) {
	var u guide.UpdateFields
	if !httputil.Decode(w, r, &u) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Guides.Update(r.Context(), id, u); err != nil {
		respondServiceError(w, err, "failed to update guide")
		return
	}
	g, err := h.Guides.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load guide")
		return
	}
	httputil.OK(w, g)
}

// AdminDeleteGuide removes a guide and its PDF.
//
//	DELETE /api/admin/guides/{id}
func (h *Handlers) AdminDeleteGuide(w http.ResponseWriter, r *http.Request) {
	if err := h.Guides.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err, "failed to delete guide")
		return
	}
	httputil.NoContent(w)
}

// AdminRenderGuide renders and stores the PDF of a guide now.
//
//	POST /api/admin/guides/{id}/render
func (h *Handlers) AdminRenderGuide(w http.ResponseWriter, r *http.Request) {
	g, err := h.Guides.RenderPDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to render guide")
		return
	}
	httputil.OK(w, g)
}
