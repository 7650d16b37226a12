package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/sequence"
)

// ListSequences returns drip rows across leads.
//
//	GET /api/admin/sequences?status=&persona=&email=&page=&limit=
func (h *Handlers) ListSequences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	rows, total, err := h.Sequences.List(r.Context(), sequence.ListFilter{
		Status:  domain.SequenceStatus(q.Get("status")),
		Persona: domain.Persona(q.Get("persona")),
		Email:   q.Get("email"),
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
	if err != nil {
		respondServiceError(w, err, "failed to list sequences")
		return
	}
	if rows == nil {
		rows = []domain.EmailSequence{}
	}
	httputil.OK(w, NewPaginatedResponse(rows, p, total))
}

// SequenceStats returns row counts by status.
//
//	GET /api/admin/sequences/stats
func (h *Handlers) SequenceStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Sequences.Stats(r.Context())
	if err != nil {
		respondServiceError(w, err, "failed to load sequence stats")
		return
	}
	httputil.OK(w, st)
}

// RunSequences runs one scheduler pass now, under the same lock as the
// periodic tick.
//
//	POST /api/admin/sequences/run
func (h *Handlers) RunSequences(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "sequence scheduler is not available in this process")
		return
	}
	res, err := h.runner.RunOnce(r.Context())
	if err != nil {
		respondServiceError(w, err, "sequence run failed")
		return
	}
	logger.Info("sequences: manual run", "admin", adminEmail(r), "sent", res.Sent, "failed", res.Failed)
	httputil.OK(w, res)
}

// LeadSequences lists the drip rows of one lead.
//
//	GET /api/admin/leads/{id}/sequences
func (h *Handlers) LeadSequences(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Sequences.ListForLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to list sequences")
		return
	}
	if rows == nil {
		rows = []domain.EmailSequence{}
	}
	httputil.OK(w, rows)
}

// ScheduleLeadSequence (re)starts the drip of a guide lead whose schedule
// failed or was cancelled.
//
//	POST /api/admin/leads/{id}/sequences
func (h *Handlers) ScheduleLeadSequence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	l, err := h.Leads.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load lead")
		return
	}
	if l.GuideID == nil || l.Email == "" {
		httputil.ErrorCode(w, http.StatusBadRequest, "invalid_input", "only guide leads with an email have a sequence")
		return
	}
	if err := h.Sequences.ScheduleLead(r.Context(), l); err != nil {
		respondServiceError(w, err, "failed to schedule sequence")
		return
	}
	rows, err := h.Sequences.ListForLead(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to list sequences")
		return
	}
	httputil.Created(w, rows)
}

// CancelLeadSequences cancels the pending drip rows of a lead.
//
//	POST /api/admin/leads/{id}/sequences/cancel
func (h *Handlers) CancelLeadSequences(w http.ResponseWriter, r *http.Request) {
	n, err := h.Sequences.CancelForLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to cancel sequences")
		return
	}
	httputil.OK(w, map[string]int{"cancelled": n})
}

// ListTemplates returns every drip template.
//
//	GET /api/admin/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := h.Sequences.ListTemplates(r.Context())
	if err != nil {
		respondServiceError(w, err, "failed to list templates")
		return
	}
	if ts == nil {
		ts = []domain.EmailTemplate{}
	}
	httputil.OK(w, ts)
}

// CreateTemplate stores a drip template for a persona and step.
//
//	POST /api/admin/templates
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in sequence.TemplateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	t, err := h.Sequences.CreateTemplate(r.Context(), in)
	if err != nil {
		respondServiceError(w, err, "failed to create template")
		return
	}
	httputil.Created(w, t)
}

// GetTemplate returns one template.
//
//	GET /api/admin/templates/{id}
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Sequences.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to load template")
		return
	}
	httputil.OK(w, t)
}

// UpdateTemplate edits a template.
//
//	PATCH /api/admin/templates/{id}
func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var u sequence.TemplateUpdate
	if !httputil.Decode(w, r, &u) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Sequences.UpdateTemplate(r.Context(), id, u); err != nil {
		respondServiceError(w, err, "failed to update template")
		return
	}
	t, err := h.Sequences.GetTemplate(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load template")
		return
	}
	httputil.OK(w, t)
}

// DeleteTemplate removes a template; the built-in copy is used again.
//
//	DELETE /api/admin/templates/{id}
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.Sequences.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err, "failed to delete template")
		return
	}
	httputil.NoContent(w)
}

// PreviewTemplate renders a template with sample values.
//
//	POST /api/admin/templates/preview
func (h *Handlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var in sequence.TemplateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	p, err := h.Sequences.PreviewTemplate(in)
	if err != nil {
		respondServiceError(w, err, "failed to render template")
		return
	}
	httputil.OK(w, p)
}
