package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/lead"
)

func leadFilter(r *http.Request) (lead.ListFilter, error) {
	q := r.URL.Query()
	f := lead.ListFilter{
		Source:  domain.LeadSource(q.Get("source")),
		Status:  domain.LeadStatus(q.Get("status")),
		Persona: domain.Persona(q.Get("persona")),
		Search:  q.Get("q"),
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return f, fmt.Errorf("%w: since must be YYYY-MM-DD", lead.ErrInvalidInput)
		}
		f.Since = &t
	}
	return f, nil
}

// ListLeads returns a page of leads.
//
//	GET /api/admin/leads?source=&status=&persona=&q=&since=&page=&limit=
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	f, err := leadFilter(r)
	if err != nil {
		respondServiceError(w, err, "")
		return
	}
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	f.Limit, f.Offset = p.Limit, p.Offset

	leads, total, err := h.Leads.List(r.Context(), f)
	if err != nil {
		respondServiceError(w, err, "failed to list leads")
		return
	}
	if leads == nil {
		leads = []domain.Lead{}
	}
	httputil.OK(w, NewPaginatedResponse(leads, p, total))
}

type leadDetail struct {
	*domain.Lead
	Sequences []domain.EmailSequence `json:"sequences"`
}

// GetLead returns a lead with its drip rows.
//
//	GET /api/admin/leads/{id}
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	l, err := h.Leads.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load lead")
		return
	}
	seqs, err := h.Sequences.ListForLead(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load lead sequences")
		return
	}
	if seqs == nil {
		seqs = []domain.EmailSequence{}
	}
	httputil.OK(w, leadDetail{Lead: l, Sequences: seqs})
}

// UpdateLead applies partial edits (status, notes, persona, name, email).
//
//	PATCH /api/admin/leads/{id}
func (h *Handlers) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var u lead.UpdateFields
	if !httputil.Decode(w, r, &u) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Leads.Update(r.Context(), id, u); err != nil {
		respondServiceError(w, err, "failed to update lead")
		return
	}
	l, err := h.Leads.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load lead")
		return
	}
	httputil.OK(w, l)
}

// DeleteLead cancels the pending emails of a lead and removes it.
//
//	DELETE /api/admin/leads/{id}
func (h *Handlers) DeleteLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Sequences.CancelForLead(r.Context(), id); err != nil {
		respondServiceError(w, err, "failed to cancel lead sequences")
		return
	}
	if err := h.Leads.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err, "failed to delete lead")
		return
	}
	httputil.NoContent(w)
}

// ExportLeads streams the filtered leads as CSV.
//
//	GET /api/admin/leads/export?source=&status=&persona=&q=&since=
func (h *Handlers) ExportLeads(w http.ResponseWriter, r *http.Request) {
	f, err := leadFilter(r)
	if err != nil {
		respondServiceError(w, err, "")
		return
	}
	name := "leads-" + time.Now().Format("20060102") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	n, err := h.Leads.ExportCSV(r.Context(), w, f)
	if err != nil {
		// Headers and part of the body are already sent.
		logger.Error("leads: export interrupted", "written", n, "error", err)
		return
	}
	logger.Info("leads: exported", "rows", n)
}

// LeadStats returns dashboard counters.
//
//	GET /api/admin/leads/stats
func (h *Handlers) LeadStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Leads.Stats(r.Context())
	if err != nil {
		respondServiceError(w, err, "failed to load lead stats")
		return
	}
	httputil.OK(w, st)
}
