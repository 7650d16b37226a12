package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/suppression"
)

// ListSuppressions returns a page of the opt-out list.
//
//	GET /api/admin/suppressions?channel=&reason=&q=&page=&limit=
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	items, total, err := h.Suppressions.List(r.Context(), suppression.ListFilter{
		Channel: q.Get("channel"),
		Reason:  q.Get("reason"),
		Search:  q.Get("q"),
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
	if err != nil {
		respondServiceError(w, err, "failed to list suppressions")
		return
	}
	if items == nil {
		items = []domain.Suppression{}
	}
	httputil.OK(w, NewPaginatedResponse(items, p, total))
}

// SuppressionStats returns counts by channel and reason.
//
//	GET /api/admin/suppressions/stats
func (h *Handlers) SuppressionStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Suppressions.GetStats(r.Context())
	if err != nil {
		respondServiceError(w, err, "failed to load suppression stats")
		return
	}
	httputil.OK(w, st)
}

type suppressionRequest struct {
	Channel domain.CampaignChannel   `json:"channel"`
	Value   string                   `json:"value"`
	Reason  domain.SuppressionReason `json:"reason"`
}

// AddSuppression blocks an email or phone by hand. Email suppressions also
// cancel pending drip emails.
//
//	POST /api/admin/suppressions
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var req suppressionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Channel != domain.ChannelEmail && req.Channel != domain.ChannelSMS {
		httputil.ErrorCode(w, http.StatusBadRequest, "invalid_input", "channel must be email or sms")
		return
	}
	if req.Reason == "" {
		req.Reason = domain.ReasonManual
	}
	ctx := r.Context()
	if err := h.Suppressions.Suppress(ctx, req.Channel, req.Value, req.Reason, domain.SourceAdmin); err != nil {
		respondServiceError(w, err, "failed to add suppression")
		return
	}
	if req.Channel == domain.ChannelEmail {
		if _, err := h.Sequences.CancelForEmail(ctx, req.Value); err != nil {
			logger.Warn("suppressions: cancel sequences failed", "email", req.Value, "error", err)
		}
	}
	logger.Info("suppressions: added", "admin", adminEmail(r), "channel", string(req.Channel))
	httputil.JSON(w, http.StatusCreated, req)
}

// RemoveSuppression lifts a suppression.
//
//	DELETE /api/admin/suppressions/{channel}/{value}
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	ch := domain.CampaignChannel(chi.URLParam(r, "channel"))
	if err := h.Suppressions.Remove(r.Context(), ch, chi.URLParam(r, "value")); err != nil {
		respondServiceError(w, err, "failed to remove suppression")
		return
	}
	logger.Info("suppressions: removed", "admin", adminEmail(r), "channel", string(ch))
	httputil.NoContent(w)
}
