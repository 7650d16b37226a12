package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/campaign"
)

// ListCampaigns returns a page of campaigns.
//
//	GET /api/admin/campaigns?channel=&status=&q=&page=&limit=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := ParsePagination(r, defaultPageSize, maxPageSize)
	items, total, err := h.Campaigns.List(r.Context(), campaign.ListFilter{
		Channel: domain.CampaignChannel(q.Get("channel")),
		Status:  domain.CampaignStatus(q.Get("status")),
		Search:  q.Get("q"),
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
	if err != nil {
		respondServiceError(w, err, "failed to list campaigns")
		return
	}
	if items == nil {
		items = []domain.Campaign{}
	}
	httputil.OK(w, NewPaginatedResponse(items, p, total))
}

// CreateCampaign stores a draft campaign.
//
//	POST /api/admin/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.Campaigns.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, err, "failed to create campaign")
		return
	}
	httputil.Created(w, c)
}

// GetCampaign returns one campaign with its counters.
//
//	GET /api/admin/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.Campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to load campaign")
		return
	}
	httputil.OK(w, c)
}

// UpdateCampaign edits a draft.
//
//	PATCH /api/admin/campaigns/{id}
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var u campaign.UpdateFields
	if !httputil.Decode(w, r, &u) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Campaigns.Update(r.Context(), id, u); err != nil {
		respondServiceError(w, err, "failed to update campaign")
		return
	}
	c, err := h.Campaigns.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load campaign")
		return
	}
	httputil.OK(w, c)
}

// DeleteCampaign removes a campaign that is not sending.
//
//	DELETE /api/admin/campaigns/{id}
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.Campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err, "failed to delete campaign")
		return
	}
	httputil.NoContent(w)
}

// CampaignRecipients lists the per-recipient results of a campaign.
//
//	GET /api/admin/campaigns/{id}/recipients?page=&limit=
func (h *Handlers) CampaignRecipients(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 500)
	rs, total, err := h.Campaigns.Recipients(r.Context(), chi.URLParam(r, "id"), p.Limit, p.Offset)
	if err != nil {
		respondServiceError(w, err, "failed to list recipients")
		return
	}
	if rs == nil {
		rs = []domain.CampaignRecipient{}
	}
	httputil.OK(w, NewPaginatedResponse(rs, p, total))
}

// SendCampaign starts delivery of a draft. The send runs in the background
// and the response is 202; poll the campaign for counters. With ?wait=true
// the request blocks and returns the final counters.
//
//	POST /api/admin/campaigns/{id}/send
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.Campaigns.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to load campaign")
		return
	}
	if c.Status != domain.CampaignDraft {
		respondServiceError(w, campaign.ErrAlreadySending, "")
		return
	}
	logger.Info("campaigns: send requested", "admin", adminEmail(r), "campaign_id", id, "channel", string(c.Channel))

	if r.URL.Query().Get("wait") == "true" {
		counts, err := h.Campaigns.Send(r.Context(), id)
		if err != nil {
			respondServiceError(w, err, "campaign send failed")
			return
		}
		httputil.OK(w, counts)
		return
	}

	h.sends.Add(1)
	go func() {
		defer h.sends.Done()
		ctx, cancel := context.WithTimeout(h.bg, h.sendTTL)
		defer cancel()
		if _, err := h.Campaigns.Send(ctx, id); err != nil {
			logger.Error("campaigns: send failed", "campaign_id", id, "error", err)
		}
	}()
	httputil.JSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(domain.CampaignSending)})
}

// WaitSends blocks until background campaign sends started by the admin
// have returned.
func (h *Handlers) WaitSends() {
	h.sends.Wait()
}
