package api

import (
	"encoding/json"
	"net/http"

	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/estimation"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/service/lead"
)

// PreviewEstimation prices a property without creating a lead. The full
// range is only stored once the phone is verified.
//
//	POST /api/estimations/preview
func (h *Handlers) PreviewEstimation(w http.ResponseWriter, r *http.Request) {
	var in estimation.Input
	if !httputil.Decode(w, r, &in) {
		return
	}
	res, err := h.Estimator.Estimate(in)
	if err != nil {
		respondServiceError(w, err, "could not compute the estimation")
		return
	}
	httputil.OK(w, res)
}

type financingRequest struct {
	estimation.FinancingInput
	// Contact is optional; when it carries an email or a phone a financing
	// lead is stored with the simulation.
	Contact *lead.LeadInput `json:"contact,omitempty"`
}

type financingResponse struct {
	*estimation.FinancingResult
	LeadID string `json:"lead_id,omitempty"`
}

// Financing runs a loan simulation and optionally records the lead.
//
//	POST /api/financing
func (h *Handlers) Financing(w http.ResponseWriter, r *http.Request) {
	var req financingRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := estimation.Simulate(req.FinancingInput)
	if err != nil {
		respondServiceError(w, err, "could not run the simulation")
		return
	}

	resp := financingResponse{FinancingResult: res}
	if c := req.Contact; c != nil && (c.Email != "" || c.Phone != "") {
		in := *c
		in.Source = domain.SourceFinancing
		in.PropertyData, err = json.Marshal(map[string]interface{}{
			"simulation": req.FinancingInput,
			"result":     res,
		})
		if err != nil {
			respondSafeError(w, http.StatusInternalServerError, err, "could not save your request")
			return
		}
		l, err := h.Leads.Create(r.Context(), in)
		if err != nil {
			respondServiceError(w, err, "could not save your request")
			return
		}
		resp.LeadID = l.ID
	}
	httputil.OK(w, resp)
}

// Contact stores a contact form message as a lead.
//
//	POST /api/contact
func (h *Handlers) Contact(w http.ResponseWriter, r *http.Request) {
	var in lead.LeadInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	in.Source = domain.SourceContact
	in.PropertyData = nil
	l, err := h.Leads.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, err, "could not send your message")
		return
	}
	httputil.Created(w, leadResponse{LeadID: l.ID, Source: string(l.Source)})
}
