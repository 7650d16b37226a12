package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/authsession"
	"github.com/ignite/immo-leads/internal/service/lead"
)

// sessionView is what the public site sees of a gate session. The phone is
// masked and the code state is reduced to flags.
type sessionView struct {
	ID            string              `json:"id"`
	State         domain.SessionState `json:"state"`
	Phone         string              `json:"phone,omitempty"`
	PhoneVerified bool                `json:"phone_verified"`
	AttemptsLeft  int                 `json:"attempts_left"`
	ExpiresAt     time.Time           `json:"expires_at"`
	CodeSentAt    *time.Time          `json:"code_sent_at,omitempty"`
}

func (h *Handlers) viewSession(s *domain.AuthSession) sessionView {
	left := h.Sessions.MaxAttempts() - s.Attempts
	if left < 0 {
		left = 0
	}
	v := sessionView{
		ID:            s.ID,
		State:         s.State,
		PhoneVerified: s.PhoneVerified,
		AttemptsLeft:  left,
		ExpiresAt:     s.ExpiresAt,
		CodeSentAt:    s.CodeSentAt,
	}
	if s.Phone != "" {
		v.Phone = logger.RedactPhone(s.Phone)
	}
	return v
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type createSessionRequest struct {
	Phone        string          `json:"phone"`
	Email        string          `json:"email"`
	PropertyData json.RawMessage `json:"property_data"`
}

// CreateSession opens an SMS gate session.
//
//	POST /api/sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	sess, err := h.Sessions.Create(r.Context(), authsession.CreateInput{
		Purpose:      domain.PurposeSMSGate,
		Phone:        req.Phone,
		Email:        req.Email,
		PropertyData: req.PropertyData,
		ClientIP:     clientIP(r),
	})
	if err != nil {
		respondServiceError(w, err, "could not start verification")
		return
	}
	httputil.Created(w, h.viewSession(sess))
}

// GetSession returns the state of a gate session.
//
//	GET /api/sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "could not load session")
		return
	}
	if sess.Purpose != domain.PurposeSMSGate {
		httputil.ErrorCode(w, http.StatusNotFound, "session_not_found", authsession.ErrNotFound.Error())
		return
	}
	httputil.OK(w, h.viewSession(sess))
}

type sendCodeRequest struct {
	Phone string `json:"phone"`
}

// SendSessionCode sends (or resends) the SMS code. The phone may be given
// here or when the session was created.
//
//	POST /api/sessions/{id}/sms
func (h *Handlers) SendSessionCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	sess, err := h.Sessions.SendCode(r.Context(), chi.URLParam(r, "id"), req.Phone)
	if err != nil {
		respondServiceError(w, err, "could not send the code")
		return
	}
	httputil.OK(w, h.viewSession(sess))
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

// VerifySessionCode checks the SMS code. A wrong code answers 422 with the
// attempts left.
//
//	POST /api/sessions/{id}/verify
func (h *Handlers) VerifySessionCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := h.Sessions.VerifyCode(r.Context(), id, req.Code)
	if errors.Is(err, authsession.ErrInvalidCode) {
		resp := httputil.ErrorResponse{Error: err.Error(), Code: "invalid_code"}
		if cur, gerr := h.Sessions.Get(r.Context(), id); gerr == nil {
			resp.Details = map[string]int{"attempts_left": h.viewSession(cur).AttemptsLeft}
		}
		httputil.JSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	if err != nil {
		respondServiceError(w, err, "could not verify the code")
		return
	}
	httputil.OK(w, h.viewSession(sess))
}

// leadResponse is returned to the public site after a form submission.
type leadResponse struct {
	LeadID      string          `json:"lead_id"`
	Source      string          `json:"source"`
	Estimation  json.RawMessage `json:"estimation,omitempty"`
	DownloadURL string          `json:"download_url,omitempty"`
}

// CreateSessionLead turns a verified session into a lead. Guide leads get a
// signed download link and the drip sequence.
//
//	POST /api/sessions/{id}/lead
func (h *Handlers) CreateSessionLead(w http.ResponseWriter, r *http.Request) {
	var in lead.LeadInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	if in.Source == "" {
		in.Source = domain.SourceEstimation
	}

	var g *domain.Guide
	if in.Source == domain.SourceGuide {
		var err error
		if g, err = h.publishedGuide(r, in.GuideID); err != nil {
			respondServiceError(w, err, "could not load the guide")
			return
		}
		if in.Persona == "" {
			in.Persona = g.Persona
		}
	}

	l, err := h.Leads.CreateFromSession(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondServiceError(w, err, "could not save your request")
		return
	}

	resp := leadResponse{LeadID: l.ID, Source: string(l.Source), Estimation: l.Estimation}
	if g != nil && h.Links != nil {
		if resp.DownloadURL, err = h.Links.GuideDownloadURL(g, l.ID); err != nil {
			respondSafeError(w, http.StatusInternalServerError, err, "could not build the download link")
			return
		}
	}
	httputil.Created(w, resp)
}
