package api

import (
	"html/template"
	"net/http"

	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/verification"
	"github.com/ignite/immo-leads/internal/sms"
)

var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!DOCTYPE html>
<html lang="fr">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">
<title>Désinscription</title>
<style>body{font-family:sans-serif;text-align:center;padding:50px;color:#1f2937}</style>
</head>
<body>
{{if .OK}}<h1>Vous êtes désinscrit</h1>
<p>L'adresse {{.Email}} ne recevra plus nos emails.</p>
{{else}}<h1>Lien invalide</h1>
<p>Ce lien de désinscription est invalide ou a expiré.</p>
{{end}}</body>
</html>`))

// Unsubscribe suppresses the email of a signed link and cancels its pending
// drip emails. GET renders a confirmation page; POST is the one-click
// List-Unsubscribe action used by mail clients.
//
//	GET|POST /api/unsubscribe?token=
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	email, err := h.Links.VerifyUnsubscribe(r.URL.Query().Get("token"))
	if err != nil {
		h.unsubscribeResult(w, r, http.StatusBadRequest, "")
		return
	}

	ctx := r.Context()
	if err := h.Suppressions.Suppress(ctx, domain.ChannelEmail, email, domain.ReasonUnsubscribe, domain.SourceUnsubscribeLink); err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "could not process the request")
		return
	}
	n, err := h.Sequences.CancelForEmail(ctx, email)
	if err != nil {
		// The address is suppressed; delivery re-checks suppressions anyway.
		logger.Warn("unsubscribe: cancel sequences failed", "email", email, "error", err)
	}
	logger.Info("unsubscribe: email suppressed", "email", email, "cancelled", n)
	h.unsubscribeResult(w, r, http.StatusOK, email)
}

func (h *Handlers) unsubscribeResult(w http.ResponseWriter, r *http.Request, status int, email string) {
	if r.Method == http.MethodPost {
		if status != http.StatusOK {
			httputil.ErrorCode(w, status, "invalid_token", "unsubscribe link is invalid or expired")
			return
		}
		httputil.OK(w, map[string]bool{"unsubscribed": true})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := struct {
		OK    bool
		Email string
	}{status == http.StatusOK, logger.RedactEmail(email)}
	if err := unsubscribePage.Execute(w, data); err != nil {
		logger.Warn("unsubscribe: render failed", "error", err)
	}
}

// TwilioInbound handles inbound SMS. A STOP keyword suppresses the sender
// for SMS campaigns. The reply is an empty TwiML document.
//
//	POST /api/webhooks/twilio/sms
func (h *Handlers) TwilioInbound(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form")
		return
	}
	if h.twilio.URL != "" && !sms.ValidSignature(h.twilio.AuthToken, h.twilio.URL, r.PostForm, r.Header.Get(sms.SignatureHeader)) {
		logger.Warn("twilio: bad webhook signature", "remote", clientIP(r))
		respondError(w, http.StatusForbidden, "invalid signature")
		return
	}

	in := sms.ParseInbound(r.PostForm)
	if in.IsStop() && in.From != "" {
		phone, err := verification.NormalizePhone(in.From)
		if err != nil {
			phone = in.From
		}
		if err := h.Suppressions.Suppress(r.Context(), domain.ChannelSMS, phone, domain.ReasonStop, domain.SourceTwilioInbound); err != nil {
			respondSafeError(w, http.StatusInternalServerError, err, "could not process the message")
			return
		}
		logger.Info("twilio: STOP received", "phone", phone, "message_sid", in.MessageSID)
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
}
