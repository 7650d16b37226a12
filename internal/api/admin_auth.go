package api

import (
	"net/http"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/pkg/logger"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string    `json:"session_id"`
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminLogin checks the password and texts a code to the admin's phone.
//
//	POST /api/admin/login
func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	sess, err := h.Admins.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		respondServiceError(w, err, "login failed")
		return
	}
	httputil.OK(w, loginResponse{
		SessionID: sess.ID,
		Phone:     logger.RedactPhone(sess.Phone),
		ExpiresAt: sess.ExpiresAt,
	})
}

type verifyLoginRequest struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
}

type verifyLoginResponse struct {
	Admin     *domain.AdminUser `json:"admin"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// AdminVerify completes the second factor and sets the session cookie. The
// token is also returned for API clients using a Bearer header.
//
//	POST /api/admin/verify
func (h *Handlers) AdminVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyLoginRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.Admins.VerifyLogin(r.Context(), req.SessionID, req.Code)
	if err != nil {
		respondServiceError(w, err, "login failed")
		return
	}
	h.Admins.SetSessionCookie(w, res)
	httputil.OK(w, verifyLoginResponse{Admin: res.Admin, Token: res.Token, ExpiresAt: res.ExpiresAt})
}

// AdminLogout clears the session cookie.
//
//	POST /api/admin/logout
func (h *Handlers) AdminLogout(w http.ResponseWriter, r *http.Request) {
	h.Admins.ClearSessionCookie(w)
	httputil.NoContent(w)
}

// AdminMe returns the signed-in admin.
//
//	GET /api/admin/me
func (h *Handlers) AdminMe(w http.ResponseWriter, r *http.Request) {
	a, err := h.Admins.Me(r.Context())
	if err != nil {
		respondServiceError(w, err, "could not load the admin")
		return
	}
	httputil.OK(w, a)
}
