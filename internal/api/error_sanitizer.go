package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/ignite/immo-leads/internal/auth"
	"github.com/ignite/immo-leads/internal/estimation"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/article"
	"github.com/ignite/immo-leads/internal/service/authsession"
	"github.com/ignite/immo-leads/internal/service/campaign"
	"github.com/ignite/immo-leads/internal/service/guide"
	"github.com/ignite/immo-leads/internal/service/lead"
	"github.com/ignite/immo-leads/internal/service/sequence"
	"github.com/ignite/immo-leads/internal/service/suppression"
	"github.com/ignite/immo-leads/internal/service/verification"
	"github.com/ignite/immo-leads/internal/worker"
)

// respondSafeError logs the internal error and sends a sanitized JSON error.
// Internal details (SQL, hosts, file paths) never reach the client.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if internalErr != nil {
		logger.Error("api: request failed", "status", code, "message", publicMsg, "error", internalErr)
	}
	respondError(w, code, publicMsg)
}

// errorMapping ties a sentinel to a status and the machine-readable code the
// front end switches on.
type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	// SMS gate
	{authsession.ErrNotFound, http.StatusNotFound, "session_not_found"},
	{authsession.ErrSessionExpired, http.StatusGone, "session_expired"},
	{authsession.ErrCodeNotSent, http.StatusConflict, "code_not_sent"},
	{authsession.ErrInvalidCode, http.StatusUnprocessableEntity, "invalid_code"},
	{authsession.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
	{verification.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
	{authsession.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{authsession.ErrNotVerified, http.StatusForbidden, "not_verified"},
	{authsession.ErrAlreadyVerified, http.StatusConflict, "already_verified"},
	{authsession.ErrAlreadyConsumed, http.StatusConflict, "already_used"},
	{authsession.ErrPhoneRequired, http.StatusBadRequest, "phone_required"},
	{authsession.ErrPurposeMismatch, http.StatusBadRequest, "purpose_mismatch"},
	{verification.ErrInvalidPhone, http.StatusBadRequest, "invalid_phone"},
	{verification.ErrUnknownVerification, http.StatusGone, "code_expired"},

	// Admin auth
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{auth.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{auth.ErrInvalidToken, http.StatusBadRequest, "invalid_token"},
	{auth.ErrAdminNotFound, http.StatusNotFound, "not_found"},
	{auth.ErrAdminExists, http.StatusConflict, "admin_exists"},

	// Forms
	{estimation.ErrInvalidSurface, http.StatusBadRequest, "invalid_input"},
	{estimation.ErrInvalidPostalCode, http.StatusBadRequest, "invalid_input"},
	{estimation.ErrInvalidType, http.StatusBadRequest, "invalid_input"},
	{estimation.ErrInvalidFinancing, http.StatusBadRequest, "invalid_input"},
	{lead.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{lead.ErrNotFound, http.StatusNotFound, "not_found"},

	// Content and campaigns
	{sequence.ErrNotFound, http.StatusNotFound, "not_found"},
	{sequence.ErrTemplateNotFound, http.StatusNotFound, "not_found"},
	{sequence.ErrAlreadyScheduled, http.StatusConflict, "already_scheduled"},
	{sequence.ErrInvalidPersona, http.StatusBadRequest, "invalid_input"},
	{sequence.ErrInvalidTemplate, http.StatusBadRequest, "invalid_template"},
	{sequence.ErrSuppressed, http.StatusConflict, "suppressed"},
	{worker.ErrTickInProgress, http.StatusConflict, "tick_in_progress"},
	{article.ErrNotFound, http.StatusNotFound, "not_found"},
	{article.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{article.ErrGenerationUnavailable, http.StatusServiceUnavailable, "generation_unavailable"},
	{article.ErrGenerationFailed, http.StatusBadGateway, "generation_failed"},
	{campaign.ErrNotFound, http.StatusNotFound, "not_found"},
	{campaign.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{campaign.ErrNotEditable, http.StatusConflict, "not_editable"},
	{campaign.ErrAlreadySending, http.StatusConflict, "already_sending"},
	{campaign.ErrNoTransport, http.StatusServiceUnavailable, "no_transport"},
	{guide.ErrNotFound, http.StatusNotFound, "not_found"},
	{guide.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{guide.ErrNoContent, http.StatusConflict, "no_content"},
	{guide.ErrPDFUnavailable, http.StatusServiceUnavailable, "pdf_unavailable"},
	{suppression.ErrNotFound, http.StatusNotFound, "not_found"},
	{suppression.ErrInvalidValue, http.StatusBadRequest, "invalid_input"},
}

// respondServiceError maps a service error to its HTTP response. Unknown
// errors become a sanitized 500.
func respondServiceError(w http.ResponseWriter, err error, publicMsg string) {
	var rl *authsession.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= 500 {
				logger.Warn("api: dependency unavailable", "code", m.code, "error", err)
			}
			httputil.ErrorCode(w, m.status, m.code, err.Error())
			return
		}
	}
	respondSafeError(w, http.StatusInternalServerError, err, publicMsg)
}
