package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/service/authsession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProperty = map[string]interface{}{
	"postal_code":   "75011",
	"city":          "Paris",
	"property_type": "appartement",
	"surface":       62,
	"rooms":         3,
	"condition":     "bon_etat",
}

func wrongCode(code string) string {
	last := code[len(code)-1]
	return code[:len(code)-1] + string(rune('0'+(last-'0'+1)%10))
}

func (e *testEnv) verifiedSession(t *testing.T, phone string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{"phone": phone, "property_data": testProperty})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess sessionView
	decodeBody(t, rec, &sess)

	rec = e.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/sms", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/verify", map[string]string{"code": e.codes.last("+33612345678")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sess.ID
}

func TestSessionGateEstimationFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sessions", map[string]interface{}{
		"phone":         "06 12 34 56 78",
		"property_data": testProperty,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess sessionView
	decodeBody(t, rec, &sess)
	assert.Equal(t, "+336******78", sess.Phone)
	assert.Equal(t, 5, sess.AttemptsLeft)
	assert.False(t, sess.PhoneVerified)

	// No lead before the phone is verified.
	rec = env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/lead", map[string]interface{}{"source": "estimation"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	var errResp httputil.ErrorResponse
	decodeBody(t, rec, &errResp)
	assert.Equal(t, "not_verified", errResp.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/sms", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	code := env.codes.last("+33612345678")
	require.Len(t, code, 6)

	rec = env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/verify", map[string]string{"code": wrongCode(code)})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var bad struct {
		Code    string         `json:"code"`
		Details map[string]int `json:"details"`
	}
	decodeBody(t, rec, &bad)
	assert.Equal(t, "invalid_code", bad.Code)
	assert.Equal(t, 4, bad.Details["attempts_left"])

	rec = env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/verify", map[string]string{"code": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &sess)
	assert.True(t, sess.PhoneVerified)

	rec = env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/lead", map[string]interface{}{
		"source":        "estimation",
		"first_name":    "Claire",
		"email":         "claire@example.fr",
		"consent_email": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created leadResponse
	decodeBody(t, rec, &created)
	assert.NotEmpty(t, created.LeadID)
	assert.Contains(t, string(created.Estimation), `"mid"`)
	assert.Empty(t, created.DownloadURL)

	stored, err := env.leads.Get(context.Background(), created.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "+33612345678", stored.Phone)
	assert.True(t, stored.PhoneVerified)

	// A session yields a single lead.
	rec = env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/lead", map[string]interface{}{"source": "estimation"})
	require.Equal(t, http.StatusConflict, rec.Code)
	decodeBody(t, rec, &errResp)
	assert.Equal(t, "already_used", errResp.Code)
	assert.Equal(t, 1, env.leads.count())
}

func TestSessionGateGuideDownload(t *testing.T) {
	env := newTestEnv(t)
	id := env.verifiedSession(t, "0612345678")

	rec := env.do(t, http.MethodPost, "/api/sessions/"+id+"/lead", map[string]interface{}{
		"source":   "guide",
		"guide_id": "g1",
		"email":    "paul@example.fr",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created leadResponse
	decodeBody(t, rec, &created)
	require.True(t, strings.HasPrefix(created.DownloadURL, "https://immo.test/api/guides/vendre-succession/download?token="), created.DownloadURL)
	assert.Equal(t, []string{created.LeadID}, env.seqs.scheduled)

	stored, err := env.leads.Get(context.Background(), created.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "succession", string(stored.Persona))

	rec = env.do(t, http.MethodGet, strings.TrimPrefix(created.DownloadURL, "https://immo.test"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "vendre-succession.pdf")
	assert.Equal(t, "%PDF-1.7 test", rec.Body.String())
	assert.Equal(t, []string{"g1"}, env.guides.opened)
}

func TestSessionGateUnpublishedGuideKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	id := env.verifiedSession(t, "0612345678")

	rec := env.do(t, http.MethodPost, "/api/sessions/"+id+"/lead", map[string]interface{}{
		"source": "guide", "guide_id": "g2", "email": "paul@example.fr",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, env.leads.count())

	rec = env.do(t, http.MethodPost, "/api/sessions/"+id+"/lead", map[string]interface{}{
		"source": "guide", "guide_id": "g1", "email": "paul@example.fr",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestDownloadRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	tok, err := env.links.UnsubscribeToken("paul@example.fr")
	require.NoError(t, err)

	for _, q := range []string{"", "?token=garbage", "?token=" + tok} {
		rec := env.do(t, http.MethodGet, "/api/guides/vendre-succession/download"+q, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, q)
	}
	assert.Empty(t, env.guides.opened)
}

func TestGetSessionUnknown(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSessionInvalidPhone(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/sessions", map[string]string{"phone": "01 23 45 67 89"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp httputil.ErrorResponse
	decodeBody(t, rec, &errResp)
	assert.Equal(t, "invalid_phone", errResp.Code)
}

func TestRespondServiceError(t *testing.T) {
	rec := httptest.NewRecorder()
	respondServiceError(rec, &authsession.RateLimitError{RetryAfter: 89500 * time.Millisecond}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	respondServiceError(rec, errors.New("pq: relation \"leads\" does not exist"), "could not save")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.Contains(t, rec.Body.String(), "could not save")
}
