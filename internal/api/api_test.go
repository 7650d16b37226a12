package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/immo-leads/internal/auth"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/estimation"
	"github.com/ignite/immo-leads/internal/service/authsession"
	"github.com/ignite/immo-leads/internal/service/campaign"
	"github.com/ignite/immo-leads/internal/service/guide"
	"github.com/ignite/immo-leads/internal/service/lead"
	"github.com/ignite/immo-leads/internal/service/sequence"
	"github.com/ignite/immo-leads/internal/service/suppression"
	"github.com/ignite/immo-leads/internal/service/verification"
	"github.com/stretchr/testify/require"
)

// codeSink captures the codes the local provider would text.
type codeSink struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *codeSink) SendCode(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phone] = code
	return nil
}

func (s *codeSink) last(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

type memLeadRepo struct {
	lead.Repository
	mu    sync.Mutex
	leads map[string]*domain.Lead
}

func (r *memLeadRepo) Create(_ context.Context, l *domain.Lead) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.leads[l.ID] = &cp
	return l.ID, nil
}

func (r *memLeadRepo) Get(_ context.Context, id string) (*domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return nil, lead.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *memLeadRepo) List(_ context.Context, f lead.ListFilter) ([]domain.Lead, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Lead
	for _, l := range r.leads {
		if f.Source != "" && l.Source != f.Source {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (r *memLeadRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leads[id]; !ok {
		return lead.ErrNotFound
	}
	delete(r.leads, id)
	return nil
}

func (r *memLeadRepo) FindRecentByPhone(_ context.Context, phone string, source domain.LeadSource, since time.Time) ([]domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Lead
	for _, l := range r.leads {
		if l.Phone == phone && l.Source == source && l.CreatedAt.After(since) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (r *memLeadRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leads)
}

type fakeSequences struct {
	Sequences
	mu              sync.Mutex
	scheduled       []string
	cancelledEmails []string
	cancelledLeads  []string
}

func (f *fakeSequences) ScheduleLead(_ context.Context, l *domain.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, l.ID)
	return nil
}

func (f *fakeSequences) CancelForEmail(_ context.Context, email string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledEmails = append(f.cancelledEmails, email)
	return 4, nil
}

func (f *fakeSequences) CancelForLead(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledLeads = append(f.cancelledLeads, id)
	return 4, nil
}

func (f *fakeSequences) ListForLead(_ context.Context, id string) ([]domain.EmailSequence, error) {
	return nil, nil
}

type fakeGuides struct {
	Guides
	guides map[string]*domain.Guide
	opened []string
	body   string
}

func (f *fakeGuides) Get(_ context.Context, id string) (*domain.Guide, error) {
	g, ok := f.guides[id]
	if !ok {
		return nil, guide.ErrNotFound
	}
	return g, nil
}

func (f *fakeGuides) Open(_ context.Context, id string) (*guide.Download, error) {
	g, ok := f.guides[id]
	if !ok || !g.Published {
		return nil, guide.ErrNotFound
	}
	f.opened = append(f.opened, id)
	return &guide.Download{Guide: g, Filename: g.Slug + ".pdf", Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

type fakeSuppressions struct {
	Suppressions
	mu      sync.Mutex
	entries []domain.Suppression
}

func (f *fakeSuppressions) Suppress(_ context.Context, ch domain.CampaignChannel, value string, reason domain.SuppressionReason, source domain.SuppressionSource) error {
	if value == "" {
		return suppression.ErrInvalidValue
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, domain.Suppression{Channel: ch, Value: value, Reason: reason, Source: source})
	return nil
}

func (f *fakeSuppressions) all() []domain.Suppression {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Suppression(nil), f.entries...)
}

type fakeCampaigns struct {
	Campaigns
	mu    sync.Mutex
	items map[string]*domain.Campaign
	sent  chan string
}

func (f *fakeCampaigns) Get(_ context.Context, id string) (*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaigns) Send(_ context.Context, id string) (*campaign.Counts, error) {
	f.mu.Lock()
	f.items[id].Status = domain.CampaignSent
	f.mu.Unlock()
	f.sent <- id
	return &campaign.Counts{Recipients: 2, Sent: 2}, nil
}

type fakeRunner struct{ calls int }

func (f *fakeRunner) RunOnce(context.Context) (*sequence.RunResult, error) {
	f.calls++
	return &sequence.RunResult{Claimed: 3, Sent: 3}, nil
}

type fakeAdminRepo struct {
	auth.AdminRepository
	admin *domain.AdminUser
}

func (f *fakeAdminRepo) Get(_ context.Context, id string) (*domain.AdminUser, error) {
	if f.admin == nil || f.admin.ID != id {
		return nil, auth.ErrAdminNotFound
	}
	return f.admin, nil
}

type testEnv struct {
	h         *Handlers
	srv       http.Handler
	codes     *codeSink
	leads     *memLeadRepo
	seqs      *fakeSequences
	guides    *fakeGuides
	supp      *fakeSuppressions
	campaigns *fakeCampaigns
	signer    *auth.Signer
	links     *auth.Links
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	signer, err := auth.NewSigner(strings.Repeat("s", 32), "immo-leads-test")
	require.NoError(t, err)

	codes := &codeSink{codes: map[string]string{}}
	sessions := authsession.NewService(
		authsession.NewMemoryStore(),
		verification.NewLocalProvider(verification.LocalConfig{}, codes),
		nil,
		authsession.Config{},
	)
	seqs := &fakeSequences{}
	leadRepo := &memLeadRepo{leads: map[string]*domain.Lead{}}
	links := auth.NewLinks(signer, "https://immo.test", time.Hour)
	env := &testEnv{
		codes:  codes,
		leads:  leadRepo,
		seqs:   seqs,
		signer: signer,
		links:  links,
		guides: &fakeGuides{
			body: "%PDF-1.7 test",
			guides: map[string]*domain.Guide{
				"g1": {ID: "g1", Slug: "vendre-succession", Persona: domain.PersonaSuccession, Title: "Vendre un bien hérité", Published: true},
				"g2": {ID: "g2", Slug: "brouillon", Persona: domain.PersonaFamille, Title: "Brouillon"},
			},
		},
		supp: &fakeSuppressions{},
		campaigns: &fakeCampaigns{
			sent: make(chan string, 1),
			items: map[string]*domain.Campaign{
				"c1": {ID: "c1", Name: "Printemps", Channel: domain.ChannelEmail, Status: domain.CampaignDraft},
				"c2": {ID: "c2", Name: "Hiver", Channel: domain.ChannelSMS, Status: domain.CampaignSent},
			},
		},
	}

	admins := &fakeAdminRepo{admin: &domain.AdminUser{ID: "admin-1", Email: "admin@immo.test", Name: "Admin", Active: true}}
	env.h = NewHandlers(Deps{
		Sessions:     sessions,
		Leads:        lead.NewService(leadRepo, sessions, estimation.New(0, nil, 0), seqs),
		Sequences:    seqs,
		Guides:       env.guides,
		Suppressions: env.supp,
		Campaigns:    env.campaigns,
		Estimator:    estimation.New(0, nil, 0),
		Admins:       auth.NewManager(admins, sessions, signer, auth.ManagerConfig{}),
		Links:        links,
	})
	env.srv = SetupRoutes(env.h, RouterConfig{AllowedOrigins: []string{"http://localhost:5173"}})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) adminBearer(t *testing.T) []string {
	t.Helper()
	tok, _, err := e.signer.Sign(auth.AudienceAdmin, "admin-1", time.Hour, auth.Claims{Email: "admin@immo.test"})
	require.NoError(t, err)
	return []string{"Authorization", "Bearer " + tok}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
