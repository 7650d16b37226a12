package lead

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/estimation"
	"github.com/ignite/immo-leads/internal/service/authsession"
	"github.com/ignite/immo-leads/internal/service/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// In-memory repository for unit tests
// ---------------------------------------------------------------------------

type memRepo struct {
	mu    sync.Mutex
	leads map[string]*domain.Lead
	err   error
}

func newMemRepo() *memRepo { return &memRepo{leads: map[string]*domain.Lead{}} }

func (m *memRepo) Create(_ context.Context, l *domain.Lead) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	cp := *l
	m.leads[l.ID] = &cp
	return l.ID, nil
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memRepo) sorted() []domain.Lead {
	out := make([]domain.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]domain.Lead, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var match []domain.Lead
	for _, l := range m.sorted() {
		if f.Source != "" && l.Source != f.Source {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		match = append(match, l)
	}
	total := len(match)
	if f.Offset >= len(match) {
		return nil, total, nil
	}
	match = match[f.Offset:]
	if f.Limit > 0 && len(match) > f.Limit {
		match = match[:f.Limit]
	}
	return match, total, nil
}

func (m *memRepo) Update(_ context.Context, id string, u UpdateFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return ErrNotFound
	}
	if u.Status != nil {
		l.Status = *u.Status
	}
	if u.Notes != nil {
		l.Notes = *u.Notes
	}
	if u.Email != nil {
		l.Email = *u.Email
	}
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leads[id]; !ok {
		return ErrNotFound
	}
	delete(m.leads, id)
	return nil
}

func (m *memRepo) FindRecentByPhone(_ context.Context, phone string, source domain.LeadSource, since time.Time) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Lead
	for _, l := range m.sorted() {
		if l.Phone == phone && l.Source == source && l.CreatedAt.After(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memRepo) ListForSegment(_ context.Context, seg domain.Segment, _ domain.CampaignChannel) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Lead
	for _, l := range m.sorted() {
		if seg.Persona == "" || l.Persona == seg.Persona {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memRepo) Stats(_ context.Context, since time.Time) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &Stats{BySource: map[string]int{}, ByStatus: map[string]int{}, ByPersona: map[string]int{}}
	for _, l := range m.leads {
		st.Total++
		st.BySource[string(l.Source)]++
		st.ByStatus[string(l.Status)]++
		if l.CreatedAt.After(since) {
			st.Recent++
		}
	}
	return st, nil
}

type recordingSequencer struct {
	mu    sync.Mutex
	leads []string
	err   error
}

func (r *recordingSequencer) ScheduleLead(_ context.Context, l *domain.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads = append(r.leads, l.ID)
	return r.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fixture struct {
	svc      *Service
	repo     *memRepo
	sessions *authsession.Service
	seq      *recordingSequencer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	provider := verification.NewLocalProvider(verification.LocalConfig{DevMode: true, TestCodes: []string{"000000"}}, nil)
	sessions := authsession.NewService(authsession.NewMemoryStore(), provider, nil, authsession.Config{})
	repo := newMemRepo()
	seq := &recordingSequencer{}
	est := estimation.New(3000, map[string]float64{"75": 10000}, 0.08)
	return &fixture{
		svc:      NewService(repo, sessions, est, seq),
		repo:     repo,
		sessions: sessions,
		seq:      seq,
	}
}

// verifiedSession runs the SMS gate up to the verified state.
func (f *fixture) verifiedSession(t *testing.T, phone string, property string) string {
	t.Helper()
	return f.verifiedSessionWith(t, phone, authsession.CreateInput{}, property)
}

func (f *fixture) verifiedSessionWith(t *testing.T, phone string, in authsession.CreateInput, property string) string {
	t.Helper()
	ctx := context.Background()
	if property != "" {
		in.PropertyData = []byte(property)
	}
	sess, err := f.sessions.Create(ctx, in)
	require.NoError(t, err)
	_, err = f.sessions.SendCode(ctx, sess.ID, phone)
	require.NoError(t, err)
	_, err = f.sessions.VerifyCode(ctx, sess.ID, "000000")
	require.NoError(t, err)
	return sess.ID
}

const parisFlat = `{"postal_code":"75015","city":"Paris","property_type":"appartement","surface":50,"floor":1,"condition":"bon_etat"}`

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateFromSession_Estimation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.verifiedSession(t, "06 12 34 56 78", parisFlat)

	l, err := f.svc.CreateFromSession(ctx, sid, LeadInput{
		Source:    domain.SourceEstimation,
		FirstName: " Camille ",
		Email:     "Camille@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "+33612345678", l.Phone)
	assert.True(t, l.PhoneVerified)
	assert.Equal(t, "camille@example.com", l.Email)
	assert.Equal(t, "Camille", l.FirstName)
	assert.Equal(t, "75015", l.PostalCode)
	assert.Equal(t, domain.LeadNew, l.Status)
	require.NotNil(t, l.SessionID)
	assert.Equal(t, sid, *l.SessionID)
	assert.Contains(t, string(l.Estimation), `"mid":500000`)
	assert.Empty(t, f.seq.leads, "estimation leads get no drip")

	// the session is single use
	_, err = f.svc.CreateFromSession(ctx, sid, LeadInput{Source: domain.SourceEstimation})
	assert.ErrorIs(t, err, authsession.ErrAlreadyConsumed)
}

func TestCreateFromSession_RequiresVerifiedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.sessions.Create(ctx, authsession.CreateInput{})
	require.NoError(t, err)

	_, err = f.svc.CreateFromSession(ctx, sess.ID, LeadInput{Source: domain.SourceContact})
	assert.ErrorIs(t, err, authsession.ErrNotVerified)

	_, err = f.svc.CreateFromSession(ctx, "nope", LeadInput{Source: domain.SourceContact})
	assert.ErrorIs(t, err, authsession.ErrNotFound)
}

func TestCreateFromSession_GuideSchedulesSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.verifiedSession(t, "0712345678", "")

	l, err := f.svc.CreateFromSession(ctx, sid, LeadInput{
		Source:       domain.SourceGuide,
		Persona:      domain.PersonaSuccession,
		Email:        "heir@example.com",
		GuideID:      "guide-1",
		ConsentEmail: true,
	})
	require.NoError(t, err)
	require.NotNil(t, l.GuideID)
	assert.Equal(t, []string{l.ID}, f.seq.leads)
}

func TestCreateFromSession_GuideUsesSessionEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.verifiedSessionWith(t, "0712345678", authsession.CreateInput{Email: " Heir@Example.com "}, "")

	l, err := f.svc.CreateFromSession(ctx, sid, LeadInput{
		Source:  domain.SourceGuide,
		Persona: domain.PersonaSuccession,
		GuideID: "guide-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "heir@example.com", l.Email)
	assert.Equal(t, []string{l.ID}, f.seq.leads)
}

func TestCreateFromSession_GuideWithoutAnyEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.verifiedSession(t, "0712345678", "")

	_, err := f.svc.CreateFromSession(ctx, sid, LeadInput{Source: domain.SourceGuide, GuideID: "guide-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// the session was released and can still produce the lead
	_, err = f.svc.CreateFromSession(ctx, sid, LeadInput{Source: domain.SourceGuide, GuideID: "guide-1", Email: "a@example.com"})
	assert.NoError(t, err)
}

func TestCreateFromSession_ScheduleFailureKeepsLead(t *testing.T) {
	f := newFixture(t)
	f.seq.err = errors.New("smtp down")
	sid := f.verifiedSession(t, "0712345678", "")

	l, err := f.svc.CreateFromSession(context.Background(), sid, LeadInput{
		Source: domain.SourceGuide, Email: "a@example.com", GuideID: "g1",
	})
	require.NoError(t, err)
	_, err = f.repo.Get(context.Background(), l.ID)
	assert.NoError(t, err)
}

func TestCreateFromSession_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateFromSession(ctx, f.verifiedSession(t, "0612345678", ""), LeadInput{Source: domain.SourceContact, Message: "Bonjour"})
	require.NoError(t, err)

	second, err := f.svc.CreateFromSession(ctx, f.verifiedSession(t, "+33612345678", ""), LeadInput{Source: domain.SourceContact, Message: "Bonjour encore"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.repo.leads, 1)

	// another guide is a new lead
	g1, err := f.svc.CreateFromSession(ctx, f.verifiedSession(t, "0612345678", ""), LeadInput{Source: domain.SourceGuide, Email: "a@example.com", GuideID: "g1"})
	require.NoError(t, err)
	g2, err := f.svc.CreateFromSession(ctx, f.verifiedSession(t, "0612345678", ""), LeadInput{Source: domain.SourceGuide, Email: "a@example.com", GuideID: "g2"})
	require.NoError(t, err)
	assert.NotEqual(t, g1.ID, g2.ID)
	assert.Len(t, f.seq.leads, 2)
}

func TestCreateFromSession_FailureReleasesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.verifiedSession(t, "0612345678", "")

	f.repo.err = errors.New("connection reset")
	_, err := f.svc.CreateFromSession(ctx, sid, LeadInput{Source: domain.SourceContact})
	require.Error(t, err)

	f.repo.err = nil
	l, err := f.svc.CreateFromSession(ctx, sid, LeadInput{Source: domain.SourceContact})
	require.NoError(t, err)
	assert.NotEmpty(t, l.ID)
}

func TestCreateFromSession_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.verifiedSession(t, "0612345678", "")

	tests := []struct {
		name string
		in   LeadInput
	}{
		{"unknown source", LeadInput{Source: "fax"}},
		{"unknown persona", LeadInput{Source: domain.SourceContact, Persona: "astronaute"}},
		{"bad email", LeadInput{Source: domain.SourceContact, Email: "not-an-email"}},
		{"guide without id", LeadInput{Source: domain.SourceGuide, Email: "a@example.com"}},
		{"estimation without property", LeadInput{Source: domain.SourceEstimation}},
		{"estimation with bad surface", LeadInput{Source: domain.SourceEstimation, PropertyData: []byte(`{"postal_code":"75015","property_type":"maison","surface":2}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateFromSession(ctx, sid, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	// none of the failures burned the session
	_, err := f.svc.CreateFromSession(ctx, sid, LeadInput{Source: domain.SourceContact})
	assert.NoError(t, err)
}

func TestCreate_NonGated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.Create(ctx, LeadInput{Source: domain.SourceFinancing, Email: "b@example.com", Phone: "06.12.34.56.78"})
	require.NoError(t, err)
	assert.Equal(t, "+33612345678", l.Phone)
	assert.False(t, l.PhoneVerified)

	_, err = f.svc.Create(ctx, LeadInput{Source: domain.SourceContact})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Create(ctx, LeadInput{Source: domain.SourceContact, Phone: "0123"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAdminOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.svc.Create(ctx, LeadInput{Source: domain.SourceContact, Email: "c@example.com"})
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateStatus(ctx, l.ID, domain.LeadQualified))
	require.NoError(t, f.svc.UpdateNotes(ctx, l.ID, "rappeler lundi"))
	got, err := f.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadQualified, got.Status)
	assert.Equal(t, "rappeler lundi", got.Notes)

	assert.ErrorIs(t, f.svc.UpdateStatus(ctx, l.ID, "archived"), ErrInvalidInput)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Recent)

	require.NoError(t, f.svc.Delete(ctx, l.ID))
	_, err = f.svc.Get(ctx, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, LeadInput{Source: domain.SourceContact, Email: "x" + string(rune('a'+i)) + "@example.com", FirstName: "Zoé, \"la\""})
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	n, err := f.svc.ExportCSV(ctx, &buf, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, "Zoé, \"la\"", rows[1][5])
}

func TestExportCSV_NeutralizesFormulas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, LeadInput{
		Source:      domain.SourceContact,
		Email:       "formule@example.com",
		FirstName:   `=HYPERLINK("http://evil.example","clic")`,
		LastName:    "-2+3",
		City:        "@SUM(A1:A9)",
		UTMSource:   "+33",
		UTMCampaign: "\tcmd",
		Message:     "=1+1",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = f.svc.ExportCSV(ctx, &buf, ListFilter{})
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	col := map[string]string{}
	for i, h := range rows[0] {
		col[h] = rows[1][i]
	}
	assert.Equal(t, `'=HYPERLINK("http://evil.example","clic")`, col["first_name"])
	assert.Equal(t, "'-2+3", col["last_name"])
	assert.Equal(t, "'@SUM(A1:A9)", col["city"])
	assert.Equal(t, "'+33", col["utm_source"])
	assert.Equal(t, "'\tcmd", col["utm_campaign"])
	assert.Equal(t, "'=1+1", col["message"])
	assert.Equal(t, "formule@example.com", col["email"])
	assert.Equal(t, "contact", col["source"])
}
