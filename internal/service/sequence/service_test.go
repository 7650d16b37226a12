package sequence

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/mailing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type memRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.EmailSequence
}

func newMemRepo() *memRepo { return &memRepo{rows: map[string]*domain.EmailSequence{}} }

func (m *memRepo) CreateBatch(_ context.Context, rows []domain.EmailSequence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range rows {
		r := rows[i]
		m.rows[r.ID] = &r
	}
	return nil
}

func (m *memRepo) ExistsPending(_ context.Context, email, guideID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Email == email && r.GuideID == guideID && (r.Status == domain.SequencePending || r.Status == domain.SequenceSending) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ClaimDue(_ context.Context, now time.Time, limit int) ([]domain.EmailSequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blocked := func(r *domain.EmailSequence) bool {
		for _, o := range m.rows {
			if o.LeadID == r.LeadID && o.GuideID == r.GuideID && o.Step < r.Step &&
				(o.Status == domain.SequencePending || o.Status == domain.SequenceSending ||
					(o.SentAt != nil && !o.SentAt.Before(now))) {
				return true
			}
		}
		return false
	}

	var due []*domain.EmailSequence
	for _, r := range m.rows {
		if r.Status == domain.SequencePending && !r.ScheduledFor.After(now) && !blocked(r) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]domain.EmailSequence, 0, len(due))
	for _, r := range due {
		r.Status = domain.SequenceSending
		r.UpdatedAt = now
		out = append(out, *r)
	}
	return out, nil
}

func (m *memRepo) set(id string, fn func(r *domain.EmailSequence)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	fn(r)
	return nil
}

func (m *memRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	return m.set(id, func(r *domain.EmailSequence) { r.Status = domain.SequenceSent; r.SentAt = &at })
}

func (m *memRepo) MarkRetry(_ context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return m.set(id, func(r *domain.EmailSequence) {
		r.Status, r.Attempts, r.ScheduledFor, r.LastError = domain.SequencePending, attempts, next, lastErr
	})
}

func (m *memRepo) MarkFailed(_ context.Context, id string, attempts int, lastErr string) error {
	return m.set(id, func(r *domain.EmailSequence) {
		r.Status, r.Attempts, r.LastError = domain.SequenceFailed, attempts, lastErr
	})
}

func (m *memRepo) MarkCancelled(_ context.Context, id, reason string) error {
	return m.set(id, func(r *domain.EmailSequence) { r.Status, r.LastError = domain.SequenceCancelled, reason })
}

func (m *memRepo) cancelWhere(match func(r *domain.EmailSequence) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.Status == domain.SequencePending && match(r) {
			r.Status = domain.SequenceCancelled
			n++
		}
	}
	return n
}

func (m *memRepo) CancelPendingForLead(_ context.Context, leadID string) (int, error) {
	return m.cancelWhere(func(r *domain.EmailSequence) bool { return r.LeadID == leadID }), nil
}

func (m *memRepo) CancelPendingForEmail(_ context.Context, email string) (int, error) {
	return m.cancelWhere(func(r *domain.EmailSequence) bool { return r.Email == email }), nil
}

func (m *memRepo) RecoverStale(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.Status == domain.SequenceSending && r.UpdatedAt.Before(olderThan) {
			r.Status = domain.SequencePending
			n++
		}
	}
	return n, nil
}

func (m *memRepo) ListByLead(_ context.Context, leadID string) ([]domain.EmailSequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EmailSequence
	for _, r := range m.rows {
		if r.LeadID == leadID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

func (m *memRepo) List(ctx context.Context, f ListFilter) ([]domain.EmailSequence, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EmailSequence
	for _, r := range m.rows {
		if f.Status == "" || r.Status == f.Status {
			out = append(out, *r)
		}
	}
	return out, len(out), nil
}

func (m *memRepo) Stats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &Stats{}
	for _, r := range m.rows {
		switch r.Status {
		case domain.SequencePending:
			st.Pending++
		case domain.SequenceSent:
			st.Sent++
		case domain.SequenceFailed:
			st.Failed++
		case domain.SequenceCancelled:
			st.Cancelled++
		}
	}
	return st, nil
}

func (m *memRepo) byStep(leadID string) map[int]domain.EmailSequence {
	rows, _ := m.ListByLead(context.Background(), leadID)
	out := map[int]domain.EmailSequence{}
	for _, r := range rows {
		out[r.Step] = r
	}
	return out
}

type memTemplates struct {
	mu   sync.Mutex
	tpls map[string]*domain.EmailTemplate
}

func newMemTemplates() *memTemplates { return &memTemplates{tpls: map[string]*domain.EmailTemplate{}} }

func (m *memTemplates) Find(_ context.Context, p domain.Persona, step int) (*domain.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tpls {
		if t.Persona == p && t.Step == step && t.Active {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTemplateNotFound
}

func (m *memTemplates) Get(_ context.Context, id string) (*domain.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tpls[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTemplates) List(_ context.Context) ([]domain.EmailTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EmailTemplate
	for _, t := range m.tpls {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memTemplates) Create(_ context.Context, t *domain.EmailTemplate) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tpls[t.ID] = &cp
	return t.ID, nil
}

func (m *memTemplates) Update(_ context.Context, id string, u TemplateUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tpls[id]
	if !ok {
		return ErrTemplateNotFound
	}
	if u.Subject != nil {
		t.Subject = *u.Subject
	}
	if u.HTML != nil {
		t.HTML = *u.HTML
	}
	if u.Active != nil {
		t.Active = *u.Active
	}
	return nil
}

func (m *memTemplates) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tpls, id)
	return nil
}

// ---------------------------------------------------------------------------
// Collaborator fakes
// ---------------------------------------------------------------------------

type flakySender struct {
	mu    sync.Mutex
	fails int // number of sends to fail before succeeding
	err   error
	sent  []*mailing.Message
}

func (f *flakySender) Send(_ context.Context, m *mailing.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		if f.err != nil {
			return f.err
		}
		return errors.New("421 try again later")
	}
	f.sent = append(f.sent, m)
	return nil
}

type staticGuides map[string]*domain.Guide

func (g staticGuides) Get(_ context.Context, id string) (*domain.Guide, error) {
	if v, ok := g[id]; ok {
		return v, nil
	}
	return nil, errors.New("guide not found")
}

type setSuppressor map[string]bool

func (s setSuppressor) IsEmailSuppressed(_ context.Context, email string) (bool, error) {
	return s[email], nil
}

type fakeLinks struct{}

func (fakeLinks) UnsubscribeURL(email string) (string, error) {
	return "https://immo.example.fr/api/unsubscribe?token=t-" + email, nil
}

func (fakeLinks) GuideDownloadURL(g *domain.Guide, leadID string) (string, error) {
	return "https://immo.example.fr/api/guides/" + g.Slug + "/download?lead=" + leadID, nil
}

type fixture struct {
	svc       *Service
	repo      *memRepo
	templates *memTemplates
	sender    *flakySender
	supp      setSuppressor
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemRepo(),
		templates: newMemTemplates(),
		sender:    &flakySender{},
		supp:      setSuppressor{},
		now:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, Deps{
		Templates:    f.templates,
		Sender:       f.sender,
		Guides:       staticGuides{"g1": {ID: "g1", Slug: "vendre-succession", Title: "Vendre un bien hérité", Persona: domain.PersonaSuccession}},
		Suppressions: f.supp,
		Links:        fakeLinks{},
	}, Config{MaxAttempts: 3, RetryBackoff: 30 * time.Minute, SiteURL: "https://immo.example.fr"})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) schedule(t *testing.T) []domain.EmailSequence {
	t.Helper()
	rows, err := f.svc.Schedule(context.Background(), ScheduleInput{
		LeadID: "lead-1", Email: "Heritier@Example.com", FirstName: "camille",
		Persona: domain.PersonaSuccession, GuideID: "g1",
	})
	require.NoError(t, err)
	return rows
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSchedule_FourRowsAtOffsets(t *testing.T) {
	f := newFixture(t)
	rows := f.schedule(t)

	require.Len(t, rows, 4)
	for i, off := range []int{0, 2, 5, 10} {
		assert.Equal(t, i+1, rows[i].Step)
		assert.Equal(t, off, rows[i].DayOffset)
		assert.Equal(t, f.now.AddDate(0, 0, off), rows[i].ScheduledFor)
		assert.Equal(t, domain.SequencePending, rows[i].Status)
		assert.Equal(t, "heritier@example.com", rows[i].Email)
	}
	assert.Equal(t, "succession_day5", rows[2].TemplateKey)
}

func TestSchedule_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Schedule(ctx, ScheduleInput{LeadID: "l", Email: "a@example.com", GuideID: "g1", Persona: "pirate"})
	assert.ErrorIs(t, err, ErrInvalidPersona)

	f.schedule(t)
	_, err = f.svc.Schedule(ctx, ScheduleInput{LeadID: "lead-2", Email: "heritier@example.com", GuideID: "g1", Persona: domain.PersonaSuccession})
	assert.ErrorIs(t, err, ErrAlreadyScheduled)

	f.supp["optout@example.com"] = true
	_, err = f.svc.Schedule(ctx, ScheduleInput{LeadID: "l3", Email: "optout@example.com", GuideID: "g1", Persona: domain.PersonaFamille})
	assert.ErrorIs(t, err, ErrSuppressed)
}

func TestScheduleLead_UsesGuidePersona(t *testing.T) {
	f := newFixture(t)
	g := "g1"
	l := &domain.Lead{ID: "lead-9", Email: "x@example.com", GuideID: &g}
	require.NoError(t, f.svc.ScheduleLead(context.Background(), l))

	rows := f.repo.byStep("lead-9")
	require.Len(t, rows, 4)
	assert.Equal(t, domain.PersonaSuccession, rows[1].Persona)

	// a second download of the same guide is not an error
	assert.NoError(t, f.svc.ScheduleLead(context.Background(), l))
	assert.Error(t, f.svc.ScheduleLead(context.Background(), &domain.Lead{ID: "x"}))
}

func TestProcessDue_SendsOnlyDueSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t)

	res, err := f.svc.ProcessDue(ctx, f.now, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Claimed)
	assert.Equal(t, 1, res.Sent)

	require.Len(t, f.sender.sent, 1)
	msg := f.sender.sent[0]
	assert.Equal(t, "heritier@example.com", msg.To)
	assert.Contains(t, msg.Subject, "Vendre un bien hérité")
	assert.Contains(t, msg.HTML, "Bonjour Camille")
	assert.Contains(t, msg.HTML, "/api/guides/vendre-succession/download?lead=lead-1")
	assert.Contains(t, msg.Headers["List-Unsubscribe"], "t-heritier@example.com")
	assert.Equal(t, "1", msg.Tags["sequence_step"])

	// day 1: nothing due
	res, err = f.svc.ProcessDue(ctx, f.now.AddDate(0, 0, 1), 50)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed)

	// day 11: the remaining steps catch up one tick at a time, in order
	late := f.now.AddDate(0, 0, 11)
	for step := 2; step <= 4; step++ {
		res, err = f.svc.ProcessDue(ctx, late, 50)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Sent, "tick for step %d", step)
		assert.Equal(t, strconv.Itoa(step), f.sender.sent[len(f.sender.sent)-1].Tags["sequence_step"])
	}

	for step, r := range f.repo.byStep("lead-1") {
		assert.Equal(t, domain.SequenceSent, r.Status, "step %d", step)
	}
}

func TestProcessDue_RetryThenFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t)
	f.sender.fails = 10

	res, err := f.svc.ProcessDue(ctx, f.now, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)
	first := f.repo.byStep("lead-1")[1]
	assert.Equal(t, domain.SequencePending, first.Status)
	assert.Equal(t, 1, first.Attempts)
	assert.Equal(t, f.now.Add(30*time.Minute), first.ScheduledFor)
	assert.Contains(t, first.LastError, "421")

	// before the backoff elapses the row is not claimed
	res, _ = f.svc.ProcessDue(ctx, f.now.Add(10*time.Minute), 50)
	assert.Equal(t, 0, res.Claimed)

	// second failure doubles the backoff
	at := f.now.Add(30 * time.Minute)
	res, _ = f.svc.ProcessDue(ctx, at, 50)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, at.Add(time.Hour), f.repo.byStep("lead-1")[1].ScheduledFor)

	res, _ = f.svc.ProcessDue(ctx, at.Add(time.Hour), 50)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.SequenceFailed, f.repo.byStep("lead-1")[1].Status)
	assert.Equal(t, 3, f.repo.byStep("lead-1")[1].Attempts)
}

func TestProcessDue_OneStepPerLeadPerTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t)

	// a backlog of eleven days drained in batches of one within a tick
	tick := f.now.AddDate(0, 0, 11)
	f.now = tick.Add(time.Second)

	res, err := f.svc.ProcessDue(ctx, tick, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	res, err = f.svc.ProcessDue(ctx, tick, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed, "step 2 must wait for the next tick")

	next := tick.Add(15 * time.Minute)
	f.now = next.Add(time.Second)
	res, err = f.svc.ProcessDue(ctx, next, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, "2", f.sender.sent[len(f.sender.sent)-1].Tags["sequence_step"])
}

func TestProcessDue_LongErrorKeepsValidUTF8(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t)
	f.sender.fails = 10
	f.sender.err = errors.New(strings.Repeat("a", 499) + "é refusé par le serveur")

	res, err := f.svc.ProcessDue(ctx, f.now, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)

	got := f.repo.byStep("lead-1")[1].LastError
	assert.True(t, utf8.ValidString(got), "last error %q", got[len(got)-4:])
	assert.Equal(t, strings.Repeat("a", 499), got)
}

func TestTruncateError(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"court", 500, "court"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"aéb", 3, "aé"},
		{"a\xffb", 10, "ab"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateError(tt.in, tt.n), "truncateError(%q, %d)", tt.in, tt.n)
	}
}

func TestProcessDue_LaterStepWaitsForEarlierOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t)
	f.sender.fails = 1

	// step 1 fails at day 3 while step 2 is already due: step 2 must wait
	res, err := f.svc.ProcessDue(ctx, f.now.AddDate(0, 0, 3), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Claimed)
	assert.Equal(t, domain.SequencePending, f.repo.byStep("lead-1")[2].Status)
	assert.Empty(t, f.sender.sent)
}

func TestProcessDue_SuppressedIsCancelled(t *testing.T) {
	f := newFixture(t)
	f.schedule(t)
	f.supp["heritier@example.com"] = true

	res, err := f.svc.ProcessDue(context.Background(), f.now, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cancelled)
	assert.Empty(t, f.sender.sent)
	assert.Equal(t, domain.SequenceCancelled, f.repo.byStep("lead-1")[1].Status)
}

func TestProcessDue_RecoversStaleSending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t)

	claimed, err := f.repo.ClaimDue(ctx, f.now, 10) // a worker that died
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	res, err := f.svc.ProcessDue(ctx, f.now.Add(2*time.Hour), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recovered)
	assert.Equal(t, 1, res.Sent)
}

func TestProcessDue_ConcurrentWorkersNeverDoubleSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := f.svc.Schedule(ctx, ScheduleInput{
			LeadID: "lead-" + string(rune('a'+i)), Email: string(rune('a'+i)) + "@example.com",
			Persona: domain.PersonaFamille, GuideID: "g1",
		})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.ProcessDue(ctx, f.now, 5)
		}()
	}
	wg.Wait()
	_, _ = f.svc.ProcessDue(ctx, f.now, 50)

	seen := map[string]int{}
	for _, m := range f.sender.sent {
		seen[m.To]++
	}
	assert.Len(t, seen, 20)
	for to, n := range seen {
		assert.Equal(t, 1, n, to)
	}
}

func TestResolveTemplate_Fallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	def, err := f.svc.ResolveTemplate(ctx, domain.PersonaRetraite, 2)
	require.NoError(t, err)
	assert.Empty(t, def.ID, "built-in default")

	generic, err := f.svc.CreateTemplate(ctx, TemplateInput{Step: 2, Subject: "Générique", HTML: "<p>{{ first_name }}</p>"})
	require.NoError(t, err)
	got, _ := f.svc.ResolveTemplate(ctx, domain.PersonaRetraite, 2)
	assert.Equal(t, generic.ID, got.ID)

	specific, err := f.svc.CreateTemplate(ctx, TemplateInput{Persona: domain.PersonaRetraite, Step: 2, Subject: "Retraite", HTML: "<p>x</p>"})
	require.NoError(t, err)
	got, _ = f.svc.ResolveTemplate(ctx, domain.PersonaRetraite, 2)
	assert.Equal(t, specific.ID, got.ID)

	// deactivated templates are skipped
	off := false
	require.NoError(t, f.svc.UpdateTemplate(ctx, specific.ID, TemplateUpdate{Active: &off}))
	got, _ = f.svc.ResolveTemplate(ctx, domain.PersonaRetraite, 2)
	assert.Equal(t, generic.ID, got.ID)
}

func TestCreateTemplate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateTemplate(ctx, TemplateInput{Step: 5, Subject: "s", HTML: "h"})
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	_, err = f.svc.CreateTemplate(ctx, TemplateInput{Step: 1, Subject: "s", HTML: "{% if x %}never closed"})
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	_, err = f.svc.CreateTemplate(ctx, TemplateInput{Persona: "x", Step: 1, Subject: "s", HTML: "h"})
	assert.ErrorIs(t, err, ErrInvalidPersona)

	bad := "{% for x in items %}{{ x }}"
	assert.ErrorIs(t, f.svc.UpdateTemplate(ctx, "any", TemplateUpdate{HTML: &bad}), ErrInvalidTemplate)
}

func TestPreviewTemplate(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.PreviewTemplate(TemplateInput{
		Persona: domain.PersonaMutation, Step: 1,
		Subject: "Bonjour {{ first_name }}", HTML: "<p>{{ tip }} {{ promo }}</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour Camille", p.Subject)
	require.Len(t, p.Warnings, 1)
	assert.Equal(t, "promo", p.Warnings[0].Variable)
	assert.Len(t, f.svc.DefaultTemplates(domain.PersonaMutation), 4)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule(t)
	_, err := f.svc.ProcessDue(ctx, f.now, 50)
	require.NoError(t, err)

	n, err := f.svc.CancelForEmail(ctx, "HERITIER@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.svc.CancelForLead(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Sent)
	assert.Equal(t, 3, st.Cancelled)
}
