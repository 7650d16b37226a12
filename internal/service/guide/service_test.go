package guide

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu     sync.Mutex
	guides map[string]*domain.Guide
}

func newMemRepo() *memRepo { return &memRepo{guides: map[string]*domain.Guide{}} }

func (m *memRepo) Create(_ context.Context, g *domain.Guide) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.guides[g.ID] = &cp
	return g.ID, nil
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Guide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memRepo) GetBySlug(_ context.Context, sl string) (*domain.Guide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.guides {
		if g.Slug == sl {
			cp := *g
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]domain.Guide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Guide
	for _, g := range m.guides {
		if f.Persona != "" && g.Persona != f.Persona {
			continue
		}
		if f.Published != nil && g.Published != *f.Published {
			continue
		}
		out = append(out, *g)
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, id string, u UpdateFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guides[id]
	if !ok {
		return ErrNotFound
	}
	if u.Title != nil {
		g.Title = *u.Title
	}
	if u.HTMLContent != nil {
		g.HTMLContent = *u.HTMLContent
	}
	if u.Published != nil {
		g.Published = *u.Published
	}
	if u.Slug != nil {
		g.Slug = *u.Slug
	}
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.guides[id]; !ok {
		return ErrNotFound
	}
	delete(m.guides, id)
	return nil
}

func (m *memRepo) SetPDFKey(_ context.Context, id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guides[id]
	if !ok {
		return ErrNotFound
	}
	g.PDFKey = key
	return nil
}

func (m *memRepo) IncrementDownloads(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guides[id].Downloads++
	return nil
}

func (m *memRepo) SlugExists(_ context.Context, sl, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, g := range m.guides {
		if g.Slug == sl && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

type fakeRenderer struct {
	calls int
	last  string
	err   error
}

func (r *fakeRenderer) Render(_ context.Context, html string) ([]byte, error) {
	r.calls++
	r.last = html
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-" + html[:10]), nil
}

func newTestService(t *testing.T) (*Service, *memRepo, *fakeRenderer, *pdf.LocalStore) {
	t.Helper()
	store, err := pdf.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	repo := newMemRepo()
	r := &fakeRenderer{}
	svc := NewService(repo, r, store, time.Hour)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return svc, repo, r, store
}

func TestCreate_SlugAndValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, CreateInput{Title: "Vendre après une succession", Persona: domain.PersonaSuccession})
	require.NoError(t, err)
	assert.Equal(t, "vendre-apres-une-succession", g.Slug)

	g2, err := svc.Create(ctx, CreateInput{Title: "Vendre après une succession", Persona: domain.PersonaSuccession})
	require.NoError(t, err)
	assert.Equal(t, "vendre-apres-une-succession-2", g2.Slug)

	_, err = svc.Create(ctx, CreateInput{Title: " ", Persona: domain.PersonaSuccession})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, CreateInput{Title: "x", Persona: "astronaute"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRenderPDF_StoresAndReplaces(t *testing.T) {
	svc, repo, r, store := newTestService(t)
	ctx := context.Background()
	g, err := svc.Create(ctx, CreateInput{Title: "Guide retraite", Subtitle: "Préparer la vente", Persona: domain.PersonaRetraite, HTMLContent: "<h2>Étapes</h2>"})
	require.NoError(t, err)

	out, err := svc.RenderPDF(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "retraite/guide-retraite-1772442000.pdf", out.PDFKey)
	assert.Contains(t, r.last, "<h1>Guide retraite</h1>")
	assert.Contains(t, r.last, "<h2>Étapes</h2>")

	rc, err := store.Open(ctx, out.PDFKey)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))

	svc.now = func() time.Time { return time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC) }
	out2, err := svc.RenderPDF(ctx, g.ID)
	require.NoError(t, err)
	assert.NotEqual(t, out.PDFKey, out2.PDFKey)
	_, err = store.Open(ctx, out.PDFKey)
	assert.ErrorIs(t, err, pdf.ErrNotFound, "previous file is removed")

	stored, _ := repo.Get(ctx, g.ID)
	assert.Equal(t, out2.PDFKey, stored.PDFKey)
}

func TestRenderPDF_Errors(t *testing.T) {
	svc, _, r, _ := newTestService(t)
	ctx := context.Background()
	empty, err := svc.Create(ctx, CreateInput{Title: "Vide", Persona: domain.PersonaFamille})
	require.NoError(t, err)
	_, err = svc.RenderPDF(ctx, empty.ID)
	assert.ErrorIs(t, err, ErrNoContent)

	g, err := svc.Create(ctx, CreateInput{Title: "Plein", Persona: domain.PersonaFamille, HTMLContent: "<p>contenu</p>"})
	require.NoError(t, err)
	r.err = errors.New("chrome crashed")
	_, err = svc.RenderPDF(ctx, g.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome crashed")

	disabled := NewService(newMemRepo(), nil, nil, 0)
	_, err = disabled.RenderPDF(ctx, g.ID)
	assert.ErrorIs(t, err, ErrPDFUnavailable)
}

func TestOpen_RendersOnDemandAndCounts(t *testing.T) {
	svc, repo, r, _ := newTestService(t)
	ctx := context.Background()
	g, err := svc.Create(ctx, CreateInput{Title: "Investir", Persona: domain.PersonaInvestisseur, HTMLContent: "<p>rendement</p>", Published: true})
	require.NoError(t, err)

	d, err := svc.Open(ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, d.Body)
	d.Body.Close()
	assert.Empty(t, d.URL)
	assert.Equal(t, "investir.pdf", d.Filename)
	assert.Equal(t, 1, r.calls)

	d, err = svc.Open(ctx, g.ID)
	require.NoError(t, err)
	d.Body.Close()
	assert.Equal(t, 1, r.calls, "stored pdf is reused")

	stored, _ := repo.Get(ctx, g.ID)
	assert.Equal(t, 2, stored.Downloads)
}

func TestOpen_Unpublished(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	g, err := svc.Create(ctx, CreateInput{Title: "Brouillon", Persona: domain.PersonaMutation, HTMLContent: "<p>x</p>"})
	require.NoError(t, err)
	_, err = svc.Open(ctx, g.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetPublished(ctx, g.Slug)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_ContentInvalidatesPDF(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()
	g, err := svc.Create(ctx, CreateInput{Title: "Séparation", Persona: domain.PersonaSeparation, HTMLContent: "<p>v1</p>"})
	require.NoError(t, err)
	_, err = svc.RenderPDF(ctx, g.ID)
	require.NoError(t, err)

	html := "<p>v2</p>"
	require.NoError(t, svc.Update(ctx, g.ID, UpdateFields{HTMLContent: &html}))
	stored, _ := repo.Get(ctx, g.ID)
	assert.False(t, stored.HasPDF())
}

func TestListPublished_HidesContent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateInput{Title: "A", Persona: domain.PersonaFamille, HTMLContent: "<p>a</p>", Published: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Title: "B", Persona: domain.PersonaFamille, HTMLContent: "<p>b</p>"})
	require.NoError(t, err)

	gs, err := svc.ListPublished(ctx, "")
	require.NoError(t, err)
	require.Len(t, gs, 1)
	assert.Equal(t, "A", gs[0].Title)
	assert.Empty(t, gs[0].HTMLContent)
}
