package mailing

import (
	"testing"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Filters(t *testing.T) {
	ts := NewTemplateService()

	tests := []struct {
		name string
		tpl  string
		vars map[string]interface{}
		want string
	}{
		{"default", `{{ first_name | default: "Bonjour" }}`, map[string]interface{}{"first_name": ""}, "Bonjour"},
		{"capitalize accents", `{{ n | capitalize }}`, map[string]interface{}{"n": "éLODIE"}, "Élodie"},
		{"euros", `{{ v | euros }}`, map[string]interface{}{"v": 352400.4}, "352\u00a0400\u00a0€"},
		{"euros small", `{{ v | euros }}`, map[string]interface{}{"v": 950}, "950\u00a0€"},
		{"date_fr", `{{ d | date_fr }}`, map[string]interface{}{"d": time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)}, "3 mars 2026"},
		{"date_fr string", `{{ d | date_fr }}`, map[string]interface{}{"d": "2026-08-15"}, "15 août 2026"},
		{"truncate", `{{ s | truncate: 5 }}`, map[string]interface{}{"s": "succession"}, "succ…"},
		{"urlencode", `{{ e | urlencode }}`, map[string]interface{}{"e": "a+b@example.com"}, "a%2Bb%40example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ts.Render(tt.tpl, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_ParseError(t *testing.T) {
	ts := NewTemplateService()
	_, err := ts.Render(`{% if %}`, nil)
	assert.Error(t, err)
	assert.Error(t, ts.Parse(`{{ unclosed`))
}

func TestRender_CacheFollowsContent(t *testing.T) {
	ts := NewTemplateService()
	a, err := ts.Render(`A {{ x }}`, map[string]interface{}{"x": 1})
	require.NoError(t, err)
	b, err := ts.Render(`B {{ x }}`, map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "A 1", a)
	assert.Equal(t, "B 1", b)
	ts.ClearCache()
}

func TestRenderWithMode_StrictReportsMissingVars(t *testing.T) {
	ts := NewTemplateService()
	res, err := ts.RenderWithMode(`Bonjour {{ first_name }} {{ coupon_code }}`, map[string]interface{}{"first_name": "Léa"}, RenderModeStrict)
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "coupon_code", res.Warnings[0].Variable)
	assert.Equal(t, "Bonjour Léa ", res.Output)

	res, err = ts.RenderWithMode(`{% if %}`, nil, RenderModeLax)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestDefaultDripTemplates_RenderForEveryPersona(t *testing.T) {
	ts := NewTemplateService()
	for _, p := range append(domain.Personas(), "") {
		for step := 1; step <= 4; step++ {
			tpl, ok := DefaultDripTemplate(p, step)
			require.True(t, ok)
			vars := DripVars{
				FirstName:      "camille",
				Persona:        p,
				Step:           step,
				GuideTitle:     "Vendre sereinement",
				GuideURL:       "https://example.fr/g",
				UnsubscribeURL: "https://example.fr/u",
				SiteURL:        "https://example.fr",
			}.Map()

			subject, err := ts.Render(tpl.Subject, vars)
			require.NoError(t, err)
			assert.NotEmpty(t, subject)
			assert.NotContains(t, subject, "{{")

			body, err := ts.Render(tpl.HTML, vars)
			require.NoError(t, err)
			assert.Contains(t, body, "Camille")
			assert.Contains(t, body, "https://example.fr/u")

			assert.Empty(t, ts.ValidateVariables(tpl.HTML, vars), "persona %q step %d", p, step)
		}
	}
	_, ok := DefaultDripTemplate(domain.PersonaFamille, 5)
	assert.False(t, ok)
}

func TestCopyFor(t *testing.T) {
	assert.Contains(t, CopyFor(domain.PersonaSuccession).Situation, "succession")
	assert.Equal(t, genericCopy, CopyFor("inconnu"))
}
