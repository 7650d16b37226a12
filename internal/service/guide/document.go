package guide

import (
	"html"
	"strings"

	"github.com/ignite/immo-leads/internal/domain"
)

const printCSS = `@page { size: A4; margin: 18mm 16mm; }
body { font-family: "Helvetica Neue", Arial, sans-serif; color: #1f2933; font-size: 11.5pt; line-height: 1.55; }
header.cover { border-bottom: 3px solid #0b6e4f; margin-bottom: 24px; padding-bottom: 12px; }
header.cover h1 { color: #0b6e4f; font-size: 26pt; margin: 0 0 6px; }
header.cover p { color: #52606d; font-size: 13pt; margin: 0; }
h2 { color: #0b6e4f; page-break-after: avoid; }
h3 { page-break-after: avoid; }
table { border-collapse: collapse; width: 100%; }
td, th { border: 1px solid #cbd2d9; padding: 6px; }
footer { margin-top: 32px; font-size: 9pt; color: #7b8794; }`

// document wraps guide HTML in a printable page. A guide whose content is
// already a full document is used as is.
func document(g *domain.Guide) string {
	if strings.Contains(strings.ToLower(g.HTMLContent), "<html") {
		return g.HTMLContent
	}
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html lang="fr"><head><meta charset="utf-8"><title>`)
	b.WriteString(html.EscapeString(g.Title))
	b.WriteString(`</title><style>`)
	b.WriteString(printCSS)
	b.WriteString(`</style></head><body><header class="cover"><h1>`)
	b.WriteString(html.EscapeString(g.Title))
	b.WriteString(`</h1>`)
	if g.Subtitle != "" {
		b.WriteString(`<p>`)
		b.WriteString(html.EscapeString(g.Subtitle))
		b.WriteString(`</p>`)
	}
	b.WriteString(`</header>`)
	b.WriteString(g.HTMLContent)
	b.WriteString(`<footer>Guide offert à titre informatif. Pour toute décision, rapprochez-vous d'un notaire ou d'un conseiller.</footer></body></html>`)
	return b.String()
}
