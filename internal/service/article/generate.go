package article

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/immo-leads/internal/ai"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/logger"
)

// GenerateInput describes the article to draft.
type GenerateInput struct {
	Topic    string         `json:"topic"`
	Persona  domain.Persona `json:"persona"`
	Keywords []string       `json:"keywords"`
	// SourceURL is an optional news item the article should build on.
	SourceURL string `json:"source_url"`
}

type draft struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	HTML            string   `json:"html"`
	Keywords        []string `json:"keywords"`
}

const writerSystemPrompt = `Tu es rédacteur web pour une agence immobilière française.
Tu écris des articles de blog clairs, exacts et utiles pour des particuliers qui envisagent de vendre leur bien.
Règles :
- Français, vouvoiement, ton rassurant et concret.
- Pas de promesse chiffrée non sourcée, pas de conseil juridique définitif : renvoie vers le notaire quand c'est nécessaire.
- HTML simple uniquement : <h2>, <h3>, <p>, <ul>, <li>, <strong>. Pas de <h1>, pas de style, pas de script.
- 800 à 1200 mots.
Réponds uniquement avec un objet JSON : {"title": "...", "meta_description": "... (155 caractères max)", "html": "...", "keywords": ["..."]}`

// Generate researches a topic with the researcher model (when configured),
// writes the article with the writer model and stores it as a draft.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*domain.Article, error) {
	in.Topic = strings.TrimSpace(in.Topic)
	if in.Topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if err := validPersona(in.Persona); err != nil {
		return nil, err
	}
	if s.deps.Writer == nil || !s.deps.Writer.Configured() {
		return nil, ErrGenerationUnavailable
	}

	var (
		notes    string
		sources  []string
		research *ai.ChatResponse
	)
	if s.deps.Researcher != nil && s.deps.Researcher.Configured() {
		r, err := s.deps.Researcher.Complete(ctx, ai.ChatRequest{
			Messages: []ai.Message{
				{Role: ai.RoleSystem, Content: "Tu es documentaliste spécialisé dans l'immobilier résidentiel en France. Réponds en français avec des faits vérifiables et récents."},
				{Role: ai.RoleUser, Content: researchPrompt(in)},
			},
			Temperature: 0.2,
			MaxTokens:   1200,
		})
		if err != nil {
			// Continue without notes.
			logger.Warn("article: research failed", "topic", in.Topic, "error", err)
		} else {
			research, notes, sources = r, r.Content, r.Citations
		}
	}

	written, err := s.deps.Writer.Complete(ctx, ai.ChatRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: writerSystemPrompt},
			{Role: ai.RoleUser, Content: writerPrompt(in, notes)},
		},
		Temperature: 0.7,
		MaxTokens:   3500,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	var d draft
	if err := json.Unmarshal([]byte(ai.StripCodeFence(written.Content)), &d); err != nil {
		return nil, fmt.Errorf("%w: invalid model output: %v", ErrGenerationFailed, err)
	}
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" || strings.TrimSpace(d.HTML) == "" {
		return nil, fmt.Errorf("%w: model returned an empty article", ErrGenerationFailed)
	}
	if in.SourceURL != "" {
		sources = append([]string{in.SourceURL}, sources...)
	}

	a, err := s.create(ctx, &domain.Article{
		Title:           d.Title,
		MetaDescription: d.MetaDescription,
		Content:         sanitizeHTML(d.HTML),
		Persona:         in.Persona,
		Keywords:        cleanKeywords(append(in.Keywords, d.Keywords...)),
		Generated:       true,
		Sources:         sources,
	})
	if err != nil {
		return nil, err
	}
	logGeneration(a, research, written)
	return a, nil
}

func researchPrompt(in GenerateInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prépare des notes de recherche pour un article de blog sur : %s.\n", in.Topic)
	if in.Persona.Valid() {
		fmt.Fprintf(&b, "Lecteur cible : %s.\n", in.Persona.Label())
	}
	if in.SourceURL != "" {
		fmt.Fprintf(&b, "Point de départ : %s\n", in.SourceURL)
	}
	b.WriteString("Donne les règles applicables, les chiffres récents avec leur date, les démarches et les erreurs fréquentes. Format : liste à puces.")
	return b.String()
}

func writerPrompt(in GenerateInput, notes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sujet : %s\n", in.Topic)
	if in.Persona.Valid() {
		fmt.Fprintf(&b, "Lecteur cible : %s (%s)\n", in.Persona.Label(), in.Persona)
	}
	if len(in.Keywords) > 0 {
		fmt.Fprintf(&b, "Mots-clés à intégrer naturellement : %s\n", strings.Join(in.Keywords, ", "))
	}
	if notes != "" {
		fmt.Fprintf(&b, "\nNotes de recherche (à utiliser, sans citer les URL) :\n%s\n", notes)
	}
	b.WriteString("\nTermine par un paragraphe invitant à demander une estimation gratuite.")
	return b.String()
}

// sanitizeHTML drops script and style blocks a model may still emit.
func sanitizeHTML(s string) string {
	for _, tag := range []string{"script", "style", "iframe"} {
		for {
			lower := strings.ToLower(s)
			start := strings.Index(lower, "<"+tag)
			if start < 0 {
				break
			}
			end := strings.Index(lower[start:], "</"+tag+">")
			if end < 0 {
				s = s[:start]
				break
			}
			s = s[:start] + s[start+end+len(tag)+3:]
		}
	}
	return strings.TrimSpace(s)
}

// TopicIdea is a news item proposed as an article subject.
type TopicIdea struct {
	ai.FeedItem
	Persona domain.Persona `json:"persona,omitempty"`
}

var personaHints = []struct {
	persona domain.Persona
	words   []string
}{
	{domain.PersonaSuccession, []string{"succession", "héritage", "héritier", "donation", "décès", "indivision"}},
	{domain.PersonaSeparation, []string{"divorce", "séparation", "soulte", "pacs"}},
	{domain.PersonaRetraite, []string{"retraite", "senior", "viager", "dépendance"}},
	{domain.PersonaInvestisseur, []string{"investis", "locatif", "loyer", "rendement", "lmnp", "pinel", "bailleur"}},
	{domain.PersonaMutation, []string{"mutation", "déménag", "mobilité", "télétravail"}},
	{domain.PersonaFamille, []string{"famille", "enfant", "agrandir", "primo", "prêt relais", "ptz"}},
}

// GuessPersona maps a headline to the persona it most likely concerns.
func GuessPersona(text string) domain.Persona {
	t := strings.ToLower(text)
	for _, h := range personaHints {
		for _, w := range h.words {
			if strings.Contains(t, w) {
				return h.persona
			}
		}
	}
	return ""
}

// SuggestTopics returns recent news from the configured feeds as article
// ideas, tagged with a guessed persona. persona, when set, keeps only
// matching ideas.
func (s *Service) SuggestTopics(ctx context.Context, persona domain.Persona, limit int) ([]TopicIdea, error) {
	if s.deps.Feeds == nil {
		return []TopicIdea{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	items, err := s.deps.Feeds.Latest(ctx, limit*3)
	if err != nil {
		return nil, fmt.Errorf("read feeds: %w", err)
	}
	out := make([]TopicIdea, 0, limit)
	for _, it := range items {
		p := GuessPersona(it.Title + " " + it.Summary)
		if persona != "" && p != persona {
			continue
		}
		out = append(out, TopicIdea{FeedItem: it, Persona: p})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
