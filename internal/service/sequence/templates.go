package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/mailing"
)

// TemplateInput holds the fields for a new drip template.
type TemplateInput struct {
	Persona domain.Persona `json:"persona"`
	Step    int            `json:"step"`
	Subject string         `json:"subject"`
	HTML    string         `json:"html"`
	Text    string         `json:"text"`
}

func (s *Service) checkLiquid(parts ...string) error {
	for _, p := range parts {
		if p == "" {
			continue
		}
		if err := s.deps.Renderer.Parse(p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
		}
	}
	return nil
}

// CreateTemplate validates and stores a template. It becomes active at once
// and overrides the built-in default for its persona and step.
func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (*domain.EmailTemplate, error) {
	if in.Persona != "" && !in.Persona.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPersona, in.Persona)
	}
	if in.Step < 1 || in.Step > s.Steps() {
		return nil, fmt.Errorf("%w: step must be between 1 and %d", ErrInvalidTemplate, s.Steps())
	}
	if in.Subject == "" || in.HTML == "" {
		return nil, fmt.Errorf("%w: subject and html are required", ErrInvalidTemplate)
	}
	if err := s.checkLiquid(in.Subject, in.HTML, in.Text); err != nil {
		return nil, err
	}

	now := s.now()
	t := &domain.EmailTemplate{
		ID:        uuid.New().String(),
		Persona:   in.Persona,
		Step:      in.Step,
		Subject:   in.Subject,
		HTML:      in.HTML,
		Text:      in.Text,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.deps.Templates.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	t.ID = id
	return t, nil
}

// UpdateTemplate edits a stored template.
func (s *Service) UpdateTemplate(ctx context.Context, id string, u TemplateUpdate) error {
	var parts []string
	for _, p := range []*string{u.Subject, u.HTML, u.Text} {
		if p != nil {
			parts = append(parts, *p)
		}
	}
	if err := s.checkLiquid(parts...); err != nil {
		return err
	}
	return s.deps.Templates.Update(ctx, id, u)
}

func (s *Service) GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	return s.deps.Templates.Get(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error) {
	return s.deps.Templates.List(ctx)
}

func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.deps.Templates.Delete(ctx, id)
}

// Preview is a rendered template for the admin editor.
type Preview struct {
	Subject  string                            `json:"subject"`
	HTML     string                            `json:"html"`
	Text     string                            `json:"text,omitempty"`
	Warnings []mailing.TemplateValidationError `json:"warnings,omitempty"`
}

// PreviewTemplate renders a template with sample values. Unknown variables
// are reported as warnings.
func (s *Service) PreviewTemplate(in TemplateInput) (*Preview, error) {
	persona := in.Persona
	if persona == "" {
		persona = domain.PersonaFamille
	}
	vars := mailing.DripVars{
		FirstName:      "Camille",
		Email:          "camille@example.com",
		Persona:        persona,
		Step:           in.Step,
		GuideTitle:     "Guide " + persona.Label(),
		GuideURL:       s.cfg.SiteURL + "/guides/exemple",
		UnsubscribeURL: s.cfg.SiteURL + "/desinscription",
		SiteURL:        s.cfg.SiteURL,
	}.Map()
	vars["scheduled_for"] = s.now().Format(time.RFC3339)

	p := &Preview{}
	subject, err := s.deps.Renderer.RenderWithMode(in.Subject, vars, mailing.RenderModeStrict)
	if err != nil {
		return nil, fmt.Errorf("%w: subject: %v", ErrInvalidTemplate, err)
	}
	html, err := s.deps.Renderer.RenderWithMode(in.HTML, vars, mailing.RenderModeStrict)
	if err != nil {
		return nil, fmt.Errorf("%w: html: %v", ErrInvalidTemplate, err)
	}
	p.Subject, p.HTML = subject.Output, html.Output
	p.Warnings = append(subject.Warnings, html.Warnings...)

	if in.Text != "" {
		text, err := s.deps.Renderer.RenderWithMode(in.Text, vars, mailing.RenderModeStrict)
		if err != nil {
			return nil, fmt.Errorf("%w: text: %v", ErrInvalidTemplate, err)
		}
		p.Text = text.Output
		p.Warnings = append(p.Warnings, text.Warnings...)
	}
	return p, nil
}

// DefaultTemplates lists the built-in templates for a persona, for the
// editor's "reset to default" action.
func (s *Service) DefaultTemplates(persona domain.Persona) []domain.EmailTemplate {
	out := make([]domain.EmailTemplate, 0, s.Steps())
	for step := 1; step <= s.Steps(); step++ {
		if t, ok := mailing.DefaultDripTemplate(persona, step); ok {
			out = append(out, *t)
		}
	}
	return out
}
