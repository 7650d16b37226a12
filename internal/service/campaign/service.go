package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/mailing"
	"github.com/ignite/immo-leads/internal/metrics"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/sms"
)

// smsStopMention is appended to SMS bodies that carry no opt-out wording.
const smsStopMention = "\nSTOP : répondez STOP"

// recordBatch is how many recipient rows are buffered before they are written.
const recordBatch = 200

// Audience resolves the leads of a segment.
type Audience interface {
	ForSegment(ctx context.Context, seg domain.Segment, channel domain.CampaignChannel) ([]domain.Lead, error)
}

// Suppressor reports opted-out addresses.
type Suppressor interface {
	IsSuppressed(ctx context.Context, channel domain.CampaignChannel, value string) (bool, error)
}

// SMSSender is the part of the Twilio client used for SMS campaigns.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (*sms.Message, error)
}

// UnsubscribeLinker builds the one-click unsubscribe URL of an address.
type UnsubscribeLinker interface {
	UnsubscribeURL(email string) (string, error)
}

// Deps are the collaborators of the service. Mailer or SMS may be nil when
// the channel is not configured; sending on it then fails with
// ErrNoTransport.
type Deps struct {
	Audience     Audience
	Suppressions Suppressor
	Mailer       mailing.Sender
	SMS          SMSSender
	Renderer     *mailing.TemplateService
	Links        UnsubscribeLinker
	SiteURL      string
}

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
	deps Deps
	now  func() time.Time
	log  *logger.Logger
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository, deps Deps) *Service {
	if deps.Renderer == nil {
		deps.Renderer = mailing.NewTemplateService()
	}
	return &Service{repo: repo, deps: deps, now: time.Now, log: logger.Named("campaign")}
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name        string                 `json:"name"`
	Channel     domain.CampaignChannel `json:"channel"`
	Subject     string                 `json:"subject"`
	HTMLContent string                 `json:"html_content"`
	SMSBody     string                 `json:"sms_body"`
	Segment     domain.Segment         `json:"segment"`
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// Recipients returns the delivery log of a campaign.
func (s *Service) Recipients(ctx context.Context, id string, limit, offset int) ([]domain.CampaignRecipient, int, error) {
	return s.repo.ListRecipients(ctx, id, limit, offset)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Campaign, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := validateSegment(in.Segment); err != nil {
		return nil, err
	}

	now := s.now()
	c := &domain.Campaign{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Channel:     in.Channel,
		Subject:     in.Subject,
		HTMLContent: in.HTMLContent,
		SMSBody:     in.SMSBody,
		Segment:     in.Segment,
		Status:      domain.CampaignDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.validateContent(c); err != nil {
		return nil, err
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

// Update modifies a draft campaign.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !c.IsEditable() {
		return ErrNotEditable
	}

	// Validate the campaign as it will look after the update.
	if u.Name != nil {
		c.Name = strings.TrimSpace(*u.Name)
		if c.Name == "" {
			return fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
	}
	if u.Subject != nil {
		c.Subject = *u.Subject
	}
	if u.HTMLContent != nil {
		c.HTMLContent = *u.HTMLContent
	}
	if u.SMSBody != nil {
		c.SMSBody = *u.SMSBody
	}
	if u.Segment != nil {
		if err := validateSegment(*u.Segment); err != nil {
			return err
		}
	}
	if err := s.validateContent(c); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, u)
}

// Delete removes a campaign that is not currently sending.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == domain.CampaignSending {
		return ErrAlreadySending
	}
	return s.repo.Delete(ctx, id)
}

func validateSegment(seg domain.Segment) error {
	if seg.Persona != "" && !seg.Persona.Valid() {
		return fmt.Errorf("%w: unknown persona %q", ErrInvalidInput, seg.Persona)
	}
	if seg.Status != "" && !seg.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, seg.Status)
	}
	if seg.Source != "" && !seg.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, seg.Source)
	}
	return nil
}

func (s *Service) validateContent(c *domain.Campaign) error {
	var parts []string
	switch c.Channel {
	case domain.ChannelEmail:
		if c.Subject == "" || c.HTMLContent == "" {
			return fmt.Errorf("%w: email campaigns need a subject and html content", ErrInvalidInput)
		}
		parts = []string{c.Subject, c.HTMLContent}
	case domain.ChannelSMS:
		if strings.TrimSpace(c.SMSBody) == "" {
			return fmt.Errorf("%w: sms campaigns need a body", ErrInvalidInput)
		}
		parts = []string{c.SMSBody}
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, c.Channel)
	}
	for _, p := range parts {
		if err := s.deps.Renderer.Parse(p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

// Send delivers a draft campaign to its segment and returns the final
// counters. Suppressed addresses and leads without an address on the
// channel are recorded as skipped. The campaign ends sent, or failed when
// the audience could not be resolved or no message could be delivered.
func (s *Service) Send(ctx context.Context, id string) (*Counts, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft {
		return nil, ErrAlreadySending
	}
	if err := s.validateContent(c); err != nil {
		return nil, err
	}
	if (c.Channel == domain.ChannelEmail && s.deps.Mailer == nil) || (c.Channel == domain.ChannelSMS && s.deps.SMS == nil) {
		return nil, fmt.Errorf("%w: %s", ErrNoTransport, c.Channel)
	}

	if err := s.repo.MarkSending(ctx, id, s.now()); err != nil {
		return nil, err
	}

	counts := &Counts{}
	leads, err := s.deps.Audience.ForSegment(ctx, c.Segment, c.Channel)
	if err != nil {
		s.finish(ctx, c, domain.CampaignFailed, counts)
		return nil, fmt.Errorf("resolve audience: %w", err)
	}
	counts.Recipients = len(leads)
	s.log.Info("sending", "campaign_id", id, "channel", string(c.Channel), "recipients", len(leads))

	batch := make([]domain.CampaignRecipient, 0, recordBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.repo.RecordRecipients(ctx, batch); err != nil {
			s.log.Error("record recipients failed", "campaign_id", id, "error", err)
		}
		batch = batch[:0]
	}

	for i := range leads {
		if ctx.Err() != nil {
			break
		}
		r := s.deliver(ctx, c, &leads[i])
		switch r.Status {
		case domain.RecipientSent:
			counts.Sent++
		case domain.RecipientFailed:
			counts.Failed++
		default:
			counts.Skipped++
		}
		metrics.CampaignMessages.WithLabelValues(string(c.Channel), string(r.Status)).Inc()
		batch = append(batch, r)
		if len(batch) == recordBatch {
			flush()
		}
	}
	flush()

	status := domain.CampaignSent
	if counts.Sent == 0 && counts.Failed > 0 {
		status = domain.CampaignFailed
	}
	s.finish(ctx, c, status, counts)
	if err := ctx.Err(); err != nil {
		return counts, err
	}
	return counts, nil
}

func (s *Service) finish(ctx context.Context, c *domain.Campaign, status domain.CampaignStatus, counts *Counts) {
	// The final status must be written even when the send was cancelled.
	if err := s.repo.Complete(context.WithoutCancel(ctx), c.ID, status, *counts, s.now()); err != nil {
		s.log.Error("complete failed", "campaign_id", c.ID, "error", err)
	}
	s.log.Info("finished", "campaign_id", c.ID, "status", string(status),
		"sent", counts.Sent, "failed", counts.Failed, "skipped", counts.Skipped)
}

func (s *Service) deliver(ctx context.Context, c *domain.Campaign, l *domain.Lead) domain.CampaignRecipient {
	r := domain.CampaignRecipient{CampaignID: c.ID, LeadID: l.ID, SentAt: s.now()}
	if c.Channel == domain.ChannelEmail {
		r.Address = strings.ToLower(strings.TrimSpace(l.Email))
	} else {
		r.Address = l.Phone
	}
	if r.Address == "" {
		r.Status, r.Error = domain.RecipientSkipped, "no address"
		return r
	}

	if s.deps.Suppressions != nil {
		suppressed, err := s.deps.Suppressions.IsSuppressed(ctx, c.Channel, r.Address)
		if err != nil {
			// An unknown opt-out state counts as suppressed.
			r.Status, r.Error = domain.RecipientSkipped, "suppression check failed"
			s.log.Warn("suppression check failed", "campaign_id", c.ID, "error", err)
			return r
		}
		if suppressed {
			r.Status, r.Error = domain.RecipientSkipped, "suppressed"
			return r
		}
	}

	var err error
	if c.Channel == domain.ChannelEmail {
		err = s.sendEmail(ctx, c, l, r.Address)
	} else {
		err = s.sendSMS(ctx, c, l, r.Address)
	}
	if err != nil {
		r.Status, r.Error = domain.RecipientFailed, truncate(err.Error(), 500)
		s.log.Warn("delivery failed", "campaign_id", c.ID, "lead_id", l.ID, "to", r.Address, "error", err)
		return r
	}
	r.Status = domain.RecipientSent
	return r
}

func (s *Service) vars(l *domain.Lead, unsubscribeURL string) map[string]interface{} {
	return map[string]interface{}{
		"first_name":      l.FirstName,
		"last_name":       l.LastName,
		"email":           l.Email,
		"persona":         string(l.Persona),
		"persona_label":   l.Persona.Label(),
		"city":            l.City,
		"site_url":        s.deps.SiteURL,
		"unsubscribe_url": unsubscribeURL,
	}
}

func (s *Service) sendEmail(ctx context.Context, c *domain.Campaign, l *domain.Lead, to string) error {
	var unsub string
	if s.deps.Links != nil {
		u, err := s.deps.Links.UnsubscribeURL(to)
		if err != nil {
			return fmt.Errorf("unsubscribe link: %w", err)
		}
		unsub = u
	}
	vars := s.vars(l, unsub)

	subject, err := s.deps.Renderer.Render(c.Subject, vars)
	if err != nil {
		return err
	}
	html, err := s.deps.Renderer.Render(c.HTMLContent, vars)
	if err != nil {
		return err
	}

	msg := &mailing.Message{
		To:      to,
		ToName:  l.FullName(),
		Subject: strings.TrimSpace(subject),
		HTML:    html,
		Tags:    map[string]string{"campaign_id": c.ID},
	}
	if unsub != "" {
		msg.Headers = map[string]string{
			"List-Unsubscribe":      "<" + unsub + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		}
	}
	return s.deps.Mailer.Send(ctx, msg)
}

func (s *Service) sendSMS(ctx context.Context, c *domain.Campaign, l *domain.Lead, to string) error {
	body, err := s.deps.Renderer.Render(c.SMSBody, s.vars(l, ""))
	if err != nil {
		return err
	}
	body = WithStopMention(strings.TrimSpace(body))
	_, err = s.deps.SMS.SendSMS(ctx, to, body)
	return err
}

// WithStopMention appends the opt-out instruction unless the body already
// mentions STOP.
func WithStopMention(body string) string {
	if strings.Contains(strings.ToUpper(body), "STOP") {
		return body
	}
	return body + smsStopMention
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
