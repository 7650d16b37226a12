package lead

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/estimation"
	"github.com/ignite/immo-leads/internal/metrics"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/verification"
)

// DuplicateWindow is how far back a lead with the same phone and source is
// returned instead of creating a new one.
const DuplicateWindow = 24 * time.Hour

// SessionConsumer is the part of the auth session service lead capture needs.
type SessionConsumer interface {
	ConsumeWith(ctx context.Context, id string, purpose domain.SessionPurpose, fn func(*domain.AuthSession) error) (*domain.AuthSession, error)
}

// Sequencer schedules the drip emails of a guide lead.
type Sequencer interface {
	ScheduleLead(ctx context.Context, l *domain.Lead) error
}

// Estimator prices a property.
type Estimator interface {
	Estimate(in estimation.Input) (*estimation.Result, error)
}

// Service implements lead business logic.
type Service struct {
	repo      Repository
	sessions  SessionConsumer
	estimator Estimator
	sequencer Sequencer
	now       func() time.Time
}

// NewService creates a lead service. sessions, estimator and sequencer may be
// nil when the caller only needs the admin operations.
func NewService(repo Repository, sessions SessionConsumer, estimator Estimator, sequencer Sequencer) *Service {
	return &Service{
		repo:      repo,
		sessions:  sessions,
		estimator: estimator,
		sequencer: sequencer,
		now:       time.Now,
	}
}

// LeadInput is the payload of the public lead forms.
type LeadInput struct {
	Source       domain.LeadSource `json:"source"`
	Persona      domain.Persona    `json:"persona"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Email        string            `json:"email"`
	Phone        string            `json:"phone"`
	PostalCode   string            `json:"postal_code"`
	City         string            `json:"city"`
	Message      string            `json:"message"`
	PropertyData json.RawMessage   `json:"property_data"`
	GuideID      string            `json:"guide_id"`
	ConsentEmail bool              `json:"consent_email"`
	ConsentSMS   bool              `json:"consent_sms"`
	UTMSource    string            `json:"utm_source"`
	UTMCampaign  string            `json:"utm_campaign"`
}

func (in *LeadInput) normalize() error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PostalCode = strings.TrimSpace(in.PostalCode)

	if !in.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, in.Source)
	}
	if in.Persona != "" && !in.Persona.Valid() {
		return fmt.Errorf("%w: unknown persona %q", ErrInvalidInput, in.Persona)
	}
	if err := in.checkEmail(); err != nil {
		return err
	}
	if in.Source == domain.SourceGuide && in.GuideID == "" {
		return fmt.Errorf("%w: guide_id is required", ErrInvalidInput)
	}
	if len(in.Message) > 5000 {
		return fmt.Errorf("%w: message too long", ErrInvalidInput)
	}
	return nil
}

func (in *LeadInput) checkEmail() error {
	if in.Email == "" {
		return nil
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return nil
}

// requireGuideEmail runs once every email source is merged: the drip needs
// an address.
func (in *LeadInput) requireGuideEmail() error {
	if in.Source == domain.SourceGuide && in.Email == "" {
		return fmt.Errorf("%w: email is required to receive the guide", ErrInvalidInput)
	}
	return nil
}

// CreateFromSession consumes a verified SMS-gate session and writes the lead
// tied to it. The verified phone of the session is authoritative. A lead
// with the same phone and source in the last DuplicateWindow is returned
// instead of a new row.
func (s *Service) CreateFromSession(ctx context.Context, sessionID string, in LeadInput) (*domain.Lead, error) {
	if s.sessions == nil {
		return nil, errors.New("lead: session service not configured")
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var (
		result    *domain.Lead
		duplicate bool
	)
	_, err := s.sessions.ConsumeWith(ctx, sessionID, domain.PurposeSMSGate, func(sess *domain.AuthSession) error {
		in.Phone = sess.Phone
		if len(in.PropertyData) == 0 {
			in.PropertyData = sess.PropertyData
		}
		if in.Email == "" && sess.Email != "" {
			in.Email = strings.ToLower(strings.TrimSpace(sess.Email))
			if err := in.checkEmail(); err != nil {
				return err
			}
		}
		if err := in.requireGuideEmail(); err != nil {
			return err
		}

		existing, err := s.findDuplicate(ctx, in)
		if err != nil {
			return err
		}
		if existing != nil {
			result, duplicate = existing, true
			sess.LeadID = existing.ID
			return nil
		}

		l, err := s.build(in)
		if err != nil {
			return err
		}
		l.PhoneVerified = true
		l.SessionID = &sess.ID

		id, err := s.repo.Create(ctx, l)
		if err != nil {
			return fmt.Errorf("create lead: %w", err)
		}
		l.ID = id
		sess.LeadID = id
		result = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	if duplicate {
		logger.Info("lead: duplicate submission", "lead_id", result.ID, "source", string(result.Source))
		return result, nil
	}
	s.afterCreate(ctx, result)
	return result, nil
}

// Create writes a lead from a form that is not SMS gated.
func (s *Service) Create(ctx context.Context, in LeadInput) (*domain.Lead, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := in.requireGuideEmail(); err != nil {
		return nil, err
	}
	if in.Email == "" && in.Phone == "" {
		return nil, fmt.Errorf("%w: email or phone is required", ErrInvalidInput)
	}
	if in.Phone != "" {
		phone, err := verification.NormalizePhone(in.Phone)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		in.Phone = phone
	}

	l, err := s.build(in)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	l.ID = id
	s.afterCreate(ctx, l)
	return l, nil
}

func (s *Service) findDuplicate(ctx context.Context, in LeadInput) (*domain.Lead, error) {
	recent, err := s.repo.FindRecentByPhone(ctx, in.Phone, in.Source, s.now().Add(-DuplicateWindow))
	if err != nil {
		// Best effort: a failed lookup must not lose the lead.
		logger.Warn("lead: duplicate check failed", "error", err)
		return nil, nil
	}
	for i := range recent {
		l := &recent[i]
		if in.Source == domain.SourceGuide && (l.GuideID == nil || *l.GuideID != in.GuideID) {
			continue
		}
		return l, nil
	}
	return nil, nil
}

func (s *Service) build(in LeadInput) (*domain.Lead, error) {
	now := s.now()
	l := &domain.Lead{
		ID:           uuid.New().String(),
		Source:       in.Source,
		Status:       domain.LeadNew,
		Persona:      in.Persona,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Phone:        in.Phone,
		PostalCode:   in.PostalCode,
		City:         in.City,
		Message:      in.Message,
		PropertyData: in.PropertyData,
		ConsentEmail: in.ConsentEmail,
		ConsentSMS:   in.ConsentSMS,
		UTMSource:    in.UTMSource,
		UTMCampaign:  in.UTMCampaign,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.GuideID != "" {
		g := in.GuideID
		l.GuideID = &g
	}

	if len(in.PropertyData) > 0 && s.estimator != nil {
		est, err := s.estimate(in)
		if err != nil {
			if in.Source == domain.SourceEstimation {
				return nil, err
			}
			logger.Warn("lead: estimation skipped", "source", string(in.Source), "error", err)
		} else {
			l.Estimation = est
			if l.PostalCode == "" {
				var p estimation.Input
				_ = json.Unmarshal(in.PropertyData, &p)
				l.PostalCode, l.City = p.PostalCode, p.City
			}
		}
	} else if in.Source == domain.SourceEstimation {
		return nil, fmt.Errorf("%w: property data is required", ErrInvalidInput)
	}
	return l, nil
}

func (s *Service) estimate(in LeadInput) (json.RawMessage, error) {
	var p estimation.Input
	if err := json.Unmarshal(in.PropertyData, &p); err != nil {
		return nil, fmt.Errorf("%w: property data: %v", ErrInvalidInput, err)
	}
	res, err := s.estimator.Estimate(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return json.Marshal(res)
}

func (s *Service) afterCreate(ctx context.Context, l *domain.Lead) {
	metrics.LeadsCreated.WithLabelValues(string(l.Source)).Inc()
	logger.Info("lead: created", "lead_id", l.ID, "source", string(l.Source), "persona", string(l.Persona), "email", l.Email)

	if l.Source != domain.SourceGuide || s.sequencer == nil {
		return
	}
	if err := s.sequencer.ScheduleLead(ctx, l); err != nil {
		// The lead is saved; a failed schedule is visible in the admin and
		// can be retried from there.
		logger.Error("lead: schedule sequence failed", "lead_id", l.ID, "error", err)
	}
}

// Get returns a single lead.
func (s *Service) Get(ctx context.Context, id string) (*domain.Lead, error) {
	return s.repo.Get(ctx, id)
}

// List returns leads matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Lead, int, error) {
	return s.repo.List(ctx, f)
}

// Update applies admin edits.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *u.Status)
	}
	if u.Persona != nil && *u.Persona != "" && !u.Persona.Valid() {
		return fmt.Errorf("%w: unknown persona %q", ErrInvalidInput, *u.Persona)
	}
	if u.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*u.Email))
		if _, err := mail.ParseAddress(e); err != nil {
			return fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
		u.Email = &e
	}
	return s.repo.Update(ctx, id, u)
}

// UpdateStatus moves a lead through the sales pipeline.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.LeadStatus) error {
	return s.Update(ctx, id, UpdateFields{Status: &status})
}

// UpdateNotes replaces the admin notes of a lead.
func (s *Service) UpdateNotes(ctx context.Context, id, notes string) error {
	return s.Update(ctx, id, UpdateFields{Notes: &notes})
}

// Delete removes a lead.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Stats returns dashboard counters, with Recent counting the last 7 days.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx, s.now().AddDate(0, 0, -7))
}

// ForSegment resolves a campaign audience.
func (s *Service) ForSegment(ctx context.Context, seg domain.Segment, channel domain.CampaignChannel) ([]domain.Lead, error) {
	return s.repo.ListForSegment(ctx, seg, channel)
}
