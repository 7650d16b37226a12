package authsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/metrics"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/pkg/ratelimit"
	"github.com/ignite/immo-leads/internal/service/verification"
)

// expiredRetention keeps a session readable after ExpiresAt so late calls
// report ErrSessionExpired instead of ErrNotFound.
const expiredRetention = time.Hour

// Config bounds the verification flow.
type Config struct {
	TTL         time.Duration // session lifetime from creation
	MaxAttempts int           // wrong codes allowed per session
	MaxSends    int           // codes sent per session (first send + resends)
}

// RateLimitError is returned when a phone number asked for too many codes.
// It matches ErrRateLimited with errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Service drives auth sessions through the SMS verification flow. All
// methods are safe for concurrent use; the attempt counter and the consume
// step are atomic in the store.
type Service struct {
	store    Store
	provider verification.Provider
	limiter  ratelimit.Limiter
	cfg      Config
	now      func() time.Time
}

// NewService creates a session service. limiter may be nil.
func NewService(store Store, provider verification.Provider, limiter ratelimit.Limiter, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxSends <= 0 {
		cfg.MaxSends = 3
	}
	return &Service{store: store, provider: provider, limiter: limiter, cfg: cfg, now: time.Now}
}

// MaxAttempts returns the configured attempt limit.
func (s *Service) MaxAttempts() int { return s.cfg.MaxAttempts }

// CreateInput holds the fields for a new session.
type CreateInput struct {
	Purpose      domain.SessionPurpose `json:"purpose"`
	Phone        string                `json:"phone"`
	Email        string                `json:"email"`
	AdminID      string                `json:"-"`
	PropertyData json.RawMessage       `json:"property_data"`
	ClientIP     string                `json:"-"`
}

// Create starts a new session in the created state.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.AuthSession, error) {
	if in.Purpose == "" {
		in.Purpose = domain.PurposeSMSGate
	}
	if in.Purpose != domain.PurposeSMSGate && in.Purpose != domain.PurposeAdminLogin {
		return nil, fmt.Errorf("unknown session purpose %q", in.Purpose)
	}

	phone := ""
	if in.Phone != "" {
		p, err := verification.NormalizePhone(in.Phone)
		if err != nil {
			return nil, err
		}
		phone = p
	}

	now := s.now()
	sess := &domain.AuthSession{
		ID:           uuid.New().String(),
		Purpose:      in.Purpose,
		State:        domain.SessionCreated,
		Phone:        phone,
		Email:        in.Email,
		AdminID:      in.AdminID,
		PropertyData: in.PropertyData,
		ClientIP:     in.ClientIP,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.TTL),
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a live session.
func (s *Service) Get(ctx context.Context, id string) (*domain.AuthSession, error) {
	return s.load(ctx, id)
}

// SendCode sends (or re-sends) a verification code. phone may be empty when
// the session was created with one; passing a different number restarts
// verification on that number.
func (s *Service) SendCode(ctx context.Context, id, phone string) (*domain.AuthSession, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == domain.SessionConsumed {
		return nil, ErrAlreadyConsumed
	}
	if sess.PhoneVerified {
		return nil, ErrAlreadyVerified
	}

	if phone != "" {
		normalized, err := verification.NormalizePhone(phone)
		if err != nil {
			return nil, err
		}
		phone = normalized
	} else {
		phone = sess.Phone
	}
	if phone == "" {
		return nil, ErrPhoneRequired
	}

	if sess.SendCount >= s.cfg.MaxSends {
		metrics.Verifications.WithLabelValues("rate_limited").Inc()
		return nil, &RateLimitError{RetryAfter: sess.ExpiresAt.Sub(s.now())}
	}
	if s.limiter != nil {
		res, err := s.limiter.Allow(ctx, "phone:"+phone)
		if err != nil {
			// Fail open: a limiter outage must not block sign-ups.
			logger.Warn("authsession: rate limiter unavailable", "error", err)
		} else if !res.Allowed {
			metrics.Verifications.WithLabelValues("rate_limited").Inc()
			return nil, &RateLimitError{RetryAfter: res.RetryAfter}
		}
	}

	sid, err := s.provider.Start(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("send code: %w", err)
	}

	now := s.now()
	sess.Phone = phone
	sess.VerificationSID = sid
	sess.SendCount++
	sess.State = domain.SessionCodeSent
	sess.CodeSentAt = &now
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	metrics.Verifications.WithLabelValues("sent").Inc()
	logger.Info("authsession: code sent", "session_id", sess.ID, "purpose", string(sess.Purpose), "phone", phone, "send_count", sess.SendCount)
	return sess, nil
}

// VerifyCode checks a code against the session's pending verification.
// Verifying an already verified session is a no-op.
func (s *Service) VerifyCode(ctx context.Context, id, code string) (*domain.AuthSession, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == domain.SessionConsumed {
		return nil, ErrAlreadyConsumed
	}
	if sess.PhoneVerified {
		return sess, nil
	}
	if sess.State != domain.SessionCodeSent || sess.VerificationSID == "" {
		return nil, ErrCodeNotSent
	}
	if !verification.ValidCodeFormat(code) {
		return nil, ErrInvalidCode
	}

	n, err := s.store.IncrAttempts(ctx, sess.ID, s.retention(sess))
	if err != nil {
		return nil, err
	}
	sess.Attempts = n
	if n > s.cfg.MaxAttempts {
		metrics.Verifications.WithLabelValues("locked").Inc()
		return nil, ErrTooManyAttempts
	}

	ok, err := s.provider.Check(ctx, sess.Phone, sess.VerificationSID, code)
	switch {
	case errors.Is(err, verification.ErrTooManyAttempts):
		metrics.Verifications.WithLabelValues("locked").Inc()
		return nil, ErrTooManyAttempts
	case errors.Is(err, verification.ErrUnknownVerification):
		// Code expired on the provider side: the visitor must request a new one.
		sess.State = domain.SessionCreated
		sess.VerificationSID = ""
		if saveErr := s.save(ctx, sess); saveErr != nil {
			return nil, saveErr
		}
		return nil, ErrCodeNotSent
	case err != nil:
		return nil, fmt.Errorf("check code: %w", err)
	}

	if !ok {
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		metrics.Verifications.WithLabelValues("rejected").Inc()
		return sess, ErrInvalidCode
	}

	now := s.now()
	sess.PhoneVerified = true
	sess.State = domain.SessionVerified
	sess.VerifiedAt = &now
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	metrics.Verifications.WithLabelValues("approved").Inc()
	logger.Info("authsession: phone verified", "session_id", sess.ID, "phone", sess.Phone, "attempts", n)
	return sess, nil
}

// MarkEmailVerified records that the session's email was proven, e.g. by a
// correct admin password.
func (s *Service) MarkEmailVerified(ctx context.Context, id string) error {
	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	sess.EmailVerified = true
	return s.save(ctx, sess)
}

// Consume marks a verified session as used and returns it.
func (s *Service) Consume(ctx context.Context, id string, purpose domain.SessionPurpose) (*domain.AuthSession, error) {
	return s.ConsumeWith(ctx, id, purpose, nil)
}

// ConsumeWith claims a verified session, runs fn, and marks the session
// consumed when fn succeeds. If fn fails the claim is released so the
// visitor can retry with the same verified session. fn may set fields on
// the session (e.g. LeadID) before it is saved.
func (s *Service) ConsumeWith(ctx context.Context, id string, purpose domain.SessionPurpose, fn func(*domain.AuthSession) error) (*domain.AuthSession, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if purpose != "" && sess.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	if sess.State == domain.SessionConsumed {
		return nil, ErrAlreadyConsumed
	}
	if !sess.PhoneVerified {
		return nil, ErrNotVerified
	}

	claimed, err := s.store.Claim(ctx, sess.ID, s.retention(sess))
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrAlreadyConsumed
	}

	if fn != nil {
		if err := fn(sess); err != nil {
			if relErr := s.store.Unclaim(ctx, sess.ID); relErr != nil {
				logger.Error("authsession: release claim failed", "session_id", sess.ID, "error", relErr)
			}
			return nil, err
		}
	}

	now := s.now()
	sess.State = domain.SessionConsumed
	sess.ConsumedAt = &now
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.AuthSession, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

func (s *Service) save(ctx context.Context, sess *domain.AuthSession) error {
	return s.store.Save(ctx, sess, s.retention(sess))
}

// retention is how long the store keeps sess: its remaining lifetime plus
// expiredRetention.
func (s *Service) retention(sess *domain.AuthSession) time.Duration {
	return sess.ExpiresAt.Sub(s.now()) + expiredRetention
}
