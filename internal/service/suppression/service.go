package suppression

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/service/verification"
)

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Normalize lowercases emails and converts phone numbers to E.164 so every
// caller checks the same key.
func Normalize(channel domain.CampaignChannel, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch channel {
	case domain.ChannelEmail:
		value = strings.ToLower(value)
		if !strings.Contains(value, "@") {
			return "", ErrInvalidValue
		}
		return value, nil
	case domain.ChannelSMS:
		phone, err := verification.NormalizePhone(value)
		if err != nil {
			return "", ErrInvalidValue
		}
		return phone, nil
	}
	return "", fmt.Errorf("unknown channel %q", channel)
}

// IsSuppressed checks whether a value must not be contacted on channel.
// Values that cannot be normalized are reported as not suppressed.
func (s *Service) IsSuppressed(ctx context.Context, channel domain.CampaignChannel, value string) (bool, error) {
	v, err := Normalize(channel, value)
	if err != nil {
		return false, nil
	}
	return s.repo.IsSuppressed(ctx, channel, v)
}

// IsEmailSuppressed is IsSuppressed for the email channel.
func (s *Service) IsEmailSuppressed(ctx context.Context, email string) (bool, error) {
	return s.IsSuppressed(ctx, domain.ChannelEmail, email)
}

// Suppress adds a value to the opt-out list. Idempotent: if the value is
// already suppressed, the existing record is preserved.
func (s *Service) Suppress(ctx context.Context, channel domain.CampaignChannel, value string, reason domain.SuppressionReason, source domain.SuppressionSource) error {
	v, err := Normalize(channel, value)
	if err != nil {
		return err
	}
	entry := &domain.Suppression{
		ID:      uuid.New().String(),
		Channel: channel,
		Value:   v,
		Reason:  reason,
		Source:  source,
	}
	if err := s.repo.Suppress(ctx, entry); err != nil {
		return err
	}
	logger.Info("suppression: added", "channel", string(channel), "value", v, "reason", string(reason), "source", string(source))
	return nil
}

// Remove deletes a suppression entry. Returns ErrNotFound if the value is
// not suppressed.
func (s *Service) Remove(ctx context.Context, channel domain.CampaignChannel, value string) error {
	v, err := Normalize(channel, value)
	if err != nil {
		return err
	}
	return s.repo.Remove(ctx, channel, v)
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error) {
	return s.repo.List(ctx, filter)
}

// Stats returns aggregate counts grouped by channel and reason.
type Stats struct {
	Total     int            `json:"total"`
	ByChannel map[string]int `json:"by_channel"`
	ByReason  map[string]int `json:"by_reason"`
}

// GetStats computes suppression statistics for the dashboard.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, ListFilter{Limit: 0})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:     total,
		ByChannel: make(map[string]int),
		ByReason:  make(map[string]int),
	}
	for _, e := range entries {
		stats.ByChannel[string(e.Channel)]++
		stats.ByReason[string(e.Reason)]++
	}
	return stats, nil
}

// IsStopKeyword reports whether an inbound SMS body is an opt-out request.
func IsStopKeyword(body string) bool {
	switch strings.ToUpper(strings.TrimSpace(body)) {
	case "STOP", "STOPALL", "ARRET", "ARRÊT", "UNSUBSCRIBE", "DESINSCRIPTION", "END", "QUIT", "CANCEL":
		return true
	}
	return false
}
