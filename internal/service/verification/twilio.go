package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/sms"
)

// TwilioVerifier is the part of the Twilio client the provider needs.
type TwilioVerifier interface {
	StartVerification(ctx context.Context, to, channel string) (*sms.Verification, error)
	CheckVerification(ctx context.Context, to, code string) (*sms.Verification, error)
}

// TwilioProvider delegates code generation, delivery, expiry and attempt
// limits to Twilio Verify.
type TwilioProvider struct {
	client TwilioVerifier
}

// NewTwilioProvider creates a provider backed by Twilio Verify.
func NewTwilioProvider(client TwilioVerifier) *TwilioProvider {
	return &TwilioProvider{client: client}
}

func (p *TwilioProvider) Start(ctx context.Context, phone string) (string, error) {
	v, err := p.client.StartVerification(ctx, phone, "sms")
	if err != nil {
		return "", fmt.Errorf("start verification: %w", err)
	}
	logger.Info("verification: code sent", "provider", "twilio", "phone", phone, "sid", v.SID)
	return v.SID, nil
}

func (p *TwilioProvider) Check(ctx context.Context, phone, sid, code string) (bool, error) {
	v, err := p.client.CheckVerification(ctx, phone, code)
	if err != nil {
		var apiErr *sms.APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.NotFound():
				return false, ErrUnknownVerification
			case apiErr.Code == 60202: // max check attempts reached
				return false, ErrTooManyAttempts
			}
		}
		return false, fmt.Errorf("check verification: %w", err)
	}
	return v.Status == sms.StatusApproved, nil
}
