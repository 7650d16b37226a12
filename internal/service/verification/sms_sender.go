package verification

import (
	"context"
	"fmt"

	"github.com/ignite/immo-leads/internal/sms"
)

// MessageSender is the part of the Twilio client used to text codes.
type MessageSender interface {
	SendSMS(ctx context.Context, to, body string) (*sms.Message, error)
}

// SMSCodeSender texts locally generated codes through Twilio Messaging.
type SMSCodeSender struct {
	client MessageSender
}

// NewSMSCodeSender wraps a message sender.
func NewSMSCodeSender(client MessageSender) *SMSCodeSender {
	return &SMSCodeSender{client: client}
}

func (s *SMSCodeSender) SendCode(ctx context.Context, phone, code string) error {
	body := fmt.Sprintf("Votre code de vérification : %s. Ne le communiquez à personne.", code)
	if _, err := s.client.SendSMS(ctx, phone, body); err != nil {
		return fmt.Errorf("send code sms: %w", err)
	}
	return nil
}
