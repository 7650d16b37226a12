package mailing

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/go-mail/mail"
	"github.com/ignite/immo-leads/internal/pkg/logger"
)

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLSMode  string // "auto" | "starttls" | "ssl" | "none"
}

type smtpDialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg      SMTPConfig
	defaults Defaults
	dial     func() smtpDialer
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg SMTPConfig, d Defaults) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	s := &SMTPSender{cfg: cfg, defaults: d}
	s.dial = s.newDialer
	return s
}

func (s *SMTPSender) newDialer() smtpDialer {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	}
	return d
}

// build converts msg to a go-mail message, multipart/alternative when both
// bodies are present.
func (s *SMTPSender) build(msg *Message) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", m.FormatAddress(msg.From, msg.FromName))
	if msg.ToName != "" {
		m.SetHeader("To", m.FormatAddress(msg.To, msg.ToName))
	} else {
		m.SetHeader("To", msg.To)
	}
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	s.defaults.apply(msg)
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.dial().DialAndSend(s.build(msg)); err != nil {
		logger.Error("mail: smtp send failed", "host", s.cfg.Host, "to", msg.To, "error", err)
		return fmt.Errorf("smtp send: %w", err)
	}
	logger.Info("mail: sent", "transport", "smtp", "to", msg.To, "subject", msg.Subject)
	return nil
}
