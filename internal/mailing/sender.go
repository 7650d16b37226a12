package mailing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ignite/immo-leads/internal/pkg/logger"
)

// ErrNoRecipient is returned when a message has no To address.
var ErrNoRecipient = errors.New("mailing: message has no recipient")

// Message is one rendered email.
type Message struct {
	To       string
	ToName   string
	From     string
	FromName string
	ReplyTo  string
	Subject  string
	HTML     string
	Text     string
	Headers  map[string]string // e.g. List-Unsubscribe
	Tags     map[string]string // provider tags (SES message tags)
}

func (m *Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if m.Subject == "" {
		return fmt.Errorf("mailing: empty subject")
	}
	if m.HTML == "" && m.Text == "" {
		return fmt.Errorf("mailing: empty body")
	}
	return nil
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%q <%s>", name, addr)
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Defaults fills From/FromName/ReplyTo on messages that leave them empty.
type Defaults struct {
	From     string
	FromName string
	ReplyTo  string
}

func (d Defaults) apply(m *Message) {
	if m.From == "" {
		m.From = d.From
	}
	if m.FromName == "" {
		m.FromName = d.FromName
	}
	if m.ReplyTo == "" {
		m.ReplyTo = d.ReplyTo
	}
}

// LogSender logs messages instead of sending them. It keeps the last
// messages for tests and the dev preview.
type LogSender struct {
	defaults Defaults
	mu       sync.Mutex
	sent     []Message
	keep     int
}

// NewLogSender creates a log-only sender.
func NewLogSender(d Defaults) *LogSender {
	return &LogSender{defaults: d, keep: 100}
}

func (s *LogSender) Send(_ context.Context, msg *Message) error {
	s.defaults.apply(msg)
	if err := msg.validate(); err != nil {
		return err
	}
	logger.Info("mail: logged (not sent)", "to", msg.To, "subject", msg.Subject, "from", msg.From)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, *msg)
	if len(s.sent) > s.keep {
		s.sent = s.sent[len(s.sent)-s.keep:]
	}
	return nil
}

// Sent returns a copy of the logged messages.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
