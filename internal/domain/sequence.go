package domain

import "time"

// SequenceStatus tracks one scheduled drip email.
type SequenceStatus string

const (
	SequencePending   SequenceStatus = "pending"
	SequenceSending   SequenceStatus = "sending"
	SequenceSent      SequenceStatus = "sent"
	SequenceFailed    SequenceStatus = "failed"
	SequenceCancelled SequenceStatus = "cancelled"
)

// EmailSequence is one scheduled templated email tied to a lead, a persona
// and a day offset. A guide download schedules four of them.
type EmailSequence struct {
	ID           string         `json:"id" db:"id"`
	LeadID       string         `json:"lead_id" db:"lead_id"`
	GuideID      string         `json:"guide_id" db:"guide_id"`
	Persona      Persona        `json:"persona" db:"persona"`
	Email        string         `json:"email" db:"email"`
	FirstName    string         `json:"first_name" db:"first_name"`
	Step         int            `json:"step" db:"step"`
	DayOffset    int            `json:"day_offset" db:"day_offset"`
	TemplateKey  string         `json:"template_key" db:"template_key"`
	Status       SequenceStatus `json:"status" db:"status"`
	Attempts     int            `json:"attempts" db:"attempts"`
	LastError    string         `json:"last_error,omitempty" db:"last_error"`
	ScheduledFor time.Time      `json:"scheduled_for" db:"scheduled_for"`
	SentAt       *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// EmailTemplate is an editable Liquid template for a persona and drip step.
// An empty Persona makes the template the generic fallback for that step.
type EmailTemplate struct {
	ID        string    `json:"id" db:"id"`
	Persona   Persona   `json:"persona,omitempty" db:"persona"`
	Step      int       `json:"step" db:"step"`
	Subject   string    `json:"subject" db:"subject"`
	HTML      string    `json:"html" db:"html"`
	Text      string    `json:"text,omitempty" db:"text"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
