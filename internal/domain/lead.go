package domain

import (
	"encoding/json"
	"time"
)

// LeadSource identifies the form that produced a lead.
type LeadSource string

const (
	SourceEstimation LeadSource = "estimation"
	SourceFinancing  LeadSource = "financing"
	SourceGuide      LeadSource = "guide"
	SourceContact    LeadSource = "contact"
	SourceSMSGate    LeadSource = "sms_gate"
)

// Valid reports whether s is a known source.
func (s LeadSource) Valid() bool {
	switch s {
	case SourceEstimation, SourceFinancing, SourceGuide, SourceContact, SourceSMSGate:
		return true
	}
	return false
}

// LeadStatus tracks the sales follow-up of a lead.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQualified LeadStatus = "qualified"
	LeadWon       LeadStatus = "won"
	LeadLost      LeadStatus = "lost"
)

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadQualified, LeadWon, LeadLost:
		return true
	}
	return false
}

// Lead is a contact captured by one of the public forms.
type Lead struct {
	ID            string          `json:"id" db:"id"`
	Source        LeadSource      `json:"source" db:"source"`
	Status        LeadStatus      `json:"status" db:"status"`
	Persona       Persona         `json:"persona,omitempty" db:"persona"`
	FirstName     string          `json:"first_name" db:"first_name"`
	LastName      string          `json:"last_name" db:"last_name"`
	Email         string          `json:"email" db:"email"`
	Phone         string          `json:"phone" db:"phone"`
	PhoneVerified bool            `json:"phone_verified" db:"phone_verified"`
	PostalCode    string          `json:"postal_code,omitempty" db:"postal_code"`
	City          string          `json:"city,omitempty" db:"city"`
	Message       string          `json:"message,omitempty" db:"message"`
	PropertyData  json.RawMessage `json:"property_data,omitempty" db:"property_data"`
	Estimation    json.RawMessage `json:"estimation,omitempty" db:"estimation"`
	GuideID       *string         `json:"guide_id,omitempty" db:"guide_id"`
	SessionID     *string         `json:"session_id,omitempty" db:"session_id"`
	ConsentEmail  bool            `json:"consent_email" db:"consent_email"`
	ConsentSMS    bool            `json:"consent_sms" db:"consent_sms"`
	Notes         string          `json:"notes,omitempty" db:"notes"`
	UTMSource     string          `json:"utm_source,omitempty" db:"utm_source"`
	UTMCampaign   string          `json:"utm_campaign,omitempty" db:"utm_campaign"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name.
func (l *Lead) FullName() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

// Segment selects leads for a campaign. Empty fields match everything.
type Segment struct {
	Persona Persona    `json:"persona,omitempty"`
	Status  LeadStatus `json:"status,omitempty"`
	Source  LeadSource `json:"source,omitempty"`
	// Only leads that opted in on the campaign's channel are selected.
	RequireConsent bool `json:"require_consent"`
}
