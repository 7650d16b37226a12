package domain

import (
	"time"
)

// CampaignChannel is the delivery channel of a broadcast.
type CampaignChannel string

const (
	ChannelEmail CampaignChannel = "email"
	ChannelSMS   CampaignChannel = "sms"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
	CampaignFailed  CampaignStatus = "failed"
)

// Campaign is a one-off email or SMS broadcast to a lead segment.
type Campaign struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Channel     CampaignChannel `json:"channel" db:"channel"`
	Subject     string          `json:"subject,omitempty" db:"subject"`
	HTMLContent string          `json:"html_content,omitempty" db:"html_content"`
	SMSBody     string          `json:"sms_body,omitempty" db:"sms_body"`
	Segment     Segment         `json:"segment" db:"segment"`
	Status      CampaignStatus  `json:"status" db:"status"`

	// Stats (read-only, populated by queries)
	RecipientCount int `json:"recipient_count" db:"recipient_count"`
	SentCount      int `json:"sent_count" db:"sent_count"`
	FailedCount    int `json:"failed_count" db:"failed_count"`
	SkippedCount   int `json:"skipped_count" db:"skipped_count"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignFailed
}

// IsEditable returns true while content and segment may still change.
func (c *Campaign) IsEditable() bool {
	return c.Status == CampaignDraft
}

// RecipientStatus is the delivery outcome for one campaign recipient.
type RecipientStatus string

const (
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
	RecipientSkipped RecipientStatus = "skipped"
)

// CampaignRecipient records one delivery attempt of a campaign.
type CampaignRecipient struct {
	CampaignID string          `json:"campaign_id" db:"campaign_id"`
	LeadID     string          `json:"lead_id" db:"lead_id"`
	Address    string          `json:"address" db:"address"`
	Status     RecipientStatus `json:"status" db:"status"`
	Error      string          `json:"error,omitempty" db:"error"`
	SentAt     time.Time       `json:"sent_at" db:"sent_at"`
}
