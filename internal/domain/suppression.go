package domain

import "time"

// SuppressionReason enumerates why an address was opted out.
type SuppressionReason string

const (
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
	ReasonStop        SuppressionReason = "sms_stop"
	ReasonHardBounce  SuppressionReason = "hard_bounce"
	ReasonComplaint   SuppressionReason = "spam_complaint"
	ReasonManual      SuppressionReason = "manual"
)

// SuppressionSource indicates where the opt-out signal originated.
type SuppressionSource string

const (
	SourceUnsubscribeLink SuppressionSource = "unsubscribe_link"
	SourceTwilioInbound   SuppressionSource = "twilio_inbound"
	SourceAdmin           SuppressionSource = "admin"
)

// Suppression is one opted-out email address or phone number. Suppressed
// addresses never receive drip or campaign messages.
type Suppression struct {
	ID        string            `json:"id" db:"id"`
	Channel   CampaignChannel   `json:"channel" db:"channel"`
	Value     string            `json:"value" db:"value"`
	Reason    SuppressionReason `json:"reason" db:"reason"`
	Source    SuppressionSource `json:"source" db:"source"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}
