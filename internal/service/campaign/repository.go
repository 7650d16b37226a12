package campaign

import (
	"context"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Update modifies a draft campaign. Returns ErrNotEditable otherwise.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a campaign that is not sending.
	Delete(ctx context.Context, id string) error

	// MarkSending moves a draft campaign to sending. It returns
	// ErrAlreadySending when another caller won the transition.
	MarkSending(ctx context.Context, id string, at time.Time) error

	// Complete stores the final status and counters.
	Complete(ctx context.Context, id string, status domain.CampaignStatus, c Counts, at time.Time) error

	// RecordRecipients appends delivery outcomes.
	RecordRecipients(ctx context.Context, rows []domain.CampaignRecipient) error

	ListRecipients(ctx context.Context, campaignID string, limit, offset int) ([]domain.CampaignRecipient, int, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Channel domain.CampaignChannel
	Status  domain.CampaignStatus
	Search  string
	Limit   int
	Offset  int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name        *string         `json:"name"`
	Subject     *string         `json:"subject"`
	HTMLContent *string         `json:"html_content"`
	SMSBody     *string         `json:"sms_body"`
	Segment     *domain.Segment `json:"segment"`
}

// Counts are the per-outcome totals of a send.
type Counts struct {
	Recipients int `json:"recipients"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}
