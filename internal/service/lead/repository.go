package lead

import (
	"context"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
)

// Repository defines the data access contract for leads.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a lead and returns its ID.
	Create(ctx context.Context, l *domain.Lead) (string, error)

	// Get returns a single lead. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Lead, error)

	// List returns leads matching the filter, newest first, plus the total
	// count ignoring paging.
	List(ctx context.Context, f ListFilter) ([]domain.Lead, int, error)

	// Update applies the non-nil fields.
	Update(ctx context.Context, id string, u UpdateFields) error

	Delete(ctx context.Context, id string) error

	// FindRecentByPhone returns leads with the phone and source created
	// after since, newest first.
	FindRecentByPhone(ctx context.Context, phone string, source domain.LeadSource, since time.Time) ([]domain.Lead, error)

	// ListForSegment returns every lead matching a campaign segment.
	ListForSegment(ctx context.Context, seg domain.Segment, channel domain.CampaignChannel) ([]domain.Lead, error)

	Stats(ctx context.Context, since time.Time) (*Stats, error)
}

// ListFilter controls paging and filtering for lead lists.
type ListFilter struct {
	Source  domain.LeadSource
	Status  domain.LeadStatus
	Persona domain.Persona
	Search  string // matches name, email, phone, postal code
	Since   *time.Time
	Limit   int
	Offset  int
}

// UpdateFields holds the admin-editable lead fields.
// Nil fields are not applied.
type UpdateFields struct {
	Status    *domain.LeadStatus `json:"status"`
	Notes     *string            `json:"notes"`
	Persona   *domain.Persona    `json:"persona"`
	FirstName *string            `json:"first_name"`
	LastName  *string            `json:"last_name"`
	Email     *string            `json:"email"`
}

// Stats are the dashboard counters.
type Stats struct {
	Total         int            `json:"total"`
	Recent        int            `json:"recent"` // created after the since argument
	PhoneVerified int            `json:"phone_verified"`
	BySource      map[string]int `json:"by_source"`
	ByStatus      map[string]int `json:"by_status"`
	ByPersona     map[string]int `json:"by_persona"`
}
