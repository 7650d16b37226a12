package suppression

import (
	"context"

	"github.com/ignite/immo-leads/internal/domain"
)

// Repository defines the data access contract for the opt-out list.
type Repository interface {
	// IsSuppressed returns true if the normalized value is on the list for
	// the channel.
	IsSuppressed(ctx context.Context, channel domain.CampaignChannel, value string) (bool, error)

	// Suppress adds an entry. If it already exists the existing record is
	// preserved (idempotent).
	Suppress(ctx context.Context, s *domain.Suppression) error

	// Remove deletes an entry. Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, channel domain.CampaignChannel, value string) error

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Channel string
	Reason  string
	Search  string
	Limit   int
	Offset  int
}
