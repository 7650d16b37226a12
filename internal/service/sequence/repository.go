package sequence

import (
	"context"
	"time"

	"github.com/ignite/immo-leads/internal/domain"
)

// Repository defines the data access contract for drip rows.
// Implementations must be safe for concurrent use.
type Repository interface {
	// CreateBatch inserts the rows of one sequence atomically.
	CreateBatch(ctx context.Context, rows []domain.EmailSequence) error

	// ExistsPending reports whether the email already has unsent rows for
	// the guide.
	ExistsPending(ctx context.Context, email, guideID string) (bool, error)

	// ClaimDue moves up to limit pending rows scheduled at or before now to
	// sending and returns them, oldest first. Rows are skipped while an
	// earlier step of the same lead and guide is still unsent or was sent
	// at or after now, so a lead gets at most one step per tick. Rows
	// locked by another claimer are skipped rather than waited on.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.EmailSequence, error)

	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// MarkRetry puts a row back to pending at next with the attempt count
	// and error of the failed send.
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error

	MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error

	MarkCancelled(ctx context.Context, id, reason string) error

	// CancelPendingForLead cancels unsent rows of a lead and returns how many.
	CancelPendingForLead(ctx context.Context, leadID string) (int, error)

	// CancelPendingForEmail cancels unsent rows for an address (unsubscribe).
	CancelPendingForEmail(ctx context.Context, email string) (int, error)

	// RecoverStale returns rows stuck in sending since before olderThan to
	// pending, e.g. after a worker crashed mid-batch.
	RecoverStale(ctx context.Context, olderThan time.Time) (int, error)

	ListByLead(ctx context.Context, leadID string) ([]domain.EmailSequence, error)
	List(ctx context.Context, f ListFilter) ([]domain.EmailSequence, int, error)
	Stats(ctx context.Context) (*Stats, error)
}

// TemplateRepository stores editable drip templates.
type TemplateRepository interface {
	// Find returns the active template for persona and step. An empty
	// persona selects the generic template. Returns ErrTemplateNotFound.
	Find(ctx context.Context, persona domain.Persona, step int) (*domain.EmailTemplate, error)

	Get(ctx context.Context, id string) (*domain.EmailTemplate, error)
	List(ctx context.Context) ([]domain.EmailTemplate, error)
	Create(ctx context.Context, t *domain.EmailTemplate) (string, error)
	Update(ctx context.Context, id string, u TemplateUpdate) error
	Delete(ctx context.Context, id string) error
}

// ListFilter controls paging and filtering for drip rows.
type ListFilter struct {
	Status  domain.SequenceStatus
	Persona domain.Persona
	Email   string
	Limit   int
	Offset  int
}

// TemplateUpdate holds the mutable template fields. Nil fields are not applied.
type TemplateUpdate struct {
	Subject *string `json:"subject"`
	HTML    *string `json:"html"`
	Text    *string `json:"text"`
	Active  *bool   `json:"active"`
}

// Stats are the drip counters for the dashboard.
type Stats struct {
	Pending   int `json:"pending"`
	Sending   int `json:"sending"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	DueNow    int `json:"due_now"`
}
