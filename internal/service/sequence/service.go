package sequence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/mailing"
	"github.com/ignite/immo-leads/internal/metrics"
	"github.com/ignite/immo-leads/internal/pkg/logger"
)

// DefaultDayOffsets are the drip send days relative to the download.
var DefaultDayOffsets = []int{0, 2, 5, 10}

// Config tunes scheduling and delivery.
type Config struct {
	DayOffsets   []int
	MaxAttempts  int
	RetryBackoff time.Duration // first retry delay, doubled per attempt
	StaleAfter   time.Duration // sending rows older than this are recovered
	SiteURL      string
}

// GuideLookup resolves the guide a row points at.
type GuideLookup interface {
	Get(ctx context.Context, id string) (*domain.Guide, error)
}

// Suppressor reports opted-out addresses.
type Suppressor interface {
	IsEmailSuppressed(ctx context.Context, email string) (bool, error)
}

// Links builds the personalised URLs of drip emails.
type Links interface {
	UnsubscribeURL(email string) (string, error)
	GuideDownloadURL(g *domain.Guide, leadID string) (string, error)
}

// Deps are the collaborators of the service. Guides, Suppressions and Links
// are optional.
type Deps struct {
	Templates    TemplateRepository
	Renderer     *mailing.TemplateService
	Sender       mailing.Sender
	Guides       GuideLookup
	Suppressions Suppressor
	Links        Links
}

// Service schedules and delivers drip emails. It is safe for concurrent use;
// exclusivity of delivery comes from the repository claim.
type Service struct {
	repo Repository
	deps Deps
	cfg  Config
	now  func() time.Time
	log  *logger.Logger
}

// NewService creates a sequence service.
func NewService(repo Repository, deps Deps, cfg Config) *Service {
	if len(cfg.DayOffsets) == 0 {
		cfg.DayOffsets = DefaultDayOffsets
	}
	offsets := append([]int(nil), cfg.DayOffsets...)
	sort.Ints(offsets)
	cfg.DayOffsets = offsets
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	if deps.Renderer == nil {
		deps.Renderer = mailing.NewTemplateService()
	}
	return &Service{repo: repo, deps: deps, cfg: cfg, now: time.Now, log: logger.Named("sequence")}
}

// Steps returns the number of emails in a sequence.
func (s *Service) Steps() int { return len(s.cfg.DayOffsets) }

// ScheduleInput identifies who receives a sequence and for which guide.
type ScheduleInput struct {
	LeadID    string         `json:"lead_id"`
	Email     string         `json:"email"`
	FirstName string         `json:"first_name"`
	Persona   domain.Persona `json:"persona"`
	GuideID   string         `json:"guide_id"`
}

// TemplateKey names the template slot of a row, e.g. "succession_day5".
func TemplateKey(p domain.Persona, dayOffset int) string {
	return string(p) + "_day" + strconv.Itoa(dayOffset)
}

// Schedule inserts one row per day offset, step 1..n, starting now.
func (s *Service) Schedule(ctx context.Context, in ScheduleInput) ([]domain.EmailSequence, error) {
	if !in.Persona.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPersona, in.Persona)
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || in.LeadID == "" || in.GuideID == "" {
		return nil, errors.New("sequence: lead, email and guide are required")
	}

	if s.deps.Suppressions != nil {
		suppressed, err := s.deps.Suppressions.IsEmailSuppressed(ctx, in.Email)
		if err != nil {
			return nil, fmt.Errorf("suppression check: %w", err)
		}
		if suppressed {
			return nil, ErrSuppressed
		}
	}

	exists, err := s.repo.ExistsPending(ctx, in.Email, in.GuideID)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		return nil, ErrAlreadyScheduled
	}

	now := s.now()
	rows := make([]domain.EmailSequence, 0, len(s.cfg.DayOffsets))
	for i, off := range s.cfg.DayOffsets {
		rows = append(rows, domain.EmailSequence{
			ID:           uuid.New().String(),
			LeadID:       in.LeadID,
			GuideID:      in.GuideID,
			Persona:      in.Persona,
			Email:        in.Email,
			FirstName:    in.FirstName,
			Step:         i + 1,
			DayOffset:    off,
			TemplateKey:  TemplateKey(in.Persona, off),
			Status:       domain.SequencePending,
			ScheduledFor: now.AddDate(0, 0, off),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("create sequence: %w", err)
	}

	s.log.Info("scheduled", "lead_id", in.LeadID, "guide_id", in.GuideID, "persona", string(in.Persona), "email", in.Email, "steps", len(rows))
	return rows, nil
}

// ScheduleLead schedules the drip for a guide lead. A lead without persona
// takes the persona of its guide. Already scheduled or suppressed addresses
// are not an error.
func (s *Service) ScheduleLead(ctx context.Context, l *domain.Lead) error {
	if l.GuideID == nil || *l.GuideID == "" {
		return errors.New("sequence: lead has no guide")
	}
	persona := l.Persona
	if !persona.Valid() && s.deps.Guides != nil {
		g, err := s.deps.Guides.Get(ctx, *l.GuideID)
		if err != nil {
			return fmt.Errorf("resolve guide persona: %w", err)
		}
		persona = g.Persona
	}

	_, err := s.Schedule(ctx, ScheduleInput{
		LeadID:    l.ID,
		Email:     l.Email,
		FirstName: l.FirstName,
		Persona:   persona,
		GuideID:   *l.GuideID,
	})
	switch {
	case errors.Is(err, ErrAlreadyScheduled), errors.Is(err, ErrSuppressed):
		s.log.Info("not scheduled", "lead_id", l.ID, "reason", err.Error())
		return nil
	}
	return err
}

// RunResult summarises one ProcessDue pass.
type RunResult struct {
	Recovered int           `json:"recovered"`
	Claimed   int           `json:"claimed"`
	Sent      int           `json:"sent"`
	Retried   int           `json:"retried"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
	Duration  time.Duration `json:"duration"`
}

// ProcessDue claims up to limit due rows and delivers them. It returns an
// error only when claiming fails; per-row failures are recorded on the rows.
func (s *Service) ProcessDue(ctx context.Context, now time.Time, limit int) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{}

	recovered, err := s.repo.RecoverStale(ctx, now.Add(-s.cfg.StaleAfter))
	if err != nil {
		s.log.Warn("recover stale rows failed", "error", err)
	}
	res.Recovered = recovered

	rows, err := s.repo.ClaimDue(ctx, now, limit)
	if err != nil {
		return res, fmt.Errorf("claim due rows: %w", err)
	}
	res.Claimed = len(rows)

	for i := range rows {
		if ctx.Err() != nil {
			// Unprocessed claimed rows go back through RecoverStale.
			break
		}
		s.deliver(ctx, &rows[i], now, res)
	}

	res.Duration = time.Since(start)
	if res.Claimed > 0 || res.Recovered > 0 {
		s.log.Info("batch processed", "claimed", res.Claimed, "sent", res.Sent, "retried", res.Retried,
			"failed", res.Failed, "cancelled", res.Cancelled, "recovered", res.Recovered, "duration_ms", res.Duration.Milliseconds())
	}
	return res, nil
}

func (s *Service) deliver(ctx context.Context, row *domain.EmailSequence, now time.Time, res *RunResult) {
	if s.deps.Suppressions != nil {
		suppressed, err := s.deps.Suppressions.IsEmailSuppressed(ctx, row.Email)
		if err != nil {
			s.retryOrFail(ctx, row, now, err, res)
			return
		}
		if suppressed {
			if err := s.repo.MarkCancelled(ctx, row.ID, "suppressed"); err != nil {
				s.log.Error("mark cancelled failed", "id", row.ID, "error", err)
			}
			res.Cancelled++
			metrics.SequenceEmails.WithLabelValues("cancelled").Inc()
			return
		}
	}

	msg, err := s.buildMessage(ctx, row)
	if err == nil {
		err = s.deps.Sender.Send(ctx, msg)
	}
	if err != nil {
		s.retryOrFail(ctx, row, now, err, res)
		return
	}

	if err := s.repo.MarkSent(ctx, row.ID, s.now()); err != nil {
		// The email left; a stale sending row would be re-sent after
		// recovery, so surface this loudly.
		s.log.Error("mark sent failed", "id", row.ID, "email", row.Email, "error", err)
	}
	res.Sent++
	metrics.SequenceEmails.WithLabelValues("sent").Inc()
}

func (s *Service) retryOrFail(ctx context.Context, row *domain.EmailSequence, now time.Time, cause error, res *RunResult) {
	attempts := row.Attempts + 1
	msg := truncateError(cause.Error(), maxErrorLen)

	if attempts >= s.cfg.MaxAttempts {
		if err := s.repo.MarkFailed(ctx, row.ID, attempts, msg); err != nil {
			s.log.Error("mark failed failed", "id", row.ID, "error", err)
		}
		res.Failed++
		metrics.SequenceEmails.WithLabelValues("failed").Inc()
		s.log.Warn("send failed permanently", "id", row.ID, "step", row.Step, "email", row.Email, "attempts", attempts, "error", cause)
		return
	}

	next := now.Add(s.backoff(attempts))
	if err := s.repo.MarkRetry(ctx, row.ID, attempts, next, msg); err != nil {
		s.log.Error("mark retry failed", "id", row.ID, "error", err)
	}
	res.Retried++
	metrics.SequenceEmails.WithLabelValues("retry").Inc()
	s.log.Warn("send failed, will retry", "id", row.ID, "step", row.Step, "email", row.Email, "attempts", attempts, "next", next, "error", cause)
}

const maxErrorLen = 500

// truncateError cuts msg to at most n bytes on a rune boundary and drops
// invalid UTF-8, which Postgres rejects in TEXT columns.
func truncateError(msg string, n int) string {
	msg = strings.ToValidUTF8(msg, "")
	if len(msg) <= n {
		return msg
	}
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}

// backoff is RetryBackoff * 2^(attempts-1), capped at one day.
func (s *Service) backoff(attempts int) time.Duration {
	d := s.cfg.RetryBackoff
	for i := 1; i < attempts && d < 24*time.Hour; i++ {
		d *= 2
	}
	if d > 24*time.Hour {
		d = 24 * time.Hour
	}
	return d
}

// ResolveTemplate returns the template for persona and step, falling back
// to the generic template and then to the built-in default.
func (s *Service) ResolveTemplate(ctx context.Context, persona domain.Persona, step int) (*domain.EmailTemplate, error) {
	if s.deps.Templates != nil {
		for _, p := range []domain.Persona{persona, ""} {
			t, err := s.deps.Templates.Find(ctx, p, step)
			if err == nil {
				return t, nil
			}
			if !errors.Is(err, ErrTemplateNotFound) {
				return nil, err
			}
			if p == "" {
				break
			}
		}
	}
	t, ok := mailing.DefaultDripTemplate(persona, step)
	if !ok {
		return nil, fmt.Errorf("%w: step %d", ErrTemplateNotFound, step)
	}
	return t, nil
}

func (s *Service) buildMessage(ctx context.Context, row *domain.EmailSequence) (*mailing.Message, error) {
	tpl, err := s.ResolveTemplate(ctx, row.Persona, row.Step)
	if err != nil {
		return nil, err
	}

	vars := mailing.DripVars{
		FirstName: row.FirstName,
		Email:     row.Email,
		Persona:   row.Persona,
		Step:      row.Step,
		SiteURL:   s.cfg.SiteURL,
		GuideURL:  s.cfg.SiteURL,
	}
	if s.deps.Guides != nil {
		g, err := s.deps.Guides.Get(ctx, row.GuideID)
		if err != nil {
			s.log.Warn("guide lookup failed", "guide_id", row.GuideID, "error", err)
		} else {
			vars.GuideTitle = g.Title
			if s.deps.Links != nil {
				if u, err := s.deps.Links.GuideDownloadURL(g, row.LeadID); err == nil {
					vars.GuideURL = u
				}
			}
		}
	}
	if s.deps.Links != nil {
		u, err := s.deps.Links.UnsubscribeURL(row.Email)
		if err != nil {
			return nil, fmt.Errorf("unsubscribe link: %w", err)
		}
		vars.UnsubscribeURL = u
	}

	binding := vars.Map()
	subject, err := s.deps.Renderer.Render(tpl.Subject, binding)
	if err != nil {
		return nil, err
	}
	html, err := s.deps.Renderer.Render(tpl.HTML, binding)
	if err != nil {
		return nil, err
	}
	var text string
	if tpl.Text != "" {
		if text, err = s.deps.Renderer.Render(tpl.Text, binding); err != nil {
			return nil, err
		}
	}

	msg := &mailing.Message{
		To:      row.Email,
		ToName:  row.FirstName,
		Subject: strings.TrimSpace(subject),
		HTML:    html,
		Text:    text,
		Tags: map[string]string{
			"sequence_step": strconv.Itoa(row.Step),
			"persona":       string(row.Persona),
		},
	}
	if vars.UnsubscribeURL != "" {
		msg.Headers = map[string]string{
			"List-Unsubscribe":      "<" + vars.UnsubscribeURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		}
	}
	return msg, nil
}

// CancelForLead cancels the unsent rows of a lead.
func (s *Service) CancelForLead(ctx context.Context, leadID string) (int, error) {
	n, err := s.repo.CancelPendingForLead(ctx, leadID)
	if err == nil && n > 0 {
		metrics.SequenceEmails.WithLabelValues("cancelled").Add(float64(n))
	}
	return n, err
}

// CancelForEmail cancels every unsent row for an address.
func (s *Service) CancelForEmail(ctx context.Context, email string) (int, error) {
	n, err := s.repo.CancelPendingForEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err == nil && n > 0 {
		metrics.SequenceEmails.WithLabelValues("cancelled").Add(float64(n))
	}
	return n, err
}

// ListForLead returns the rows of a lead ordered by step.
func (s *Service) ListForLead(ctx context.Context, leadID string) ([]domain.EmailSequence, error) {
	return s.repo.ListByLead(ctx, leadID)
}

// List returns rows matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.EmailSequence, int, error) {
	return s.repo.List(ctx, f)
}

// Stats returns the drip counters and updates the pending gauge.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	metrics.SequencePending.Set(float64(st.Pending))
	return st, nil
}
