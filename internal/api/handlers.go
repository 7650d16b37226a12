package api

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ignite/immo-leads/internal/auth"
	"github.com/ignite/immo-leads/internal/domain"
	"github.com/ignite/immo-leads/internal/estimation"
	"github.com/ignite/immo-leads/internal/pkg/httputil"
	"github.com/ignite/immo-leads/internal/service/article"
	"github.com/ignite/immo-leads/internal/service/authsession"
	"github.com/ignite/immo-leads/internal/service/campaign"
	"github.com/ignite/immo-leads/internal/service/guide"
	"github.com/ignite/immo-leads/internal/service/lead"
	"github.com/ignite/immo-leads/internal/service/sequence"
	"github.com/ignite/immo-leads/internal/service/suppression"
)

// Sessions drives the public SMS gate.
type Sessions interface {
	Create(ctx context.Context, in authsession.CreateInput) (*domain.AuthSession, error)
	Get(ctx context.Context, id string) (*domain.AuthSession, error)
	SendCode(ctx context.Context, id, phone string) (*domain.AuthSession, error)
	VerifyCode(ctx context.Context, id, code string) (*domain.AuthSession, error)
	MaxAttempts() int
}

// Leads is the lead service used by public forms and the admin.
type Leads interface {
	CreateFromSession(ctx context.Context, sessionID string, in lead.LeadInput) (*domain.Lead, error)
	Create(ctx context.Context, in lead.LeadInput) (*domain.Lead, error)
	Get(ctx context.Context, id string) (*domain.Lead, error)
	List(ctx context.Context, f lead.ListFilter) ([]domain.Lead, int, error)
	Update(ctx context.Context, id string, u lead.UpdateFields) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*lead.Stats, error)
	ExportCSV(ctx context.Context, w io.Writer, f lead.ListFilter) (int, error)
}

// Sequences covers drip rows and their templates.
type Sequences interface {
	ScheduleLead(ctx context.Context, l *domain.Lead) error
	ListForLead(ctx context.Context, leadID string) ([]domain.EmailSequence, error)
	List(ctx context.Context, f sequence.ListFilter) ([]domain.EmailSequence, int, error)
	CancelForLead(ctx context.Context, leadID string) (int, error)
	CancelForEmail(ctx context.Context, email string) (int, error)
	Stats(ctx context.Context) (*sequence.Stats, error)

	CreateTemplate(ctx context.Context, in sequence.TemplateInput) (*domain.EmailTemplate, error)
	UpdateTemplate(ctx context.Context, id string, u sequence.TemplateUpdate) error
	GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error)
	ListTemplates(ctx context.Context) ([]domain.EmailTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
	PreviewTemplate(in sequence.TemplateInput) (*sequence.Preview, error)
}

// SequenceRunner runs one scheduler pass on demand. *worker.SequenceScheduler
// satisfies it.
type SequenceRunner interface {
	RunOnce(ctx context.Context) (*sequence.RunResult, error)
}

// Articles is the blog service.
type Articles interface {
	Create(ctx context.Context, in article.CreateInput) (*domain.Article, error)
	Get(ctx context.Context, id string) (*domain.Article, error)
	GetPublished(ctx context.Context, slug string) (*domain.Article, error)
	List(ctx context.Context, f article.ListFilter) ([]domain.Article, int, error)
	ListPublished(ctx context.Context, f article.ListFilter) ([]domain.Article, int, error)
	Update(ctx context.Context, id string, u article.UpdateFields) error
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (*domain.Article, error)
	Unpublish(ctx context.Context, id string) error
	Generate(ctx context.Context, in article.GenerateInput) (*domain.Article, error)
	SuggestTopics(ctx context.Context, persona domain.Persona, limit int) ([]article.TopicIdea, error)
}

// Campaigns is the one-shot email/SMS campaign service.
type Campaigns interface {
	Create(ctx context.Context, in campaign.CreateInput) (*domain.Campaign, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Update(ctx context.Context, id string, u campaign.UpdateFields) error
	Delete(ctx context.Context, id string) error
	Recipients(ctx context.Context, id string, limit, offset int) ([]domain.CampaignRecipient, int, error)
	Send(ctx context.Context, id string) (*campaign.Counts, error)
}

// Guides is the PDF guide service.
type Guides interface {
	Create(ctx context.Context, in guide.CreateInput) (*domain.Guide, error)
	Get(ctx context.Context, id string) (*domain.Guide, error)
	GetPublished(ctx context.Context, slug string) (*domain.Guide, error)
	List(ctx context.Context, f guide.ListFilter) ([]domain.Guide, error)
	ListPublished(ctx context.Context, persona domain.Persona) ([]domain.Guide, error)
	Update(ctx context.Context, id string, u guide.UpdateFields) error
	Delete(ctx context.Context, id string) error
	RenderPDF(ctx context.Context, id string) (*domain.Guide, error)
	Open(ctx context.Context, guideID string) (*guide.Download, error)
}

// Suppressions is the opt-out list.
type Suppressions interface {
	Suppress(ctx context.Context, channel domain.CampaignChannel, value string, reason domain.SuppressionReason, source domain.SuppressionSource) error
	Remove(ctx context.Context, channel domain.CampaignChannel, value string) error
	List(ctx context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error)
	GetStats(ctx context.Context) (*suppression.Stats, error)
}

// Estimator prices a property for the preview endpoint.
type Estimator interface {
	Estimate(in estimation.Input) (*estimation.Result, error)
}

// Admins runs admin login. *auth.Manager satisfies it.
type Admins interface {
	Login(ctx context.Context, email, password, clientIP string) (*domain.AuthSession, error)
	VerifyLogin(ctx context.Context, sessionID, code string) (*auth.LoginResult, error)
	SetSessionCookie(w http.ResponseWriter, res *auth.LoginResult)
	ClearSessionCookie(w http.ResponseWriter)
	Me(ctx context.Context) (*domain.AdminUser, error)
	RequireAdmin(next http.Handler) http.Handler
}

// Deps are the services behind the HTTP handlers.
type Deps struct {
	Sessions     Sessions
	Leads        Leads
	Sequences    Sequences
	Articles     Articles
	Campaigns    Campaigns
	Guides       Guides
	Suppressions Suppressions
	Estimator    Estimator
	Admins       Admins
	Links        *auth.Links
}

// TwilioWebhook holds what the inbound SMS webhook needs to check signatures.
// An empty URL disables the check.
type TwilioWebhook struct {
	AuthToken string
	URL       string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	Deps
	runner  SequenceRunner
	twilio  TwilioWebhook
	bg      context.Context
	sendTTL time.Duration
	sends   sync.WaitGroup
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		Deps:    deps,
		bg:      context.Background(),
		sendTTL: 30 * time.Minute,
	}
}

// SetSequenceRunner enables the admin run-now endpoint.
func (h *Handlers) SetSequenceRunner(r SequenceRunner) {
	h.runner = r
}

// SetTwilioWebhook configures inbound SMS signature checks.
func (h *Handlers) SetTwilioWebhook(cfg TwilioWebhook) {
	h.twilio = cfg
}

// SetBackgroundContext sets the parent context of campaign sends started by
// the admin. Cancelling it stops in-flight sends on shutdown.
func (h *Handlers) SetBackgroundContext(ctx context.Context) {
	h.bg = ctx
}

// adminEmail names the signed-in admin in logs.
func adminEmail(r *http.Request) string {
	if p := auth.PrincipalFrom(r.Context()); p != nil {
		return p.Email
	}
	return ""
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.JSON(w, status, data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	httputil.Error(w, status, message)
}
