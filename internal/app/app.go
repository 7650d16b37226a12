// Package app wires configuration into the repositories, services and
// transports shared by the server, the worker and leadctl.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/immo-leads/internal/ai"
	"github.com/ignite/immo-leads/internal/api"
	"github.com/ignite/immo-leads/internal/auth"
	"github.com/ignite/immo-leads/internal/config"
	"github.com/ignite/immo-leads/internal/estimation"
	"github.com/ignite/immo-leads/internal/mailing"
	"github.com/ignite/immo-leads/internal/pdf"
	"github.com/ignite/immo-leads/internal/pkg/logger"
	"github.com/ignite/immo-leads/internal/pkg/ratelimit"
	"github.com/ignite/immo-leads/internal/repository/postgres"
	"github.com/ignite/immo-leads/internal/service/article"
	"github.com/ignite/immo-leads/internal/service/authsession"
	"github.com/ignite/immo-leads/internal/service/campaign"
	"github.com/ignite/immo-leads/internal/service/guide"
	"github.com/ignite/immo-leads/internal/service/lead"
	"github.com/ignite/immo-leads/internal/service/sequence"
	"github.com/ignite/immo-leads/internal/service/suppression"
	"github.com/ignite/immo-leads/internal/service/verification"
	"github.com/ignite/immo-leads/internal/sms"
	"github.com/ignite/immo-leads/internal/worker"
	"github.com/ignite/immo-leads/migrations"
)

const (
	jwtIssuer      = "immo-leads"
	aiTimeout      = 90 * time.Second
	presignTTL     = 15 * time.Minute
	formsPerMinute = 20
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client // nil when Redis is not configured

	SMS      *sms.Client
	Mailer   mailing.Sender
	Renderer *pdf.RodRenderer
	Local    *verification.LocalProvider // nil in Twilio Verify mode

	Signer       *auth.Signer
	Links        *auth.Links
	Admins       *auth.Manager
	AdminRepo    *postgres.AdminRepo
	Sessions     *authsession.Service
	Estimator    *estimation.Estimator
	Suppressions *suppression.Service
	Guides       *guide.Service
	Sequences    *sequence.Service
	Leads        *lead.Service
	Campaigns    *campaign.Service
	Articles     *article.Service
}

// New connects to Postgres (and Redis when configured), applies pending
// migrations when migrate is true and builds every service.
func New(ctx context.Context, cfg *config.Config, migrate bool) (*App, error) {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}

	if migrate {
		applied, err := postgres.Migrate(ctx, db, migrations.FS)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations up to date", "applied", len(applied))
	}

	a.Redis = connectRedis(ctx, cfg.Redis.URL)

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		logger.Info("redis not configured, using in-process sessions and PG advisory locks")
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(url); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: url})
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed, falling back to in-process state", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	signer, err := auth.NewSigner(cfg.Auth.JWTSecret, jwtIssuer)
	if err != nil {
		return err
	}
	a.Signer = signer
	a.Links = auth.NewLinks(signer, cfg.Email.SiteURL, cfg.Auth.DownloadTTL())

	a.SMS = sms.NewClient(sms.Config{
		AccountSID:       cfg.Twilio.AccountSID,
		AuthToken:        cfg.Twilio.AuthToken,
		VerifyServiceSID: cfg.Twilio.VerifyServiceSID,
		FromNumber:       cfg.Twilio.FromNumber,
		Timeout:          cfg.Twilio.Timeout(),
	})
	if a.Mailer, err = newMailer(ctx, cfg); err != nil {
		return err
	}

	// SMS gate sessions
	var store authsession.Store = authsession.NewMemoryStore()
	if a.Redis != nil {
		store = authsession.NewRedisStore(a.Redis)
	}
	a.Sessions = authsession.NewService(store, a.provider(), ratelimit.New(a.Redis, "sms", cfg.Verification.SendsPerHour, time.Hour), authsession.Config{
		TTL:         cfg.Verification.SessionTTL(),
		MaxAttempts: cfg.Verification.MaxAttempts,
		MaxSends:    cfg.Verification.MaxSends,
	})

	a.AdminRepo = postgres.NewAdminRepo(a.DB)
	a.Admins = auth.NewManager(a.AdminRepo, a.Sessions, signer, auth.ManagerConfig{
		CookieName:   cfg.Auth.CookieName,
		CookieSecure: cfg.Auth.CookieSecure,
		SessionTTL:   cfg.Auth.SessionTTL(),
	})

	a.Estimator = estimation.New(cfg.Estimation.DefaultPricePerM2, cfg.Estimation.PricePerM2, cfg.Estimation.Spread)
	a.Suppressions = suppression.NewService(postgres.NewSuppressionRepo(a.DB))

	pdfStore, err := newPDFStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	a.Renderer = pdf.NewRodRenderer(pdf.RodConfig{
		ChromeBin:  cfg.PDF.ChromeBin,
		ControlURL: cfg.PDF.ControlURL,
		Timeout:    cfg.PDF.Timeout(),
	})
	a.Guides = guide.NewService(postgres.NewGuideRepo(a.DB), a.Renderer, pdfStore, presignTTL)

	renderer := mailing.NewTemplateService()
	a.Sequences = sequence.NewService(postgres.NewSequenceRepo(a.DB), sequence.Deps{
		Templates:    postgres.NewTemplateRepo(a.DB),
		Renderer:     renderer,
		Sender:       a.Mailer,
		Guides:       a.Guides,
		Suppressions: a.Suppressions,
		Links:        a.Links,
	}, sequence.Config{
		DayOffsets:   cfg.Sequence.DayOffsets,
		MaxAttempts:  cfg.Sequence.MaxAttempts,
		RetryBackoff: cfg.Sequence.RetryBackoff(),
		StaleAfter:   cfg.Sequence.StaleAfter(),
		SiteURL:      cfg.Email.SiteURL,
	})

	a.Leads = lead.NewService(postgres.NewLeadRepo(a.DB), a.Sessions, a.Estimator, a.Sequences)

	campaignDeps := campaign.Deps{
		Audience:     a.Leads,
		Suppressions: a.Suppressions,
		Mailer:       a.Mailer,
		Renderer:     renderer,
		Links:        a.Links,
		SiteURL:      cfg.Email.SiteURL,
	}
	if a.SMS.Configured() {
		campaignDeps.SMS = a.SMS
	}
	a.Campaigns = campaign.NewService(postgres.NewCampaignRepo(a.DB), campaignDeps)

	articleDeps := article.Deps{}
	if cfg.OpenAI.Enabled {
		articleDeps.Writer = ai.NewOpenAI(ai.Config{APIKey: cfg.OpenAI.APIKey, BaseURL: cfg.OpenAI.BaseURL, Model: cfg.OpenAI.Model, Timeout: aiTimeout})
	}
	if cfg.Perplexity.Enabled {
		articleDeps.Researcher = ai.NewPerplexity(ai.Config{APIKey: cfg.Perplexity.APIKey, BaseURL: cfg.Perplexity.BaseURL, Model: cfg.Perplexity.Model, Timeout: aiTimeout})
	}
	if len(cfg.Feeds.URLs) > 0 {
		articleDeps.Feeds = ai.NewFeedReader(cfg.Feeds.URLs)
	}
	a.Articles = article.NewService(postgres.NewArticleRepo(a.DB), articleDeps)
	return nil
}

// provider picks Twilio Verify or locally generated codes.
func (a *App) provider() verification.Provider {
	v := a.Config.Verification
	if v.Mode == "twilio" {
		logger.Info("sms verification through Twilio Verify")
		return verification.NewTwilioProvider(a.SMS)
	}
	var sender verification.CodeSender
	if a.SMS.Configured() {
		sender = verification.NewSMSCodeSender(a.SMS)
	} else if !v.DevMode {
		logger.Warn("twilio is not configured and dev mode is off: codes cannot be delivered")
	}
	a.Local = verification.NewLocalProvider(verification.LocalConfig{
		CodeTTL:     v.CodeTTL(),
		MaxAttempts: v.MaxAttempts,
		DevMode:     v.DevMode,
		TestCodes:   v.TestCodes,
	}, sender).WithRedis(a.Redis)
	return a.Local
}

func newMailer(ctx context.Context, cfg *config.Config) (mailing.Sender, error) {
	d := mailing.Defaults{From: cfg.Email.FromEmail, FromName: cfg.Email.FromName, ReplyTo: cfg.Email.ReplyTo}
	switch cfg.Email.Transport {
	case "smtp":
		return mailing.NewSMTPSender(mailing.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			TLSMode:  cfg.SMTP.TLSMode,
		}, d), nil
	case "ses":
		return mailing.NewSESSender(ctx, mailing.SESConfig{
			Region:           cfg.SES.Region,
			AccessKey:        cfg.SES.AccessKey,
			SecretKey:        cfg.SES.SecretKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		}, d)
	case "log":
		logger.Warn("email transport is log: messages are not delivered")
		return mailing.NewLogSender(d), nil
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.Email.Transport)
	}
}

func newPDFStore(ctx context.Context, cfg config.StorageConfig) (pdf.Store, error) {
	if cfg.Type == "s3" {
		return pdf.NewS3Store(ctx, pdf.S3Config{Bucket: cfg.S3Bucket, Region: cfg.S3Region, Prefix: cfg.S3Prefix})
	}
	return pdf.NewLocalStore(cfg.LocalPath)
}

// Handlers builds the HTTP handlers over the services.
func (a *App) Handlers() *api.Handlers {
	h := api.NewHandlers(api.Deps{
		Sessions:     a.Sessions,
		Leads:        a.Leads,
		Sequences:    a.Sequences,
		Articles:     a.Articles,
		Campaigns:    a.Campaigns,
		Guides:       a.Guides,
		Suppressions: a.Suppressions,
		Estimator:    a.Estimator,
		Admins:       a.Admins,
		Links:        a.Links,
	})
	h.SetTwilioWebhook(api.TwilioWebhook{AuthToken: a.Config.Twilio.AuthToken, URL: a.Config.Twilio.WebhookURL})
	return h
}

// RouterConfig returns the router settings for the API server.
func (a *App) RouterConfig(scheduler api.SchedulerStatus) api.RouterConfig {
	return api.RouterConfig{
		AllowedOrigins: a.Config.CORS.AllowedOrigins,
		FormLimiter:    ratelimit.New(a.Redis, "form", formsPerMinute, time.Minute),
		Health:         api.NewHealthChecker(a.DB, a.Redis, scheduler),
	}
}

// Scheduler builds the drip delivery loop.
func (a *App) Scheduler() *worker.SequenceScheduler {
	s := worker.NewSequenceScheduler(a.Sequences, a.DB, a.Config.Sequence.TickInterval(), a.Config.Sequence.BatchSize)
	if a.Redis != nil {
		s.SetRedisClient(a.Redis)
	}
	return s
}

// Janitor builds the purge loop for locally generated codes. It returns nil
// in Twilio Verify mode and when codes are kept in Redis.
func (a *App) Janitor() *worker.SessionJanitor {
	if a.Local == nil || a.Redis != nil {
		return nil
	}
	return worker.NewSessionJanitor(0, a.Local)
}

// Close releases the browser, Redis and the database.
func (a *App) Close() {
	if a.Renderer != nil {
		if err := a.Renderer.Close(); err != nil {
			logger.Warn("close pdf renderer", "error", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
