package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/immo-leads/internal/metrics"
	"github.com/ignite/immo-leads/internal/pkg/ratelimit"
)

// RouterConfig holds the router settings that are not handlers.
type RouterConfig struct {
	AllowedOrigins []string
	// FormLimiter caps public POSTs per client IP. Nil disables it.
	FormLimiter ratelimit.Limiter
	Health      *HealthChecker
}

// SetupRoutes configures all routes. Admin routes sit behind RequireAdmin.
func SetupRoutes(h *Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// CORS - allow credentials for the admin cookie
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.HandleHealth)
		r.Get("/health/ready", cfg.Health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
	}
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public site
		r.Group(func(r chi.Router) {
			r.Use(limitByIP(cfg.FormLimiter))
			r.Post("/sessions", h.CreateSession)
			r.Post("/sessions/{id}/sms", h.SendSessionCode)
			r.Post("/sessions/{id}/verify", h.VerifySessionCode)
			r.Post("/sessions/{id}/lead", h.CreateSessionLead)
			r.Post("/estimations/preview", h.PreviewEstimation)
			r.Post("/financing", h.Financing)
			r.Post("/contact", h.Contact)
		})
		r.Get("/sessions/{id}", h.GetSession)
		r.Get("/guides", h.ListGuides)
		r.Get("/guides/{slug}/download", h.DownloadGuide)
		r.Get("/articles", h.ListArticles)
		r.Get("/articles/{slug}", h.GetArticle)
		r.Get("/unsubscribe", h.Unsubscribe)
		r.Post("/unsubscribe", h.Unsubscribe)
		r.Post("/webhooks/twilio/sms", h.TwilioInbound)

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limitByIP(cfg.FormLimiter))
				r.Post("/login", h.AdminLogin)
				r.Post("/verify", h.AdminVerify)
			})
			r.Post("/logout", h.AdminLogout)

			r.Group(func(r chi.Router) {
				r.Use(h.Admins.RequireAdmin)
				r.Get("/me", h.AdminMe)

				r.Route("/leads", func(r chi.Router) {
					r.Get("/", h.ListLeads)
					r.Get("/export", h.ExportLeads)
					r.Get("/stats", h.LeadStats)
					r.Get("/{id}", h.GetLead)
					r.Patch("/{id}", h.UpdateLead)
					r.Delete("/{id}", h.DeleteLead)
					r.Get("/{id}/sequences", h.LeadSequences)
					r.Post("/{id}/sequences", h.ScheduleLeadSequence)
					r.Post("/{id}/sequences/cancel", h.CancelLeadSequences)
				})

				r.Route("/sequences", func(r chi.Router) {
					r.Get("/", h.ListSequences)
					r.Get("/stats", h.SequenceStats)
					r.Post("/run", h.RunSequences)
				})

				r.Route("/templates", func(r chi.Router) {
					r.Get("/", h.ListTemplates)
					r.Post("/", h.CreateTemplate)
					r.Post("/preview", h.PreviewTemplate)
					r.Get("/{id}", h.GetTemplate)
					r.Patch("/{id}", h.UpdateTemplate)
					r.Delete("/{id}", h.DeleteTemplate)
				})

				r.Route("/articles", func(r chi.Router) {
					r.Get("/", h.AdminListArticles)
					r.Post("/", h.AdminCreateArticle)
					r.Post("/generate", h.AdminGenerateArticle)
					r.Get("/topics", h.AdminArticleTopics)
					r.Get("/{id}", h.AdminGetArticle)
					r.Patch("/{id}", h.AdminUpdateArticle)
					r.Delete("/{id}", h.AdminDeleteArticle)
					r.Post("/{id}/publish", h.AdminPublishArticle)
					r.Post("/{id}/unpublish", h.AdminUnpublishArticle)
				})

				r.Route("/campaigns", func(r chi.Router) {
					r.Get("/", h.ListCampaigns)
					r.Post("/", h.CreateCampaign)
					r.Get("/{id}", h.GetCampaign)
					r.Patch("/{id}", h.UpdateCampaign)
					r.Delete("/{id}", h.DeleteCampaign)
					r.Get("/{id}/recipients", h.CampaignRecipients)
					r.Post("/{id}/send", h.SendCampaign)
				})

				r.Route("/guides", func(r chi.Router) {
					r.Get("/", h.AdminListGuides)
					r.Post("/", h.AdminCreateGuide)
					r.Get("/{id}", h.AdminGetGuide)
					r.Patch("/{id}", h.AdminUpdateGuide)
					r.Delete("/{id}", h.AdminDeleteGuide)
					r.Post("/{id}/render", h.AdminRenderGuide)
				})

				r.Route("/suppressions", func(r chi.Router) {
					r.Get("/", h.ListSuppressions)
					r.Get("/stats", h.SuppressionStats)
					r.Post("/", h.AddSuppression)
					r.Delete("/{channel}/{value}", h.RemoveSuppression)
				})
			})
		})
	})

	return r
}
