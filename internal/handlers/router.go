package handlers

import (
	"database/sql"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/dailylog"
	"github.com/carpenike/fitcoach/internal/llm"
	"github.com/carpenike/fitcoach/internal/metrics"
	"github.com/carpenike/fitcoach/internal/middleware"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/notify"
)

// Deps are the router's collaborators. Only DB and Sessions are required.
type Deps struct {
	DB       *sql.DB
	Sessions *scs.SessionManager
	Metrics  *metrics.Manager
	Gatherer prometheus.Gatherer
	Notifier *notify.Broadcaster
	// Maintenance exposes the background scheduler to admins.
	Maintenance Maintainer

	// Completer replaces the settings-driven completion backend for both
	// plan generation and the hosted function.
	Completer llm.Completer

	LoginLimiter    *middleware.RateLimiter
	GenerateLimiter *middleware.RateLimiter
	// FunctionLimiter limits the hosted function per client IP.
	FunctionLimiter *middleware.RateLimiter
}

func passthrough(next http.Handler) http.Handler { return next }

func limit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return passthrough
	}
	return rl.Limit
}

// NewRouter wires every API route.
func NewRouter(d Deps) http.Handler {
	sm := d.Sessions

	tracker := dailylog.NewTracker(models.DailyLogStore{DB: d.DB})
	if d.Metrics != nil {
		tracker.Observer = d.Metrics
	}

	auth := &Auth{DB: d.DB, Sessions: sm}
	profiles := &Profiles{DB: d.DB}
	plans := &Plans{DB: d.DB, Metrics: d.Metrics, Completer: d.Completer}
	logs := &Logs{DB: d.DB, Tracker: tracker}
	settings := &Settings{DB: d.DB, Maintenance: d.Maintenance}
	functions := &Functions{DB: d.DB, Completer: d.Completer}
	portability := &Portability{DB: d.DB}
	if d.Notifier != nil {
		plans.Notifier = d.Notifier
		settings.Notify = d.Notifier
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PanicRecovery(d.Metrics))
	if d.Metrics != nil {
		r.Use(middleware.RequestMetrics(d.Metrics))
	}
	r.Use(middleware.RequestLogger)
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", healthHandler(d.DB))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.With(limit(d.FunctionLimiter)).Post("/functions/generate-plan", functions.GeneratePlan)

	r.Route("/api", func(r chi.Router) {
		r.Use(sm.LoadAndSave)

		r.With(limit(d.LoginLimiter)).Post("/login", auth.Login)
		r.Post("/logout", auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler { return middleware.RequireAuth(sm, d.DB, next) })
			r.Use(func(next http.Handler) http.Handler { return middleware.CSRFProtect(sm, next) })

			r.Get("/session", auth.Session)

			r.Get("/profile", profiles.Get)
			r.Put("/profile", profiles.Update)

			r.With(limit(d.GenerateLimiter)).Post("/plans/{category}/generate", plans.Generate)
			r.Get("/plans/{category}/active", plans.Active)
			r.Get("/plans/{category}", plans.List)

			r.Get("/logs/{date}", logs.Get)
			r.Get("/logs/{date}/checklist", logs.Checklist)
			r.Post("/logs/{date}/toggle", logs.Toggle)

			r.Get("/export", portability.Export)
			r.Post("/import", portability.Import)

			r.Route("/settings", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/", settings.List)
				r.Put("/", settings.Update)
				r.Post("/test-llm", settings.TestConnection)
				r.Post("/test-notify", settings.TestNotify)
				r.Get("/maintenance", settings.MaintenanceStatus)
				r.Post("/maintenance/run", settings.RunMaintenance)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed.")
	})
	return r
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			log.Errorf("handlers: health check: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
