package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/carpenike/fitcoach/internal/handlers"
	"github.com/carpenike/fitcoach/internal/metrics"
	"github.com/carpenike/fitcoach/internal/middleware"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/notify"
	"github.com/carpenike/fitcoach/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Warnf("---->> running in [%s] environment", cfg.Environment)
		return withDB(serve)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(db *sql.DB) error {
	if err := bootstrapAdmin(db); err != nil {
		return err
	}

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.New(db)
	sessionManager.Lifetime = cfg.SessionLifetime.Duration
	sessionManager.Cookie.Name = "fitcoach_session"
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Secure = cfg.SecureCookies

	reg := metrics.SetupPrometheus()
	m := metrics.NewManager("fitcoach", "server", reg)
	notifier := notify.NewBroadcaster(db, m)

	loginLimiter := middleware.NewRateLimiter(10, time.Minute, cfg.TrustedProxies...)
	defer loginLimiter.Stop()
	generateLimiter := middleware.NewRateLimiter(models.GetGenerateRateLimit(db), time.Hour, cfg.TrustedProxies...).ByUser()
	generateLimiter.RateFunc = func() int { return models.GetGenerateRateLimit(db) }
	defer generateLimiter.Stop()
	functionLimiter := middleware.NewRateLimiter(models.GetGenerateRateLimit(db), time.Hour, cfg.TrustedProxies...)
	functionLimiter.RateFunc = func() int { return models.GetGenerateRateLimit(db) }
	defer functionLimiter.Stop()

	if models.GetSetting(db, "function.token") == "" && !handlers.FunctionOpen(db) {
		log.Warn("serve: function.token is not set, /functions/generate-plan will refuse requests")
	}

	sched := scheduler.New(db, m)
	sched.Start()
	defer sched.Stop()

	router := handlers.NewRouter(handlers.Deps{
		DB:              db,
		Sessions:        sessionManager,
		Metrics:         m,
		Gatherer:        reg,
		Notifier:        notifier,
		Maintenance:     sched,
		LoginLimiter:    loginLimiter,
		GenerateLimiter: generateLimiter,
		FunctionLimiter: functionLimiter,
	})

	httpServer := &http.Server{
		Handler:     router,
		Addr:        cfg.Addr(),
		ReadTimeout: 15 * time.Second,
		// A generation call may take minutes.
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  time.Minute,
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)
	chServeErr := make(chan error, 1)

	go func() {
		log.Infof(" > server listening on: [%s]", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			chServeErr <- err
		}
	}()

	select {
	case receivedSig := <-chOsInterrupt:
		log.Warnf("signal [%s] received ...", receivedSig)
	case err := <-chServeErr:
		return fmt.Errorf("serve: %w", err)
	}

	gracefulShutdown(httpServer)
	notifier.Wait()
	return nil
}

func gracefulShutdown(httpServer *http.Server) {
	maxWaitDuration := time.Second * 10
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")
}

// bootstrapAdmin creates the initial admin user from environment variables
// if no users exist in the database.
func bootstrapAdmin(db *sql.DB) error {
	count, err := models.CountUsers(db)
	if err != nil {
		return fmt.Errorf("check user count: %w", err)
	}
	if count > 0 {
		return nil
	}

	username := os.Getenv("FITCOACH_ADMIN_USER")
	password := os.Getenv("FITCOACH_ADMIN_PASS")
	email := os.Getenv("FITCOACH_ADMIN_EMAIL")

	if username == "" || password == "" {
		return fmt.Errorf("no users exist and FITCOACH_ADMIN_USER / FITCOACH_ADMIN_PASS env vars are not set")
	}

	user, err := models.CreateUser(db, username, password, email, true)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	log.Infof("bootstrapped admin user: %s (id=%d)", user.Username, user.ID)
	return nil
}
