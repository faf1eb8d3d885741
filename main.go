package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"railgate.app/api/billing"
	"railgate.app/api/handlers"
	"railgate.app/api/internal/access"
	"railgate.app/api/internal/config"
	"railgate.app/api/internal/email"
	"railgate.app/api/internal/logger"
	"railgate.app/api/internal/ratelimit"
	"railgate.app/api/internal/scoring"
	"railgate.app/api/internal/version"
	"railgate.app/api/storage"
)

func main() {
	version.Version = version.Resolve("VERSION")

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %s", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	defer logger.Sync()

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Release:          version.Version,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", map[string]interface{}{
			"error": err.Error(),
			"path":  cfg.DatabasePath,
		})
		os.Exit(1)
	}
	defer store.Close()

	server := handlers.NewHttpServer(buildDeps(cfg, store))

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	logger.Info("Railgate API starting", map[string]interface{}{
		"version":  version.Version,
		"port":     cfg.Port,
		"dev_mode": cfg.DevMode,
	})
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func buildDeps(cfg *config.Config, store storage.Storage) handlers.Deps {
	deps := handlers.Deps{
		Config:  cfg,
		Storage: store,
		Gate: access.NewGate(store, access.Options{
			Secret:    []byte(cfg.TokenSecret),
			TTL:       cfg.TokenTTL,
			SingleUse: cfg.TokenSingleUse,
		}),
		Scorer:  scoring.NewScorer(cfg.ScoreCeiling),
		Version: version.Version,
	}

	if cfg.StripeEnabled() {
		checkout, err := billing.NewStripeCheckout(cfg.StripeSecret, cfg.StripePriceID, cfg.SuccessURL(), cfg.CancelURL())
		if err != nil {
			logger.Error("Stripe checkout disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			deps.Checkout = checkout
		}
	} else {
		logger.Warn("Stripe not configured, checkout disabled")
	}

	mailer, err := email.FromConfig(cfg)
	if err != nil {
		logger.Error("Outgoing mail disabled", map[string]interface{}{
			"error": err.Error(),
		})
		mailer = email.Disabled
	}
	deps.Mailer = mailer

	if cfg.RateLimitPerMinute > 0 {
		deps.Limiter = ratelimit.New(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}

	return deps
}
