package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careslot/doctor-booking/internal/api"
	"github.com/careslot/doctor-booking/internal/booking"
	"github.com/careslot/doctor-booking/internal/config"
	"github.com/careslot/doctor-booking/internal/db"
	"github.com/careslot/doctor-booking/internal/logging"
	"github.com/careslot/doctor-booking/internal/notify"
	"github.com/careslot/doctor-booking/internal/payments"
	redisclient "github.com/careslot/doctor-booking/internal/redis"
	"github.com/careslot/doctor-booking/internal/taxonomy"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init("api-server", cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	cache := redisclient.NewCache(rdb)
	processed := redisclient.NewProcessedTracker(cache, cfg.WebhookDedupTTL)

	stripe := payments.NewStripeClient(cfg.StripeSecretKey)
	if cfg.StripeSecretKey == "" {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, running payment gateway in dry-run mode")
		stripe = stripe.WithDryRun(true)
	}

	var sender notify.EmailSender = notify.NewStubEmailSender()
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
	}); sg != nil {
		sender = sg
	}

	repo := booking.NewPgRepository(pgPool)
	svc := booking.NewService(repo, stripe, cfg)
	reconciler := booking.NewReconciler(repo, notify.NewBookingNotifier(sender))
	taxStore := taxonomy.NewCachedStore(taxonomy.NewPgStore(pgPool), cache, cfg.TaxonomyCacheTTL)

	router := api.NewRouter(api.RouterConfig{
		Service:       svc,
		Reconciler:    reconciler,
		Gateway:       stripe,
		Taxonomy:      taxStore,
		Processed:     processed,
		PgPool:        pgPool,
		Redis:         rdb,
		WebhookSecret: cfg.StripeWebhookSecret,
		Env:           cfg.Env,
		Version:       version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
}
