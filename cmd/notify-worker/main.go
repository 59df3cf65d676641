package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/careslot/doctor-booking/internal/booking"
	"github.com/careslot/doctor-booking/internal/config"
	"github.com/careslot/doctor-booking/internal/db"
	"github.com/careslot/doctor-booking/internal/logging"
	"github.com/careslot/doctor-booking/internal/notify"
)

// How many unnotified appointments a single run picks up.
const batchSize = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logging.Init("notify-worker", cfg.Env)
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("notify-worker starting up")

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

	var sender notify.EmailSender = notify.NewStubEmailSender()
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
	}); sg != nil {
		sender = sg
	}

	repo := booking.NewPgRepository(pgPool)
	reconciler := booking.NewReconciler(repo, notify.NewBookingNotifier(sender))

	// Run once at startup
	runOnce(rootCtx, reconciler)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping notify worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, reconciler)
		}
	}
}

func runOnce(ctx context.Context, rec *booking.Reconciler) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := rec.DispatchPendingNotifications(runCtx, batchSize); err != nil {
		log.Error().Err(err).Msg("notification run error")
		return
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("notification run complete")
}
