package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/careslot/doctor-booking/internal/booking"
	redisclient "github.com/careslot/doctor-booking/internal/redis"
	"github.com/careslot/doctor-booking/internal/taxonomy"
)

type RouterConfig struct {
	Service       *booking.Service
	Reconciler    *booking.Reconciler
	Gateway       SessionRetriever
	Taxonomy      taxonomy.Store
	Processed     *redisclient.ProcessedTracker
	PgPool        *pgxpool.Pool
	Redis         *goredis.Client
	WebhookSecret string
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", MetricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/doctors/{id}/slots", listSlotsHandler(cfg.Service))

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", listAppointmentsHandler(cfg.Service))
			r.Post("/", createBookingHandler(cfg.Service))
			r.Get("/booked", bookedSlotsHandler(cfg.Service))
			r.Post("/confirm", confirmBookingHandler(cfg.Gateway, cfg.Reconciler))
		})

		r.Post("/payments/stripe/webhook", stripeWebhookHandler(cfg.WebhookSecret, cfg.Reconciler, cfg.Processed))

		r.Route("/meta", func(r chi.Router) {
			r.Get("/categories", listTaxonomyHandler(cfg.Taxonomy, taxonomy.KindCategory))
			r.Post("/categories", createTaxonomyHandler(cfg.Taxonomy, taxonomy.KindCategory))
			r.Get("/specialities", listTaxonomyHandler(cfg.Taxonomy, taxonomy.KindSpeciality))
			r.Post("/specialities", createTaxonomyHandler(cfg.Taxonomy, taxonomy.KindSpeciality))
		})
	})

	return r
}
