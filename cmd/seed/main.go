package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/careslot/doctor-booking/internal/config"
	"github.com/careslot/doctor-booking/internal/db"
	"github.com/careslot/doctor-booking/internal/logging"
)

var specialities = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var categories = []string{
	"In-person consultation",
	"Video consultation",
	"Follow-up",
	"Annual checkup",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logging.Init("seed", cfg.Env)
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	bg := context.Background()
	if err := seedTaxonomy(bg, pool); err != nil {
		log.Fatal().Err(err).Msg("seed taxonomy")
	}
	if err := seedDoctors(bg, pool, 100); err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(bg, pool, 5000); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

func seedTaxonomy(ctx context.Context, pool *pgxpool.Pool) error {
	for _, name := range specialities {
		if _, err := pool.Exec(ctx, `
			INSERT INTO specialities (name) VALUES ($1) ON CONFLICT (name) DO NOTHING
		`, name); err != nil {
			return err
		}
	}
	for _, name := range categories {
		if _, err := pool.Exec(ctx, `
			INSERT INTO categories (name) VALUES ($1) ON CONFLICT (name) DO NOTHING
		`, name); err != nil {
			return err
		}
	}
	log.Info().Msg("taxonomy seeded")
	return nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding doctors")

	// Rotating weekday mixes so slot queries hit both available and
	// unavailable days.
	dayMixes := [][]string{
		{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		{"Monday", "Wednesday", "Friday"},
		{"Tuesday", "Thursday"},
		{"Saturday", "Sunday"},
	}
	windows := []struct {
		start, end string
		slotMin    int
	}{
		{"09:00", "17:00", 30},
		{"08:00", "12:00", 20},
		{"10:00", "18:00", 60},
		{"13:00", "17:30", 45},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		email := fmt.Sprintf("dr.%d.%s", i, gofakeit.Email())
		spec := specialities[gofakeit.Number(0, len(specialities)-1)]
		fee := float64(gofakeit.Number(40, 250))
		days := dayMixes[i%len(dayMixes)]
		win := windows[i%len(windows)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, email, specialty, consultation_fee,
			                     avail_days, avail_start_time, avail_end_time, avail_slot_minutes,
			                     created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		`, id, name, email, spec, fee, days, win.start, win.end, win.slotMin)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := fmt.Sprintf("%d.%s", i, gofakeit.Email())

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("seeded", end).Int("total", count).Msg("patients progress")
	}

	log.Info().Msg("patients seeded")
	return nil
}
