// simulate drives the reconciliation path the way a payment provider does:
// it fabricates signed checkout.session.completed events for real doctors,
// patients and slots, delivers each event several times concurrently, and
// then checks Postgres still holds exactly one appointment per payment.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/careslot/doctor-booking/internal/availability"
	"github.com/careslot/doctor-booking/internal/booking"
	"github.com/careslot/doctor-booking/internal/config"
	"github.com/careslot/doctor-booking/internal/db"
	"github.com/careslot/doctor-booking/internal/logging"
	"github.com/careslot/doctor-booking/internal/payments"
)

type SimConfig struct {
	APIBaseURL    string
	Bookings      int // distinct payments to reconcile
	Deliveries    int // concurrent deliveries per payment
	WebhookSecret string
	PostgresDSN   string
}

type target struct {
	doctor  *booking.Doctor
	patient *booking.Patient
	date    time.Time
	slot    availability.Slot
}

type counters struct {
	delivered int64
	acked     int64
	failed    int64
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logging.Init("simulate", cfg.Env)

	sim := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Bookings:      getInt("SIM_BOOKINGS", 50),
		Deliveries:    getInt("SIM_DELIVERIES", 4),
		WebhookSecret: cfg.StripeWebhookSecret,
		PostgresDSN:   cfg.PostgresDSN,
	}
	if sim.WebhookSecret == "" {
		log.Fatal().Msg("STRIPE_WEBHOOK_SECRET is required to sign simulated events")
	}

	log.Info().
		Int("bookings", sim.Bookings).
		Int("deliveries", sim.Deliveries).
		Str("api", sim.APIBaseURL).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, sim.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	repo := booking.NewPgRepository(pgPool)

	targets, err := loadTargets(ctx, pgPool, repo, sim.Bookings)
	if err != nil {
		log.Fatal().Err(err).Msg("load simulation targets")
	}
	log.Info().Int("targets", len(targets)).Msg("loaded bookable slots")

	client := &http.Client{Timeout: 10 * time.Second}
	var c counters
	var wg sync.WaitGroup

	for i, t := range targets {
		paymentRef := fmt.Sprintf("pi_sim_%s", uuid.New().String())
		payload, err := buildEvent(t, paymentRef)
		if err != nil {
			log.Fatal().Err(err).Msg("build event payload")
		}
		signature := payments.SignPayload(sim.WebhookSecret, payload, time.Now())

		for d := 0; d < sim.Deliveries; d++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				deliver(ctx, client, sim.APIBaseURL, payload, signature, &c)
			}()
		}
		wg.Wait()

		if err := verifyExactlyOne(ctx, pgPool, t, paymentRef); err != nil {
			log.Fatal().Err(err).Int("booking", i).Msg("uniqueness check failed")
		}
	}

	fmt.Println()
	fmt.Println("SIMULATION REPORT")
	fmt.Printf("  Bookings:   %d\n", len(targets))
	fmt.Printf("  Deliveries: %d\n", atomic.LoadInt64(&c.delivered))
	fmt.Printf("  Acked 200:  %d\n", atomic.LoadInt64(&c.acked))
	fmt.Printf("  Failed:     %d\n", atomic.LoadInt64(&c.failed))
	fmt.Println("  Uniqueness: every payment produced exactly one appointment")
}

// loadTargets pairs random patients with doctors that have open slots in the
// next two weeks.
func loadTargets(ctx context.Context, pool *pgxpool.Pool, repo booking.Repository, count int) ([]target, error) {
	doctorIDs, err := loadIDs(ctx, pool, `SELECT id FROM doctors WHERE avail_days IS NOT NULL LIMIT 200`)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	patientIDs, err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT 2000`)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	if len(doctorIDs) == 0 || len(patientIDs) == 0 {
		return nil, fmt.Errorf("no doctors or patients seeded")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now()

	var targets []target
	for attempt := 0; len(targets) < count && attempt < count*20; attempt++ {
		doctor, err := repo.GetDoctorByID(ctx, doctorIDs[rng.Intn(len(doctorIDs))])
		if err != nil || doctor.Availability == nil {
			continue
		}
		patient, err := repo.GetPatientByID(ctx, patientIDs[rng.Intn(len(patientIDs))])
		if err != nil {
			continue
		}

		// Walk forward until the doctor works that day and a slot is open.
		for offset := 1; offset <= 14; offset++ {
			date := booking.TruncateToDate(now.AddDate(0, 0, offset))
			booked, err := repo.ListBookedStartTimes(ctx, doctor.ID, date)
			if err != nil {
				break
			}
			slots, err := availability.ComputeSlots(*doctor.Availability, booked, date, now)
			if err != nil || len(slots) == 0 {
				continue
			}
			targets = append(targets, target{
				doctor:  doctor,
				patient: patient,
				date:    date,
				slot:    slots[rng.Intn(len(slots))],
			})
			break
		}
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("could not find any bookable slots")
	}
	return targets, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func buildEvent(t target, paymentRef string) ([]byte, error) {
	params := booking.BookingParams{
		PatientID: t.patient.ID,
		DoctorID:  t.doctor.ID,
		Date:      t.date,
		StartTime: t.slot.StartTime,
		Reason:    "Simulated consultation",
		Age:       35,
		Gender:    "other",
		Price:     t.doctor.ConsultationFee,
	}

	evt := map[string]any{
		"id":      "evt_sim_" + uuid.New().String(),
		"type":    payments.EventCheckoutCompleted,
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_sim_" + uuid.New().String(),
				"payment_intent": paymentRef,
				"payment_status": "paid",
				"metadata":       params.Metadata(),
			},
		},
	}
	return json.Marshal(evt)
}

func deliver(ctx context.Context, client *http.Client, baseURL string, payload []byte, signature string, c *counters) {
	atomic.AddInt64(&c.delivered, 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/api/payments/stripe/webhook", bytes.NewReader(payload))
	if err != nil {
		atomic.AddInt64(&c.failed, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddInt64(&c.failed, 1)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		atomic.AddInt64(&c.acked, 1)
	} else {
		atomic.AddInt64(&c.failed, 1)
	}
}

func verifyExactlyOne(ctx context.Context, pool *pgxpool.Pool, t target, paymentRef string) error {
	var byRef, bySlot int
	err := pool.QueryRow(ctx,
		`SELECT count(*) FROM appointments WHERE payment_ref = $1`, paymentRef).Scan(&byRef)
	if err != nil {
		return err
	}
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND start_time = $3 AND status <> 'cancelled'
	`, t.doctor.ID, t.date, t.slot.StartTime).Scan(&bySlot)
	if err != nil {
		return err
	}

	if byRef != 1 {
		return fmt.Errorf("expected 1 appointment for payment %s, found %d", paymentRef, byRef)
	}
	if bySlot != 1 {
		return fmt.Errorf("expected 1 live appointment for slot %s %s, found %d",
			t.date.Format("2006-01-02"), t.slot.StartTime, bySlot)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
