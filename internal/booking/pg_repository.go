package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careslot/doctor-booking/internal/availability"
)

const uniqueViolationCode = "23505"

// DB is the subset of pgxpool.Pool the repository uses. Tests inject a
// pgxmock pool through it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

// NewPgRepositoryWithDB allows injecting mocks for tests.
func NewPgRepositoryWithDB(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string
	var days []string
	var startTime, endTime *string
	var slotMinutes, slotsPerDay *int

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&specialty,
		&d.ConsultationFee,
		&days,
		&startTime,
		&endTime,
		&slotMinutes,
		&slotsPerDay,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	if startTime != nil && endTime != nil && slotMinutes != nil {
		tmpl := availability.Template{
			Days:            days,
			StartTime:       *startTime,
			EndTime:         *endTime,
			SlotDurationMin: *slotMinutes,
		}
		if slotsPerDay != nil {
			tmpl.SlotsPerDay = *slotsPerDay
		}
		d.Availability = &tmpl
	}

	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.Price,
		&a.Reason,
		&a.Age,
		&a.Gender,
		&a.Status,
		&a.PaymentRef,
		&a.Notified,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

const appointmentColumns = `id, patient_id, doctor_id, date, start_time, end_time, price, reason, age, gender, status, payment_ref, notified, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, specialty, consultation_fee,
		       avail_days, avail_start_time, avail_end_time, avail_slot_minutes, avail_slots_per_day,
		       created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) ListBookedStartTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT start_time
		FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND status <> 'cancelled'
	`, doctorID, TruncateToDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	booked := make(map[string]bool)
	for rows.Next() {
		var startTime string
		if err := rows.Scan(&startTime); err != nil {
			return nil, err
		}
		booked[startTime] = true
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return booked, nil
}

func (r *PgRepository) GetActiveAppointment(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND start_time = $3 AND status <> 'cancelled'
	`, doctorID, TruncateToDate(date), startTime)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByPaymentRef(ctx context.Context, ref string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE payment_ref = $1
	`, ref)
	return scanAppointment(row)
}

// CreateConfirmed inserts a confirmed appointment. When the insert loses to a
// concurrent reconciliation (unique violation on either the slot index or the
// payment_ref index) the row that won is fetched and returned instead; the
// caller never sees a conflict error here.
func (r *PgRepository) CreateConfirmed(ctx context.Context, appt *Appointment) (*Appointment, bool, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, date, start_time, end_time, price, reason, age, gender, status, payment_ref, notified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'confirmed', $11, false, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PatientID, appt.DoctorID, TruncateToDate(appt.Date), appt.StartTime, appt.EndTime,
		appt.Price, appt.Reason, appt.Age, appt.Gender, appt.PaymentRef)

	stored, err := scanAppointment(row)
	if err == nil {
		return stored, true, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return nil, false, fmt.Errorf("insert confirmed appointment: %w", err)
	}

	// Lost the race. Prefer the payment_ref lookup: a retry of the same
	// payment must map back to its own row before the natural key is tried.
	existing, lookupErr := r.GetAppointmentByPaymentRef(ctx, appt.PaymentRef)
	if lookupErr == nil {
		return existing, false, nil
	}
	if !errors.Is(lookupErr, ErrAppointmentNotFound) {
		return nil, false, fmt.Errorf("lookup after duplicate insert: %w", lookupErr)
	}

	existing, lookupErr = r.GetActiveAppointment(ctx, appt.DoctorID, appt.Date, appt.StartTime)
	if lookupErr != nil {
		return nil, false, fmt.Errorf("lookup after duplicate insert: %w", lookupErr)
	}
	return existing, false, nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []any{}
	n := 0

	if filter.DoctorID != uuid.Nil {
		n++
		query += fmt.Sprintf(" AND doctor_id = $%d", n)
		args = append(args, filter.DoctorID)
	}
	if filter.PatientID != uuid.Nil {
		n++
		query += fmt.Sprintf(" AND patient_id = $%d", n)
		args = append(args, filter.PatientID)
	}
	if !filter.Date.IsZero() {
		n++
		query += fmt.Sprintf(" AND date = $%d", n)
		args = append(args, TruncateToDate(filter.Date))
	}

	query += " ORDER BY date, start_time"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) FindUnnotified(ctx context.Context, limit int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed' AND notified = false
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) MarkNotified(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET notified = true,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
