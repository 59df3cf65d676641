package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careslot/doctor-booking/internal/availability"
)

const (
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventNotificationSent     = "NOTIFICATION_SENT"
)

// Notifier dispatches post-booking notifications. Satisfied by
// notify.BookingNotifier.
type Notifier interface {
	AppointmentConfirmed(ctx context.Context, appt *Appointment, doctor *Doctor, patient *Patient) error
}

// Reconciler converts a confirmed payment event into a persisted appointment
// exactly once. Webhook delivery and the client confirmation poll both race to
// call it, possibly concurrently for the same payment; the appointments unique
// indexes make the insert atomic and duplicate attempts collapse onto the row
// that won.
type Reconciler struct {
	repo     Repository
	notifier Notifier // nil disables notifications
}

func NewReconciler(repo Repository, notifier Notifier) *Reconciler {
	return &Reconciler{
		repo:     repo,
		notifier: notifier,
	}
}

// Reconcile is idempotent on paymentRef. A conflict with a concurrent
// reconciliation is success, never an error: the payment already went through,
// so failing the booking here would be wrong and would make the provider
// retry forever.
func (r *Reconciler) Reconcile(ctx context.Context, paymentRef string, p BookingParams) (*Appointment, error) {
	if paymentRef == "" {
		return nil, errors.New("payment reference is required")
	}

	existing, err := r.repo.GetAppointmentByPaymentRef(ctx, paymentRef)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("lookup by payment ref: %w", err)
	}

	appt := &Appointment{
		ID:         uuid.New(),
		PatientID:  p.PatientID,
		DoctorID:   p.DoctorID,
		Date:       TruncateToDate(p.Date),
		StartTime:  p.StartTime,
		EndTime:    r.resolveEndTime(ctx, p),
		Price:      p.Price,
		Reason:     p.Reason,
		Age:        p.Age,
		Gender:     p.Gender,
		Status:     StatusConfirmed,
		PaymentRef: paymentRef,
	}

	stored, created, err := r.repo.CreateConfirmed(ctx, appt)
	if err != nil {
		return nil, fmt.Errorf("create confirmed appointment: %w", err)
	}

	if created {
		r.logEvent(ctx, stored.ID, EventAppointmentConfirmed, map[string]any{
			"doctor_id":   stored.DoctorID.String(),
			"patient_id":  stored.PatientID.String(),
			"date":        stored.Date.Format("2006-01-02"),
			"start_time":  stored.StartTime,
			"payment_ref": paymentRef,
		})
		r.dispatchNotification(ctx, stored)
	}

	return stored, nil
}

// DispatchPendingNotifications sends confirmation emails for appointments
// whose first dispatch failed. Called periodically by the notify worker.
func (r *Reconciler) DispatchPendingNotifications(ctx context.Context, limit int) error {
	if r.notifier == nil {
		return nil
	}

	pending, err := r.repo.FindUnnotified(ctx, limit)
	if err != nil {
		return fmt.Errorf("find unnotified appointments: %w", err)
	}

	for i := range pending {
		r.dispatchNotification(ctx, &pending[i])
	}

	return nil
}

// resolveEndTime recomputes the slot end from the doctor's current template,
// clipped to its window. The template can have changed or vanished between
// intent creation and confirmation; fall back to the default duration then.
func (r *Reconciler) resolveEndTime(ctx context.Context, p BookingParams) string {
	startMin, err := availability.ParseClock(p.StartTime)
	if err != nil {
		return p.StartTime
	}

	doctor, err := r.repo.GetDoctorByID(ctx, p.DoctorID)
	if err == nil && doctor.Availability != nil {
		if _, _, werr := doctor.Availability.Window(); werr == nil {
			return doctor.Availability.SlotEnd(startMin)
		}
	}

	return availability.FormatClock(startMin + DefaultSlotDurationMin)
}

// dispatchNotification sends the confirmation emails and flips the notified
// flag. Failures are logged and swallowed: the booking already succeeded and
// the notify worker retries later.
func (r *Reconciler) dispatchNotification(ctx context.Context, appt *Appointment) {
	if r.notifier == nil {
		return
	}

	doctor, err := r.repo.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("load doctor for notification")
		return
	}
	patient, err := r.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("load patient for notification")
		return
	}

	if err := r.notifier.AppointmentConfirmed(ctx, appt, doctor, patient); err != nil {
		log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("appointment notification failed")
		return
	}

	if err := r.repo.MarkNotified(ctx, appt.ID); err != nil {
		log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("mark appointment notified")
		return
	}
	appt.Notified = true

	r.logEvent(ctx, appt.ID, EventNotificationSent, map[string]any{
		"patient_email": patient.Email,
		"doctor_email":  doctor.Email,
	})
}

func (r *Reconciler) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := r.repo.InsertEvent(ctx, ev); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Str("appointment_id", appointmentID.String()).Msg("insert event log")
	}
}
