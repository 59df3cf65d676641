package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// ListFilter narrows appointment listings. Zero values mean "no filter".
type ListFilter struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      time.Time
}

// Repository contains all DB interactions needed by the booking service and
// the reconciler.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// Slot computation and conflict checks. Both ignore cancelled rows.
	ListBookedStartTimes(ctx context.Context, doctorID uuid.UUID, date time.Time) (map[string]bool, error)
	GetActiveAppointment(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string) (*Appointment, error)

	// Reconciliation. CreateConfirmed must be a single atomic insert whose
	// duplicate-key failure is converted to a fetch of the row that won;
	// created reports whether this call inserted the row.
	GetAppointmentByPaymentRef(ctx context.Context, ref string) (*Appointment, error)
	CreateConfirmed(ctx context.Context, appt *Appointment) (stored *Appointment, created bool, err error)

	ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error)

	// Notification dispatch.
	FindUnnotified(ctx context.Context, limit int) ([]Appointment, error)
	MarkNotified(ctx context.Context, id uuid.UUID) error

	// Event logging.
	InsertEvent(ctx context.Context, ev EventLog) error
}
