package booking

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/doctor-booking/internal/availability"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// DefaultSlotDurationMin is used when an appointment's end time must be
// derived but the doctor's template has been removed mid-flight.
const DefaultSlotDurationMin = 30

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Specialty       *string
	ConsultationFee float64
	Availability    *availability.Template // nil until the doctor configures it
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	Date       time.Time // truncated to local midnight
	StartTime  string    // HH:MM
	EndTime    string    // HH:MM
	Price      float64
	Reason     string
	Age        int
	Gender     string
	Status     AppointmentStatus
	PaymentRef string // idempotency key correlating to the checkout session
	Notified   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// BookingParams is everything the reconciler needs to create an appointment.
// Between intent creation and payment confirmation the only persisted record of
// the request is this bundle, echoed back as checkout session metadata.
type BookingParams struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime string
	Reason    string
	Age       int
	Gender    string
	Price     float64
}

const metadataDateLayout = "2006-01-02"

// Metadata flattens the params into the string map carried on the checkout
// session.
func (p BookingParams) Metadata() map[string]string {
	return map[string]string{
		"patient_id": p.PatientID.String(),
		"doctor_id":  p.DoctorID.String(),
		"date":       p.Date.Format(metadataDateLayout),
		"start_time": p.StartTime,
		"reason":     p.Reason,
		"age":        strconv.Itoa(p.Age),
		"gender":     p.Gender,
		"price":      strconv.FormatFloat(p.Price, 'f', 2, 64),
	}
}

// ParamsFromMetadata reverses Metadata. Dates are interpreted in server-local
// time, matching how booking requests are parsed.
func ParamsFromMetadata(md map[string]string) (BookingParams, error) {
	var p BookingParams

	patientID, err := uuid.Parse(md["patient_id"])
	if err != nil {
		return p, fmt.Errorf("metadata patient_id: %w", err)
	}
	doctorID, err := uuid.Parse(md["doctor_id"])
	if err != nil {
		return p, fmt.Errorf("metadata doctor_id: %w", err)
	}
	date, err := time.ParseInLocation(metadataDateLayout, md["date"], time.Local)
	if err != nil {
		return p, fmt.Errorf("metadata date: %w", err)
	}
	if md["start_time"] == "" {
		return p, fmt.Errorf("metadata start_time missing")
	}
	age, err := strconv.Atoi(md["age"])
	if err != nil {
		return p, fmt.Errorf("metadata age: %w", err)
	}
	price, err := strconv.ParseFloat(md["price"], 64)
	if err != nil {
		return p, fmt.Errorf("metadata price: %w", err)
	}

	p = BookingParams{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		StartTime: md["start_time"],
		Reason:    md["reason"],
		Age:       age,
		Gender:    md["gender"],
		Price:     price,
	}
	return p, nil
}

// ValidGender reports whether g is one of the accepted gender values.
func ValidGender(g string) bool {
	switch g {
	case "male", "female", "other":
		return true
	}
	return false
}

// TruncateToDate drops the time-of-day component in server-local terms.
func TruncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
