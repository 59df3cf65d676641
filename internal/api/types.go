package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careslot/doctor-booking/internal/availability"
)

type CreateBookingRequest struct {
	DoctorID  string  `json:"doctor_id"`
	PatientID string  `json:"patient_id"`
	Date      string  `json:"date"` // YYYY-MM-DD
	StartTime string  `json:"start_time"`
	Reason    string  `json:"reason"`
	Age       int     `json:"age"`
	Gender    string  `json:"gender"`
	Price     float64 `json:"price,omitempty"`
}

type CreateBookingResponse struct {
	URL string `json:"url"`
}

type ConfirmRequest struct {
	SessionID string `json:"session_id"`
}

type SlotsResponse struct {
	Slots []availability.Slot `json:"slots"`
}

type BookedSlotsResponse struct {
	BookedSlots []string `json:"booked_slots"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Price     float64   `json:"price"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}

type CreateTaxonomyRequest struct {
	Name string `json:"name"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
