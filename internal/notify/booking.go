package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/careslot/doctor-booking/internal/booking"
)

// BookingNotifier emails both parties when an appointment is confirmed. It
// implements booking.Notifier.
type BookingNotifier struct {
	sender EmailSender
}

func NewBookingNotifier(sender EmailSender) *BookingNotifier {
	return &BookingNotifier{sender: sender}
}

func (n *BookingNotifier) AppointmentConfirmed(ctx context.Context, appt *booking.Appointment, doctor *booking.Doctor, patient *booking.Patient) error {
	date := appt.Date.Format("Monday, 2 January 2006")

	patientMsg := EmailMessage{
		To:      patient.Email,
		ToName:  patient.Name,
		Subject: "Your appointment is confirmed",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour appointment with Dr. %s on %s at %s is confirmed.\nReason: %s\n\nSee you there.",
			patient.Name, doctor.Name, date, appt.StartTime, appt.Reason,
		),
	}

	doctorMsg := EmailMessage{
		To:      doctor.Email,
		ToName:  doctor.Name,
		Subject: fmt.Sprintf("New appointment on %s at %s", date, appt.StartTime),
		Body: fmt.Sprintf(
			"Dr. %s,\n\nA new appointment was booked by %s for %s at %s.\nReason: %s",
			doctor.Name, patient.Name, date, appt.StartTime, appt.Reason,
		),
	}

	return errors.Join(
		n.sender.Send(ctx, patientMsg),
		n.sender.Send(ctx, doctorMsg),
	)
}
