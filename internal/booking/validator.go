package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/doctor-booking/internal/availability"
)

// Rejection reasons, ordered from least to most specific. Validation
// short-circuits so the caller always sees the most actionable one.
var (
	ErrUnconfigured    = errors.New("doctor availability is not configured")
	ErrInvalidTemplate = errors.New("doctor availability is invalid")
	ErrDayNotAvailable = errors.New("doctor is not available on the requested day")
	ErrOutsideWindow   = errors.New("slot is outside the doctor's availability")
	ErrSlotMisaligned  = errors.New("slot does not match the doctor's schedule")
	ErrSlotInPast      = errors.New("slot has already passed")
	ErrSlotTaken       = errors.New("slot is already booked")
)

// Validator checks a booking request against the doctor's template and the
// already-booked slots. It is a pure read-and-check: the uniqueness constraint
// re-enforces the conflict rule at commit time, because another booking can
// land between validation and payment confirmation.
type Validator struct {
	repo Repository
}

func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo}
}

// Validate returns the doctor on success so callers can reuse the row (fee,
// name) without a second lookup.
func (v *Validator) Validate(ctx context.Context, doctorID uuid.UUID, date time.Time, startTime string, now time.Time) (*Doctor, error) {
	doctor, err := v.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	tmpl := doctor.Availability
	if tmpl == nil {
		return nil, ErrUnconfigured
	}

	if !tmpl.OffersDay(date.Weekday().String()) {
		return nil, ErrDayNotAvailable
	}

	windowStart, windowEnd, err := tmpl.Window()
	if err != nil {
		return nil, ErrInvalidTemplate
	}

	requested, err := availability.ParseClock(startTime)
	if err != nil {
		return nil, ErrSlotMisaligned
	}
	if requested < windowStart || requested >= windowEnd {
		return nil, ErrOutsideWindow
	}

	grid, err := tmpl.Grid()
	if err != nil {
		return nil, ErrInvalidTemplate
	}
	onGrid := false
	for _, g := range grid {
		if g == requested {
			onGrid = true
			break
		}
	}
	if !onGrid {
		return nil, ErrSlotMisaligned
	}

	if sameLocalDate(date, now) && requested <= now.Hour()*60+now.Minute() {
		return nil, ErrSlotInPast
	}

	_, err = v.repo.GetActiveAppointment(ctx, doctorID, date, startTime)
	if err == nil {
		return nil, ErrSlotTaken
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("check existing appointment: %w", err)
	}

	return doctor, nil
}

func sameLocalDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
