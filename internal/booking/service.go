package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careslot/doctor-booking/internal/availability"
	"github.com/careslot/doctor-booking/internal/config"
	"github.com/careslot/doctor-booking/internal/payments"
)

var (
	ErrMissingFields = errors.New("missing or invalid booking fields")
	ErrPaymentIntent = errors.New("payment provider rejected the checkout session")
)

// CheckoutGateway creates payment provider checkout sessions. Satisfied by
// payments.StripeClient.
type CheckoutGateway interface {
	CreateCheckoutSession(ctx context.Context, p payments.CheckoutParams) (*payments.CheckoutSession, error)
}

type Service struct {
	repo      Repository
	validator *Validator
	gateway   CheckoutGateway
	cfg       config.Config
}

func NewService(repo Repository, gateway CheckoutGateway, cfg config.Config) *Service {
	return &Service{
		repo:      repo,
		validator: NewValidator(repo),
		gateway:   gateway,
		cfg:       cfg,
	}
}

// ListSlots computes the bookable slots for a doctor on a date: template grid
// minus past times (today only) minus non-cancelled bookings.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, date, now time.Time) ([]availability.Slot, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	if doctor.Availability == nil {
		return nil, ErrUnconfigured
	}

	booked, err := s.repo.ListBookedStartTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}

	slots, err := availability.ComputeSlots(*doctor.Availability, booked, date, now)
	if err != nil {
		if errors.Is(err, availability.ErrInvalidWindow) {
			return nil, ErrInvalidTemplate
		}
		return nil, err
	}
	return slots, nil
}

// ListBookedSlots returns the occupied HH:MM start times for a doctor/date,
// sorted ascending.
func (s *Service) ListBookedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	booked, err := s.repo.ListBookedStartTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}

	times := make([]string, 0, len(booked))
	for t := range booked {
		times = append(times, t)
	}
	sort.Strings(times)
	return times, nil
}

// InitiateBooking validates a booking request and opens a checkout session
// carrying the full booking params as metadata. Nothing is persisted here:
// the appointment is created by the reconciler once payment confirms, so an
// abandoned checkout leaves no state behind.
func (s *Service) InitiateBooking(ctx context.Context, p BookingParams, now time.Time) (string, error) {
	if p.Reason == "" || p.Age <= 0 || p.Age > 150 || !ValidGender(p.Gender) {
		return "", ErrMissingFields
	}

	if _, err := s.repo.GetPatientByID(ctx, p.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return "", err
		}
		return "", fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.validator.Validate(ctx, p.DoctorID, p.Date, p.StartTime, now)
	if err != nil {
		return "", err
	}

	price := p.Price
	if price <= 0 {
		price = doctor.ConsultationFee
	}
	p.Price = price
	p.Date = TruncateToDate(p.Date)

	amountCents := int64(math.Round(price * 100))
	if amountCents <= 0 {
		// Explicit floor policy; see MIN_CHARGE_CENTS.
		log.Warn().
			Str("doctor_id", p.DoctorID.String()).
			Float64("computed_price", price).
			Int64("min_charge_cents", s.cfg.MinChargeCents).
			Msg("non-positive booking price, charging configured minimum")
		amountCents = s.cfg.MinChargeCents
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutParams{
		AmountCents: amountCents,
		Currency:    s.cfg.StripeCurrency,
		Description: fmt.Sprintf("Consultation with Dr. %s", doctor.Name),
		Metadata:    p.Metadata(),
		SuccessURL:  s.cfg.FrontendURL + "/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.cfg.FrontendURL + "/payment-cancelled",
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPaymentIntent, err)
	}

	return session.URL, nil
}

// ListAppointments returns appointments matching the filter.
func (s *Service) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	appointments, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}
