package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/careslot/doctor-booking/internal/booking"
	"github.com/careslot/doctor-booking/internal/payments"
	redisclient "github.com/careslot/doctor-booking/internal/redis"
	"github.com/careslot/doctor-booking/internal/taxonomy"
)

const dateLayout = "2006-01-02"

// SessionRetriever is the slice of the payment gateway the confirmation poll
// needs. Satisfied by payments.StripeClient.
type SessionRetriever interface {
	GetCheckoutSession(ctx context.Context, id string) (*payments.CheckoutSession, error)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.Local)
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      a.Date.Format(dateLayout),
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Price:     a.Price,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
	}
}

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		date, err := parseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.ListSlots(r.Context(), doctorID, date, time.Now())
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{Slots: slots})
	}
}

func bookedSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(r.URL.Query().Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		date, err := parseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		times, err := svc.ListBookedSlots(r.Context(), doctorID, date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BookedSlotsResponse{BookedSlots: times})
	}
}

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		url, err := svc.InitiateBooking(r.Context(), booking.BookingParams{
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      date,
			StartTime: req.StartTime,
			Reason:    req.Reason,
			Age:       req.Age,
			Gender:    req.Gender,
			Price:     req.Price,
		}, time.Now())
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CreateBookingResponse{URL: url})
	}
}

func confirmBookingHandler(gateway SessionRetriever, rec *booking.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "session_id is required")
			return
		}

		session, err := gateway.GetCheckoutSession(r.Context(), req.SessionID)
		if err != nil {
			log.Error().Err(err).Str("session_id", req.SessionID).Msg("retrieve checkout session")
			writeError(w, http.StatusBadGateway, "payment_provider_error", "could not verify the payment session")
			return
		}

		if session.PaymentStatus != "paid" {
			writeError(w, http.StatusConflict, "payment_not_completed", "the payment has not completed")
			return
		}

		params, err := booking.ParamsFromMetadata(session.Metadata)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_metadata", err.Error())
			return
		}

		appt, err := rec.Reconcile(r.Context(), session.PaymentRef(), params)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// stripeWebhookHandler always acknowledges events it cannot act on (wrong
// type, missing metadata) so the provider stops retrying, but returns 500
// when reconciliation itself fails so the event is redelivered.
func stripeWebhookHandler(secret string, rec *booking.Reconciler, processed *redisclient.ProcessedTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "could not read request body")
			return
		}

		if !payments.VerifySignature(secret, payload, r.Header.Get("Stripe-Signature")) {
			writeError(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
			return
		}

		evt, err := payments.ParseEvent(payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
			return
		}

		if evt.Type != payments.EventCheckoutCompleted {
			writeJSON(w, http.StatusOK, WebhookAck{Received: true})
			return
		}

		if processed != nil {
			if done, err := processed.AlreadyProcessed(r.Context(), "stripe", evt.ID); err != nil {
				log.Warn().Err(err).Str("event_id", evt.ID).Msg("webhook dedup lookup failed")
			} else if done {
				writeJSON(w, http.StatusOK, WebhookAck{Received: true})
				return
			}
		}

		session := evt.Data.Object
		params, err := booking.ParamsFromMetadata(session.Metadata)
		if err != nil {
			// Can't progress the workflow; acknowledge to stop retries.
			log.Warn().Err(err).Str("event_id", evt.ID).Msg("webhook event missing booking metadata")
			writeJSON(w, http.StatusOK, WebhookAck{Received: true})
			return
		}

		if _, err := rec.Reconcile(r.Context(), session.PaymentRef(), params); err != nil {
			log.Error().Err(err).Str("event_id", evt.ID).Msg("webhook reconciliation failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "reconciliation failed")
			return
		}

		if processed != nil {
			if err := processed.MarkProcessed(r.Context(), "stripe", evt.ID); err != nil {
				log.Warn().Err(err).Str("event_id", evt.ID).Msg("webhook dedup mark failed")
			}
		}

		writeJSON(w, http.StatusOK, WebhookAck{Received: true})
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter booking.ListFilter

		if s := r.URL.Query().Get("doctor_id"); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			filter.DoctorID = id
		}
		if s := r.URL.Query().Get("patient_id"); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			filter.PatientID = id
		}
		if s := r.URL.Query().Get("date"); s != "" {
			date, err := parseDate(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			filter.Date = date
		}

		appointments, err := svc.ListAppointments(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(appointments))}
		for i := range appointments {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appointments[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func listTaxonomyHandler(store taxonomy.Store, kind taxonomy.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := store.List(r.Context(), kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		if items == nil {
			items = []taxonomy.Item{}
		}
		writeJSON(w, http.StatusOK, map[string][]taxonomy.Item{string(kind): items})
	}
}

func createTaxonomyHandler(store taxonomy.Store, kind taxonomy.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTaxonomyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "name is required")
			return
		}

		item, err := store.Create(r.Context(), kind, req.Name)
		if err != nil {
			if errors.Is(err, taxonomy.ErrDuplicateName) {
				writeError(w, http.StatusConflict, "duplicate_name", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, item)
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "missing_fields", err.Error())
	case errors.Is(err, booking.ErrUnconfigured):
		writeError(w, http.StatusBadRequest, "availability_not_configured", err.Error())
	case errors.Is(err, booking.ErrInvalidTemplate):
		writeError(w, http.StatusBadRequest, "availability_invalid", err.Error())
	case errors.Is(err, booking.ErrDayNotAvailable):
		writeError(w, http.StatusBadRequest, "day_not_available", err.Error())
	case errors.Is(err, booking.ErrOutsideWindow):
		writeError(w, http.StatusBadRequest, "slot_outside_window", err.Error())
	case errors.Is(err, booking.ErrSlotMisaligned):
		writeError(w, http.StatusBadRequest, "slot_misaligned", err.Error())
	case errors.Is(err, booking.ErrSlotInPast):
		writeError(w, http.StatusBadRequest, "slot_in_past", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, booking.ErrPaymentIntent):
		writeError(w, http.StatusBadGateway, "payment_provider_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
