package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careslot/doctor-booking/internal/config"
	"github.com/careslot/doctor-booking/internal/payments"
)

// fakeGateway captures the checkout params it is called with.
type fakeGateway struct {
	lastParams *payments.CheckoutParams
	err        error
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, p payments.CheckoutParams) (*payments.CheckoutSession, error) {
	g.lastParams = &p
	if g.err != nil {
		return nil, g.err
	}
	return &payments.CheckoutSession{
		ID:  "cs_test_123",
		URL: "https://checkout.example.com/cs_test_123",
	}, nil
}

func serviceFixture(t *testing.T) (*fakeRepo, *fakeGateway, *Service, BookingParams) {
	t.Helper()

	repo := newFakeRepo()
	doctor := repo.addDoctor(&Doctor{Name: "Stephen Strange", Email: "strange@example.com", Availability: weekdayTemplate(), ConsultationFee: 150})
	patient := repo.addPatient(&Patient{Name: "Ada Lovelace", Email: "ada@example.com"})

	gateway := &fakeGateway{}
	svc := NewService(repo, gateway, config.Config{
		FrontendURL:    "https://app.example.com",
		StripeCurrency: "usd",
		MinChargeCents: 100,
	})

	params := BookingParams{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		Date:      testMonday,
		StartTime: "09:00",
		Reason:    "Migraines",
		Age:       38,
		Gender:    "female",
	}
	return repo, gateway, svc, params
}

func TestInitiateBookingOpensCheckout(t *testing.T) {
	repo, gateway, svc, params := serviceFixture(t)

	url, err := svc.InitiateBooking(context.Background(), params, testNow)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/cs_test_123", url)

	require.NotNil(t, gateway.lastParams)
	assert.Equal(t, int64(15000), gateway.lastParams.AmountCents, "doctor fee used when request omits price")
	assert.Equal(t, "usd", gateway.lastParams.Currency)
	assert.Contains(t, gateway.lastParams.SuccessURL, "{CHECKOUT_SESSION_ID}")

	// Nothing persists until payment confirms.
	assert.Equal(t, 0, repo.countAppointments())
}

func TestInitiateBookingMetadataRoundTrips(t *testing.T) {
	_, gateway, svc, params := serviceFixture(t)

	_, err := svc.InitiateBooking(context.Background(), params, testNow)
	require.NoError(t, err)

	got, err := ParamsFromMetadata(gateway.lastParams.Metadata)
	require.NoError(t, err)
	assert.Equal(t, params.PatientID, got.PatientID)
	assert.Equal(t, params.DoctorID, got.DoctorID)
	assert.True(t, TruncateToDate(params.Date).Equal(got.Date))
	assert.Equal(t, params.StartTime, got.StartTime)
	assert.Equal(t, params.Reason, got.Reason)
	assert.Equal(t, params.Age, got.Age)
	assert.Equal(t, params.Gender, got.Gender)
	assert.Equal(t, 150.0, got.Price)
}

func TestInitiateBookingShapeChecks(t *testing.T) {
	_, gateway, svc, params := serviceFixture(t)
	ctx := context.Background()

	for name, mutate := range map[string]func(*BookingParams){
		"empty reason":   func(p *BookingParams) { p.Reason = "" },
		"zero age":       func(p *BookingParams) { p.Age = 0 },
		"absurd age":     func(p *BookingParams) { p.Age = 200 },
		"unknown gender": func(p *BookingParams) { p.Gender = "unknown" },
	} {
		t.Run(name, func(t *testing.T) {
			p := params
			mutate(&p)
			_, err := svc.InitiateBooking(ctx, p, testNow)
			assert.ErrorIs(t, err, ErrMissingFields)
		})
	}

	assert.Nil(t, gateway.lastParams, "gateway must not be reached on invalid input")
}

func TestInitiateBookingUnknownPatient(t *testing.T) {
	_, gateway, svc, params := serviceFixture(t)
	params.PatientID = params.DoctorID // not a patient

	_, err := svc.InitiateBooking(context.Background(), params, testNow)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.Nil(t, gateway.lastParams)
}

func TestInitiateBookingRejectsMisalignedBeforeGateway(t *testing.T) {
	_, gateway, svc, params := serviceFixture(t)
	params.StartTime = "09:10"

	_, err := svc.InitiateBooking(context.Background(), params, testNow)
	assert.ErrorIs(t, err, ErrSlotMisaligned)
	assert.Nil(t, gateway.lastParams)
}

func TestInitiateBookingCoercesNonPositivePrice(t *testing.T) {
	repo, gateway, svc, params := serviceFixture(t)

	repo.mu.Lock()
	repo.doctors[params.DoctorID].ConsultationFee = 0 // free consults still need a chargeable session
	repo.mu.Unlock()

	_, err := svc.InitiateBooking(context.Background(), params, testNow)
	require.NoError(t, err)

	require.NotNil(t, gateway.lastParams)
	assert.Equal(t, int64(100), gateway.lastParams.AmountCents)
}

func TestInitiateBookingGatewayFailure(t *testing.T) {
	_, gateway, svc, params := serviceFixture(t)
	gateway.err = errors.New("stripe 500")

	_, err := svc.InitiateBooking(context.Background(), params, testNow)
	assert.ErrorIs(t, err, ErrPaymentIntent)
}

func TestListSlotsExcludesBooked(t *testing.T) {
	repo, _, svc, params := serviceFixture(t)
	ctx := context.Background()

	_, _, err := repo.CreateConfirmed(ctx, &Appointment{
		PatientID:  params.PatientID,
		DoctorID:   params.DoctorID,
		Date:       testMonday,
		StartTime:  "09:30",
		EndTime:    "10:00",
		PaymentRef: "pi_existing",
	})
	require.NoError(t, err)

	slots, err := svc.ListSlots(ctx, params.DoctorID, testMonday, testNow)
	require.NoError(t, err)

	var starts []string
	for _, s := range slots {
		starts = append(starts, s.StartTime)
	}
	assert.NotContains(t, starts, "09:30")
	assert.Contains(t, starts, "09:00")
}

func TestListBookedSlotsSorted(t *testing.T) {
	repo, _, svc, params := serviceFixture(t)
	ctx := context.Background()

	for i, st := range []string{"11:30", "09:00", "10:30"} {
		_, _, err := repo.CreateConfirmed(ctx, &Appointment{
			PatientID:  params.PatientID,
			DoctorID:   params.DoctorID,
			Date:       testMonday,
			StartTime:  st,
			EndTime:    st,
			PaymentRef: "pi_" + string(rune('a'+i)),
		})
		require.NoError(t, err)
	}

	times, err := svc.ListBookedSlots(ctx, params.DoctorID, testMonday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:30", "11:30"}, times)
}

func TestListSlotsUnconfiguredDoctor(t *testing.T) {
	repo, _, svc, _ := serviceFixture(t)
	bare := repo.addDoctor(&Doctor{Name: "New Hire"})

	_, err := svc.ListSlots(context.Background(), bare.ID, testMonday, testNow)
	assert.ErrorIs(t, err, ErrUnconfigured)
}
