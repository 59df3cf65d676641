package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckoutSession(t *testing.T) {
	var gotForm map[string][]string
	var gotAuth, gotVersion string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Stripe-Version")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_abc","url":"https://checkout.stripe.com/c/pay/cs_test_abc"}`))
	}))
	defer server.Close()

	client := NewStripeClient("sk_test_key").WithBaseURL(server.URL)

	session, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{
		AmountCents: 12500,
		Currency:    "usd",
		Description: "Consultation with Dr. Who",
		Metadata:    map[string]string{"doctor_id": "d-1", "start_time": "09:00"},
		SuccessURL:  "https://app.example.com/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   "https://app.example.com/payment-cancelled",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_abc", session.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_abc", session.URL)

	assert.Equal(t, "Bearer sk_test_key", gotAuth)
	assert.NotEmpty(t, gotVersion)
	assert.Equal(t, "payment", gotForm["mode"][0])
	assert.Equal(t, "12500", gotForm["line_items[0][price_data][unit_amount]"][0])
	assert.Equal(t, "usd", gotForm["line_items[0][price_data][currency]"][0])

	// Metadata must be duplicated onto the payment intent so the webhook can
	// recover the booking from either object.
	assert.Equal(t, "09:00", gotForm["metadata[start_time]"][0])
	assert.Equal(t, "09:00", gotForm["payment_intent_data[metadata][start_time]"][0])
}

func TestCreateCheckoutSessionRejectsNonPositiveAmount(t *testing.T) {
	client := NewStripeClient("sk_test_key")

	for _, amount := range []int64{0, -500} {
		_, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{AmountCents: amount})
		assert.Error(t, err)
	}
}

func TestCreateCheckoutSessionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"card declined"}}`))
	}))
	defer server.Close()

	client := NewStripeClient("sk_test_key").WithBaseURL(server.URL)
	_, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{AmountCents: 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "402")
}

func TestCreateCheckoutSessionDryRun(t *testing.T) {
	client := NewStripeClient("").WithDryRun(true)

	session, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{
		AmountCents: 100,
		Metadata:    map[string]string{"doctor_id": "d-1"},
	})
	require.NoError(t, err)
	assert.Contains(t, session.ID, "cs_dryrun_")
	assert.NotEmpty(t, session.URL)
	assert.Equal(t, "d-1", session.Metadata["doctor_id"])
}

func TestGetCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/checkout/sessions/cs_test_abc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cs_test_abc",
			"payment_intent": "pi_123",
			"payment_status": "paid",
			"amount_total": 12500,
			"metadata": {"doctor_id": "d-1"}
		}`))
	}))
	defer server.Close()

	client := NewStripeClient("sk_test_key").WithBaseURL(server.URL)

	session, err := client.GetCheckoutSession(context.Background(), "cs_test_abc")
	require.NoError(t, err)
	assert.Equal(t, "paid", session.PaymentStatus)
	assert.Equal(t, int64(12500), session.AmountTotal)
	assert.Equal(t, "pi_123", session.PaymentRef(), "payment intent preferred as reference")
}

func TestPaymentRefFallsBackToSessionID(t *testing.T) {
	s := &CheckoutSession{ID: "cs_only"}
	assert.Equal(t, "cs_only", s.PaymentRef())
}
