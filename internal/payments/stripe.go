package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CheckoutParams describes a checkout session to create. Metadata must carry
// every field the reconciler needs: between session creation and payment
// confirmation it is the only record of what was requested.
type CheckoutParams struct {
	AmountCents int64 // minor currency units, must be positive
	Currency    string
	Description string
	Metadata    map[string]string
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is the subset of Stripe's Checkout Session object we use.
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

// PaymentRef returns the reference used as reconciliation idempotency key:
// the payment intent when present, the session id otherwise.
func (s *CheckoutSession) PaymentRef() string {
	if s.PaymentIntent != "" {
		return s.PaymentIntent
	}
	return s.ID
}

// StripeClient talks to the two Checkout endpoints this service needs. The
// full SDK pulls in far more surface than two form posts justify.
type StripeClient struct {
	secretKey  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	dryRun     bool
}

func NewStripeClient(secretKey string) *StripeClient {
	return &StripeClient{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (c *StripeClient) WithBaseURL(baseURL string) *StripeClient {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// WithDryRun makes the client return fake sessions without calling Stripe.
func (c *StripeClient) WithDryRun(enabled bool) *StripeClient {
	c.dryRun = enabled
	return c
}

// CreateCheckoutSession opens a hosted checkout page for the booking amount.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if p.AmountCents <= 0 {
		return nil, errors.New("payments: checkout amount must be positive")
	}

	currency := p.Currency
	if currency == "" {
		currency = "usd"
	}
	description := p.Description
	if strings.TrimSpace(description) == "" {
		description = "Consultation"
	}

	if c.dryRun {
		fakeID := "cs_dryrun_" + uuid.New().String()[:8]
		log.Info().Str("session_id", fakeID).Int64("amount_cents", p.AmountCents).
			Msg("stripe dry run: skipping checkout session creation")
		return &CheckoutSession{
			ID:       fakeID,
			URL:      fmt.Sprintf("https://checkout.stripe.com/dry-run/%s", fakeID),
			Metadata: p.Metadata,
		}, nil
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", p.AmountCents))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("line_items[0][quantity]", "1")

	if p.SuccessURL != "" {
		form.Set("success_url", p.SuccessURL)
	}
	if p.CancelURL != "" {
		form.Set("cancel_url", p.CancelURL)
	}

	// Metadata on both the session and the payment intent, so either object
	// can be used to recover the booking params.
	keys := make([]string, 0, len(p.Metadata))
	for k := range p.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set(fmt.Sprintf("metadata[%s]", k), p.Metadata[k])
		form.Set(fmt.Sprintf("payment_intent_data[metadata][%s]", k), p.Metadata[k])
	}

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", strings.NewReader(form.Encode()), &session); err != nil {
		return nil, err
	}
	if session.URL == "" {
		return nil, errors.New("payments: stripe response missing checkout url")
	}

	return &session, nil
}

// GetCheckoutSession retrieves a session by id; the client confirmation poll
// uses it to verify payment status and recover the booking metadata.
func (c *StripeClient) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	if id == "" {
		return nil, errors.New("payments: session id is required")
	}

	if c.dryRun {
		return &CheckoutSession{ID: id, PaymentStatus: "paid"}, nil
	}

	var session CheckoutSession
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Stripe-Version", c.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payments: stripe decode: %w", err)
	}
	return nil
}
