package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventCheckoutCompleted is the only webhook event type the reconciler acts on.
const EventCheckoutCompleted = "checkout.session.completed"

// signatureTolerance bounds how stale a signed webhook timestamp may be.
const signatureTolerance = 5 * time.Minute

// Event is the Stripe webhook envelope.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a webhook payload.
func ParseEvent(payload []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("payments: decode webhook event: %w", err)
	}
	if evt.ID == "" {
		return nil, fmt.Errorf("payments: webhook event missing id")
	}
	return &evt, nil
}

// VerifySignature checks a Stripe-Signature header (t=...,v1=...) against the
// raw payload: HMAC-SHA256 of "<t>.<payload>" with the endpoint secret, and a
// bounded timestamp skew.
func VerifySignature(secret string, payload []byte, header string) bool {
	return verifySignatureAt(secret, payload, header, time.Now())
}

func verifySignatureAt(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" || header == "" {
		return false
	}

	var timestamp string
	var signatures [][]byte

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			if sig, err := hex.DecodeString(kv[1]); err == nil {
				signatures = append(signatures, sig)
			}
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew > signatureTolerance || skew < -signatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return true
		}
	}
	return false
}

// SignPayload produces a Stripe-Signature header value for payload. Used by
// the simulator and tests to emit well-formed webhook traffic.
func SignPayload(secret string, payload []byte, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}
