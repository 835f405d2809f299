// Package payment verifies and decodes payment-provider webhooks
// (Stripe-compatible signing scheme and event envelope).
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventCheckoutCompleted is the only event type that confirms holds.
const EventCheckoutCompleted = "checkout.session.completed"

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrStaleSignature   = errors.New("webhook timestamp outside tolerance")
)

// VerifySignature checks a "t=<unix>,v1=<hex>" header against
// HMAC-SHA256(secret, "<t>.<payload>").  Any of several v1 entries may
// match.  tolerance <= 0 disables the timestamp check.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}
	var (
		ts   int64
		sigs [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = n
		case "v1":
			b, err := hex.DecodeString(v)
			if err == nil {
				sigs = append(sigs, b)
			}
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrMissingSignature
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return ErrStaleSignature
		}
	}
	want := computeMAC(payload, secret, ts)
	for _, s := range sigs {
		if hmac.Equal(s, want) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignatureHeader builds the header value a provider would send for payload
// at time t.
func SignatureHeader(payload []byte, secret string, t time.Time) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeMAC(payload, secret, ts)))
}

func computeMAC(payload []byte, secret string, ts int64) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// Event is the webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession is the subset of a completed checkout session used to
// confirm a hold.
type CheckoutSession struct {
	ID                string            `json:"id"`
	PaymentIntent     json.RawMessage   `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// ParseEvent decodes the envelope.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return nil, errors.New("decode event: missing type")
	}
	return &ev, nil
}

// CheckoutSession decodes data.object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var s CheckoutSession
	if len(e.Data.Object) == 0 {
		return nil, errors.New("event has no data.object")
	}
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &s, nil
}

// HoldID returns metadata.holdId (or hold_id), falling back to
// client_reference_id.
func (s *CheckoutSession) HoldID() string {
	for _, k := range []string{"holdId", "hold_id"} {
		if v := strings.TrimSpace(s.Metadata[k]); v != "" {
			return v
		}
	}
	return strings.TrimSpace(s.ClientReferenceID)
}

// PaymentIntentID returns the payment intent id whether the field was sent
// as a plain id or as an expanded object.
func (s *CheckoutSession) PaymentIntentID() string {
	if len(s.PaymentIntent) == 0 || string(s.PaymentIntent) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(s.PaymentIntent, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(s.PaymentIntent, &obj); err == nil {
		return obj.ID
	}
	return ""
}
