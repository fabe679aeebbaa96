package paymentgateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/song-requests/internal"
	gw "github.com/frahmantamala/song-requests/internal/core/datamodel/paymentgateway"
)

const SignatureHeader = "Stripe-Signature"

// WebhookVerifier checks the HMAC-SHA256 signature scheme used by Stripe:
// header "t=<unix>,v1=<hex>" over "<t>.<payload>".
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &WebhookVerifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// WithClock is used by tests.
func (v *WebhookVerifier) WithClock(now func() time.Time) *WebhookVerifier {
	v.now = now
	return v
}

func (v *WebhookVerifier) ConstructEvent(payload []byte, header string) (*gw.Event, error) {
	if err := v.Verify(payload, header); err != nil {
		return nil, err
	}
	var event gw.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, internal.NewValidationError("malformed webhook payload", internal.ErrCodeValidationFailed)
	}
	return &event, nil
}

func (v *WebhookVerifier) Verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return internal.NewInternalError("webhook secret not configured", nil)
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return internal.ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return internal.ErrInvalidSignature
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return internal.ErrInvalidSignature
	}

	expected := Sign(v.secret, timestamp, payload)
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return internal.ErrInvalidSignature
}

// Sign computes the raw v1 signature.
func Sign(secret []byte, timestamp string, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignatureHeaderValue builds a header for a payload, used by tests and local tooling.
func SignatureHeaderValue(secret string, at time.Time, payload []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(Sign([]byte(secret), ts, payload)))
}
