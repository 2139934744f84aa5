package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the HMAC of the request body.
const SignatureHeader = "X-RC-Signature"

// Signer creates and validates body signatures of the form "t=<unix>,v1=<hex>".
type Signer struct {
	secret    []byte
	tolerance time.Duration
}

// NewSigner constructs a signer with the provided secret and replay tolerance.
func NewSigner(secret string, tolerance time.Duration) *Signer {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Signer{secret: []byte(secret), tolerance: tolerance}
}

// Enabled reports whether a secret is configured.
func (s *Signer) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Sign returns the header value for body at the given instant.
func (s *Signer) Sign(body []byte, at time.Time) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("signing secret missing")
	}
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + s.mac(ts, body), nil
}

// Verify checks header against body. Signatures older than the tolerance are rejected.
func (s *Signer) Verify(header string, body []byte, now time.Time) error {
	if !s.Enabled() {
		return fmt.Errorf("signing secret missing")
	}
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sig = value
		}
	}
	if ts == "" || sig == "" {
		return fmt.Errorf("invalid signature format")
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp")
	}
	if !hmac.Equal([]byte(s.mac(ts, body)), []byte(sig)) {
		return fmt.Errorf("invalid signature")
	}
	if now.Sub(time.Unix(unix, 0)) > s.tolerance {
		return fmt.Errorf("signature expired")
	}
	return nil
}

func (s *Signer) mac(ts string, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(ts))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
