package webhook

import (
	"crypto/hmac"
	"errors"
	"time"
)

const (
	// DefaultTolerance bounds how old a signature timestamp may be.
	DefaultTolerance = 5 * time.Minute

	// futureSkewAllowance tolerates minor clock drift between the signer
	// and this process; anything further in the future is rejected.
	futureSkewAllowance = time.Minute
)

// Verifier authenticates incoming webhook payloads before they are parsed.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance overrides the replay window.
func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

// WithClock injects the time source, letting tests pin the window.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier returns a verifier for the given signing secret.
func NewVerifier(secret string, opts ...VerifierOption) (*Verifier, error) {
	if secret == "" {
		return nil, errors.Join(ErrInvalidConfiguration, errors.New("secret is required"))
	}
	v := &Verifier{
		secret:    secret,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify authenticates the payload against the signature header and parses
// the event envelope. Every authentication failure satisfies
// errors.Is(err, ErrInvalidSignature); the payload is not interpreted unless
// the signature passes.
func (v *Verifier) Verify(payload []byte, header string) (*Event, error) {
	if header == "" {
		return nil, errors.Join(ErrInvalidSignature, ErrMissingSignature)
	}
	if len(payload) == 0 {
		return nil, errors.Join(ErrInvalidSignature, errors.New("payload cannot be empty"))
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, ErrMalformedSignature, err)
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance {
		return nil, errors.Join(ErrInvalidSignature, ErrSignatureExpired)
	}
	if age < -futureSkewAllowance {
		return nil, errors.Join(ErrInvalidSignature, ErrTimestampInFuture)
	}

	expected := computeSignature(v.secret, timestamp, payload)
	var match bool
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			match = true
			break
		}
	}
	if !match {
		return nil, errors.Join(ErrInvalidSignature, errors.New("signature mismatch"))
	}

	return ParseEvent(payload)
}
