package webhook

import "errors"

var (
	// ErrInvalidSignature is the umbrella for every verification failure;
	// the joined sentinels below narrow the cause.
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	ErrMissingSignature   = errors.New("signature header is missing")
	ErrMalformedSignature = errors.New("signature header is malformed")
	ErrSignatureExpired   = errors.New("signature timestamp too old")
	ErrTimestampInFuture  = errors.New("signature timestamp is in the future")

	ErrMalformedEvent       = errors.New("malformed event payload")
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
)
