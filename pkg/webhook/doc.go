// Package webhook verifies and parses signed billing events.
//
// Events arrive signed with a timestamped HMAC-SHA256 scheme compatible with
// Stripe's signature header format:
//
//	t=<unix timestamp>,v1=<hex signature>
//
// where the signature covers "<timestamp>.<raw body>". Verification checks a
// tolerance window against replay, allows a small clock skew into the future,
// accepts any of multiple v1 entries (so secrets can be rolled without
// dropping events), and compares signatures in constant time. The body is
// never interpreted before its signature passes.
//
// Verified payloads parse into an Event envelope carrying the provider event
// id, the event type, and the raw data object for the consumer to decode.
// All verification failures satisfy errors.Is(err, ErrInvalidSignature);
// a payload that fails to parse after verification is ErrMalformedEvent.
//
// Sign produces headers in the same format, which keeps tests and internal
// redelivery tooling on one scheme.
package webhook
