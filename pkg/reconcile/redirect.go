package reconcile

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// Outcome is the result of awaiting checkout completion.
type Outcome string

const (
	// OutcomeCompleted means the subscription went live before the wait
	// budget ran out.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the watched record reached a terminal status.
	OutcomeFailed Outcome = "failed"
	// OutcomeTimeout means the webhook had not landed in time. Callers
	// forward to the success URL anyway; state converges by webhook.
	OutcomeTimeout Outcome = "timeout"
)

// Query parameters carried by confirm links.
const (
	ParamReference    = "ref"
	ParamSubscription = "sub"
	ParamSuccessURL   = "success_url"
	ParamErrorURL     = "error_url"
	ParamSignature    = "sig"
)

const (
	// DefaultPollInterval is how often the store is polled while waiting
	// for the completion webhook.
	DefaultPollInterval = 250 * time.Millisecond
	// DefaultWaitBudget bounds the whole wait. Checkout redirects usually
	// race the webhook by well under a second.
	DefaultWaitBudget = 10 * time.Second
)

// Coordinator absorbs the race between the buyer returning from checkout
// and the completion webhook arriving. Checkout success URLs are wrapped
// with an intermediate confirm link whose parameters are HMAC-signed, so
// the confirm endpoint only honors links the engine minted.
type Coordinator struct {
	store      subscription.Store
	secret     []byte
	confirmURL string
	pollEvery  time.Duration
	waitBudget time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPollInterval sets the store polling interval.
func WithPollInterval(interval time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if interval > 0 {
			c.pollEvery = interval
		}
	}
}

// WithWaitBudget bounds how long AwaitCompletion blocks overall.
func WithWaitBudget(budget time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if budget > 0 {
			c.waitBudget = budget
		}
	}
}

// NewCoordinator creates a redirect coordinator. confirmURL is the public
// URL of the confirm endpoint that wrapped success URLs point at. Panics
// if store is nil to fail fast during initialization.
func NewCoordinator(store subscription.Store, secret, confirmURL string, opts ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		panic("reconcile: store is required")
	}
	if secret == "" {
		return nil, errors.New("reconcile: confirm link secret is required")
	}
	if confirmURL == "" {
		return nil, errors.New("reconcile: confirm URL is required")
	}
	if _, err := url.Parse(confirmURL); err != nil {
		return nil, fmt.Errorf("reconcile: invalid confirm URL: %w", err)
	}

	c := &Coordinator{
		store:      store,
		secret:     []byte(secret),
		confirmURL: confirmURL,
		pollEvery:  DefaultPollInterval,
		waitBudget: DefaultWaitBudget,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// WrapSuccessURL builds the confirm link the provider redirects the buyer
// to after checkout. It carries the correlation parameters, the final
// destinations, and a signature over all of them.
func (c *Coordinator) WrapSuccessURL(referenceID string, subscriptionID uuid.UUID, successURL, errorURL string) (string, error) {
	if successURL == "" {
		return "", errors.New("success URL is required")
	}

	u, err := url.Parse(c.confirmURL)
	if err != nil {
		return "", fmt.Errorf("invalid confirm URL: %w", err)
	}

	q := u.Query()
	q.Set(ParamReference, referenceID)
	q.Set(ParamSubscription, subscriptionID.String())
	q.Set(ParamSuccessURL, successURL)
	if errorURL != "" {
		q.Set(ParamErrorURL, errorURL)
	}
	q.Set(ParamSignature, c.signParams(referenceID, subscriptionID.String(), successURL, errorURL))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// VerifyParams reports whether the confirm link parameters carry a
// signature this coordinator minted. Comparison is constant-time.
func (c *Coordinator) VerifyParams(referenceID, subscriptionID, successURL, errorURL, signature string) bool {
	if signature == "" {
		return false
	}
	expected := c.signParams(referenceID, subscriptionID, successURL, errorURL)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// AwaitCompletion polls the store until the checkout outcome is known or
// the wait budget runs out.
func (c *Coordinator) AwaitCompletion(ctx context.Context, referenceID string, subscriptionID uuid.UUID) Outcome {
	deadline := time.NewTimer(c.waitBudget)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		if outcome, settled := c.check(ctx, referenceID, subscriptionID); settled {
			return outcome
		}
		select {
		case <-ctx.Done():
			return OutcomeTimeout
		case <-deadline.C:
			return OutcomeTimeout
		case <-ticker.C:
		}
	}
}

// check inspects the store once. Transient store errors keep the poll
// going; the budget bounds the damage.
func (c *Coordinator) check(ctx context.Context, referenceID string, subscriptionID uuid.UUID) (Outcome, bool) {
	if subscriptionID != uuid.Nil {
		sub, err := c.store.ByID(ctx, subscriptionID)
		switch {
		case err == nil && sub.Live():
			return OutcomeCompleted, true
		case err == nil && sub.Terminal():
			return OutcomeFailed, true
		case err == nil:
			return "", false
		case !errors.Is(err, subscription.ErrNotFound):
			return "", false
		}
	}

	// No watchable record: completion may have landed on a record created
	// by the webhook itself.
	if live, err := c.store.LiveByReference(ctx, referenceID); err == nil && live.ProviderSubscriptionID != "" {
		return OutcomeCompleted, true
	}
	return "", false
}

func (c *Coordinator) signParams(referenceID, subscriptionID, successURL, errorURL string) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%s\x00%s\x00%s\x00%s", referenceID, subscriptionID, successURL, errorURL)
	return hex.EncodeToString(mac.Sum(nil))
}
