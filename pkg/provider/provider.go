package provider

import (
	"context"
	"time"
)

// Metadata keys adapters attach to checkout sessions and subscriptions so
// webhook payloads can be correlated back to local records.
const (
	MetadataReferenceID    = "reference_id"
	MetadataSubscriptionID = "subscription_id"
)

// Provider is the billing provider contract the reconciliation engine
// depends on. Implementations wrap a single provider account and must be
// safe for concurrent use.
type Provider interface {
	// CreateCustomer registers a billing customer for a local reference.
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)

	// CreateCheckoutSession opens a hosted checkout for a subscription
	// purchase and returns the URL the buyer must be redirected to.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// CreatePortalSession opens the provider's hosted billing portal where
	// the customer manages (and cancels) their subscription.
	CreatePortalSession(ctx context.Context, params PortalParams) (*PortalSession, error)

	// GetSubscription fetches the provider's current view of a subscription.
	// Returns an error matching ErrNotFound when the provider does not know
	// the id.
	GetSubscription(ctx context.Context, providerSubID string) (*SubscriptionState, error)

	// ResumeSubscription clears a pending cancel-at-period-end on the
	// provider side. Adapters without native support return an error
	// matching ErrNotSupported.
	ResumeSubscription(ctx context.Context, providerSubID string) error
}

// CustomerParams describes the customer to create.
type CustomerParams struct {
	Email       string
	Name        string
	ReferenceID string
}

// Customer is the provider's customer record.
type Customer struct {
	ID    string
	Email string
}

// CheckoutParams describes a hosted checkout session for a subscription
// purchase. ReferenceID and SubscriptionID are embedded into checkout
// metadata under the Metadata* keys.
type CheckoutParams struct {
	CustomerID     string
	PriceID        string
	Quantity       int64 // seats; adapters treat values below 1 as 1
	TrialDays      int64 // 0 means no trial
	SuccessURL     string
	CancelURL      string
	ReferenceID    string
	SubscriptionID string
	Metadata       map[string]string // extra keys, merged under the reserved ones
}

// CheckoutSession is a hosted checkout the buyer completes on the
// provider's domain.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// PortalParams describes a billing portal session. SubscriptionID is the
// provider-side subscription id and scopes portal deep links when the
// provider supports them.
type PortalParams struct {
	CustomerID     string
	SubscriptionID string
	ReturnURL      string
}

// PortalSession points at the provider's hosted management surface.
// CancelURL is a subscription-scoped cancellation deep link when the
// provider exposes one, empty otherwise.
type PortalSession struct {
	URL       string
	CancelURL string
}

// SubscriptionState is the provider's full-state snapshot of a
// subscription. Zero time values mean the provider reported no timestamp.
type SubscriptionState struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	Quantity          int64
	CancelAtPeriodEnd bool
	PeriodStart       time.Time
	PeriodEnd         time.Time
	TrialStart        time.Time
	TrialEnd          time.Time
	Metadata          map[string]string
}
