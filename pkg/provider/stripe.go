package provider

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v82"
	billingportalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey string `env:"STRIPE_SECRET_KEY,required"`
}

// StripeProvider implements Provider on top of stripe-go. The stripe-go
// client uses a package-level API key, so one process serves one Stripe
// account.
type StripeProvider struct {
	config StripeConfig
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a new Stripe billing provider and installs the
// API key into the stripe-go client.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}

	stripe.Key = config.SecretKey

	return &StripeProvider{config: config}, nil
}

// CreateCustomer registers a Stripe customer tagged with the local reference.
func (p *StripeProvider) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	if params.Email == "" {
		return nil, errors.New("customer email is required")
	}

	custParams := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(params.Email),
		Metadata: map[string]string{
			MetadataReferenceID: params.ReferenceID,
		},
	}
	if params.Name != "" {
		custParams.Name = stripe.String(params.Name)
	}

	cust, err := customer.New(custParams)
	if err != nil {
		return nil, wrapStripeErr("failed to create stripe customer", err)
	}

	return &Customer{ID: cust.ID, Email: cust.Email}, nil
}

// CreateCheckoutSession opens a subscription-mode checkout session. The
// correlation metadata is set on both the session and the subscription it
// creates, so both checkout and subscription webhooks carry it.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.PriceID == "" {
		return nil, errors.New("price ID is required")
	}
	if params.CustomerID == "" {
		return nil, errors.New("customer ID is required")
	}

	quantity := params.Quantity
	if quantity < 1 {
		quantity = 1
	}
	metadata := correlationMetadata(params)

	sessParams := &stripe.CheckoutSessionParams{
		Params:   stripe.Params{Context: ctx},
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(params.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		Metadata:   metadata,
	}

	subData := &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata}
	if params.TrialDays > 0 {
		subData.TrialPeriodDays = stripe.Int64(params.TrialDays)
	}
	sessParams.SubscriptionData = subData

	sess, err := checkoutsession.New(sessParams)
	if err != nil {
		return nil, wrapStripeErr("failed to create stripe checkout session", err)
	}

	out := &CheckoutSession{ID: sess.ID, URL: sess.URL}
	if sess.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(sess.ExpiresAt, 0)
	}
	return out, nil
}

// CreatePortalSession opens the Stripe billing portal for a customer.
func (p *StripeProvider) CreatePortalSession(ctx context.Context, params PortalParams) (*PortalSession, error) {
	if params.CustomerID == "" {
		return nil, errors.New("customer ID is required")
	}

	portalParams := &stripe.BillingPortalSessionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(params.CustomerID),
	}
	if params.ReturnURL != "" {
		portalParams.ReturnURL = stripe.String(params.ReturnURL)
	}

	sess, err := billingportalsession.New(portalParams)
	if err != nil {
		return nil, wrapStripeErr("failed to create stripe billing portal session", err)
	}

	// Stripe's portal handles cancellation from its overview page, so no
	// separate cancel deep link is reported.
	return &PortalSession{URL: sess.URL}, nil
}

// GetSubscription fetches the provider's current view of a subscription.
func (p *StripeProvider) GetSubscription(ctx context.Context, providerSubID string) (*SubscriptionState, error) {
	if providerSubID == "" {
		return nil, errors.New("subscription ID is required")
	}

	sub, err := subscription.Get(providerSubID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, wrapStripeErr("failed to retrieve stripe subscription", err)
	}

	return stripeSubscriptionState(sub), nil
}

// ResumeSubscription clears a pending cancel-at-period-end.
func (p *StripeProvider) ResumeSubscription(ctx context.Context, providerSubID string) error {
	if providerSubID == "" {
		return errors.New("subscription ID is required")
	}

	_, err := subscription.Update(providerSubID, &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(false),
	})
	if err != nil {
		return wrapStripeErr("failed to resume stripe subscription", err)
	}
	return nil
}

// stripeSubscriptionState maps a stripe subscription to the neutral
// snapshot. Since stripe-go v82 the billing period lives on the
// subscription items, not the subscription itself.
func stripeSubscriptionState(sub *stripe.Subscription) *SubscriptionState {
	state := &SubscriptionState{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		state.CustomerID = sub.Customer.ID
	}
	if sub.TrialStart > 0 {
		state.TrialStart = time.Unix(sub.TrialStart, 0)
	}
	if sub.TrialEnd > 0 {
		state.TrialEnd = time.Unix(sub.TrialEnd, 0)
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			state.PriceID = item.Price.ID
		}
		state.Quantity = item.Quantity
		if item.CurrentPeriodStart > 0 {
			state.PeriodStart = time.Unix(item.CurrentPeriodStart, 0)
		}
		if item.CurrentPeriodEnd > 0 {
			state.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0)
		}
	}
	return state
}

// correlationMetadata merges caller metadata under the reserved
// correlation keys.
func correlationMetadata(params CheckoutParams) map[string]string {
	md := make(map[string]string, len(params.Metadata)+2)
	for k, v := range params.Metadata {
		md[k] = v
	}
	md[MetadataReferenceID] = params.ReferenceID
	md[MetadataSubscriptionID] = params.SubscriptionID
	return md
}

// wrapStripeErr converts a stripe-go failure into a provider Error. Typed
// stripe errors keep their code; anything else is reported as unavailable.
func wrapStripeErr(message string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		cause := err
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			cause = errors.Join(err, ErrNotFound)
		}
		msg := stripeErr.Msg
		if msg == "" {
			msg = message
		}
		return NewError(string(stripeErr.Code), msg, cause)
	}
	return NewError(CodeUnavailable, message+": "+err.Error(), err)
}
