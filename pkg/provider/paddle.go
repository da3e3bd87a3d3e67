package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY,required"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider for Paddle Billing.
type PaddleProvider struct {
	client *paddle.SDK
	config PaddleConfig
}

var _ Provider = (*PaddleProvider)(nil)

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{client: client, config: config}, nil
}

// CreateCustomer registers a Paddle customer tagged with the local reference.
func (p *PaddleProvider) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	if params.Email == "" {
		return nil, errors.New("customer email is required")
	}

	req := &paddle.CreateCustomerRequest{
		Email: params.Email,
		CustomData: paddle.CustomData{
			MetadataReferenceID: params.ReferenceID,
		},
	}
	if params.Name != "" {
		req.Name = paddle.PtrTo(params.Name)
	}

	cust, err := p.client.CustomersClient.CreateCustomer(ctx, req)
	if err != nil {
		return nil, wrapPaddleErr("failed to create paddle customer", err)
	}

	return &Customer{ID: cust.ID, Email: cust.Email}, nil
}

// CreateCheckoutSession creates a Paddle transaction carrying a hosted
// checkout URL. Trial length is configured on the Paddle price, so
// TrialDays is not forwarded here.
func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
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

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  params.PriceID,
		Quantity: int(quantity),
	})

	customData := paddle.CustomData{
		MetadataReferenceID:    params.ReferenceID,
		MetadataSubscriptionID: params.SubscriptionID,
	}
	for k, v := range params.Metadata {
		if _, reserved := customData[k]; !reserved {
			customData[k] = v
		}
	}

	transactionReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomData: customData,
	}
	if params.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(params.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, wrapPaddleErr("failed to create paddle transaction", err)
	}

	if transaction.Checkout == nil || transaction.Checkout.URL == nil || *transaction.Checkout.URL == "" {
		return nil, NewError(CodeUnavailable, "no checkout URL returned from paddle", nil)
	}

	return &CheckoutSession{
		ID:  transaction.ID,
		URL: *transaction.Checkout.URL,
		// Paddle checkout links expire after 24 hours.
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

// CreatePortalSession opens Paddle's customer portal. When the session is
// scoped to a subscription, the subscription-specific cancel link is
// reported alongside the overview URL.
func (p *PaddleProvider) CreatePortalSession(ctx context.Context, params PortalParams) (*PortalSession, error) {
	if params.CustomerID == "" {
		return nil, errors.New("customer ID is required")
	}

	portalSessionReq := &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: params.CustomerID,
	}
	if params.SubscriptionID != "" {
		portalSessionReq.SubscriptionIDs = []string{params.SubscriptionID}
	}

	portalSession, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, portalSessionReq)
	if err != nil {
		return nil, wrapPaddleErr("failed to create paddle customer portal session", err)
	}

	session := &PortalSession{URL: portalSession.URLs.General.Overview}
	for _, subURL := range portalSession.URLs.Subscriptions {
		if subURL.ID == params.SubscriptionID && subURL.CancelSubscription != "" {
			session.CancelURL = subURL.CancelSubscription
			break
		}
	}

	if session.URL == "" {
		return nil, NewError(CodeUnavailable, "no portal URL returned from paddle", nil)
	}
	return session, nil
}

// GetSubscription fetches the provider's current view of a subscription.
func (p *PaddleProvider) GetSubscription(ctx context.Context, providerSubID string) (*SubscriptionState, error) {
	if providerSubID == "" {
		return nil, errors.New("subscription ID is required")
	}

	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: providerSubID,
	})
	if err != nil {
		return nil, wrapPaddleErr("failed to retrieve paddle subscription", err)
	}

	return paddleSubscriptionState(sub)
}

// ResumeSubscription is not offered by this adapter. Paddle's scheduled
// cancellations are removed through the customer portal instead.
func (p *PaddleProvider) ResumeSubscription(ctx context.Context, providerSubID string) error {
	return NewError(CodeNotSupported, "paddle subscriptions resume through the customer portal", ErrNotSupported)
}

// paddleSubscriptionView mirrors the wire fields of a Paddle subscription
// that the snapshot needs. The SDK value is round-tripped through JSON so
// this package does not depend on the SDK's struct layout.
type paddleSubscriptionView struct {
	ID                   string            `json:"id"`
	Status               string            `json:"status"`
	CustomerID           string            `json:"customer_id"`
	CurrentBillingPeriod *paddlePeriodView `json:"current_billing_period"`
	ScheduledChange      *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
	Items []struct {
		Quantity   int64             `json:"quantity"`
		TrialDates *paddlePeriodView `json:"trial_dates"`
		Price      *struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
	CustomData map[string]any `json:"custom_data"`
}

type paddlePeriodView struct {
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

func paddleSubscriptionState(sub *paddle.Subscription) (*SubscriptionState, error) {
	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode paddle subscription: %w", err)
	}
	return decodePaddleSubscriptionState(raw)
}

func decodePaddleSubscriptionState(raw []byte) (*SubscriptionState, error) {
	var view paddleSubscriptionView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("failed to decode paddle subscription: %w", err)
	}

	state := &SubscriptionState{
		ID:         view.ID,
		CustomerID: view.CustomerID,
		Status:     view.Status,
		// Paddle models cancel-at-period-end as a scheduled change.
		CancelAtPeriodEnd: view.ScheduledChange != nil && view.ScheduledChange.Action == "cancel",
		Metadata:          stringCustomData(view.CustomData),
	}
	if view.CurrentBillingPeriod != nil {
		state.PeriodStart = parsePaddleTime(view.CurrentBillingPeriod.StartsAt)
		state.PeriodEnd = parsePaddleTime(view.CurrentBillingPeriod.EndsAt)
	}
	if len(view.Items) > 0 {
		item := view.Items[0]
		state.Quantity = item.Quantity
		if item.Price != nil {
			state.PriceID = item.Price.ID
		}
		if item.TrialDates != nil {
			state.TrialStart = parsePaddleTime(item.TrialDates.StartsAt)
			state.TrialEnd = parsePaddleTime(item.TrialDates.EndsAt)
		}
	}
	return state, nil
}

func stringCustomData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func parsePaddleTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// wrapPaddleErr converts a Paddle SDK failure into a provider Error. The
// SDK reports failures as plain errors, so no code is recovered from them.
func wrapPaddleErr(message string, err error) error {
	return NewError(CodeUnavailable, message+": "+err.Error(), err)
}
