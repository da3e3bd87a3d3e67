package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/provider"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

// CustomerDirectory bridges the engine to the host's user or organization
// records holding the provider customer id. Implementations return an empty
// id (not an error) when no customer has been created yet.
type CustomerDirectory interface {
	ProviderCustomerID(ctx context.Context, referenceID string) (string, error)
	SetProviderCustomerID(ctx context.Context, referenceID, customerID string) error
}

// Engine reconciles provider webhook events into the subscription store and
// drives the checkout, cancellation, and restore flows. All state changes
// of record flow through ApplyEvent; the imperative operations only open
// provider surfaces and write placeholders.
type Engine struct {
	registry   *subscription.Registry
	provider   provider.Provider
	store      subscription.Store
	directory  CustomerDirectory
	events     subscription.EventIndex
	policy     Policy
	hooks      Hooks
	redirect   *Coordinator
	log        *slog.Logger
	now        func() time.Time
	hookBudget time.Duration
	locks      *keyedMutex
}

const defaultHookBudget = 2 * time.Second

// New creates a reconciliation engine. Panics if registry, provider, or
// store are nil to fail fast during initialization.
func New(registry *subscription.Registry, prov provider.Provider, store subscription.Store, opts ...Option) *Engine {
	if registry == nil {
		panic("reconcile: registry is required")
	}
	if prov == nil {
		panic("reconcile: provider is required")
	}
	if store == nil {
		panic("reconcile: store is required")
	}

	e := &Engine{
		registry:   registry,
		provider:   prov,
		store:      store,
		events:     subscription.NewMemoryEventIndex(),
		policy:     DefaultPolicy,
		log:        slog.Default(),
		now:        time.Now,
		hookBudget: defaultHookBudget,
		locks:      newKeyedMutex(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// UpgradeParams describes a checkout request for a plan.
type UpgradeParams struct {
	Actor       Actor
	ReferenceID string
	Plan        string
	Annual      bool
	Seats       int64

	// SubscriptionID names the live record being replaced. Required when
	// the reference already pays for a subscription.
	SubscriptionID uuid.UUID

	// Metadata is stored on the record and attached to the checkout
	// session, so it round-trips through the provider's webhooks.
	Metadata map[string]string

	SuccessURL string
	ErrorURL   string
	CancelURL  string
}

// Checkout points the buyer at the provider's hosted payment page.
// SubscriptionID is the local placeholder record that observes the
// purchase until the completion webhook lands.
type Checkout struct {
	SubscriptionID uuid.UUID
	SessionID      string
	URL            string
	ExpiresAt      time.Time
}

// CancelParams describes a cancellation request. SubscriptionID is
// optional; by default the live record is targeted.
type CancelParams struct {
	Actor          Actor
	ReferenceID    string
	SubscriptionID uuid.UUID
	ReturnURL      string
}

// Portal points at the provider's hosted surface where the customer
// confirms the cancellation. Opening it is the only synchronous effect of
// Cancel; the state change arrives by webhook.
type Portal struct {
	URL string
}

// RestoreParams describes an undo of a scheduled cancellation.
type RestoreParams struct {
	Actor          Actor
	ReferenceID    string
	SubscriptionID uuid.UUID
}

// ListParams scopes a listing to one reference.
type ListParams struct {
	Actor       Actor
	ReferenceID string
}

// Upgrade opens a hosted checkout for a plan. It ensures a provider
// customer and a local incomplete placeholder exist, then returns the
// checkout URL. No live state changes here; completion arrives by webhook.
func (e *Engine) Upgrade(ctx context.Context, params UpgradeParams) (*Checkout, error) {
	if params.ReferenceID == "" {
		return nil, errors.Join(ErrValidation, errors.New("reference ID is required"))
	}
	if err := e.authorize(ctx, params.Actor, params.ReferenceID, ActionUpgrade); err != nil {
		return nil, err
	}

	plan, err := e.registry.Plan(params.Plan)
	if err != nil {
		return nil, errors.Join(ErrValidation, err)
	}
	priceID := plan.Price(params.Annual)
	if priceID == "" {
		return nil, errors.Join(ErrValidation, fmt.Errorf("plan %s has no price for this billing interval", plan.Name))
	}

	unlock := e.locks.Lock(params.ReferenceID)
	defer unlock()

	live, err := e.store.LiveByReference(ctx, params.ReferenceID)
	if err != nil && !errors.Is(err, subscription.ErrNotFound) {
		return nil, err
	}
	if live != nil && live.ProviderSubscriptionID != "" {
		switch {
		case params.SubscriptionID == uuid.Nil:
			return nil, errors.Join(ErrSwitchRequiresTarget, fmt.Errorf("live subscription %s", live.ID))
		case params.SubscriptionID != live.ID:
			return nil, errors.Join(ErrValidation, fmt.Errorf("subscription %s is not the live record for this reference", params.SubscriptionID))
		}
	}

	customerID, err := e.ensureCustomer(ctx, params.Actor, params.ReferenceID)
	if err != nil {
		return nil, err
	}

	record, err := e.ensurePlaceholder(ctx, params, plan, priceID, customerID)
	if err != nil {
		return nil, err
	}

	var trialDays int64
	if plan.HasTrial() {
		had, err := e.referenceHadTrial(ctx, params.ReferenceID)
		if err != nil {
			return nil, err
		}
		if !had {
			trialDays = int64(plan.Trial.Days)
		}
	}

	successURL := params.SuccessURL
	if e.redirect != nil {
		successURL, err = e.redirect.WrapSuccessURL(params.ReferenceID, record.ID, params.SuccessURL, params.ErrorURL)
		if err != nil {
			return nil, err
		}
	}

	session, err := e.provider.CreateCheckoutSession(ctx, provider.CheckoutParams{
		CustomerID:     customerID,
		PriceID:        priceID,
		Quantity:       record.Seats,
		TrialDays:      trialDays,
		SuccessURL:     successURL,
		CancelURL:      params.CancelURL,
		ReferenceID:    params.ReferenceID,
		SubscriptionID: record.ID.String(),
		Metadata:       params.Metadata,
	})
	if err != nil {
		return nil, err
	}

	e.log.InfoContext(ctx, "checkout session created",
		slog.String("reference_id", params.ReferenceID),
		slog.String("plan", record.Plan),
		slog.String("session_id", session.ID),
	)

	return &Checkout{
		SubscriptionID: record.ID,
		SessionID:      session.ID,
		URL:            session.URL,
		ExpiresAt:      session.ExpiresAt,
	}, nil
}

// ApplyEvent reconciles one verified webhook event into the store.
// Deliveries may repeat and arrive in any order: events are deduplicated by
// provider event id and applied as full-state overwrites under a
// per-reference lock. A nil return settles the delivery; an error asks the
// provider to redeliver.
func (e *Engine) ApplyEvent(ctx context.Context, event *webhook.Event) error {
	if event == nil {
		return errors.Join(ErrValidation, errors.New("event is required"))
	}

	key := eventKey(event)
	seen, err := e.events.Seen(ctx, key)
	if err != nil {
		return err
	}
	if seen {
		e.log.DebugContext(ctx, "duplicate event skipped",
			slog.String("event_id", key),
			slog.String("type", string(event.Type)),
		)
		return nil
	}

	e.fireOnEvent(ctx, event)

	var applyErr error
	switch event.Type {
	case webhook.EventCheckoutCompleted:
		applyErr = e.applyCheckoutCompleted(ctx, event)
	case webhook.EventSubscriptionUpdated:
		applyErr = e.applySubscriptionUpdated(ctx, event)
	case webhook.EventSubscriptionDeleted:
		applyErr = e.applySubscriptionDeleted(ctx, event)
	default:
		e.log.DebugContext(ctx, "event type has no reconciliation",
			slog.String("type", string(event.Type)),
		)
	}
	if applyErr != nil {
		return applyErr
	}

	if err := e.events.Mark(ctx, key); err != nil {
		// The event applied; a redelivery re-applies the same full state.
		e.log.WarnContext(ctx, "failed to mark event as consumed",
			slog.String("event_id", key),
			slog.Any("error", err),
		)
	}
	return nil
}

// Cancel opens the provider's billing portal where the customer manages
// the cancellation. Nothing changes in the store until the provider
// reports the cancellation by webhook.
func (e *Engine) Cancel(ctx context.Context, params CancelParams) (*Portal, error) {
	if params.ReferenceID == "" {
		return nil, errors.Join(ErrValidation, errors.New("reference ID is required"))
	}
	if err := e.authorize(ctx, params.Actor, params.ReferenceID, ActionCancel); err != nil {
		return nil, err
	}

	target, err := e.resolveTarget(ctx, params.ReferenceID, params.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if target.ProviderCustomerID == "" {
		return nil, errors.Join(ErrValidation, errors.New("subscription has no billing customer"))
	}

	session, err := e.provider.CreatePortalSession(ctx, provider.PortalParams{
		CustomerID:     target.ProviderCustomerID,
		SubscriptionID: target.ProviderSubscriptionID,
		ReturnURL:      params.ReturnURL,
	})
	if err != nil {
		return nil, err
	}

	url := session.URL
	if session.CancelURL != "" {
		url = session.CancelURL
	}
	return &Portal{URL: url}, nil
}

// Restore undoes a scheduled cancellation. The provider is asked first;
// the local flag clears only after the provider agreed, so a provider
// failure leaves the record consistent with billing reality.
func (e *Engine) Restore(ctx context.Context, params RestoreParams) (*subscription.Subscription, error) {
	if params.ReferenceID == "" {
		return nil, errors.Join(ErrValidation, errors.New("reference ID is required"))
	}
	if err := e.authorize(ctx, params.Actor, params.ReferenceID, ActionRestore); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(params.ReferenceID)
	defer unlock()

	target, err := e.resolveTarget(ctx, params.ReferenceID, params.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if target.Terminal() || !target.CancelAtPeriodEnd {
		return nil, errors.Join(ErrNotRestorable, fmt.Errorf("subscription %s has status %s", target.ID, target.Status))
	}
	if target.ProviderSubscriptionID == "" {
		return nil, errors.Join(ErrNotRestorable, errors.New("subscription has no provider record"))
	}

	if err := e.provider.ResumeSubscription(ctx, target.ProviderSubscriptionID); err != nil {
		return nil, err
	}

	target.CancelAtPeriodEnd = false
	if err := e.store.Update(ctx, target); err != nil {
		return nil, err
	}

	e.log.InfoContext(ctx, "subscription restored",
		slog.String("reference_id", params.ReferenceID),
		slog.String("subscription_id", target.ID.String()),
	)
	return target, nil
}

// List returns all subscription records for the reference, newest first.
func (e *Engine) List(ctx context.Context, params ListParams) ([]*subscription.Subscription, error) {
	if params.ReferenceID == "" {
		return nil, errors.Join(ErrValidation, errors.New("reference ID is required"))
	}
	if err := e.authorize(ctx, params.Actor, params.ReferenceID, ActionList); err != nil {
		return nil, err
	}
	return e.store.ByReference(ctx, params.ReferenceID)
}

func (e *Engine) authorize(ctx context.Context, actor Actor, referenceID string, action Action) error {
	if e.policy(ctx, actor, referenceID, action) {
		return nil
	}
	return errors.Join(ErrUnauthorized, fmt.Errorf("action %s on reference %s", action, referenceID))
}

// ensureCustomer resolves the provider customer id for a reference: the
// directory first, then customer ids already on stored records, then a
// fresh provider customer saved back to the directory.
func (e *Engine) ensureCustomer(ctx context.Context, actor Actor, referenceID string) (string, error) {
	if e.directory != nil {
		id, err := e.directory.ProviderCustomerID(ctx, referenceID)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}

	current, err := e.store.CurrentByReference(ctx, referenceID)
	if err == nil && current.ProviderCustomerID != "" {
		return current.ProviderCustomerID, nil
	}
	if err != nil && !errors.Is(err, subscription.ErrNotFound) {
		return "", err
	}

	if actor.Email == "" {
		return "", errors.Join(ErrValidation, errors.New("actor email is required to create a billing customer"))
	}

	cust, err := e.provider.CreateCustomer(ctx, provider.CustomerParams{
		Email:       actor.Email,
		ReferenceID: referenceID,
	})
	if err != nil {
		return "", err
	}

	if e.directory != nil {
		if err := e.directory.SetProviderCustomerID(ctx, referenceID, cust.ID); err != nil {
			return "", fmt.Errorf("failed to save provider customer id: %w", err)
		}
	}
	return cust.ID, nil
}

// ensurePlaceholder finds or creates the incomplete record that makes an
// upgrade observable before the first webhook arrives. Retried upgrades
// reuse and retarget the existing placeholder.
func (e *Engine) ensurePlaceholder(ctx context.Context, params UpgradeParams, plan subscription.Plan, priceID, customerID string) (*subscription.Subscription, error) {
	seats := params.Seats
	if seats < 1 {
		seats = 1
	}
	planName := normalizePlanName(plan.Name)

	records, err := e.store.ByReference(ctx, params.ReferenceID)
	if err != nil {
		return nil, err
	}
	for _, existing := range records {
		if existing.Status != subscription.StatusIncomplete || existing.ProviderSubscriptionID != "" {
			continue
		}
		existing.Plan = planName
		existing.PriceID = priceID
		existing.Seats = seats
		existing.ProviderCustomerID = customerID
		if len(params.Metadata) > 0 {
			existing.Metadata = maps.Clone(params.Metadata)
		}
		if err := e.store.Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	record := &subscription.Subscription{
		ID:                 uuid.New(),
		ReferenceID:        params.ReferenceID,
		Plan:               planName,
		Status:             subscription.StatusIncomplete,
		ProviderCustomerID: customerID,
		PriceID:            priceID,
		Seats:              seats,
		Metadata:           maps.Clone(params.Metadata),
	}
	if err := e.store.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (e *Engine) referenceHadTrial(ctx context.Context, referenceID string) (bool, error) {
	records, err := e.store.ByReference(ctx, referenceID)
	if err != nil {
		return false, err
	}
	for _, record := range records {
		if record.HadTrial() {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) applyCheckoutCompleted(ctx context.Context, event *webhook.Event) error {
	session, err := decodeCheckoutSession(event)
	if err != nil {
		return err
	}
	if session.Mode != "" && session.Mode != "subscription" {
		e.log.DebugContext(ctx, "ignoring non-subscription checkout",
			slog.String("session_id", session.ID),
			slog.String("mode", session.Mode),
		)
		return nil
	}
	if session.Subscription == "" {
		e.log.WarnContext(ctx, "checkout completed without a subscription",
			slog.String("session_id", session.ID),
		)
		return nil
	}

	// The event is a trigger, not a source of truth: the authoritative
	// state comes from the provider so late or replayed deliveries
	// converge on the same record.
	state, err := e.provider.GetSubscription(ctx, session.Subscription)
	if err != nil {
		return err
	}

	referenceID := session.Metadata[provider.MetadataReferenceID]
	if referenceID == "" {
		referenceID = state.Metadata[provider.MetadataReferenceID]
	}
	localID := session.Metadata[provider.MetadataSubscriptionID]
	if localID == "" {
		localID = state.Metadata[provider.MetadataSubscriptionID]
	}
	if referenceID == "" {
		if existing, err := e.store.ByProviderID(ctx, state.ID); err == nil {
			referenceID = existing.ReferenceID
		} else if !errors.Is(err, subscription.ErrNotFound) {
			return err
		}
	}
	if referenceID == "" {
		e.log.WarnContext(ctx, "dropping uncorrelated checkout event",
			slog.String("session_id", session.ID),
			slog.String("provider_subscription_id", state.ID),
		)
		return nil
	}

	unlock := e.locks.Lock(referenceID)
	defer unlock()

	record, err := e.resolveCheckoutRecord(ctx, referenceID, localID, state.ID)
	if err != nil {
		return err
	}
	isNew := record == nil
	if isNew {
		record = &subscription.Subscription{ID: uuid.New(), ReferenceID: referenceID}
	}
	trialJustStarted := record.TrialStart == nil

	var plan subscription.Plan
	planKnown := false
	if state.PriceID != "" {
		if p, perr := e.registry.PlanByPriceID(state.PriceID); perr == nil {
			plan = p
			planKnown = true
			record.Plan = normalizePlanName(plan.Name)
		} else {
			e.log.WarnContext(ctx, "no plan for price, keeping previous plan",
				slog.String("price_id", state.PriceID),
				slog.String("plan", record.Plan),
			)
		}
	}

	record.ProviderSubscriptionID = state.ID
	if state.CustomerID != "" {
		record.ProviderCustomerID = state.CustomerID
	} else if session.Customer != "" {
		record.ProviderCustomerID = session.Customer
	}
	if state.PriceID != "" {
		record.PriceID = state.PriceID
	}
	if state.Quantity > 0 {
		record.Seats = state.Quantity
	}
	record.CancelAtPeriodEnd = state.CancelAtPeriodEnd
	record.PeriodStart = clonedTimePtr(state.PeriodStart)
	record.PeriodEnd = clonedTimePtr(state.PeriodEnd)
	record.TrialStart = clonedTimePtr(state.TrialStart)
	record.TrialEnd = clonedTimePtr(state.TrialEnd)
	if md := customMetadata(state.Metadata); md != nil {
		record.Metadata = md
	}

	if mapped, ok := mapProviderStatus(state.Status); ok {
		record.Status = mapped
	} else if record.TrialEnd != nil && record.TrialEnd.After(e.now()) {
		record.Status = subscription.StatusTrialing
	} else {
		record.Status = subscription.StatusActive
	}

	if err := e.persistRecord(ctx, record, isNew); err != nil {
		return err
	}

	e.log.InfoContext(ctx, "checkout completed",
		slog.String("reference_id", referenceID),
		slog.String("subscription_id", record.ID.String()),
		slog.String("provider_subscription_id", state.ID),
		slog.String("status", string(record.Status)),
	)

	if planKnown && plan.HasTrial() && trialJustStarted &&
		record.TrialStart != nil && record.Status == subscription.StatusTrialing {
		e.fireTrialHook(ctx, "trial.start", plan.Trial.OnStart, record)
	}

	// One completion callback per provider subscription, whichever event
	// delivered it.
	compKey := completionKey(state.ID)
	completed, err := e.events.Seen(ctx, compKey)
	if err != nil {
		e.log.WarnContext(ctx, "completion index unavailable", slog.Any("error", err))
		completed = false
	}
	if !completed {
		e.fireComplete(ctx, record, event)
		if err := e.events.Mark(ctx, compKey); err != nil {
			e.log.WarnContext(ctx, "failed to mark completion", slog.Any("error", err))
		}
	}
	return nil
}

func (e *Engine) applySubscriptionUpdated(ctx context.Context, event *webhook.Event) error {
	payload, err := decodeSubscription(event)
	if err != nil {
		return err
	}
	if payload.ID == "" {
		e.log.WarnContext(ctx, "subscription event without an id")
		return nil
	}

	referenceID, err := e.resolveEventReference(ctx, payload)
	if err != nil {
		return err
	}
	if referenceID == "" {
		e.log.WarnContext(ctx, "dropping uncorrelated subscription event",
			slog.String("provider_subscription_id", payload.ID),
		)
		return nil
	}

	unlock := e.locks.Lock(referenceID)
	defer unlock()

	record, err := e.store.ByProviderID(ctx, payload.ID)
	var isNew bool
	if err != nil {
		if !errors.Is(err, subscription.ErrNotFound) {
			return err
		}
		record, isNew, err = e.adoptRecord(ctx, referenceID, payload.Metadata[provider.MetadataSubscriptionID])
		if err != nil {
			return err
		}
		record.ProviderSubscriptionID = payload.ID
	}

	prev := record.Clone()

	if priceID := payload.priceID(); priceID != "" && priceID != record.PriceID {
		if plan, perr := e.registry.PlanByPriceID(priceID); perr == nil {
			record.Plan = normalizePlanName(plan.Name)
		} else {
			e.log.WarnContext(ctx, "no plan for price, keeping previous plan",
				slog.String("price_id", priceID),
				slog.String("plan", record.Plan),
			)
		}
		record.PriceID = priceID
	}

	if mapped, ok := mapProviderStatus(payload.Status); ok {
		record.Status = mapped
	} else {
		e.log.WarnContext(ctx, "unknown provider status, keeping previous",
			slog.String("status", payload.Status),
			slog.String("provider_subscription_id", payload.ID),
		)
	}

	record.CancelAtPeriodEnd = payload.CancelAtPeriodEnd
	if q := payload.quantity(); q > 0 {
		record.Seats = q
	}
	if payload.Customer != "" {
		record.ProviderCustomerID = payload.Customer
	}
	record.PeriodStart = unixTimePtr(payload.periodStart())
	record.PeriodEnd = unixTimePtr(payload.periodEnd())
	record.TrialStart = unixTimePtr(payload.TrialStart)
	record.TrialEnd = unixTimePtr(payload.TrialEnd)
	if md := customMetadata(payload.Metadata); md != nil {
		record.Metadata = md
	}

	if err := e.persistRecord(ctx, record, isNew); err != nil {
		return err
	}

	if !prev.CancelAtPeriodEnd && record.CancelAtPeriodEnd {
		e.fireCancel(ctx, record)
	}
	if prev.Status == subscription.StatusTrialing && record.Status != subscription.StatusTrialing {
		if trial := e.trialFor(record.Plan); trial != nil {
			switch record.Status {
			case subscription.StatusActive:
				e.fireTrialHook(ctx, "trial.end", trial.OnEnd, record)
			case subscription.StatusCanceled, subscription.StatusPastDue:
				e.fireTrialHook(ctx, "trial.expired", trial.OnExpired, record)
			}
		}
	}
	e.fireUpdate(ctx, record)
	return nil
}

func (e *Engine) applySubscriptionDeleted(ctx context.Context, event *webhook.Event) error {
	payload, err := decodeSubscription(event)
	if err != nil {
		return err
	}
	if payload.ID == "" {
		e.log.WarnContext(ctx, "subscription event without an id")
		return nil
	}

	record, err := e.store.ByProviderID(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			e.log.DebugContext(ctx, "deleted event for unknown subscription",
				slog.String("provider_subscription_id", payload.ID),
			)
			return nil
		}
		return err
	}

	unlock := e.locks.Lock(record.ReferenceID)
	defer unlock()

	record, err = e.store.ByProviderID(ctx, payload.ID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			return nil
		}
		return err
	}
	if record.Terminal() {
		return nil
	}

	record.Status = subscription.StatusCanceled
	record.CancelAtPeriodEnd = false
	if ts := payload.periodEnd(); ts > 0 {
		record.PeriodEnd = unixTimePtr(ts)
	}

	if err := e.store.Update(ctx, record); err != nil {
		return err
	}

	e.log.InfoContext(ctx, "subscription deleted",
		slog.String("reference_id", record.ReferenceID),
		slog.String("provider_subscription_id", payload.ID),
	)

	e.fireDeleted(ctx, record)
	return nil
}

// resolveEventReference finds the reference a subscription event belongs
// to: the stored record bound to the provider subscription, else the
// event's correlation metadata.
func (e *Engine) resolveEventReference(ctx context.Context, payload *subscriptionPayload) (string, error) {
	record, err := e.store.ByProviderID(ctx, payload.ID)
	if err == nil {
		return record.ReferenceID, nil
	}
	if !errors.Is(err, subscription.ErrNotFound) {
		return "", err
	}
	return payload.Metadata[provider.MetadataReferenceID], nil
}

// resolveCheckoutRecord picks the record a completed checkout lands on:
// the placeholder named in metadata, then the record already bound to the
// provider subscription, then any unbound incomplete placeholder. Nil
// means a fresh record is needed.
func (e *Engine) resolveCheckoutRecord(ctx context.Context, referenceID, localID, providerSubID string) (*subscription.Subscription, error) {
	if localID != "" {
		if id, err := uuid.Parse(localID); err == nil {
			record, err := e.store.ByID(ctx, id)
			switch {
			case err == nil && record.ReferenceID == referenceID:
				return record, nil
			case err == nil:
				e.log.WarnContext(ctx, "metadata names a record of another reference",
					slog.String("subscription_id", localID),
					slog.String("reference_id", referenceID),
				)
			case !errors.Is(err, subscription.ErrNotFound):
				return nil, err
			}
		}
	}

	if record, err := e.store.ByProviderID(ctx, providerSubID); err == nil {
		return record, nil
	} else if !errors.Is(err, subscription.ErrNotFound) {
		return nil, err
	}

	records, err := e.store.ByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.Status == subscription.StatusIncomplete && record.ProviderSubscriptionID == "" {
			return record, nil
		}
	}
	return nil, nil
}

// adoptRecord finds the local record an unseen provider subscription maps
// to: the placeholder named in metadata when it belongs to the reference,
// otherwise a fresh record.
func (e *Engine) adoptRecord(ctx context.Context, referenceID, localID string) (*subscription.Subscription, bool, error) {
	if localID != "" {
		if id, err := uuid.Parse(localID); err == nil {
			record, err := e.store.ByID(ctx, id)
			switch {
			case err == nil && record.ReferenceID == referenceID:
				return record, false, nil
			case err != nil && !errors.Is(err, subscription.ErrNotFound):
				return nil, false, err
			}
		}
	}
	return &subscription.Subscription{ID: uuid.New(), ReferenceID: referenceID}, true, nil
}

// persistRecord writes the record, superseding the previously live
// subscription when the single-live invariant rejects the write. The
// supersede closes the race where a new subscription goes live while an
// older one has not been reported canceled yet.
func (e *Engine) persistRecord(ctx context.Context, record *subscription.Subscription, isNew bool) error {
	var err error
	if isNew {
		err = e.store.Create(ctx, record)
	} else {
		err = e.store.Update(ctx, record)
	}
	if err == nil || !errors.Is(err, subscription.ErrDuplicateLive) {
		return err
	}

	live, lookupErr := e.store.LiveByReference(ctx, record.ReferenceID)
	if lookupErr != nil {
		return errors.Join(err, lookupErr)
	}
	if live.ID == record.ID {
		return err
	}

	e.log.InfoContext(ctx, "superseding live subscription",
		slog.String("reference_id", record.ReferenceID),
		slog.String("superseded_id", live.ID.String()),
		slog.String("subscription_id", record.ID.String()),
	)
	return e.store.Supersede(ctx, live.ID, record)
}

// resolveTarget picks the record an operation acts on: the explicitly
// named subscription (which must belong to the reference), else the live
// record, else the newest non-terminal one.
func (e *Engine) resolveTarget(ctx context.Context, referenceID string, subscriptionID uuid.UUID) (*subscription.Subscription, error) {
	if subscriptionID != uuid.Nil {
		record, err := e.store.ByID(ctx, subscriptionID)
		if err != nil {
			return nil, err
		}
		if record.ReferenceID != referenceID {
			return nil, errors.Join(subscription.ErrNotFound, fmt.Errorf("subscription %s", subscriptionID))
		}
		return record, nil
	}

	record, err := e.store.LiveByReference(ctx, referenceID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, subscription.ErrNotFound) {
		return nil, err
	}
	return e.store.CurrentByReference(ctx, referenceID)
}

func (e *Engine) trialFor(planName string) *subscription.Trial {
	plan, err := e.registry.Plan(planName)
	if err != nil {
		return nil
	}
	return plan.Trial
}

func normalizePlanName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func clonedTimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
