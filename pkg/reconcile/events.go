package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/provider"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

// checkoutSessionPayload mirrors the checkout session object fields the
// engine consumes. Payloads decode into local structs so provider SDK types
// stay out of the reconciliation path.
type checkoutSessionPayload struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// subscriptionPayload mirrors the subscription object. Billing period
// timestamps appear either on the subscription or on its first item
// depending on the provider's API version, so both are kept.
type subscriptionPayload struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Customer           string            `json:"customer"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	TrialStart         int64             `json:"trial_start"`
	TrialEnd           int64             `json:"trial_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			Quantity           int64 `json:"quantity"`
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (p *subscriptionPayload) priceID() string {
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].Price.ID
	}
	return ""
}

func (p *subscriptionPayload) quantity() int64 {
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].Quantity
	}
	return 0
}

func (p *subscriptionPayload) periodStart() int64 {
	if p.CurrentPeriodStart > 0 {
		return p.CurrentPeriodStart
	}
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].CurrentPeriodStart
	}
	return 0
}

func (p *subscriptionPayload) periodEnd() int64 {
	if p.CurrentPeriodEnd > 0 {
		return p.CurrentPeriodEnd
	}
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].CurrentPeriodEnd
	}
	return 0
}

func decodeCheckoutSession(event *webhook.Event) (*checkoutSessionPayload, error) {
	var payload checkoutSessionPayload
	if err := json.Unmarshal(event.Object, &payload); err != nil {
		return nil, errors.Join(webhook.ErrMalformedEvent, fmt.Errorf("checkout session object: %w", err))
	}
	return &payload, nil
}

func decodeSubscription(event *webhook.Event) (*subscriptionPayload, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Object, &payload); err != nil {
		return nil, errors.Join(webhook.ErrMalformedEvent, fmt.Errorf("subscription object: %w", err))
	}
	return &payload, nil
}

// mapProviderStatus translates a provider subscription status into the
// local lifecycle. Unknown statuses return false and leave the stored
// status untouched.
func mapProviderStatus(providerStatus string) (subscription.Status, bool) {
	switch strings.ToLower(providerStatus) {
	case "active":
		return subscription.StatusActive, true
	case "trialing":
		return subscription.StatusTrialing, true
	case "past_due", "unpaid", "paused":
		return subscription.StatusPastDue, true
	case "canceled", "cancelled", "incomplete_expired":
		return subscription.StatusCanceled, true
	case "incomplete":
		return subscription.StatusIncomplete, true
	default:
		return "", false
	}
}

// eventKey is the idempotency key for a delivery. Provider event ids are
// unique per event and stable across redeliveries; events without one fall
// back to a digest of the fields that make a delivery distinct.
func eventKey(event *webhook.Event) string {
	if event.ID != "" {
		return event.ID
	}

	var obj struct {
		ID                 string `json:"id"`
		CurrentPeriodStart int64  `json:"current_period_start"`
	}
	_ = json.Unmarshal(event.Object, &obj)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d", event.Type, obj.ID, obj.CurrentPeriodStart)
	return hex.EncodeToString(h.Sum(nil))
}

// completionKey guards the one-time completion callback for a provider
// subscription, independent of which event delivered the completion.
func completionKey(providerSubID string) string {
	return "complete:" + providerSubID
}

// customMetadata strips the correlation keys the adapters reserve, leaving
// only the caller-supplied pairs that belong on the record.
func customMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		if k == provider.MetadataReferenceID || k == provider.MetadataSubscriptionID {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func unixTimePtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
