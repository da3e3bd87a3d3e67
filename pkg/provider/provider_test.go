package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func TestError(t *testing.T) {
	t.Parallel()

	t.Run("formats code and message", func(t *testing.T) {
		t.Parallel()

		err := NewError("card_declined", "Your card was declined.", nil)
		assert.Equal(t, "billing provider: Your card was declined. (code card_declined)", err.Error())

		bare := NewError("", "upstream unreachable", nil)
		assert.Equal(t, "billing provider: upstream unreachable", bare.Error())
	})

	t.Run("unwraps to the cause", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("connection reset")
		err := NewError(CodeUnavailable, "request failed", cause)
		assert.ErrorIs(t, err, cause)

		var pErr *Error
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, CodeUnavailable, pErr.Code)
	})

	t.Run("joined sentinels stay reachable", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("no such subscription")
		err := NewError("resource_missing", "No such subscription", errors.Join(cause, ErrNotFound))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, cause)
	})
}

func TestNewStripeProvider(t *testing.T) {
	_, err := NewStripeProvider(StripeConfig{})
	require.Error(t, err)

	p, err := NewStripeProvider(StripeConfig{SecretKey: "sk_test_123"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "sk_test_123", stripe.Key)
}

func TestNewPaddleProvider(t *testing.T) {
	t.Parallel()

	t.Run("requires api key", func(t *testing.T) {
		t.Parallel()

		_, err := NewPaddleProvider(PaddleConfig{})
		require.Error(t, err)
	})

	t.Run("rejects unknown environment", func(t *testing.T) {
		t.Parallel()

		_, err := NewPaddleProvider(PaddleConfig{APIKey: "pdl_test", Environment: "staging"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid paddle environment")
	})

	t.Run("builds sandbox and production clients", func(t *testing.T) {
		t.Parallel()

		for _, env := range []string{"sandbox", "production", ""} {
			p, err := NewPaddleProvider(PaddleConfig{APIKey: "pdl_test", Environment: env})
			require.NoError(t, err, "environment %q", env)
			require.NotNil(t, p)
		}
	})
}

func TestWrapStripeErr(t *testing.T) {
	t.Parallel()

	t.Run("keeps the stripe error code", func(t *testing.T) {
		t.Parallel()

		cause := &stripe.Error{Code: stripe.ErrorCodeCardDeclined, Msg: "Your card was declined."}
		err := wrapStripeErr("failed to create stripe checkout session", cause)

		var pErr *Error
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, string(stripe.ErrorCodeCardDeclined), pErr.Code)
		assert.Equal(t, "Your card was declined.", pErr.Message)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("maps resource_missing to ErrNotFound", func(t *testing.T) {
		t.Parallel()

		cause := &stripe.Error{Code: stripe.ErrorCodeResourceMissing, Msg: "No such subscription: 'sub_404'"}
		err := wrapStripeErr("failed to retrieve stripe subscription", cause)

		assert.ErrorIs(t, err, ErrNotFound)

		var stripeErr *stripe.Error
		assert.ErrorAs(t, err, &stripeErr)
	})

	t.Run("wraps untyped failures as unavailable", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("dial tcp: connection refused")
		err := wrapStripeErr("failed to create stripe customer", cause)

		var pErr *Error
		require.ErrorAs(t, err, &pErr)
		assert.Equal(t, CodeUnavailable, pErr.Code)
		assert.ErrorIs(t, err, cause)
	})
}

func TestStripeSubscriptionState(t *testing.T) {
	t.Parallel()

	t.Run("maps the full snapshot", func(t *testing.T) {
		t.Parallel()

		now := time.Now().Truncate(time.Second)
		sub := &stripe.Subscription{
			ID:                "sub_abc",
			Status:            stripe.SubscriptionStatusTrialing,
			CancelAtPeriodEnd: true,
			TrialStart:        now.Unix(),
			TrialEnd:          now.Add(14 * 24 * time.Hour).Unix(),
			Customer:          &stripe.Customer{ID: "cus_123"},
			Metadata: map[string]string{
				MetadataReferenceID: "user_42",
			},
			Items: &stripe.SubscriptionItemList{
				Data: []*stripe.SubscriptionItem{
					{
						Price:              &stripe.Price{ID: "price_pro_monthly"},
						Quantity:           3,
						CurrentPeriodStart: now.Unix(),
						CurrentPeriodEnd:   now.Add(30 * 24 * time.Hour).Unix(),
					},
				},
			},
		}

		state := stripeSubscriptionState(sub)
		assert.Equal(t, "sub_abc", state.ID)
		assert.Equal(t, "cus_123", state.CustomerID)
		assert.Equal(t, "trialing", state.Status)
		assert.Equal(t, "price_pro_monthly", state.PriceID)
		assert.Equal(t, int64(3), state.Quantity)
		assert.True(t, state.CancelAtPeriodEnd)
		assert.True(t, state.TrialStart.Equal(now))
		assert.True(t, state.TrialEnd.Equal(now.Add(14*24*time.Hour)))
		assert.True(t, state.PeriodStart.Equal(now))
		assert.True(t, state.PeriodEnd.Equal(now.Add(30*24*time.Hour)))
		assert.Equal(t, "user_42", state.Metadata[MetadataReferenceID])
	})

	t.Run("tolerates missing items and timestamps", func(t *testing.T) {
		t.Parallel()

		state := stripeSubscriptionState(&stripe.Subscription{
			ID:     "sub_sparse",
			Status: stripe.SubscriptionStatusIncomplete,
		})
		assert.Equal(t, "incomplete", state.Status)
		assert.Empty(t, state.PriceID)
		assert.True(t, state.PeriodEnd.IsZero())
		assert.True(t, state.TrialEnd.IsZero())
	})
}

func TestDecodePaddleSubscriptionState(t *testing.T) {
	t.Parallel()

	t.Run("decodes the wire shape", func(t *testing.T) {
		t.Parallel()

		raw := []byte(`{
			"id": "sub_01hv8x5t9q",
			"status": "active",
			"customer_id": "ctm_01hv8wptq8",
			"currency_code": "USD",
			"current_billing_period": {
				"starts_at": "2026-08-01T00:00:00Z",
				"ends_at": "2026-09-01T00:00:00Z"
			},
			"scheduled_change": {"action": "cancel", "effective_at": "2026-09-01T00:00:00Z"},
			"items": [{
				"status": "active",
				"quantity": 3,
				"trial_dates": {
					"starts_at": "2026-07-18T00:00:00Z",
					"ends_at": "2026-08-01T00:00:00Z"
				},
				"price": {"id": "pri_01hv8xa2b3", "product_id": "pro_01hv8x9"}
			}],
			"custom_data": {"reference_id": "user_42", "subscription_id": "0d4f", "seats": 3}
		}`)

		state, err := decodePaddleSubscriptionState(raw)
		require.NoError(t, err)

		assert.Equal(t, "sub_01hv8x5t9q", state.ID)
		assert.Equal(t, "ctm_01hv8wptq8", state.CustomerID)
		assert.Equal(t, "active", state.Status)
		assert.Equal(t, "pri_01hv8xa2b3", state.PriceID)
		assert.Equal(t, int64(3), state.Quantity)
		assert.True(t, state.CancelAtPeriodEnd)
		assert.True(t, state.PeriodStart.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
		assert.True(t, state.PeriodEnd.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)))
		assert.True(t, state.TrialStart.Equal(time.Date(2026, 7, 18, 0, 0, 0, 0, time.UTC)))
		assert.True(t, state.TrialEnd.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))

		// Non-string custom data values are dropped.
		assert.Equal(t, "user_42", state.Metadata[MetadataReferenceID])
		assert.Equal(t, "0d4f", state.Metadata[MetadataSubscriptionID])
		assert.NotContains(t, state.Metadata, "seats")
	})

	t.Run("pause without cancel is not cancel-at-period-end", func(t *testing.T) {
		t.Parallel()

		state, err := decodePaddleSubscriptionState([]byte(`{
			"id": "sub_paused",
			"status": "paused",
			"scheduled_change": {"action": "pause"}
		}`))
		require.NoError(t, err)
		assert.False(t, state.CancelAtPeriodEnd)
		assert.Equal(t, "paused", state.Status)
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		t.Parallel()

		_, err := decodePaddleSubscriptionState([]byte(`{"items": "nope"}`))
		require.Error(t, err)
	})
}

func TestCorrelationMetadata(t *testing.T) {
	t.Parallel()

	md := correlationMetadata(CheckoutParams{
		ReferenceID:    "user_42",
		SubscriptionID: "c0ffee",
		Metadata: map[string]string{
			"campaign":          "spring",
			MetadataReferenceID: "spoofed",
		},
	})

	// Reserved keys always win over caller-supplied metadata.
	assert.Equal(t, "user_42", md[MetadataReferenceID])
	assert.Equal(t, "c0ffee", md[MetadataSubscriptionID])
	assert.Equal(t, "spring", md["campaign"])
}

func TestPaddleResumeNotSupported(t *testing.T) {
	t.Parallel()

	p, err := NewPaddleProvider(PaddleConfig{APIKey: "pdl_test", Environment: "sandbox"})
	require.NoError(t, err)

	err = p.ResumeSubscription(context.Background(), "sub_123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotSupported)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, CodeNotSupported, pErr.Code)
}
