package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

func TestMapProviderStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		want   subscription.Status
		mapped bool
	}{
		{"active", subscription.StatusActive, true},
		{"trialing", subscription.StatusTrialing, true},
		{"Trialing", subscription.StatusTrialing, true},
		{"past_due", subscription.StatusPastDue, true},
		{"unpaid", subscription.StatusPastDue, true},
		{"paused", subscription.StatusPastDue, true},
		{"canceled", subscription.StatusCanceled, true},
		{"cancelled", subscription.StatusCanceled, true},
		{"incomplete_expired", subscription.StatusCanceled, true},
		{"incomplete", subscription.StatusIncomplete, true},
		{"", "", false},
		{"provisional", "", false},
	}

	for _, tc := range cases {
		got, ok := mapProviderStatus(tc.in)
		assert.Equal(t, tc.mapped, ok, "status %q", tc.in)
		assert.Equal(t, tc.want, got, "status %q", tc.in)
	}
}

func TestEventKey(t *testing.T) {
	t.Parallel()

	t.Run("provider event id wins", func(t *testing.T) {
		t.Parallel()

		event := &webhook.Event{ID: "evt_1", Type: webhook.EventSubscriptionUpdated, Object: json.RawMessage(`{"id":"sub_1"}`)}
		assert.Equal(t, "evt_1", eventKey(event))
	})

	t.Run("fallback digest is stable and content-sensitive", func(t *testing.T) {
		t.Parallel()

		base := &webhook.Event{Type: webhook.EventSubscriptionUpdated, Object: json.RawMessage(`{"id":"sub_1","current_period_start":1700000000}`)}
		same := &webhook.Event{Type: webhook.EventSubscriptionUpdated, Object: json.RawMessage(`{"id":"sub_1","current_period_start":1700000000}`)}
		otherSub := &webhook.Event{Type: webhook.EventSubscriptionUpdated, Object: json.RawMessage(`{"id":"sub_2","current_period_start":1700000000}`)}
		otherPeriod := &webhook.Event{Type: webhook.EventSubscriptionUpdated, Object: json.RawMessage(`{"id":"sub_1","current_period_start":1702592000}`)}
		otherType := &webhook.Event{Type: webhook.EventSubscriptionDeleted, Object: json.RawMessage(`{"id":"sub_1","current_period_start":1700000000}`)}

		assert.Equal(t, eventKey(base), eventKey(same))
		assert.NotEqual(t, eventKey(base), eventKey(otherSub))
		assert.NotEqual(t, eventKey(base), eventKey(otherPeriod))
		assert.NotEqual(t, eventKey(base), eventKey(otherType))
	})
}

func TestSubscriptionPayloadFallbacks(t *testing.T) {
	t.Parallel()

	t.Run("item fields fill in missing top-level periods", func(t *testing.T) {
		t.Parallel()

		raw := []byte(`{
			"id": "sub_1",
			"status": "active",
			"items": {"data": [{
				"quantity": 3,
				"current_period_start": 1700000000,
				"current_period_end": 1702592000,
				"price": {"id": "price_pro_monthly"}
			}]}
		}`)
		var payload subscriptionPayload
		require.NoError(t, json.Unmarshal(raw, &payload))

		assert.Equal(t, "price_pro_monthly", payload.priceID())
		assert.Equal(t, int64(3), payload.quantity())
		assert.Equal(t, int64(1700000000), payload.periodStart())
		assert.Equal(t, int64(1702592000), payload.periodEnd())
	})

	t.Run("top-level periods win over item periods", func(t *testing.T) {
		t.Parallel()

		raw := []byte(`{
			"id": "sub_1",
			"current_period_start": 1600000000,
			"current_period_end": 1602592000,
			"items": {"data": [{
				"current_period_start": 1700000000,
				"current_period_end": 1702592000
			}]}
		}`)
		var payload subscriptionPayload
		require.NoError(t, json.Unmarshal(raw, &payload))

		assert.Equal(t, int64(1600000000), payload.periodStart())
		assert.Equal(t, int64(1602592000), payload.periodEnd())
	})

	t.Run("empty payload yields zero values", func(t *testing.T) {
		t.Parallel()

		var payload subscriptionPayload
		require.NoError(t, json.Unmarshal([]byte(`{"id":"sub_1"}`), &payload))

		assert.Empty(t, payload.priceID())
		assert.Zero(t, payload.quantity())
		assert.Zero(t, payload.periodStart())
		assert.Zero(t, payload.periodEnd())
	})
}

func TestUnixTimePtr(t *testing.T) {
	t.Parallel()

	assert.Nil(t, unixTimePtr(0))
	assert.Nil(t, unixTimePtr(-5))

	ts := unixTimePtr(1700000000)
	require.NotNil(t, ts)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *ts)
	assert.Equal(t, time.UTC, ts.Location())
}
