package webhook_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

const testSecret = "whsec_test_secret"

func eventBody(t *testing.T, id, eventType string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":      id,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{"id": "sub_abc", "status": "active"},
		},
	})
	require.NoError(t, err)
	return body
}

func TestVerifierVerify(t *testing.T) {
	t.Parallel()

	t.Run("accepts a correctly signed payload", func(t *testing.T) {
		t.Parallel()

		v, err := webhook.NewVerifier(testSecret)
		require.NoError(t, err)

		body := eventBody(t, "evt_1", "customer.subscription.updated")
		header, err := webhook.Sign(testSecret, body, time.Now())
		require.NoError(t, err)

		event, err := v.Verify(body, header)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, webhook.EventSubscriptionUpdated, event.Type)
		assert.JSONEq(t, `{"id":"sub_abc","status":"active"}`, string(event.Object))
	})

	t.Run("rejects a tampered payload", func(t *testing.T) {
		t.Parallel()

		v, err := webhook.NewVerifier(testSecret)
		require.NoError(t, err)

		body := eventBody(t, "evt_1", "customer.subscription.updated")
		header, err := webhook.Sign(testSecret, body, time.Now())
		require.NoError(t, err)

		tampered := []byte(strings.Replace(string(body), "active", "paused", 1))
		_, err = v.Verify(tampered, header)
		assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
	})

	t.Run("rejects a wrong secret", func(t *testing.T) {
		t.Parallel()

		v, err := webhook.NewVerifier(testSecret)
		require.NoError(t, err)

		body := eventBody(t, "evt_1", "customer.subscription.updated")
		header, err := webhook.Sign("whsec_other", body, time.Now())
		require.NoError(t, err)

		_, err = v.Verify(body, header)
		assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
	})

	t.Run("rejects stale and future timestamps", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		v, err := webhook.NewVerifier(testSecret,
			webhook.WithTolerance(5*time.Minute),
			webhook.WithClock(func() time.Time { return now }),
		)
		require.NoError(t, err)

		body := eventBody(t, "evt_1", "customer.subscription.updated")

		stale, err := webhook.Sign(testSecret, body, now.Add(-6*time.Minute))
		require.NoError(t, err)
		_, err = v.Verify(body, stale)
		assert.ErrorIs(t, err, webhook.ErrSignatureExpired)
		assert.ErrorIs(t, err, webhook.ErrInvalidSignature)

		future, err := webhook.Sign(testSecret, body, now.Add(2*time.Minute))
		require.NoError(t, err)
		_, err = v.Verify(body, future)
		assert.ErrorIs(t, err, webhook.ErrTimestampInFuture)

		within, err := webhook.Sign(testSecret, body, now.Add(-4*time.Minute))
		require.NoError(t, err)
		_, err = v.Verify(body, within)
		assert.NoError(t, err)
	})

	t.Run("accepts any matching v1 during secret rolls", func(t *testing.T) {
		t.Parallel()

		v, err := webhook.NewVerifier(testSecret)
		require.NoError(t, err)

		body := eventBody(t, "evt_1", "customer.subscription.updated")
		at := time.Now()
		oldHeader, err := webhook.Sign("whsec_retired", body, at)
		require.NoError(t, err)
		newHeader, err := webhook.Sign(testSecret, body, at)
		require.NoError(t, err)

		// Header carries the retired signature first, the current one second.
		_, newV1, found := strings.Cut(newHeader, ",")
		require.True(t, found)
		_, err = v.Verify(body, oldHeader+","+newV1)
		assert.NoError(t, err)
	})

	t.Run("rejects missing or malformed headers", func(t *testing.T) {
		t.Parallel()

		v, err := webhook.NewVerifier(testSecret)
		require.NoError(t, err)

		body := eventBody(t, "evt_1", "customer.subscription.updated")

		_, err = v.Verify(body, "")
		assert.ErrorIs(t, err, webhook.ErrMissingSignature)

		for _, header := range []string{
			"v1=abcdef",
			"t=notanumber,v1=abcdef",
			"t=123",
			fmt.Sprintf("t=%d,v1=nothex", time.Now().Unix()),
			"gibberish",
		} {
			_, err = v.Verify(body, header)
			assert.ErrorIs(t, err, webhook.ErrInvalidSignature, "header %q", header)
		}
	})

	t.Run("malformed body after valid signature", func(t *testing.T) {
		t.Parallel()

		v, err := webhook.NewVerifier(testSecret)
		require.NoError(t, err)

		body := []byte("{not json")
		header, err := webhook.Sign(testSecret, body, time.Now())
		require.NoError(t, err)

		_, err = v.Verify(body, header)
		assert.ErrorIs(t, err, webhook.ErrMalformedEvent)
		assert.NotErrorIs(t, err, webhook.ErrInvalidSignature)
	})

	t.Run("requires a secret", func(t *testing.T) {
		t.Parallel()

		_, err := webhook.NewVerifier("")
		assert.ErrorIs(t, err, webhook.ErrInvalidConfiguration)
	})
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	t.Run("extracts the envelope", func(t *testing.T) {
		t.Parallel()

		created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		body := []byte(fmt.Sprintf(
			`{"id":"evt_9","type":"invoice.paid","created":%d,"data":{"object":{"id":"in_1"}}}`,
			created.Unix(),
		))

		event, err := webhook.ParseEvent(body)
		require.NoError(t, err)
		assert.Equal(t, "evt_9", event.ID)
		assert.Equal(t, webhook.EventType("invoice.paid"), event.Type)
		assert.False(t, event.Type.Recognized())
		assert.True(t, created.Equal(event.CreatedAt))
		assert.JSONEq(t, `{"id":"in_1"}`, string(event.Object))
		assert.Equal(t, body, []byte(event.Raw))
	})

	t.Run("requires a type", func(t *testing.T) {
		t.Parallel()

		_, err := webhook.ParseEvent([]byte(`{"id":"evt_9"}`))
		assert.ErrorIs(t, err, webhook.ErrMalformedEvent)
	})

	t.Run("recognized types", func(t *testing.T) {
		t.Parallel()

		assert.True(t, webhook.EventCheckoutCompleted.Recognized())
		assert.True(t, webhook.EventSubscriptionUpdated.Recognized())
		assert.True(t, webhook.EventSubscriptionDeleted.Recognized())
		assert.False(t, webhook.EventType("charge.refunded").Recognized())
	})
}
