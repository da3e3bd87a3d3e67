package subscription_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func TestStatus(t *testing.T) {
	t.Parallel()

	t.Run("live statuses", func(t *testing.T) {
		t.Parallel()

		assert.True(t, subscription.StatusActive.Live())
		assert.True(t, subscription.StatusTrialing.Live())
		assert.False(t, subscription.StatusIncomplete.Live())
		assert.False(t, subscription.StatusPastDue.Live())
		assert.False(t, subscription.StatusCanceled.Live())
	})

	t.Run("terminal statuses", func(t *testing.T) {
		t.Parallel()

		assert.True(t, subscription.StatusCanceled.Terminal())
		assert.False(t, subscription.StatusPastDue.Terminal())
		assert.False(t, subscription.StatusIncomplete.Terminal())
	})

	t.Run("valid statuses", func(t *testing.T) {
		t.Parallel()

		assert.True(t, subscription.StatusIncomplete.Valid())
		assert.True(t, subscription.StatusPastDue.Valid())
		assert.False(t, subscription.Status("paused").Valid())
		assert.False(t, subscription.Status("").Valid())
	})
}

func TestSubscriptionTrialHelpers(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("on trial within window", func(t *testing.T) {
		t.Parallel()

		end := now.Add(48 * time.Hour)
		sub := &subscription.Subscription{Status: subscription.StatusTrialing, TrialEnd: &end}
		assert.True(t, sub.OnTrialAt(now))
		assert.False(t, sub.OnTrialAt(end.Add(time.Minute)))
	})

	t.Run("not on trial without window or status", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{Status: subscription.StatusTrialing}
		assert.False(t, sub.OnTrialAt(now))

		end := now.Add(time.Hour)
		sub = &subscription.Subscription{Status: subscription.StatusActive, TrialEnd: &end}
		assert.False(t, sub.OnTrialAt(now))
	})

	t.Run("had trial follows trial start", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{}
		assert.False(t, sub.HadTrial())

		start := now.Add(-time.Hour)
		sub.TrialStart = &start
		assert.True(t, sub.HadTrial())
	})
}

func TestSubscriptionClone(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	orig := &subscription.Subscription{
		ID:          uuid.New(),
		ReferenceID: "user_42",
		Status:      subscription.StatusActive,
		PeriodStart: &start,
		PeriodEnd:   &end,
		Metadata:    map[string]string{"campaign": "spring"},
	}

	clone := orig.Clone()
	require.NotSame(t, orig, clone)
	require.Equal(t, orig.ID, clone.ID)
	require.Equal(t, *orig.PeriodStart, *clone.PeriodStart)
	require.Equal(t, orig.Metadata, clone.Metadata)

	*clone.PeriodStart = clone.PeriodStart.AddDate(0, 2, 0)
	clone.Status = subscription.StatusCanceled
	clone.Metadata["campaign"] = "autumn"

	assert.Equal(t, start, *orig.PeriodStart, "clone must not share timestamp storage")
	assert.Equal(t, subscription.StatusActive, orig.Status)
	assert.Equal(t, "spring", orig.Metadata["campaign"], "clone must not share metadata storage")
}

func TestPlanHelpers(t *testing.T) {
	t.Parallel()

	t.Run("price selection", func(t *testing.T) {
		t.Parallel()

		plan := subscription.Plan{Name: "pro", PriceID: "price_monthly", AnnualDiscountPriceID: "price_annual"}
		assert.Equal(t, "price_monthly", plan.Price(false))
		assert.Equal(t, "price_annual", plan.Price(true))

		plan.AnnualDiscountPriceID = ""
		assert.Equal(t, "price_monthly", plan.Price(true), "fall back to monthly when no annual price")
	})

	t.Run("trial window", func(t *testing.T) {
		t.Parallel()

		started := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		plan := subscription.Plan{Name: "pro", PriceID: "price_monthly", Trial: &subscription.Trial{Days: 14}}
		require.True(t, plan.HasTrial())
		assert.Equal(t, started.AddDate(0, 0, 14), plan.TrialEndsAt(started))

		free := subscription.Plan{Name: "free"}
		assert.False(t, free.HasTrial())
		assert.Equal(t, started, free.TrialEndsAt(started))
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()

		assert.ErrorIs(t, subscription.Plan{}.Validate(), subscription.ErrInvalidPlanConfiguration)
		assert.ErrorIs(t, subscription.Plan{Name: "x", PriceID: "p", Trial: &subscription.Trial{}}.Validate(),
			subscription.ErrInvalidPlanConfiguration)
		assert.ErrorIs(t, subscription.Plan{Name: "x", AnnualDiscountPriceID: "a"}.Validate(),
			subscription.ErrInvalidPlanConfiguration)
		assert.NoError(t, subscription.Plan{Name: "x", PriceID: "p"}.Validate())
	})
}
