package subscription_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func testPlans() []subscription.Plan {
	return []subscription.Plan{
		{Name: "free"},
		{Name: "basic", PriceID: "price_basic_monthly"},
		{
			Name:                  "pro",
			PriceID:               "price_pro_monthly",
			AnnualDiscountPriceID: "price_pro_annual",
			Trial:                 &subscription.Trial{Days: 14},
			Limits:                map[string]int64{"seats": 10},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	t.Run("loads and resolves case-insensitively", func(t *testing.T) {
		t.Parallel()

		reg, err := subscription.NewRegistry(context.Background(), subscription.NewStaticSource(testPlans()...))
		require.NoError(t, err)

		plan, err := reg.Plan("PRO")
		require.NoError(t, err)
		assert.Equal(t, "pro", plan.Name)
		assert.Equal(t, "price_pro_monthly", plan.PriceID)

		_, err = reg.Plan("enterprise")
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		t.Parallel()

		src := subscription.NewStaticSource(
			subscription.Plan{Name: "Pro", PriceID: "a"},
			subscription.Plan{Name: "pro", PriceID: "b"},
		)
		_, err := subscription.NewRegistry(context.Background(), src)
		assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)
	})

	t.Run("rejects shared price ids", func(t *testing.T) {
		t.Parallel()

		src := subscription.NewStaticSource(
			subscription.Plan{Name: "basic", PriceID: "price_shared"},
			subscription.Plan{Name: "pro", PriceID: "price_shared"},
		)
		_, err := subscription.NewRegistry(context.Background(), src)
		assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)
	})

	t.Run("propagates source failures", func(t *testing.T) {
		t.Parallel()

		src := subscription.SourceFunc(func(ctx context.Context) ([]subscription.Plan, error) {
			return nil, errors.New("catalog down")
		})
		_, err := subscription.NewRegistry(context.Background(), src)
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})

	t.Run("panics without a source", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			_, _ = subscription.NewRegistry(context.Background(), nil)
		})
	})
}

func TestRegistryPlanByPriceID(t *testing.T) {
	t.Parallel()

	reg, err := subscription.NewRegistry(context.Background(), subscription.NewStaticSource(testPlans()...))
	require.NoError(t, err)

	monthly, err := reg.PlanByPriceID("price_pro_monthly")
	require.NoError(t, err)
	assert.Equal(t, "pro", monthly.Name)

	annual, err := reg.PlanByPriceID("price_pro_annual")
	require.NoError(t, err)
	assert.Equal(t, "pro", annual.Name)

	_, err = reg.PlanByPriceID("price_unknown")
	assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
}

func TestRegistryRefresh(t *testing.T) {
	t.Parallel()

	t.Run("swaps to the new set", func(t *testing.T) {
		t.Parallel()

		var generation atomic.Int32
		src := subscription.SourceFunc(func(ctx context.Context) ([]subscription.Plan, error) {
			if generation.Load() == 0 {
				return []subscription.Plan{{Name: "basic", PriceID: "price_v1"}}, nil
			}
			return []subscription.Plan{{Name: "basic", PriceID: "price_v2"}}, nil
		})

		reg, err := subscription.NewRegistry(context.Background(), src)
		require.NoError(t, err)

		generation.Store(1)
		require.NoError(t, reg.Refresh(context.Background()))

		plan, err := reg.Plan("basic")
		require.NoError(t, err)
		assert.Equal(t, "price_v2", plan.PriceID)
	})

	t.Run("keeps the old set when reload fails", func(t *testing.T) {
		t.Parallel()

		var fail atomic.Bool
		src := subscription.SourceFunc(func(ctx context.Context) ([]subscription.Plan, error) {
			if fail.Load() {
				return nil, errors.New("catalog down")
			}
			return testPlans(), nil
		})

		reg, err := subscription.NewRegistry(context.Background(), src)
		require.NoError(t, err)

		fail.Store(true)
		require.Error(t, reg.Refresh(context.Background()))

		plan, err := reg.Plan("pro")
		require.NoError(t, err)
		assert.Equal(t, "price_pro_monthly", plan.PriceID)
	})
}

func TestRegistryIsolation(t *testing.T) {
	t.Parallel()

	reg, err := subscription.NewRegistry(context.Background(), subscription.NewStaticSource(testPlans()...))
	require.NoError(t, err)

	plan, err := reg.Plan("pro")
	require.NoError(t, err)
	plan.Limits["seats"] = 999

	again, err := reg.Plan("pro")
	require.NoError(t, err)
	assert.Equal(t, int64(10), again.Limits["seats"], "returned plans must not share limit maps")
}

func TestFileSource(t *testing.T) {
	t.Parallel()

	t.Run("parses plan file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "plans.yaml")
		doc := `plans:
  - name: basic
    price_id: price_basic_monthly
  - name: pro
    price_id: price_pro_monthly
    annual_discount_price_id: price_pro_annual
    trial:
      days: 14
    limits:
      seats: 10
`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		reg, err := subscription.NewRegistry(context.Background(), subscription.NewFileSource(path))
		require.NoError(t, err)

		plan, err := reg.Plan("pro")
		require.NoError(t, err)
		require.NotNil(t, plan.Trial)
		assert.Equal(t, 14, plan.Trial.Days)
		assert.Equal(t, int64(10), plan.Limits["seats"])
	})

	t.Run("rejects empty files", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte("plans: []\n"), 0o600))

		src := subscription.NewFileSource(path)
		_, err := src.Plans(context.Background())
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})

	t.Run("missing file surfaces load error", func(t *testing.T) {
		t.Parallel()

		src := subscription.NewFileSource(filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := src.Plans(context.Background())
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})
}
