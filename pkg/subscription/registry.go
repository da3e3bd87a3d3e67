package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Registry resolves plans by name or provider price id. Plans are loaded once
// at construction, validated, and cached for the lifetime of the process;
// Refresh re-runs the source and atomically swaps the cache.
type Registry struct {
	src Source

	mu      sync.RWMutex
	plans   []Plan
	byName  map[string]int
	byPrice map[string]int
}

// NewRegistry loads plans from the source and validates them. Panics on a nil
// source because that is a wiring bug, and returns an error when the source
// fails or the plan set is inconsistent.
func NewRegistry(ctx context.Context, src Source) (*Registry, error) {
	if src == nil {
		panic("subscription: registry requires a plan source")
	}
	r := &Registry{src: src}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh reloads plans from the source. The cached set is replaced only when
// the new set passes validation, so a failing source never degrades an
// already-working registry.
func (r *Registry) Refresh(ctx context.Context) error {
	plans, err := r.src.Plans(ctx)
	if err != nil {
		return errors.Join(ErrFailedToLoadPlans, err)
	}

	byName, byPrice, err := indexPlans(plans)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.plans = plans
	r.byName = byName
	r.byPrice = byPrice
	r.mu.Unlock()
	return nil
}

// Plan resolves a plan by name, matched case-insensitively.
// Returns ErrPlanNotFound if no such plan exists.
func (r *Registry) Plan(name string) (Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Plan{}, errors.Join(ErrPlanNotFound, fmt.Errorf("plan %q", name))
	}
	return r.plans[i].Clone(), nil
}

// PlanByPriceID resolves a plan by either of its provider price ids. Webhook
// reconciliation uses this to follow plan switches made at the provider.
func (r *Registry) PlanByPriceID(priceID string) (Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byPrice[priceID]
	if !ok {
		return Plan{}, errors.Join(ErrPlanNotFound, fmt.Errorf("price %q", priceID))
	}
	return r.plans[i].Clone(), nil
}

// Plans returns a copy of all loaded plans.
func (r *Registry) Plans() []Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plan, 0, len(r.plans))
	for _, p := range r.plans {
		out = append(out, p.Clone())
	}
	return out
}

// indexPlans validates the plan set and builds lookup indexes. Ambiguous
// configuration (duplicate names or price ids) is rejected here so resolution
// never has to guess.
func indexPlans(plans []Plan) (byName, byPrice map[string]int, err error) {
	if len(plans) == 0 {
		return nil, nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("at least one plan is required"))
	}

	byName = make(map[string]int, len(plans))
	byPrice = make(map[string]int, len(plans))
	for i, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, nil, err
		}

		key := strings.ToLower(strings.TrimSpace(p.Name))
		if _, dup := byName[key]; dup {
			return nil, nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan name %q", p.Name))
		}
		byName[key] = i

		for _, priceID := range []string{p.PriceID, p.AnnualDiscountPriceID} {
			if priceID == "" {
				continue
			}
			if _, dup := byPrice[priceID]; dup {
				return nil, nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("price %q is used by more than one plan", priceID))
			}
			byPrice[priceID] = i
		}
	}
	return byName, byPrice, nil
}
