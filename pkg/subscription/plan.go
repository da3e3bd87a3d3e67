package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Plan describes a purchasable subscription tier. PriceID must be set to the
// payment provider's price identifier so checkout and webhook processing can
// map between the catalog and provider payloads.
type Plan struct {
	Name                  string           `yaml:"name" json:"name"`
	PriceID               string           `yaml:"price_id" json:"price_id"`
	AnnualDiscountPriceID string           `yaml:"annual_discount_price_id,omitempty" json:"annual_discount_price_id,omitempty"`
	Group                 string           `yaml:"group,omitempty" json:"group,omitempty"`
	Limits                map[string]int64 `yaml:"limits,omitempty" json:"limits,omitempty"` // -1 represents unlimited
	Trial                 *Trial           `yaml:"trial,omitempty" json:"trial,omitempty"`
}

// Trial configures an optional free trial window for a plan. The hooks are
// invoked by the reconciliation layer at trial transitions and are never set
// from file-based plan sources.
type Trial struct {
	Days      int       `yaml:"days" json:"days"`
	OnStart   TrialHook `yaml:"-" json:"-"`
	OnEnd     TrialHook `yaml:"-" json:"-"`
	OnExpired TrialHook `yaml:"-" json:"-"`
}

// TrialHook receives the subscription record at a trial transition. Returned
// errors are logged, never propagated into the transition itself.
type TrialHook func(ctx context.Context, sub *Subscription) error

// Unlimited indicates no limit for a plan resource (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// Price returns the provider price id for the requested billing interval,
// falling back to the monthly price when no annual price is configured.
func (p Plan) Price(annual bool) string {
	if annual && p.AnnualDiscountPriceID != "" {
		return p.AnnualDiscountPriceID
	}
	return p.PriceID
}

// HasTrial reports whether the plan carries a usable trial window.
func (p Plan) HasTrial() bool {
	return p.Trial != nil && p.Trial.Days > 0
}

// TrialEndsAt calculates when a trial started at the given time ends.
// Returns startedAt unchanged if the plan has no trial.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if !p.HasTrial() {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.Trial.Days).UTC()
}

// Validate checks the plan definition in isolation. Cross-plan rules
// (duplicate names, duplicate price ids) are enforced by the registry.
func (p Plan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("plan name is required"))
	}
	if p.Trial != nil && p.Trial.Days <= 0 {
		return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %q: trial days must be positive", p.Name))
	}
	if p.AnnualDiscountPriceID != "" && p.PriceID == "" {
		return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %q: annual price requires a base price", p.Name))
	}
	if p.AnnualDiscountPriceID != "" && p.AnnualDiscountPriceID == p.PriceID {
		return errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("plan %q: annual price duplicates the base price", p.Name))
	}
	return nil
}

// Clone returns a deep copy so cached plan definitions cannot be mutated
// through returned values.
func (p Plan) Clone() Plan {
	out := p
	if p.Limits != nil {
		out.Limits = make(map[string]int64, len(p.Limits))
		for k, v := range p.Limits {
			out.Limits[k] = v
		}
	}
	if p.Trial != nil {
		trial := *p.Trial
		out.Trial = &trial
	}
	return out
}
