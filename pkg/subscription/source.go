package subscription

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source supplies plan definitions to the registry. Implementations may read
// from memory, files, or remote catalogs; the registry caches whatever they
// return and validates it at load time.
type Source interface {
	Plans(ctx context.Context) ([]Plan, error)
}

// SourceFunc adapts a plain function to the Source interface, which keeps
// asynchronously produced plan lists (remote config, feature services) easy
// to plug in.
type SourceFunc func(ctx context.Context) ([]Plan, error)

func (f SourceFunc) Plans(ctx context.Context) ([]Plan, error) {
	return f(ctx)
}

type staticSource struct {
	plans []Plan
}

// NewStaticSource returns a Source backed by a deep copy of the given plans.
// Panics if no plans are provided to ensure the registry always has at least
// one valid plan. Deep copying prevents external modifications from affecting
// the source's state.
func NewStaticSource(plans ...Plan) Source {
	if len(plans) < 1 {
		panic("subscription: at least one plan is required")
	}
	plansCopy := make([]Plan, 0, len(plans))
	for _, plan := range plans {
		plansCopy = append(plansCopy, plan.Clone())
	}
	return &staticSource{plans: plansCopy}
}

// Plans returns a copy of the configured plans so callers cannot modify the
// source's internal state.
func (s *staticSource) Plans(ctx context.Context) ([]Plan, error) {
	out := make([]Plan, 0, len(s.plans))
	for _, plan := range s.plans {
		out = append(out, plan.Clone())
	}
	return out, nil
}

type fileSource struct {
	path string
}

// NewFileSource returns a Source reading plan definitions from a YAML file:
//
//	plans:
//	  - name: pro
//	    price_id: price_pro_monthly
//	    annual_discount_price_id: price_pro_annual
//	    trial:
//	      days: 14
//	    limits:
//	      seats: 10
//
// The file is re-read on every load, so Registry.Refresh picks up edits
// without a restart. Trial hooks cannot be expressed in a file; attach them
// by post-processing the loaded plans with a SourceFunc wrapper.
func NewFileSource(path string) Source {
	if path == "" {
		panic("subscription: plan file path is required")
	}
	return &fileSource{path: path}
}

func (s *fileSource) Plans(ctx context.Context) ([]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, fmt.Errorf("read %s: %w", s.path, err))
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, fmt.Errorf("parse %s: %w", s.path, err))
	}
	if len(doc.Plans) == 0 {
		return nil, errors.Join(ErrFailedToLoadPlans, fmt.Errorf("%s defines no plans", s.path))
	}
	return doc.Plans, nil
}
