package reconcile

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger for reconciliation and hook diagnostics.
// Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithEventIndex sets the idempotency index for webhook deliveries.
// Defaults to an in-memory index; multi-replica deployments need a shared
// one (subscription.NewRedisEventIndex).
func WithEventIndex(index subscription.EventIndex) Option {
	return func(e *Engine) {
		if index != nil {
			e.events = index
		}
	}
}

// WithPolicy replaces the authorization policy. Defaults to DefaultPolicy.
func WithPolicy(policy Policy) Option {
	return func(e *Engine) {
		if policy != nil {
			e.policy = policy
		}
	}
}

// WithCustomerDirectory wires the host's record of provider customer ids.
// Without it the engine reuses customer ids from stored subscriptions and
// creates a provider customer per reference otherwise.
func WithCustomerDirectory(directory CustomerDirectory) Option {
	return func(e *Engine) {
		e.directory = directory
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks Hooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithRedirect wires the redirect coordinator that wraps checkout success
// URLs. Without it success URLs pass to the provider untouched.
func WithRedirect(coordinator *Coordinator) Option {
	return func(e *Engine) {
		e.redirect = coordinator
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithHookBudget sets how long ApplyEvent waits for a hook before
// detaching it. Defaults to 2s.
func WithHookBudget(budget time.Duration) Option {
	return func(e *Engine) {
		if budget > 0 {
			e.hookBudget = budget
		}
	}
}
