package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

// Hooks receive lifecycle notifications as webhook events reconcile into
// the store. All fields are optional. Hooks run decoupled from the
// triggering request: failures and panics are logged, never propagated, and
// never affect stored state.
type Hooks struct {
	// OnSubscriptionComplete fires once per provider subscription when its
	// checkout completes, with the triggering event attached.
	OnSubscriptionComplete func(ctx context.Context, sub *subscription.Subscription, event *webhook.Event) error

	// OnSubscriptionUpdate fires when a full-state overwrite changed the
	// stored record.
	OnSubscriptionUpdate func(ctx context.Context, sub *subscription.Subscription) error

	// OnSubscriptionCancel fires when a scheduled cancellation is first
	// observed (cancel-at-period-end flipping on).
	OnSubscriptionCancel func(ctx context.Context, sub *subscription.Subscription) error

	// OnSubscriptionDeleted fires when the provider terminates the
	// subscription.
	OnSubscriptionDeleted func(ctx context.Context, sub *subscription.Subscription) error

	// OnEvent observes every verified event the engine accepts, recognized
	// or not, before type-specific handling.
	OnEvent func(ctx context.Context, event *webhook.Event) error
}

// hookContextTimeout caps how long a detached hook may keep running after
// the engine stops waiting for it.
const hookContextTimeout = 10 * time.Second

// dispatchHook runs fn on its own goroutine, detached from the caller's
// cancellation, and waits up to the hook budget so fast hooks complete
// before the webhook response is written. Slow hooks keep running in the
// background until hookContextTimeout.
func (e *Engine) dispatchHook(ctx context.Context, name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("hook panicked",
					slog.String("hook", name),
					slog.Any("panic", r),
				)
			}
		}()

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookContextTimeout)
		defer cancel()

		if err := fn(hctx); err != nil {
			e.log.Error("hook failed",
				slog.String("hook", name),
				slog.Any("error", err),
			)
		}
	}()

	timer := time.NewTimer(e.hookBudget)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		e.log.Warn("hook still running, detaching", slog.String("hook", name))
	}
}

// The fire* helpers hand hooks isolated clones so a hook mutating its
// argument cannot reach back into engine state.

func (e *Engine) fireOnEvent(ctx context.Context, event *webhook.Event) {
	if e.hooks.OnEvent == nil {
		return
	}
	e.dispatchHook(ctx, "event", func(hctx context.Context) error {
		return e.hooks.OnEvent(hctx, event)
	})
}

func (e *Engine) fireComplete(ctx context.Context, sub *subscription.Subscription, event *webhook.Event) {
	if e.hooks.OnSubscriptionComplete == nil {
		return
	}
	sub = sub.Clone()
	e.dispatchHook(ctx, "subscription.complete", func(hctx context.Context) error {
		return e.hooks.OnSubscriptionComplete(hctx, sub, event)
	})
}

func (e *Engine) fireUpdate(ctx context.Context, sub *subscription.Subscription) {
	if e.hooks.OnSubscriptionUpdate == nil {
		return
	}
	sub = sub.Clone()
	e.dispatchHook(ctx, "subscription.update", func(hctx context.Context) error {
		return e.hooks.OnSubscriptionUpdate(hctx, sub)
	})
}

func (e *Engine) fireCancel(ctx context.Context, sub *subscription.Subscription) {
	if e.hooks.OnSubscriptionCancel == nil {
		return
	}
	sub = sub.Clone()
	e.dispatchHook(ctx, "subscription.cancel", func(hctx context.Context) error {
		return e.hooks.OnSubscriptionCancel(hctx, sub)
	})
}

func (e *Engine) fireDeleted(ctx context.Context, sub *subscription.Subscription) {
	if e.hooks.OnSubscriptionDeleted == nil {
		return
	}
	sub = sub.Clone()
	e.dispatchHook(ctx, "subscription.deleted", func(hctx context.Context) error {
		return e.hooks.OnSubscriptionDeleted(hctx, sub)
	})
}

func (e *Engine) fireTrialHook(ctx context.Context, name string, fn subscription.TrialHook, sub *subscription.Subscription) {
	if fn == nil {
		return
	}
	sub = sub.Clone()
	e.dispatchHook(ctx, name, func(hctx context.Context) error {
		return fn(hctx, sub)
	})
}
