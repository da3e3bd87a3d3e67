// Package reconcile turns billing provider webhook events into consistent
// local subscription state and drives the checkout, cancellation, and
// restore flows around them.
//
// The engine treats the provider as the source of truth and the local
// store as a reconciled copy: webhook deliveries may repeat and arrive in
// any order, so every write is a full-state overwrite deduplicated by
// provider event id and serialized per reference. At most one subscription
// per reference is ever active or trialing; when a new subscription goes
// live while an older one is still live, the older record is superseded
// atomically.
//
// # Architecture
//
//   - Engine: the reconciliation core (Upgrade, ApplyEvent, Cancel,
//     Restore, List)
//   - Policy: the authorization gate every operation passes first
//   - Hooks: decoupled lifecycle callbacks (complete, update, cancel,
//     deleted, generic event)
//   - Coordinator: absorbs the race between the buyer returning from
//     checkout and the completion webhook
//   - CustomerDirectory: optional bridge to the host's record of provider
//     customer ids
//
// Imperative operations never flip live state themselves. Upgrade writes
// an incomplete placeholder and opens a hosted checkout; Cancel opens the
// provider's portal; only Restore touches the provider and the store
// directly, clearing a scheduled cancellation. Everything else converges
// through ApplyEvent.
//
// # Quick Start
//
//	registry, err := subscription.NewRegistry(ctx, subscription.NewStaticSource(plans...))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	engine := reconcile.New(registry, stripeProvider, store,
//		reconcile.WithEventIndex(subscription.NewRedisEventIndex(rdb)),
//		reconcile.WithHooks(reconcile.Hooks{
//			OnSubscriptionComplete: grantAccess,
//			OnSubscriptionDeleted:  revokeAccess,
//		}),
//	)
//
//	checkout, err := engine.Upgrade(ctx, reconcile.UpgradeParams{
//		Actor:       reconcile.Actor{ID: "user_42", Email: "u42@example.com"},
//		ReferenceID: "user_42",
//		Plan:        "pro",
//		SuccessURL:  "https://app.example.com/billing/success",
//	})
//
// The webhook endpoint verifies payloads with pkg/webhook and feeds the
// events to ApplyEvent; modules/billing wires both ends over HTTP.
package reconcile
