// Package subscription holds the subscription domain model: records and
// statuses, plan definitions with their registry, persistence contracts, and
// the event index used for webhook idempotency.
//
// The package enforces one structural invariant: a reference id (the
// application-side owner, typically a user or organization id) holds at most
// one live subscription, where live means status active or trialing. Stores
// reject writes that would break the invariant and expose an atomic
// Supersede operation for resolving races in favor of the newest provider
// state.
//
// # Core Components
//
//   - Subscription: the local record mirroring provider state
//   - Plan / Registry / Source: plan catalog with case-insensitive resolution
//   - Store: persistence contract (in-memory and Postgres implementations)
//   - EventIndex: consumed-event bookkeeping (in-memory and Redis)
//
// Records are full-state projections of the billing provider; webhook
// payloads overwrite the fields they carry rather than patching them. The
// Version field carries optimistic concurrency: Update succeeds only when the
// caller read the version it is replacing.
//
// # Usage
//
//	registry, err := subscription.NewRegistry(ctx, subscription.NewStaticSource(
//		subscription.Plan{Name: "pro", PriceID: "price_pro_monthly"},
//	))
//	if err != nil {
//		return err
//	}
//
//	store := subscription.NewMemoryStore()
//	sub := &subscription.Subscription{
//		ID:          uuid.New(),
//		ReferenceID: "user_42",
//		Plan:        "pro",
//		Status:      subscription.StatusIncomplete,
//	}
//	if err := store.Create(ctx, sub); err != nil {
//		return err
//	}
package subscription
