// Package provider defines the narrow contract the reconciliation engine
// uses to talk to a hosted billing provider, together with Stripe and Paddle
// implementations of it.
//
// The contract covers exactly what subscription lifecycle management needs:
// creating customers, opening hosted checkout and billing portal sessions,
// fetching the provider's view of a subscription, and resuming a
// subscription that was scheduled to cancel. Everything else (invoicing,
// payment methods, tax) stays behind the provider's own hosted surfaces.
//
// Adapters embed the reference_id and local subscription_id into checkout
// metadata so that webhook events can be correlated back to local records
// without provider-specific lookups.
//
// Failures surface as *Error carrying a provider code and message. Errors
// that the caller needs to branch on additionally match the package
// sentinels via errors.Is:
//
//	state, err := prov.GetSubscription(ctx, "sub_123")
//	if errors.Is(err, provider.ErrNotFound) {
//	    // the provider no longer knows this subscription
//	}
package provider
