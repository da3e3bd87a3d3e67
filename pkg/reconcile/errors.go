package reconcile

import "errors"

var (
	// ErrValidation indicates the request was malformed or referenced an
	// unknown plan. Joined with a detail error describing the field.
	ErrValidation = errors.New("invalid request")

	// ErrUnauthorized indicates the actor may not act on the reference.
	// The store is never touched on a denial.
	ErrUnauthorized = errors.New("actor is not authorized for this reference")

	// ErrSwitchRequiresTarget indicates the reference already pays for a
	// live subscription, so upgrading requires naming the record being
	// replaced.
	ErrSwitchRequiresTarget = errors.New("reference has a live subscription, upgrade must name the record to replace")

	// ErrNotRestorable indicates the subscription is terminal or has no
	// pending cancellation to undo.
	ErrNotRestorable = errors.New("subscription has no pending cancellation to restore")
)
