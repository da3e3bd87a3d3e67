package subscription

import "errors"

var (
	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	ErrNotFound           = errors.New("subscription not found")
	ErrSubscriptionExists = errors.New("subscription already exists")
	ErrDuplicateLive      = errors.New("reference already has a live subscription")
	ErrVersionMismatch    = errors.New("subscription was modified concurrently")

	ErrMissingID          = errors.New("subscription id is required")
	ErrMissingReferenceID = errors.New("reference id is required")

	ErrEventIndexUnavailable = errors.New("event index unavailable")
)
