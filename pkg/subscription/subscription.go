package subscription

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a subscription record.
//
// Lifecycle: incomplete -> (trialing | active) -> past_due -> (active |
// canceled). Any non-terminal status may move to canceled, which is terminal.
type Status string

const (
	// StatusIncomplete marks a record created before checkout finished.
	StatusIncomplete Status = "incomplete"
	StatusTrialing   Status = "trialing"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	// StatusCanceled is terminal; a new subscription requires a new record.
	StatusCanceled Status = "canceled"
)

// Live reports whether the status grants entitlements (active or trialing).
// The single-live invariant counts exactly these statuses.
func (s Status) Live() bool {
	return s == StatusActive || s == StatusTrialing
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCanceled
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIncomplete, StatusTrialing, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// Subscription is the local projection of a provider-side subscription for a
// single reference id. Optional timestamps are nil until the provider reports
// them. Version is maintained by the store and drives optimistic concurrency.
type Subscription struct {
	ID                     uuid.UUID
	ReferenceID            string
	Plan                   string // normalized lowercase plan name
	Status                 Status
	ProviderCustomerID     string
	ProviderSubscriptionID string
	PriceID                string
	Seats                  int64
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
	TrialStart             *time.Time
	TrialEnd               *time.Time
	CancelAtPeriodEnd      bool
	Metadata               map[string]string // opaque caller data, round-tripped through checkout
	CreatedAt              time.Time
	UpdatedAt              time.Time
	Version                int64
}

// Live reports whether the record currently grants entitlements.
func (s *Subscription) Live() bool {
	return s.Status.Live()
}

// Terminal reports whether the record reached its final state.
func (s *Subscription) Terminal() bool {
	return s.Status.Terminal()
}

// OnTrialAt reports whether the record is trialing with an unexpired trial
// window at the given time.
func (s *Subscription) OnTrialAt(now time.Time) bool {
	if s.Status != StatusTrialing || s.TrialEnd == nil {
		return false
	}
	return now.Before(*s.TrialEnd)
}

// HadTrial reports whether the record ever entered a trial window. Used to
// grant at most one trial per reference.
func (s *Subscription) HadTrial() bool {
	return s.TrialStart != nil
}

// Clone returns a deep copy, detaching optional timestamp pointers and the
// metadata map so the caller and any store cache cannot mutate each other.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	out := *s
	out.PeriodStart = cloneTime(s.PeriodStart)
	out.PeriodEnd = cloneTime(s.PeriodEnd)
	out.TrialStart = cloneTime(s.TrialStart)
	out.TrialEnd = cloneTime(s.TrialEnd)
	out.Metadata = maps.Clone(s.Metadata)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
