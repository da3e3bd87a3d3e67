package reconcile

import "context"

// Action names an engine operation checked by the authorization policy.
type Action string

const (
	ActionUpgrade Action = "upgrade"
	ActionList    Action = "list"
	ActionCancel  Action = "cancel"
	ActionRestore Action = "restore"
)

// Actor is the authenticated caller of an engine operation. Email is used
// when a billing customer has to be created on the actor's behalf.
type Actor struct {
	ID    string
	Email string
}

// Policy decides whether an actor may perform an action on a reference.
// Policies run before any store or provider call and may do their own I/O.
type Policy func(ctx context.Context, actor Actor, referenceID string, action Action) bool

// DefaultPolicy grants access only to the actor whose ID is the reference
// itself, which covers personal subscriptions. Team and organization scopes
// replace it via WithPolicy.
func DefaultPolicy(ctx context.Context, actor Actor, referenceID string, action Action) bool {
	return actor.ID != "" && actor.ID == referenceID
}
