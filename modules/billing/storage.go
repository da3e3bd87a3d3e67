package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/redis"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

// StorageConfig selects the persistence behind the engine: where
// subscription records live and where consumed webhook events are tracked.
type StorageConfig struct {
	// Store selects the subscription store: "memory" or "postgres".
	Store string `env:"BILLING_STORE" envDefault:"memory"`
	// EventIndex selects the webhook dedup index: "memory" or "redis".
	EventIndex string `env:"BILLING_EVENT_INDEX" envDefault:"memory"`
}

// NewStore constructs the subscription store named by the environment. For
// "postgres" it connects through pg.Connect, applies the embedded schema
// migrations, and returns a cleanup that closes the pool; for "memory" the
// cleanup is a no-op.
func NewStore(ctx context.Context) (subscription.Store, func(), error) {
	var sc StorageConfig
	if err := config.Load(&sc); err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(sc.Store) {
	case "", "memory":
		return subscription.NewMemoryStore(), func() {}, nil
	case "postgres":
		var pc pg.Config
		if err := config.Load(&pc); err != nil {
			return nil, nil, err
		}
		pool, err := pg.Connect(ctx, pc)
		if err != nil {
			return nil, nil, err
		}
		if err := subscription.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return subscription.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("billing: unknown store %q", sc.Store)
	}
}

// NewEventIndex constructs the consumed-event index named by the
// environment. For "redis" the cleanup closes the client; for "memory" it
// is a no-op. A Redis index is what lets several webhook-serving replicas
// share dedup state.
func NewEventIndex(ctx context.Context) (subscription.EventIndex, func(), error) {
	var sc StorageConfig
	if err := config.Load(&sc); err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(sc.EventIndex) {
	case "", "memory":
		return subscription.NewMemoryEventIndex(), func() {}, nil
	case "redis":
		var rc redis.Config
		if err := config.Load(&rc); err != nil {
			return nil, nil, err
		}
		client, err := redis.Connect(ctx, rc)
		if err != nil {
			return nil, nil, err
		}
		return subscription.NewRedisEventIndex(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("billing: unknown event index %q", sc.EventIndex)
	}
}
