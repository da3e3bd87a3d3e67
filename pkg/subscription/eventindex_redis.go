package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultEventKeyPrefix = "billingkit:events:"

	// defaultEventTTL outlives the provider's redelivery horizon (Stripe
	// retries for up to three days), so entries expire only after a
	// redelivery can no longer arrive.
	defaultEventTTL = 72 * time.Hour
)

// RedisEventIndex is an EventIndex backed by Redis, sharing consumed-event
// state across replicas and restarts.
type RedisEventIndex struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// RedisEventIndexOption configures a RedisEventIndex.
type RedisEventIndexOption func(*RedisEventIndex)

// WithEventKeyPrefix overrides the key namespace.
func WithEventKeyPrefix(prefix string) RedisEventIndexOption {
	return func(i *RedisEventIndex) {
		if prefix != "" {
			i.prefix = prefix
		}
	}
}

// WithEventTTL overrides how long consumed keys are retained.
func WithEventTTL(ttl time.Duration) RedisEventIndexOption {
	return func(i *RedisEventIndex) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// NewRedisEventIndex returns an index using the given Redis client. Panics on
// a nil client because that is a wiring bug.
func NewRedisEventIndex(client redis.Cmdable, opts ...RedisEventIndexOption) *RedisEventIndex {
	if client == nil {
		panic("subscription: redis event index requires a client")
	}
	i := &RedisEventIndex{
		client: client,
		prefix: defaultEventKeyPrefix,
		ttl:    defaultEventTTL,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *RedisEventIndex) Seen(ctx context.Context, key string) (bool, error) {
	n, err := i.client.Exists(ctx, i.prefix+key).Result()
	if err != nil {
		return false, errors.Join(ErrEventIndexUnavailable, fmt.Errorf("exists %q: %w", key, err))
	}
	return n > 0, nil
}

func (i *RedisEventIndex) Mark(ctx context.Context, key string) error {
	if err := i.client.Set(ctx, i.prefix+key, 1, i.ttl).Err(); err != nil {
		return errors.Join(ErrEventIndexUnavailable, fmt.Errorf("set %q: %w", key, err))
	}
	return nil
}
