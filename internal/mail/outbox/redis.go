package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the list new mail ids are pushed onto.
const DefaultKey = "mail:outbox"

// RedisOutbox hands queued mail ids to the delivery worker through a Redis
// list: LPUSH on enqueue, BRPOP on the consumer side.
type RedisOutbox struct {
	client *redis.Client
	key    string
}

// NewRedisOutbox creates an outbox on key. Key may be empty.
func NewRedisOutbox(client *redis.Client, key string) *RedisOutbox {
	if key == "" {
		key = DefaultKey
	}
	return &RedisOutbox{client: client, key: key}
}

// Enqueue pushes id onto the outbox.
func (r *RedisOutbox) Enqueue(ctx context.Context, id string) error {
	return r.client.LPush(ctx, r.key, id).Err()
}

// Len returns the number of ids waiting for delivery.
func (r *RedisOutbox) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.key).Result()
}

// Dequeue blocks up to timeout for the oldest id. It returns "" when the
// outbox stayed empty.
func (r *RedisOutbox) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := r.client.BRPop(ctx, timeout, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	// BRPOP replies with [key, value]
	return res[1], nil
}

// Nop discards every id. It is used when Redis is not configured.
type Nop struct{}

func (Nop) Enqueue(context.Context, string) error { return nil }

func (Nop) Len(context.Context) (int64, error) { return 0, nil }
