package lookup

import (
	"context"
	"errors"
	"time"

	"fieldgate/pkg/model"

	"github.com/redis/go-redis/v9"
)

// RedisResolver reads string keys from Redis, optionally under a key prefix.
//
//	${redis:deploy:color}
type RedisResolver struct {
	client    redis.Cmdable
	keyPrefix string
	timeout   time.Duration
}

// NewRedisResolver creates a resolver backed by client. Keys are looked up as
// keyPrefix+key.
func NewRedisResolver(client redis.Cmdable, keyPrefix string) *RedisResolver {
	return &RedisResolver{
		client:    client,
		keyPrefix: keyPrefix,
		timeout:   500 * time.Millisecond,
	}
}

func (*RedisResolver) Name() string { return RedisPrefix }

func (r *RedisResolver) Lookup(ctx context.Context, _ *model.Event, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	v, err := r.client.Get(ctx, r.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
