package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/bordereau-flow/internal/lease"
	goredis "github.com/redis/go-redis/v9"
)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ lease.Leaser = (*RedisLeaser)(nil)

// RedisLeaser grants leases with SET NX PX. Only the token holder can
// release its lease.
type RedisLeaser struct {
	client *goredis.Client
	prefix string
}

func NewRedisLeaser(client *goredis.Client, prefix string) (*RedisLeaser, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = "lease"
	}
	return &RedisLeaser{client: client, prefix: prefix}, nil
}

func (l *RedisLeaser) TryAcquire(ctx context.Context, name string, ttl time.Duration) (lease.Release, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("lease name is required")
	}
	if ttl <= 0 {
		return nil, false, fmt.Errorf("lease ttl must be positive")
	}

	key := l.prefix + ":" + name
	token := uuid.NewString()

	err := l.client.SetArgs(ctx, key, token, goredis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			return fmt.Errorf("failed to release lease %s: %w", name, err)
		}
		return nil
	}
	return release, true, nil
}
