package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "enrollgate:pending:lock:"
	defaultTTL       = 10 * time.Second
	defaultRetryWait = 25 * time.Millisecond
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis serializes keys across instances with SET NX PX. The TTL bounds how
// long a crashed holder can block a key.
type Redis struct {
	client    redis.Cmdable
	local     *Local
	ttl       time.Duration
	retryWait time.Duration
	logger    *slog.Logger
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets the lease duration of a held key.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRetryWait sets the polling interval while a key is held elsewhere.
func WithRetryWait(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.retryWait = d
		}
	}
}

// WithLogger sets the logger used for release failures.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// NewRedis creates a distributed locker. Contention inside the process is
// resolved by a local sharded lock first so only one goroutine per key polls Redis.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		local:     NewLocal(0),
		ttl:       defaultTTL,
		retryWait: defaultRetryWait,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	releaseLocal, err := r.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	redisKey := keyPrefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(r.retryWait)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			releaseLocal()
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("acquire redis lock: %w", err)
		}
		if ok {
			return func() {
				defer releaseLocal()
				// Release with a fresh context: the caller's may already be done.
				relCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := releaseScript.Run(relCtx, r.client, []string{redisKey}, token).Err(); err != nil {
					r.logger.Warn("failed to release pending lock", "error", err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			releaseLocal()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}
