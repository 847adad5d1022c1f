//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"enrollgate/internal/platform/config"
	redisClient "enrollgate/internal/platform/redis"
)

// RedisContainer is a throwaway Redis reached through the platform client.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redisClient.Client
}

// NewRedisContainer starts Redis and connects the same client the server uses.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	client, err := redisClient.New(ctx, config.RedisConfig{URL: url, PoolSize: 20}, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to redis: %v", err)
	}

	return &RedisContainer{Container: container, URL: url, Client: client}
}

// FlushAll drops every lock key between tests.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
