package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"enrollgate/internal/platform/config"
)

// PoolMetrics exposes go-redis pool statistics.
type PoolMetrics struct {
	TotalConns prometheus.Gauge
	IdleConns  prometheus.Gauge
	Timeouts   prometheus.Counter
}

// NewPoolMetrics registers the pool collectors on reg.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	f := promauto.With(reg)
	return &PoolMetrics{
		TotalConns: f.NewGauge(prometheus.GaugeOpts{
			Name: "enrollgate_redis_pool_total_conns",
			Help: "Number of total connections in the pool",
		}),
		IdleConns: f.NewGauge(prometheus.GaugeOpts{
			Name: "enrollgate_redis_pool_idle_conns",
			Help: "Number of idle connections in the pool",
		}),
		Timeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "enrollgate_redis_pool_timeouts_total",
			Help: "Number of times a connection was not obtained due to timeout",
		}),
	}
}

// Client wraps the go-redis client with health checking capabilities.
type Client struct {
	*redis.Client
	metrics      *PoolMetrics
	lastTimeouts uint32
}

// New creates a new Redis client from the provided configuration.
// Returns nil if the URL is empty (Redis not configured).
func New(ctx context.Context, cfg config.RedisConfig, metrics *PoolMetrics) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client, metrics: metrics}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}

// RecordPoolStats updates the pool metrics with current statistics.
func (c *Client) RecordPoolStats() {
	if c.metrics == nil {
		return
	}
	stats := c.PoolStats()
	c.metrics.TotalConns.Set(float64(stats.TotalConns))
	c.metrics.IdleConns.Set(float64(stats.IdleConns))
	if stats.Timeouts > c.lastTimeouts {
		c.metrics.Timeouts.Add(float64(stats.Timeouts - c.lastTimeouts))
	}
	c.lastTimeouts = stats.Timeouts
}

// RunStatsLoop records pool statistics every interval until ctx is done.
func (c *Client) RunStatsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RecordPoolStats()
		}
	}
}
