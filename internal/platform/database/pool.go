package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"enrollgate/internal/platform/config"
	"enrollgate/migrations"
)

const (
	pingTimeout     = 5 * time.Second
	applicationName = "enrollgate"
)

// PoolMetrics exposes database/sql pool statistics.
type PoolMetrics struct {
	OpenConns prometheus.Gauge
	InUse     prometheus.Gauge
	WaitCount prometheus.Counter
}

// NewPoolMetrics registers the pool collectors on reg.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	f := promauto.With(reg)
	return &PoolMetrics{
		OpenConns: f.NewGauge(prometheus.GaugeOpts{
			Name: "enrollgate_db_pool_open_conns",
			Help: "Number of open connections to the pending store",
		}),
		InUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "enrollgate_db_pool_in_use_conns",
			Help: "Number of connections currently serving a query",
		}),
		WaitCount: f.NewCounter(prometheus.CounterOpts{
			Name: "enrollgate_db_pool_waits_total",
			Help: "Number of times a query waited for a free connection",
		}),
	}
}

// Pool wraps a *sql.DB opened through the pgx stdlib driver.
type Pool struct {
	db        *sql.DB
	metrics   *PoolMetrics
	lastWaits int64
}

// New opens the pending-registration database and verifies it answers a ping.
// Returns nil, nil when no URL is configured so callers fall back to memory.
func New(ctx context.Context, cfg config.DatabaseConfig, metrics *PoolMetrics) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	connCfg, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = map[string]string{}
	}
	if connCfg.RuntimeParams["application_name"] == "" {
		connCfg.RuntimeParams["application_name"] = applicationName
	}
	if connCfg.ConnectTimeout == 0 {
		connCfg.ConnectTimeout = pingTimeout
	}

	db := stdlib.OpenDB(*connCfg)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{db: db, metrics: metrics}, nil
}

// DB returns the underlying *sql.DB for query operations.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Migrate applies the embedded pending-registration schema.
func (p *Pool) Migrate(ctx context.Context) error {
	if err := migrations.Up(ctx, p.db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Health checks if the database is reachable.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("database not configured")
	}
	return p.db.PingContext(ctx)
}

// RecordPoolStats copies sql.DBStats into the pool metrics.
func (p *Pool) RecordPoolStats() {
	if p.metrics == nil {
		return
	}
	stats := p.db.Stats()
	p.metrics.OpenConns.Set(float64(stats.OpenConnections))
	p.metrics.InUse.Set(float64(stats.InUse))
	if stats.WaitCount > p.lastWaits {
		p.metrics.WaitCount.Add(float64(stats.WaitCount - p.lastWaits))
	}
	p.lastWaits = stats.WaitCount
}

// Close closes the database connection pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
