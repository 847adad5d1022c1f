//go:build integration

// Package containers starts PostgreSQL, Redis and Redpanda for integration suites.
// Each container is started once per test binary and shared by every suite.
package containers

import (
	"sync"
	"testing"
)

// Manager lazily starts and hands out the shared containers.
type Manager struct {
	postgresOnce sync.Once
	postgres     *PostgresContainer
	kafkaOnce    sync.Once
	kafka        *KafkaContainer
	redisOnce    sync.Once
	redis        *RedisContainer
}

var manager = &Manager{}

// GetManager returns the process-wide manager.
func GetManager() *Manager {
	return manager
}

// GetPostgres returns the migrated PostgreSQL container, starting it on first use.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.postgresOnce.Do(func() { m.postgres = NewPostgresContainer(t) })
	if m.postgres == nil {
		t.Fatal("postgres container failed to start earlier in this run")
	}
	return m.postgres
}

// GetKafka returns the Redpanda container, starting it on first use.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	m.kafkaOnce.Do(func() { m.kafka = NewKafkaContainer(t) })
	if m.kafka == nil {
		t.Fatal("kafka container failed to start earlier in this run")
	}
	return m.kafka
}

// GetRedis returns the Redis container, starting it on first use.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.redisOnce.Do(func() { m.redis = NewRedisContainer(t) })
	if m.redis == nil {
		t.Fatal("redis container failed to start earlier in this run")
	}
	return m.redis
}
