package sync

import (
	"context"
	"hash/fnv"
)

const defaultShards = 64

// ShardedMutex serializes work per key without a global lock. Keys are hashed onto a fixed
// set of shards; each shard is a one-slot semaphore so acquisition can honour a context
// deadline instead of blocking forever behind a stuck holder.
type ShardedMutex struct {
	shards []chan struct{}
}

// NewShardedMutex creates a ShardedMutex with n shards; n <= 0 selects the default of 64.
func NewShardedMutex(n int) *ShardedMutex {
	if n <= 0 {
		n = defaultShards
	}
	m := &ShardedMutex{shards: make([]chan struct{}, n)}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
	}
	return m
}

// Lock acquires the shard for key, waiting until ctx is done.
// On success the returned function releases the shard; it must be called exactly once.
func (m *ShardedMutex) Lock(ctx context.Context, key string) (func(), error) {
	shard := m.shards[m.shardFor(key)]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the shard for key only if it is free.
func (m *ShardedMutex) TryLock(key string) (func(), bool) {
	shard := m.shards[m.shardFor(key)]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, true
	default:
		return nil, false
	}
}

// shardFor returns the shard index for the given key. Empty keys map to shard 0.
func (m *ShardedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
