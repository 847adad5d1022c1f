// Package lock provides per-key mutual exclusion for pending registrations.
// Operations on different national IDs proceed in parallel.
package lock

import (
	"context"
	"errors"

	platformsync "enrollgate/pkg/platform/sync"
)

// ErrNotAcquired is returned when the deadline passes before the key is free.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes work on a key. The returned release function must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Local serializes keys within one process.
type Local struct {
	mu *platformsync.ShardedMutex
}

// NewLocal creates an in-process locker with the given shard count (0 for default).
func NewLocal(shards int) *Local {
	return &Local{mu: platformsync.NewShardedMutex(shards)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	release, err := l.mu.Lock(ctx, key)
	if err != nil {
		return nil, errors.Join(ErrNotAcquired, err)
	}
	return release, nil
}
