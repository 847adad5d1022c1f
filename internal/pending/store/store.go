// Package store persists pending registrations keyed by national ID.
//
// Error Contract:
// All store methods follow this error pattern:
//   - Return sentinel.ErrNotFound when the requested registration does not exist
//   - Return errors wrapping sentinel.ErrUnavailable when the backend cannot be reached
//     or the context deadline expires
//   - Return wrapped errors with context for any other infrastructure failure
//
// Stores hold exactly one row per national ID; callers serialize writes per key.
package store

import (
	"context"
	"time"

	"enrollgate/internal/pending/models"
)

// Store is implemented by InMemoryStore and PostgresStore.
type Store interface {
	FindByNationalID(ctx context.Context, nationalID models.NationalID) (*models.Registration, error)
	Save(ctx context.Context, reg *models.Registration) error
	Delete(ctx context.Context, nationalID models.NationalID) (bool, error)
	DeleteExpired(ctx context.Context, nationalID models.NationalID, now time.Time) (bool, error)
	ListAll(ctx context.Context) ([]*models.Registration, error)
}

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
