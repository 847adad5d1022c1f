package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"enrollgate/internal/pending/models"
	"enrollgate/pkg/platform/sentinel"
)

// InMemoryStore keeps registrations in memory, in insertion order.
// Used in development mode and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[models.NationalID]*models.Registration
	order   []models.NationalID
}

// NewInMemory constructs an empty in-memory pending store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[models.NationalID]*models.Registration)}
}

func (s *InMemoryStore) FindByNationalID(ctx context.Context, nationalID models.NationalID) (*models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find pending registration: %w: %w", sentinel.ErrUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.records[nationalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return reg.Clone(), nil
}

// Save inserts or replaces the registration. A replaced registration keeps its
// position in insertion order.
func (s *InMemoryStore) Save(ctx context.Context, reg *models.Registration) error {
	if reg == nil {
		return fmt.Errorf("pending registration is required")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save pending registration: %w: %w", sentinel.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[reg.NationalID]; !ok {
		s.order = append(s.order, reg.NationalID)
	}
	s.records[reg.NationalID] = reg.Clone()
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, nationalID models.NationalID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("delete pending registration: %w: %w", sentinel.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(nationalID), nil
}

// DeleteExpired removes the registration only if it is still expired at now.
func (s *InMemoryStore) DeleteExpired(ctx context.Context, nationalID models.NationalID, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("delete expired registration: %w: %w", sentinel.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.records[nationalID]
	if !ok || !reg.IsExpired(now) {
		return false, nil
	}
	return s.deleteLocked(nationalID), nil
}

func (s *InMemoryStore) deleteLocked(nationalID models.NationalID) bool {
	if _, ok := s.records[nationalID]; !ok {
		return false
	}
	delete(s.records, nationalID)
	if i := slices.Index(s.order, nationalID); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

// ListAll returns copies of every registration in insertion order.
func (s *InMemoryStore) ListAll(ctx context.Context) ([]*models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list pending registrations: %w: %w", sentinel.ErrUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Registration, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out, nil
}
