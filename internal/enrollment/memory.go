package enrollment

import (
	"context"
	"sync"

	"enrollgate/internal/pending/models"
	"enrollgate/pkg/platform/sentinel"
)

// MemoryStore is an in-process enrollment store for development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	enrolled map[models.NationalID]*models.Registration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{enrolled: make(map[models.NationalID]*models.Registration)}
}

// Finalize records reg, returning sentinel.ErrConflict when already enrolled.
func (s *MemoryStore) Finalize(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrolled[reg.NationalID]; ok {
		return sentinel.ErrConflict
	}
	s.enrolled[reg.NationalID] = reg.Clone()
	return nil
}

// Get returns the enrolled record or sentinel.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, nationalID models.NationalID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.enrolled[nationalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return reg.Clone(), nil
}
