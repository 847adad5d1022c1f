package documents

import (
	"context"
	"fmt"
	"io"
	"sync"

	"enrollgate/internal/completeness"
	"enrollgate/pkg/platform/sentinel"
)

// MemoryStore keeps payloads in process. Used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[completeness.Reference][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[completeness.Reference][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, u Upload) (completeness.Reference, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("upload document: %w: %w", sentinel.ErrUnavailable, err)
	}
	data, err := io.ReadAll(u.Body)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	ref := completeness.Reference(objectName(u))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = data
	return ref, nil
}

// Get returns the payload stored under ref.
func (s *MemoryStore) Get(ref completeness.Reference) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return data, nil
}

// Len returns how many payloads are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
