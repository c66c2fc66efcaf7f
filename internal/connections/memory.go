package connections

import (
	"context"
	"sort"
	"sync"
)

// memoryStore keeps partitions in a map guarded by a single mutex. Writes
// within a partition are serialized, so two concurrent saves for the same
// user cannot interleave.
type memoryStore struct {
	mu    sync.RWMutex
	users map[string]map[string]Connection
}

func NewMemory() Store {
	return &memoryStore{users: map[string]map[string]Connection{}}
}

func (s *memoryStore) Save(ctx context.Context, userID string, conn Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	part := s.users[userID]
	if part == nil {
		part = map[string]Connection{}
		s.users[userID] = part
	}
	part[conn.IntegrationID] = conn
	return nil
}

func (s *memoryStore) Get(ctx context.Context, userID, integrationID string) (Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.users[userID][integrationID]; ok {
		return c, nil
	}
	return Connection{}, ErrNotFound
}

func (s *memoryStore) List(ctx context.Context, userID string) ([]Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	part := s.users[userID]
	out := make([]Connection, 0, len(part))
	for _, c := range part {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntegrationID < out[j].IntegrationID })
	return out, nil
}

func (s *memoryStore) Delete(ctx context.Context, userID, integrationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID][integrationID]; !ok {
		return ErrNotFound
	}
	delete(s.users[userID], integrationID)
	return nil
}
