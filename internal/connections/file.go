package connections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
)

var safeUserID = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)

// fileStore writes one JSON document per user under the data directory.
// The read-modify-write of a partition is guarded by a per-user lock.
type fileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFile(dir string) (Store, error) {
	if dir == "" {
		return nil, errors.New("connections: data dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &fileStore{dir: dir, locks: map[string]*sync.Mutex{}}, nil
}

func (s *fileStore) lock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.locks[userID]
	if l == nil {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *fileStore) path(userID string) (string, error) {
	if !safeUserID.MatchString(userID) {
		return "", fmt.Errorf("connections: invalid user id %q", userID)
	}
	return filepath.Join(s.dir, userID+".json"), nil
}

func (s *fileStore) readPartition(userID string) (map[string]Connection, error) {
	p, err := s.path(userID)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Connection{}, nil
	}
	if err != nil {
		return nil, err
	}
	part := map[string]Connection{}
	if err := json.Unmarshal(b, &part); err != nil {
		return nil, fmt.Errorf("connections: corrupt partition for %s: %w", userID, err)
	}
	return part, nil
}

// writePartition persists via a temp file rename so a crash mid-write never
// leaves a truncated partition behind.
func (s *fileStore) writePartition(userID string, part map[string]Connection) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(part, "", "  ")
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *fileStore) Save(ctx context.Context, userID string, conn Connection) error {
	l := s.lock(userID)
	l.Lock()
	defer l.Unlock()
	part, err := s.readPartition(userID)
	if err != nil {
		return err
	}
	part[conn.IntegrationID] = conn
	return s.writePartition(userID, part)
}

func (s *fileStore) Get(ctx context.Context, userID, integrationID string) (Connection, error) {
	l := s.lock(userID)
	l.Lock()
	defer l.Unlock()
	part, err := s.readPartition(userID)
	if err != nil {
		return Connection{}, err
	}
	if c, ok := part[integrationID]; ok {
		return c, nil
	}
	return Connection{}, ErrNotFound
}

func (s *fileStore) List(ctx context.Context, userID string) ([]Connection, error) {
	l := s.lock(userID)
	l.Lock()
	defer l.Unlock()
	part, err := s.readPartition(userID)
	if err != nil {
		return nil, err
	}
	out := make([]Connection, 0, len(part))
	for _, c := range part {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntegrationID < out[j].IntegrationID })
	return out, nil
}

func (s *fileStore) Delete(ctx context.Context, userID, integrationID string) error {
	l := s.lock(userID)
	l.Lock()
	defer l.Unlock()
	part, err := s.readPartition(userID)
	if err != nil {
		return err
	}
	if _, ok := part[integrationID]; !ok {
		return ErrNotFound
	}
	delete(part, integrationID)
	return s.writePartition(userID, part)
}
