// Package snapshot persists the current slide index of every set across
// process restarts. Stores are written after every accepted navigation
// command and read once at startup; a missing or corrupt snapshot never
// blocks startup.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Store is the persistence gateway contract: a snapshot mapping set id
// to current slide index.
type Store interface {
	Load(ctx context.Context) (map[string]int, error)
	Save(ctx context.Context, positions map[string]int) error
}

// fileSnapshot is the on-disk JSON shape.
type fileSnapshot struct {
	Positions map[string]int `json:"positions"`
	Timestamp time.Time      `json:"timestamp"`
}

// FileStore persists snapshots to a single JSON file with an atomic
// temp-file-then-rename write.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file: %w", err)
	}
	if snap.Positions == nil {
		snap.Positions = make(map[string]int)
	}
	return snap.Positions, nil
}

func (s *FileStore) Save(ctx context.Context, positions map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(fileSnapshot{
		Positions: positions,
		Timestamp: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}
	return nil
}
