// Package fsstore implements the single-writer, atomic-write-with-backup
// JSON persistence primitive shared by the ledger, state, and wait stores
// (spec section 9, "Global mutable state": each store owns its own
// single-writer serialization; write-temp-and-rename with a .bak keeps
// crash recovery bounded to "load either the current or previous version").
package fsstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists a single JSON document at path, serializing all writes
// through an internal mutex and keeping one generation of backup.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store backed by the file at path. The parent directory is
// created eagerly so Save never fails on a missing directory.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: create parent dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Load decodes the current document into v. If the file does not exist, v
// is left untouched and no error is returned (callers treat this as "empty
// store"). If the current file is corrupt, Load falls back to the .bak
// generation before giving up.
func (s *Store) Load(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fsstore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		bak, bakErr := os.ReadFile(s.path + ".bak")
		if bakErr != nil || len(bak) == 0 {
			return fmt.Errorf("fsstore: decode %s: %w", s.path, err)
		}
		if err := json.Unmarshal(bak, v); err != nil {
			return fmt.Errorf("fsstore: decode %s and backup: %w", s.path, err)
		}
	}
	return nil
}

// Save atomically persists v: write to a sibling temp file, preserve the
// current generation as .bak, then rename the temp file into place. Rename
// is the linearization point, matching the message writer's discipline in
// spec section 4.2.
func (s *Store) Save(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore: marshal: %w", err)
	}

	tmp := s.path + fmt.Sprintf(".tmp-%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("fsstore: write temp: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.path+".bak"); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("fsstore: backup current: %w", err)
		}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fsstore: rename into place: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
