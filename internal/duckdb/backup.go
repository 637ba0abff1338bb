package duckdb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrInMemoryStore indicates the catalog has no database file to snapshot.
var ErrInMemoryStore = errors.New("duckdb: in-memory store cannot be snapshotted")

// DBPath returns the catalog database path. Empty means in-memory.
func (s *Store) DBPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dbPath
}

// SnapshotTo checkpoints the catalog under the write lock and copies the
// database file to dstPath once the lock is released.
func (s *Store) SnapshotTo(dstPath string) error {
	if s.DBPath() == "" {
		return ErrInMemoryStore
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	s.mu.Lock()
	_, err := s.db.Exec("CHECKPOINT")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	if err := copyFileAtomic(s.dbPath, dstPath); err != nil {
		return fmt.Errorf("copy catalog file: %w", err)
	}
	return nil
}

// copyFileAtomic writes to dstPath.tmp and renames it into place.
func copyFileAtomic(srcPath, dstPath string) (err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := dstPath + ".tmp"
	dst, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dst.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(dst, src); err != nil {
		return err
	}
	if err = dst.Sync(); err != nil {
		return err
	}
	if err = dst.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dstPath)
}
