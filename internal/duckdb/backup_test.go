package duckdb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotTo_CreatesBackupFile(t *testing.T) {
	t.Parallel()

	store, err := NewStore(filepath.Join(t.TempDir(), "catalog.duckdb"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	seedProducts(t, store, 3)

	snapshotPath := filepath.Join(t.TempDir(), "backups", "snapshot.duckdb")
	if err := store.SnapshotTo(snapshotPath); err != nil {
		t.Fatalf("SnapshotTo: %v", err)
	}

	info, err := os.Stat(snapshotPath)
	if err != nil {
		t.Fatalf("stat snapshot: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("snapshot file is empty")
	}
	if _, err := os.Stat(snapshotPath + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary snapshot file left behind: %v", err)
	}
}

func TestSnapshotTo_InMemoryStore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.SnapshotTo(filepath.Join(t.TempDir(), "snapshot.duckdb"))
	if !errors.Is(err, ErrInMemoryStore) {
		t.Fatalf("err = %v, want %v", err, ErrInMemoryStore)
	}
}
