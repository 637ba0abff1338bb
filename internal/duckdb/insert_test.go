package duckdb

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tinytelemetry/storefeed/internal/journal"
	"github.com/tinytelemetry/storefeed/internal/model"
)

func productCount(t *testing.T, store *Store) int64 {
	t.Helper()
	n, err := store.TotalProductCount(context.Background())
	if err != nil {
		t.Fatalf("TotalProductCount: %v", err)
	}
	return n
}

func TestInsertBuffer_AddAndStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	for i := 0; i < 10; i++ {
		buf.Add(&model.Product{SellerID: "s", Title: fmt.Sprintf("item %d", i)})
	}
	buf.Stop()

	if n := productCount(t, store); n != 10 {
		t.Errorf("after Stop, TotalProductCount = %d, want 10", n)
	}
	added, flushed := buf.Stats()
	if added != 10 || flushed != 10 {
		t.Errorf("Stats = (%d, %d), want (10, 10)", added, flushed)
	}
}

func TestInsertBuffer_AssignsIDs(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	p := &model.Product{SellerID: "s", Title: "no id"}
	buf.Add(p)
	buf.Stop()

	if p.ID == "" || p.CreatedAt.IsZero() {
		t.Fatalf("Add did not fill id/created_at: %+v", p)
	}
}

func TestInsertBuffer_BatchThreshold(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 50})

	for i := 0; i < 120; i++ {
		buf.Add(&model.Product{SellerID: "s", Title: "batch"})
	}
	buf.Stop()

	if n := productCount(t, store); n != 120 {
		t.Errorf("after batch insert, TotalProductCount = %d, want 120", n)
	}
}

func TestInsertBuffer_ConcurrentAdd(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	var wg sync.WaitGroup
	numGoroutines := 10
	perGoroutine := 50

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				buf.Add(&model.Product{SellerID: "s", Title: "concurrent"})
			}
		}()
	}
	wg.Wait()
	buf.Stop()

	if n := productCount(t, store); n != int64(numGoroutines*perGoroutine) {
		t.Errorf("concurrent insert TotalProductCount = %d, want %d", n, numGoroutines*perGoroutine)
	}
}

func TestInsertBuffer_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)
	buf.Add(&model.Product{SellerID: "s", Title: "idempotent stop"})

	buf.Stop()
	buf.Stop()

	if n := productCount(t, store); n != 1 {
		t.Errorf("after double Stop, TotalProductCount = %d, want 1", n)
	}
}

func TestInsertBuffer_JournalCommitsFlushed(t *testing.T) {
	store := newTestStore(t)
	j, err := journal.Open(filepath.Join(t.TempDir(), "import.journal"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}

	buf := NewInsertBuffer(store, InsertBufferConfig{Journal: j})
	for i := 0; i < 3; i++ {
		buf.Add(&model.Product{SellerID: "s", Title: "journaled"})
	}
	buf.Stop()

	if got := j.Committed(); got != 3 {
		t.Errorf("Committed = %d, want 3", got)
	}
	if n := productCount(t, store); n != 3 {
		t.Errorf("TotalProductCount = %d, want 3", n)
	}
}
