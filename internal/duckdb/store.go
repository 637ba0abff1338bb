package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"golang.org/x/sync/semaphore"

	"github.com/tinytelemetry/storefeed/internal/duckdb/migrate"
)

const (
	defaultQueryTimeout = 30 * time.Second
	defaultMaxReads     = 8
)

// StoreConfig holds tunable parameters for the catalog store.
type StoreConfig struct {
	QueryTimeout       time.Duration
	MaxConcurrentReads int
}

// Store is the DuckDB-backed product catalog.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	reads        *semaphore.Weighted
	QueryTimeout time.Duration
}

// NewStore opens or creates a catalog database and applies migrations.
// If dbPath is empty, an in-memory database is used.
func NewStore(dbPath string, conf ...StoreConfig) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: migrate: %w", err)
	}

	qt := defaultQueryTimeout
	maxReads := defaultMaxReads
	if len(conf) > 0 {
		if conf[0].QueryTimeout > 0 {
			qt = conf[0].QueryTimeout
		}
		if conf[0].MaxConcurrentReads > 0 {
			maxReads = conf[0].MaxConcurrentReads
		}
	}

	return &Store{
		db:           db,
		dbPath:       dbPath,
		reads:        semaphore.NewWeighted(int64(maxReads)),
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// queryCtx derives a context bounded by the store's query timeout.
func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.QueryTimeout)
}

// beginRead takes a read slot and the shared lock. The returned func
// releases both.
func (s *Store) beginRead(ctx context.Context) (func(), error) {
	if err := s.reads.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("duckdb: waiting for read slot: %w", err)
	}
	s.mu.RLock()
	return func() {
		s.mu.RUnlock()
		s.reads.Release(1)
	}, nil
}
