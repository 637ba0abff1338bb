package duckdb

import (
	"context"
	"log"
	"sync"
	"time"
)

// RetentionConfig controls how listings leave the catalog. Listings past
// their expires_at are always removed; MaxAgeDays additionally removes
// listings created more than that many days ago (0 disables the age rule).
type RetentionConfig struct {
	MaxAgeDays int
	Interval   time.Duration
	Now        func() time.Time
}

// RetentionCleaner periodically removes expired listings.
type RetentionCleaner struct {
	store      *Store
	maxAgeDays int
	interval   time.Duration
	now        func() time.Time
	done       chan struct{}
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewRetentionCleaner runs one cleanup immediately, then one per interval
// (hourly by default).
func NewRetentionCleaner(store *Store, conf ...RetentionConfig) *RetentionCleaner {
	rc := &RetentionCleaner{
		store:    store,
		interval: time.Hour,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if len(conf) > 0 {
		rc.maxAgeDays = max(conf[0].MaxAgeDays, 0)
		if conf[0].Interval > 0 {
			rc.interval = conf[0].Interval
		}
		if conf[0].Now != nil {
			rc.now = conf[0].Now
		}
	}

	// Catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()
	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	now := rc.now()
	var createdBefore time.Time
	if rc.maxAgeDays > 0 {
		createdBefore = now.Add(-time.Duration(rc.maxAgeDays) * 24 * time.Hour)
	}

	rows, err := rc.store.DeleteExpired(context.Background(), now, createdBefore)
	if err != nil {
		log.Printf("duckdb: retention cleanup error: %v", err)
		return
	}
	if rows > 0 {
		log.Printf("duckdb: retention cleanup removed %d listings", rows)
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}

// DeleteExpired removes listings whose expires_at is at or before now and,
// when createdBefore is non-zero, listings created before it.
func (s *Store) DeleteExpired(ctx context.Context, now, createdBefore time.Time) (int64, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `DELETE FROM products WHERE expires_at IS NOT NULL AND expires_at <= ?`
	args := []any{now}
	if !createdBefore.IsZero() {
		query += ` OR created_at < ?`
		args = append(args, createdBefore)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
