package duckdb

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/storefeed/internal/journal"
	"github.com/tinytelemetry/storefeed/internal/model"
)

// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
const DefaultFlushQueueSize = 16

type journaledProduct struct {
	seq     uint64
	product *model.Product
}

type durableJournal interface {
	Append(p *model.Product) (uint64, error)
	Commit(seq uint64) error
	Close() error
}

// InsertBuffer batches imported products and flushes them to the catalog
// on a background goroutine. Add never blocks on DuckDB writes.
type InsertBuffer struct {
	writer        model.CatalogWriter
	mu            sync.Mutex
	pending       []journaledProduct
	flushChan     chan []journaledProduct
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	stopOnce      sync.Once
	journal       durableJournal

	added   atomic.Int64
	flushed atomic.Int64

	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	Journal        *journal.Journal
}

// NewInsertBuffer creates an insert buffer writing to writer.
func NewInsertBuffer(writer model.CatalogWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := 500
	flushInterval := 250 * time.Millisecond
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]journaledProduct, 0, batchSize),
		flushChan:     make(chan []journaledProduct, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
	if len(conf) > 0 && conf[0].Journal != nil {
		b.journal = conf[0].Journal
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending()
			return
		}
	}
}

// logBackpressure logs at most once every 10 seconds.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: import backpressure, %d inline flushes", count)
	}
}

func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]journaledProduct, 0, b.maxBatch)
	b.mu.Unlock()

	b.enqueue(batch, "inline")
}

// enqueue hands batch to the flush worker, flushing inline when the queue is full.
func (b *InsertBuffer) enqueue(batch []journaledProduct, where string) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.flushBatch(batch); err != nil {
			log.Printf("duckdb flush error (%s): %v", where, err)
		}
	}
}

func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.flushBatch(batch); err != nil {
			log.Printf("duckdb flush error: %v", err)
		}
	}
}

// Add queues a product for insertion. Products without an id get a UUID and
// products without a creation time are stamped now.
func (b *InsertBuffer) Add(p *model.Product) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	seq := uint64(0)
	if b.journal != nil {
		for {
			var err error
			seq, err = b.journal.Append(p)
			if err == nil {
				break
			}
			log.Printf("duckdb: journal append failed, retrying: %v", err)
			select {
			case <-b.done:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
	b.added.Add(1)

	b.mu.Lock()
	b.pending = append(b.pending, journaledProduct{seq: seq, product: p})
	var batch []journaledProduct
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]journaledProduct, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch, "overflow-inline")
	}
}

// Stats returns how many products were queued and how many reached the store.
func (b *InsertBuffer) Stats() (added, flushed int64) {
	return b.added.Load(), b.flushed.Load()
}

// Stop flushes remaining products and waits for all writes to complete.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// tickLoop does the final drain; flushChan must stay open until it returns.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
		if b.journal != nil {
			if err := b.journal.Close(); err != nil {
				log.Printf("duckdb: journal close error: %v", err)
			}
		}
	})
}

func (b *InsertBuffer) flushBatch(batch []journaledProduct) error {
	if len(batch) == 0 {
		return nil
	}

	products := make([]*model.Product, 0, len(batch))
	var maxSeq uint64
	for _, item := range batch {
		products = append(products, item.product)
		maxSeq = max(maxSeq, item.seq)
	}

	if err := b.writer.InsertProductBatch(products); err != nil {
		return err
	}
	b.flushed.Add(int64(len(products)))

	if b.journal != nil && maxSeq > 0 {
		if err := b.journal.Commit(maxSeq); err != nil {
			return fmt.Errorf("journal commit seq=%d: %w", maxSeq, err)
		}
	}
	return nil
}

// InsertProductBatch upserts products in a single transaction. A product id
// seen twice in one batch keeps its last version. When the transaction
// fails, products are retried one by one and failures are dropped.
func (s *Store) InsertProductBatch(products []*model.Product) error {
	products = lastByID(products)
	if len(products) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertBatchTx(ctx, products); err == nil {
		return nil
	}

	var failed int
	for _, p := range products {
		if err := s.insertBatchTx(ctx, []*model.Product{p}); err != nil {
			failed++
			log.Printf("duckdb: dropping product (id=%s title=%.60s): %v", p.ID, p.Title, err)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed, %d/%d products dropped", failed, len(products))
	}
	return nil
}

func lastByID(products []*model.Product) []*model.Product {
	idx := make(map[string]int, len(products))
	out := make([]*model.Product, 0, len(products))
	for _, p := range products {
		if p == nil {
			continue
		}
		if i, ok := idx[p.ID]; ok {
			out[i] = p
			continue
		}
		idx[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

func (s *Store) insertBatchTx(ctx context.Context, products []*model.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		currency := p.Currency
		if currency == "" {
			currency = "USD"
		}
		var expires any
		if !p.ExpiresAt.IsZero() {
			expires = p.ExpiresAt
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.SellerID, p.SellerName, p.Title, p.Description,
			p.PriceCents, currency, p.ImageURL, p.SalesCount,
			p.CreatedAt, expires,
		); err != nil {
			return fmt.Errorf("product insert: %w", err)
		}
	}

	return tx.Commit()
}

// RecordImportRun stores the outcome of one catalog import.
func (s *Store) RecordImportRun(run model.ImportRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, source, accepted, rejected, finished_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Accepted, run.Rejected, run.FinishedAt)
	return err
}
