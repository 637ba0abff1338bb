package feed

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrClosed is returned when a page resolves after the paginator was closed.
// The page is discarded.
var ErrClosed = errors.New("feed: paginator closed")

// Item is one feed entry: the payload plus its zero-based absolute position.
// Positions are assigned on append and never change.
type Item[T any] struct {
	Position int
	Payload  T
}

// State is a snapshot of a paginator.
type State[T any] struct {
	Items         []Item[T]
	NextPageIndex int
	Loading       bool
	HasMore       bool
	Err           error
}

// Len returns the number of accumulated items.
func (s State[T]) Len() int { return len(s.Items) }

// Option configures a Paginator.
type Option[T any] func(*Paginator[T])

// WithPageSize sets the fixed page size requested from the source.
func WithPageSize[T any](n int) Option[T] {
	return func(p *Paginator[T]) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// WithDedupe drops payloads whose key was already appended. Dropped payloads
// do not consume a position.
func WithDedupe[T any](key func(T) string) Option[T] {
	return func(p *Paginator[T]) {
		p.key = key
		p.seen = make(map[string]struct{})
	}
}

// Paginator accumulates pages from a PagedSource into an append-only list.
// At most one fetch is in flight; calls made while loading are dropped.
type Paginator[T any] struct {
	src      PagedSource[T]
	pageSize int
	key      func(T) string
	seen     map[string]struct{}

	mu      sync.Mutex
	items   []Item[T]
	next    int
	loading bool
	hasMore bool
	err     error
	closed  bool
}

// NewPaginator creates a paginator with no items, page index 0 and HasMore set.
func NewPaginator[T any](src PagedSource[T], opts ...Option[T]) *Paginator[T] {
	p := &Paginator[T]{
		src:      src,
		pageSize: DefaultPageSize,
		hasMore:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PageSize returns the fixed page size.
func (p *Paginator[T]) PageSize() int { return p.pageSize }

// LoadNext requests page NextPageIndex from the source and appends it.
// It reports whether a fetch was issued. It is a no-op when a fetch is already
// in flight, when HasMore is false, or after Close.
//
// On failure the error is recorded and returned; items, the page index and
// HasMore are left as they were, so the next call re-requests the same page.
func (p *Paginator[T]) LoadNext(ctx context.Context) (bool, error) {
	return p.load(ctx, false)
}

// Retry re-issues the request for the page that last failed. The trigger
// stays disarmed while an error is recorded, so loading resumes only here.
// Without a recorded error Retry does nothing.
func (p *Paginator[T]) Retry(ctx context.Context) (bool, error) {
	return p.load(ctx, true)
}

func (p *Paginator[T]) load(ctx context.Context, retry bool) (bool, error) {
	p.mu.Lock()
	if p.closed || p.loading || !p.hasMore || (retry && p.err == nil) {
		p.mu.Unlock()
		return false, nil
	}
	p.loading = true
	pageIndex := p.next
	p.mu.Unlock()

	page, err := p.src.FetchPage(ctx, pageIndex, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if p.closed {
		return true, ErrClosed
	}
	if err != nil {
		p.err = err
		return true, err
	}

	p.appendLocked(page.Items)
	p.hasMore = page.HasMore
	p.next = pageIndex + 1
	p.err = nil
	return true, nil
}

func (p *Paginator[T]) appendLocked(payloads []T) {
	for _, payload := range payloads {
		if p.key != nil {
			k := p.key(payload)
			if _, dup := p.seen[k]; dup {
				continue
			}
			p.seen[k] = struct{}{}
		}
		p.items = append(p.items, Item[T]{Position: len(p.items), Payload: payload})
	}
}

// State returns a snapshot. Items is a copy; neither appends nor element
// writes made by the caller reach the paginator.
func (p *Paginator[T]) State() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State[T]{
		Items:         slices.Clone(p.items),
		NextPageIndex: p.next,
		Loading:       p.loading,
		HasMore:       p.hasMore,
		Err:           p.err,
	}
}

// Len returns the number of accumulated items.
func (p *Paginator[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Trigger returns the position of the sentinel item, the last one appended.
// armed is false when no automatic load may start from it: nothing loaded
// yet, a fetch in flight, the feed exhausted, the last fetch failed, or the
// paginator closed. A failed fetch is resumed with Retry.
func (p *Paginator[T]) Trigger() (position int, armed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return -1, false
	}
	position = len(p.items) - 1
	armed = !p.closed && !p.loading && p.hasMore && p.err == nil
	return position, armed
}

// Reached reports whether rendering up to visible (a zero-based position)
// brings the sentinel into view and should start a load.
func (p *Paginator[T]) Reached(visible int) bool {
	pos, armed := p.Trigger()
	return armed && visible >= pos
}

// Close tears the paginator down. A fetch resolving afterwards is discarded.
func (p *Paginator[T]) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
