// Package feed implements the browsing feed engine: incremental pagination
// of a catalog, interruption slots interleaved between items, and the guest
// engagement tracker that decides once per session whether to prompt.
package feed

import (
	"context"
	"fmt"
	"time"
)

// DefaultPageSize is the page size used when a paginator is built without one.
const DefaultPageSize = 20

// Page is one batch of items returned by a PagedSource.
type Page[T any] struct {
	Items   []T
	HasMore bool
}

// PagedSource returns one page of items per call. Pages are zero-based and
// HasMore must be computed as total > (pageIndex+1)*pageSize.
type PagedSource[T any] interface {
	FetchPage(ctx context.Context, pageIndex, pageSize int) (Page[T], error)
}

// SourceFunc adapts a plain function to PagedSource.
type SourceFunc[T any] func(ctx context.Context, pageIndex, pageSize int) (Page[T], error)

// FetchPage calls f.
func (f SourceFunc[T]) FetchPage(ctx context.Context, pageIndex, pageSize int) (Page[T], error) {
	return f(ctx, pageIndex, pageSize)
}

// HasMore is the paging rule every source applies.
func HasMore(total int64, pageIndex, pageSize int) bool {
	return total > int64(pageIndex+1)*int64(pageSize)
}

type timeoutSource[T any] struct {
	src     PagedSource[T]
	timeout time.Duration
}

// WithTimeout bounds every FetchPage call on src. A hung source otherwise
// leaves the paginator loading forever.
func WithTimeout[T any](src PagedSource[T], timeout time.Duration) PagedSource[T] {
	if timeout <= 0 {
		return src
	}
	return &timeoutSource[T]{src: src, timeout: timeout}
}

func (s *timeoutSource[T]) FetchPage(ctx context.Context, pageIndex, pageSize int) (Page[T], error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		page Page[T]
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		page, err := s.src.FetchPage(ctx, pageIndex, pageSize)
		ch <- result{page: page, err: err}
	}()

	select {
	case r := <-ch:
		return r.page, r.err
	case <-ctx.Done():
		return Page[T]{}, fmt.Errorf("fetch page %d: %w", pageIndex, ctx.Err())
	}
}
