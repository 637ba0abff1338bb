package feed

import (
	"context"
	"sync/atomic"
	"time"
)

// SessionConfig configures one browsing session.
type SessionConfig struct {
	PageSize   int
	Rules      []Rule      // nil means DefaultRules
	Thresholds *Thresholds // nil means DefaultThresholds; values are used as given
	Guest      bool
	Clock      func() time.Time
}

// Update is the outcome of one session step.
type Update struct {
	Fetched bool  // a page request was issued
	Err     error // fetch failure, recorded on the paginator
	Prompt  bool  // the engagement signal fired during this step
}

// Session owns the engine state for one feed view: the paginator, the
// planner and the tracker. The paginator's item count drives the tracker.
type Session[T any] struct {
	paginator *Paginator[T]
	planner   Planner
	tracker   *Tracker
	guest     atomic.Bool
}

// NewSession wires a paginator over src to a planner and a tracker. Sessions
// that are not guests start with the tracker latched.
func NewSession[T any](src PagedSource[T], cfg SessionConfig, opts ...Option[T]) *Session[T] {
	if cfg.PageSize > 0 {
		opts = append([]Option[T]{WithPageSize[T](cfg.PageSize)}, opts...)
	}
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	th := DefaultThresholds()
	if cfg.Thresholds != nil {
		th = *cfg.Thresholds
	}

	s := &Session[T]{
		paginator: NewPaginator(src, opts...),
		planner:   NewPlanner(rules...),
		tracker:   NewTracker(WithClock(cfg.Clock), WithThresholds(th)),
	}
	s.guest.Store(cfg.Guest)
	if !cfg.Guest {
		s.tracker.MarkConverted()
	}
	return s
}

// Guest reports whether the session belongs to an anonymous visitor.
func (s *Session[T]) Guest() bool { return s.guest.Load() }

// Paginator returns the session's paginator.
func (s *Session[T]) Paginator() *Paginator[T] { return s.paginator }

// Planner returns the session's planner.
func (s *Session[T]) Planner() Planner { return s.planner }

// Tracker returns the session's tracker.
func (s *Session[T]) Tracker() *Tracker { return s.tracker }

// LoadNext loads the next page and feeds the new item count to the tracker.
func (s *Session[T]) LoadNext(ctx context.Context) Update {
	fetched, err := s.paginator.LoadNext(ctx)
	u := Update{Fetched: fetched, Err: err}
	if fetched && err == nil {
		u.Prompt = s.tracker.SetItemsSeen(s.paginator.Len())
	}
	return u
}

// Retry re-issues the request for the page whose load failed.
func (s *Session[T]) Retry(ctx context.Context) Update {
	fetched, err := s.paginator.Retry(ctx)
	u := Update{Fetched: fetched, Err: err}
	if fetched && err == nil {
		u.Prompt = s.tracker.SetItemsSeen(s.paginator.Len())
	}
	return u
}

// Tick samples elapsed time.
func (s *Session[T]) Tick() bool { return s.tracker.Tick() }

// SignIn latches the tracker so the guest is never prompted.
func (s *Session[T]) SignIn() {
	s.guest.Store(false)
	s.tracker.MarkConverted()
}

// State returns the paginator snapshot.
func (s *Session[T]) State() State[T] { return s.paginator.State() }

// Rows returns the items with interruption slots spliced in.
func (s *Session[T]) Rows() []Row[T] {
	return Interleave(s.paginator.State().Items, s.planner)
}

// Elapsed returns the session's dwell time.
func (s *Session[T]) Elapsed() time.Duration { return s.tracker.Elapsed() }

// ItemsSeen returns the tracker's item count.
func (s *Session[T]) ItemsSeen() int { return s.tracker.ItemsSeen() }

// Close discards any in-flight page.
func (s *Session[T]) Close() { s.paginator.Close() }
