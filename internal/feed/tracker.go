package feed

import (
	"sync"
	"time"
)

const (
	DefaultPromptDwell = 30 * time.Second
	DefaultPromptItems = 50
)

// Thresholds are the two conditions that must both hold before a guest is
// prompted. They are not validated.
type Thresholds struct {
	Dwell time.Duration
	Items int
}

// DefaultThresholds returns 30s of dwell and 50 items seen.
func DefaultThresholds() Thresholds {
	return Thresholds{Dwell: DefaultPromptDwell, Items: DefaultPromptItems}
}

// EngagementState is a snapshot of a tracker.
type EngagementState struct {
	SessionStart time.Time
	ItemsSeen    int
	PromptShown  bool
	Thresholds   Thresholds
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithThresholds replaces DefaultThresholds.
func WithThresholds(th Thresholds) TrackerOption {
	return func(t *Tracker) { t.thresholds = th }
}

// Tracker is the guest engagement state machine. It starts Observing and
// moves to Latched either by firing the prompt signal once or through
// MarkConverted. Nothing moves it back.
type Tracker struct {
	mu         sync.Mutex
	now        func() time.Time
	start      time.Time
	thresholds Thresholds
	itemsSeen  int
	latched    bool
	visible    bool
	prompted   chan struct{}
}

// NewTracker starts a session at the current clock reading.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		now:        time.Now,
		thresholds: DefaultThresholds(),
		prompted:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.now()
	return t
}

// SetItemsSeen records the number of feed items loaded so far. Lower values
// than already recorded are ignored. It reports whether this update fired
// the prompt signal.
func (t *Tracker) SetItemsSeen(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > t.itemsSeen {
		t.itemsSeen = n
	}
	return t.evaluateLocked()
}

// Tick samples the clock. It reports whether this sample fired the signal.
func (t *Tracker) Tick() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evaluateLocked()
}

func (t *Tracker) evaluateLocked() bool {
	if t.latched {
		return false
	}
	if t.now().Sub(t.start) < t.thresholds.Dwell || t.itemsSeen < t.thresholds.Items {
		return false
	}
	t.latched = true
	t.visible = true
	close(t.prompted)
	return true
}

// Prompted is closed when the prompt signal fires. It is never closed for a
// session latched by MarkConverted.
func (t *Tracker) Prompted() <-chan struct{} { return t.prompted }

// Dismiss hides the prompt. The tracker stays latched.
func (t *Tracker) Dismiss() {
	t.mu.Lock()
	t.visible = false
	t.mu.Unlock()
}

// MarkConverted latches the tracker without firing, for visitors who signed
// in or signed up before the prompt was due.
func (t *Tracker) MarkConverted() {
	t.mu.Lock()
	t.latched = true
	t.visible = false
	t.mu.Unlock()
}

// Latched reports whether the tracker left Observing.
func (t *Tracker) Latched() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latched
}

// PromptVisible is true between the signal firing and Dismiss.
func (t *Tracker) PromptVisible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// Elapsed returns the session's dwell time so far.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Sub(t.start)
}

// ItemsSeen returns the highest item count recorded.
func (t *Tracker) ItemsSeen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.itemsSeen
}

// State returns a snapshot.
func (t *Tracker) State() EngagementState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return EngagementState{
		SessionStart: t.start,
		ItemsSeen:    t.itemsSeen,
		PromptShown:  t.latched,
		Thresholds:   t.thresholds,
	}
}
