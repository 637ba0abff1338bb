package feed

import (
	"fmt"
	"strings"
)

// SlotKind names the carousel spliced into the feed.
type SlotKind int

const (
	SlotNone SlotKind = iota
	SlotSellers
	SlotTrending
	SlotRecentlyViewed
)

func (k SlotKind) String() string {
	switch k {
	case SlotSellers:
		return "sellers"
	case SlotTrending:
		return "trending"
	case SlotRecentlyViewed:
		return "recently_viewed"
	default:
		return "none"
	}
}

// ParseSlotKind maps a config name to a SlotKind.
func ParseSlotKind(s string) (SlotKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sellers":
		return SlotSellers, nil
	case "trending":
		return SlotTrending, nil
	case "recently_viewed", "recently-viewed", "recent":
		return SlotRecentlyViewed, nil
	}
	return SlotNone, fmt.Errorf("unknown slot kind %q", s)
}

// Slot is a carousel rendered full-width after the item at AfterPosition
// (1-based). It does not consume a feed position.
type Slot struct {
	AfterPosition int
	Kind          SlotKind
}

// Rule matches a 1-based position either exactly (At) or periodically (Every).
type Rule struct {
	At    int
	Every int
	Kind  SlotKind
}

func (r Rule) matches(position int) bool {
	if r.At > 0 {
		return position == r.At
	}
	return r.Every > 0 && position%r.Every == 0
}

func (r Rule) String() string {
	if r.At > 0 {
		return fmt.Sprintf("at %d: %s", r.At, r.Kind)
	}
	return fmt.Sprintf("every %d: %s", r.Every, r.Kind)
}

// DefaultRules returns the storefront's interruption layout.
func DefaultRules() []Rule {
	return []Rule{
		{At: 10, Kind: SlotSellers},
		{At: 20, Kind: SlotRecentlyViewed},
		{At: 30, Kind: SlotTrending},
		{At: 50, Kind: SlotSellers},
		{Every: 40, Kind: SlotTrending},
	}
}

// RuleConfig is the configuration form of a Rule.
type RuleConfig struct {
	At    int    `mapstructure:"at"`
	Every int    `mapstructure:"every"`
	Kind  string `mapstructure:"kind"`
}

// BuildRules converts configured rules, keeping their order. An empty list
// yields DefaultRules.
func BuildRules(cfgs []RuleConfig) ([]Rule, error) {
	if len(cfgs) == 0 {
		return DefaultRules(), nil
	}
	rules := make([]Rule, 0, len(cfgs))
	for i, c := range cfgs {
		if (c.At > 0) == (c.Every > 0) {
			return nil, fmt.Errorf("interruption %d: set exactly one of at or every", i)
		}
		kind, err := ParseSlotKind(c.Kind)
		if err != nil {
			return nil, fmt.Errorf("interruption %d: %w", i, err)
		}
		rules = append(rules, Rule{At: c.At, Every: c.Every, Kind: kind})
	}
	return rules, nil
}

// Planner maps feed positions to interruption slots. Rules are checked in
// order and the first match wins. The zero value never yields a slot.
type Planner struct {
	rules []Rule
}

// NewPlanner builds a planner from an ordered rule list.
func NewPlanner(rules ...Rule) Planner {
	return Planner{rules: append([]Rule(nil), rules...)}
}

// DefaultPlanner builds a planner from DefaultRules.
func DefaultPlanner() Planner {
	return NewPlanner(DefaultRules()...)
}

// Rules returns a copy of the planner's rules.
func (p Planner) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// SlotFor returns the slot following the item at the 1-based position.
func (p Planner) SlotFor(position int) (Slot, bool) {
	if position <= 0 {
		return Slot{}, false
	}
	for _, r := range p.rules {
		if r.matches(position) {
			return Slot{AfterPosition: position, Kind: r.Kind}, true
		}
	}
	return Slot{}, false
}

// Row is one render row: a feed item, or a slot spliced after one.
type Row[T any] struct {
	Item   Item[T]
	Slot   Slot
	IsSlot bool
}

// Interleave returns items with their slots spliced in. Item positions are
// untouched.
func Interleave[T any](items []Item[T], planner Planner) []Row[T] {
	rows := make([]Row[T], 0, len(items)+len(items)/10)
	for _, it := range items {
		rows = append(rows, Row[T]{Item: it})
		if slot, ok := planner.SlotFor(it.Position + 1); ok {
			rows = append(rows, Row[T]{Slot: slot, IsSlot: true})
		}
	}
	return rows
}
