package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanner_DefaultLayout(t *testing.T) {
	p := DefaultPlanner()

	tests := []struct {
		position int
		want     SlotKind
	}{
		{10, SlotSellers},
		{20, SlotRecentlyViewed},
		{30, SlotTrending},
		{40, SlotTrending},
		{50, SlotSellers},
		{80, SlotTrending},
		{120, SlotTrending},
		{41, SlotNone},
		{1, SlotNone},
		{60, SlotNone},
		{0, SlotNone},
		{-40, SlotNone},
	}
	for _, tt := range tests {
		slot, ok := p.SlotFor(tt.position)
		if tt.want == SlotNone {
			require.False(t, ok, "position %d", tt.position)
			continue
		}
		require.True(t, ok, "position %d", tt.position)
		require.Equal(t, tt.want, slot.Kind, "position %d", tt.position)
		require.Equal(t, tt.position, slot.AfterPosition)
	}
}

func TestPlanner_Deterministic(t *testing.T) {
	p := DefaultPlanner()
	first := make(map[int]Slot)
	for pos := 200; pos >= 1; pos-- {
		slot, _ := p.SlotFor(pos)
		first[pos] = slot
	}
	for pos := 1; pos <= 200; pos++ {
		for i := 0; i < 3; i++ {
			slot, _ := p.SlotFor(pos)
			require.Equal(t, first[pos], slot)
		}
	}
}

func TestPlanner_FirstMatchWins(t *testing.T) {
	p := NewPlanner(
		Rule{At: 40, Kind: SlotSellers},
		Rule{Every: 40, Kind: SlotTrending},
	)
	slot, ok := p.SlotFor(40)
	require.True(t, ok)
	require.Equal(t, SlotSellers, slot.Kind)

	slot, ok = p.SlotFor(80)
	require.True(t, ok)
	require.Equal(t, SlotTrending, slot.Kind)
}

func TestPlanner_ZeroValueNeverMatches(t *testing.T) {
	var p Planner
	for pos := 1; pos <= 100; pos++ {
		_, ok := p.SlotFor(pos)
		require.False(t, ok)
	}
}

func TestPlanner_RulesAreCopied(t *testing.T) {
	rules := DefaultRules()
	p := NewPlanner(rules...)
	rules[0].Kind = SlotTrending

	slot, _ := p.SlotFor(10)
	require.Equal(t, SlotSellers, slot.Kind)

	got := p.Rules()
	got[0].Kind = SlotTrending
	slot, _ = p.SlotFor(10)
	require.Equal(t, SlotSellers, slot.Kind)
}

func TestInterleave(t *testing.T) {
	items := make([]Item[string], 45)
	for i := range items {
		items[i] = Item[string]{Position: i, Payload: "p"}
	}

	rows := Interleave(items, DefaultPlanner())
	require.Len(t, rows, 45+4)

	var slots []Slot
	next := 0
	for _, r := range rows {
		if r.IsSlot {
			slots = append(slots, r.Slot)
			continue
		}
		require.Equal(t, next, r.Item.Position)
		next++
	}
	require.Equal(t, []Slot{
		{AfterPosition: 10, Kind: SlotSellers},
		{AfterPosition: 20, Kind: SlotRecentlyViewed},
		{AfterPosition: 30, Kind: SlotTrending},
		{AfterPosition: 40, Kind: SlotTrending},
	}, slots)

	// the slot row follows the item at 1-based position 10
	require.False(t, rows[9].IsSlot)
	require.Equal(t, 9, rows[9].Item.Position)
	require.True(t, rows[10].IsSlot)
}

func TestParseSlotKind(t *testing.T) {
	for in, want := range map[string]SlotKind{
		"sellers":          SlotSellers,
		"Trending":         SlotTrending,
		" recently_viewed": SlotRecentlyViewed,
		"recently-viewed":  SlotRecentlyViewed,
	} {
		got, err := ParseSlotKind(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Equal(t, "recently_viewed", SlotRecentlyViewed.String())
	require.Equal(t, "none", SlotNone.String())

	_, err := ParseSlotKind("banner")
	require.Error(t, err)
}

func TestBuildRules(t *testing.T) {
	rules, err := BuildRules(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultRules(), rules)

	rules, err = BuildRules([]RuleConfig{
		{At: 5, Kind: "trending"},
		{Every: 25, Kind: "recently-viewed"},
	})
	require.NoError(t, err)
	require.Equal(t, []Rule{
		{At: 5, Kind: SlotTrending},
		{Every: 25, Kind: SlotRecentlyViewed},
	}, rules)

	_, err = BuildRules([]RuleConfig{{Kind: "sellers"}})
	require.Error(t, err)
	_, err = BuildRules([]RuleConfig{{At: 3, Every: 3, Kind: "sellers"}})
	require.Error(t, err)
	_, err = BuildRules([]RuleConfig{{At: 3, Kind: "banner"}})
	require.ErrorContains(t, err, "interruption 0")
}
