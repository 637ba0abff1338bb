package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SessionStats is a snapshot of the browsing session for the stats modal.
type SessionStats struct {
	Elapsed     time.Duration
	ItemsSeen   int
	PageSizes   []int // items appended by each successful page load
	Guest       bool
	PromptShown bool
	HasMore     bool
	LastError   error
}

// StatsModal shows session statistics with an items-per-page bar chart.
type StatsModal struct {
	scrollModal
	load  func() SessionStats
	stats SessionStats
}

func NewStatsModal(load func() SessionStats, reverseScrollWheel bool) *StatsModal {
	m := &StatsModal{scrollModal: newScrollModal(reverseScrollWheel), load: load}
	m.Refresh()
	return m
}

func (s *StatsModal) ID() string { return "stats" }

// Refresh re-reads the session snapshot.
func (s *StatsModal) Refresh() {
	if s.load != nil {
		s.stats = s.load()
	}
}

func (s *StatsModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && km.String() == "i" {
		return true, nil
	}
	return s.update(msg)
}

func (s *StatsModal) View(width, height int) string {
	content := renderStatsContent(s.stats, max(width-16, 20))
	return renderModalFrame(&s.viewport, "Session Statistics", content,
		"up/down/Wheel: Scroll | i: Toggle Stats | ESC: Close", width, height)
}

func renderStatsContent(st SessionStats, width int) string {
	label := lipgloss.NewStyle().Foreground(ColorGray).Width(16)
	var b strings.Builder
	row := func(k, v string) { fmt.Fprintf(&b, "%s %s\n", label.Render(k), v) }

	account := "signed in"
	if st.Guest {
		account = "guest"
	}
	row("Account", account)
	row("Session time", st.Elapsed.Truncate(time.Second).String())
	row("Products seen", strconv.Itoa(st.ItemsSeen))
	row("Pages loaded", strconv.Itoa(len(st.PageSizes)))
	if st.Guest {
		row("Sign-in prompt", map[bool]string{true: "shown", false: "not yet"}[st.PromptShown])
	}
	switch {
	case st.LastError != nil:
		row("Feed", errorStyle().Render("load failed: "+st.LastError.Error()))
	case !st.HasMore:
		row("Feed", "end of catalog reached")
	default:
		row("Feed", "more available")
	}

	if len(st.PageSizes) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle().Render("Products per page"))
		b.WriteString("\n")
		b.WriteString(renderPageSizeChart(st.PageSizes, width, 8))
		b.WriteString("\n")
	}
	return b.String()
}

// renderPageSizeChart draws one bar per loaded page, newest on the right.
func renderPageSizeChart(sizes []int, width, height int) string {
	maxBars := max((width+1)/2, 1)
	if len(sizes) > maxBars {
		sizes = sizes[len(sizes)-maxBars:]
	}

	bc := barchart.New(max(width, 2), height,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(1),
		barchart.WithNoAxis(),
	)
	style := lipgloss.NewStyle().Foreground(ColorBlue).Background(ColorBlue)
	for _, n := range sizes {
		bc.Push(barchart.BarData{
			Values: []barchart.BarValue{{Name: "items", Value: float64(n), Style: style}},
		})
	}
	bc.Draw()
	return bc.View()
}
