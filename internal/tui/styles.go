package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette colors. InitializeSkin swaps them before the program starts.
var (
	ColorNavy   = lipgloss.Color("17")
	ColorBlue   = lipgloss.Color("39")
	ColorGreen  = lipgloss.Color("41")
	ColorOrange = lipgloss.Color("208")
	ColorRed    = lipgloss.Color("196")
	ColorGray   = lipgloss.Color("244")
	ColorWhite  = lipgloss.Color("255")
)

type skin struct {
	navy, blue, green, orange, red, gray, white lipgloss.Color
}

var skins = map[string]skin{
	"default": {"17", "39", "41", "208", "196", "244", "255"},
	"mono":    {"235", "252", "250", "248", "255", "242", "255"},
	"light":   {"254", "25", "28", "166", "160", "240", "232"},
}

// SkinNames lists the built-in skins.
func SkinNames() []string {
	return []string{"default", "light", "mono"}
}

// InitializeSkin applies a built-in skin. Unknown names leave the default
// palette in place and return an error.
func InitializeSkin(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	s, ok := skins[name]
	if !ok {
		return fmt.Errorf("unknown skin %q (available: %s)", name, strings.Join(SkinNames(), ", "))
	}
	ColorNavy, ColorBlue, ColorGreen = s.navy, s.blue, s.green
	ColorOrange, ColorRed, ColorGray, ColorWhite = s.orange, s.red, s.gray, s.white
	return nil
}

func titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
}

func mutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorGray)
}

func errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorRed)
}

// truncate cuts s to width cells, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width == 1 {
		return "…"
	}
	for len(r) > 0 && lipgloss.Width(string(r)) > width-1 {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
