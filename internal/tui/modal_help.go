package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// HelpModal lists the key bindings.
type HelpModal struct {
	scrollModal
	keys KeyMap
}

func NewHelpModal(keys KeyMap, reverseScrollWheel bool) *HelpModal {
	return &HelpModal{scrollModal: newScrollModal(reverseScrollWheel), keys: keys}
}

func (h *HelpModal) ID() string { return "help" }

func (h *HelpModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && (km.String() == "?" || km.String() == "h") {
		return true, nil
	}
	return h.update(msg)
}

func (h *HelpModal) View(width, height int) string {
	return renderModalFrame(&h.viewport, "Help", h.content(), "up/down: Scroll | ?/h: Toggle Help | ESC: Close", width, height)
}

func (h *HelpModal) content() string {
	keyStyle := lipgloss.NewStyle().Foreground(ColorBlue).Bold(true).Width(14)
	var b strings.Builder
	b.WriteString("Browse the newest listings. More products load as you reach the\n")
	b.WriteString("end of the list; carousels appear between products.\n\n")
	for _, kb := range h.keys.HelpBindings() {
		help := kb.Help()
		fmt.Fprintf(&b, "%s %s\n", keyStyle.Render(help.Key), help.Desc)
	}
	return b.String()
}
