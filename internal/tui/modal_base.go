package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// scrollModal is the viewport plumbing shared by the read-only modals.
type scrollModal struct {
	viewport           viewport.Model
	reverseScrollWheel bool
}

func newScrollModal(reverse bool) scrollModal {
	return scrollModal{viewport: viewport.New(80, 20), reverseScrollWheel: reverse}
}

// update handles scrolling. It reports pop=true on escape.
func (s *scrollModal) update(msg tea.Msg) (bool, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			s.viewport.ScrollUp(1)
			return false, nil
		case "down", "j":
			s.viewport.ScrollDown(1)
			return false, nil
		case "pgup":
			s.viewport.HalfPageUp()
			return false, nil
		case "pgdown":
			s.viewport.HalfPageDown()
			return false, nil
		case "escape", "esc", "q":
			return true, nil
		}
		var cmd tea.Cmd
		s.viewport, cmd = s.viewport.Update(msg)
		return false, cmd

	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress {
			return false, nil
		}
		up := msg.Button == tea.MouseButtonWheelUp
		down := msg.Button == tea.MouseButtonWheelDown
		if s.reverseScrollWheel {
			up, down = down, up
		}
		switch {
		case up:
			s.viewport.ScrollUp(1)
		case down:
			s.viewport.ScrollDown(1)
		}
	}
	return false, nil
}

// renderModalFrame renders content in a centered, bordered, scrollable modal.
func renderModalFrame(vp *viewport.Model, title, content, status string, width, height int) string {
	// Calculate dimensions
	modalWidth := max(width-8, 20)  // 4 chars margin on each side
	modalHeight := max(height-4, 8) // 2 lines margin top and bottom

	// Account for borders and headers
	contentWidth := modalWidth - 4
	contentHeight := modalHeight - 4

	vp.Width = contentWidth
	vp.Height = contentHeight
	vp.SetContent(content)

	contentPane := lipgloss.NewStyle().
		Width(contentWidth).
		Height(contentHeight).
		Border(lipgloss.NormalBorder()).
		BorderForeground(ColorGray).
		Render(vp.View())

	header := lipgloss.NewStyle().
		Width(contentWidth).
		Foreground(ColorBlue).
		Bold(true).
		Render(title)

	if status == "" {
		status = renderModalStatusBar()
	} else {
		status = mutedStyle().Render(status)
	}

	modal := lipgloss.JoinVertical(lipgloss.Left, header, contentPane, status)

	finalModal := lipgloss.NewStyle().
		Width(modalWidth).
		Height(modalHeight).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Render(modal)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, finalModal)
}

// renderModalStatusBar renders the status bar for modals
func renderModalStatusBar() string {
	statusItems := []string{"up/down/Wheel: Scroll", "PgUp/PgDn: Page", "ESC: Close"}
	return mutedStyle().Render(strings.Join(statusItems, " | "))
}
