package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const promptModalID = "prompt"

// promptClosedMsg reports how the visitor answered the sign-in prompt.
type promptClosedMsg struct {
	signIn bool
}

// PromptModal is the one-time sign-in invitation shown to engaged guests.
type PromptModal struct{}

func NewPromptModal() *PromptModal { return &PromptModal{} }

func (p *PromptModal) ID() string { return promptModalID }

func (p *PromptModal) Update(msg tea.Msg) (bool, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return false, nil
	}
	switch km.String() {
	case "enter", "s", "y":
		return true, func() tea.Msg { return promptClosedMsg{signIn: true} }
	case "escape", "esc", "n":
		return true, func() tea.Msg { return promptClosedMsg{} }
	}
	return false, nil
}

func (p *PromptModal) View(width, height int) string {
	body := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle().Render("Enjoying the shop?"),
		"",
		"Sign in to save favorites, follow sellers",
		"and pick up where you left off.",
		"",
		lipgloss.NewStyle().Foreground(ColorGreen).Bold(true).Render("enter: Sign in")+
			mutedStyle().Render("   esc: Not now"),
	)
	box := lipgloss.NewStyle().
		Padding(1, 3).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Render(body)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
