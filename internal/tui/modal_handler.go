package tui

import tea "github.com/charmbracelet/bubbletea"

// Modal is a self-contained modal that owns its own Update/View lifecycle.
// Modals are managed via a stack on FeedPage; the topmost modal receives
// all input and renders full-screen.
type Modal interface {
	// ID returns a unique identifier used to deduplicate pushes.
	ID() string
	// Update processes a message. Return pop=true to close the modal.
	Update(msg tea.Msg) (pop bool, cmd tea.Cmd)
	// View renders the modal content for the given terminal dimensions.
	View(width, height int) string
}

// Refreshable is optionally implemented by modals that need fresh data
// while they are on top of the stack.
type Refreshable interface {
	Refresh()
}

// modalStack is the push/pop stack shared by pages.
type modalStack struct {
	modals []Modal
}

// Push pushes a modal onto the stack. Deduplicates by ID.
func (s *modalStack) Push(modal Modal) {
	for _, existing := range s.modals {
		if existing.ID() == modal.ID() {
			return
		}
	}
	s.modals = append(s.modals, modal)
}

// Pop removes the topmost modal from the stack.
func (s *modalStack) Pop() {
	if len(s.modals) > 0 {
		s.modals = s.modals[:len(s.modals)-1]
	}
}

// Remove drops the modal with id wherever it sits in the stack.
func (s *modalStack) Remove(id string) {
	for i, m := range s.modals {
		if m.ID() == id {
			s.modals = append(s.modals[:i], s.modals[i+1:]...)
			return
		}
	}
}

// Top returns the topmost modal, or nil if the stack is empty.
func (s *modalStack) Top() Modal {
	if len(s.modals) == 0 {
		return nil
	}
	return s.modals[len(s.modals)-1]
}

// Has reports whether a modal with id is on the stack.
func (s *modalStack) Has(id string) bool {
	for _, m := range s.modals {
		if m.ID() == id {
			return true
		}
	}
	return false
}

// Len returns the stack depth.
func (s *modalStack) Len() int { return len(s.modals) }
