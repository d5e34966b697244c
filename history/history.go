package history

import (
	"fmt"
	"strings"
	"sync"
)

// History is the ordered conversation of a session. Insertion order is
// chronological order is display order.
type History struct {
	turns   []Turn
	maxSize int
	mu      sync.RWMutex
}

// New creates an empty history. A maxSize of 0 keeps every turn.
func New(maxSize int) *History {
	return &History{
		turns:   make([]Turn, 0),
		maxSize: maxSize,
	}
}

// Append adds a complete turn at the end, trimming the oldest turns
// when the history is bounded.
func (h *History) Append(turn Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turn.clone())

	if h.maxSize > 0 && len(h.turns) > h.maxSize {
		trimCount := len(h.turns) - h.maxSize
		h.turns = append([]Turn(nil), h.turns[trimCount:]...)
	}
}

// Turns returns a copy of the history
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	turns := make([]Turn, len(h.turns))
	for i, t := range h.turns {
		turns[i] = t.clone()
	}
	return turns
}

// Len returns the number of turns
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Last returns the most recent turn
func (h *History) Last() (Turn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1].clone(), true
}

// Reset drops every turn
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = make([]Turn, 0)
}

// Title derives a short title from the first turn's input
func Title(turns []Turn) string {
	for _, t := range turns {
		content := strings.TrimSpace(t.InputText)
		if content == "" {
			continue
		}
		// Take first 50 characters or until newline
		if idx := strings.IndexByte(content, '\n'); idx != -1 {
			content = content[:idx]
		}
		if r := []rune(content); len(r) > 50 {
			content = string(r[:47]) + "..."
		}
		return content
	}

	if len(turns) > 0 {
		return fmt.Sprintf("Quest %s", turns[0].CreatedAt.Format("Jan 02 15:04"))
	}
	return "New quest"
}
