package location

import (
	"errors"
	"sync"
)

// ErrEmptyHistory is returned by Replace when there is no entry to replace.
var ErrEmptyHistory = errors.New("history is empty")

// Navigator changes the current location of a page.
type Navigator interface {
	// Push adds a new history entry.
	Push(loc Location) error

	// Replace swaps the current history entry so the back button cannot
	// return to it.
	Replace(loc Location) error
}

// History is an in-memory navigation history for one page.
type History struct {
	mu      sync.RWMutex
	entries []Location
}

var _ Navigator = (*History)(nil)

// NewHistory creates a history whose first entry is initial.
func NewHistory(initial Location) *History {
	return &History{entries: []Location{initial}}
}

// Push implements Navigator.
func (h *History) Push(loc Location) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, loc)
	return nil
}

// Replace implements Navigator.
func (h *History) Replace(loc Location) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return ErrEmptyHistory
	}
	h.entries[len(h.entries)-1] = loc
	return nil
}

// Current returns the current entry.
func (h *History) Current() Location {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return Location{Path: "/"}
	}
	return h.entries[len(h.entries)-1]
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Entries returns a copy of all entries, oldest first.
func (h *History) Entries() []Location {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Location, len(h.entries))
	copy(out, h.entries)
	return out
}
