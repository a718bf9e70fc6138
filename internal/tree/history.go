package tree

import (
	"errors"

	"github.com/rescale/rescale-foldernav/internal/constants"
)

var (
	// ErrCannotGoBack is returned by Back at the oldest entry.
	ErrCannotGoBack = errors.New("cannot go back")

	// ErrCannotGoForward is returned by Forward at the newest entry.
	ErrCannotGoForward = errors.New("cannot go forward")
)

// History is a bounded back/forward list of visited folder ids.
//
// Pushing while the cursor is not at the end discards every forward
// entry. When the list would exceed its limit the oldest entry is
// dropped. History is not safe for concurrent use; the navigator
// serializes access.
type History struct {
	entries []string
	cursor  int
	limit   int
}

// NewHistory creates an empty history. A non-positive limit selects the
// default.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	return &History{cursor: -1, limit: limit}
}

// Push records a visit. Visiting the current entry again is a no-op.
func (h *History) Push(id string) {
	if h.cursor >= 0 && h.entries[h.cursor] == id {
		return
	}
	h.entries = append(h.entries[:h.cursor+1], id)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
	h.cursor = len(h.entries) - 1
}

// Back moves the cursor one step back and returns the id there.
func (h *History) Back() (string, error) {
	if !h.CanGoBack() {
		return "", ErrCannotGoBack
	}
	h.cursor--
	return h.entries[h.cursor], nil
}

// Forward moves the cursor one step forward and returns the id there.
func (h *History) Forward() (string, error) {
	if !h.CanGoForward() {
		return "", ErrCannotGoForward
	}
	h.cursor++
	return h.entries[h.cursor], nil
}

// Current returns the id under the cursor, or false when empty.
func (h *History) Current() (string, bool) {
	if h.cursor < 0 {
		return "", false
	}
	return h.entries[h.cursor], true
}

func (h *History) CanGoBack() bool    { return h.cursor > 0 }
func (h *History) CanGoForward() bool { return h.cursor < len(h.entries)-1 }

// Entries returns a copy of the list, oldest first.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}

// Cursor returns the index of the current entry, -1 when empty.
func (h *History) Cursor() int { return h.cursor }

// Len returns the number of retained entries.
func (h *History) Len() int { return len(h.entries) }
