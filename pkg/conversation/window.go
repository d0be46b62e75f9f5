// Package conversation maintains the bounded message history handed to the
// generation provider as a run progresses.
package conversation

import "github.com/promptline/promptline/pkg/models"

// DefaultMaxPairs is the number of (user, assistant) pairs retained when no
// explicit limit is configured.
const DefaultMaxPairs = 10

// Window holds the ordered (user, assistant) message pairs produced so far
// in a run. It retains at most 2*maxPairs messages; the oldest entries are
// evicted first. A window is owned by exactly one run and is not safe for
// concurrent use.
type Window struct {
	maxPairs int
	messages []models.ChatMessage
}

// NewWindow creates a window retaining at most maxPairs message pairs.
// Non-positive values fall back to DefaultMaxPairs.
func NewWindow(maxPairs int) *Window {
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}

	return &Window{maxPairs: maxPairs}
}

// Append records the (user, assistant) pair for a completed step and trims
// the oldest excess entries so the window never exceeds 2*maxPairs messages.
func (w *Window) Append(userMsg, assistantMsg string) {
	w.messages = append(w.messages,
		models.ChatMessage{Role: models.ChatMessageRoleUser, Content: userMsg},
		models.ChatMessage{Role: models.ChatMessageRoleAssistant, Content: assistantMsg},
	)

	if excess := len(w.messages) - 2*w.maxPairs; excess > 0 {
		w.messages = w.messages[excess:]
	}
}

// Snapshot returns a copy of the retained messages in order.
func (w *Window) Snapshot() []models.ChatMessage {
	snapshot := make([]models.ChatMessage, len(w.messages))
	copy(snapshot, w.messages)

	return snapshot
}

// Len returns the number of retained messages (not pairs).
func (w *Window) Len() int {
	return len(w.messages)
}
