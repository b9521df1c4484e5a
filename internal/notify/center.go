// Package notify accumulates cross-channel notices into the ordered,
// dismissible list behind the bell icon.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Notification is one entry in the list. The ID exists only for
// list-removal and is unrelated to any server identifier.
type Notification struct {
	ID   string
	Text string
}

// Center holds the session-scoped notification list and the unseen
// flag. Nothing here persists and there is no size cap.
type Center struct {
	mu     sync.Mutex
	items  []Notification
	unseen bool
}

func NewCenter() *Center {
	return &Center{}
}

// Push appends a notice and marks the list unseen.
func (c *Center) Push(text string) Notification {
	n := Notification{ID: uuid.NewString(), Text: text}
	c.mu.Lock()
	c.items = append(c.items, n)
	c.unseen = true
	c.mu.Unlock()
	return n
}

// Dismiss removes exactly the entry with the given id, keeping the
// order of the remainder. It reports whether an entry was removed.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the list and the unseen flag.
func (c *Center) Clear() {
	c.mu.Lock()
	c.items = nil
	c.unseen = false
	c.mu.Unlock()
}

// Open returns a snapshot of the list and clears the unseen flag:
// viewing the dropdown acknowledges it without removing entries.
func (c *Center) Open() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unseen = false
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

// List returns a snapshot without touching the unseen flag.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

// HasNew reports whether notices arrived since the list was opened.
func (c *Center) HasNew() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unseen
}

// Len reports the current list size.
func (c *Center) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
