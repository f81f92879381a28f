package subscription

import (
	"sync"
)

// Handle identifies a registered handler. Handles are never reused within a Client.
type Handle uint64

// Handler receives decoded inbound messages
type Handler interface {
	HandleMessage(msg Message) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(msg Message) error

// HandleMessage calls f(msg)
func (f HandlerFunc) HandleMessage(msg Message) error {
	return f(msg)
}

type handlerEntry struct {
	handle  Handle
	handler Handler
}

// callbackRegistry keeps handlers in registration order. The entries slice is
// replaced on every change, never mutated in place, so a snapshot taken for
// dispatch stays valid while handlers are added or removed.
type callbackRegistry struct {
	mu      sync.Mutex
	next    Handle
	entries []handlerEntry
}

func (r *callbackRegistry) add(h Handler) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	entries := make([]handlerEntry, len(r.entries), len(r.entries)+1)
	copy(entries, r.entries)
	r.entries = append(entries, handlerEntry{handle: r.next, handler: h})
	return r.next
}

func (r *callbackRegistry) remove(handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.handle != handle {
			continue
		}
		entries := make([]handlerEntry, 0, len(r.entries)-1)
		entries = append(entries, r.entries[:i]...)
		r.entries = append(entries, r.entries[i+1:]...)
		return true
	}
	return false
}

func (r *callbackRegistry) snapshot() []handlerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries
}

func (r *callbackRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
