package handshake

import "sync"

// Holder keeps the current Context of a frame. Every swap bumps the
// generation; queries issued under an older generation are stale.
type Holder struct {
	mu         sync.RWMutex
	current    Context
	generation uint64
}

func NewHolder(initial Context) *Holder {
	h := &Holder{current: initial}
	if initial.Configured() {
		h.generation = 1
	}
	return h
}

func (h *Holder) Current() (Context, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.generation
}

func (h *Holder) Generation() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation
}

// Replace swaps in next wholesale. It reports false when next equals the
// current context or carries no project id.
func (h *Holder) Replace(next Context) bool {
	if !next.Configured() {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == next {
		return false
	}
	h.current = next
	h.generation++
	return true
}

// Apply handles a decoded message. Only a ConfigUpdate with a project id
// changes the context, and its role replaces the old one even when absent.
func (h *Holder) Apply(msg Message) bool {
	update, ok := msg.(ConfigUpdate)
	if !ok || update.ProjectID == "" {
		return false
	}
	return h.Replace(Context{ProjectID: update.ProjectID, Role: update.Role})
}

func (h *Holder) Stale(generation uint64) bool {
	return h.Generation() != generation
}
