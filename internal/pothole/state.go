package pothole

import (
	"sync"

	"github.com/roadguard/pothole-api/internal/model"
)

// State is the detector's model-or-none. A zero State has no network.
type State struct {
	Network   model.Network
	Path      string
	InputSize int
}

// Loaded reports whether a network is present.
func (s State) Loaded() bool {
	return s.Network != nil
}

// StateHandle guards State so that inference sees either the old or the new
// network, never a half-replaced one.
type StateHandle struct {
	mu    sync.RWMutex
	state State
}

// With runs fn while holding the state for reading. Swap blocks until fn returns.
func (h *StateHandle) With(fn func(State)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn(h.state)
}

// Swap installs next and returns the previous state. The caller owns the
// previous network and must close it.
func (h *StateHandle) Swap(next State) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.state
	h.state = next
	return prev
}

// Current returns a snapshot of the state. The network must not be closed
// by the caller.
func (h *StateHandle) Current() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}
