package mail

import "sync"

// Gate serializes all operations against the single shared mail connection.
// One IMAP connection cannot process overlapping commands, and compound
// operations (select a folder, then fetch from it) must hold the gate for
// their whole duration so another session cannot change the selected folder
// in between.
//
// The gate is process-wide, not per-session: every chat session and the
// background folder-streaming path share the one connection. sync.Mutex's
// starvation mode keeps waiters from being starved under contention.
type Gate struct {
	mu sync.Mutex
}

// NewGate creates a new connection gate.
func NewGate() *Gate {
	return &Gate{}
}

// Do runs fn while holding the gate. No operation may be issued to the
// connection outside of Do.
func (g *Gate) Do(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}
