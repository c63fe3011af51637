package session

import "sync"

// Registry is the single slot holding the current terminal session. It is
// shared by Start, Write and the exit watcher; the lock is never held across
// pipe reads or writes.
type Registry struct {
	mu   sync.Mutex
	slot *Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Current returns a snapshot of the session in the slot, if any. An exited
// session stays visible until the next Start replaces it.
func (r *Registry) Current() (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slot == nil {
		return Info{}, false
	}
	return r.slot.info(), true
}

// Running reports whether a session is currently running.
func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runningLocked()
}

func (r *Registry) runningLocked() bool {
	return r.slot != nil && r.slot.State != StateExited
}

// input returns the stdin handle of the session in the slot.
func (r *Registry) input() (*stdinWriter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slot == nil {
		return nil, false
	}
	return r.slot.stdin, true
}

// release marks s exited. It reports false if s is no longer the slot's session.
func (r *Registry) release(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.State = StateExited
	return r.slot == s
}
