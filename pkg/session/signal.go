package session

import "sync"

// Signal is the readiness flag of a Manager. It is true while the session
// holds a refresh token that the host may use for authenticated requests.
type Signal struct {
	mu     sync.Mutex
	ok     bool
	nextID int
	subs   map[int]func(bool)
}

// OK returns the current value.
func (s *Signal) OK() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ok
}

// Subscribe registers fn to be called on every change of the value.
// The current value is not replayed. The returned func unsubscribes.
// fn runs on the goroutine that changed the value while the manager holds
// its lock, so it must not call back into the Manager.
func (s *Signal) Subscribe(fn func(ok bool)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subs == nil {
		s.subs = make(map[int]func(bool))
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// set updates the value and reports whether it changed. Subscribers are
// called outside the lock.
func (s *Signal) set(ok bool) bool {
	s.mu.Lock()
	if s.ok == ok {
		s.mu.Unlock()
		return false
	}
	s.ok = ok
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ok)
	}

	return true
}
