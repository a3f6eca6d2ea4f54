// Package identity wraps the external auth provider. The core only needs
// to know who the local user is and when that changes; issuing and
// refreshing credentials is the provider's problem.
package identity

import "sync"

// Gate exposes the current user identity and auth-state changes.
type Gate interface {
	// CurrentUserID returns the signed-in user id, or "" when signed out.
	CurrentUserID() string

	// OnAuthStateChanged registers a callback invoked immediately with the
	// current state and again on every change. The returned function
	// removes the registration.
	OnAuthStateChanged(fn func(uid string)) (unsub func())
}

// state is the shared observable auth state embedded by implementations.
type state struct {
	mu        sync.Mutex
	uid       string
	watchers  map[int]func(string)
	nextWatch int
}

func newState() *state {
	return &state{watchers: make(map[int]func(string))}
}

func (s *state) CurrentUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid
}

func (s *state) OnAuthStateChanged(fn func(uid string)) func() {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	uid := s.uid
	s.mu.Unlock()

	// Fire immediately with the current state, matching the auth SDK's
	// observer behavior the callers are written against.
	fn(uid)

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *state) set(uid string) {
	s.mu.Lock()
	if s.uid == uid {
		s.mu.Unlock()
		return
	}
	s.uid = uid
	watchers := make([]func(string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(uid)
	}
}

// Static is a Gate fixed to one user, used by tests and single-user runs
// where the uid is already known.
type Static struct {
	*state
}

// NewStatic creates a gate already signed in as uid.
func NewStatic(uid string) *Static {
	s := &Static{state: newState()}
	s.state.uid = uid
	return s
}

// SignOut clears the identity and notifies watchers.
func (s *Static) SignOut() {
	s.set("")
}

// SignInAs switches the identity and notifies watchers.
func (s *Static) SignInAs(uid string) {
	s.set(uid)
}
