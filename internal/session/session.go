// Package session tracks whether the editor holds a valid session with the
// API and mediates every credentialed call to it.
package session

import "sync"

// User is the profile returned by the status endpoint.
type User struct {
	ID         string `json:"sub"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	PictureURL string `json:"picture"`
}

// State is a point-in-time view of the session.
// User is non-nil only while Authorized is true.
type State struct {
	Authorized bool
	User       *User
}

// Session is the shared "current session" value. The Client is its only
// writer; any number of readers may take snapshots or subscribe.
type Session struct {
	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// New returns an unauthorized session.
func New() *Session {
	return &Session{subs: make(map[int]func(State))}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Authorized reports whether the session is currently believed valid.
func (s *Session) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Authorized
}

// Subscribe registers fn to be called after every state change. The returned
// function removes the subscription.
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) setAuthorized(user *User, keepUser bool) {
	s.mu.Lock()
	s.state.Authorized = true
	if !keepUser {
		s.state.User = user
	}
	s.notifyLocked()
}

func (s *Session) clear() {
	s.mu.Lock()
	s.state = State{}
	s.notifyLocked()
}

// notifyLocked releases s.mu before invoking subscribers so that they may
// read the session again.
func (s *Session) notifyLocked() {
	st := s.copyLocked()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (s *Session) copyLocked() State {
	st := State{Authorized: s.state.Authorized}
	if s.state.User != nil {
		u := *s.state.User
		st.User = &u
	}
	return st
}
