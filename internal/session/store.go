// Package session owns the console's single authoritative session state and
// the provider that is its exclusive writer.
package session

import (
	"errors"
	"sync"

	"github.com/refactorly/console/internal/model"
)

var (
	ErrStaleTicket      = errors.New("session moved on since the call started")
	ErrNotAuthenticated = errors.New("no authenticated session")
)

// Ticket identifies the session epoch an asynchronous call started in.
// Results are applied only while the epoch is still current.
type Ticket uint64

// Listener observes every committed state, in commit order. Listeners run
// synchronously and must not write to the store.
type Listener func(model.SessionState)

// Store is the session state machine:
//
//	Loading -> Anonymous | Authenticated
//	Anonymous -> Authenticated
//	Authenticated -> Authenticated (user replaced)
//	Authenticated -> Authenticated(loggingOut) -> Anonymous
//
// Nothing ever returns to Loading.
type Store struct {
	mu        sync.Mutex
	state     model.SessionState
	epoch     uint64
	listeners map[int]Listener
	nextID    int

	// notifyMu serialises listener fan-out so listeners see commits in order.
	notifyMu sync.Mutex
}

func NewStore() *Store {
	return &Store{
		state:     model.LoadingState(),
		listeners: make(map[int]Listener),
	}
}

// State returns a snapshot. The user is a copy; readers cannot mutate the store.
func (s *Store) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.state)
}

// Ticket returns the current epoch for a call about to start.
func (s *Store) Ticket() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Ticket(s.epoch)
}

// Subscribe registers l and returns a function removing it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Resolve ends Loading. A nil user resolves to Anonymous. Later calls are
// ignored: only bootstrap resolves.
func (s *Store) Resolve(user *model.User) bool {
	return s.commit(func(st model.SessionState, _ uint64) (model.SessionState, bool, bool) {
		if !st.IsLoading() {
			return st, false, false
		}
		if user == nil {
			return model.AnonymousState(), true, false
		}
		return model.AuthenticatedState(user.Clone()), true, false
	})
}

// Authenticate moves to Authenticated(user), replacing any current user, and
// advances the epoch so results of calls made for the previous credential are
// discarded. It fails with ErrStaleTicket when the session changed epoch
// after t was taken, e.g. a logout finished while a login response was in
// flight.
//
// persist, when non-nil, runs inside the transition; if it fails the state is
// left unchanged. It is how a session credential gets cached without racing
// a concurrent logout that clears it.
func (s *Store) Authenticate(t Ticket, user *model.User, persist func() error) error {
	if user == nil {
		return errors.New("authenticate requires a user")
	}
	var err error
	s.commit(func(st model.SessionState, epoch uint64) (model.SessionState, bool, bool) {
		if uint64(t) != epoch || st.LoggingOut {
			err = ErrStaleTicket
			return st, false, false
		}
		if persist != nil {
			err = persist()
			if err != nil {
				return st, false, false
			}
		}
		return model.AuthenticatedState(user.Clone()), true, true
	})
	return err
}

// Replace swaps the user record of the current authenticated session.
func (s *Store) Replace(t Ticket, user *model.User) error {
	if user == nil {
		return errors.New("replace requires a user")
	}
	var err error
	s.commit(func(st model.SessionState, epoch uint64) (model.SessionState, bool, bool) {
		switch {
		case uint64(t) != epoch || st.LoggingOut:
			err = ErrStaleTicket
			return st, false, false
		case !st.IsAuthenticated():
			err = ErrNotAuthenticated
			return st, false, false
		}
		return model.AuthenticatedState(user.Clone()), true, false
	})
	return err
}

// BeginLogout overlays loggingOut on an authenticated state and advances the
// epoch, invalidating every ticket taken before it. It reports false, and
// changes nothing, when there is no authenticated session.
func (s *Store) BeginLogout() bool {
	return s.commit(func(st model.SessionState, _ uint64) (model.SessionState, bool, bool) {
		if !st.IsAuthenticated() || st.LoggingOut {
			return st, false, false
		}
		next := st
		next.LoggingOut = true
		return next, true, true
	})
}

// EndLogout completes a teardown started by BeginLogout.
func (s *Store) EndLogout() bool {
	return s.commit(func(st model.SessionState, _ uint64) (model.SessionState, bool, bool) {
		if !st.LoggingOut {
			return st, false, false
		}
		return model.AnonymousState(), true, true
	})
}

// Expire drops an authenticated session that the identity service no longer
// honours, without the logout overlay. It reports false, and changes nothing,
// when the session moved on since t: the rejection was about a credential
// that has since been replaced.
func (s *Store) Expire(t Ticket) bool {
	return s.commit(func(st model.SessionState, epoch uint64) (model.SessionState, bool, bool) {
		if uint64(t) != epoch || !st.IsAuthenticated() || st.LoggingOut {
			return st, false, false
		}
		return model.AnonymousState(), true, true
	})
}

// commit applies a transition. fn returns the next state, whether it
// changed, and whether the epoch advances.
func (s *Store) commit(fn func(model.SessionState, uint64) (model.SessionState, bool, bool)) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next, changed, advance := fn(s.state, s.epoch)
	if !changed {
		s.mu.Unlock()
		return false
	}
	s.state = next
	if advance {
		s.epoch++
	}
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	published := snapshot(next)
	s.mu.Unlock()

	for _, l := range listeners {
		l(published)
	}
	return true
}

func snapshot(st model.SessionState) model.SessionState {
	st.User = st.User.Clone()
	return st
}
