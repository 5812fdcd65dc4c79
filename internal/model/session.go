package model

// Phase is the coarse session verdict.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseAnonymous
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// SessionState is a snapshot of the session. User is set only when Phase is
// PhaseAuthenticated, and LoggingOut only overlays an authenticated state.
type SessionState struct {
	Phase      Phase
	User       *User
	LoggingOut bool
}

func LoadingState() SessionState {
	return SessionState{Phase: PhaseLoading}
}

func AnonymousState() SessionState {
	return SessionState{Phase: PhaseAnonymous}
}

func AuthenticatedState(user *User) SessionState {
	return SessionState{Phase: PhaseAuthenticated, User: user}
}

func (s SessionState) IsLoading() bool {
	return s.Phase == PhaseLoading
}

func (s SessionState) IsAnonymous() bool {
	return s.Phase == PhaseAnonymous
}

func (s SessionState) IsAuthenticated() bool {
	return s.Phase == PhaseAuthenticated && s.User != nil
}
