// Package guard decides, from session state alone, what an entry point may
// render. Every function here is pure: identical inputs yield identical
// decisions.
package guard

import (
	"net/url"
	"strings"

	"github.com/refactorly/console/internal/model"
)

// Action is what an entry point should do with a request.
type Action int

const (
	Loading Action = iota
	Render
	RedirectLogin
	RedirectOnboarding
	RedirectDashboard
)

func (a Action) String() string {
	switch a {
	case Loading:
		return "loading"
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect_login"
	case RedirectOnboarding:
		return "redirect_onboarding"
	case RedirectDashboard:
		return "redirect_dashboard"
	default:
		return "unknown"
	}
}

// Paths are the fixed destinations the guard redirects to.
type Paths struct {
	Login      string
	Onboarding string
	Dashboard  string
}

// DefaultPaths match the console's routes.
var DefaultPaths = Paths{
	Login:      "/login",
	Onboarding: "/app/onboarding",
	Dashboard:  "/app/dashboard",
}

// Decision is the outcome for one request.
type Decision struct {
	Action Action
	// ReturnTo is the originally requested location, set with RedirectLogin.
	ReturnTo string
	// Overlay is true while a logout is tearing the session down. Protected
	// content keeps rendering underneath it.
	Overlay bool
}

// Location is where a redirecting decision points. It is empty for Loading
// and Render.
func (d Decision) Location(paths Paths) string {
	switch d.Action {
	case RedirectLogin:
		return LoginURL(paths, d.ReturnTo)
	case RedirectOnboarding:
		return paths.Onboarding
	case RedirectDashboard:
		return paths.Dashboard
	default:
		return ""
	}
}

// Decide maps the session state and the requested path of a protected entry
// point to a decision. The rules apply in order, so an incomplete onboarding
// wins over every requested path except the onboarding page itself.
func Decide(state model.SessionState, requested string, paths Paths) Decision {
	switch {
	case state.IsLoading():
		return Decision{Action: Loading}
	case !state.IsAuthenticated():
		return Decision{Action: RedirectLogin, ReturnTo: requested}
	}

	d := Decision{Action: Render, Overlay: state.LoggingOut}
	onboarding := samePath(requested, paths.Onboarding)
	switch {
	case !state.User.OnboardingCompleted && !onboarding:
		d.Action = RedirectOnboarding
	case state.User.OnboardingCompleted && onboarding:
		d.Action = RedirectDashboard
	}
	return d
}

// DecidePublic is the guard for public-only entry points such as login and
// signup. A session being torn down counts as Loading so the login form never
// flashes before the state settles.
func DecidePublic(state model.SessionState, paths Paths) Decision {
	switch {
	case state.IsLoading() || state.LoggingOut:
		return Decision{Action: Loading}
	case state.IsAuthenticated():
		if !state.User.OnboardingCompleted {
			return Decision{Action: RedirectOnboarding}
		}
		return Decision{Action: RedirectDashboard}
	default:
		return Decision{Action: Render}
	}
}

// ReturnTarget picks where a freshly authenticated user lands. Onboarding
// comes first; otherwise a safe local returnTo, otherwise the dashboard.
func ReturnTarget(returnTo string, user *model.User, paths Paths) string {
	if user != nil && !user.OnboardingCompleted {
		return paths.Onboarding
	}
	if SafeReturn(returnTo, paths) {
		return returnTo
	}
	return paths.Dashboard
}

// SafeReturn reports whether returnTo is a local path worth returning to.
func SafeReturn(returnTo string, paths Paths) bool {
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") || strings.HasPrefix(returnTo, "/\\") {
		return false
	}
	u, err := url.Parse(returnTo)
	if err != nil || u.IsAbs() || u.Host != "" {
		return false
	}
	return !samePath(u.Path, paths.Login)
}

// LoginURL is the login entry with the requested location preserved.
func LoginURL(paths Paths, returnTo string) string {
	if returnTo == "" || !SafeReturn(returnTo, paths) {
		return paths.Login
	}
	return paths.Login + "?" + url.Values{"return_to": {returnTo}}.Encode()
}

func samePath(requested, target string) bool {
	if i := strings.IndexAny(requested, "?#"); i >= 0 {
		requested = requested[:i]
	}
	if len(requested) > 1 {
		requested = strings.TrimSuffix(requested, "/")
	}
	return requested == target
}
