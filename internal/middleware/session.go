package middleware

import (
	"log/slog"
	"net/http"

	"github.com/refactorly/console/internal/ctxkeys"
	"github.com/refactorly/console/internal/guard"
	"github.com/refactorly/console/internal/session"
	"github.com/refactorly/console/internal/ui"
	"github.com/refactorly/console/internal/ui/pages"
)

// Session adds a snapshot of the session state to the request context.
// Everything downstream decides on that one snapshot.
func Session(store *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ctxkeys.WithSession(r.Context(), store.State())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession gates a protected page on the route guard. While the
// session is loading a neutral loading page renders instead.
func RequireSession(paths guard.Paths) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			d := guard.Decide(ctxkeys.Session(r.Context()), r.URL.RequestURI(), paths)
			apply(w, r, d, paths, next)
		}
	}
}

// RequireGuest gates public-only pages such as login and signup.
func RequireGuest(paths guard.Paths) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			d := guard.DecidePublic(ctxkeys.Session(r.Context()), paths)
			apply(w, r, d, paths, next)
		}
	}
}

func apply(w http.ResponseWriter, r *http.Request, d guard.Decision, paths guard.Paths, next http.HandlerFunc) {
	switch d.Action {
	case guard.Render:
		next(w, r)
	case guard.Loading:
		ui.Render(w, r, pages.Loading())
	default:
		to := d.Location(paths)
		slog.Debug("guard redirect", "path", r.URL.Path, "decision", d.Action.String(), "to", to)
		ui.Redirect(w, r, to)
	}
}
