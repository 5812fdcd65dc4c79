package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/refactorly/console/internal/guard"
	"github.com/refactorly/console/internal/identity"
	"github.com/refactorly/console/internal/linking"
	"github.com/refactorly/console/internal/model"
	"github.com/refactorly/console/internal/session"
	"github.com/refactorly/console/internal/ui"
	"github.com/refactorly/console/internal/ui/pages"
)

type OAuthHandler struct {
	flow     *linking.Flow
	sessions *session.Provider
	appURL   string
	paths    guard.Paths
}

func NewOAuthHandler(flow *linking.Flow, sessions *session.Provider, appURL string, paths guard.Paths) *OAuthHandler {
	return &OAuthHandler{flow: flow, sessions: sessions, appURL: appURL, paths: paths}
}

// Login starts a provider handshake that signs the user in.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.initiate(w, r, model.OAuthModeLogin)
}

// Connect starts a provider handshake that links the account to the
// signed-in user.
func (h *OAuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	h.initiate(w, r, model.OAuthModeConnect)
}

func (h *OAuthHandler) initiate(w http.ResponseWriter, r *http.Request, mode model.OAuthMode) {
	provider := r.PathValue("provider")
	nav := linking.NavigatorFunc(func(to string) {
		ui.Redirect(w, r, to)
	})

	err := h.flow.Initiate(r.Context(), nav, provider, mode, linking.Options{
		RedirectURI: h.appURL + "/auth/" + provider + "/callback",
		ReturnTo:    r.URL.Query().Get("return_to"),
	})
	if err != nil {
		slog.Warn("oauth initiation failed", "error", err, "provider", provider, "mode", mode)
		status, message := initiateFailure(err, provider)
		ui.RenderStatus(w, r, status, pages.LinkError(linking.DisplayName(provider), message))
	}
}

func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	provider := r.PathValue("provider")

	done, err := h.flow.Complete(r.Context(), linking.Callback{
		Provider: provider,
		Code:     q.Get("code"),
		State:    q.Get("state"),
		Error:    q.Get("error"),
	})
	if err != nil {
		slog.Warn("oauth callback failed", "error", err, "provider", provider, "mode", done.Mode)
		ui.RenderStatus(w, r, http.StatusBadRequest, pages.LinkError(linking.DisplayName(provider), callbackFailure(err)))
		return
	}

	if done.Mode == model.OAuthModeConnect {
		ui.Redirect(w, r, h.paths.Dashboard)
		return
	}
	// ReturnTarget re-checks the saved location, it came from the query string.
	ui.Redirect(w, r, guard.ReturnTarget(done.ReturnTo, h.sessions.State().User, h.paths))
}

func initiateFailure(err error, provider string) (int, string) {
	switch {
	case errors.Is(err, linking.ErrUnknownProvider):
		return http.StatusNotFound, "This provider isn't supported."
	case errors.Is(err, linking.ErrNoSession):
		return http.StatusUnauthorized, "Sign in before connecting an account."
	case errors.Is(err, identity.ErrProviderUnavailable):
		return http.StatusBadGateway, messageOr(err, linking.DisplayName(provider)+" is unavailable right now. Try again in a moment.")
	default:
		return http.StatusBadGateway, genericError
	}
}

func callbackFailure(err error) string {
	switch {
	case errors.Is(err, linking.ErrDenied):
		return "Authorization was cancelled."
	case errors.Is(err, linking.ErrInvalidState):
		return "This sign-in link has expired. Start again."
	case errors.Is(err, session.ErrStaleTicket):
		return "Your session changed while connecting. Start again."
	default:
		return messageOr(err, genericError)
	}
}

func providerList() []pages.Provider {
	ids := []string{model.ProviderGitHub, model.ProviderGitLab, model.ProviderGoogle}
	out := make([]pages.Provider, 0, len(ids))
	for _, id := range ids {
		out = append(out, pages.Provider{ID: id, Name: linking.DisplayName(id)})
	}
	return out
}
