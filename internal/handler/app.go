package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/refactorly/console/internal/ctxkeys"
	"github.com/refactorly/console/internal/guard"
	"github.com/refactorly/console/internal/logout"
	"github.com/refactorly/console/internal/session"
	"github.com/refactorly/console/internal/ui"
	"github.com/refactorly/console/internal/ui/pages"
	"github.com/refactorly/console/internal/validation"
)

type AppHandler struct {
	sessions *session.Provider
	logout   *logout.Sequencer
	paths    guard.Paths
}

func NewAppHandler(sessions *session.Provider, sequencer *logout.Sequencer, paths guard.Paths) *AppHandler {
	return &AppHandler{sessions: sessions, logout: sequencer, paths: paths}
}

// Home sends visitors wherever the guard would let them land.
func (h *AppHandler) Home(w http.ResponseWriter, r *http.Request) {
	ui.Redirect(w, r, h.paths.Dashboard)
}

func (h *AppHandler) DashboardPage(w http.ResponseWriter, r *http.Request) {
	st := ctxkeys.Session(r.Context())
	ui.Render(w, r, pages.Dashboard(pages.DashboardView{
		User:      st.User,
		Overlay:   st.LoggingOut,
		Providers: providerList(),
	}))
}

func (h *AppHandler) OnboardingPage(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	ui.Render(w, r, pages.Onboarding(pages.OnboardingForm{OrganizationName: user.OrganizationName}))
}

func (h *AppHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	form := pages.OnboardingForm{OrganizationName: strings.TrimSpace(r.FormValue("organization_name"))}

	err := validation.ValidateName("organization", form.OrganizationName)
	if err != nil {
		form.Error = capitalize(err.Error())
		ui.RenderStatus(w, r, http.StatusUnprocessableEntity, pages.Onboarding(form))
		return
	}

	_, err = h.sessions.CompleteOnboarding(r.Context(), form.OrganizationName)
	if errors.Is(err, session.ErrNotAuthenticated) || errors.Is(err, session.ErrStaleTicket) {
		ui.Redirect(w, r, h.paths.Login)
		return
	}
	if err != nil {
		slog.Error("onboarding failed", "error", err)
		form.Error = messageOr(err, genericError)
		ui.RenderStatus(w, r, http.StatusBadGateway, pages.Onboarding(form))
		return
	}

	ui.Redirect(w, r, h.paths.Dashboard)
}

// Logout holds the request open for the teardown, so the page's overlay stays
// up until the session is gone, then sends the browser to login.
func (h *AppHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.logout.Run(r.Context(), func(to string) {
		ui.Redirect(w, r, to)
	})
}

func (h *AppHandler) NotFoundPage(w http.ResponseWriter, r *http.Request) {
	ui.RenderStatus(w, r, http.StatusNotFound, pages.NotFound())
}
