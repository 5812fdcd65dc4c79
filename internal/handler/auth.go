package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/refactorly/console/internal/guard"
	"github.com/refactorly/console/internal/identity"
	"github.com/refactorly/console/internal/linking"
	"github.com/refactorly/console/internal/session"
	"github.com/refactorly/console/internal/ui"
	"github.com/refactorly/console/internal/ui/pages"
	"github.com/refactorly/console/internal/validation"
)

const genericError = "Something went wrong. Please try again."

type AuthHandler struct {
	sessions *session.Provider
	linking  *linking.Flow
	paths    guard.Paths
}

func NewAuthHandler(sessions *session.Provider, linkingFlow *linking.Flow, paths guard.Paths) *AuthHandler {
	return &AuthHandler{sessions: sessions, linking: linkingFlow, paths: paths}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	form := pages.LoginForm{
		ReturnTo:  r.URL.Query().Get("return_to"),
		Providers: providerList(),
	}
	if h.rememberDeviceCode(r) {
		form.Notice = "Sign in to finish connecting your device."
	}
	ui.Render(w, r, pages.Login(form))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	form := pages.LoginForm{Email: email, ReturnTo: r.FormValue("return_to"), Providers: providerList()}

	if email == "" || password == "" {
		form.Error = "Email and password are required"
		ui.RenderStatus(w, r, http.StatusUnprocessableEntity, pages.Login(form))
		return
	}
	err := validation.ValidateEmail(email)
	if err != nil {
		form.Error = "Please provide a valid email address"
		ui.RenderStatus(w, r, http.StatusUnprocessableEntity, pages.Login(form))
		return
	}

	user, err := h.sessions.Login(r.Context(), email, password)
	switch {
	case errors.Is(err, session.ErrStaleTicket):
		// Another tab changed the session while this login was in flight.
		ui.Redirect(w, r, h.paths.Login)
		return
	case errors.Is(err, identity.ErrInvalidCredentials):
		slog.Warn("password login failed", "email", email)
		form.Error = messageOr(err, "Invalid email or password")
		ui.RenderStatus(w, r, http.StatusUnauthorized, pages.Login(form))
		return
	case errors.Is(err, identity.ErrAccountNotVerified):
		form.Error = messageOr(err, "Please verify your email before signing in")
		ui.RenderStatus(w, r, http.StatusForbidden, pages.Login(form))
		return
	case err != nil:
		slog.Error("login failed", "error", err, "email", email)
		form.Error = genericError
		ui.RenderStatus(w, r, http.StatusBadGateway, pages.Login(form))
		return
	}

	ui.Redirect(w, r, guard.ReturnTarget(form.ReturnTo, user, h.paths))
}

func (h *AuthHandler) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.rememberDeviceCode(r)
	ui.Render(w, r, pages.Signup(pages.SignupForm{}))
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	form := pages.SignupForm{
		Name:  strings.TrimSpace(r.FormValue("name")),
		Email: strings.TrimSpace(r.FormValue("email")),
	}
	password := r.FormValue("password")

	err := validation.ValidateName("name", form.Name)
	if err == nil {
		err = validation.ValidateEmail(form.Email)
	}
	if err == nil {
		err = validation.ValidatePassword(password)
	}
	if err != nil {
		form.Error = capitalize(err.Error())
		ui.RenderStatus(w, r, http.StatusUnprocessableEntity, pages.Signup(form))
		return
	}

	_, err = h.sessions.Signup(r.Context(), form.Name, form.Email, password)
	if err != nil {
		slog.Warn("signup failed", "error", err, "email", form.Email)
		form.Error = messageOr(err, genericError)
		ui.RenderStatus(w, r, http.StatusBadRequest, pages.Signup(form))
		return
	}

	ui.Redirect(w, r, "/verify-email?"+url.Values{"email": {form.Email}}.Encode())
}

// rememberDeviceCode stores a device code handed over in the query string,
// e.g. by the CLI opening the browser. It reports whether one was present.
func (h *AuthHandler) rememberDeviceCode(r *http.Request) bool {
	code := r.URL.Query().Get("device_code")
	if strings.TrimSpace(code) == "" {
		return false
	}
	err := h.linking.Remember(code)
	if err != nil {
		slog.Warn("failed to remember device code", "error", err)
		return false
	}
	return true
}

func messageOr(err error, fallback string) string {
	if msg, ok := identity.ServerMessage(err); ok {
		return msg
	}
	return fallback
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
