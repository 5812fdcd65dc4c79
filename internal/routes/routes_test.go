package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/refactorly/console/internal/app"
	"github.com/refactorly/console/internal/config"
	"github.com/refactorly/console/internal/identity/identitytest"
	"github.com/refactorly/console/internal/model"
)

const csrfToken = "Y3NyZi10b2tlbi1mb3ItdGhlLWNvbnNvbGUtdGVzdHM"

type console struct {
	app     *app.App
	handler http.Handler
	idp     *identitytest.Server
}

func newConsole(t *testing.T) *console {
	t.Helper()

	idp := identitytest.NewServer()
	t.Cleanup(idp.Close)

	cfg := &config.Config{
		AppName:                   "Refactorly",
		AppEnv:                    "development",
		AppURL:                    "http://console.test",
		IdentityURL:               idp.URL,
		IdentityTimeout:           5 * time.Second,
		IdentityBootstrapAttempts: 1,
		StoreDriver:               "memory",
		LogoutMinDuration:         0,
		LoginPath:                 "/login",
		OnboardingPath:            "/app/onboarding",
		DashboardPath:             "/app/dashboard",
	}

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	return &console{app: a, handler: SetupRoutes(a), idp: idp}
}

func (c *console) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (c *console) post(path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", csrfToken)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: csrfToken})

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func expectRedirect(t *testing.T, rec *httptest.ResponseRecorder, to string) {
	t.Helper()
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusSeeOther, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != to {
		t.Fatalf("Location = %q, want %q", got, to)
	}
}

func TestLoadingPageBeforeBootstrap(t *testing.T) {
	c := newConsole(t)

	rec := c.get("/app/dashboard")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/session") {
		t.Fatalf("loading page does not poll the session: %s", rec.Body.String())
	}
}

func TestSessionLifecycle(t *testing.T) {
	c := newConsole(t)
	c.idp.AddUser(model.User{ID: "u1", Email: "ada@example.com"}, "correct horse battery")
	c.app.Bootstrap(t.Context())

	// Anonymous visitors are sent to login with a way back.
	expectRedirect(t, c.get("/app/dashboard"), "/login?return_to=%2Fapp%2Fdashboard")

	// A user who has not onboarded lands on onboarding whatever was asked for.
	expectRedirect(t, c.post("/login", url.Values{
		"email":     {"ada@example.com"},
		"password":  {"correct horse battery"},
		"return_to": {"/app/dashboard"},
	}), "/app/onboarding")

	expectRedirect(t, c.get("/app/dashboard"), "/app/onboarding")
	expectRedirect(t, c.get("/login"), "/app/onboarding")

	expectRedirect(t, c.post("/app/onboarding", url.Values{"organization_name": {"Acme"}}), "/app/dashboard")

	rec := c.get("/app/dashboard")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Acme") {
		t.Fatalf("dashboard missing organization: %s", rec.Body.String())
	}

	expectRedirect(t, c.post("/logout", nil), "/login")
	if n := c.idp.Calls("logout"); n != 1 {
		t.Fatalf("logout calls = %d, want 1", n)
	}

	var state struct {
		Phase      string `json:"phase"`
		LoggingOut bool   `json:"logging_out"`
	}
	rec = c.get("/session")
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if state.Phase != "anonymous" || state.LoggingOut {
		t.Fatalf("session = %+v, want anonymous", state)
	}

	token, err := c.app.Store.SessionToken()
	if err != nil || token != "" {
		t.Fatalf("session token = %q, %v; want cleared", token, err)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	c := newConsole(t)
	c.idp.AddUser(model.User{ID: "u1", Email: "ada@example.com"}, "correct horse battery")
	c.app.Bootstrap(t.Context())

	rec := c.post("/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"wrong"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if c.app.Sessions.State().IsAuthenticated() {
		t.Fatal("failed login authenticated the session")
	}
}

func TestPostWithoutCSRFTokenIsRejected(t *testing.T) {
	c := newConsole(t)
	c.app.Bootstrap(t.Context())

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("email=a%40b.c&password=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestConnectProviderRedirectsToAuthorization(t *testing.T) {
	c := newConsole(t)
	token := c.idp.AddUser(model.User{ID: "u1", Email: "ada@example.com", OnboardingCompleted: true}, "correct horse battery")
	if err := c.app.Store.SetSessionToken(token); err != nil {
		t.Fatal(err)
	}
	c.app.Bootstrap(t.Context())

	rec := c.post("/app/connections/github", nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "https://github.example/authorize?state=connect.") {
		t.Fatalf("Location = %q", loc)
	}

	code, err := c.app.Store.DeviceCode()
	if err != nil || code != "dev-github" {
		t.Fatalf("device code = %q, %v", code, err)
	}
}

func TestProviderLoginReturnsToRequestedPage(t *testing.T) {
	c := newConsole(t)
	c.idp.AddUser(model.User{ID: "u1", Email: "ada@example.com", OnboardingCompleted: true}, "correct horse battery")
	c.app.Bootstrap(t.Context())

	page := c.get("/login?return_to=%2Fapp%2Fdashboard%3Ftab%3Dkeys")
	if !strings.Contains(page.Body.String(), `href="/auth/gitlab?return_to=%2Fapp%2Fdashboard%3Ftab%3Dkeys"`) {
		t.Fatalf("provider link dropped return_to: %s", page.Body.String())
	}

	rec := c.get("/auth/gitlab?return_to=%2Fapp%2Fdashboard%3Ftab%3Dkeys")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
	authorize, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}

	callback := "/auth/gitlab/callback?" + url.Values{
		"code":  {"ada@example.com"},
		"state": {authorize.Query().Get("state")},
	}.Encode()
	expectRedirect(t, c.get(callback), "/app/dashboard?tab=keys")
}

func TestUnknownPathRendersNotFound(t *testing.T) {
	c := newConsole(t)

	rec := c.get("/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
