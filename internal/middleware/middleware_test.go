package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/refactorly/console/internal/ctxkeys"
	"github.com/refactorly/console/internal/guard"
	"github.com/refactorly/console/internal/model"
	"github.com/refactorly/console/internal/session"
)

func ok(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("content"))
}

func serve(st model.SessionState, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req = req.WithContext(ctxkeys.WithSession(req.Context(), st))
	h(rec, req)
	return rec
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	protected := RequireSession(guard.DefaultPaths)(ok)
	incomplete := model.AuthenticatedState(&model.User{ID: "u1"})
	complete := model.AuthenticatedState(&model.User{ID: "u1", OnboardingCompleted: true})

	tests := []struct {
		name     string
		state    model.SessionState
		path     string
		status   int
		location string
		body     string
	}{
		{"loading renders the loading page", model.LoadingState(), "/app/dashboard", http.StatusOK, "", `aria-label="Loading"`},
		{"anonymous goes to login", model.AnonymousState(), "/app/dashboard", http.StatusSeeOther, "/login?return_to=%2Fapp%2Fdashboard", ""},
		{"incomplete goes to onboarding", incomplete, "/app/dashboard", http.StatusSeeOther, "/app/onboarding", ""},
		{"complete sees the page", complete, "/app/dashboard", http.StatusOK, "", "content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(tt.state, protected, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := rec.Header().Get("Location"); got != tt.location {
				t.Fatalf("Location = %q, want %q", got, tt.location)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Fatalf("body = %q, want it to contain %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestRequireSessionHTMXRedirect(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/app/dashboard", nil)
	req.Header.Set("HX-Request", "true")
	rec := serve(model.AnonymousState(), RequireSession(guard.DefaultPaths)(ok), req)

	if got := rec.Header().Get("HX-Redirect"); got != "/login?return_to=%2Fapp%2Fdashboard" {
		t.Fatalf("HX-Redirect = %q", got)
	}
}

func TestRequireGuest(t *testing.T) {
	t.Parallel()

	public := RequireGuest(guard.DefaultPaths)(ok)
	complete := model.AuthenticatedState(&model.User{ID: "u1", OnboardingCompleted: true})

	rec := serve(complete, public, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/app/dashboard" {
		t.Fatalf("authenticated login visit = %d %q, want redirect to dashboard", rec.Code, rec.Header().Get("Location"))
	}

	rec = serve(model.AnonymousState(), public, httptest.NewRequest(http.MethodGet, "/login", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "content" {
		t.Fatalf("anonymous login visit = %d %q, want the page", rec.Code, rec.Body.String())
	}
}

func TestSessionSnapshotsStore(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	store.Resolve(&model.User{ID: "u1"})

	var seen model.SessionState
	h := Session(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ctxkeys.Session(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !seen.IsAuthenticated() || seen.User.ID != "u1" {
		t.Fatalf("context session = %+v, want authenticated u1", seen)
	}
}

func TestCSRFProtection(t *testing.T) {
	t.Parallel()

	h := CSRFProtection(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ctxkeys.CSRFToken(r.Context())))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != csrfCookieName {
		t.Fatalf("cookies = %v, want a csrf cookie", cookies)
	}
	token := cookies[0].Value
	if rec.Body.String() != token {
		t.Fatalf("context token = %q, want the cookie value", rec.Body.String())
	}

	post := func(submitted string) int {
		form := url.Values{"csrf_token": {submitted}}
		req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := post(token); got != http.StatusOK {
		t.Fatalf("matching token status = %d, want 200", got)
	}
	if got := post("forged"); got != http.StatusForbidden {
		t.Fatalf("forged token status = %d, want 403", got)
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := &RateLimiter{requests: make(map[string][]time.Time), limit: 2, window: time.Minute, now: func() time.Time { return now }}

	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatalf("first two requests were limited")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatalf("third request within the window was allowed")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatalf("another client was limited")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Fatalf("request after the window was limited")
	}

	now = now.Add(3 * time.Minute)
	rl.cleanup()
	if len(rl.requests) != 0 {
		t.Fatalf("cleanup kept %d clients, want 0", len(rl.requests))
	}
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:51234"
	if got := getClientIP(req); got != "::1" {
		t.Errorf("remote addr ip = %q, want ::1", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := getClientIP(req); got != "203.0.113.9" {
		t.Errorf("forwarded ip = %q, want 203.0.113.9", got)
	}
}

func TestRequestLoggingSetsRequestID(t *testing.T) {
	t.Parallel()

	var fromCtx string
	h := RequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = ctxkeys.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app/dashboard", nil))

	id := rec.Header().Get("X-Request-ID")
	if id == "" || id != fromCtx {
		t.Fatalf("X-Request-ID = %q, context = %q, want the same non-empty id", id, fromCtx)
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
}
