// Package identitytest provides an in-memory identity service speaking the
// console's wire contract, for tests.
package identitytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/refactorly/console/internal/model"
)

type account struct {
	password string
	verified bool
	user     model.User
}

// Server is a fake identity service. Zero or more accounts are seeded with
// AddUser; tokens are issued as "tok-<user id>-<n>".
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	accounts       map[string]*account // by email
	sessions       map[string]string   // token -> email
	verifyTokens   map[string]string   // verification token -> email
	issued         int
	linkedDevices  []string
	calls          map[string]int
	sessionStatus  int // forced status for GET /v1/session when non-zero
	providerDown   bool
	logoutStatus   int
	pendingDevices map[string]bool
}

func NewServer() *Server {
	s := &Server{
		accounts:       make(map[string]*account),
		sessions:       make(map[string]string),
		verifyTokens:   make(map[string]string),
		calls:          make(map[string]int),
		pendingDevices: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/session", s.session)
	mux.HandleFunc("POST /v1/login", s.login)
	mux.HandleFunc("POST /v1/signup", s.signup)
	mux.HandleFunc("POST /v1/verify-email", s.verifyEmail)
	mux.HandleFunc("POST /v1/oauth/{provider}/start", s.oauthStart)
	mux.HandleFunc("POST /v1/oauth/{provider}/complete", s.oauthComplete)
	mux.HandleFunc("POST /v1/onboarding", s.onboarding)
	mux.HandleFunc("POST /v1/logout", s.logout)

	s.Server = httptest.NewServer(mux)
	return s
}

// AddUser seeds a verified account and returns a session token for it.
func (s *Server) AddUser(user model.User, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[user.Email] = &account{password: password, verified: true, user: user}
	return s.issueLocked(user.Email)
}

// SetUser replaces the stored record of an existing account.
func (s *Server) SetUser(user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := s.accounts[user.Email]; ok {
		acc.user = user
	}
}

// AddVerificationToken makes token verify email.
func (s *Server) AddVerificationToken(token, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyTokens[token] = email
}

func (s *Server) SetSessionStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionStatus = status
}

func (s *Server) SetProviderDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providerDown = down
}

func (s *Server) SetLogoutStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutStatus = status
}

// Calls returns how many times the endpoint named by op was hit.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// LinkedDevices lists device codes consumed by logins, in order.
func (s *Server) LinkedDevices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.linkedDevices...)
}

// ValidToken reports whether token is a live session.
func (s *Server) ValidToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[token]
	return ok
}

func (s *Server) issueLocked(email string) string {
	s.issued++
	token := fmt.Sprintf("tok-%s-%d", s.accounts[email].user.ID, s.issued)
	s.sessions[token] = email
	return token
}

func (s *Server) count(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	s.count("session")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionStatus != 0 {
		writeError(w, s.sessionStatus, "", "forced failure")
		return
	}

	email, ok := s.sessions[bearer(r)]
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "session expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": s.accounts[email].user})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.count("login")

	var in struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		DeviceCode string `json:"device_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[in.Email]
	if !ok || acc.password != in.Password {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}
	if !acc.verified {
		writeError(w, http.StatusForbidden, "account_not_verified", "Please verify your email first")
		return
	}

	linked := false
	if in.DeviceCode != "" {
		s.linkedDevices = append(s.linkedDevices, in.DeviceCode)
		linked = true
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":          acc.user,
		"token":         s.issueLocked(in.Email),
		"device_linked": linked,
	})
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	s.count("signup")

	var in struct {
		Name       string `json:"name"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		DeviceCode string `json:"device_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[in.Email]; exists {
		writeError(w, http.StatusConflict, "email_taken", "An account with this email already exists")
		return
	}
	s.accounts[in.Email] = &account{
		password: in.Password,
		user:     model.User{ID: fmt.Sprintf("u%d", len(s.accounts)+1), Email: in.Email},
	}
	if in.DeviceCode != "" {
		s.pendingDevices[in.DeviceCode] = true
	}
	writeJSON(w, http.StatusCreated, map[string]any{"pending_verification": true})
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	s.count("verify_email")

	var in struct {
		Token      string `json:"token"`
		DeviceCode string `json:"device_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.verifyTokens[in.Token]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_or_expired_token", "This verification link has expired")
		return
	}
	delete(s.verifyTokens, in.Token)
	if acc, ok := s.accounts[email]; ok {
		acc.verified = true
	}

	message := "Email verified. You can now sign in."
	if in.DeviceCode != "" {
		message = "Email verified. Sign in to finish connecting your device."
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

func (s *Server) oauthStart(w http.ResponseWriter, r *http.Request) {
	s.count("oauth_start")

	var in struct {
		Mode          string `json:"mode"`
		RedirectURI   string `json:"redirect_uri"`
		CodeChallenge string `json:"code_challenge"`
		State         string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.providerDown {
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable", "GitHub is not reachable right now")
		return
	}
	if in.Mode == string(model.OAuthModeConnect) {
		if _, ok := s.sessions[bearer(r)]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "sign in first")
			return
		}
	}

	provider := r.PathValue("provider")
	writeJSON(w, http.StatusOK, map[string]string{
		"authorization_url": fmt.Sprintf("https://%s.example/authorize?state=%s&redirect_uri=%s", provider, in.State, in.RedirectURI),
		"device_code":       "dev-" + provider,
	})
}

func (s *Server) oauthComplete(w http.ResponseWriter, r *http.Request) {
	s.count("oauth_complete")

	var in struct {
		Mode         string `json:"mode"`
		Code         string `json:"code"`
		CodeVerifier string `json:"code_verifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.Code == "" || in.CodeVerifier == "" {
		writeError(w, http.StatusBadRequest, "invalid_grant", "Authorization failed")
		return
	}

	provider := r.PathValue("provider")
	email, ok := s.sessions[bearer(r)]
	if !ok {
		// Login mode: the provider code identifies the account by email.
		email = in.Code
	}
	acc, ok := s.accounts[email]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_account", "No account for this provider login")
		return
	}
	if acc.user.Connections == nil {
		acc.user.Connections = make(map[string]bool)
	}
	acc.user.Connections[provider] = true

	out := map[string]any{"user": acc.user}
	if in.Mode == string(model.OAuthModeLogin) {
		out["token"] = s.issueLocked(email)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) onboarding(w http.ResponseWriter, r *http.Request) {
	s.count("onboarding")

	var in struct {
		OrganizationName string `json:"organization_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.sessions[bearer(r)]
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "session expired")
		return
	}
	acc := s.accounts[email]
	acc.user.OrganizationName = in.OrganizationName
	acc.user.OnboardingCompleted = true
	writeJSON(w, http.StatusOK, map[string]any{"user": acc.user})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.count("logout")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.logoutStatus != 0 {
		writeError(w, s.logoutStatus, "", "logout failed")
		return
	}
	delete(s.sessions, bearer(r))
	w.WriteHeader(http.StatusNoContent)
}
