package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/refactorly/console/internal/clientstore"
	"github.com/refactorly/console/internal/identity"
	"github.com/refactorly/console/internal/model"
	"github.com/refactorly/console/internal/repository"
)

type fakeIdentity struct {
	mu             sync.Mutex
	bootstrapCalls int
	bootstrapUser  *model.User
	bootstrapErr   error
	bootstrapGate  chan struct{} // when set, BootstrapSession blocks until closed
	loginCalls     []identity.LoginRequest
	loginResult    *identity.LoginResult
	loginErr       error
	loginGate      chan struct{} // when set, Login blocks until closed
	signupCalls    []identity.SignupRequest
}

func (f *fakeIdentity) BootstrapSession(ctx context.Context, token string) (*model.User, error) {
	f.mu.Lock()
	f.bootstrapCalls++
	gate, user, err := f.bootstrapGate, f.bootstrapUser.Clone(), f.bootstrapErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return user, err
}

func (f *fakeIdentity) Login(ctx context.Context, in identity.LoginRequest) (*identity.LoginResult, error) {
	f.mu.Lock()
	f.loginCalls = append(f.loginCalls, in)
	gate, res, err := f.loginGate, f.loginResult, f.loginErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return res, err
}

func (f *fakeIdentity) Signup(ctx context.Context, in identity.SignupRequest) (*identity.SignupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signupCalls = append(f.signupCalls, in)
	return &identity.SignupResult{PendingVerification: true}, nil
}

func (f *fakeIdentity) CompleteOnboarding(ctx context.Context, token, organizationName string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == "" {
		return nil, identity.ErrUnauthorized
	}
	return &model.User{ID: "u1", OrganizationName: organizationName, OnboardingCompleted: true}, nil
}

func (f *fakeIdentity) bootstraps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bootstrapCalls
}

// waitForBootstraps blocks until the fake has seen n session checks.
func (f *fakeIdentity) waitForBootstraps(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.bootstraps() < n {
		if time.Now().After(deadline) {
			t.Fatalf("session check %d never started", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func newProvider(fake *fakeIdentity) (*Provider, *clientstore.Store) {
	durable := clientstore.New(repository.NewMemoryEntryRepository())
	return NewProvider(NewStore(), fake, durable), durable
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestBootstrapWithoutCredentialIsAnonymous(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{}
	p, _ := newProvider(fake)

	st := p.Bootstrap(context.Background())
	if !st.IsAnonymous() {
		t.Fatalf("phase = %v, want anonymous", st.Phase)
	}
	if got := fake.bootstraps(); got != 0 {
		t.Fatalf("bootstrap calls = %d, want 0 without a cached credential", got)
	}
}

func TestBootstrapRestoresCachedSession(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{bootstrapUser: &model.User{ID: "u1", OnboardingCompleted: true}}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken("opaque-token")

	st := p.Bootstrap(context.Background())
	if !st.IsAuthenticated() || st.User.ID != "u1" {
		t.Fatalf("state = %+v, want authenticated u1", st)
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{bootstrapUser: &model.User{ID: "u1"}}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken("opaque-token")

	first := p.Bootstrap(context.Background())
	second := p.Bootstrap(context.Background())

	if first.Phase != second.Phase || first.User.ID != second.User.ID {
		t.Fatalf("second bootstrap = %+v, want %+v", second, first)
	}
	if got := fake.bootstraps(); got != 1 {
		t.Fatalf("bootstrap calls = %d, want 1", got)
	}
}

func TestBootstrapConcurrentCallsRunOnce(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{bootstrapUser: &model.User{ID: "u1"}}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken("opaque-token")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Bootstrap(context.Background())
		}()
	}
	wg.Wait()

	if got := fake.bootstraps(); got != 1 {
		t.Fatalf("bootstrap calls = %d, want 1", got)
	}
}

func TestBootstrapRejectedCredentialIsClearedSilently(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken("revoked")

	st := p.Bootstrap(context.Background())
	if !st.IsAnonymous() {
		t.Fatalf("phase = %v, want anonymous", st.Phase)
	}
	if tok, _ := durable.SessionToken(); tok != "" {
		t.Fatalf("cached token = %q, want cleared", tok)
	}
}

func TestBootstrapServiceFailureFallsBackToAnonymous(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{bootstrapErr: errors.New("connection refused")}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken("maybe-valid")

	st := p.Bootstrap(context.Background())
	if !st.IsAnonymous() {
		t.Fatalf("phase = %v, want anonymous", st.Phase)
	}
	if tok, _ := durable.SessionToken(); tok != "maybe-valid" {
		t.Fatalf("cached token = %q, want kept for the next start", tok)
	}
}

func TestBootstrapExpiredJWTSkipsNetwork(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{bootstrapUser: &model.User{ID: "u1"}}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken(signedToken(t, time.Now().Add(-time.Hour)))

	st := p.Bootstrap(context.Background())
	if !st.IsAnonymous() {
		t.Fatalf("phase = %v, want anonymous", st.Phase)
	}
	if got := fake.bootstraps(); got != 0 {
		t.Fatalf("bootstrap calls = %d, want 0 for an expired token", got)
	}
	if tok, _ := durable.SessionToken(); tok != "" {
		t.Fatalf("cached token = %q, want cleared", tok)
	}
}

func TestBootstrapLiveJWTIsValidatedRemotely(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{bootstrapUser: &model.User{ID: "u1"}}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken(signedToken(t, time.Now().Add(time.Hour)))

	st := p.Bootstrap(context.Background())
	if !st.IsAuthenticated() {
		t.Fatalf("phase = %v, want authenticated", st.Phase)
	}
	if got := fake.bootstraps(); got != 1 {
		t.Fatalf("bootstrap calls = %d, want 1", got)
	}
}

func TestLoginCachesTokenAndConsumesLinkedDeviceCode(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{loginResult: &identity.LoginResult{
		User:         &model.User{ID: "u1", Email: "a@b.com"},
		Token:        "tok-1",
		DeviceLinked: true,
	}}
	p, durable := newProvider(fake)
	p.Bootstrap(context.Background())
	_ = durable.SetDeviceCode("dev456")

	user, err := p.Login(context.Background(), "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("user = %q, want u1", user.ID)
	}
	if got := fake.loginCalls[0].DeviceCode; got != "dev456" {
		t.Fatalf("login device code = %q, want dev456", got)
	}
	if tok, _ := durable.SessionToken(); tok != "tok-1" {
		t.Fatalf("cached token = %q, want tok-1", tok)
	}
	if code, _ := durable.DeviceCode(); code != "" {
		t.Fatalf("device code = %q, want consumed", code)
	}
}

func TestLoginKeepsUnconsumedDeviceCode(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{loginResult: &identity.LoginResult{
		User:  &model.User{ID: "u1"},
		Token: "tok-1",
	}}
	p, durable := newProvider(fake)
	p.Bootstrap(context.Background())
	_ = durable.SetDeviceCode("dev456")

	if _, err := p.Login(context.Background(), "a@b.com", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if code, _ := durable.DeviceCode(); code != "dev456" {
		t.Fatalf("device code = %q, want kept", code)
	}
}

func TestLoginFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{loginErr: &identity.Error{Status: 401, Code: identity.CodeInvalidCredentials}}
	p, durable := newProvider(fake)
	p.Bootstrap(context.Background())

	_, err := p.Login(context.Background(), "a@b.com", "bad")
	if !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("Login err = %v, want ErrInvalidCredentials", err)
	}
	if st := p.State(); !st.IsAnonymous() {
		t.Fatalf("phase = %v, want anonymous", st.Phase)
	}
	if tok, _ := durable.SessionToken(); tok != "" {
		t.Fatalf("cached token = %q, want none", tok)
	}
}

func TestStaleLoginAfterLogoutIsDiscarded(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	fake := &fakeIdentity{
		loginGate: gate,
		loginResult: &identity.LoginResult{
			User:  &model.User{ID: "u1"},
			Token: "tok-stale",
		},
	}
	p, durable := newProvider(fake)
	// Authenticated from an earlier tab.
	if err := p.Store().Authenticate(p.Store().Ticket(), &model.User{ID: "u1"}, nil); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	errs := make(chan error, 1)
	go func() {
		_, err := p.Login(context.Background(), "a@b.com", "pw")
		errs <- err
	}()

	// Wait for the login to be in flight, then log out.
	deadline := time.Now().Add(2 * time.Second)
	for {
		fake.mu.Lock()
		started := len(fake.loginCalls) > 0
		fake.mu.Unlock()
		if started {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("login never started")
		}
		time.Sleep(time.Millisecond)
	}
	p.Store().BeginLogout()
	_ = durable.ClearSession()
	p.Store().EndLogout()

	close(gate)
	if err := <-errs; !errors.Is(err, ErrStaleTicket) {
		t.Fatalf("Login err = %v, want ErrStaleTicket", err)
	}
	if st := p.State(); !st.IsAnonymous() {
		t.Fatalf("phase = %v, want anonymous", st.Phase)
	}
	if tok, _ := durable.SessionToken(); tok != "" {
		t.Fatalf("cached token = %q, want none after stale login", tok)
	}
}

func TestSignupForwardsDeviceCodeWithoutLoggingIn(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{}
	p, durable := newProvider(fake)
	p.Bootstrap(context.Background())
	_ = durable.SetDeviceCode("dev456")

	res, err := p.Signup(context.Background(), "Ada", "a@b.com", "pw")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if !res.PendingVerification {
		t.Fatalf("PendingVerification = false, want true")
	}
	if got := fake.signupCalls[0].DeviceCode; got != "dev456" {
		t.Fatalf("signup device code = %q, want dev456", got)
	}
	if st := p.State(); !st.IsAnonymous() {
		t.Fatalf("phase = %v, want anonymous", st.Phase)
	}
}

func TestRefreshReplacesUser(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{bootstrapUser: &model.User{ID: "u1"}}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken("tok")
	p.Bootstrap(context.Background())

	fake.mu.Lock()
	fake.bootstrapUser = &model.User{ID: "u1", OnboardingCompleted: true, Connections: map[string]bool{"github": true}}
	fake.mu.Unlock()

	user, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !user.OnboardingCompleted || !p.State().User.Connected("github") {
		t.Fatalf("state user = %+v, want refreshed record", p.State().User)
	}
}

func TestRefreshRejectedCredentialExpiresSession(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{bootstrapUser: &model.User{ID: "u1"}}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken("tok")
	p.Bootstrap(context.Background())

	fake.mu.Lock()
	fake.bootstrapUser = nil
	fake.mu.Unlock()

	_, err := p.Refresh(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Refresh err = %v, want ErrNotAuthenticated", err)
	}
	if st := p.State(); !st.IsAnonymous() {
		t.Fatalf("phase = %v, want anonymous", st.Phase)
	}
	if tok, _ := durable.SessionToken(); tok != "" {
		t.Fatalf("cached token = %q, want cleared", tok)
	}
}

func TestCompleteOnboardingReplacesUser(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{bootstrapUser: &model.User{ID: "u1"}}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken("tok")
	p.Bootstrap(context.Background())

	if _, err := p.CompleteOnboarding(context.Background(), "Acme"); err != nil {
		t.Fatalf("CompleteOnboarding: %v", err)
	}
	st := p.State()
	if !st.User.OnboardingCompleted || st.User.OrganizationName != "Acme" {
		t.Fatalf("state user = %+v, want onboarded Acme", st.User)
	}
}

func TestCompleteOnboardingRequiresSession(t *testing.T) {
	t.Parallel()

	p, _ := newProvider(&fakeIdentity{})
	p.Bootstrap(context.Background())

	if _, err := p.CompleteOnboarding(context.Background(), "Acme"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("CompleteOnboarding err = %v, want ErrNotAuthenticated", err)
	}
}

func TestBootstrapRejectionKeepsTokenFromConcurrentCallback(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	fake := &fakeIdentity{bootstrapGate: gate}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken("tok-old")

	done := make(chan model.SessionState, 1)
	go func() { done <- p.Bootstrap(context.Background()) }()
	fake.waitForBootstraps(t, 1)

	// A provider callback lands while the old credential is being checked.
	err := p.Establish(p.Store().Ticket(), &identity.LoginResult{
		User:  &model.User{ID: "u2", OnboardingCompleted: true},
		Token: "tok-new",
	})
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}

	close(gate)
	st := <-done

	if !st.IsAuthenticated() || st.User.ID != "u2" {
		t.Fatalf("state = %+v, want authenticated u2", st)
	}
	if tok, _ := durable.SessionToken(); tok != "tok-new" {
		t.Fatalf("cached token = %q, want %q", tok, "tok-new")
	}
}

func TestRefreshRejectionAfterNewLoginKeepsSession(t *testing.T) {
	t.Parallel()

	fake := &fakeIdentity{bootstrapUser: &model.User{ID: "u1"}}
	p, durable := newProvider(fake)
	_ = durable.SetSessionToken("tok-old")
	p.Bootstrap(context.Background())

	gate := make(chan struct{})
	fake.mu.Lock()
	fake.bootstrapUser = nil
	fake.bootstrapGate = gate
	fake.mu.Unlock()

	errs := make(chan error, 1)
	go func() {
		_, err := p.Refresh(context.Background())
		errs <- err
	}()
	fake.waitForBootstraps(t, 2)

	err := p.Establish(p.Store().Ticket(), &identity.LoginResult{
		User:  &model.User{ID: "u2"},
		Token: "tok-new",
	})
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}

	close(gate)
	if err := <-errs; !errors.Is(err, ErrStaleTicket) {
		t.Fatalf("Refresh err = %v, want ErrStaleTicket", err)
	}
	if st := p.State(); !st.IsAuthenticated() || st.User.ID != "u2" {
		t.Fatalf("state = %+v, want authenticated u2", st)
	}
	if tok, _ := durable.SessionToken(); tok != "tok-new" {
		t.Fatalf("cached token = %q, want %q", tok, "tok-new")
	}
}
