package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/refactorly/console/internal/identity"
	"github.com/refactorly/console/internal/model"
)

// IdentityClient is the part of the identity service the provider drives.
type IdentityClient interface {
	BootstrapSession(ctx context.Context, token string) (*model.User, error)
	Login(ctx context.Context, in identity.LoginRequest) (*identity.LoginResult, error)
	Signup(ctx context.Context, in identity.SignupRequest) (*identity.SignupResult, error)
	CompleteOnboarding(ctx context.Context, token, organizationName string) (*model.User, error)
}

// DurableStore holds the cached session credential and the pending device code.
type DurableStore interface {
	SessionToken() (string, error)
	SetSessionToken(token string) error
	ClearSessionIf(token string) error
	DeviceCode() (string, error)
	ClearDeviceCode() error
}

// Provider composes the identity client and the durable store into the
// session store. It is the only writer of session state.
type Provider struct {
	store    *Store
	identity IdentityClient
	durable  DurableStore
	started  atomic.Bool
	now      func() time.Time
}

func NewProvider(store *Store, identityClient IdentityClient, durable DurableStore) *Provider {
	return &Provider{
		store:    store,
		identity: identityClient,
		durable:  durable,
		now:      time.Now,
	}
}

func (p *Provider) Store() *Store {
	return p.store
}

// State is shorthand for Store().State().
func (p *Provider) State() model.SessionState {
	return p.store.State()
}

// Bootstrap resolves the initial session exactly once per process; later
// and concurrent calls return the current state without doing anything.
// Every path out of it leaves Loading.
func (p *Provider) Bootstrap(ctx context.Context) model.SessionState {
	if !p.started.CompareAndSwap(false, true) {
		return p.store.State()
	}

	user := p.restore(ctx)
	p.store.Resolve(user)

	if user != nil {
		slog.Info("session restored", "user_id", user.ID)
	} else {
		slog.Debug("no session to restore")
	}
	return p.store.State()
}

// restore validates the cached credential. Failures resolve to no user.
func (p *Provider) restore(ctx context.Context) *model.User {
	token, err := p.durable.SessionToken()
	if err != nil {
		slog.Warn("failed to read cached session token", "error", err)
		return nil
	}
	if token == "" {
		return nil
	}

	if expiredLocally(token, p.now()) {
		slog.Info("cached session token expired, discarding")
		p.clearToken(token)
		return nil
	}

	user, err := p.identity.BootstrapSession(ctx, token)
	if err != nil {
		// The service did not answer; keep the credential for the next start.
		slog.Warn("session bootstrap failed, continuing anonymous", "error", err)
		return nil
	}
	if user == nil {
		slog.Info("cached session token rejected, discarding")
		p.clearToken(token)
		return nil
	}

	return user
}

// expiredLocally reports whether token is a JWT whose exp claim has passed.
// The signature is not checked: the console holds no key, and an accepted
// token is still validated by the identity service. Opaque tokens are never
// considered expired here.
func expiredLocally(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

// clearToken forgets a rejected credential. A login or provider callback
// that finished meanwhile has already written its own token, which stays.
func (p *Provider) clearToken(token string) {
	err := p.durable.ClearSessionIf(token)
	if err != nil {
		slog.Warn("failed to clear cached session token", "error", err)
	}
}

// Login authenticates with a password. The pending device code, if any, is
// sent along so the service can complete the linkage, and is deleted once the
// service reports it consumed. Errors leave the session unchanged.
func (p *Provider) Login(ctx context.Context, email, password string) (*model.User, error) {
	ticket := p.store.Ticket()

	deviceCode, err := p.durable.DeviceCode()
	if err != nil {
		slog.Warn("failed to read pending device code", "error", err)
		deviceCode = ""
	}

	res, err := p.identity.Login(ctx, identity.LoginRequest{
		Email:      email,
		Password:   password,
		DeviceCode: deviceCode,
	})
	if err != nil {
		return nil, err
	}

	err = p.Establish(ticket, res)
	if err != nil {
		return nil, err
	}

	if deviceCode != "" && res.DeviceLinked {
		err = p.durable.ClearDeviceCode()
		if err != nil {
			slog.Warn("failed to clear consumed device code", "error", err)
		} else {
			slog.Info("device linked on login", "user_id", res.User.ID)
		}
	}

	return res.User, nil
}

// Establish applies a session issued by the identity service: caches the
// credential and authenticates, unless the session moved on since ticket.
func (p *Provider) Establish(ticket Ticket, res *identity.LoginResult) error {
	if res == nil || res.User == nil || res.Token == "" {
		return errors.New("identity result carries no session")
	}

	err := p.store.Authenticate(ticket, res.User, func() error {
		return p.durable.SetSessionToken(res.Token)
	})
	if errors.Is(err, ErrStaleTicket) {
		slog.Info("discarding stale session response", "user_id", res.User.ID)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to establish session: %w", err)
	}

	slog.Info("session established", "user_id", res.User.ID)
	return nil
}

// Signup registers an account. It never changes the session: the account
// must be verified by email before it can log in.
func (p *Provider) Signup(ctx context.Context, name, email, password string) (*identity.SignupResult, error) {
	deviceCode, err := p.durable.DeviceCode()
	if err != nil {
		slog.Warn("failed to read pending device code", "error", err)
		deviceCode = ""
	}

	res, err := p.identity.Signup(ctx, identity.SignupRequest{
		Name:       name,
		Email:      email,
		Password:   password,
		DeviceCode: deviceCode,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("signup submitted", "email", email, "pending_verification", res.PendingVerification)
	return res, nil
}

// Refresh re-reads the current user, e.g. after onboarding or a provider
// callback changed it server-side. A credential the service no longer honours
// drops the session to Anonymous.
func (p *Provider) Refresh(ctx context.Context) (*model.User, error) {
	ticket := p.store.Ticket()
	if !p.store.State().IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	token, err := p.durable.SessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to read session token: %w", err)
	}

	user, err := p.identity.BootstrapSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	if user == nil {
		if !p.store.Expire(ticket) {
			return nil, ErrStaleTicket
		}
		p.clearToken(token)
		return nil, ErrNotAuthenticated
	}

	err = p.store.Replace(ticket, user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CompleteOnboarding submits the onboarding answers and swaps in the
// returned user, which moves the guard off the onboarding page.
func (p *Provider) CompleteOnboarding(ctx context.Context, organizationName string) (*model.User, error) {
	ticket := p.store.Ticket()
	if !p.store.State().IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	token, err := p.durable.SessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to read session token: %w", err)
	}

	user, err := p.identity.CompleteOnboarding(ctx, token, organizationName)
	if err != nil {
		return nil, err
	}

	err = p.store.Replace(ticket, user)
	if err != nil {
		return nil, err
	}
	slog.Info("onboarding completed", "user_id", user.ID)
	return user, nil
}

// Replace swaps in a user record returned by another flow.
func (p *Provider) Replace(ticket Ticket, user *model.User) error {
	return p.store.Replace(ticket, user)
}
