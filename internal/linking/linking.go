// Package linking runs the local half of the provider redirect handshake used
// both to log in with a third-party account and to connect one to the current
// user.
package linking

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/refactorly/console/internal/identity"
	"github.com/refactorly/console/internal/model"
	"github.com/refactorly/console/internal/session"
	"golang.org/x/oauth2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrInvalidMode     = errors.New("invalid oauth mode")
	ErrNoSession       = errors.New("connecting an account requires a session")
	ErrInvalidState    = errors.New("oauth state is unknown or already used")
	ErrDenied          = errors.New("provider authorization was denied")
)

// Navigator sends the user's browser to another location.
type Navigator interface {
	Navigate(url string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(url string)

func (f NavigatorFunc) Navigate(url string) { f(url) }

type IdentityClient interface {
	InitiateOAuth(ctx context.Context, token, provider string, mode model.OAuthMode, opts identity.OAuthOptions) (*identity.OAuthStart, error)
	CompleteOAuth(ctx context.Context, token string, in identity.OAuthCompletion) (*identity.LoginResult, error)
}

type DurableStore interface {
	SessionToken() (string, error)
	SetDeviceCode(code string) error
	SaveHandshake(state string, h model.Handshake) error
	TakeHandshake(state string) (model.Handshake, bool, error)
}

// SessionProvider is the part of the session provider the flow writes
// through.
type SessionProvider interface {
	Store() *session.Store
	Establish(ticket session.Ticket, res *identity.LoginResult) error
	Replace(ticket session.Ticket, user *model.User) error
}

type Options struct {
	RedirectURI string
	// ReturnTo is kept with a login-mode handshake and handed back by
	// Complete. Connect mode ignores it.
	ReturnTo string
}

// Callback carries the query parameters of the provider redirect back.
type Callback struct {
	Provider string
	Code     string
	State    string
	Error    string
}

// Completion reports what a finished handshake was for.
type Completion struct {
	Mode     model.OAuthMode
	ReturnTo string
}

// Flow initiates and completes provider handshakes.
type Flow struct {
	identity IdentityClient
	durable  DurableStore
	sessions SessionProvider
}

func New(identityClient IdentityClient, durable DurableStore, sessions SessionProvider) *Flow {
	return &Flow{identity: identityClient, durable: durable, sessions: sessions}
}

// Initiate asks the identity service for the provider consent URL and
// navigates there. On any failure it returns the error without navigating
// and without touching the session.
func (f *Flow) Initiate(ctx context.Context, nav Navigator, provider string, mode model.OAuthMode, opts Options) error {
	if !model.ValidProvider(provider) {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	token, err := f.durable.SessionToken()
	if err != nil {
		return fmt.Errorf("failed to read session token: %w", err)
	}
	if mode == model.OAuthModeConnect {
		st := f.sessions.Store().State()
		if token == "" || !st.IsAuthenticated() || st.LoggingOut {
			return ErrNoSession
		}
	}
	handshake := model.Handshake{Verifier: oauth2.GenerateVerifier()}
	if mode == model.OAuthModeLogin {
		token = ""
		handshake.ReturnTo = opts.ReturnTo
	}

	state, err := newState(mode)
	if err != nil {
		return err
	}
	start, err := f.identity.InitiateOAuth(ctx, token, provider, mode, identity.OAuthOptions{
		RedirectURI:   opts.RedirectURI,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(handshake.Verifier),
		State:         state,
	})
	if err != nil {
		return fmt.Errorf("failed to start %s authorization: %w", DisplayName(provider), err)
	}

	err = f.durable.SaveHandshake(state, handshake)
	if err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	if start.DeviceCode != "" {
		err = f.durable.SetDeviceCode(start.DeviceCode)
		if err != nil {
			return fmt.Errorf("failed to save device code: %w", err)
		}
	}

	slog.Info("oauth handshake started", "provider", provider, "mode", mode)
	nav.Navigate(start.AuthorizationURL)
	return nil
}

// Remember stores a device code handed to the console by another client,
// e.g. a CLI that started the linkage. The code is stored verbatim; blank
// codes are ignored.
func (f *Flow) Remember(deviceCode string) error {
	if strings.TrimSpace(deviceCode) == "" {
		return nil
	}
	err := f.durable.SetDeviceCode(deviceCode)
	if err != nil {
		return err
	}
	slog.Info("pending device code remembered")
	return nil
}

// Complete consumes the handshake state of a provider redirect and hands the
// code to the identity service. Login mode establishes a session; connect
// mode replaces the current user with the refreshed record.
func (f *Flow) Complete(ctx context.Context, cb Callback) (Completion, error) {
	ticket := f.sessions.Store().Ticket()

	handshake, ok, err := f.durable.TakeHandshake(cb.State)
	if err != nil {
		return Completion{}, err
	}
	if !ok {
		return Completion{}, ErrInvalidState
	}
	mode := modeOf(cb.State)
	done := Completion{Mode: mode}
	if mode == model.OAuthModeLogin {
		done.ReturnTo = handshake.ReturnTo
	}

	if cb.Error != "" {
		slog.Warn("provider denied authorization", "provider", cb.Provider, "error", cb.Error)
		return done, ErrDenied
	}
	if !model.ValidProvider(cb.Provider) {
		return done, fmt.Errorf("%w: %q", ErrUnknownProvider, cb.Provider)
	}

	token := ""
	if mode == model.OAuthModeConnect {
		token, err = f.durable.SessionToken()
		if err != nil {
			return done, fmt.Errorf("failed to read session token: %w", err)
		}
	}

	res, err := f.identity.CompleteOAuth(ctx, token, identity.OAuthCompletion{
		Provider:     cb.Provider,
		Mode:         mode,
		Code:         cb.Code,
		State:        cb.State,
		CodeVerifier: handshake.Verifier,
	})
	if err != nil {
		return done, fmt.Errorf("failed to complete %s authorization: %w", DisplayName(cb.Provider), err)
	}

	if mode == model.OAuthModeLogin {
		err = f.sessions.Establish(ticket, res)
	} else {
		err = f.sessions.Replace(ticket, res.User)
	}
	if err != nil {
		return done, err
	}

	slog.Info("oauth handshake completed", "provider", cb.Provider, "mode", mode, "user_id", res.User.ID)
	return done, nil
}

// DisplayName is the provider name as shown to users.
func DisplayName(provider string) string {
	switch provider {
	case model.ProviderGitHub:
		return "GitHub"
	case model.ProviderGitLab:
		return "GitLab"
	}
	return cases.Title(language.English).String(provider)
}

// newState is a random handshake state prefixed with its mode so the
// callback can tell login from connect.
func newState(mode model.OAuthMode) (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return string(mode) + "." + base64.RawURLEncoding.EncodeToString(b), nil
}

func modeOf(state string) model.OAuthMode {
	mode, _, _ := strings.Cut(state, ".")
	if model.OAuthMode(mode) == model.OAuthModeConnect {
		return model.OAuthModeConnect
	}
	return model.OAuthModeLogin
}
