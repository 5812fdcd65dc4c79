package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/refactorly/console/internal/model"
)

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceCode string `json:"device_code,omitempty"`
}

// LoginResult is the outcome of any operation that establishes a session.
// DeviceLinked reports that the device code sent with the request was consumed.
type LoginResult struct {
	User         *model.User `json:"user"`
	Token        string      `json:"token"`
	DeviceLinked bool        `json:"device_linked"`
}

type SignupRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceCode string `json:"device_code,omitempty"`
}

type SignupResult struct {
	PendingVerification bool `json:"pending_verification"`
}

type VerifyResult struct {
	Message string `json:"message"`
}

type OAuthOptions struct {
	RedirectURI   string
	CodeChallenge string
	State         string
}

type OAuthStart struct {
	AuthorizationURL string `json:"authorization_url"`
	DeviceCode       string `json:"device_code,omitempty"`
}

type OAuthCompletion struct {
	Provider     string
	Mode         model.OAuthMode
	Code         string
	State        string
	CodeVerifier string
}

// BootstrapSession validates a cached credential. A credential the service
// rejects yields (nil, nil); only failures to get an answer are errors.
func (c *Client) BootstrapSession(ctx context.Context, token string) (*model.User, error) {
	var out struct {
		User *model.User `json:"user"`
	}

	err := c.retry(ctx, "bootstrap", func() error {
		return c.call(ctx, "bootstrap", http.MethodGet, "/v1/session", token, nil, &out)
	})
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, nil
		}
		return nil, err
	}

	return out.User, nil
}

func (c *Client) Login(ctx context.Context, in LoginRequest) (*LoginResult, error) {
	var out LoginResult
	err := c.call(ctx, "login", http.MethodPost, "/v1/login", "", in, &out)
	if err != nil {
		return nil, withDefaultCode(err, map[int]string{
			http.StatusUnauthorized: CodeInvalidCredentials,
			http.StatusForbidden:    CodeAccountNotVerified,
		})
	}
	if out.User == nil || out.Token == "" {
		return nil, fmt.Errorf("login response missing user or token")
	}
	return &out, nil
}

func (c *Client) Signup(ctx context.Context, in SignupRequest) (*SignupResult, error) {
	var out SignupResult
	err := c.call(ctx, "signup", http.MethodPost, "/v1/signup", "", in, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyEmail(ctx context.Context, token, deviceCode string) (*VerifyResult, error) {
	in := struct {
		Token      string `json:"token"`
		DeviceCode string `json:"device_code,omitempty"`
	}{Token: token, DeviceCode: deviceCode}

	var out VerifyResult
	err := c.call(ctx, "verify_email", http.MethodPost, "/v1/verify-email", "", in, &out)
	if err != nil {
		return nil, withDefaultCode(err, map[int]string{
			http.StatusBadRequest: CodeInvalidOrExpiredToken,
			http.StatusNotFound:   CodeInvalidOrExpiredToken,
			http.StatusGone:       CodeInvalidOrExpiredToken,
		})
	}
	return &out, nil
}

// InitiateOAuth asks the service for the provider consent URL. Connect mode
// requires the session token of the user the account is linked to.
func (c *Client) InitiateOAuth(ctx context.Context, token, provider string, mode model.OAuthMode, opts OAuthOptions) (*OAuthStart, error) {
	in := struct {
		Mode                model.OAuthMode `json:"mode"`
		RedirectURI         string          `json:"redirect_uri"`
		CodeChallenge       string          `json:"code_challenge,omitempty"`
		CodeChallengeMethod string          `json:"code_challenge_method,omitempty"`
		State               string          `json:"state,omitempty"`
	}{
		Mode:          mode,
		RedirectURI:   opts.RedirectURI,
		CodeChallenge: opts.CodeChallenge,
		State:         opts.State,
	}
	if opts.CodeChallenge != "" {
		in.CodeChallengeMethod = "S256"
	}

	var out OAuthStart
	path := "/v1/oauth/" + url.PathEscape(provider) + "/start"
	err := c.call(ctx, "oauth_start", http.MethodPost, path, token, in, &out)
	if err != nil {
		return nil, withDefaultCode(err, map[int]string{
			http.StatusBadGateway:         CodeProviderUnavailable,
			http.StatusServiceUnavailable: CodeProviderUnavailable,
			http.StatusNotFound:           CodeProviderUnavailable,
		})
	}
	if out.AuthorizationURL == "" {
		return nil, fmt.Errorf("oauth start response missing authorization url: %w", ErrProviderUnavailable)
	}
	return &out, nil
}

// CompleteOAuth exchanges the provider callback for a session (login mode)
// or a refreshed user record (connect mode).
func (c *Client) CompleteOAuth(ctx context.Context, token string, in OAuthCompletion) (*LoginResult, error) {
	body := struct {
		Mode         model.OAuthMode `json:"mode"`
		Code         string          `json:"code"`
		State        string          `json:"state"`
		CodeVerifier string          `json:"code_verifier,omitempty"`
	}{Mode: in.Mode, Code: in.Code, State: in.State, CodeVerifier: in.CodeVerifier}

	var out LoginResult
	path := "/v1/oauth/" + url.PathEscape(in.Provider) + "/complete"
	err := c.call(ctx, "oauth_complete", http.MethodPost, path, token, body, &out)
	if err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("oauth completion response missing user")
	}
	return &out, nil
}

// CompleteOnboarding records the onboarding answers and returns the updated
// user record.
func (c *Client) CompleteOnboarding(ctx context.Context, token, organizationName string) (*model.User, error) {
	in := struct {
		OrganizationName string `json:"organization_name"`
	}{OrganizationName: organizationName}

	var out struct {
		User *model.User `json:"user"`
	}
	err := c.call(ctx, "onboarding", http.MethodPost, "/v1/onboarding", token, in, &out)
	if err != nil {
		return nil, withDefaultCode(err, map[int]string{http.StatusUnauthorized: CodeUnauthorized})
	}
	if out.User == nil {
		return nil, fmt.Errorf("onboarding response missing user")
	}
	return out.User, nil
}

// Logout is best-effort; callers clear local state regardless of the result.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.call(ctx, "logout", http.MethodPost, "/v1/logout", token, nil, nil)
}
