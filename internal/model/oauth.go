package model

// OAuthMode selects what a provider handshake is for.
type OAuthMode string

const (
	// OAuthModeLogin authenticates with the provider account.
	OAuthModeLogin OAuthMode = "login"
	// OAuthModeConnect links the provider account to the current session's user.
	OAuthModeConnect OAuthMode = "connect"
)

func (m OAuthMode) Valid() bool {
	return m == OAuthModeLogin || m == OAuthModeConnect
}

// Supported third-party providers.
const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
	ProviderGoogle = "google"
)

func ValidProvider(provider string) bool {
	switch provider {
	case ProviderGitHub, ProviderGitLab, ProviderGoogle:
		return true
	}
	return false
}

// Handshake is the local half of an in-flight provider redirect, kept until
// the callback consumes it.
type Handshake struct {
	Verifier string `json:"verifier"`
	// ReturnTo is where a login-mode handshake lands afterwards, if the
	// visitor was sent to login from a protected page.
	ReturnTo string `json:"return_to,omitempty"`
}
