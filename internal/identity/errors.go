package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the identity service in the JSON error body.
const (
	CodeInvalidCredentials    = "invalid_credentials"
	CodeAccountNotVerified    = "account_not_verified"
	CodeInvalidOrExpiredToken = "invalid_or_expired_token"
	CodeProviderUnavailable   = "provider_unavailable"
	CodeUnauthorized          = "unauthorized"
)

var (
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountNotVerified    = errors.New("account not verified")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired verification link")
	ErrProviderUnavailable   = errors.New("provider unavailable")
	ErrUnauthorized          = errors.New("session is not valid")
)

var codeSentinels = map[string]error{
	CodeInvalidCredentials:    ErrInvalidCredentials,
	CodeAccountNotVerified:    ErrAccountNotVerified,
	CodeInvalidOrExpiredToken: ErrInvalidOrExpiredToken,
	CodeProviderUnavailable:   ErrProviderUnavailable,
	CodeUnauthorized:          ErrUnauthorized,
}

// Error is a non-2xx answer from the identity service. Message is the
// server-provided, user-presentable text and may be empty.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return fmt.Sprintf("identity service: %s (status %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("identity service: status %d", e.Status)
}

// Is lets callers match service errors against the package sentinels.
func (e *Error) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

func (e *Error) temporary() bool {
	return e.Status >= http.StatusInternalServerError
}

// ServerMessage returns the server-provided message carried by err, if any.
func ServerMessage(err error) (string, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

// withDefaultCode fills in a code for service errors that arrived without
// one, keyed by the HTTP status the operation documents for that failure.
func withDefaultCode(err error, defaults map[int]string) error {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Code == "" {
		if code, ok := defaults[apiErr.Status]; ok {
			apiErr.Code = code
		}
	}
	return err
}
