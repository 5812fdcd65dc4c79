// Package verification consumes the one-time token of an email verification
// link and reports the outcome. It never logs the user in.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/refactorly/console/internal/identity"
	"github.com/refactorly/console/internal/model"
)

const (
	FallbackFailure = "We couldn't verify your email. The link may have expired; request a new one."
	FallbackSuccess = "Your email is verified. You can sign in now."
)

type IdentityClient interface {
	VerifyEmail(ctx context.Context, token, deviceCode string) (*identity.VerifyResult, error)
}

type DeviceCodeReader interface {
	DeviceCode() (string, error)
}

// InFlow is the state handed over by the page that sent the user here. It is
// empty when the link was opened from an email client.
type InFlow struct {
	Email      string
	DeviceCode string
}

type Input struct {
	Token  string
	InFlow InFlow
}

type Flow struct {
	identity IdentityClient
	durable  DeviceCodeReader

	// OnChange, when set, observes every outcome the flow moves through.
	OnChange func(model.VerificationOutcome)
}

func New(identityClient IdentityClient, durable DeviceCodeReader) *Flow {
	return &Flow{identity: identityClient, durable: durable}
}

// Run verifies in.Token. Without a token the outcome is Idle and nothing is
// called.
func (f *Flow) Run(ctx context.Context, in Input) model.VerificationOutcome {
	token := strings.TrimSpace(in.Token)
	if token == "" {
		return f.emit(model.VerificationOutcome{Status: model.VerificationIdle})
	}

	f.emit(model.VerificationOutcome{Status: model.VerificationPending})

	deviceCode := f.deviceCode(in.InFlow)
	res, err := f.identity.VerifyEmail(ctx, token, deviceCode)
	if err != nil {
		slog.Warn("email verification failed", "error", err, "email", in.InFlow.Email, "with_device_code", deviceCode != "")
		return f.emit(model.VerificationOutcome{Status: model.VerificationFailed, Message: failureMessage(err)})
	}

	message := res.Message
	if message == "" {
		message = FallbackSuccess
	}
	slog.Info("email verified", "email", in.InFlow.Email, "with_device_code", deviceCode != "")
	return f.emit(model.VerificationOutcome{Status: model.VerificationSucceeded, Message: message})
}

// deviceCode prefers the in-flow value over the durable store. The stored
// code is read, never deleted.
func (f *Flow) deviceCode(in InFlow) string {
	if code := strings.TrimSpace(in.DeviceCode); code != "" {
		return code
	}
	code, err := f.durable.DeviceCode()
	if err != nil {
		slog.Warn("failed to read pending device code", "error", err)
		return ""
	}
	return code
}

func (f *Flow) emit(o model.VerificationOutcome) model.VerificationOutcome {
	if f.OnChange != nil {
		f.OnChange(o)
	}
	return o
}

func failureMessage(err error) string {
	if msg, ok := identity.ServerMessage(err); ok {
		return msg
	}
	if errors.Is(err, context.Canceled) {
		return "Verification was interrupted. Reload the page to try again."
	}
	return FallbackFailure
}
