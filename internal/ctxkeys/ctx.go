package ctxkeys

import (
	"context"

	"github.com/refactorly/console/internal/config"
	"github.com/refactorly/console/internal/model"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	SessionKey   contextKey = "session"
	ConfigKey    contextKey = "config"
	CSRFTokenKey contextKey = "csrf_token"
	RequestIDKey contextKey = "request_id"
)

// Session is the session snapshot the request was routed with.
func Session(ctx context.Context) model.SessionState {
	st, ok := ctx.Value(SessionKey).(model.SessionState)
	if !ok {
		return model.LoadingState()
	}
	return st
}

func WithSession(ctx context.Context, st model.SessionState) context.Context {
	return context.WithValue(ctx, SessionKey, st)
}

// User is the authenticated user of the request, nil otherwise.
func User(ctx context.Context) *model.User {
	st := Session(ctx)
	if !st.IsAuthenticated() {
		return nil
	}
	return st.User
}

func Config(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(ConfigKey).(*config.Config)
	return cfg
}

func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, ConfigKey, cfg)
}

func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(CSRFTokenKey).(string)
	return token
}

func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, CSRFTokenKey, token)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
