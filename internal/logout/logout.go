// Package logout tears a session down without ever exposing a half-cleared
// state: the overlay goes up first, navigation happens last.
package logout

import (
	"context"
	"log/slog"
	"time"

	"github.com/refactorly/console/internal/session"
	"golang.org/x/sync/errgroup"
)

const DefaultMinDuration = 600 * time.Millisecond

type IdentityClient interface {
	Logout(ctx context.Context, token string) error
}

type DurableStore interface {
	SessionToken() (string, error)
	ClearSession() error
}

// Navigator is called once the session is Anonymous.
type Navigator func(to string)

type Sequencer struct {
	store       *session.Store
	identity    IdentityClient
	durable     DurableStore
	loginPath   string
	minDuration time.Duration
}

func New(store *session.Store, identityClient IdentityClient, durable DurableStore, loginPath string, minDuration time.Duration) *Sequencer {
	return &Sequencer{
		store:       store,
		identity:    identityClient,
		durable:     durable,
		loginPath:   loginPath,
		minDuration: minDuration,
	}
}

// Run logs out. The network call and the local clearing run alongside the
// minimum overlay duration; a failed network logout is logged and the local
// session is cleared anyway. navigate is called only after the state is
// Anonymous. Without a session Run just navigates.
func (s *Sequencer) Run(ctx context.Context, navigate Navigator) {
	if !s.store.BeginLogout() {
		navigate(s.loginPath)
		return
	}

	var g errgroup.Group
	g.Go(func() error {
		return sleep(ctx, s.minDuration)
	})
	g.Go(func() error {
		s.teardown(ctx)
		return nil
	})
	_ = g.Wait()

	navigate(s.loginPath)
}

func (s *Sequencer) teardown(ctx context.Context) {
	token, err := s.durable.SessionToken()
	if err != nil {
		slog.Warn("failed to read session token for logout", "error", err)
	}

	if token != "" {
		err = s.identity.Logout(context.WithoutCancel(ctx), token)
		if err != nil {
			slog.Warn("identity logout failed, clearing local session anyway", "error", err)
		}
	}

	err = s.durable.ClearSession()
	if err != nil {
		slog.Warn("failed to clear cached session token", "error", err)
	}

	s.store.EndLogout()
	slog.Info("logged out")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
