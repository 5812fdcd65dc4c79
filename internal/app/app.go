package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/refactorly/console/internal/clientstore"
	"github.com/refactorly/console/internal/config"
	"github.com/refactorly/console/internal/db"
	"github.com/refactorly/console/internal/guard"
	"github.com/refactorly/console/internal/identity"
	"github.com/refactorly/console/internal/linking"
	"github.com/refactorly/console/internal/logout"
	"github.com/refactorly/console/internal/repository"
	"github.com/refactorly/console/internal/session"
	"github.com/refactorly/console/internal/verification"
)

type App struct {
	Cfg *config.Config
	// DB is nil when the client store runs on the memory driver.
	DB           *sqlx.DB
	Store        *clientstore.Store
	Identity     *identity.Client
	Sessions     *session.Provider
	Linking      *linking.Flow
	Verification *verification.Flow
	Logout       *logout.Sequencer
	Paths        guard.Paths
}

func New(cfg *config.Config) (*App, error) {
	// Client store
	var database *sqlx.DB
	var entries repository.EntryRepository
	if cfg.StoreDriver == "memory" {
		slog.Warn("client store is in memory, sessions will not survive a restart")
		entries = repository.NewMemoryEntryRepository()
	} else {
		var err error
		database, err = db.Open(cfg.StoreDriver, cfg.StoreConnection)
		if err != nil {
			return nil, fmt.Errorf("failed to open client store: %w", err)
		}
		entries = repository.NewEntryRepository(database)
	}
	store := clientstore.New(entries)

	// Identity service
	identityClient := identity.New(
		cfg.IdentityURL,
		identity.WithTimeout(cfg.IdentityTimeout),
		identity.WithBootstrapRetry(cfg.IdentityBootstrapAttempts, 250*time.Millisecond),
	)

	paths := guard.Paths{
		Login:      cfg.LoginPath,
		Onboarding: cfg.OnboardingPath,
		Dashboard:  cfg.DashboardPath,
	}

	// Flows
	sessions := session.NewProvider(session.NewStore(), identityClient, store)
	linkingFlow := linking.New(identityClient, store, sessions)
	verificationFlow := verification.New(identityClient, store)
	sequencer := logout.New(sessions.Store(), identityClient, store, paths.Login, cfg.LogoutMinDuration)

	return &App{
		Cfg:          cfg,
		DB:           database,
		Store:        store,
		Identity:     identityClient,
		Sessions:     sessions,
		Linking:      linkingFlow,
		Verification: verificationFlow,
		Logout:       sequencer,
		Paths:        paths,
	}, nil
}

// Bootstrap restores the cached session. Pages render the loading view until
// it returns.
func (a *App) Bootstrap(ctx context.Context) {
	st := a.Sessions.Bootstrap(ctx)
	slog.Info("session bootstrap finished", "phase", st.Phase.String())
}

func (a *App) Close() error {
	return db.Close(a.DB)
}
