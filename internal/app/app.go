// Package app wires the session store, refresher, gateway and feature layer
// from configuration. The CLI and the Workers entrypoint share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/casedash/casedash/internal/api"
	"github.com/casedash/casedash/internal/auth"
	"github.com/casedash/casedash/internal/config"
	"github.com/casedash/casedash/internal/credentials"
	"github.com/casedash/casedash/internal/gateway"
	"github.com/casedash/casedash/internal/metrics"
	"github.com/casedash/casedash/internal/server"
	"github.com/rs/zerolog"
)

type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
	Store     *credentials.Store
	Auth      *auth.Client
	Refresher *auth.Refresher
	Gateway   *gateway.Client
	API       *api.Service
}

type Options struct {
	// Backend overrides the backend selected by Config.Session.
	Backend credentials.Backend
	// Transport is the innermost RoundTripper for every backend call.
	Transport http.RoundTripper
	// OnSessionExpired runs after a failed refresh has logged the session out.
	OnSessionExpired func(err error)
}

// NewBackend builds the persistence backend named by cfg, sealed when a
// secret is configured.
func NewBackend(cfg config.SessionConfig) (credentials.Backend, error) {
	var backend credentials.Backend
	switch cfg.Backend {
	case config.BackendFile, "":
		dir := cfg.Dir
		if dir == "" {
			dir = credentials.DefaultSessionDir()
		}
		if dir == "" {
			return nil, errors.New("no session directory configured and no home directory found")
		}
		backend = credentials.NewFSBackend(dir)
	case config.BackendKeychain:
		backend = credentials.NewKeychainBackend()
	case config.BackendEnv:
		backend = credentials.NewEnvBackend()
	case config.BackendMemory:
		backend = credentials.NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}

	if cfg.Secret == "" {
		return backend, nil
	}
	sealed, err := credentials.NewSealedBackend(backend, cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to seal session backend: %w", err)
	}
	return sealed, nil
}

func New(cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	backend := opts.Backend
	if backend == nil {
		var err error
		if backend, err = NewBackend(cfg.Session); err != nil {
			return nil, err
		}
	}

	m := metrics.New()
	store := credentials.NewStore(backend, &log)

	authClient := auth.NewClient(cfg.API.BaseURL, &http.Client{
		Timeout:   cfg.API.RefreshTimeout,
		Transport: gateway.Chain(opts.Transport, gateway.Logging(&log), gateway.Instrument(m)),
	})

	onExpired := func(err error) {
		log.Warn().Err(err).Msg("⚠️  Session expired, login required")
		if opts.OnSessionExpired != nil {
			opts.OnSessionExpired(err)
		}
	}
	refresher := auth.NewRefresher(authClient, store, auth.RefresherOptions{
		Timeout:          cfg.API.RefreshTimeout,
		ExpiryBuffer:     cfg.API.ExpiryBuffer,
		CheckInterval:    cfg.API.CheckInterval,
		OnSessionExpired: onExpired,
		Logger:           &log,
		Metrics:          m,
	})

	gw, err := gateway.New(cfg.API.BaseURL, gateway.Options{
		Tokens:    store,
		Refresher: refresher,
		Timeout:   cfg.API.Timeout,
		Transport: opts.Transport,
		Logger:    &log,
		Metrics:   m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    log,
		Metrics:   m,
		Store:     store,
		Auth:      authClient,
		Refresher: refresher,
		Gateway:   gw,
		API:       api.NewService(gw),
	}, nil
}

// Restore loads the persisted session and reports its expiry.
func (a *App) Restore() error {
	if err := a.Store.Restore(); err != nil {
		return err
	}
	a.logSessionState()
	return nil
}

// Start restores the session and launches the background refresh loop.
func (a *App) Start(ctx context.Context) error {
	if err := a.Restore(); err != nil {
		return err
	}
	a.Refresher.Start(ctx)
	return nil
}

func (a *App) Close() {
	a.Refresher.Close()
}

func (a *App) NewServer() *server.Server {
	return server.New(a.Logger, server.Deps{
		Store:        a.Store,
		Auth:         a.Auth,
		Upstream:     a.Gateway,
		API:          a.API,
		Metrics:      a.Metrics,
		AdminAPIKey:  a.Config.Server.AdminAPIKey,
		ExpiryBuffer: a.Config.API.ExpiryBuffer,
	})
}

func (a *App) logSessionState() {
	creds := a.Store.Credentials()
	if !creds.IsAuthenticated {
		a.Logger.Info().Msg("No active session, login required")
		return
	}

	exp, ok := auth.ExpiresAt(creds.AccessToken)
	if !ok {
		a.Logger.Info().Msg("✅ Session loaded, access token expiry unknown")
		return
	}

	minutesUntilExpiry := int64(time.Until(exp).Minutes())
	switch {
	case minutesUntilExpiry <= 0:
		a.Logger.Warn().
			Int64("minutes_expired", -minutesUntilExpiry).
			Msg("⚠️  Token is already expired, will attempt refresh on first request")
	case minutesUntilExpiry <= int64(a.Config.API.ExpiryBuffer.Minutes()):
		a.Logger.Warn().
			Int64("minutes_until_expiry", minutesUntilExpiry).
			Msg("⚠️  Token expires soon, will refresh shortly")
	default:
		a.Logger.Info().
			Int64("minutes_until_expiry", minutesUntilExpiry).
			Msg("✅ Token is valid and not expiring soon")
	}
}
