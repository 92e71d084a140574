package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/casedash/casedash/internal/credentials"
	"github.com/casedash/casedash/internal/logger"
	"github.com/casedash/casedash/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshTimeout = 15 * time.Second
	DefaultExpiryBuffer   = 2 * time.Minute
	DefaultCheckInterval  = time.Minute

	refreshKey = "refresh"
)

// TokenRefresher performs the network refresh call.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}

// SessionStore is the part of credentials.Store the refresher drives.
type SessionStore interface {
	Credentials() credentials.Credentials
	SetTokens(accessToken, refreshToken string) error
	Logout() error
}

type RefresherOptions struct {
	// Timeout bounds the refresh call. It is independent of the caller that
	// triggered the refresh so one caller's cancellation cannot fail the others.
	Timeout time.Duration
	// ExpiryBuffer is how close to exp the background loop refreshes.
	ExpiryBuffer time.Duration
	// CheckInterval is the background loop period.
	CheckInterval time.Duration
	// OnSessionExpired runs once per failed refresh, after logout.
	OnSessionExpired func(err error)
	Logger           *zerolog.Logger
	Metrics          *metrics.Metrics
}

// Refresher coordinates credential refresh so that concurrent 401s share a
// single refresh call.
type Refresher struct {
	client TokenRefresher
	store  SessionStore
	opts   RefresherOptions
	logger *zerolog.Logger

	group singleflight.Group

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRefresher(client TokenRefresher, store SessionStore, opts RefresherOptions) *Refresher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRefreshTimeout
	}
	if opts.ExpiryBuffer <= 0 {
		opts.ExpiryBuffer = DefaultExpiryBuffer
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Refresher{
		client: client,
		store:  store,
		opts:   opts,
		logger: log,
		stopCh: make(chan struct{}),
	}
}

// Refresh returns an access token newer than staleAccessToken, refreshing the
// pair if needed. Callers arriving while a refresh is in flight wait for that
// refresh instead of starting another one. When the refresh fails the session
// is logged out and the returned error matches ErrSessionExpired.
//
// If ctx ends first Refresh returns ctx.Err(); the in-flight refresh still
// completes for everyone else.
func (r *Refresher) Refresh(ctx context.Context, staleAccessToken string) (string, error) {
	// Only the caller that started the flight runs its closure; everyone
	// else is a waiter. res.Shared is true for the leader too.
	var leader bool
	ch := r.group.DoChan(refreshKey, func() (interface{}, error) {
		leader = true
		return r.refresh(staleAccessToken)
	})

	select {
	case res := <-ch:
		if !leader {
			r.opts.Metrics.ObserveRefreshWaiter()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Refresher) refresh(staleAccessToken string) (string, error) {
	creds := r.store.Credentials()

	// A request that went out with an older token: the expiry it observed
	// has already been handled.
	if creds.AccessToken != "" && creds.AccessToken != staleAccessToken {
		r.logger.Debug().Msg("Access token already rotated, skipping refresh")
		r.opts.Metrics.ObserveRefresh(metrics.OutcomeAlreadyRefreshed)
		return creds.AccessToken, nil
	}

	if creds.RefreshToken == "" {
		r.logger.Warn().Msg("❌ Received 401 without a stored refresh token, logging out")
		r.opts.Metrics.ObserveRefresh(metrics.OutcomeNoRefreshToken)
		return "", r.expire(ErrNoRefreshToken)
	}

	r.logger.Info().Msg("🔄 Access token rejected, refreshing...")

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Timeout)
	defer cancel()

	pair, err := r.client.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("token refresh timed out after %s: %w", r.opts.Timeout, err)
		}
		r.logger.Error().Err(err).Msg("❌ Failed to refresh access token")
		r.opts.Metrics.ObserveRefresh(metrics.OutcomeFailure)
		return "", r.expire(err)
	}

	if err := r.store.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		if errors.Is(err, credentials.ErrEmptyToken) {
			r.opts.Metrics.ObserveRefresh(metrics.OutcomeFailure)
			return "", r.expire(err)
		}
		// The in-memory pair is already replaced; only persistence failed.
		r.logger.Error().Err(err).Msg("❌ Failed to persist refreshed tokens")
	}

	r.logger.Info().Msg("✅ Access token refreshed successfully")
	r.opts.Metrics.ObserveRefresh(metrics.OutcomeSuccess)
	return pair.AccessToken, nil
}

func (r *Refresher) expire(cause error) error {
	if err := r.store.Logout(); err != nil {
		r.logger.Error().Err(err).Msg("❌ Failed to clear session after refresh failure")
	}
	sessionErr := &SessionExpiredError{Err: cause}
	if r.opts.OnSessionExpired != nil {
		r.opts.OnSessionExpired(sessionErr)
	}
	return sessionErr
}

// Start launches the background loop that refreshes the access token shortly
// before its JWT exp. It shares the single-flight group with Refresh.
func (r *Refresher) Start(ctx context.Context) {
	go r.backgroundRefresh(ctx)
}

// Close stops the background loop.
func (r *Refresher) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Refresher) backgroundRefresh(ctx context.Context) {
	ticker := time.NewTicker(r.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.checkAndRefresh(ctx)
		case <-ctx.Done():
			r.logger.Debug().Msg("Background token refresh stopped")
			return
		case <-r.stopCh:
			r.logger.Debug().Msg("Background token refresh stopped")
			return
		}
	}
}

// checkAndRefresh refreshes when the stored access token is about to expire.
func (r *Refresher) checkAndRefresh(ctx context.Context) {
	creds := r.store.Credentials()
	if !creds.IsAuthenticated {
		return
	}

	exp, ok := ExpiresAt(creds.AccessToken)
	if !ok {
		return
	}
	untilExpiry := time.Until(exp)
	if untilExpiry > r.opts.ExpiryBuffer {
		r.logger.Debug().
			Dur("until_expiry", untilExpiry).
			Msg("Background refresh: token still valid")
		return
	}

	r.logger.Info().
		Dur("until_expiry", untilExpiry).
		Msg("🔄 Background refresh: token expiring soon, refreshing...")

	if _, err := r.Refresh(ctx, creds.AccessToken); err != nil {
		r.logger.Error().Err(err).Msg("❌ Background refresh failed")
	}
}
