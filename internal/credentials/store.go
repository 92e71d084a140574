package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/casedash/casedash/internal/logger"
	"github.com/rs/zerolog"
)

// Store is the single source of truth for the session's credential pair.
//
// Every mutation replaces the whole pair under one lock and is written to the
// backend before the lock is released, so readers never see a mix of old and
// new tokens and the persisted copy never lags behind a later mutation.
type Store struct {
	mu      sync.RWMutex
	state   Credentials
	backend Backend
	logger  *zerolog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// NewStore creates a store persisting to backend. Call Restore before serving
// authenticated requests.
func NewStore(backend Backend, log *zerolog.Logger) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		backend: backend,
		logger:  log,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once Restore has finished.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Restore loads the persisted session. A missing or unreadable entry leaves
// the store logged out; only backend I/O failures are returned. Ready is
// closed regardless of the outcome.
func (s *Store) Restore() error {
	defer s.readyOnce.Do(func() { close(s.ready) })

	data, err := s.backend.Load(SessionKey)
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug().Msg("No persisted session, starting logged out")
		return nil
	}
	if errors.Is(err, ErrSealedCorrupt) {
		s.logger.Warn().Err(err).Msg("⚠️  Discarding sealed session that cannot be opened")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		s.logger.Warn().Err(err).Msg("⚠️  Discarding unreadable persisted session")
		return nil
	}

	restored := normalize(p.State.AccessToken, p.State.RefreshToken)

	s.mu.Lock()
	s.state = restored
	s.mu.Unlock()

	s.logger.Info().Bool("authenticated", restored.IsAuthenticated).Msg("Session restored")
	return nil
}

// Credentials returns a consistent snapshot of the current pair.
func (s *Store) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) AccessToken() string {
	return s.Credentials().AccessToken
}

func (s *Store) RefreshToken() string {
	return s.Credentials().RefreshToken
}

// Login starts an authenticated session.
func (s *Store) Login(accessToken, refreshToken string) error {
	if accessToken == "" || refreshToken == "" {
		return ErrEmptyToken
	}
	return s.replace(normalize(accessToken, refreshToken))
}

// SetTokens swaps the pair after a refresh. Both halves are required.
func (s *Store) SetTokens(accessToken, refreshToken string) error {
	if accessToken == "" || refreshToken == "" {
		return ErrEmptyToken
	}
	return s.replace(normalize(accessToken, refreshToken))
}

// Logout clears the pair. Calling it while logged out does nothing.
func (s *Store) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == (Credentials{}) {
		return nil
	}
	s.state = Credentials{}
	if err := s.backend.Delete(SessionKey); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (s *Store) replace(next Credentials) error {
	data, err := json.Marshal(persisted{State: next})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = next
	if err := s.backend.Save(SessionKey, data); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func normalize(accessToken, refreshToken string) Credentials {
	return Credentials{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		IsAuthenticated: accessToken != "",
	}
}
