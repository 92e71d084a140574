package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/casedash/casedash/internal/api"
	"github.com/casedash/casedash/internal/auth"
	"github.com/casedash/casedash/internal/config"
	"github.com/casedash/casedash/internal/credentials"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	dir := t.TempDir()

	b, err := NewBackend(config.SessionConfig{Backend: config.BackendFile, Dir: dir})
	require.NoError(t, err)
	fs, ok := b.(*credentials.FSBackend)
	require.True(t, ok)
	assert.Equal(t, dir, fs.Dir)

	b, err = NewBackend(config.SessionConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &credentials.MemoryBackend{}, b)

	b, err = NewBackend(config.SessionConfig{Backend: config.BackendEnv})
	require.NoError(t, err)
	assert.IsType(t, &credentials.EnvBackend{}, b)

	b, err = NewBackend(config.SessionConfig{Backend: config.BackendKeychain})
	require.NoError(t, err)
	assert.IsType(t, &credentials.KeychainBackend{}, b)

	b, err = NewBackend(config.SessionConfig{Backend: config.BackendMemory, Secret: "s3cret"})
	require.NoError(t, err)
	assert.IsType(t, &credentials.SealedBackend{}, b)

	_, err = NewBackend(config.SessionConfig{Backend: "floppy"})
	assert.Error(t, err)
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Env: "test",
		API: config.APIConfig{
			BaseURL:        baseURL,
			Timeout:        5 * time.Second,
			RefreshTimeout: 2 * time.Second,
			ExpiryBuffer:   time.Minute,
			CheckInterval:  time.Hour,
		},
		Session: config.SessionConfig{Backend: config.BackendMemory},
		Server:  config.ServerConfig{AdminAPIKey: "k"},
	}
}

func TestAppRefreshesAndPersists(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case auth.RefreshPath:
			json.NewEncoder(w).Encode(auth.TokenPair{AccessToken: "a2", RefreshToken: "r2"})
		case "/geo/distribution":
			if r.Header.Get("Authorization") != "Bearer a2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`[{"district":"Nagpur","cases":12}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer upstream.Close()

	backend := credentials.NewMemoryBackend()
	seed := credentials.NewStore(backend, nil)
	require.NoError(t, seed.Restore())
	require.NoError(t, seed.Login("a1", "r1"))

	a, err := New(testConfig(upstream.URL), zerolog.Nop(), Options{Backend: backend})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer a.Close()

	points, err := a.API.GeoDistribution(context.Background(), api.Range{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Nagpur", points[0].District)

	reloaded := credentials.NewStore(backend, nil)
	require.NoError(t, reloaded.Restore())
	assert.Equal(t, "a2", reloaded.AccessToken())
	assert.Equal(t, "r2", reloaded.RefreshToken())
}

func TestAppSessionExpiredCallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	backend := credentials.NewMemoryBackend()
	seed := credentials.NewStore(backend, nil)
	require.NoError(t, seed.Restore())
	require.NoError(t, seed.Login("a1", "r1"))

	var expired []error
	a, err := New(testConfig(upstream.URL), zerolog.Nop(), Options{
		Backend:          backend,
		OnSessionExpired: func(err error) { expired = append(expired, err) },
	})
	require.NoError(t, err)
	require.NoError(t, a.Restore())

	_, err = a.API.ListCases(context.Background(), api.CaseFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrSessionExpired))
	require.Len(t, expired, 1)
	assert.False(t, a.Store.Credentials().IsAuthenticated)

	_, err = backend.Load(credentials.SessionKey)
	assert.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestAppServerHealth(t *testing.T) {
	a, err := New(testConfig("http://backend.invalid"), zerolog.Nop(), Options{Backend: credentials.NewMemoryBackend()})
	require.NoError(t, err)
	require.NoError(t, a.Restore())

	rec := httptest.NewRecorder()
	a.NewServer().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(testConfig("not a url"), zerolog.Nop(), Options{Backend: credentials.NewMemoryBackend()})
	assert.Error(t, err)
}
