package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/casedash/casedash/internal/api"
	"github.com/casedash/casedash/internal/auth"
	"github.com/casedash/casedash/internal/credentials"
	"github.com/casedash/casedash/internal/gateway"
	"github.com/casedash/casedash/internal/metrics"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendAPI mimics the analytics backend: it accepts one access token and
// can be told to reject refreshes.
type backendAPI struct {
	mu            sync.Mutex
	validAccess   string
	rejectRefresh bool
	lastAuth      string
	lastQuery     string
}

func (b *backendAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.URL.Path {
	case auth.LoginPath:
		r.ParseForm()
		if r.PostForm.Get("password") != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.validAccess = "login-access"
		json.NewEncoder(w).Encode(auth.TokenPair{AccessToken: "login-access", RefreshToken: "login-refresh"})
		return
	case auth.RefreshPath:
		if b.rejectRefresh {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.validAccess = "refreshed-access"
		json.NewEncoder(w).Encode(auth.TokenPair{AccessToken: "refreshed-access", RefreshToken: "refreshed-refresh"})
		return
	}

	b.lastAuth = r.Header.Get("Authorization")
	b.lastQuery = r.URL.RawQuery
	if b.lastAuth != "Bearer "+b.validAccess {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/cases":
		w.Write([]byte(`{"items":[{"id":"c1","title":"Chain snatching"}],"total":1,"page":1,"page_size":20}`))
	case "/analytics/chargesheet-flow":
		w.Write([]byte(`[{"source":"FIR","target":"Chargesheet","value":4},{"source":"FIR","target":"Chargesheet","value":1}]`))
	case "/analytics/trends":
		w.Write([]byte(`[{"date":"2024-05-02T00:00:00Z","count":3},{"date":"2024-05-20T00:00:00Z","count":1}]`))
	case "/teapot":
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"detail":"short and stout"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type testEnv struct {
	backend *backendAPI
	store   *credentials.Store
	server  *Server
}

func newTestEnv(t *testing.T, access, refresh string, restore bool) *testEnv {
	t.Helper()
	backend := &backendAPI{validAccess: access}
	upstream := httptest.NewServer(backend)
	t.Cleanup(upstream.Close)

	store := credentials.NewStore(credentials.NewMemoryBackend(), nil)
	if restore {
		require.NoError(t, store.Restore())
		if access != "" {
			require.NoError(t, store.Login(access, refresh))
		}
	}

	m := metrics.New()
	authClient := auth.NewClient(upstream.URL, upstream.Client())
	refresher := auth.NewRefresher(authClient, store, auth.RefresherOptions{Metrics: m})
	gw, err := gateway.New(upstream.URL, gateway.Options{Tokens: store, Refresher: refresher, Metrics: m})
	require.NoError(t, err)

	srv := New(zerolog.Nop(), Deps{
		Store:       store,
		Auth:        authClient,
		Upstream:    gw,
		API:         api.NewService(gw),
		Metrics:     m,
		AdminAPIKey: "admin-key",
	})
	return &testEnv{backend: backend, store: store, server: srv}
}

func (e *testEnv) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "", "", false)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWaitReadyBlocksUntilRestore(t *testing.T) {
	env := newTestEnv(t, "", "", false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/session/status", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, env.store.Restore())
	rec = env.do(t, http.MethodGet, "/session/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])
}

func TestLoginAndLogout(t *testing.T) {
	env := newTestEnv(t, "", "", true)

	rec := env.do(t, http.MethodPost, "/session/login", `{"username":"inspector","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", decode(t, rec)["error"])
	assert.False(t, env.store.Credentials().IsAuthenticated)

	rec = env.do(t, http.MethodPost, "/session/login", `{"username":"inspector"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/session/login", `{"username":"inspector","password":"correct"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "login-access", env.store.AccessToken())
	assert.Equal(t, "login-refresh", env.store.RefreshToken())

	rec = env.do(t, http.MethodPost, "/session/logout", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.store.Credentials().IsAuthenticated)

	rec = env.do(t, http.MethodPost, "/session/logout", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionStatusReportsExpiry(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(90 * time.Second)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	env := newTestEnv(t, token, "r1", true)

	out := decode(t, env.do(t, http.MethodGet, "/session/status", "", nil))
	assert.Equal(t, true, out["authenticated"])
	assert.Equal(t, true, out["hasRefreshToken"])
	assert.Equal(t, false, out["isExpired"])
	assert.Equal(t, true, out["needsRefreshSoon"])
	assert.EqualValues(t, 1, out["minutesUntilExpiry"])
	assert.Contains(t, out, "expiresAt")

	opaque := newTestEnv(t, "opaque", "r1", true)
	out = decode(t, opaque.do(t, http.MethodGet, "/session/status", "", nil))
	assert.Equal(t, true, out["authenticated"])
	assert.NotContains(t, out, "expiresAt")
}

func TestDashboardRequiresSession(t *testing.T) {
	env := newTestEnv(t, "", "", true)
	rec := env.do(t, http.MethodGet, "/dashboard/cases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", decode(t, rec)["redirect"])
}

func TestDashboardCases(t *testing.T) {
	env := newTestEnv(t, "a1", "r1", true)

	rec := env.do(t, http.MethodGet, "/dashboard/cases?page=1&page_size=500&status=open", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.EqualValues(t, 1, out["total_pages"])
	assert.Equal(t, false, out["has_next"])
	assert.Contains(t, env.backend.lastQuery, "page_size=100")
	assert.Contains(t, env.backend.lastQuery, "status=open")

	rec = env.do(t, http.MethodGet, "/dashboard/cases?page=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardRefreshesTransparently(t *testing.T) {
	env := newTestEnv(t, "a1", "r1", true)
	env.backend.validAccess = "something-else"

	rec := env.do(t, http.MethodGet, "/dashboard/chargesheet-sankey", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"nodes":[{"name":"FIR"},{"name":"Chargesheet"}],"links":[{"source":0,"target":1,"value":5}]}`, rec.Body.String())
	assert.Equal(t, "refreshed-access", env.store.AccessToken())
}

func TestDashboardTrends(t *testing.T) {
	env := newTestEnv(t, "a1", "r1", true)

	rec := env.do(t, http.MethodGet, "/dashboard/trends?granularity=month&from=2024-05-01", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"period":"2024-05-01T00:00:00Z","count":4}]`, rec.Body.String())
	assert.Equal(t, "from=2024-05-01", env.backend.lastQuery)

	rec = env.do(t, http.MethodGet, "/dashboard/trends?granularity=decade", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionExpiredRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t, "a1", "r1", true)
	env.backend.validAccess = "something-else"
	env.backend.rejectRefresh = true

	rec := env.do(t, http.MethodGet, "/dashboard/cases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"session_expired","redirect":"/login"}`, rec.Body.String())
	assert.Equal(t, credentials.Credentials{}, env.store.Credentials())

	rec = env.do(t, http.MethodGet, "/api/cases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode(t, rec)["error"])
}

func TestProxyForwardsWithSessionToken(t *testing.T) {
	env := newTestEnv(t, "a1", "r1", true)

	rec := env.do(t, http.MethodGet, "/api/cases?page=3", "", map[string]string{"Authorization": "Bearer browser-token"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Bearer a1", env.backend.lastAuth)
	assert.Equal(t, "page=3", env.backend.lastQuery)
	assert.Contains(t, rec.Body.String(), "Chain snatching")

	rec = env.do(t, http.MethodGet, "/api/teapot", "", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, rec.Body.String(), "short and stout")
}

func TestAdminCredentials(t *testing.T) {
	env := newTestEnv(t, "", "", true)
	body := `{"accessToken":"admin-access","refreshToken":"admin-refresh"}`

	rec := env.do(t, http.MethodPost, "/admin/credentials", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/credentials", body, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/credentials", body, map[string]string{"Authorization": "Basic admin-key"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/credentials", `{"accessToken":"x"}`, map[string]string{"X-API-Key": "admin-key"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/credentials", body, map[string]string{"Authorization": "Bearer admin-key"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "admin-access", env.store.AccessToken())
	assert.Equal(t, "admin-refresh", env.store.RefreshToken())
}

func TestAdminNotConfigured(t *testing.T) {
	env := newTestEnv(t, "", "", true)
	env.server.adminAPIKey = ""
	rec := env.do(t, http.MethodPost, "/admin/credentials", `{}`, map[string]string{"X-API-Key": "anything"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "a1", "r1", true)
	env.do(t, http.MethodGet, "/dashboard/cases", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "casedash_gateway_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, "", "", true)
	rec := env.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
