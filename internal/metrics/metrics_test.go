package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(200))
	assert.Equal(t, "4xx", StatusClass(401))
	assert.Equal(t, "5xx", StatusClass(503))
	assert.Equal(t, "error", StatusClass(0))
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, 200, 10*time.Millisecond)
	m.ObserveRequest(http.MethodGet, 401, 10*time.Millisecond)
	m.ObserveRefresh(OutcomeSuccess)
	m.ObserveRefreshWaiter()
	m.ObserveRefreshWaiter()
	m.ObserveReplay(200)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.refreshWaiters))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replays.WithLabelValues("2xx")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(http.MethodGet, 200, time.Millisecond)
	m.ObserveRefresh(OutcomeFailure)
	m.ObserveRefreshWaiter()
	m.ObserveReplay(500)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveRefresh(OutcomeNoRefreshToken)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `casedash_auth_refreshes_total{outcome="no_refresh_token"} 1`)
}
