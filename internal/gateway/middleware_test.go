package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okTransport(record func(*http.Request)) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if record != nil {
			record(req)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("{}")),
			Request:    req,
		}, nil
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name+">")
				resp, err := next.RoundTrip(req)
				order = append(order, "<"+name)
				return resp, err
			})
		}
	}

	rt := Chain(okTransport(nil), mark("outer"), mark("inner"))
	req := httptest.NewRequest(http.MethodGet, "http://backend.local/cases", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer>", "inner>", "<inner", "<outer"}, order)
}

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func TestBearer(t *testing.T) {
	var seen *http.Request
	rt := Chain(okTransport(func(r *http.Request) { seen = r }), Bearer(staticToken("a1")))

	req := httptest.NewRequest(http.MethodGet, "http://backend.local/cases", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer a1", seen.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("Authorization"), "caller's request must not be mutated")

	explicit := httptest.NewRequest(http.MethodPost, "http://backend.local/auth/refresh", nil)
	explicit.Header.Set("Authorization", "Bearer refresh-token")
	_, err = rt.RoundTrip(explicit)
	require.NoError(t, err)
	assert.Equal(t, "Bearer refresh-token", seen.Header.Get("Authorization"))
}

func TestLoggingAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	var seen *http.Request
	rt := Chain(okTransport(func(r *http.Request) { seen = r }), Logging(&logger))

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://backend.local/geo/distribution", nil))
	require.NoError(t, err)
	id := seen.Header.Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Contains(t, buf.String(), id)
	assert.Contains(t, buf.String(), `"status":200`)

	preset := httptest.NewRequest(http.MethodGet, "http://backend.local/cases", nil)
	preset.Header.Set(RequestIDHeader, "fixed-id")
	_, err = rt.RoundTrip(preset)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", seen.Header.Get(RequestIDHeader))
}

type countingRefresher struct {
	calls int
	token string
	err   error
}

func (c *countingRefresher) Refresh(ctx context.Context, stale string) (string, error) {
	c.calls++
	return c.token, c.err
}

func TestRefreshLeavesUnreplayableRequestAlone(t *testing.T) {
	unauthorized := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusUnauthorized, Body: io.NopCloser(strings.NewReader("")), Request: req}, nil
	})
	r := &countingRefresher{token: "a2"}
	rt := Chain(unauthorized, Refresh(r, RefreshOptions{}))

	req, err := http.NewRequest(http.MethodPost, "http://backend.local/rag/query", io.NopCloser(strings.NewReader("{}")))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, r.calls)
}

func TestRefreshPassesThroughTransportErrors(t *testing.T) {
	failing := RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	r := &countingRefresher{}
	rt := Chain(failing, Refresh(r, RefreshOptions{}))

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://backend.local/cases", nil))
	assert.EqualError(t, err, "connection refused")
	assert.Equal(t, 0, r.calls)
}

func TestRefreshReturnsRefreshError(t *testing.T) {
	unauthorized := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusUnauthorized, Body: io.NopCloser(strings.NewReader("")), Request: req}, nil
	})
	expired := errors.New("session expired")
	r := &countingRefresher{err: expired}
	rt := Chain(unauthorized, Refresh(r, RefreshOptions{}), Bearer(staticToken("a1")))

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://backend.local/cases", nil))
	assert.ErrorIs(t, err, expired)
	assert.Equal(t, 1, r.calls)
}
