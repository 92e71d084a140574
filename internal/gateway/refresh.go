package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/casedash/casedash/internal/auth"
	"github.com/casedash/casedash/internal/logger"
	"github.com/casedash/casedash/internal/metrics"
	"github.com/rs/zerolog"
)

// Refresher obtains an access token newer than the one a request was
// rejected with. *auth.Refresher implements it.
type Refresher interface {
	Refresh(ctx context.Context, staleAccessToken string) (string, error)
}

// DefaultSkipPaths are the auth endpoints whose 401 must never trigger a
// refresh.
var DefaultSkipPaths = []string{auth.RefreshPath, auth.LoginPath}

type RefreshOptions struct {
	// SkipPaths are matched against the end of the request path.
	SkipPaths []string
	Logger    *zerolog.Logger
	Metrics   *metrics.Metrics
}

// Refresh recovers from an expired access token. On a 401 it refreshes the
// credential pair and replays the request once through next. The replay's
// response is returned as is, so a request is refreshed at most once.
//
// Requests whose body cannot be rewound are not replayed; their 401 is
// returned unchanged. When the refresh itself fails the request fails with
// the refresh error, which matches auth.ErrSessionExpired.
func Refresh(r Refresher, opts RefreshOptions) Middleware {
	skip := opts.SkipPaths
	if skip == nil {
		skip = DefaultSkipPaths
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}
			if skipped(req.URL.Path, skip) {
				return resp, nil
			}
			if !replayable(req) {
				log.Warn().
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Msg("⚠️  Received 401 for a request that cannot be replayed")
				return resp, nil
			}

			used := tokenUsed(resp, req)

			log.Warn().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Msg("Received 401 Unauthorized, attempting token refresh...")

			// Release the connection before waiting on the refresh.
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			resp.Body.Close()

			if _, err := r.Refresh(req.Context(), used); err != nil {
				return nil, err
			}

			retry, err := rewind(req)
			if err != nil {
				return nil, err
			}

			log.Info().Str("path", req.URL.Path).Msg("Retrying request with refreshed token")

			resp, err = next.RoundTrip(retry)
			if err != nil {
				opts.Metrics.ObserveReplay(0)
				return nil, fmt.Errorf("retry request failed: %w", err)
			}
			opts.Metrics.ObserveReplay(resp.StatusCode)

			if resp.StatusCode == http.StatusUnauthorized {
				log.Error().Str("path", req.URL.Path).Msg("❌ Still received 401 after token refresh, giving up")
			} else {
				log.Info().Str("path", req.URL.Path).Msg("✅ Request succeeded after token refresh")
			}
			return resp, nil
		})
	}
}

func skipped(path string, skip []string) bool {
	for _, p := range skip {
		if p != "" && strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// tokenUsed is the bearer token the rejected request actually carried.
func tokenUsed(resp *http.Response, req *http.Request) string {
	if resp.Request != nil {
		if t := bearerToken(resp.Request.Header); t != "" {
			return t
		}
	}
	return bearerToken(req.Header)
}

func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	retry.Body = body
	return retry, nil
}
