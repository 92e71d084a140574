package gateway

import (
	"net/http"
	"time"

	"github.com/casedash/casedash/internal/logger"
	"github.com/casedash/casedash/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-Id"

// Logging tags each request with an X-Request-Id and logs its outcome.
func Logging(log *zerolog.Logger) Middleware {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			id := req.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
				req = req.Clone(req.Context())
				req.Header.Set(RequestIDHeader, id)
			}

			start := time.Now()
			resp, err := next.RoundTrip(req)
			if err != nil {
				log.Error().
					Err(err).
					Str("request_id", id).
					Str("method", req.Method).
					Str("url", req.URL.Redacted()).
					Dur("duration", time.Since(start)).
					Msg("❌ Upstream request failed")
				return nil, err
			}

			log.Info().
				Str("request_id", id).
				Str("method", req.Method).
				Str("url", req.URL.Redacted()).
				Int("status", resp.StatusCode).
				Dur("duration", time.Since(start)).
				Msg("Upstream request")
			return resp, nil
		})
	}
}

// Instrument records request counts and latency per method and status class.
func Instrument(m *metrics.Metrics) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			status := 0
			if err == nil {
				status = resp.StatusCode
			}
			m.ObserveRequest(req.Method, status, time.Since(start))
			return resp, err
		})
	}
}
