package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/casedash/casedash/internal/auth"
	"github.com/casedash/casedash/internal/gateway"
)

const loginRedirect = "/login"

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// writeUpstreamError maps a gateway failure to a response. An expired
// session becomes the redirect-to-login signal.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *gateway.APIError
	switch {
	case errors.Is(err, auth.ErrSessionExpired):
		s.logger.Warn().Err(err).Str("uri", r.RequestURI).Msg("Session expired, redirecting to login")
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    "session_expired",
			"redirect": loginRedirect,
		})
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.StatusCode, map[string]any{
			"error":  "upstream_error",
			"status": apiErr.StatusCode,
			"detail": apiErr.Body,
		})
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Error().Err(err).Str("uri", r.RequestURI).Msg("❌ Upstream request timed out")
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "upstream_timeout"})
	default:
		s.logger.Error().Err(err).Str("uri", r.RequestURI).Msg("❌ Upstream request failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream_unavailable"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "detail": msg})
}
