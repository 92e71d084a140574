package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/casedash/casedash/internal/auth"
	"github.com/casedash/casedash/internal/credentials"
)

// loginHandler handles POST /session/login
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if reqBody.Username == "" || reqBody.Password == "" {
		badRequest(w, "Missing required fields: username, password")
		return
	}

	pair, err := s.auth.Login(r.Context(), reqBody.Username, reqBody.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.logger.Warn().Str("username", reqBody.Username).Msg("Login rejected")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
		return
	}
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}

	if !s.storeSession(w, pair.AccessToken, pair.RefreshToken) {
		return
	}

	s.logger.Info().Str("username", reqBody.Username).Msg("✅ Logged in")
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "authenticated": true})
}

// logoutHandler handles POST /session/logout
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Logout(); err != nil {
		s.logger.Error().Err(err).Msg("❌ Failed to clear persisted session")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout_failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "authenticated": false})
}

// statusHandler handles GET /session/status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	creds := s.store.Credentials()
	response := map[string]interface{}{
		"authenticated":   creds.IsAuthenticated,
		"hasRefreshToken": creds.RefreshToken != "",
	}

	if exp, ok := auth.ExpiresAt(creds.AccessToken); ok {
		untilExpiry := time.Until(exp)
		response["expiresAt"] = exp.UnixMilli()
		response["minutesUntilExpiry"] = int64(untilExpiry / time.Minute)
		response["isExpired"] = untilExpiry <= 0
		response["needsRefreshSoon"] = untilExpiry <= s.expiryBuffer
	}

	writeJSON(w, http.StatusOK, response)
}

// storeSession writes a new pair to the store. A persistence failure keeps
// the in-memory session and is only logged.
func (s *Server) storeSession(w http.ResponseWriter, accessToken, refreshToken string) bool {
	err := s.store.Login(accessToken, refreshToken)
	switch {
	case err == nil:
		return true
	case errors.Is(err, credentials.ErrEmptyToken):
		s.logger.Error().Err(err).Msg("❌ Refusing incomplete credential pair")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "incomplete_credentials"})
		return false
	default:
		s.logger.Error().Err(err).Msg("❌ Failed to persist session, keeping it in memory")
		return true
	}
}
