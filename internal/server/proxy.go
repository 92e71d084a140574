package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxProxyBody = 10 << 20

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Headers owned by the session server rather than the browser.
var strippedRequestHeaders = []string{"Authorization", "Cookie", "Content-Length", "Accept-Encoding"}

// proxyHandler forwards /api/* to the backend with the session's credentials.
func (s *Server) proxyHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBody+1))
	if err != nil {
		badRequest(w, "Failed to read request body")
		return
	}
	if len(body) > maxProxyBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "body_too_large"})
		return
	}

	proxyReq, err := s.newProxyRequest(r, body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create proxy request")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "proxy_failed"})
		return
	}

	resp, err := s.upstream.Do(proxyReq)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Warn().Err(err).Str("uri", r.RequestURI).Msg("Failed to stream upstream response")
	}
}

func (s *Server) newProxyRequest(r *http.Request, body []byte) (*http.Request, error) {
	target := s.upstream.URL("/"+chi.URLParam(r, "*"), nil)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	proxyReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy request: %w", err)
	}

	copyHeaders(proxyReq.Header, r.Header)
	for _, h := range strippedRequestHeaders {
		proxyReq.Header.Del(h)
	}
	return proxyReq, nil
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
