package gateway

import (
	"net/http"
	"strings"
)

// TokenSource yields the access token to attach. An empty token means the
// session is logged out.
type TokenSource interface {
	AccessToken() string
}

// Bearer attaches the current access token to requests that do not already
// carry an Authorization header.
func Bearer(src TokenSource) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Authorization") != "" {
				return next.RoundTrip(req)
			}
			token := src.AccessToken()
			if token == "" {
				return next.RoundTrip(req)
			}
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
			return next.RoundTrip(req)
		})
	}
}

// bearerToken returns the bare token from an Authorization header.
func bearerToken(h http.Header) string {
	v := strings.TrimSpace(h.Get("Authorization"))
	if len(v) >= 7 && strings.EqualFold(v[:7], "Bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}
