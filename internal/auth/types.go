package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// TokenPair is the body returned by /auth/token and /auth/refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

var (
	// ErrSessionExpired marks a failure the gateway could not recover from:
	// the session has been cleared and the user must log in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoRefreshToken is returned when a 401 arrives and no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token stored")
	// ErrInvalidCredentials is returned by Login for a rejected username/password.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// SessionExpiredError carries the refresh failure that ended the session.
// It matches both ErrSessionExpired and the underlying cause.
type SessionExpiredError struct {
	Err error
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired: %v", e.Err)
}

func (e *SessionExpiredError) Unwrap() []error {
	return []error{ErrSessionExpired, e.Err}
}

// StatusError is a non-2xx answer from an auth endpoint.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
