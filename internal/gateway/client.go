package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/casedash/casedash/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 64 << 10
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type Options struct {
	// Tokens supplies the bearer token. Required.
	Tokens TokenSource
	// Refresher enables 401 recovery. Without it 401s are returned as is.
	Refresher Refresher
	// SkipPaths overrides DefaultSkipPaths.
	SkipPaths []string
	Timeout   time.Duration
	// Transport is the innermost RoundTripper, http.DefaultTransport if nil.
	Transport http.RoundTripper
	Logger    *zerolog.Logger
	Metrics   *metrics.Metrics
}

// Client sends JSON requests to the backend API through the middleware
// pipeline.
type Client struct {
	base       *url.URL
	httpClient *http.Client
}

func New(baseURL string, opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if opts.Tokens == nil {
		return nil, errors.New("gateway requires a token source")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	mws := []Middleware{Logging(opts.Logger), Instrument(opts.Metrics)}
	if opts.Refresher != nil {
		mws = append(mws, Refresh(opts.Refresher, RefreshOptions{
			SkipPaths: opts.SkipPaths,
			Logger:    opts.Logger,
			Metrics:   opts.Metrics,
		}))
	}
	mws = append(mws, Bearer(opts.Tokens))

	return &Client{
		base: base,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: Chain(opts.Transport, mws...),
		},
	}, nil
}

// URL resolves path against the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// NewRequest builds a request to path. A non-nil body is sent as JSON and can
// be replayed after a refresh.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do sends req through the pipeline and returns the raw response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	req, err := c.NewRequest(ctx, http.MethodPost, path, nil, in)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
