// Package openemr provides a client for the OpenEMR REST API that
// authenticates through OAuth2 bearer tokens.
package openemr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openemr-ai/go-openemr-client/oauth2"
)

const (
	tokenPath        = "/oauth2/default/token"
	registrationPath = "/oauth2/default/registration"

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 10 << 20
)

// DefaultScope is the scope set the client requests when none is configured:
// system-level read access to appointments, encounters and patients.
const DefaultScope = "openid api:oemr " +
	"system/Appointment.read " +
	"system/Encounter.read " +
	"system/Patient.read"

// Client calls the OpenEMR REST API. Every request carries a bearer token
// obtained from the server's token endpoint; a request rejected with 401 is
// retried exactly once with a freshly requested token.
//
// A Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger makes the client log requests and token refreshes.
// The default discards logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPTimeout overrides the per-request timeout.
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// New builds a Client from the given configuration, wiring the configured
// grant into a cached, refresh-coalescing token client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("openemr: invalid config: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := newWithTokenSource(cfg.BaseURL, cfg.TokenSource(), timeout, opts)
	return c, nil
}

// NewWithTokenSource builds a Client on a custom grant strategy, for grants
// this package does not ship (e.g. JWK-based system clients).
func NewWithTokenSource(baseURL string, source oauth2.TokenSource, opts ...Option) *Client {
	return newWithTokenSource(baseURL, source, defaultTimeout, opts)
}

func newWithTokenSource(baseURL string, source oauth2.TokenSource, timeout time.Duration, opts []Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.New(slog.DiscardHandler),
		http: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	tokenClient := oauth2.NewTokenClient(source, oauth2.WithLogger(c.logger))
	c.http.Transport = &oauth2.Transport{TokenClient: tokenClient}
	return c
}

// Get sends an authenticated GET request and returns the response body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

// Post sends body as JSON in an authenticated POST request.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// Put sends body as JSON in an authenticated PUT request.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

// Delete sends an authenticated DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any) (json.RawMessage, error) {
	requestURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	var requestBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("openemr: encode request body: %w", err)
		}
		requestBody = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, requestBody)
	if err != nil {
		return nil, fmt.Errorf("openemr: build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "openemr request", "method", method, "path", path)

	response, err := c.http.Do(request)
	if err != nil {
		// Token acquisition failures already carry their type; everything
		// else that errors before a response exists is a transport failure.
		var authErr *oauth2.AuthError
		var transportErr *oauth2.TransportError
		if errors.As(err, &authErr) || errors.As(err, &transportErr) {
			return nil, err
		}
		return nil, &oauth2.TransportError{Err: err}
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, &oauth2.TransportError{Err: err}
	}

	switch {
	case response.StatusCode == http.StatusUnauthorized:
		// The transport already retried once with a fresh token.
		return nil, &oauth2.AuthError{StatusCode: response.StatusCode, Body: string(responseBody)}
	case response.StatusCode < 200 || response.StatusCode >= 300:
		return nil, &APIError{StatusCode: response.StatusCode, Body: string(responseBody)}
	}
	return json.RawMessage(responseBody), nil
}
