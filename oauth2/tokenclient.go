package oauth2

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenClient caches tokens from a TokenSource and replaces them before they
// expire. It is safe for concurrent use: callers that all observe a missing or
// expiring token converge on a single in-flight request against the
// authorization server and share its outcome, success or failure.
//
// Failures are never cached. A failed request leaves the client without a
// token, so the next call attempts a fresh one.
type TokenClient struct {
	source TokenSource
	leeway time.Duration
	logger *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	current *Token
}

// TokenClientOption configures a TokenClient.
type TokenClientOption func(*TokenClient)

// WithLeeway sets how long before expiry a cached token is replaced.
// The default is DefaultLeeway.
func WithLeeway(leeway time.Duration) TokenClientOption {
	return func(c *TokenClient) {
		c.leeway = leeway
	}
}

// WithLogger makes the client log token requests. The default discards logs.
func WithLogger(logger *slog.Logger) TokenClientOption {
	return func(c *TokenClient) {
		c.logger = logger
	}
}

func NewTokenClient(source TokenSource, opts ...TokenClientOption) *TokenClient {
	c := &TokenClient{
		source: source,
		leeway: DefaultLeeway,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns a token that is valid for at least the configured leeway,
// requesting a new one when the cache cannot serve.
func (c *TokenClient) Token(ctx context.Context) (*Token, error) {
	c.mu.RLock()
	token := c.current
	c.mu.RUnlock()
	if token.Valid(c.leeway) {
		return token, nil
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		// A caller that queued up behind a refresh that just finished
		// reuses its token instead of requesting another one.
		c.mu.RLock()
		token := c.current
		c.mu.RUnlock()
		if token.Valid(c.leeway) {
			return token, nil
		}

		// Detach from the winning caller's cancellation: every coalesced
		// waiter shares this request's outcome.
		fresh, err := c.source.Token(context.WithoutCancel(ctx))
		if err != nil {
			c.logger.WarnContext(ctx, "token request failed", "error", err)
			return nil, err
		}

		c.mu.Lock()
		c.current = fresh
		c.mu.Unlock()

		c.logger.DebugContext(ctx, "obtained access token", "expiry", fresh.Expiry)
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Token), nil
}

// Invalidate drops stale from the cache so the next Token call requests a new
// one. A token installed by a concurrent refresh in the meantime is left in
// place.
func (c *TokenClient) Invalidate(stale *Token) {
	c.mu.Lock()
	if c.current == stale {
		c.current = nil
	}
	c.mu.Unlock()
}
