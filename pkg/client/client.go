package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dmitrymomot/entitlements/pkg/accountdeletion"
	"github.com/dmitrymomot/entitlements/pkg/api"
	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/cancellation"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// Cache TTL bounds.
const (
	DefaultTTL = 2 * time.Minute
	MinTTL     = time.Minute
	MaxTTL     = 5 * time.Minute

	defaultCacheSize = 16
)

// TokenSource returns the bearer token for the next request.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Client talks to the entitlement API on behalf of a signed-in user.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	ttl        time.Duration
	cacheSize  int
	cache      *expirable.LRU[uuid.UUID, entitlement.View]
	logger     *slog.Logger

	// generations counts invalidations per user. A response fetched before
	// an invalidation is not cached.
	mu          sync.Mutex
	generations map[uuid.UUID]uint64
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient. The client must not set a
// total timeout if Watch is used.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTTL sets the cache TTL, clamped to [MinTTL, MaxTTL].
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ClampTTL(ttl) }
}

func WithCacheSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// ClampTTL bounds ttl to [MinTTL, MaxTTL]; zero or negative means DefaultTTL.
func ClampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return DefaultTTL
	case ttl < MinTTL:
		return MinTTL
	case ttl > MaxTTL:
		return MaxTTL
	}
	return ttl
}

func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.Join(fault.ErrConfiguration, ErrInvalidConfig, errors.New("base url is required"))
	}
	if tokens == nil {
		return nil, errors.Join(fault.ErrConfiguration, ErrInvalidConfig, errors.New("token source is required"))
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: http.DefaultClient,
		ttl:        DefaultTTL,
		cacheSize:  defaultCacheSize,
		logger:     logger.Discard(),

		generations: make(map[uuid.UUID]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cache = expirable.NewLRU[uuid.UUID, entitlement.View](c.cacheSize, nil, c.ttl)
	c.logger = c.logger.With(logger.Component("entitlements-client"))
	return c, nil
}

// TTL reports the effective cache TTL.
func (c *Client) TTL() time.Duration { return c.ttl }

// Query returns the entitlement view for userID. A cached answer younger than
// the TTL is returned without a request unless forceRefresh is set.
func (c *Client) Query(ctx context.Context, userID uuid.UUID, forceRefresh bool) (entitlement.View, error) {
	if !forceRefresh {
		if v, ok := c.cache.Get(userID); ok {
			return v, nil
		}
	}

	gen := c.generation(userID)
	var view entitlement.View
	if err := c.do(ctx, http.MethodGet, "/v1/entitlement", nil, &view); err != nil {
		return entitlement.View{}, err
	}

	c.mu.Lock()
	if c.generations[userID] == gen {
		c.cache.Add(userID, view)
	}
	c.mu.Unlock()
	return view, nil
}

// Invalidate drops the cached view of userID. Queries already in flight
// still return their answer but do not cache it.
func (c *Client) Invalidate(userID uuid.UUID) {
	c.mu.Lock()
	c.generations[userID]++
	c.cache.Remove(userID)
	c.mu.Unlock()
}

func (c *Client) generation(userID uuid.UUID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

// Cached returns the cached view without touching the network.
func (c *Client) Cached(userID uuid.UUID) (entitlement.View, bool) {
	return c.cache.Peek(userID)
}

// Checkout starts a hosted card checkout and returns the redirect session.
func (c *Client) Checkout(ctx context.Context, req billing.CheckoutRequest) (*billing.Session, error) {
	var session billing.Session
	if err := c.do(ctx, http.MethodPost, "/v1/checkout", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CheckoutReturned is called when the hosted checkout redirects back with
// success. The webhook may not have landed yet, so the next Query goes to
// the server.
func (c *Client) CheckoutReturned(userID uuid.UUID) {
	c.Invalidate(userID)
}

// Actions returns which cancellation controls to show for userID.
func (c *Client) Actions(ctx context.Context, userID uuid.UUID) (cancellation.ActionSet, error) {
	view, err := c.Query(ctx, userID, false)
	if err != nil {
		return cancellation.ActionSet{}, err
	}
	return cancellation.Actions(view), nil
}

// Cancel asks the server to cancel the caller's subscription. The cache is
// invalidated whether or not the call succeeds.
func (c *Client) Cancel(ctx context.Context, userID uuid.UUID, immediate bool) (*cancellation.Result, error) {
	defer c.Invalidate(userID)

	var res cancellation.Result
	body := struct {
		Immediate bool `json:"immediate,omitempty"`
	}{Immediate: immediate}
	if err := c.do(ctx, http.MethodPost, "/v1/subscription/cancel", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteAccount removes the caller's account and everything attached to it.
func (c *Client) DeleteAccount(ctx context.Context, userID uuid.UUID) (*accountdeletion.Report, error) {
	defer c.Invalidate(userID)

	var report accountdeletion.Report
	if err := c.do(ctx, http.MethodDelete, "/v1/account", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	token, err := c.tokens(ctx)
	if err != nil {
		return nil, errors.Join(fault.ErrAuthentication, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fault.Transient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
		apiErr.Step = body.Step
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
