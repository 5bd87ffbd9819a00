package creds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	loginPath    = "/api/login"
	loginSuccess = "SUCCESS"
)

// Provider supplies session tokens for stream authentication.
type Provider interface {
	// SessionToken returns a token valid for authenticating a new stream
	// connection.
	SessionToken(ctx context.Context) (string, error)
}

// LoginError is a login the identity service rejected: bad credentials,
// a locked account, a pending self-exclusion. Rejections are not retried.
type LoginError struct {
	Status string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login rejected: %s", e.Status)
}

// httpError is a non-2xx reply from the identity endpoint.
type httpError struct {
	statusCode int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("identity api error %d: %s", e.statusCode, http.StatusText(e.statusCode))
}

// retryable returns true if the error should trigger a retry.
func (e *httpError) retryable() bool {
	return e.statusCode >= 500 || e.statusCode == http.StatusTooManyRequests
}

// IdentityClient logs in against the identity service.
type IdentityClient struct {
	baseURL    string
	appKey     string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// Option configures an IdentityClient.
type Option func(*IdentityClient)

// NewIdentityClient creates a client for the identity login endpoint.
func NewIdentityClient(baseURL, appKey, username, password string, opts ...Option) *IdentityClient {
	c := &IdentityClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		appKey:   appKey,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter:      rate.NewLimiter(rate.Limit(1), 1),
		logger:       slog.Default(),
		maxRetries:   2,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *IdentityClient) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) Option {
	return func(c *IdentityClient) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithRateLimit caps login calls. The identity service throttles aggressive
// login traffic, so keep this low in production.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *IdentityClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *IdentityClient) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *IdentityClient) {
		c.httpClient = hc
	}
}

type loginResponse struct {
	SessionToken string `json:"sessionToken"`
	LoginStatus  string `json:"loginStatus"`
}

// SessionToken logs in and returns a fresh token. Tokens are never cached;
// every call is a full login, so a reconnect cannot reuse a token the server
// has already expired.
func (c *IdentityClient) SessionToken(ctx context.Context) (string, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			c.logger.Debug("retrying login",
				"attempt", attempt,
				"backoff", jitter,
			)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		token, err := c.login(ctx)
		if err == nil {
			return token, nil
		}

		lastErr = err

		httpErr, ok := err.(*httpError)
		if !ok || !httpErr.retryable() {
			return "", err
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// login performs one login round trip.
func (c *IdentityClient) login(ctx context.Context) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Application", c.appKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", &httpError{statusCode: resp.StatusCode}
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if lr.LoginStatus != loginSuccess {
		return "", &LoginError{Status: lr.LoginStatus}
	}
	if lr.SessionToken == "" {
		return "", fmt.Errorf("login response missing session token")
	}

	c.logger.Debug("session token issued")
	return lr.SessionToken, nil
}
