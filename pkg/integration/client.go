package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/foodsync-backend/pkg/logger"
	"github.com/angelmondragon/foodsync-backend/pkg/metrics"
)

const maxResponseBytes = 32 << 20

// Credentials are pulled from the settings snapshot on every token refresh.
type Credentials struct {
	APIKey string
	Login  string
}

// CredentialSource supplies the current credentials for a token refresh.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(ctx context.Context) (Credentials, error)

func (f CredentialFunc) Credentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// Options configures a Client.
type Options struct {
	Name               string
	BaseURL            string
	TokenPath          string
	Timeout            time.Duration
	RateLimitPerSecond float64
	RateLimitBurst     int
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	HTTPClient         *http.Client
	Logger             *logger.Logger
	Metrics            *metrics.SyncMetrics
}

// Client is an authenticated JSON-over-HTTP client with a cached bearer
// token, client-side pacing and a circuit breaker.
type Client struct {
	name      string
	baseURL   string
	tokenPath string
	http      *http.Client
	creds     CredentialSource
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[any]
	logg      *logger.Logger

	mu    sync.Mutex
	token string
}

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

func (t tokenResponse) value() string {
	if t.Token != "" {
		return t.Token
	}
	return t.AccessToken
}

// NewClient builds a client for one external system.
func NewClient(opts Options, creds CredentialSource) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("%s base url is required", opts.Name)
	}
	if opts.TokenPath == "" {
		return nil, fmt.Errorf("%s token path is required", opts.Name)
	}
	if creds == nil {
		return nil, fmt.Errorf("%s credential source is required", opts.Name)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logg := opts.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	limit := rate.Inf
	if opts.RateLimitPerSecond > 0 {
		limit = rate.Limit(opts.RateLimitPerSecond)
	}
	burst := opts.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openTimeout := opts.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	name := opts.Name
	observer := opts.Metrics
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			observer.SetBreakerOpen(breakerName, to == gobreaker.StateOpen)
			logg.Warn(logg.WithFields(context.Background(), map[string]any{
				"integration": breakerName,
				"from":        from.String(),
				"to":          to.String(),
			}), "integration circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Rejections caused by our own request are not outages.
			switch KindOf(err) {
			case KindValidation, KindCredential:
				return true
			}
			return false
		},
	})

	return &Client{
		name:      name,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		tokenPath: opts.TokenPath,
		http:      httpClient,
		creds:     creds,
		limiter:   rate.NewLimiter(limit, burst),
		breaker:   breaker,
		logg:      logg,
	}, nil
}

// Name identifies the integration in logs and metrics.
func (c *Client) Name() string {
	return c.name
}

// Request performs an authenticated call and decodes the JSON response into
// out when it is non-nil. Every failure is an *Error.
func (c *Client) Request(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Code: CodeTimeout, Err: err}
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.requestWithAuth(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Code: CodeCircuitOpen, Err: err}
	}
	return err
}

// InvalidateToken drops the cached token so the next call re-authenticates.
func (c *Client) InvalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Authenticate forces a token refresh; used by connection tests.
func (c *Client) Authenticate(ctx context.Context) error {
	c.InvalidateToken()
	_, err := c.currentToken(ctx)
	return err
}

func (c *Client) requestWithAuth(ctx context.Context, method, path string, body, out any) error {
	token, err := c.currentToken(ctx)
	if err != nil {
		return err
	}
	err = c.do(ctx, method, path, token, body, out)

	var ie *Error
	if !errors.As(err, &ie) || ie.Status != http.StatusUnauthorized {
		return err
	}

	c.dropToken(token)
	token, err = c.currentToken(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, token, body, out)
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	token, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) dropToken(stale string) {
	c.mu.Lock()
	if c.token == stale {
		c.token = ""
	}
	c.mu.Unlock()
}

// fetchToken tries each credential shape in order and keeps the first that
// yields a token. A blocked login stops the walk immediately.
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return "", err
	}
	shapes := credentialShapes(creds)
	if len(shapes) == 0 {
		return "", NotConfigured(c.name + " credentials are not configured")
	}

	var lastErr error
	for _, shape := range shapes {
		var resp tokenResponse
		err := c.do(ctx, http.MethodPost, c.tokenPath, "", shape, &resp)
		if err == nil && resp.value() != "" {
			return resp.value(), nil
		}
		if err == nil {
			err = &Error{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Err: errors.New("token missing in auth response")}
		}
		if KindOf(err) == KindCredential {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func credentialShapes(creds Credentials) []map[string]string {
	login := strings.TrimSpace(creds.Login)
	key := strings.TrimSpace(creds.APIKey)
	shapes := []map[string]string{}
	if key != "" && login != "" {
		shapes = append(shapes, map[string]string{"apiKey": key, "apiLogin": login})
	}
	if login != "" {
		shapes = append(shapes, map[string]string{"apiLogin": login})
	} else if key != "" {
		shapes = append(shapes, map[string]string{"apiKey": key})
	}
	return shapes
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &Error{Code: CodeDecode, Err: fmt.Errorf("encode request: %w", err)}
		}
		payload = encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &Error{Code: CodeNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(ctx, err)
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"integration": c.name,
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})

	if resp.StatusCode >= http.StatusBadRequest {
		failure := statusError(resp, raw)
		c.logg.Warn(c.logg.WithFields(logCtx, map[string]any{
			"request":  string(Redact(payload)),
			"response": string(Redact(raw)),
			"code":     failure.Code,
		}), "integration request failed")
		return failure
	}
	c.logg.Debug(logCtx, "integration request completed")

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Status: resp.StatusCode, Code: CodeDecode, Response: truncate(string(raw), 2048), Err: err}
	}
	return nil
}

func transportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Code: CodeTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Code: CodeTimeout, Err: err}
	}
	return &Error{Code: CodeNetwork, Err: err}
}

func statusError(resp *http.Response, raw []byte) *Error {
	text := string(raw)
	failure := &Error{Status: resp.StatusCode, Code: CodeHTTP, Response: truncate(text, 2048)}
	switch {
	case loginBlocked(text):
		failure.Code = CodeLoginBlocked
	case resp.StatusCode == http.StatusTooManyRequests:
		failure.Code = CodeRateLimited
		failure.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode == http.StatusUnauthorized:
		failure.Code = CodeUnauthorized
	}
	return failure
}

func loginBlocked(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "blocked") && strings.Contains(lower, "login")
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
