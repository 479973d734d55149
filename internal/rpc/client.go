// Package rpc is the transport layer for the platform's JSON-RPC endpoint.
// It authenticates, bounds every attempt with a timeout, retries transient
// failures with exponential backoff and classifies what went wrong.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/metrics"
	"github.com/aatumaykin/odoosweep/internal/ratelimit"
	"github.com/aatumaykin/odoosweep/internal/retry"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second

	maxErrorBody = 512
)

// Config describes one remote instance and how to talk to it.
type Config struct {
	Instance string
	URL      string
	DB       string
	Username string
	Password string
	APIKey   string // used instead of Password when set

	Timeout           time.Duration // per attempt
	MaxRetries        int           // attempts per call, authentication excluded
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	RetryRemoteErrors bool
	RequestsPerSecond float64
	UserAgent         string
}

// Connection is the authenticated session state for an instance.
type Connection struct {
	Instance        string    `json:"instance"`
	UID             int64     `json:"uid"`
	ServerVersion   string    `json:"serverVersion"`
	AuthenticatedAt time.Time `json:"authenticatedAt"`
	LastCallAt      time.Time `json:"lastCallAt"`
}

// Client talks to a single instance. It is safe for concurrent use.
type Client struct {
	cfg      Config
	endpoint string
	http     *http.Client
	limiter  *ratelimit.TokenBucket
	metrics  *metrics.Metrics
	logger   *logger.Logger
	sleep    func(context.Context, time.Duration) error
	nextID   atomic.Int64

	mu   sync.RWMutex
	conn *Connection
}

type Option func(*Client)

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.logger = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleep replaces the wait between retry attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// New validates cfg, applies defaults and returns an unauthenticated client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("instance %q: url is required", cfg.Instance)
	}
	if cfg.DB == "" {
		return nil, fmt.Errorf("instance %q: db is required", cfg.Instance)
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("instance %q: username is required", cfg.Instance)
	}
	if cfg.Password == "" && cfg.APIKey == "" {
		return nil, fmt.Errorf("instance %q: password or api_key is required", cfg.Instance)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}

	c := &Client{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.URL, "/") + endpointPath,
		http:     &http.Client{},
		limiter:  ratelimit.New(cfg.RequestsPerSecond),
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.ForInstance(cfg.Instance)

	return c, nil
}

// Instance returns the configured instance name.
func (c *Client) Instance() string {
	return c.cfg.Instance
}

// Connection returns a copy of the current session, if any.
func (c *Client) Connection() (Connection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return Connection{}, false
	}
	return *c.conn, true
}

func (c *Client) secret() string {
	if c.cfg.APIKey != "" {
		return c.cfg.APIKey
	}
	return c.cfg.Password
}

// Authenticate logs in with a single attempt and, on success, fetches the
// server version and stores the Connection.
func (c *Client) Authenticate(ctx context.Context) (Connection, error) {
	start := time.Now()
	raw, err := c.call(ctx, ServiceCommon, "authenticate",
		[]any{c.cfg.DB, c.cfg.Username, c.secret(), map[string]any{}}, false)
	if err != nil {
		var remote *RemoteMethodError
		if errors.As(err, &remote) && remote.AccessDenied() {
			return Connection{}, &AuthError{Instance: c.cfg.Instance, Reason: "access denied", Err: err}
		}
		return Connection{}, &AuthError{Instance: c.cfg.Instance, Reason: "authenticate call failed", Err: err}
	}

	uid, ok := decodeUID(raw)
	if !ok {
		c.logger.WarnCtx(ctx, "authentication rejected",
			logger.Field{Key: "db", Value: c.cfg.DB},
			logger.Field{Key: "username", Value: c.cfg.Username})
		return Connection{}, &AuthError{Instance: c.cfg.Instance, Reason: "invalid credentials"}
	}

	serverVersion := "unknown"
	if raw, err := c.call(ctx, ServiceCommon, "version", nil, true); err != nil {
		c.logger.WarnCtx(ctx, "failed to fetch server version", logger.Field{Key: "error", Value: err.Error()})
	} else {
		var info versionInfo
		if err := json.Unmarshal(raw, &info); err == nil && info.ServerVersion != "" {
			serverVersion = info.ServerVersion
		}
	}

	now := time.Now().UTC()
	conn := &Connection{
		Instance:        c.cfg.Instance,
		UID:             uid,
		ServerVersion:   serverVersion,
		AuthenticatedAt: now,
		LastCallAt:      now,
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.InfoCtx(ctx, "authenticated",
		logger.Field{Key: "uid", Value: uid},
		logger.Field{Key: "server_version", Value: serverVersion},
		logger.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()})

	return *conn, nil
}

// decodeUID accepts a positive integer uid; false, null and 0 mean rejection.
func decodeUID(raw json.RawMessage) (int64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "false" || s == "null" {
		return 0, false
	}
	uid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || uid <= 0 {
		return 0, false
	}
	return uid, true
}

// ExecuteKw invokes model.method with positional args and keyword args.
func (c *Client) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	conn, ok := c.Connection()
	if !ok {
		return nil, &AuthError{Instance: c.cfg.Instance, Reason: "not authenticated"}
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	return c.call(ctx, ServiceObject, "execute_kw",
		[]any{c.cfg.DB, conn.UID, c.secret(), model, method, args, kwargs}, true)
}

// RenderReport renders a named report for ids. The platform answers with
// base64 content, either bare or inside an object.
func (c *Client) RenderReport(ctx context.Context, report string, ids []int64, data, reportCtx map[string]any) (json.RawMessage, error) {
	conn, ok := c.Connection()
	if !ok {
		return nil, &AuthError{Instance: c.cfg.Instance, Reason: "not authenticated"}
	}
	if data == nil {
		data = map[string]any{}
	}
	if reportCtx == nil {
		reportCtx = map[string]any{}
	}

	return c.call(ctx, ServiceReport, "render_report",
		[]any{c.cfg.DB, conn.UID, c.secret(), report, ids, data, reportCtx}, true)
}

// Close drops the session and idle connections.
func (c *Client) Close() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	c.http.CloseIdleConnections()
}

// call runs one logical call; retryable=false limits it to one attempt.
func (c *Client) call(ctx context.Context, service, method string, args []any, retryable bool) (json.RawMessage, error) {
	start := time.Now()
	label := methodLabel(service, method, args)

	attempts := c.cfg.MaxRetries
	if !retryable {
		attempts = 1
	}

	result, err := retry.Do(ctx, retry.Config{
		MaxAttempts:    attempts,
		InitialBackoff: c.cfg.InitialBackoff,
		MaxBackoff:     c.cfg.MaxBackoff,
		Retryable:      Classifier(c.cfg.RetryRemoteErrors),
		Sleep:          c.sleep,
		OnRetry: func(attempt int, backoff time.Duration, err error) {
			c.metrics.RecordRetry(c.cfg.Instance, label)
			c.logger.WarnCtx(ctx, "rpc attempt failed, retrying",
				logger.Field{Key: "method", Value: label},
				logger.Field{Key: "attempt", Value: attempt + 1},
				logger.Field{Key: "max_attempts", Value: attempts},
				logger.Field{Key: "backoff_ms", Value: backoff.Milliseconds()},
				logger.Field{Key: "error", Value: err.Error()})
		},
	}, func(ctx context.Context, attempt int) (json.RawMessage, error) {
		return c.doOnce(ctx, service, method, args)
	})

	c.metrics.RecordCall(c.cfg.Instance, service, label, outcome(err), time.Since(start))

	if err != nil {
		c.logger.DebugCtx(ctx, "rpc call failed",
			logger.Field{Key: "method", Value: label},
			logger.Field{Key: "error", Value: err.Error()})
		return nil, err
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.LastCallAt = time.Now().UTC()
	}
	c.mu.Unlock()

	return result, nil
}

func (c *Client) doOnce(ctx context.Context, service, method string, args []any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(newRequest(c.nextID.Add(1), service, method, args))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{
			Service: service,
			Method:  method,
			Timeout: errors.Is(attemptCtx.Err(), context.DeadlineExceeded),
			Err:     err,
		}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{
			Service: service,
			Method:  method,
			Timeout: errors.Is(attemptCtx.Err(), context.DeadlineExceeded),
			Err:     fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &TransportError{
			Service:    service,
			Method:     method,
			StatusCode: httpResp.StatusCode,
			Err:        errors.New(truncate(string(respBody), maxErrorBody)),
		}
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &TransportError{
			Service: service,
			Method:  method,
			Err:     fmt.Errorf("failed to unmarshal response: %w", err),
		}
	}

	if resp.Error != nil {
		return nil, newRemoteError(service, method, resp.Error)
	}

	return resp.Result, nil
}

// methodLabel names object calls by the model method rather than execute_kw.
func methodLabel(service, method string, args []any) string {
	if service == ServiceObject && method == "execute_kw" && len(args) > 4 {
		if m, ok := args[4].(string); ok {
			return m
		}
	}
	return method
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsAuth(err):
		return "auth_error"
	case IsRemote(err):
		return "remote_error"
	case IsTransport(err):
		return "transport_error"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
