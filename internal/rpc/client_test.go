package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/odoosweep/internal/metrics"
)

// platform is a scripted JSON-RPC endpoint. handle returns either a result,
// a JSON-RPC error or a bare HTTP status.
type platform struct {
	t      *testing.T
	mu     sync.Mutex
	calls  []requestParams
	handle func(r *http.Request, p requestParams, n int) (result any, rpcErr *responseError, status int)
}

func (p *platform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != endpointPath {
		http.NotFound(w, r)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.t.Errorf("bad request body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.calls = append(p.calls, req.Params)
	n := len(p.calls)
	p.mu.Unlock()

	result, rpcErr, status := p.handle(r, req.Params, n)
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("upstream unavailable"))
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (p *platform) methodCalls(method string) []requestParams {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []requestParams
	for _, c := range p.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// loginOK answers authenticate and version; other calls go to next.
func loginOK(next func(r *http.Request, p requestParams, n int) (any, *responseError, int)) func(*http.Request, requestParams, int) (any, *responseError, int) {
	return func(r *http.Request, p requestParams, n int) (any, *responseError, int) {
		switch p.Method {
		case "authenticate":
			return 2, nil, 0
		case "version":
			return map[string]any{"server_version": "17.0"}, nil, 0
		}
		if next == nil {
			return true, nil, 0
		}
		return next(r, p, n)
	}
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, p *platform, cfg Config, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()

	p.t = t
	server := httptest.NewServer(p)
	t.Cleanup(server.Close)

	cfg.URL = server.URL
	if cfg.Instance == "" {
		cfg.Instance = "test"
	}
	if cfg.DB == "" {
		cfg.DB = "odoo"
	}
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	if cfg.Password == "" && cfg.APIKey == "" {
		cfg.Password = "secret"
	}

	rec := &sleepRecorder{}
	client, err := New(cfg, append([]Option{WithSleep(rec.sleep)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client, rec
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing url", Config{DB: "d", Username: "u", Password: "p"}},
		{"missing db", Config{URL: "http://x", Username: "u", Password: "p"}},
		{"missing username", Config{URL: "http://x", DB: "d", Password: "p"}},
		{"missing secret", Config{URL: "http://x", DB: "d", Username: "u"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}

	c, err := New(Config{URL: "http://x/", DB: "d", Username: "u", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "http://x/jsonrpc", c.endpoint)
	assert.Equal(t, DefaultTimeout, c.cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, c.cfg.MaxRetries)
}

func TestAuthenticate_Success(t *testing.T) {
	p := &platform{handle: loginOK(nil)}
	client, _ := newTestClient(t, p, Config{})

	_, ok := client.Connection()
	assert.False(t, ok)

	conn, err := client.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), conn.UID)
	assert.Equal(t, "17.0", conn.ServerVersion)
	assert.Equal(t, "test", conn.Instance)

	cached, ok := client.Connection()
	require.True(t, ok)
	assert.Equal(t, conn.UID, cached.UID)

	auth := p.methodCalls("authenticate")
	require.Len(t, auth, 1)
	assert.Equal(t, ServiceCommon, auth[0].Service)
	assert.Equal(t, []any{"odoo", "admin", "secret", map[string]any{}}, auth[0].Args)
}

func TestAuthenticate_UsesAPIKey(t *testing.T) {
	p := &platform{handle: loginOK(nil)}
	client, _ := newTestClient(t, p, Config{Password: "pw", APIKey: "api-key-123"})

	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	auth := p.methodCalls("authenticate")
	require.Len(t, auth, 1)
	assert.Equal(t, "api-key-123", auth[0].Args[2])
}

func TestAuthenticate_RejectedIsNotRetried(t *testing.T) {
	p := &platform{handle: func(r *http.Request, params requestParams, n int) (any, *responseError, int) {
		return false, nil, 0
	}}
	client, rec := newTestClient(t, p, Config{MaxRetries: 3})

	_, err := client.Authenticate(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "invalid credentials", authErr.Reason)
	assert.Len(t, p.methodCalls("authenticate"), 1)
	assert.Empty(t, rec.delays)

	_, ok := client.Connection()
	assert.False(t, ok)
}

func TestAuthenticate_TransportFailureIsNotRetried(t *testing.T) {
	p := &platform{handle: func(r *http.Request, params requestParams, n int) (any, *responseError, int) {
		return nil, nil, http.StatusServiceUnavailable
	}}
	client, rec := newTestClient(t, p, Config{MaxRetries: 3})

	_, err := client.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.True(t, IsTransport(err))
	assert.Len(t, p.methodCalls("authenticate"), 1)
	assert.Empty(t, rec.delays)
}

func TestAuthenticate_AccessDenied(t *testing.T) {
	p := &platform{handle: func(r *http.Request, params requestParams, n int) (any, *responseError, int) {
		re := &responseError{Code: 200, Message: "Odoo Server Error"}
		re.Data.Name = "odoo.exceptions.AccessDenied"
		re.Data.Message = "Access Denied"
		return nil, re, 0
	}}
	client, _ := newTestClient(t, p, Config{})

	_, err := client.Authenticate(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "access denied", authErr.Reason)
}

func TestExecuteKw_RequiresConnection(t *testing.T) {
	p := &platform{handle: loginOK(nil)}
	client, _ := newTestClient(t, p, Config{})

	_, err := client.ExecuteKw(context.Background(), "res.partner", "search", nil, nil)
	assert.True(t, IsAuth(err))
	assert.Empty(t, p.methodCalls("execute_kw"))
}

func TestExecuteKw_WireArguments(t *testing.T) {
	p := &platform{handle: loginOK(func(r *http.Request, params requestParams, n int) (any, *responseError, int) {
		return []int{7, 8}, nil, 0
	})}
	client, _ := newTestClient(t, p, Config{})

	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	raw, err := client.ExecuteKw(context.Background(), "res.partner", "search",
		[]any{[]any{[]any{"name", "like", "Test%"}}},
		map[string]any{"limit": 10})
	require.NoError(t, err)

	var ids []int64
	require.NoError(t, json.Unmarshal(raw, &ids))
	assert.Equal(t, []int64{7, 8}, ids)

	calls := p.methodCalls("execute_kw")
	require.Len(t, calls, 1)
	args := calls[0].Args
	require.Len(t, args, 7)
	assert.Equal(t, ServiceObject, calls[0].Service)
	assert.Equal(t, "odoo", args[0])
	assert.Equal(t, 2.0, args[1])
	assert.Equal(t, "secret", args[2])
	assert.Equal(t, "res.partner", args[3])
	assert.Equal(t, "search", args[4])
	assert.Equal(t, []any{[]any{[]any{"name", "like", "Test%"}}}, args[5])
	assert.Equal(t, map[string]any{"limit": 10.0}, args[6])
}

func TestExecuteKw_RetriesTimeoutsWithExponentialBackoff(t *testing.T) {
	p := &platform{handle: loginOK(func(r *http.Request, params requestParams, n int) (any, *responseError, int) {
		// Calls 3 and 4 are the first two execute_kw attempts.
		if params.Method == "execute_kw" && n <= 4 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return nil, nil, 0
		}
		return 5, nil, 0
	})}
	client, rec := newTestClient(t, p, Config{MaxRetries: 3, Timeout: 50 * time.Millisecond})

	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	raw, err := client.ExecuteKw(context.Background(), "res.partner", "search_count", []any{[]any{}}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, "5", string(raw))

	assert.Len(t, p.methodCalls("execute_kw"), 3)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)

	var waited time.Duration
	for _, d := range rec.delays {
		waited += d
	}
	assert.GreaterOrEqual(t, waited, 3*time.Second)
}

func TestExecuteKw_ExhaustedTransportErrors(t *testing.T) {
	p := &platform{handle: loginOK(func(r *http.Request, params requestParams, n int) (any, *responseError, int) {
		return nil, nil, http.StatusBadGateway
	})}
	client, rec := newTestClient(t, p, Config{MaxRetries: 3})

	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	_, err = client.ExecuteKw(context.Background(), "sale.order", "unlink", []any{[]int64{1}}, nil)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	assert.Len(t, p.methodCalls("execute_kw"), 3)
	assert.Len(t, rec.delays, 2)
}

func TestExecuteKw_RemoteErrorNotRetriedByDefault(t *testing.T) {
	remote := func(r *http.Request, params requestParams, n int) (any, *responseError, int) {
		re := &responseError{Code: 200, Message: "Odoo Server Error"}
		re.Data.Name = "odoo.exceptions.UserError"
		re.Data.Message = "You cannot delete a posted journal entry."
		return nil, re, 0
	}

	t.Run("default", func(t *testing.T) {
		p := &platform{handle: loginOK(remote)}
		client, rec := newTestClient(t, p, Config{MaxRetries: 3})
		_, err := client.Authenticate(context.Background())
		require.NoError(t, err)

		_, err = client.ExecuteKw(context.Background(), "account.move", "unlink", []any{[]int64{1}}, nil)

		var re *RemoteMethodError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "You cannot delete a posted journal entry.", re.Message)
		assert.Equal(t, "odoo.exceptions.UserError", re.Exception)
		assert.Len(t, p.methodCalls("execute_kw"), 1)
		assert.Empty(t, rec.delays)
	})

	t.Run("retry enabled", func(t *testing.T) {
		p := &platform{handle: loginOK(remote)}
		client, _ := newTestClient(t, p, Config{MaxRetries: 3, RetryRemoteErrors: true})
		_, err := client.Authenticate(context.Background())
		require.NoError(t, err)

		_, err = client.ExecuteKw(context.Background(), "account.move", "unlink", []any{[]int64{1}}, nil)
		assert.True(t, IsRemote(err))
		assert.Len(t, p.methodCalls("execute_kw"), 3)
	})
}

func TestExecuteKw_ContextCancelled(t *testing.T) {
	p := &platform{handle: loginOK(nil)}
	client, _ := newTestClient(t, p, Config{})
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.ExecuteKw(ctx, "res.partner", "search", nil, nil)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestRenderReport_Args(t *testing.T) {
	p := &platform{handle: loginOK(func(r *http.Request, params requestParams, n int) (any, *responseError, int) {
		return map[string]any{"result": "JVBERi0=", "format": "pdf"}, nil, 0
	})}
	client, _ := newTestClient(t, p, Config{})
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	_, err = client.RenderReport(context.Background(), "account.report_invoice", []int64{3}, nil, nil)
	require.NoError(t, err)

	calls := p.methodCalls("render_report")
	require.Len(t, calls, 1)
	assert.Equal(t, ServiceReport, calls[0].Service)
	assert.Equal(t, "account.report_invoice", calls[0].Args[3])
	assert.Equal(t, []any{3.0}, calls[0].Args[4])
}

func TestClient_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)

	p := &platform{handle: loginOK(func(r *http.Request, params requestParams, n int) (any, *responseError, int) {
		return []int{}, nil, 0
	})}
	client, _ := newTestClient(t, p, Config{Instance: "prod"}, WithMetrics(m))
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	_, err = client.ExecuteKw(context.Background(), "res.partner", "search", nil, nil)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "test_rpc_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "authenticate, version and search series")
}

func TestDecodeUID(t *testing.T) {
	tests := []struct {
		raw  string
		uid  int64
		want bool
	}{
		{"2", 2, true},
		{"false", 0, false},
		{"null", 0, false},
		{"0", 0, false},
		{`"2"`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			uid, ok := decodeUID(json.RawMessage(tt.raw))
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.uid, uid)
		})
	}
}

func TestClassifier(t *testing.T) {
	classify := Classifier(false)

	assert.False(t, classify(nil))
	assert.False(t, classify(&AuthError{Instance: "x", Reason: "r"}))
	assert.False(t, classify(&RemoteMethodError{Message: "denied"}))
	assert.True(t, classify(&TransportError{Timeout: true, Err: context.DeadlineExceeded}))
	assert.True(t, classify(&TransportError{StatusCode: 503, Err: errors.New("x")}))
	assert.True(t, classify(&TransportError{StatusCode: 429, Err: errors.New("x")}))
	assert.False(t, classify(&TransportError{StatusCode: 404, Err: errors.New("x")}))
	assert.False(t, classify(context.Canceled))

	assert.True(t, Classifier(true)(&RemoteMethodError{Message: "serialization failure"}))
}

func TestClient_SendsUserAgent(t *testing.T) {
	var mu sync.Mutex
	var agents []string
	p := &platform{}
	p.handle = func(r *http.Request, params requestParams, n int) (any, *responseError, int) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()
		return loginOK(nil)(r, params, n)
	}

	client, _ := newTestClient(t, p, Config{UserAgent: "odoosweep/test"})
	_, err := client.Authenticate(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, agents)
	for _, a := range agents {
		assert.Equal(t, "odoosweep/test", a)
	}
}
