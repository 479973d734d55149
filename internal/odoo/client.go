// Package odoo is the operation façade over the RPC transport. Every
// operation returns an Envelope instead of an error: callers branch on
// Envelope.OK and read a closed ErrorCode on failure.
package odoo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aatumaykin/odoosweep/internal/filter"
	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/rpc"
)

// Caller is the transport contract the façade needs. *rpc.Client
// implements it.
type Caller interface {
	Instance() string
	Authenticate(ctx context.Context) (rpc.Connection, error)
	Connection() (rpc.Connection, bool)
	ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error)
	RenderReport(ctx context.Context, report string, ids []int64, data, reportCtx map[string]any) (json.RawMessage, error)
}

// Options tunes search and read operations. Zero values are omitted.
type Options struct {
	Fields  []string
	Limit   int
	Offset  int
	Order   string
	Context map[string]any
}

// Record is one row returned by read operations.
type Record map[string]any

// ID returns the record id, or 0 when absent.
func (r Record) ID() int64 {
	switch v := r["id"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// String returns a string field; false and missing values yield "".
func (r Record) String(field string) string {
	if s, ok := r[field].(string); ok {
		return s
	}
	return ""
}

// FieldInfo is the subset of fields_get attributes we expose.
type FieldInfo struct {
	Type     string `json:"type"`
	String   string `json:"string"`
	Required bool   `json:"required"`
	Readonly bool   `json:"readonly"`
	Relation string `json:"relation,omitempty"`
}

// ModelMetadata describes a collection's schema.
type ModelMetadata struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Fields      map[string]FieldInfo `json:"fields"`
}

// FieldNames returns the sorted field names.
func (m ModelMetadata) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Client is the façade for one instance.
type Client struct {
	caller Caller
	logger *logger.Logger
	authMu sync.Mutex
}

func NewClient(caller Caller, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{caller: caller, logger: log.ForInstance(caller.Instance())}
}

// Instance returns the instance name of the underlying transport.
func (c *Client) Instance() string {
	return c.caller.Instance()
}

// Connected reports whether a session is established.
func (c *Client) Connected() bool {
	_, ok := c.caller.Connection()
	return ok
}

// Connection returns the current session, if any.
func (c *Client) Connection() (rpc.Connection, bool) {
	return c.caller.Connection()
}

// Authenticate establishes a session. A rejected login is AUTH_FAILED, any
// other failure AUTH_ERROR.
func (c *Client) Authenticate(ctx context.Context) Envelope[rpc.Connection] {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	return c.authenticate(ctx)
}

func (c *Client) authenticate(ctx context.Context) Envelope[rpc.Connection] {
	start := time.Now()

	conn, err := c.caller.Authenticate(ctx)
	meta := Metadata{ElapsedMs: time.Since(start).Milliseconds()}
	if err != nil {
		code := CodeAuthError
		var authErr *rpc.AuthError
		if errors.As(err, &authErr) && authErr.Rejected() {
			code = CodeAuthFailed
		}
		c.logger.ErrorCtx(ctx, "authentication failed", err, logger.Field{Key: "code", Value: code})
		return fail[rpc.Connection](code, err, meta)
	}

	meta.ServerVersion = conn.ServerVersion
	return ok(conn, meta)
}

// ensureAuthenticated authenticates lazily, once, for concurrent callers.
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if c.Connected() {
		return nil
	}

	c.authMu.Lock()
	defer c.authMu.Unlock()

	if c.Connected() {
		return nil
	}
	env := c.authenticate(ctx)
	if !env.OK() {
		return env.Err
	}
	return nil
}

func (c *Client) meta(start time.Time) Metadata {
	m := Metadata{ElapsedMs: time.Since(start).Milliseconds()}
	if conn, ok := c.caller.Connection(); ok {
		m.ServerVersion = conn.ServerVersion
	}
	return m
}

// call authenticates if needed, runs execute_kw and decodes into out.
func (c *Client) call(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return err
	}

	raw, err := c.caller.ExecuteKw(ctx, model, method, args, kwargs)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s.%s result: %w", model, method, err)
	}
	return nil
}

func searchKwargs(opts Options, withFields bool) map[string]any {
	kwargs := map[string]any{}
	if withFields && len(opts.Fields) > 0 {
		kwargs["fields"] = opts.Fields
	}
	if opts.Limit > 0 {
		kwargs["limit"] = opts.Limit
	}
	if opts.Offset > 0 {
		kwargs["offset"] = opts.Offset
	}
	if opts.Order != "" {
		kwargs["order"] = opts.Order
	}
	if opts.Context != nil {
		kwargs["context"] = opts.Context
	}
	return kwargs
}

func contextKwargs(reqCtx map[string]any) map[string]any {
	if reqCtx == nil {
		return nil
	}
	return map[string]any{"context": reqCtx}
}

// Search returns the ids of records in model matching pred.
func (c *Client) Search(ctx context.Context, model string, pred filter.Predicate, opts Options) Envelope[[]int64] {
	start := time.Now()
	if err := filter.Validate(pred); err != nil {
		return fail[[]int64](CodeSearchError, err, c.meta(start))
	}

	var ids []int64
	if err := c.call(ctx, model, "search", []any{filter.Wire(pred)}, searchKwargs(opts, false), &ids); err != nil {
		return fail[[]int64](CodeSearchError, err, c.meta(start))
	}
	if ids == nil {
		ids = []int64{}
	}

	meta := c.meta(start)
	meta.RecordCount = intPtr(len(ids))
	return ok(ids, meta)
}

// SearchRead returns records matching pred with the requested fields.
func (c *Client) SearchRead(ctx context.Context, model string, pred filter.Predicate, opts Options) Envelope[[]Record] {
	start := time.Now()
	if err := filter.Validate(pred); err != nil {
		return fail[[]Record](CodeSearchReadError, err, c.meta(start))
	}

	var records []Record
	if err := c.call(ctx, model, "search_read", []any{filter.Wire(pred)}, searchKwargs(opts, true), &records); err != nil {
		return fail[[]Record](CodeSearchReadError, err, c.meta(start))
	}
	if records == nil {
		records = []Record{}
	}

	meta := c.meta(start)
	meta.RecordCount = intPtr(len(records))
	return ok(records, meta)
}

// Read fetches ids from model.
func (c *Client) Read(ctx context.Context, model string, ids []int64, opts Options) Envelope[[]Record] {
	start := time.Now()

	kwargs := map[string]any{}
	if len(opts.Fields) > 0 {
		kwargs["fields"] = opts.Fields
	}
	if opts.Context != nil {
		kwargs["context"] = opts.Context
	}

	var records []Record
	if err := c.call(ctx, model, "read", []any{ids}, kwargs, &records); err != nil {
		return fail[[]Record](CodeReadError, err, c.meta(start))
	}
	if records == nil {
		records = []Record{}
	}

	meta := c.meta(start)
	meta.RecordCount = intPtr(len(records))
	return ok(records, meta)
}

// Create inserts one record and returns its id.
func (c *Client) Create(ctx context.Context, model string, values map[string]any, reqCtx map[string]any) Envelope[int64] {
	start := time.Now()
	if len(values) == 0 {
		return fail[int64](CodeCreateError, errors.New("values must not be empty"), c.meta(start))
	}

	var id int64
	if err := c.call(ctx, model, "create", []any{values}, contextKwargs(reqCtx), &id); err != nil {
		return fail[int64](CodeCreateError, err, c.meta(start))
	}
	return ok(id, c.meta(start))
}

// Update writes values to every id.
func (c *Client) Update(ctx context.Context, model string, ids []int64, values map[string]any, reqCtx map[string]any) Envelope[bool] {
	start := time.Now()
	if len(ids) == 0 {
		return fail[bool](CodeUpdateError, errors.New("ids must not be empty"), c.meta(start))
	}
	if len(values) == 0 {
		return fail[bool](CodeUpdateError, errors.New("values must not be empty"), c.meta(start))
	}

	var result bool
	if err := c.call(ctx, model, "write", []any{ids, values}, contextKwargs(reqCtx), &result); err != nil {
		return fail[bool](CodeUpdateError, err, c.meta(start))
	}

	meta := c.meta(start)
	meta.RecordCount = intPtr(len(ids))
	return ok(result, meta)
}

// Delete removes every id.
func (c *Client) Delete(ctx context.Context, model string, ids []int64, reqCtx map[string]any) Envelope[bool] {
	start := time.Now()
	if len(ids) == 0 {
		return fail[bool](CodeDeleteError, errors.New("ids must not be empty"), c.meta(start))
	}

	var result bool
	if err := c.call(ctx, model, "unlink", []any{ids}, contextKwargs(reqCtx), &result); err != nil {
		return fail[bool](CodeDeleteError, err, c.meta(start))
	}

	meta := c.meta(start)
	meta.RecordCount = intPtr(len(ids))
	return ok(result, meta)
}

// Count returns the number of records matching pred. It takes no paging.
func (c *Client) Count(ctx context.Context, model string, pred filter.Predicate, reqCtx map[string]any) Envelope[int] {
	start := time.Now()
	if err := filter.Validate(pred); err != nil {
		return fail[int](CodeCountError, err, c.meta(start))
	}

	var count int
	if err := c.call(ctx, model, "search_count", []any{filter.Wire(pred)}, contextKwargs(reqCtx), &count); err != nil {
		return fail[int](CodeCountError, err, c.meta(start))
	}
	return ok(count, c.meta(start))
}

// Execute invokes an arbitrary model method and returns the raw result.
func (c *Client) Execute(ctx context.Context, model, method string, args []any, kwargs map[string]any) Envelope[json.RawMessage] {
	start := time.Now()

	var raw json.RawMessage
	if err := c.call(ctx, model, method, args, kwargs, &raw); err != nil {
		return fail[json.RawMessage](CodeExecuteError, err, c.meta(start))
	}
	return ok(raw, c.meta(start))
}

// ExecuteAction runs a button or workflow method on ids.
func (c *Client) ExecuteAction(ctx context.Context, model, action string, ids []int64, reqCtx map[string]any) Envelope[json.RawMessage] {
	return c.Execute(ctx, model, action, []any{ids}, contextKwargs(reqCtx))
}

// RenderReport renders a named report and returns its base64 content.
func (c *Client) RenderReport(ctx context.Context, report string, ids []int64, data, reportCtx map[string]any) Envelope[string] {
	start := time.Now()
	if err := c.ensureAuthenticated(ctx); err != nil {
		return fail[string](CodeReportError, err, c.meta(start))
	}

	raw, err := c.caller.RenderReport(ctx, report, ids, data, reportCtx)
	if err != nil {
		return fail[string](CodeReportError, err, c.meta(start))
	}

	content, err := decodeReport(raw)
	if err != nil {
		return fail[string](CodeReportError, err, c.meta(start))
	}
	return ok(content, c.meta(start))
}

// decodeReport accepts a bare base64 string or {"result": "<base64>"}.
func decodeReport(raw json.RawMessage) (string, error) {
	var content string
	if err := json.Unmarshal(raw, &content); err != nil {
		var wrapped struct {
			Result string `json:"result"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return "", fmt.Errorf("unexpected report payload: %w", err)
		}
		content = wrapped.Result
	}
	if _, err := base64.StdEncoding.DecodeString(content); err != nil {
		return "", fmt.Errorf("report content is not base64: %w", err)
	}
	return content, nil
}

// ModelMetadata returns field definitions and the model's display name.
func (c *Client) ModelMetadata(ctx context.Context, model string) Envelope[ModelMetadata] {
	start := time.Now()

	var fields map[string]FieldInfo
	err := c.call(ctx, model, "fields_get", []any{},
		map[string]any{"attributes": []string{"type", "string", "required", "readonly", "relation"}}, &fields)
	if err != nil {
		return fail[ModelMetadata](CodeMetadataError, err, c.meta(start))
	}

	md := ModelMetadata{Name: model, Description: model, Fields: fields}

	var models []Record
	err = c.call(ctx, "ir.model", "search_read",
		[]any{filter.Wire(filter.Where("model", filter.Eq, model))},
		map[string]any{"fields": []string{"name"}, "limit": 1}, &models)
	if err != nil {
		c.logger.Debug("model description unavailable",
			logger.Field{Key: "model", Value: model},
			logger.Field{Key: "error", Value: err.Error()})
	} else if len(models) > 0 && models[0].String("name") != "" {
		md.Description = models[0].String("name")
	}

	meta := c.meta(start)
	meta.RecordCount = intPtr(len(fields))
	return ok(md, meta)
}
