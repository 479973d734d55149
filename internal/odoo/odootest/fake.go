// Package odootest provides an in-memory platform that implements
// odoo.Caller. It evaluates filters against stored records so engine tests
// observe real locate and act semantics without a server.
package odootest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aatumaykin/odoosweep/internal/filter"
	"github.com/aatumaykin/odoosweep/internal/rpc"
)

// Call records one execute_kw invocation.
type Call struct {
	Model  string
	Method string
	Args   []any
	Kwargs map[string]any
}

// MethodFunc handles a custom model method.
type MethodFunc func(args []any, kwargs map[string]any) (any, error)

var readOnlyMethods = map[string]bool{
	"search":       true,
	"search_read":  true,
	"read":         true,
	"search_count": true,
	"fields_get":   true,
}

// Fake is a scripted platform instance.
type Fake struct {
	Name          string
	ServerVersion string

	// RejectAuth makes Authenticate fail as invalid credentials.
	RejectAuth bool

	mu        sync.Mutex
	conn      *rpc.Connection
	records   map[string][]map[string]any
	nextID    int64
	calls     []Call
	authCalls int
	failures  map[string]error
	methods   map[string]MethodFunc
	reports   map[string]string
}

func New(name string) *Fake {
	return &Fake{
		Name:          name,
		ServerVersion: "17.0",
		records:       make(map[string][]map[string]any),
		failures:      make(map[string]error),
		methods:       make(map[string]MethodFunc),
		reports:       make(map[string]string),
	}
}

func key(model, method string) string {
	return model + "/" + method
}

// Add stores a record and returns its id. An explicit "id" field is kept.
func (f *Fake) Add(model string, fields map[string]any) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		rec[k] = v
	}

	if n, ok := toFloat(fields["id"]); ok {
		id := int64(n)
		rec["id"] = id
		if id > f.nextID {
			f.nextID = id
		}
		f.records[model] = append(f.records[model], rec)
		return id
	}

	f.nextID++
	rec["id"] = f.nextID
	f.records[model] = append(f.records[model], rec)
	return f.nextID
}

// Fail makes every call of model.method return err.
func (f *Fake) Fail(model, method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key(model, method)] = err
}

// Handle installs a handler for a custom model method.
func (f *Fake) Handle(model, method string, fn MethodFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods[key(model, method)] = fn
}

// SetReport registers base64 content returned for a report name.
func (f *Fake) SetReport(name, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[name] = content
}

// IDs returns the ids currently stored for model.
func (f *Fake) IDs(model string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int64, 0, len(f.records[model]))
	for _, rec := range f.records[model] {
		ids = append(ids, rec["id"].(int64))
	}
	return ids
}

// Get returns a copy of a stored record.
func (f *Fake) Get(model string, id int64) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range f.records[model] {
		if rec["id"].(int64) == id {
			out := make(map[string]any, len(rec))
			for k, v := range rec {
				out[k] = v
			}
			return out, true
		}
	}
	return nil, false
}

// Calls returns every recorded call.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// MutatingCalls returns calls that may change server state.
func (f *Fake) MutatingCalls() []Call {
	var out []Call
	for _, c := range f.Calls() {
		if !readOnlyMethods[c.Method] {
			out = append(out, c)
		}
	}
	return out
}

// CallsTo returns calls of model.method.
func (f *Fake) CallsTo(model, method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Model == model && c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// AuthCalls returns how many times Authenticate ran.
func (f *Fake) AuthCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls
}

// ResetCalls clears the call log.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) Instance() string {
	return f.Name
}

func (f *Fake) Authenticate(ctx context.Context) (rpc.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authCalls++
	if f.RejectAuth {
		return rpc.Connection{}, &rpc.AuthError{Instance: f.Name, Reason: "invalid credentials"}
	}

	now := time.Now().UTC()
	f.conn = &rpc.Connection{
		Instance:        f.Name,
		UID:             2,
		ServerVersion:   f.ServerVersion,
		AuthenticatedAt: now,
		LastCallAt:      now,
	}
	return *f.conn, nil
}

func (f *Fake) Connection() (rpc.Connection, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return rpc.Connection{}, false
	}
	return *f.conn, true
}

func (f *Fake) RenderReport(ctx context.Context, report string, ids []int64, data, reportCtx map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	content, ok := f.reports[report]
	err := f.failures[key(report, "render_report")]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &rpc.RemoteMethodError{Service: rpc.ServiceReport, Method: "render_report", Message: "report not found: " + report}
	}
	return json.Marshal(map[string]any{"result": content, "format": "pdf"})
}

func (f *Fake) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return nil, &rpc.AuthError{Instance: f.Name, Reason: "not authenticated"}
	}

	f.calls = append(f.calls, Call{Model: model, Method: method, Args: args, Kwargs: kwargs})

	if err := f.failures[key(model, method)]; err != nil {
		return nil, err
	}

	result, err := f.dispatch(model, method, args, kwargs)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func (f *Fake) dispatch(model, method string, args []any, kwargs map[string]any) (any, error) {
	if fn, ok := f.methods[key(model, method)]; ok {
		return fn(args, kwargs)
	}

	switch method {
	case "search":
		recs, err := f.find(model, args, kwargs)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(recs))
		for _, r := range recs {
			ids = append(ids, r["id"].(int64))
		}
		return ids, nil

	case "search_read":
		recs, err := f.find(model, args, kwargs)
		if err != nil {
			return nil, err
		}
		return project(recs, kwargs), nil

	case "search_count":
		recs, err := f.find(model, args, nil)
		if err != nil {
			return nil, err
		}
		return len(recs), nil

	case "read":
		ids := toIDs(arg(args, 0))
		var recs []map[string]any
		for _, rec := range f.records[model] {
			if containsID(ids, rec["id"].(int64)) {
				recs = append(recs, rec)
			}
		}
		return project(recs, kwargs), nil

	case "create":
		values, _ := arg(args, 0).(map[string]any)
		f.nextID++
		rec := map[string]any{"id": f.nextID}
		for k, v := range values {
			rec[k] = v
		}
		f.records[model] = append(f.records[model], rec)
		return f.nextID, nil

	case "write":
		ids := toIDs(arg(args, 0))
		values, _ := arg(args, 1).(map[string]any)
		for _, rec := range f.records[model] {
			if containsID(ids, rec["id"].(int64)) {
				for k, v := range values {
					rec[k] = v
				}
			}
		}
		return true, nil

	case "unlink":
		ids := toIDs(arg(args, 0))
		kept := f.records[model][:0]
		for _, rec := range f.records[model] {
			if !containsID(ids, rec["id"].(int64)) {
				kept = append(kept, rec)
			}
		}
		f.records[model] = kept
		return true, nil

	case "fields_get":
		fields := map[string]any{"id": map[string]any{"type": "integer", "string": "ID", "readonly": true}}
		for _, rec := range f.records[model] {
			for name := range rec {
				if _, ok := fields[name]; !ok {
					fields[name] = map[string]any{"type": "char", "string": name}
				}
			}
		}
		return fields, nil
	}

	return true, nil
}

// find evaluates the domain in args[0] and applies order, offset and limit.
func (f *Fake) find(model string, args []any, kwargs map[string]any) ([]map[string]any, error) {
	var domain []any
	if raw, ok := arg(args, 0).([]any); ok {
		domain = raw
	}
	pred, err := filter.Parse(domain)
	if err != nil {
		return nil, &rpc.RemoteMethodError{Service: rpc.ServiceObject, Method: "execute_kw", Message: "invalid domain: " + err.Error()}
	}

	var out []map[string]any
	for _, rec := range f.records[model] {
		if Match(pred, rec) {
			out = append(out, rec)
		}
	}

	if order, _ := kwargs["order"].(string); strings.HasPrefix(order, "id desc") {
		sort.SliceStable(out, func(i, j int) bool { return out[i]["id"].(int64) > out[j]["id"].(int64) })
	}
	if offset := toInt(kwargs["offset"]); offset > 0 {
		if offset >= len(out) {
			out = nil
		} else {
			out = out[offset:]
		}
	}
	if limit := toInt(kwargs["limit"]); limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func project(recs []map[string]any, kwargs map[string]any) []map[string]any {
	var fields []string
	switch v := kwargs["fields"].(type) {
	case []string:
		fields = v
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok {
				fields = append(fields, s)
			}
		}
	}

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		row := map[string]any{"id": rec["id"]}
		if len(fields) == 0 {
			for k, v := range rec {
				row[k] = v
			}
		} else {
			for _, name := range fields {
				if v, ok := rec[name]; ok {
					row[name] = v
				} else {
					row[name] = false
				}
			}
		}
		out = append(out, row)
	}
	return out
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func toIDs(v any) []int64 {
	switch ids := v.(type) {
	case []int64:
		return ids
	case []int:
		out := make([]int64, len(ids))
		for i, id := range ids {
			out[i] = int64(id)
		}
		return out
	case []any:
		out := make([]int64, 0, len(ids))
		for _, id := range ids {
			if n, ok := toFloat(id); ok {
				out = append(out, int64(n))
			}
		}
		return out
	}
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func toInt(v any) int {
	n, _ := toFloat(v)
	return int(n)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// String helps debugging failing tests.
func (c Call) String() string {
	return fmt.Sprintf("%s.%s%v", c.Model, c.Method, c.Args)
}
