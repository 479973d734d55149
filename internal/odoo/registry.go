package odoo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/rpc"
)

// Factory builds the transport for a named instance.
type Factory func(name string) (Caller, error)

// Registry owns one authenticated Client per instance name for the life of
// the process. It is safe for concurrent use.
type Registry struct {
	names   []string
	factory Factory
	logger  *logger.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry creates a registry for the given instance names.
func NewRegistry(names []string, factory Factory, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Discard()
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	return &Registry{
		names:   sorted,
		factory: factory,
		logger:  log,
		clients: make(map[string]*Client),
	}
}

// NewRPCRegistry builds a registry backed by rpc.Client transports.
func NewRPCRegistry(configs map[string]rpc.Config, log *logger.Logger, opts ...rpc.Option) *Registry {
	if log == nil {
		log = logger.Discard()
	}
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}

	factory := func(name string) (Caller, error) {
		cfg := configs[name]
		cfg.Instance = name
		return rpc.New(cfg, append([]rpc.Option{rpc.WithLogger(log)}, opts...)...)
	}

	return NewRegistry(names, factory, log)
}

// Names returns the configured instance names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Has reports whether name is configured.
func (r *Registry) Has(name string) bool {
	i := sort.SearchStrings(r.names, name)
	return i < len(r.names) && r.names[i] == name
}

// Client returns an authenticated client for name, creating and
// authenticating it on first use. The returned error is the OpError from
// authentication or a configuration error.
func (r *Registry) Client(ctx context.Context, name string) (*Client, error) {
	client, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if err := client.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Registry) lookup(name string) (*Client, error) {
	if !r.Has(name) {
		return nil, fmt.Errorf("unknown instance %q (configured: %s)", name, strings.Join(r.names, ", "))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[name]; ok {
		return client, nil
	}

	caller, err := r.factory(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for instance %q: %w", name, err)
	}

	client := NewClient(caller, r.logger)
	r.clients[name] = client
	return client, nil
}

// Close releases every transport that supports it.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, client := range r.clients {
		if closer, ok := client.caller.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(r.clients, name)
	}
}
