package driver

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/bridge"
	"github.com/shibukawa/sqlshape/pool"
	"github.com/sirupsen/logrus"
)

// Registry maps dialect identities and URL schemes to registered dialects
type Registry struct {
	mu      sync.RWMutex
	entries map[sqlshape.Dialect]Entry
	schemes map[string]sqlshape.Dialect

	logger  logrus.FieldLogger
	runtime func() *bridge.Runtime
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithLogger sets the logger handed to dialect caches and pools
func WithLogger(logger logrus.FieldLogger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRuntime drives blocking calls with rt instead of the process-wide bridge runtime
func WithRuntime(rt *bridge.Runtime) RegistryOption {
	return func(r *Registry) {
		r.runtime = func() *bridge.Runtime { return rt }
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[sqlshape.Dialect]Entry),
		schemes: make(map[string]sqlshape.Dialect),
		logger:  logrus.StandardLogger(),
		runtime: bridge.Default,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry()
})

// Default returns the process-wide registry, creating it on first use
func Default() *Registry {
	return defaultRegistry()
}

// Register makes a dialect available in the process-wide registry.
// It panics if called twice for the same identity or with missing capabilities.
func Register[C pool.Conn](d Dialect[C]) {
	RegisterTo(Default(), d)
}

// RegisterTo makes a dialect available in r
func RegisterTo[C pool.Conn](r *Registry, d Dialect[C]) {
	if d.Identity == "" {
		panic("driver: Register dialect without identity")
	}

	if d.DescribeBlocking == nil && (d.Connect == nil || d.Describe == nil) {
		panic("driver: Register dialect " + string(d.Identity) + " without Connect/Describe")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.entries[d.Identity]; dup {
		panic("driver: Register called twice for dialect " + string(d.Identity))
	}

	for _, scheme := range d.Schemes {
		scheme = strings.ToLower(scheme)
		if owner, taken := r.schemes[scheme]; taken {
			panic(fmt.Sprintf("driver: URL scheme %q of dialect %s already handled by %s", scheme, d.Identity, owner))
		}

		r.schemes[scheme] = d.Identity
	}

	r.entries[d.Identity] = newEntry(r, d)
}

// Lookup returns the registered dialect with the given identity
func (r *Registry) Lookup(dialect sqlshape.Dialect) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[dialect]

	return e, ok
}

// ForURL returns the dialect that handles databaseURL
func (r *Registry) ForURL(databaseURL string) (Entry, error) {
	r.mu.RLock()
	identity, ok := r.schemes[sqlshape.Scheme(databaseURL)]
	r.mu.RUnlock()

	if ok {
		e, _ := r.Lookup(identity)
		return e, nil
	}

	dialect, err := sqlshape.DialectFromURL(databaseURL)
	if err != nil {
		return nil, err
	}

	if e, ok := r.Lookup(dialect); ok {
		return e, nil
	}

	return nil, fmt.Errorf("%w: database URL has the scheme of a %s database but the %s dialect is not registered: %w",
		sqlshape.ErrConfiguration, dialect.DisplayName(), dialect, sqlshape.ErrDialectNotRegistered)
}

// Dialects returns the registered identities, sorted
func (r *Registry) Dialects() []sqlshape.Dialect {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dialects := make([]sqlshape.Dialect, 0, len(r.entries))
	for d := range r.entries {
		dialects = append(dialects, d)
	}

	slices.Sort(dialects)

	return dialects
}

// DescribeBlocking describes query on the database at url and blocks until done.
// Settings are validated before any connection attempt.
func (r *Registry) DescribeBlocking(query, url string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	e, err := r.ForURL(url)
	if err != nil {
		return nil, err
	}

	return e.DescribeBlocking(query, url, settings)
}

// Describe is DescribeBlocking under a caller context
func (r *Registry) Describe(ctx context.Context, query, url string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	e, err := r.ForURL(url)
	if err != nil {
		return nil, err
	}

	return e.Describe(ctx, query, url, settings)
}

// DescribeBlocking describes query with the process-wide registry
func DescribeBlocking(query, url string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	return Default().DescribeBlocking(query, url, settings)
}

// Lookup returns a dialect of the process-wide registry
func Lookup(dialect sqlshape.Dialect) (Entry, bool) {
	return Default().Lookup(dialect)
}

// Dialects returns the dialects of the process-wide registry
func Dialects() []sqlshape.Dialect {
	return Default().Dialects()
}
