// Package describecache memoizes statement descriptions for the lifetime of a build process.
//
// Entries are keyed by the exact (database URL, query text) pair. An entry is either
// in flight (one caller is talking to the database, others wait on it) or resolved
// (kept until process exit). Failures are never stored: the in-flight marker is removed,
// every waiter receives the failure and the next call starts over. A leader whose
// context ends is not a failure of the statement: its waiters retry with their own contexts.
package describecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shibukawa/sqlshape"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrResolvePanicked is reported to waiters when the caller resolving their key panicked.
	ErrResolvePanicked = errors.New("describecache: describe panicked")
	// ErrNilDescription is returned when a resolver reports neither a description nor an error.
	ErrNilDescription = errors.New("describecache: resolver returned no description")
)

// Key identifies a cache entry. No normalization is applied: statements that differ
// only in whitespace or comments are distinct keys.
type Key struct {
	URL   string
	Query string
}

// State is the state of a cache entry
type State int

const (
	StateAbsent State = iota
	StateInFlight
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateInFlight:
		return "in-flight"
	case StateResolved:
		return "resolved"
	default:
		return "absent"
	}
}

type entry struct {
	state State
	done  chan struct{} // closed when the in-flight exchange ends

	// written before done is closed
	desc *sqlshape.Description
	err  error
}

// ResolveFunc performs the describe exchange for a key
type ResolveFunc func(ctx context.Context, key Key, settings *sqlshape.DriverSettings) (*sqlshape.Description, error)

// Cache is a single-flight memo of descriptions
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	resolve ResolveFunc
	log     logrus.FieldLogger

	hits      atomic.Int64
	shared    atomic.Int64
	exchanges atomic.Int64
	failures  atomic.Int64
}

// Stats counts how requests were served
type Stats struct {
	Hits      int64 // served from a resolved entry
	Shared    int64 // waited on another caller's exchange
	Exchanges int64 // describe exchanges performed
	Failures  int64 // exchanges that failed
}

// Option configures a Cache
type Option func(*Cache)

// WithLogger sets the logger used for debug output
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Cache) {
		c.log = logger
	}
}

// New creates an empty cache that resolves misses with resolve
func New(resolve ResolveFunc, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]*entry),
		resolve: resolve,
		log:     logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Describe returns the description of query on the database at url.
//
// A resolved entry is returned without any database activity. If another caller is
// already describing the same key, Describe waits for its outcome. Otherwise it
// describes the statement itself and publishes the result to every waiter.
// The returned Description is shared and must not be modified.
func (c *Cache) Describe(ctx context.Context, url, query string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	key := Key{URL: url, Query: query}

	c.mu.Lock()

	if e, ok := c.entries[key]; ok {
		if e.state == StateResolved {
			c.mu.Unlock()
			c.hits.Add(1)

			return e.desc, nil
		}

		c.mu.Unlock()
		c.shared.Add(1)

		return c.wait(ctx, key, e, settings)
	}

	e := &entry{state: StateInFlight, done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	return c.lead(ctx, key, e, settings)
}

// wait blocks until the in-flight exchange for key ends. When the leader gave up
// because its own context ended, a waiter whose context is still live takes over the key.
func (c *Cache) wait(ctx context.Context, key Key, e *entry, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	select {
	case <-e.done:
		if isContextError(e.err) && ctx.Err() == nil {
			return c.Describe(ctx, key.URL, key.Query, settings)
		}

		return e.desc, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache) lead(ctx context.Context, key Key, e *entry, settings *sqlshape.DriverSettings) (desc *sqlshape.Description, err error) {
	c.exchanges.Add(1)

	log := c.log.WithFields(logrus.Fields{"url": sqlshape.RedactURL(key.URL), "query": abbreviate(key.Query)})
	log.Debug("describe cache miss")

	finished := false

	defer func() {
		if !finished {
			// resolve panicked; waiters must not hang
			c.finish(key, e, nil, ErrResolvePanicked)
		}
	}()

	desc, err = c.resolve(ctx, key, settings)
	if err == nil && desc == nil {
		err = ErrNilDescription
	}

	if err != nil {
		desc = nil
		log.WithError(err).Debug("describe failed")
	}

	finished = true
	c.finish(key, e, desc, err)

	return desc, err
}

func (c *Cache) finish(key Key, e *entry, desc *sqlshape.Description, err error) {
	c.mu.Lock()

	if err != nil {
		c.failures.Add(1)
		e.err = err

		if c.entries[key] == e {
			delete(c.entries, key)
		}
	} else {
		e.desc = desc
		e.state = StateResolved
	}

	c.mu.Unlock()
	close(e.done)
}

// Lookup reports the state of an entry and its description when resolved
func (c *Cache) Lookup(url, query string) (State, *sqlshape.Description) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[Key{URL: url, Query: query}]
	if !ok {
		return StateAbsent, nil
	}

	if e.state == StateResolved {
		return StateResolved, e.desc
	}

	return StateInFlight, nil
}

// Len returns the number of entries, resolved or in flight
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns a snapshot of the request counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Shared:    c.shared.Load(),
		Exchanges: c.exchanges.Load(),
		Failures:  c.failures.Load(),
	}
}

// Prefetch describes queries concurrently, at most parallel at a time (0 means unlimited).
// It returns the first failure; successful descriptions stay cached.
func (c *Cache) Prefetch(ctx context.Context, url string, queries []string, settings *sqlshape.DriverSettings, parallel int) error {
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}

	for _, query := range queries {
		g.Go(func() error {
			if _, err := c.Describe(gctx, url, query, settings); err != nil {
				return fmt.Errorf("prefetch %q: %w", abbreviate(query), err)
			}

			return nil
		})
	}

	return g.Wait()
}

// abbreviate shortens a statement for logs and messages
func abbreviate(query string) string {
	const limit = 60

	runes := []rune(query)
	if len(runes) <= limit {
		return query
	}

	return string(runes[:limit]) + "..."
}
