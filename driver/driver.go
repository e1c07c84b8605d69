// Package driver is the dialect registration boundary of sqlshape.
//
// Each dialect package registers a static capability set from its init function,
// so linking a dialect into a binary is done with a blank import:
//
//	import _ "github.com/shibukawa/sqlshape/postgres"
//
// Code generators then call DescribeBlocking, which picks the dialect from the
// database URL and serves the request from that dialect's process-wide cache.
package driver

import (
	"context"
	"sync"

	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/bridge"
	"github.com/shibukawa/sqlshape/describecache"
	"github.com/shibukawa/sqlshape/pool"
)

// BlockingFunc is a synchronous describe entry point
type BlockingFunc func(query, url string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error)

// Dialect is the capability set a database dialect provides
type Dialect[C pool.Conn] struct {
	// Identity distinguishes the dialect; one cache exists per identity.
	Identity sqlshape.Dialect
	// RowType names the dialect's row type for code generators.
	RowType string
	// Schemes lists the URL schemes handled by the dialect.
	Schemes []string
	// Connect opens one session.
	Connect pool.ConnectFunc[C]
	// Describe reports a statement's shape without durable side effects.
	Describe describecache.DescribeFunc[C]
	// DescribeBlocking, when set, replaces the cached describe path entirely.
	DescribeBlocking BlockingFunc
}

// Entry is a registered dialect
type Entry interface {
	Identity() sqlshape.Dialect
	RowType() string
	Schemes() []string
	// DescribeBlocking describes query and blocks until the outcome is known.
	DescribeBlocking(query, url string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error)
	// Describe is DescribeBlocking for callers that already run under a context.
	Describe(ctx context.Context, query, url string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error)
	// Cache returns the dialect cache, creating it on first use. It is nil when the dialect overrides DescribeBlocking.
	Cache() *describecache.Cache
}

type entry[C pool.Conn] struct {
	dialect   Dialect[C]
	registry  *Registry
	describer func() *describecache.Describer[C]
}

func newEntry[C pool.Conn](r *Registry, d Dialect[C]) *entry[C] {
	e := &entry[C]{dialect: d, registry: r}
	e.describer = sync.OnceValue(func() *describecache.Describer[C] {
		return describecache.NewDescriber(d.Identity, d.Connect, d.Describe, r.logger)
	})

	return e
}

func (e *entry[C]) Identity() sqlshape.Dialect {
	return e.dialect.Identity
}

func (e *entry[C]) RowType() string {
	return e.dialect.RowType
}

func (e *entry[C]) Schemes() []string {
	return e.dialect.Schemes
}

func (e *entry[C]) DescribeBlocking(query, url string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	if e.dialect.DescribeBlocking != nil {
		return e.dialect.DescribeBlocking(query, url, settings)
	}

	return bridge.Block(e.registry.runtime(), func(ctx context.Context) (*sqlshape.Description, error) {
		return e.describer().Describe(ctx, url, query, settings)
	})
}

func (e *entry[C]) Describe(ctx context.Context, query, url string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	if e.dialect.DescribeBlocking != nil {
		return e.dialect.DescribeBlocking(query, url, settings)
	}

	return bridge.BlockContext(e.registry.runtime(), ctx, func(ctx context.Context) (*sqlshape.Description, error) {
		return e.describer().Describe(ctx, url, query, settings)
	})
}

func (e *entry[C]) Cache() *describecache.Cache {
	if e.dialect.DescribeBlocking != nil {
		return nil
	}

	return e.describer().Cache()
}
