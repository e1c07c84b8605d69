package describecache

import (
	"context"

	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/pool"
	"github.com/sirupsen/logrus"
)

// DescribeFunc runs the describe exchange of one dialect over a borrowed session
type DescribeFunc[C pool.Conn] func(ctx context.Context, conn C, query string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error)

// Describer ties a Cache to the connection pools and describe exchange of one dialect
type Describer[C pool.Conn] struct {
	dialect  sqlshape.Dialect
	pools    *pool.Set[C]
	describe DescribeFunc[C]
	cache    *Cache
	log      logrus.FieldLogger
}

// NewDescriber creates a Describer whose sessions are opened with connect
func NewDescriber[C pool.Conn](dialect sqlshape.Dialect, connect pool.ConnectFunc[C], describe DescribeFunc[C], logger logrus.FieldLogger) *Describer[C] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	d := &Describer[C]{
		dialect:  dialect,
		pools:    pool.NewSet(connect),
		describe: describe,
		log:      logger.WithField("dialect", dialect),
	}
	d.cache = New(d.resolve, WithLogger(d.log))

	return d
}

// Describe validates settings and returns the cached or freshly described shape of query.
// Invalid settings fail before any connection attempt and leave the cache untouched.
func (d *Describer[C]) Describe(ctx context.Context, url, query string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return d.cache.Describe(ctx, url, query, settings)
}

func (d *Describer[C]) resolve(ctx context.Context, key Key, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	lease, err := d.pools.Acquire(ctx, key.URL, pool.OptionsFromSettings(settings, d.log))
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	d.log.WithField("conn_id", lease.ID()).Debug("describe exchange")

	desc, err := d.describe(ctx, lease.Conn(), key.Query, settings)
	if err != nil {
		return nil, err
	}

	if desc != nil && desc.Dialect == "" {
		desc.Dialect = d.dialect
	}

	return desc, nil
}

// Dialect returns the dialect served by the describer
func (d *Describer[C]) Dialect() sqlshape.Dialect {
	return d.dialect
}

// Cache returns the description cache
func (d *Describer[C]) Cache() *Cache {
	return d.cache
}

// Pools returns the per-URL connection pools
func (d *Describer[C]) Pools() *pool.Set[C] {
	return d.pools
}
