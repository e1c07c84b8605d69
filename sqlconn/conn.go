// Package sqlconn adapts database/sql drivers to the pooled session contract.
//
// A Conn owns a dedicated *sql.DB limited to one physical connection, so that
// prepared statements and probe transactions always run on the same session
// and the pool, not database/sql, decides how many sessions exist.
package sqlconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/shibukawa/sqlshape"
)

// ErrNoPreparer is returned when the driver connection cannot prepare statements
var ErrNoPreparer = errors.New("sqlconn: driver connection does not support prepare")

// Conn is one database session opened through database/sql
type Conn struct {
	db   *sql.DB
	conn *sql.Conn

	broken   atomic.Bool
	closed   atomic.Bool
	isBroken func(error) bool
}

// Option configures a Conn
type Option func(*Conn)

// WithBrokenCheck adds a driver specific test for errors that leave the session unusable
func WithBrokenCheck(check func(error) bool) Option {
	return func(c *Conn) {
		c.isBroken = check
	}
}

// Open connects to dsn with the named database/sql driver and pins one session
func Open(ctx context.Context, driverName, dsn string, opts ...Option) (*Conn, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", sqlshape.ErrConnection, driverName, err)
	}

	c, err := New(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

// New pins one session of db. The Conn takes ownership of db.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Conn, error) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sqlshape.ErrConnection, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", sqlshape.ErrConnection, err)
	}

	c := &Conn{db: db, conn: conn}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Close ends the session
func (c *Conn) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	return errors.Join(c.conn.Close(), c.db.Close())
}

// IsClosed reports whether the session was closed or must not be reused
func (c *Conn) IsClosed() bool {
	return c.closed.Load() || c.broken.Load()
}

// Observe inspects the outcome of an exchange and marks the session broken when
// err means the connection state is unknown. It returns err unchanged.
func (c *Conn) Observe(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if ctx.Err() != nil ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		(c.isBroken != nil && c.isBroken(err)) {
		c.broken.Store(true)
	}

	return err
}

// NumInput prepares query on the session and returns the number of placeholders.
// -1 means the driver cannot tell.
func (c *Conn) NumInput(ctx context.Context, query string) (int, error) {
	n := -1

	err := c.conn.Raw(func(raw any) error {
		var (
			stmt driver.Stmt
			err  error
		)

		switch dc := raw.(type) {
		case driver.ConnPrepareContext:
			stmt, err = dc.PrepareContext(ctx, query)
		case driver.Conn:
			stmt, err = dc.Prepare(query)
		default:
			return ErrNoPreparer
		}

		if err != nil {
			return err
		}
		defer stmt.Close()

		n = stmt.NumInput()

		return nil
	})

	return n, c.Observe(ctx, err)
}

// Column is a result column as reported by a database/sql driver
type Column struct {
	Name         string
	DatabaseType string
	Nullable     sqlshape.Nullability
}

// ProbeColumns runs query inside a read-only transaction that is always rolled back,
// binding NULL to each of the nargs placeholders, and returns the result columns without
// reading rows. Callers gate it with ReturnsRows: a rollback does not undo effects on
// non-transactional storage.
func (c *Conn) ProbeColumns(ctx context.Context, query string, nargs int) ([]Column, error) {
	tx, err := c.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, c.Observe(ctx, err)
	}
	defer tx.Rollback()

	args := make([]any, max(nargs, 0))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.Observe(ctx, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, c.Observe(ctx, err)
	}

	columns := make([]Column, len(types))
	for i, ct := range types {
		columns[i] = Column{
			Name:         ct.Name(),
			DatabaseType: ct.DatabaseTypeName(),
			Nullable:     sqlshape.NullabilityUnknown,
		}

		if nullable, ok := ct.Nullable(); ok {
			columns[i].Nullable = sqlshape.NotNull
			if nullable {
				columns[i].Nullable = sqlshape.Nullable
			}
		}
	}

	return columns, nil
}
