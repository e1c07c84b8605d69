// Package pool bounds the number of live describe connections per database URL.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/puddle/v2"
	"github.com/shibukawa/sqlshape"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned when acquiring from a closed pool
var ErrClosed = errors.New("pool: closed")

// Conn is a live, dialect-specific session
type Conn interface {
	// Close terminates the session
	Close(ctx context.Context) error
	// IsClosed reports whether the session is closed or broken and must not be reused
	IsClosed() bool
}

// ConnectFunc opens one session to url
type ConnectFunc[C Conn] func(ctx context.Context, url string) (C, error)

// Options configures a Pool
type Options struct {
	MaxConns       int32
	AcquireTimeout time.Duration // 0 waits until ctx is done
	ConnectTimeout time.Duration // 0 leaves the connect attempt bounded only by ctx
	Logger         logrus.FieldLogger
}

// OptionsFromSettings converts driver pool settings to pool options
func OptionsFromSettings(settings *sqlshape.DriverSettings, logger logrus.FieldLogger) Options {
	p := settings.PoolOptions()

	return Options{
		MaxConns:       int32(p.MaxConnections),
		AcquireTimeout: p.AcquireTimeout,
		ConnectTimeout: p.ConnectTimeout,
		Logger:         logger,
	}
}

type pooled[C Conn] struct {
	id   uuid.UUID
	conn C
}

// Pool is a bounded set of reusable sessions to one URL
type Pool[C Conn] struct {
	url  string
	opts Options
	log  logrus.FieldLogger
	res  *puddle.Pool[*pooled[C]]
}

// New creates a pool for url. No connection is opened until the first Acquire.
func New[C Conn](url string, connect ConnectFunc[C], opts Options) (*Pool[C], error) {
	if opts.MaxConns <= 0 {
		opts.MaxConns = sqlshape.DefaultMaxConnections
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	p := &Pool[C]{
		url:  url,
		opts: opts,
		log:  logger.WithField("url", sqlshape.RedactURL(url)),
	}

	res, err := puddle.NewPool(&puddle.Config[*pooled[C]]{
		Constructor: func(ctx context.Context) (*pooled[C], error) {
			return p.connect(ctx, connect)
		},
		Destructor: func(pc *pooled[C]) {
			p.destroy(pc)
		},
		MaxSize: opts.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}

	p.res = res

	return p, nil
}

func (p *Pool[C]) connect(ctx context.Context, connect ConnectFunc[C]) (*pooled[C], error) {
	if p.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.opts.ConnectTimeout)
		defer cancel()
	}

	id := uuid.New()

	conn, err := connect(ctx, p.url)
	if err != nil {
		p.log.WithError(err).Debug("connect failed")

		if errors.Is(err, sqlshape.ErrConnection) || errors.Is(err, sqlshape.ErrConfiguration) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %s: %w", sqlshape.ErrConnection, sqlshape.RedactURL(p.url), err)
	}

	p.log.WithField("conn_id", id).Debug("connection opened")

	return &pooled[C]{id: id, conn: conn}, nil
}

func (p *Pool[C]) destroy(pc *pooled[C]) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pc.conn.Close(ctx); err != nil {
		p.log.WithField("conn_id", pc.id).WithError(err).Debug("connection close failed")
		return
	}

	p.log.WithField("conn_id", pc.id).Debug("connection closed")
}

// URL returns the database URL the pool connects to
func (p *Pool[C]) URL() string {
	return p.url
}

// Acquire borrows a session, opening one when the pool is below its maximum.
// When saturated it waits for a release; waiting longer than AcquireTimeout fails with sqlshape.ErrPoolTimeout.
// Connect failures are returned to the caller without retry.
func (p *Pool[C]) Acquire(ctx context.Context) (*Lease[C], error) {
	acquireCtx := ctx

	if p.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc

		acquireCtx, cancel = context.WithTimeout(ctx, p.opts.AcquireTimeout)
		defer cancel()
	}

	res, err := p.res.Acquire(acquireCtx)
	if err != nil {
		switch {
		case errors.Is(err, puddle.ErrClosedPool):
			return nil, ErrClosed
		case ctx.Err() == nil && acquireCtx.Err() != nil:
			return nil, fmt.Errorf("%w: %s after %s (max %d connections)", sqlshape.ErrPoolTimeout, sqlshape.RedactURL(p.url), p.opts.AcquireTimeout, p.opts.MaxConns)
		default:
			return nil, err
		}
	}

	if res.Value().conn.IsClosed() {
		// Broken while idle; open a replacement.
		res.Destroy()
		return p.Acquire(ctx)
	}

	return &Lease[C]{res: res, log: p.log}, nil
}

// Stat is a snapshot of pool accounting
type Stat struct {
	Total        int32
	Acquired     int32
	Idle         int32
	Constructing int32
	Max          int32
	AcquireCount int64
}

// Stat returns a snapshot of pool accounting
func (p *Pool[C]) Stat() Stat {
	s := p.res.Stat()

	return Stat{
		Total:        s.TotalResources(),
		Acquired:     s.AcquiredResources(),
		Idle:         s.IdleResources(),
		Constructing: s.ConstructingResources(),
		Max:          s.MaxResources(),
		AcquireCount: s.AcquireCount(),
	}
}

// Close closes idle sessions and waits for borrowed ones to be released
func (p *Pool[C]) Close() {
	p.res.Close()
}

// Lease is an exclusive borrow of one session
type Lease[C Conn] struct {
	mu  sync.Mutex
	res *puddle.Resource[*pooled[C]]
	log logrus.FieldLogger
}

// Conn returns the borrowed session
func (l *Lease[C]) Conn() C {
	return l.res.Value().conn
}

// ID returns the identifier assigned to the session when it was opened
func (l *Lease[C]) ID() uuid.UUID {
	return l.res.Value().id
}

// Release returns the session to its pool, or discards it when it is broken.
// Releasing twice is a no-op.
func (l *Lease[C]) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.res == nil {
		return
	}

	res := l.res
	l.res = nil

	if res.Value().conn.IsClosed() {
		l.log.WithField("conn_id", res.Value().id).Debug("discarding broken connection")
		res.Destroy()

		return
	}

	res.Release()
}
