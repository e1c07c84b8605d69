package describecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shibukawa/sqlshape"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testURL = "postgres://app@localhost:5432/app"

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return logger
}

func usersDescription() *sqlshape.Description {
	return &sqlshape.Description{
		Dialect: sqlshape.DialectPostgres,
		Params: []sqlshape.ParameterDescriptor{
			{Position: 1, Type: sqlshape.TypeInfo{Name: "int4", Kind: "int", OID: 23}},
		},
		Columns: []sqlshape.ColumnDescriptor{
			{Name: "id", Type: sqlshape.TypeInfo{Name: "int4", Kind: "int", OID: 23}, Nullable: sqlshape.NotNull},
			{Name: "name", Type: sqlshape.TypeInfo{Name: "text", Kind: "string", OID: 25}, Nullable: sqlshape.Nullable},
		},
	}
}

// countingResolver counts exchanges and answers with usersDescription unless fail is set
type countingResolver struct {
	calls   atomic.Int32
	fail    atomic.Pointer[error]
	release chan struct{} // when non-nil, exchanges block until it is closed
}

func (r *countingResolver) resolve(ctx context.Context, key Key, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	r.calls.Add(1)

	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := r.fail.Load(); err != nil {
		return nil, *err
	}

	return usersDescription(), nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}

		time.Sleep(time.Millisecond)
	}
}

func TestCacheHitPerformsNoExchange(t *testing.T) {
	resolver := &countingResolver{}
	cache := New(resolver.resolve, WithLogger(quietLogger()))

	const query = "SELECT id, name FROM users WHERE id = $1"

	first, err := cache.Describe(t.Context(), testURL, query, nil)
	assert.NoError(t, err)

	second, err := cache.Describe(t.Context(), testURL, query, nil)
	assert.NoError(t, err)

	assert.Equal(t, int32(1), resolver.calls.Load())
	assert.True(t, first.Equal(second))
	assert.True(t, first.Equal(usersDescription()))

	state, cached := cache.Lookup(testURL, query)
	assert.Equal(t, StateResolved, state)
	assert.True(t, cached == first)

	stats := cache.Stats()
	assert.Equal(t, Stats{Hits: 1, Exchanges: 1}, stats)
}

func TestCacheKeyExactness(t *testing.T) {
	resolver := &countingResolver{}
	cache := New(resolver.resolve, WithLogger(quietLogger()))

	queries := []string{
		"SELECT id FROM users",
		"SELECT  id FROM users",
		"select id from users",
		"SELECT id FROM users -- comment",
		"SELECT id FROM users\n",
	}

	for _, query := range queries {
		_, err := cache.Describe(t.Context(), testURL, query, nil)
		assert.NoError(t, err)
	}

	_, err := cache.Describe(t.Context(), testURL+"?sslmode=disable", queries[0], nil)
	assert.NoError(t, err)

	assert.Equal(t, int32(len(queries)+1), resolver.calls.Load())
	assert.Equal(t, len(queries)+1, cache.Len())
}

func TestCacheSingleFlight(t *testing.T) {
	const callers = 8

	resolver := &countingResolver{release: make(chan struct{})}
	cache := New(resolver.resolve, WithLogger(quietLogger()))

	results := make([]*sqlshape.Description, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i], errs[i] = cache.Describe(context.Background(), testURL, "SELECT id, name FROM users WHERE id = $1", nil)
		}()
	}

	waitFor(t, func() bool { return cache.Stats().Shared == callers-1 })

	state, _ := cache.Lookup(testURL, "SELECT id, name FROM users WHERE id = $1")
	require.Equal(t, StateInFlight, state)

	close(resolver.release)
	wg.Wait()

	require.Equal(t, int32(1), resolver.calls.Load())

	for i := range callers {
		require.NoError(t, errs[i])
		require.Same(t, results[0], results[i])
	}
}

func TestCacheSingleFlightFailure(t *testing.T) {
	const callers = 8

	resolver := &countingResolver{release: make(chan struct{})}
	failure := fmt.Errorf("%w: connection refused", sqlshape.ErrConnection)
	resolver.fail.Store(&failure)

	cache := New(resolver.resolve, WithLogger(quietLogger()))

	errs := make([]error, callers)

	var wg sync.WaitGroup

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, errs[i] = cache.Describe(context.Background(), testURL, "SELECT 1", nil)
		}()
	}

	waitFor(t, func() bool { return cache.Stats().Shared == callers-1 })
	close(resolver.release)
	wg.Wait()

	require.Equal(t, int32(1), resolver.calls.Load())

	for i := range callers {
		require.ErrorIs(t, errs[i], sqlshape.ErrConnection)
		require.Same(t, errs[0], errs[i])
	}

	state, _ := cache.Lookup(testURL, "SELECT 1")
	require.Equal(t, StateAbsent, state)
	require.Equal(t, 0, cache.Len())
}

func TestCacheFailureIsNotMemoized(t *testing.T) {
	resolver := &countingResolver{}
	failure := fmt.Errorf("%w: dial tcp: connection refused", sqlshape.ErrConnection)
	resolver.fail.Store(&failure)

	cache := New(resolver.resolve, WithLogger(quietLogger()))

	_, err := cache.Describe(t.Context(), testURL, "SELECT 1", nil)
	assert.IsError(t, err, sqlshape.ErrConnection)

	state, _ := cache.Lookup(testURL, "SELECT 1")
	assert.Equal(t, StateAbsent, state)

	// the database comes back
	resolver.fail.Store(nil)

	desc, err := cache.Describe(t.Context(), testURL, "SELECT 1", nil)
	assert.NoError(t, err)
	assert.NotZero(t, desc)

	_, err = cache.Describe(t.Context(), testURL, "SELECT 1", nil)
	assert.NoError(t, err)

	assert.Equal(t, int32(2), resolver.calls.Load())
	assert.Equal(t, Stats{Hits: 1, Exchanges: 2, Failures: 1}, cache.Stats())
}

func TestCacheWaiterCancellation(t *testing.T) {
	resolver := &countingResolver{release: make(chan struct{})}
	cache := New(resolver.resolve, WithLogger(quietLogger()))

	leaderDone := make(chan error, 1)

	go func() {
		_, err := cache.Describe(context.Background(), testURL, "SELECT 1", nil)
		leaderDone <- err
	}()

	waitFor(t, func() bool { return resolver.calls.Load() == 1 })

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	_, err := cache.Describe(ctx, testURL, "SELECT 1", nil)
	assert.IsError(t, err, context.DeadlineExceeded)

	// the leader is unaffected by the waiter giving up
	close(resolver.release)
	assert.NoError(t, <-leaderDone)

	state, _ := cache.Lookup(testURL, "SELECT 1")
	assert.Equal(t, StateResolved, state)
}

func TestCacheLeaderCancellationIsNotShared(t *testing.T) {
	resolver := &countingResolver{release: make(chan struct{})}
	cache := New(resolver.resolve, WithLogger(quietLogger()))

	leaderCtx, cancelLeader := context.WithCancel(t.Context())
	leaderDone := make(chan error, 1)

	go func() {
		_, err := cache.Describe(leaderCtx, testURL, "SELECT 1", nil)
		leaderDone <- err
	}()

	waitFor(t, func() bool { return resolver.calls.Load() == 1 })

	type outcome struct {
		desc *sqlshape.Description
		err  error
	}

	waiterDone := make(chan outcome, 1)

	go func() {
		desc, err := cache.Describe(context.Background(), testURL, "SELECT 1", nil)
		waiterDone <- outcome{desc, err}
	}()

	waitFor(t, func() bool { return cache.Stats().Shared == 1 })

	cancelLeader()
	assert.IsError(t, <-leaderDone, context.Canceled)

	// the waiter takes over the key with its own live context
	waitFor(t, func() bool { return resolver.calls.Load() == 2 })
	close(resolver.release)

	got := <-waiterDone
	assert.NoError(t, got.err)
	assert.Equal(t, usersDescription(), got.desc)

	state, _ := cache.Lookup(testURL, "SELECT 1")
	assert.Equal(t, StateResolved, state)
	assert.Equal(t, Stats{Shared: 1, Exchanges: 2, Failures: 1}, cache.Stats())
}

func TestCachePanicReleasesWaiters(t *testing.T) {
	release := make(chan struct{})

	var calls atomic.Int32

	cache := New(func(ctx context.Context, key Key, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
		if calls.Add(1) == 1 {
			<-release
			panic("driver bug")
		}

		return usersDescription(), nil
	}, WithLogger(quietLogger()))

	leaderPanic := make(chan any, 1)

	go func() {
		defer func() { leaderPanic <- recover() }()

		_, _ = cache.Describe(context.Background(), testURL, "SELECT 1", nil)
	}()

	waitFor(t, func() bool { return calls.Load() == 1 })

	waiterErr := make(chan error, 1)

	go func() {
		_, err := cache.Describe(context.Background(), testURL, "SELECT 1", nil)
		waiterErr <- err
	}()

	waitFor(t, func() bool { return cache.Stats().Shared == 1 })
	close(release)

	assert.Equal(t, any("driver bug"), <-leaderPanic)
	assert.IsError(t, <-waiterErr, ErrResolvePanicked)

	state, _ := cache.Lookup(testURL, "SELECT 1")
	assert.Equal(t, StateAbsent, state)

	_, err := cache.Describe(t.Context(), testURL, "SELECT 1", nil)
	assert.NoError(t, err)
}

func TestCacheNilDescription(t *testing.T) {
	cache := New(func(ctx context.Context, key Key, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
		return nil, nil
	}, WithLogger(quietLogger()))

	_, err := cache.Describe(t.Context(), testURL, "SELECT 1", nil)
	assert.IsError(t, err, ErrNilDescription)
	assert.Equal(t, 0, cache.Len())
}

func TestCachePrefetch(t *testing.T) {
	resolver := &countingResolver{}
	cache := New(resolver.resolve, WithLogger(quietLogger()))

	queries := []string{"SELECT 1", "SELECT 2", "SELECT 3", "SELECT 1"}

	err := cache.Prefetch(t.Context(), testURL, queries, nil, 2)
	assert.NoError(t, err)
	assert.Equal(t, 3, cache.Len())
	assert.Equal(t, int32(3), resolver.calls.Load())

	failure := errors.New("relation \"missing\" does not exist")
	resolver.fail.Store(&failure)

	err = cache.Prefetch(t.Context(), testURL, []string{"SELECT * FROM missing"}, nil, 0)
	assert.IsError(t, err, failure)
	assert.Contains(t, err.Error(), "SELECT * FROM missing")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "absent", StateAbsent.String())
	assert.Equal(t, "in-flight", StateInFlight.String())
	assert.Equal(t, "resolved", StateResolved.String())
	assert.Equal(t, "SELECT 1", abbreviate("SELECT 1"))
}
