package sqlconn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alecthomas/assert/v2"
	"github.com/shibukawa/sqlshape"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T, opts ...Option) (*Conn, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	c, err := New(t.Context(), db, opts...)
	require.NoError(t, err)

	return c, mock
}

func TestProbeColumns(t *testing.T) {
	c, mock := newMock(t)

	const query = "SELECT id, name FROM users WHERE id = ?"

	mock.ExpectBegin()
	mock.ExpectQuery(query).
		WithArgs(nil).
		WillReturnRows(mock.NewRowsWithColumnDefinition(
			mock.NewColumn("id").OfType("BIGINT", int64(0)).Nullable(false),
			mock.NewColumn("name").OfType("VARCHAR", "").Nullable(true),
		))
	mock.ExpectRollback()

	columns, err := c.ProbeColumns(t.Context(), query, 1)
	assert.NoError(t, err)
	assert.Equal(t, []Column{
		{Name: "id", DatabaseType: "BIGINT", Nullable: sqlshape.NotNull},
		{Name: "name", DatabaseType: "VARCHAR", Nullable: sqlshape.Nullable},
	}, columns)

	mock.ExpectClose()
	assert.NoError(t, c.Close(t.Context()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, c.IsClosed())
}

func TestProbeColumnsRollsBackOnError(t *testing.T) {
	c, mock := newMock(t)

	rejected := errors.New("Unknown column 'nam' in 'field list'")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nam FROM users").WillReturnError(rejected)
	mock.ExpectRollback()

	_, err := c.ProbeColumns(t.Context(), "SELECT nam FROM users", 0)
	assert.IsError(t, err, rejected)
	assert.False(t, c.IsClosed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

var errNotPrepared = errors.New("statement not prepared")

// txRecorder is a driver connection that records the options of each transaction
type txRecorder struct {
	readOnly []bool
}

func (r *txRecorder) Connect(context.Context) (driver.Conn, error) { return r, nil }
func (r *txRecorder) Driver() driver.Driver { return nil }
func (r *txRecorder) Prepare(string) (driver.Stmt, error) { return nil, errNotPrepared }
func (r *txRecorder) Close() error { return nil }
func (r *txRecorder) Begin() (driver.Tx, error) { return r, nil }
func (r *txRecorder) Commit() error { return nil }
func (r *txRecorder) Rollback() error { return nil }

func (r *txRecorder) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	r.readOnly = append(r.readOnly, opts.ReadOnly)
	return r, nil
}

func TestProbeColumnsUsesReadOnlyTransaction(t *testing.T) {
	recorder := &txRecorder{}

	c, err := New(t.Context(), sql.OpenDB(recorder))
	require.NoError(t, err)

	_, err = c.ProbeColumns(t.Context(), "SELECT id FROM users", 0)
	assert.IsError(t, err, errNotPrepared)
	assert.Equal(t, []bool{true}, recorder.readOnly)
	assert.NoError(t, c.Close(t.Context()))
}

func TestObserveMarksBrokenSessions(t *testing.T) {
	t.Run("bad connection", func(t *testing.T) {
		c, _ := newMock(t)

		err := c.Observe(t.Context(), driver.ErrBadConn)
		assert.IsError(t, err, driver.ErrBadConn)
		assert.True(t, c.IsClosed())
	})

	t.Run("cancelled exchange", func(t *testing.T) {
		c, _ := newMock(t)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_ = c.Observe(ctx, context.Canceled)
		assert.True(t, c.IsClosed())
	})

	t.Run("statement error keeps session", func(t *testing.T) {
		c, _ := newMock(t)

		_ = c.Observe(t.Context(), errors.New("syntax error"))
		assert.False(t, c.IsClosed())
		assert.NoError(t, c.Observe(t.Context(), nil))
	})

	t.Run("driver specific check", func(t *testing.T) {
		lost := errors.New("server has gone away")
		c, _ := newMock(t, WithBrokenCheck(func(err error) bool {
			return errors.Is(err, lost)
		}))

		_ = c.Observe(t.Context(), lost)
		assert.True(t, c.IsClosed())
	})
}

func TestReturnsRows(t *testing.T) {
	testCases := []struct {
		query    string
		expected bool
	}{
		{query: "SELECT 1", expected: true},
		{query: "  select id from users", expected: true},
		{query: "-- list users\nSELECT id FROM users", expected: true},
		{query: "/* hint */ WITH t AS (SELECT 1) SELECT * FROM t", expected: true},
		{query: "(SELECT 1) UNION (SELECT 2)", expected: true},
		{query: "SHOW TABLES", expected: true},
		{query: "INSERT INTO users (name) VALUES (?)", expected: false},
		{query: "INSERT INTO users (name) VALUES (?) RETURNING id", expected: true},
		{query: "UPDATE users SET name = ?", expected: false},
		{query: "DELETE FROM users WHERE id = ? returning name", expected: true},
		{query: "CREATE TABLE t (id INT)", expected: false},
		{query: "", expected: false},
		{query: "/* unterminated", expected: false},
		{query: "WITH doomed AS (SELECT id FROM users WHERE banned) DELETE FROM users WHERE id IN (SELECT id FROM doomed)", expected: false},
		{query: "WITH x AS (SELECT 1) UPDATE users SET name = ? WHERE id = (SELECT * FROM x)", expected: false},
		{query: "WITH RECURSIVE n (i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 5) SELECT i FROM n", expected: true},
		{query: "INSERT INTO orders (returning_customer) VALUES (?)", expected: false},
		{query: "INSERT INTO notes (body) VALUES ('RETURNING soon')", expected: false},
		{query: "INSERT INTO notes (`returning`) VALUES (?)", expected: false},
		{query: "UPDATE users SET name = ? -- returning\n", expected: false},
		{query: "SELECT id INTO OUTFILE '/tmp/x' FROM users", expected: false},
		{query: "SELECT id FROM users INTO DUMPFILE '/tmp/x'", expected: false},
		{query: "SELECT COUNT(*) INTO @total FROM users", expected: false},
		{query: "SELECT id FROM users /*!50000 INTO OUTFILE '/tmp/x' */", expected: false},
		{query: "SELECT 'INTO OUTFILE' AS hint", expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			assert.Equal(t, tc.expected, ReturnsRows(tc.query))
		})
	}
}

func TestProbeable(t *testing.T) {
	testCases := []struct {
		query    string
		expected bool
	}{
		{query: "SELECT id, name FROM users WHERE id = ?", expected: true},
		{query: "WITH t AS (SELECT 1 AS n) SELECT n FROM t", expected: true},
		{query: "SELECT id FROM users WHERE id = ? FOR UPDATE", expected: true},
		{query: "EXPLAIN SELECT * FROM users", expected: true},
		{query: "SHOW COLUMNS FROM users", expected: true},
		{query: "INSERT INTO users (name) VALUES (?) RETURNING id", expected: false},
		{query: "DELETE FROM users WHERE id = ? RETURNING name", expected: false},
		{query: "WITH doomed AS (SELECT id FROM users) DELETE FROM users WHERE id IN (SELECT id FROM doomed)", expected: false},
		{query: "WITH gone AS (DELETE FROM users RETURNING id) SELECT id FROM gone", expected: false},
		{query: "SELECT NEXTVAL(order_seq)", expected: false},
		{query: "SELECT NEXT VALUE FOR order_seq", expected: false},
		{query: "SELECT SETVAL(order_seq, 100)", expected: false},
		{query: "EXPLAIN ANALYZE SELECT * FROM users", expected: false},
		{query: "SELECT id INTO OUTFILE '/tmp/x' FROM users", expected: false},
		{query: "INSERT INTO orders (returning_customer) VALUES (?)", expected: false},
		{query: "SELECT 'it''s' AS quote -- note", expected: true},
		{query: "SELECT 1--1 INTO OUTFILE '/tmp/x'", expected: false},
		{query: "SELECT 'a\\' INTO OUTFILE '/tmp/x' -- '", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			assert.Equal(t, tc.expected, Probeable(tc.query))
		})
	}
}

func TestLeadingKeyword(t *testing.T) {
	assert.Equal(t, "SELECT", LeadingKeyword("# mysql comment\n select 1"))
	assert.Equal(t, "WITH", LeadingKeyword("((with x AS (SELECT 1) SELECT * FROM x)"))
	assert.Equal(t, "", LeadingKeyword("-- only a comment"))
}
