// Package sqlite registers the SQLite dialect.
//
// A statement is prepared and its result columns are read from the prepared
// statement before the first step, so describe never executes it. SQLite does not
// track nullability of result columns; every column is reported as unknown.
package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 database/sql driver
	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/driver"
	"github.com/shibukawa/sqlshape/sqlconn"
)

// RowType is the row shape tag reported for SQLite
const RowType = "*sql.Rows"

const (
	driverName = "sqlite3"
	memory     = ":memory:"
)

func init() {
	driver.Register(Dialect())
}

// Dialect returns the SQLite capability set
func Dialect() driver.Dialect[*sqlconn.Conn] {
	return driver.Dialect[*sqlconn.Conn]{
		Identity: sqlshape.DialectSQLite,
		RowType:  RowType,
		Schemes:  []string{"sqlite", "sqlite3", "file"},
		Connect:  Connect,
		Describe: Describe,
	}
}

// Connect opens the database file named by url
func Connect(ctx context.Context, databaseURL string) (*sqlconn.Conn, error) {
	dsn, err := DSN(databaseURL)
	if err != nil {
		return nil, err
	}

	return sqlconn.Open(ctx, driverName, dsn)
}

// DSN converts a sqlite URL to a go-sqlite3 file URI.
// Files are opened read-only unless the URL chooses a mode, so a mistyped path
// fails instead of creating an empty database.
func DSN(databaseURL string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %s", sqlshape.ErrConfiguration, sqlshape.ErrInvalidDatabaseURL, databaseURL)
	}

	var path string

	switch {
	case u.Opaque != "":
		// sqlite:relative.db, sqlite::memory:
		path = u.Opaque
	case u.Host != "":
		// sqlite://./relative.db
		path = u.Host + u.Path
	default:
		// sqlite:///absolute.db, sqlite:/absolute.db
		path = u.Path
	}

	if path == "" {
		return "", fmt.Errorf("%w: %w: database path is missing", sqlshape.ErrConfiguration, sqlshape.ErrInvalidDatabaseURL)
	}

	query := u.Query()
	if path != memory && !query.Has("mode") {
		query.Set("mode", "ro")
	}

	dsn := "file:" + strings.TrimPrefix(path, "file:")
	if encoded := query.Encode(); encoded != "" {
		dsn += "?" + encoded
	}

	return dsn, nil
}
