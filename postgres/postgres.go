// Package postgres registers the PostgreSQL dialect.
//
// Statements are described with an unnamed Parse/Describe exchange over pgx, so
// nothing is executed. Column nullability is looked up in pg_attribute for
// columns that originate from a table.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/driver"
)

// RowType is the row shape tag reported for PostgreSQL
const RowType = "pgx.Row"

const applicationName = "sqlshape"

func init() {
	driver.Register(Dialect())
}

// Dialect returns the PostgreSQL capability set
func Dialect() driver.Dialect[*pgx.Conn] {
	return driver.Dialect[*pgx.Conn]{
		Identity: sqlshape.DialectPostgres,
		RowType:  RowType,
		Schemes:  []string{"postgres", "postgresql"},
		Connect:  Connect,
		Describe: Describe,
	}
}

// Connect opens one session to the database at url
func Connect(ctx context.Context, url string) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", sqlshape.ErrConfiguration, sqlshape.ErrInvalidDatabaseURL, err)
	}

	if _, ok := cfg.RuntimeParams["application_name"]; !ok {
		cfg.RuntimeParams["application_name"] = applicationName
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sqlshape.ErrConnection, err)
	}

	return conn, nil
}
