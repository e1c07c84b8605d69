// Package mysql registers the MySQL and MariaDB dialect.
//
// MySQL's prepare reports only the number of placeholders, so parameters get the
// configured default type. Result columns are learned by running the statement with
// NULL arguments inside a transaction that is always rolled back.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/driver"
	"github.com/shibukawa/sqlshape/sqlconn"
)

// RowType is the row shape tag reported for MySQL
const RowType = "*sql.Rows"

const defaultPort = "3306"

func init() {
	driver.Register(Dialect())
}

// Dialect returns the MySQL capability set
func Dialect() driver.Dialect[*sqlconn.Conn] {
	return driver.Dialect[*sqlconn.Conn]{
		Identity: sqlshape.DialectMySQL,
		RowType:  RowType,
		Schemes:  []string{"mysql", "mariadb"},
		Connect:  Connect,
		Describe: Describe,
	}
}

// Connect opens one session to the database at url
func Connect(ctx context.Context, databaseURL string) (*sqlconn.Conn, error) {
	cfg, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	connector, err := mysqldriver.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sqlshape.ErrConfiguration, err)
	}

	return sqlconn.New(ctx, sql.OpenDB(connector), sqlconn.WithBrokenCheck(isBroken))
}

// ParseURL converts a mysql:// or mariadb:// URL to a driver configuration.
// Query parameters are passed through as DSN parameters.
func ParseURL(databaseURL string) (*mysqldriver.Config, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %s", sqlshape.ErrConfiguration, sqlshape.ErrInvalidDatabaseURL, sqlshape.RedactURL(databaseURL))
	}

	if u.Host == "" {
		return nil, fmt.Errorf("%w: %w: host is missing", sqlshape.ErrConfiguration, sqlshape.ErrInvalidDatabaseURL)
	}

	cfg := mysqldriver.NewConfig()

	var dsn strings.Builder

	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}

	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(u.Hostname(), port)
	cfg.DBName = strings.TrimPrefix(u.Path, "/")

	dsn.WriteString(cfg.FormatDSN())

	if u.RawQuery != "" {
		if strings.Contains(dsn.String(), "?") {
			dsn.WriteByte('&')
		} else {
			dsn.WriteByte('?')
		}

		dsn.WriteString(u.RawQuery)
	}

	parsed, err := mysqldriver.ParseDSN(dsn.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", sqlshape.ErrConfiguration, sqlshape.ErrInvalidDatabaseURL, err)
	}

	return parsed, nil
}

func isBroken(err error) bool {
	return errors.Is(err, mysqldriver.ErrInvalidConn)
}
