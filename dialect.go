package sqlshape

import (
	"fmt"
	"strings"
)

// Dialect identifies a supported database kind.
// It is the outer key of the describe cache registry: one cache exists per dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// schemeDialects maps URL schemes to the dialect that understands them.
var schemeDialects = map[string]Dialect{
	"postgres":   DialectPostgres,
	"postgresql": DialectPostgres,
	"mysql":      DialectMySQL,
	"mariadb":    DialectMySQL,
	"sqlite":     DialectSQLite,
	"sqlite3":    DialectSQLite,
	"file":       DialectSQLite,
}

// String returns the dialect tag
func (d Dialect) String() string {
	return string(d)
}

// DisplayName returns a human readable dialect name used in diagnostics
func (d Dialect) DisplayName() string {
	switch d {
	case DialectPostgres:
		return "PostgreSQL"
	case DialectMySQL:
		return "MySQL"
	case DialectSQLite:
		return "SQLite"
	default:
		return string(d)
	}
}

// Scheme returns the lower-cased scheme of a database URL (the part before the first colon).
func Scheme(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, ":")
	if !found {
		return ""
	}

	return strings.ToLower(scheme)
}

// DialectFromURL detects the dialect of a database URL from its scheme.
// Unknown schemes are reported as configuration errors.
func DialectFromURL(databaseURL string) (Dialect, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("%w: %w", ErrConfiguration, ErrEmptyDatabaseURL)
	}

	if d, ok := schemeDialects[Scheme(databaseURL)]; ok {
		return d, nil
	}

	return "", fmt.Errorf("%w: unrecognized database url: %q", ErrConfiguration, RedactURL(databaseURL))
}
