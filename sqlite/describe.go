package sqlite

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-sqlite3"
	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/sqlconn"
	"github.com/shibukawa/sqlshape/typemap"
)

// Describe prepares query and reads parameter count and declared column types
func Describe(ctx context.Context, conn *sqlconn.Conn, query string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	n, err := conn.NumInput(ctx, query)
	if err != nil {
		return nil, describeError(query, err)
	}

	// go-sqlite3 binds and resets without stepping, the rollback is a second guard
	columns, err := conn.ProbeColumns(ctx, query, n)
	if err != nil {
		return nil, describeError(query, err)
	}

	mapper := typemap.For(sqlshape.DialectSQLite)

	desc := &sqlshape.Description{
		Dialect: sqlshape.DialectSQLite,
		Params:  make([]sqlshape.ParameterDescriptor, max(n, 0)),
		Columns: make([]sqlshape.ColumnDescriptor, len(columns)),
	}

	for i := range desc.Params {
		desc.Params[i] = sqlshape.ParameterDescriptor{
			Position: i + 1,
			Type:     mapper.TypeInfo(settings.SQLiteParameterType()),
			Nullable: sqlshape.NullabilityUnknown,
		}
	}

	for i, c := range columns {
		typeName := c.DatabaseType
		if typeName == "" {
			typeName = settings.SQLiteColumnType()
		}

		desc.Columns[i] = sqlshape.ColumnDescriptor{
			Name:     c.Name,
			Type:     mapper.TypeInfo(typeName),
			Nullable: sqlshape.NullabilityUnknown,
		}
	}

	return desc, nil
}

var nearPattern = regexp.MustCompile(`near "([^"]*)": syntax error`)

func describeError(query string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	derr := &sqlshape.DescribeError{
		Dialect: sqlshape.DialectSQLite,
		Query:   query,
		Message: err.Error(),
		Err:     err,
	}

	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		derr.Code = strconv.Itoa(int(sqErr.ExtendedCode))
		derr.Position = syntaxPosition(query, derr.Message)
	}

	return derr
}

// syntaxPosition finds the token SQLite reported a syntax error at
func syntaxPosition(query, message string) int {
	m := nearPattern.FindStringSubmatch(message)
	if m == nil || m[1] == "" {
		return 0
	}

	idx := strings.Index(query, m[1])
	if idx < 0 {
		return 0
	}

	return utf8.RuneCountInString(query[:idx]) + 1
}
