package mysql

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/shibukawa/sqlshape"
	"github.com/shibukawa/sqlshape/sqlconn"
	"github.com/shibukawa/sqlshape/typemap"
)

// Describe prepares query to count its placeholders and, for reading statements that
// return rows, probes the result columns in a read-only transaction. Data changing
// statements are never executed, so a RETURNING clause reports no columns.
func Describe(ctx context.Context, conn *sqlconn.Conn, query string, settings *sqlshape.DriverSettings) (*sqlshape.Description, error) {
	n, err := conn.NumInput(ctx, query)
	if err != nil {
		return nil, describeError(query, err)
	}

	mapper := typemap.For(sqlshape.DialectMySQL)

	desc := &sqlshape.Description{
		Dialect: sqlshape.DialectMySQL,
		Params:  make([]sqlshape.ParameterDescriptor, max(n, 0)),
		Columns: []sqlshape.ColumnDescriptor{},
	}

	for i := range desc.Params {
		desc.Params[i] = sqlshape.ParameterDescriptor{
			Position: i + 1,
			Type:     mapper.TypeInfo(settings.MySQLParameterType()),
			Nullable: sqlshape.NullabilityUnknown,
		}
	}

	if !settings.ProbeMySQLColumns() || !sqlconn.Probeable(query) {
		return desc, nil
	}

	columns, err := conn.ProbeColumns(ctx, query, n)
	if err != nil {
		return nil, describeError(query, err)
	}

	for _, c := range columns {
		desc.Columns = append(desc.Columns, sqlshape.ColumnDescriptor{
			Name:     c.Name,
			Type:     mapper.TypeInfo(c.DatabaseType),
			Nullable: c.Nullable,
		})
	}

	return desc, nil
}

var nearPattern = regexp.MustCompile(`(?s)near '(.*)' at line (\d+)\s*$`)

func describeError(query string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	derr := &sqlshape.DescribeError{
		Dialect: sqlshape.DialectMySQL,
		Query:   query,
		Message: err.Error(),
		Err:     err,
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		derr.Code = strconv.Itoa(int(myErr.Number))
		derr.Message = myErr.Message
		derr.Position = syntaxPosition(query, myErr.Message)
	}

	return derr
}

// syntaxPosition locates the "near '...'" excerpt of a MySQL syntax error in query.
// The excerpt is truncated by the server, so only its prefix is searched.
func syntaxPosition(query, message string) int {
	m := nearPattern.FindStringSubmatch(message)
	if m == nil || m[1] == "" {
		return 0
	}

	excerpt := m[1]
	if line, _, found := strings.Cut(excerpt, "\n"); found {
		excerpt = line
	}

	idx := strings.Index(query, excerpt)
	if idx < 0 {
		return 0
	}

	return utf8.RuneCountInString(query[:idx]) + 1
}
