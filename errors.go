package sqlshape

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Error kinds returned by the describe path. Callers classify failures with errors.Is.
var (
	// ErrConfiguration indicates malformed or unrecognized driver settings or database URL.
	// It is reported before any connection attempt.
	ErrConfiguration = errors.New("configuration error")
	// ErrConnection indicates a connection could not be established or reused.
	ErrConnection = errors.New("connection error")
	// ErrDescribeProtocol indicates the database rejected the statement or the exchange failed mid-protocol.
	ErrDescribeProtocol = errors.New("describe protocol error")
	// ErrPoolTimeout indicates no pooled connection became available within the acquire timeout.
	ErrPoolTimeout = errors.New("timed out waiting for a pooled connection")
)

// Configuration errors
var (
	// ErrEmptyDatabaseURL indicates no database URL was provided.
	ErrEmptyDatabaseURL = errors.New("database URL cannot be empty")
	// ErrInvalidDatabaseURL indicates the database URL could not be parsed.
	ErrInvalidDatabaseURL = errors.New("invalid database URL")
	// ErrDialectNotRegistered indicates the URL scheme is known but its dialect is not linked into the binary.
	ErrDialectNotRegistered = errors.New("dialect is not registered")
	// ErrExternalSettingsDecode indicates an external driver settings table could not be decoded.
	ErrExternalSettingsDecode = errors.New("failed to decode external driver settings")
)

// DescribeError carries statement-specific diagnostics for a failed describe exchange.
// errors.Is(err, ErrDescribeProtocol) holds for every DescribeError.
type DescribeError struct {
	Dialect  Dialect
	Query    string
	Code     string // server error code (SQLSTATE, MySQL error number, SQLite extended code)
	Message  string
	Position int // 1-based character position in Query, 0 when unknown
	Err      error
}

func (e *DescribeError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s: %s", ErrDescribeProtocol, e.Dialect)

	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}

	b.WriteString(": ")
	b.WriteString(e.Message)

	if e.Position > 0 {
		line, col := e.LineColumn()
		fmt.Fprintf(&b, " at line %d, column %d", line, col)
	}

	return b.String()
}

func (e *DescribeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDescribeProtocol}
	}

	return []error{ErrDescribeProtocol, e.Err}
}

// LineColumn converts Position to a 1-based line and column inside Query.
func (e *DescribeError) LineColumn() (int, int) {
	if e.Position <= 0 {
		return 0, 0
	}

	line, col := 1, 1

	for i, r := range []rune(e.Query) {
		if i+1 >= e.Position {
			break
		}

		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	return line, col
}

// RedactURL hides the password part of a database URL so it can be logged or reported.
func RedactURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.User == nil {
		return databaseURL
	}

	if _, ok := u.User.Password(); !ok {
		return databaseURL
	}

	return u.Redacted()
}
