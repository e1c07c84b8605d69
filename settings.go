package sqlshape

import (
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-yaml"
)

// Default values applied when a DriverSettings field is left empty
const (
	DefaultPostgresParameterType = "text"
	DefaultMySQLParameterType    = "TEXT"
	DefaultSQLiteParameterType   = "ANY"
	DefaultSQLiteColumnType      = "ANY"
	DefaultMaxConnections        = 4
	DefaultAcquireTimeout        = 30 * time.Second
	DefaultConnectTimeout        = 10 * time.Second
)

// DriverSettings is the parsed, dialect-scoped configuration consulted by describe.
// It is passed by pointer and never mutated by the describe path; a nil pointer means defaults.
// These settings only affect describe and the CLI, not application run time.
type DriverSettings struct {
	Postgres PostgresSettings `yaml:"postgres"`
	MySQL    MySQLSettings    `yaml:"mysql"`
	SQLite   SQLiteSettings   `yaml:"sqlite"`
	Pool     PoolSettings     `yaml:"pool"`
	External ExternalSettings `yaml:"external"`
}

// PostgresSettings configures the PostgreSQL dialect
type PostgresSettings struct {
	// InferNullability looks up pg_attribute.attnotnull for columns that come straight from a table.
	// Pointer to distinguish between unset (true) and false.
	InferNullability *bool `yaml:"infer_nullability"`
	// DefaultParameterType is reported when the server leaves a parameter type unknown.
	DefaultParameterType string `yaml:"default_parameter_type"`
}

// MySQLSettings configures the MySQL dialect
type MySQLSettings struct {
	// ProbeColumns runs the statement inside a rolled back transaction to learn its columns.
	ProbeColumns *bool `yaml:"probe_columns"`
	// DefaultParameterType is reported for every parameter, MySQL does not describe them.
	DefaultParameterType string `yaml:"default_parameter_type"`
}

// SQLiteSettings configures the SQLite dialect
type SQLiteSettings struct {
	DefaultParameterType string `yaml:"default_parameter_type"`
	DefaultColumnType    string `yaml:"default_column_type"`
}

// PoolSettings configures the connection pool created for each database URL.
// They are read when the pool for a URL is first created.
type PoolSettings struct {
	MaxConnections int           `yaml:"max_connections"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ExternalSettings holds opaque settings tables for dialects registered outside this module
type ExternalSettings map[string]map[string]any

// TryParse decodes the settings table for the named driver into out.
// It returns false without error when no table exists for name.
func (e ExternalSettings) TryParse(name string, out any) (bool, error) {
	table, ok := e[name]
	if !ok {
		return false, nil
	}

	data, err := yaml.Marshal(table)
	if err != nil {
		return false, fmt.Errorf("%w: %w: %s: %w", ErrConfiguration, ErrExternalSettingsDecode, name, err)
	}

	if err := yaml.UnmarshalWithOptions(data, out, yaml.Strict()); err != nil {
		return false, fmt.Errorf("%w: %w: %s: %w", ErrConfiguration, ErrExternalSettingsDecode, name, err)
	}

	return true, nil
}

// Validate checks the settings for malformed values
func (s *DriverSettings) Validate() error {
	if s == nil {
		return nil
	}

	if s.Pool.MaxConnections < 0 || s.Pool.MaxConnections > math.MaxInt32 {
		return fmt.Errorf("%w: pool.max_connections must be between 0 and %d, got %d", ErrConfigValidation, math.MaxInt32, s.Pool.MaxConnections)
	}

	if s.Pool.AcquireTimeout < 0 {
		return fmt.Errorf("%w: pool.acquire_timeout must be non-negative, got %s", ErrConfigValidation, s.Pool.AcquireTimeout)
	}

	if s.Pool.ConnectTimeout < 0 {
		return fmt.Errorf("%w: pool.connect_timeout must be non-negative, got %s", ErrConfigValidation, s.Pool.ConnectTimeout)
	}

	for name, table := range s.External {
		if name == "" {
			return fmt.Errorf("%w: external driver settings need a name", ErrConfigValidation)
		}

		if table == nil {
			return fmt.Errorf("%w: external.%s must be a mapping", ErrConfigValidation, name)
		}
	}

	return nil
}

// InferPostgresNullability reports whether PostgreSQL column nullability should be looked up
func (s *DriverSettings) InferPostgresNullability() bool {
	if s == nil || s.Postgres.InferNullability == nil {
		return true
	}

	return *s.Postgres.InferNullability
}

// PostgresParameterType returns the type reported for parameters left unknown by PostgreSQL
func (s *DriverSettings) PostgresParameterType() string {
	if s == nil || s.Postgres.DefaultParameterType == "" {
		return DefaultPostgresParameterType
	}

	return s.Postgres.DefaultParameterType
}

// ProbeMySQLColumns reports whether MySQL columns are learned with a rolled back probe
func (s *DriverSettings) ProbeMySQLColumns() bool {
	if s == nil || s.MySQL.ProbeColumns == nil {
		return true
	}

	return *s.MySQL.ProbeColumns
}

// MySQLParameterType returns the type reported for MySQL parameters
func (s *DriverSettings) MySQLParameterType() string {
	if s == nil || s.MySQL.DefaultParameterType == "" {
		return DefaultMySQLParameterType
	}

	return s.MySQL.DefaultParameterType
}

// SQLiteParameterType returns the type reported for SQLite parameters
func (s *DriverSettings) SQLiteParameterType() string {
	if s == nil || s.SQLite.DefaultParameterType == "" {
		return DefaultSQLiteParameterType
	}

	return s.SQLite.DefaultParameterType
}

// SQLiteColumnType returns the type reported for SQLite columns without a declared type
func (s *DriverSettings) SQLiteColumnType() string {
	if s == nil || s.SQLite.DefaultColumnType == "" {
		return DefaultSQLiteColumnType
	}

	return s.SQLite.DefaultColumnType
}

// PoolOptions returns the pool settings with defaults applied
func (s *DriverSettings) PoolOptions() PoolSettings {
	var p PoolSettings
	if s != nil {
		p = s.Pool
	}

	if p.MaxConnections == 0 {
		p.MaxConnections = DefaultMaxConnections
	}

	if p.AcquireTimeout == 0 {
		p.AcquireTimeout = DefaultAcquireTimeout
	}

	if p.ConnectTimeout == 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}

	return p
}
