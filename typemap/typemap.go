// Package typemap maps dialect-native type names reported by describe to generic kinds.
package typemap

import (
	"regexp"
	"strings"

	"github.com/shibukawa/sqlshape"
)

// Generic type kinds
const (
	KindString   = "string"
	KindInt      = "int"
	KindFloat    = "float"
	KindDecimal  = "decimal"
	KindBool     = "bool"
	KindDate     = "date"
	KindTime     = "time"
	KindDateTime = "datetime"
	KindJSON     = "json"
	KindArray    = "array"
	KindBinary   = "binary"
	KindUUID     = "uuid"
	KindAny      = "any"
)

// Mapper maps dialect-native type names to generic kinds
type Mapper struct {
	dialect  sqlshape.Dialect
	typeMap  map[string]string
	fallback string
}

var tinyintBool = regexp.MustCompile(`^tinyint\s*\(\s*1\s*\)`)

// For returns the mapper of a dialect. Unknown dialects get a mapper that reports KindAny.
func For(dialect sqlshape.Dialect) *Mapper {
	switch dialect {
	case sqlshape.DialectPostgres:
		return postgresMapper
	case sqlshape.DialectMySQL:
		return mysqlMapper
	case sqlshape.DialectSQLite:
		return sqliteMapper
	default:
		return &Mapper{dialect: dialect, typeMap: map[string]string{}, fallback: KindAny}
	}
}

// TypeInfo builds the type identity of a dialect-native type name
func (m *Mapper) TypeInfo(name string) sqlshape.TypeInfo {
	return sqlshape.TypeInfo{Name: name, Kind: m.Kind(name)}
}

// Kind maps a dialect-native type name to a generic kind
func (m *Mapper) Kind(dbType string) string {
	normalized := strings.ToLower(strings.TrimSpace(dbType))
	if normalized == "" {
		return KindAny
	}

	// Array types: "integer[]" and PostgreSQL's internal "_int4"
	if strings.HasSuffix(normalized, "[]") {
		return KindArray
	}

	if m.dialect == sqlshape.DialectPostgres && strings.HasPrefix(normalized, "_") {
		if _, ok := m.typeMap[normalized[1:]]; ok {
			return KindArray
		}
	}

	if m.dialect == sqlshape.DialectMySQL && tinyintBool.MatchString(normalized) {
		return KindBool
	}

	// Direct mapping
	if kind, ok := m.typeMap[normalized]; ok {
		return kind
	}

	// Types with parameters (varchar(255), numeric(10,2))
	if base, _, found := strings.Cut(normalized, "("); found {
		if kind, ok := m.typeMap[strings.TrimSpace(base)]; ok {
			return kind
		}
	}

	// Compound types (int unsigned, unsigned big int)
	for _, word := range strings.Fields(normalized) {
		if kind, ok := m.typeMap[word]; ok {
			return kind
		}
	}

	return m.fallback
}

var postgresMapper = &Mapper{
	dialect:  sqlshape.DialectPostgres,
	fallback: KindString,
	typeMap: map[string]string{
		// Integer types
		"integer":     KindInt,
		"int":         KindInt,
		"int4":        KindInt,
		"bigint":      KindInt,
		"int8":        KindInt,
		"smallint":    KindInt,
		"int2":        KindInt,
		"serial":      KindInt,
		"bigserial":   KindInt,
		"smallserial": KindInt,
		"oid":         KindInt,

		// String types
		"text":              KindString,
		"varchar":           KindString,
		"character varying": KindString,
		"character":         KindString,
		"char":              KindString,
		"bpchar":            KindString,
		"name":              KindString,
		"citext":            KindString,

		// Float types
		"real":             KindFloat,
		"float4":           KindFloat,
		"double precision": KindFloat,
		"float8":           KindFloat,
		"float":            KindFloat,

		"numeric": KindDecimal,
		"decimal": KindDecimal,
		"money":   KindDecimal,

		"boolean": KindBool,
		"bool":    KindBool,

		// Date/Time types
		"date":                        KindDate,
		"time":                        KindTime,
		"time with time zone":         KindTime,
		"time without time zone":      KindTime,
		"timetz":                      KindTime,
		"timestamp":                   KindDateTime,
		"timestamp with time zone":    KindDateTime,
		"timestamp without time zone": KindDateTime,
		"timestamptz":                 KindDateTime,

		"json":  KindJSON,
		"jsonb": KindJSON,

		"bytea": KindBinary,

		"uuid": KindUUID,

		// Other types that map to string
		"inet":     KindString,
		"cidr":     KindString,
		"macaddr":  KindString,
		"interval": KindString,
		"bit":      KindString,
		"varbit":   KindString,
		"xml":      KindString,

		"unknown": KindAny,
	},
}

var mysqlMapper = &Mapper{
	dialect:  sqlshape.DialectMySQL,
	fallback: KindString,
	typeMap: map[string]string{
		// Integer types
		"int":       KindInt,
		"integer":   KindInt,
		"bigint":    KindInt,
		"smallint":  KindInt,
		"tinyint":   KindInt,
		"mediumint": KindInt,
		"year":      KindInt,
		"unsigned":  KindInt,

		// String types
		"varchar":    KindString,
		"char":       KindString,
		"text":       KindString,
		"tinytext":   KindString,
		"mediumtext": KindString,
		"longtext":   KindString,
		"enum":       KindString,
		"set":        KindString,

		"float":  KindFloat,
		"double": KindFloat,
		"real":   KindFloat,

		"decimal": KindDecimal,
		"numeric": KindDecimal,

		"boolean": KindBool,
		"bool":    KindBool,

		// Date/Time types
		"date":      KindDate,
		"time":      KindTime,
		"datetime":  KindDateTime,
		"timestamp": KindDateTime,

		"json": KindJSON,

		// Binary types
		"blob":       KindBinary,
		"tinyblob":   KindBinary,
		"mediumblob": KindBinary,
		"longblob":   KindBinary,
		"binary":     KindBinary,
		"varbinary":  KindBinary,
		"bit":        KindBinary,
		"geometry":   KindBinary,

		"null": KindAny,
	},
}

var sqliteMapper = &Mapper{
	dialect: sqlshape.DialectSQLite,
	// SQLite is very flexible with types
	fallback: KindAny,
	typeMap: map[string]string{
		// Integer types
		"integer":  KindInt,
		"int":      KindInt,
		"bigint":   KindInt,
		"smallint": KindInt,
		"tinyint":  KindInt,

		// String types
		"text":      KindString,
		"varchar":   KindString,
		"char":      KindString,
		"character": KindString,
		"clob":      KindString,
		"nchar":     KindString,
		"nvarchar":  KindString,

		"real":   KindFloat,
		"double": KindFloat,
		"float":  KindFloat,

		"numeric": KindDecimal,
		"decimal": KindDecimal,

		"boolean": KindBool,
		"bool":    KindBool,

		// Date/Time types
		"date":      KindDate,
		"time":      KindTime,
		"datetime":  KindDateTime,
		"timestamp": KindDateTime,

		"json": KindJSON,

		"blob": KindBinary,

		"any": KindAny,
	},
}
