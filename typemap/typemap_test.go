package typemap

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shibukawa/sqlshape"
)

func TestPostgresKinds(t *testing.T) {
	mapper := For(sqlshape.DialectPostgres)

	testCases := []struct {
		dbType       string
		expectedKind string
	}{
		{"int4", KindInt},
		{"integer", KindInt},
		{"bigserial", KindInt},
		{"character varying(255)", KindString},
		{"varchar(100)", KindString},
		{"text", KindString},
		{"bpchar", KindString},
		{"numeric(10,2)", KindDecimal},
		{"double precision", KindFloat},
		{"bool", KindBool},
		{"date", KindDate},
		{"time with time zone", KindTime},
		{"timestamptz", KindDateTime},
		{"jsonb", KindJSON},
		{"bytea", KindBinary},
		{"uuid", KindUUID},
		{"_int4", KindArray},
		{"text[]", KindArray},
		{"varchar(255)[]", KindArray},
		{"mood", KindString},
		{"unknown", KindAny},
		{"", KindAny},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expectedKind, mapper.Kind(tc.dbType), "Failed to map PostgreSQL type: %s", tc.dbType)
	}
}

func TestMySQLKinds(t *testing.T) {
	mapper := For(sqlshape.DialectMySQL)

	testCases := []struct {
		dbType       string
		expectedKind string
	}{
		{"INT", KindInt},
		{"BIGINT", KindInt},
		{"int unsigned", KindInt},
		{"UNSIGNED BIGINT", KindInt},
		{"tinyint(1)", KindBool},
		{"tinyint(4)", KindInt},
		{"VARCHAR", KindString},
		{"varchar(255)", KindString},
		{"DECIMAL", KindDecimal},
		{"DOUBLE", KindFloat},
		{"DATETIME", KindDateTime},
		{"JSON", KindJSON},
		{"BLOB", KindBinary},
		{"ENUM", KindString},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expectedKind, mapper.Kind(tc.dbType), "Failed to map MySQL type: %s", tc.dbType)
	}
}

func TestSQLiteKinds(t *testing.T) {
	mapper := For(sqlshape.DialectSQLite)

	testCases := []struct {
		dbType       string
		expectedKind string
	}{
		{"INTEGER", KindInt},
		{"TEXT", KindString},
		{"VARCHAR(20)", KindString},
		{"varying character", KindString},
		{"unsigned big int", KindInt},
		{"REAL", KindFloat},
		{"NUMERIC", KindDecimal},
		{"BLOB", KindBinary},
		{"", KindAny},
		{"whatever", KindAny},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expectedKind, mapper.Kind(tc.dbType), "Failed to map SQLite type: %s", tc.dbType)
	}
}

func TestTypeInfo(t *testing.T) {
	info := For(sqlshape.DialectPostgres).TypeInfo("int8")
	assert.Equal(t, sqlshape.TypeInfo{Name: "int8", Kind: KindInt}, info)

	unknown := For(sqlshape.Dialect("oracle")).TypeInfo("NUMBER")
	assert.Equal(t, KindAny, unknown.Kind)
}
