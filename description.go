package sqlshape

import "slices"

// Nullability is the tri-state nullability reported for parameters and columns
type Nullability int

const (
	// NullabilityUnknown means the database could not tell (computed expressions, parameters).
	NullabilityUnknown Nullability = iota
	// NotNull means the value is definitely not null.
	NotNull
	// Nullable means the value may be null.
	Nullable
)

func (n Nullability) String() string {
	switch n {
	case NotNull:
		return "not null"
	case Nullable:
		return "nullable"
	default:
		return "unknown"
	}
}

// MarshalText encodes the nullability for JSON and YAML output
func (n Nullability) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// TypeInfo identifies the type of a parameter or column
type TypeInfo struct {
	Name string `json:"name" yaml:"name"`                   // Dialect-native type name (int4, VARCHAR, ...)
	Kind string `json:"kind" yaml:"kind"`                   // Generic kind (int, string, ...)
	OID  uint32 `json:"oid,omitempty" yaml:"oid,omitempty"` // PostgreSQL type OID
}

// ParameterDescriptor describes one bind parameter
type ParameterDescriptor struct {
	Position int         `json:"position" yaml:"position"` // 1-based
	Type     TypeInfo    `json:"type" yaml:"type"`
	Nullable Nullability `json:"nullable" yaml:"nullable"`
}

// ColumnDescriptor describes one result column
type ColumnDescriptor struct {
	Name     string      `json:"name" yaml:"name"`
	Type     TypeInfo    `json:"type" yaml:"type"`
	Nullable Nullability `json:"nullable" yaml:"nullable"`
}

// Description is the shape of a statement as reported by the database.
// A Description returned from the describe cache is shared and must be treated as read-only.
type Description struct {
	Dialect Dialect               `json:"dialect" yaml:"dialect"`
	Params  []ParameterDescriptor `json:"params" yaml:"params"`
	Columns []ColumnDescriptor    `json:"columns" yaml:"columns"`
}

// Clone returns a deep copy
func (d *Description) Clone() *Description {
	if d == nil {
		return nil
	}

	return &Description{
		Dialect: d.Dialect,
		Params:  slices.Clone(d.Params),
		Columns: slices.Clone(d.Columns),
	}
}

// Equal reports whether two descriptions describe the same shape
func (d *Description) Equal(other *Description) bool {
	if d == nil || other == nil {
		return d == other
	}

	return d.Dialect == other.Dialect &&
		slices.Equal(d.Params, other.Params) &&
		slices.Equal(d.Columns, other.Columns)
}

// HasUnknownNullability reports whether any column nullability could not be determined
func (d *Description) HasUnknownNullability() bool {
	for _, c := range d.Columns {
		if c.Nullable == NullabilityUnknown {
			return true
		}
	}

	return false
}

// Column returns the column with the given name
func (d *Description) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}

	return ColumnDescriptor{}, false
}
