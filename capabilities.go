package sqlshape

// Feature represents what a dialect's describe exchange can report
type Feature int

const (
	FeatureParameterTypes    Feature = iota + 1 // server reports parameter types
	FeatureColumnNullability                    // server reports column nullability
	FeatureColumnTypes                          // server reports column types for expressions
	FeatureRollbackProbe                        // shape is learned inside a rolled back transaction
)

// Capabilities defines which describe features are supported by each dialect
var Capabilities = map[Dialect]map[Feature]bool{
	DialectPostgres: {
		FeatureParameterTypes:    true,
		FeatureColumnNullability: true,
		FeatureColumnTypes:       true,
		FeatureRollbackProbe:     false,
	},
	DialectMySQL: {
		FeatureParameterTypes:    false,
		FeatureColumnNullability: true,
		FeatureColumnTypes:       true,
		FeatureRollbackProbe:     true,
	},
	DialectSQLite: {
		FeatureParameterTypes:    false,
		FeatureColumnNullability: false,
		FeatureColumnTypes:       false,
		FeatureRollbackProbe:     true,
	},
}

// Supports reports whether the dialect supports the feature
func (d Dialect) Supports(feature Feature) bool {
	return Capabilities[d][feature]
}

var featureNames = map[Feature]string{
	FeatureParameterTypes:    "parameter types",
	FeatureColumnNullability: "column nullability",
	FeatureColumnTypes:       "column types",
	FeatureRollbackProbe:     "rollback probe",
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}

	return "unknown feature"
}

// Features returns the features the dialect supports, in declaration order
func (d Dialect) Features() []Feature {
	var features []Feature

	for f := FeatureParameterTypes; f <= FeatureRollbackProbe; f++ {
		if d.Supports(f) {
			features = append(features, f)
		}
	}

	return features
}
