package main

import (
	"fmt"

	"github.com/shibukawa/sqlshape"
)

const defaultDatabase = "default"

// resolveDatabaseURL picks the database URL for a command.
// An explicit URL wins over a database name; without either, the only
// configured database or the one named "default" is used.
func resolveDatabaseURL(config *sqlshape.Config, name, url string) (string, error) {
	if url != "" {
		return url, nil
	}

	if name != "" {
		return config.DatabaseURL(name)
	}

	if len(config.Databases) == 1 {
		for name := range config.Databases {
			return config.DatabaseURL(name)
		}
	}

	if _, ok := config.Databases[defaultDatabase]; ok {
		return config.DatabaseURL(defaultDatabase)
	}

	return "", fmt.Errorf("%w (%d databases configured)", ErrNoDatabaseSelected, len(config.Databases))
}
