package sqlshape

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// ErrConfigValidation is returned when configuration validation fails
var ErrConfigValidation = fmt.Errorf("%w: configuration validation failed", ErrConfiguration)

// ErrDatabaseNotConfigured is returned when a named database is missing from the configuration
var ErrDatabaseNotConfigured = errors.New("database is not configured")

// Config represents the sqlshape project configuration
type Config struct {
	Databases map[string]Database `yaml:"databases"`
	Drivers   DriverSettings      `yaml:"drivers"`
	Queries   QueriesConfig       `yaml:"queries"`
	Check     CheckConfig         `yaml:"check"`
}

// Database represents a database the describe step connects to
type Database struct {
	URL string `yaml:"url"`
}

// QueriesConfig tells the check command where statements live
type QueriesConfig struct {
	InputDir   string   `yaml:"input_dir"`
	Extensions []string `yaml:"extensions"`
}

// CheckConfig represents settings of the check command
type CheckConfig struct {
	Parallel int `yaml:"parallel"` // 0 means use CPU count
}

// LoadConfig loads configuration from the specified file
func LoadConfig(configPath string) (*Config, error) {
	// Load .env files first
	err := loadEnvFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment files: %w", err)
	}

	// Return default configuration if file doesn't exist
	_, err = os.Stat(configPath)
	if os.IsNotExist(err) {
		config := getDefaultConfig()
		expandConfigEnvVars(config)

		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses, validates and completes a configuration document
func ParseConfig(data []byte) (*Config, error) {
	var config Config

	// Parse YAML with strict mode to detect unknown fields
	err := yaml.UnmarshalWithOptions(data, &config, yaml.Strict())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %w", ErrConfiguration, err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	expandConfigEnvVars(&config)

	return &config, nil
}

// DatabaseURL returns the URL of the named database
func (c *Config) DatabaseURL(name string) (string, error) {
	db, ok := c.Databases[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDatabaseNotConfigured, name)
	}

	if db.URL == "" {
		return "", fmt.Errorf("%w: databases.%s.url", ErrEmptyDatabaseURL, name)
	}

	return db.URL, nil
}

// validateConfig validates the configuration for common errors and inconsistencies
func validateConfig(config *Config) error {
	for name, db := range config.Databases {
		if db.URL == "" {
			return fmt.Errorf("%w: databases.%s.url is required", ErrConfigValidation, name)
		}
	}

	if err := config.Drivers.Validate(); err != nil {
		return err
	}

	if config.Check.Parallel < 0 {
		return fmt.Errorf("%w: check.parallel must be non-negative, got %d", ErrConfigValidation, config.Check.Parallel)
	}

	for _, ext := range config.Queries.Extensions {
		if len(ext) < 2 || ext[0] != '.' {
			return fmt.Errorf("%w: queries.extensions entry %q must start with a dot", ErrConfigValidation, ext)
		}
	}

	return nil
}

// getDefaultConfig returns the default configuration
func getDefaultConfig() *Config {
	return &Config{
		Databases: make(map[string]Database),
		Queries: QueriesConfig{
			InputDir:   "./queries",
			Extensions: []string{".sql"},
		},
	}
}

// applyDefaults applies default values to missing configuration fields
func applyDefaults(config *Config) {
	if config.Databases == nil {
		config.Databases = make(map[string]Database)
	}

	if config.Queries.InputDir == "" {
		config.Queries.InputDir = "./queries"
	}

	if len(config.Queries.Extensions) == 0 {
		config.Queries.Extensions = []string{".sql"}
	}

	config.Queries.Extensions = slices.Compact(slices.Sorted(slices.Values(config.Queries.Extensions)))
}

// loadEnvFiles loads .env files if they exist
func loadEnvFiles() error {
	if fileExists(".env") {
		err := godotenv.Load(".env")
		if err != nil {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	return nil
}

var (
	bracedEnvVar = regexp.MustCompile(`\$\{([^}]+)\}`)
	bareEnvVar   = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
)

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(s string) string {
	s = bracedEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})

	return bareEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[1:])
	})
}

// expandConfigEnvVars expands environment variables in database URLs and paths
func expandConfigEnvVars(config *Config) {
	for name, db := range config.Databases {
		db.URL = expandEnvVars(db.URL)
		config.Databases[name] = db
	}

	config.Queries.InputDir = expandEnvVars(config.Queries.InputDir)
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
