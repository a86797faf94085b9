package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DriverMemory keeps all data in process memory.
	DriverMemory = "memory"

	// DriverSQLite persists data in a SQLite file.
	DriverSQLite = "sqlite"

	// MaxSearchLimit is the largest number of entities a search may return.
	MaxSearchLimit = 20
)

// Config holds all configuration for entitext.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	API     APIConfig     `mapstructure:"api"`
	Search  SearchConfig  `mapstructure:"search"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig selects and locates the storage backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// String returns a safe representation of APIConfig with the token masked.
func (c APIConfig) String() string {
	return fmt.Sprintf("APIConfig{ListenAddr:%s, AuthToken:%s}", c.ListenAddr, maskToken(c.AuthToken))
}

// maskToken shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskToken(key string) string {
	const visible = 4
	if key == "" {
		return ""
	}
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// SearchConfig holds entity search settings.
type SearchConfig struct {
	Limit int `mapstructure:"limit"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", filepath.Join(homeDir(), ".entitext", "entitext.db"))

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")

	v.SetDefault("search.limit", MaxSearchLimit)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".entitext"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("ENTITEXT")
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("store.driver", "ENTITEXT_STORE_DRIVER")
	_ = v.BindEnv("store.path", "ENTITEXT_STORE_PATH")
	_ = v.BindEnv("api.listen_addr", "ENTITEXT_API_LISTEN_ADDR")
	_ = v.BindEnv("api.auth_token", "ENTITEXT_API_AUTH_TOKEN")
	_ = v.BindEnv("search.limit", "ENTITEXT_SEARCH_LIMIT")
	_ = v.BindEnv("logging.level", "ENTITEXT_LOGGING_LEVEL")
	_ = v.BindEnv("logging.format", "ENTITEXT_LOGGING_FORMAT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must not be empty when store.driver is %q", DriverSQLite)
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverMemory, DriverSQLite, c.Store.Driver)
	}
	if c.Search.Limit < 1 || c.Search.Limit > MaxSearchLimit {
		return fmt.Errorf("search.limit must be between 1 and %d", MaxSearchLimit)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
