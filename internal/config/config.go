// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar points at an optional YAML config file.
const ConfigPathEnvVar = "KICKHAVEN_CONFIG"

// DevelopmentJWTSecret is the built-in signing key. It is only accepted with
// the in-memory store.
const DevelopmentJWTSecret = "kickhaven-development-secret"

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int           `koanf:"port" validate:"min=1,max=65535"`
	Host           string        `koanf:"host"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	MetricsEnabled bool          `koanf:"metrics_enabled"`
}

// DatabaseConfig holds database configuration settings. The URI scheme picks
// the backend: mongodb, postgres or memory.
type DatabaseConfig struct {
	URI          string        `koanf:"uri" validate:"required"`
	Name         string        `koanf:"name" validate:"required"`
	Transactions bool          `koanf:"transactions"`
	OpTimeout    time.Duration `koanf:"op_timeout" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=16"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins" validate:"min=1"`
}

type RateLimitConfig struct {
	VotesPerMinute int `koanf:"votes_per_minute" validate:"min=0"`
}

type ReconcileConfig struct {
	// Interval between sweeps of dirty targets. Zero disables the sweep.
	Interval time.Duration `koanf:"interval" validate:"min=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Log       LogConfig       `koanf:"log"`
}

// DefaultConfig provides default settings suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			RequestTimeout: 5 * time.Second,
			MetricsEnabled: true,
		},
		Database: DatabaseConfig{
			URI:          "memory://",
			Name:         "kickhaven",
			Transactions: false,
			OpTimeout:    3 * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret: DevelopmentJWTSecret,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			VotesPerMinute: 120,
		},
		Reconcile: ReconcileConfig{
			Interval: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// envMappings maps environment variables to config paths.
var envMappings = map[string]string{
	"port":               "server.port",
	"host":               "server.host",
	"request_timeout":    "server.request_timeout",
	"metrics_enabled":    "server.metrics_enabled",
	"database_url":       "database.uri",
	"mongodb_uri":        "database.uri",
	"db_name":            "database.name",
	"db_transactions":    "database.transactions",
	"db_op_timeout":      "database.op_timeout",
	"jwt_secret":         "auth.jwt_secret",
	"allowed_origins":    "cors.allowed_origins",
	"votes_per_minute":   "ratelimit.votes_per_minute",
	"reconcile_interval": "reconcile.interval",
	"log_level":          "log.level",
	"log_format":         "log.format",
}

var sliceConfigPaths = []string{"cors.allowed_origins"}

// LoadConfig layers defaults, an optional YAML file and the environment.
// .env files are loaded into the environment first.
func LoadConfig() (*Config, error) {
	loadDotEnv()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the struct tags, and refuses the development signing key
// for any persistent store.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Auth.JWTSecret == DevelopmentJWTSecret && !strings.HasPrefix(c.Database.URI, "memory://") {
		return errors.New("auth.jwt_secret must be set (JWT_SECRET) when the database is not memory://")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func loadDotEnv() {
	envLocations := []string{
		".env",          // Current directory
		"../../.env",    // Project root when running from cmd/engine
		"../../../.env", // Even higher directory
	}
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			return
		}
	}
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range []string{"config.yaml", filepath.Join("..", "..", "config.yaml")} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc returns "" for variables that are not ours so koanf skips them.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
