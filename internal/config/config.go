package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Import   ImportConfig   `yaml:"import"`
	Plans    PlansConfig    `yaml:"plans"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings. When File is set, logs are written
// there with size-based rotation instead of stderr.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ImportConfig bounds what a single import may carry.
type ImportConfig struct {
	MaxRecords   int   `yaml:"max_records"`
	MaxMessages  int   `yaml:"max_messages"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// PlansConfig holds the default plan limit per quota-enforced collection.
// -1 means unlimited.
type PlansConfig struct {
	Limits map[string]int `yaml:"limits"`
}

// LedgerConfig configures the failure ledger.
type LedgerConfig struct {
	Backend       string   `yaml:"backend"` // memory | sqlite
	Window        Duration `yaml:"window"`
	MaxPerUser    int      `yaml:"max_per_user"`
	PruneInterval Duration `yaml:"prune_interval"`
}

// ArchiveConfig configures periodic backup archives in S3-compatible
// storage. An empty Bucket disables archiving.
type ArchiveConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	UseSSL    *bool    `yaml:"use_ssl"`
	AccessKey string   `yaml:"-"` // env-only
	SecretKey string   `yaml:"-"` // env-only
	Interval  Duration `yaml:"interval"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// Enabled reports whether an archive bucket is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("LARDER_CONFIG_PATH", "config/larder.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path, which must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/larder.db",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Import: ImportConfig{
			MaxRecords:   10000,
			MaxMessages:  20,
			MaxBodyBytes: 32 << 20,
		},
		Plans: PlansConfig{
			Limits: map[string]int{
				"inventory": 100,
				"cookware":  50,
			},
		},
		Ledger: LedgerConfig{
			Backend:       "memory",
			Window:        Duration(24 * time.Hour),
			MaxPerUser:    50,
			PruneInterval: Duration(15 * time.Minute),
		},
		Archive: ArchiveConfig{
			Region:    "us-east-1",
			UseSSL:    &useSSL,
			Interval:  Duration(24 * time.Hour),
			URLExpiry: Duration(15 * time.Minute),
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty, parseable env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	envInt("LARDER_PORT", &cfg.Server.Port)
	envDuration("LARDER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("LARDER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("LARDER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	envString("LARDER_DB_PATH", &cfg.Database.Path)

	// Auth
	envString("LARDER_API_KEY", &cfg.Auth.APIKey)

	// Log
	envString("LARDER_LOG_LEVEL", &cfg.Log.Level)
	envString("LARDER_LOG_FORMAT", &cfg.Log.Format)
	envString("LARDER_LOG_FILE", &cfg.Log.File)

	// Import
	envInt("LARDER_IMPORT_MAX_RECORDS", &cfg.Import.MaxRecords)
	if v := os.Getenv("LARDER_IMPORT_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Import.MaxBodyBytes = n
		}
	}

	// Ledger
	envString("LARDER_LEDGER_BACKEND", &cfg.Ledger.Backend)
	envDuration("LARDER_LEDGER_WINDOW", &cfg.Ledger.Window)
	envDuration("LARDER_LEDGER_PRUNE_INTERVAL", &cfg.Ledger.PruneInterval)

	// Archive
	envString("LARDER_ARCHIVE_BUCKET", &cfg.Archive.Bucket)
	envString("LARDER_S3_ENDPOINT", &cfg.Archive.Endpoint)
	envString("LARDER_S3_REGION", &cfg.Archive.Region)
	envString("LARDER_S3_ACCESS_KEY", &cfg.Archive.AccessKey)
	envString("LARDER_S3_SECRET_KEY", &cfg.Archive.SecretKey)
	if v := os.Getenv("LARDER_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Archive.UseSSL = &useSSL
	}
	envDuration("LARDER_ARCHIVE_INTERVAL", &cfg.Archive.Interval)
	envDuration("LARDER_S3_URL_EXPIRY", &cfg.Archive.URLExpiry)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// validate checks that required configuration values are set.
// In dev mode (LARDER_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	switch c.Ledger.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("ledger.backend must be memory or sqlite, got %q", c.Ledger.Backend)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Import.MaxRecords <= 0 {
		return errors.New("import.max_records must be positive")
	}
	if c.Import.MaxBodyBytes <= 0 {
		return errors.New("import.max_body_bytes must be positive")
	}
	for collection, limit := range c.Plans.Limits {
		if limit < -1 {
			return fmt.Errorf("plans.limits.%s must be -1 (unlimited) or a non-negative count", collection)
		}
	}
	if c.Archive.Enabled() && c.Archive.Interval <= 0 {
		return errors.New("archive.interval must be positive when archive.bucket is set")
	}

	if os.Getenv("LARDER_DEV_MODE") == "true" {
		return nil
	}
	if c.Auth.APIKey == "" {
		return errors.New("LARDER_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
