package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// Helper to clear all config-related env vars
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"LARDER_PORT",
		"LARDER_READ_TIMEOUT",
		"LARDER_WRITE_TIMEOUT",
		"LARDER_SHUTDOWN_TIMEOUT",
		"LARDER_DB_PATH",
		"LARDER_API_KEY",
		"LARDER_LOG_LEVEL",
		"LARDER_LOG_FORMAT",
		"LARDER_LOG_FILE",
		"LARDER_IMPORT_MAX_RECORDS",
		"LARDER_IMPORT_MAX_BODY_BYTES",
		"LARDER_LEDGER_BACKEND",
		"LARDER_LEDGER_WINDOW",
		"LARDER_LEDGER_PRUNE_INTERVAL",
		"LARDER_CONFIG_PATH",
		"LARDER_DEV_MODE",
		"LARDER_ARCHIVE_BUCKET",
		"LARDER_ARCHIVE_INTERVAL",
		"LARDER_S3_ENDPOINT",
		"LARDER_S3_REGION",
		"LARDER_S3_ACCESS_KEY",
		"LARDER_S3_SECRET_KEY",
		"LARDER_S3_USE_SSL",
		"LARDER_S3_URL_EXPIRY",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

// Helper to set dev mode so the API key is not required
func setDevModeEnv(t *testing.T) {
	t.Helper()
	os.Setenv("LARDER_DEV_MODE", "true")
}

// Helper to set production env vars (API key required)
func setProdEnv(t *testing.T) {
	t.Helper()
	os.Setenv("LARDER_API_KEY", "test-api-key")
}

// dur converts Duration to time.Duration for comparison
func dur(d Duration) time.Duration {
	return time.Duration(d)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "larder.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// Test: Default values when no config file and no env vars (dev mode)
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Server defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if dur(cfg.Server.ReadTimeout) != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if dur(cfg.Server.WriteTimeout) != 60*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want 60s", cfg.Server.WriteTimeout)
	}
	if dur(cfg.Server.ShutdownTimeout) != 15*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 15s", cfg.Server.ShutdownTimeout)
	}

	if cfg.Database.Path != "data/larder.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "data/larder.db")
	}

	// Import bounds
	if cfg.Import.MaxRecords != 10000 {
		t.Errorf("Import.MaxRecords = %d, want 10000", cfg.Import.MaxRecords)
	}
	if cfg.Import.MaxMessages != 20 {
		t.Errorf("Import.MaxMessages = %d, want 20", cfg.Import.MaxMessages)
	}
	if cfg.Import.MaxBodyBytes != 32<<20 {
		t.Errorf("Import.MaxBodyBytes = %d, want %d", cfg.Import.MaxBodyBytes, 32<<20)
	}

	// Plan defaults
	if cfg.Plans.Limits["inventory"] != 100 {
		t.Errorf("Plans.Limits[inventory] = %d, want 100", cfg.Plans.Limits["inventory"])
	}
	if cfg.Plans.Limits["cookware"] != 50 {
		t.Errorf("Plans.Limits[cookware] = %d, want 50", cfg.Plans.Limits["cookware"])
	}

	// Ledger defaults
	if cfg.Ledger.Backend != "memory" {
		t.Errorf("Ledger.Backend = %q, want memory", cfg.Ledger.Backend)
	}
	if dur(cfg.Ledger.Window) != 24*time.Hour {
		t.Errorf("Ledger.Window = %v, want 24h", cfg.Ledger.Window)
	}
	if cfg.Ledger.MaxPerUser != 50 {
		t.Errorf("Ledger.MaxPerUser = %d, want 50", cfg.Ledger.MaxPerUser)
	}

	// Log defaults
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	if cfg.Log.File != "" {
		t.Errorf("Log.File = %q, want empty", cfg.Log.File)
	}

	if cfg.Archive.Enabled() {
		t.Error("Archive.Enabled() = true, want false without a bucket")
	}
}

func TestLoad_ValidationFailsWithoutAPIKey(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error without LARDER_API_KEY")
	}
	if !strings.Contains(err.Error(), "LARDER_API_KEY") {
		t.Errorf("error = %q, want mention of LARDER_API_KEY", err.Error())
	}
}

func TestLoad_ValidationPassesWithAPIKey(t *testing.T) {
	clearEnv(t)
	setProdEnv(t)
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.APIKey != "test-api-key" {
		t.Errorf("Auth.APIKey = %q, want test-api-key", cfg.Auth.APIKey)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	os.Setenv("LARDER_PORT", "9090")
	os.Setenv("LARDER_DB_PATH", "/tmp/test.db")
	os.Setenv("LARDER_LOG_LEVEL", "debug")
	os.Setenv("LARDER_LOG_FILE", "/var/log/larder.log")
	os.Setenv("LARDER_IMPORT_MAX_RECORDS", "500")
	os.Setenv("LARDER_IMPORT_MAX_BODY_BYTES", "1048576")
	os.Setenv("LARDER_LEDGER_BACKEND", "sqlite")
	os.Setenv("LARDER_LEDGER_WINDOW", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want /tmp/test.db", cfg.Database.Path)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Log.File != "/var/log/larder.log" {
		t.Errorf("Log.File = %q, want /var/log/larder.log", cfg.Log.File)
	}
	if cfg.Import.MaxRecords != 500 {
		t.Errorf("Import.MaxRecords = %d, want 500", cfg.Import.MaxRecords)
	}
	if cfg.Import.MaxBodyBytes != 1048576 {
		t.Errorf("Import.MaxBodyBytes = %d, want 1048576", cfg.Import.MaxBodyBytes)
	}
	if cfg.Ledger.Backend != "sqlite" {
		t.Errorf("Ledger.Backend = %q, want sqlite", cfg.Ledger.Backend)
	}
	if dur(cfg.Ledger.Window) != 2*time.Hour {
		t.Errorf("Ledger.Window = %v, want 2h", cfg.Ledger.Window)
	}
}

func TestLoad_UnparseableEnvVarIgnored(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	os.Setenv("LARDER_PORT", "not-a-port")
	os.Setenv("LARDER_LEDGER_WINDOW", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if dur(cfg.Ledger.Window) != 24*time.Hour {
		t.Errorf("Ledger.Window = %v, want 24h", cfg.Ledger.Window)
	}
}

func TestLoadFromFile_ValidYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	path := writeConfig(t, `
server:
  port: 7070
  read_timeout: 10s
database:
  path: /data/sync.db
import:
  max_records: 2500
plans:
  limits:
    inventory: 250
    cookware: -1
ledger:
  backend: sqlite
  max_per_user: 10
log:
  level: warn
  format: text
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if dur(cfg.Server.ReadTimeout) != 10*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	// Unspecified fields keep defaults
	if dur(cfg.Server.WriteTimeout) != 60*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want 60s", cfg.Server.WriteTimeout)
	}
	if cfg.Database.Path != "/data/sync.db" {
		t.Errorf("Database.Path = %q, want /data/sync.db", cfg.Database.Path)
	}
	if cfg.Import.MaxRecords != 2500 {
		t.Errorf("Import.MaxRecords = %d, want 2500", cfg.Import.MaxRecords)
	}
	if cfg.Plans.Limits["inventory"] != 250 {
		t.Errorf("Plans.Limits[inventory] = %d, want 250", cfg.Plans.Limits["inventory"])
	}
	if cfg.Plans.Limits["cookware"] != -1 {
		t.Errorf("Plans.Limits[cookware] = %d, want -1", cfg.Plans.Limits["cookware"])
	}
	if cfg.Ledger.Backend != "sqlite" {
		t.Errorf("Ledger.Backend = %q, want sqlite", cfg.Ledger.Backend)
	}
	if cfg.Ledger.MaxPerUser != 10 {
		t.Errorf("Ledger.MaxPerUser = %d, want 10", cfg.Ledger.MaxPerUser)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	path := writeConfig(t, `
server:
  port: 7070
database:
  path: /data/from-yaml.db
`)
	os.Setenv("LARDER_CONFIG_PATH", path)
	os.Setenv("LARDER_PORT", "6060")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("Server.Port = %d, want 6060 (env wins)", cfg.Server.Port)
	}
	if cfg.Database.Path != "/data/from-yaml.db" {
		t.Errorf("Database.Path = %q, want /data/from-yaml.db", cfg.Database.Path)
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	path := writeConfig(t, "server: [unclosed")

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("LoadFromFile() expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("error = %q, want parsing config file", err.Error())
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("LoadFromFile() expected error for missing file")
	}
}

func TestLoad_MissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	os.Setenv("LARDER_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	path := writeConfig(t, `
ledger:
  window: forever
`)

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("LoadFromFile() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %q, want invalid duration", err.Error())
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown ledger backend",
			yaml:    "ledger:\n  backend: redis\n",
			wantErr: "ledger.backend",
		},
		{
			name:    "unknown log format",
			yaml:    "log:\n  format: xml\n",
			wantErr: "log.format",
		},
		{
			name:    "zero max records",
			yaml:    "import:\n  max_records: 0\n",
			wantErr: "import.max_records",
		},
		{
			name:    "plan limit below unlimited",
			yaml:    "plans:\n  limits:\n    inventory: -5\n",
			wantErr: "plans.limits.inventory",
		},
		{
			name:    "archive without interval",
			yaml:    "archive:\n  bucket: backups\n  interval: 0s\n",
			wantErr: "archive.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setDevModeEnv(t)
			defer clearEnv(t)

			_, err := LoadFromFile(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("LoadFromFile() expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_SecretsNotInYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Auth.APIKey = "secret-api-key"
	cfg.Archive.AccessKey = "AKIDEXAMPLE"
	cfg.Archive.SecretKey = "secret-s3-key"

	out, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	for _, secret := range []string{"secret-api-key", "AKIDEXAMPLE", "secret-s3-key"} {
		if strings.Contains(string(out), secret) {
			t.Errorf("marshaled YAML contains secret %q", secret)
		}
	}
}

func TestConfig_Archive_EnvOverrides(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	os.Setenv("LARDER_ARCHIVE_BUCKET", "larder-backups")
	os.Setenv("LARDER_S3_ENDPOINT", "minio.local:9000")
	os.Setenv("LARDER_S3_REGION", "eu-west-1")
	os.Setenv("LARDER_S3_ACCESS_KEY", "access")
	os.Setenv("LARDER_S3_SECRET_KEY", "secret")
	os.Setenv("LARDER_S3_USE_SSL", "false")
	os.Setenv("LARDER_ARCHIVE_INTERVAL", "6h")
	os.Setenv("LARDER_S3_URL_EXPIRY", "1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	a := cfg.Archive
	if !a.Enabled() {
		t.Error("Archive.Enabled() = false, want true")
	}
	if a.Bucket != "larder-backups" {
		t.Errorf("Bucket = %q, want larder-backups", a.Bucket)
	}
	if a.Endpoint != "minio.local:9000" {
		t.Errorf("Endpoint = %q, want minio.local:9000", a.Endpoint)
	}
	if a.Region != "eu-west-1" {
		t.Errorf("Region = %q, want eu-west-1", a.Region)
	}
	if a.AccessKey != "access" || a.SecretKey != "secret" {
		t.Errorf("credentials = %q/%q, want access/secret", a.AccessKey, a.SecretKey)
	}
	if a.UseSSL == nil || *a.UseSSL {
		t.Errorf("UseSSL = %v, want false", a.UseSSL)
	}
	if dur(a.Interval) != 6*time.Hour {
		t.Errorf("Interval = %v, want 6h", a.Interval)
	}
	if dur(a.URLExpiry) != time.Hour {
		t.Errorf("URLExpiry = %v, want 1h", a.URLExpiry)
	}
}

func TestConfig_Archive_UseSSLDefault(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	path := writeConfig(t, `
archive:
  bucket: larder-backups
  endpoint: s3.amazonaws.com
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Archive.UseSSL == nil || !*cfg.Archive.UseSSL {
		t.Errorf("UseSSL = %v, want true by default", cfg.Archive.UseSSL)
	}
	if cfg.Archive.Region != "us-east-1" {
		t.Errorf("Region = %q, want us-east-1", cfg.Archive.Region)
	}
}

func TestConfig_Archive_FromYAML(t *testing.T) {
	clearEnv(t)
	setDevModeEnv(t)
	defer clearEnv(t)

	path := writeConfig(t, `
archive:
  bucket: nightly
  endpoint: localhost:9000
  use_ssl: false
  interval: 12h
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Archive.Bucket != "nightly" {
		t.Errorf("Bucket = %q, want nightly", cfg.Archive.Bucket)
	}
	if cfg.Archive.UseSSL == nil || *cfg.Archive.UseSSL {
		t.Errorf("UseSSL = %v, want false", cfg.Archive.UseSSL)
	}
	if dur(cfg.Archive.Interval) != 12*time.Hour {
		t.Errorf("Interval = %v, want 12h", cfg.Archive.Interval)
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	d := Duration(90 * time.Second)
	out, err := yaml.Marshal(d)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	if strings.TrimSpace(string(out)) != "1m30s" {
		t.Errorf("Duration marshals to %q, want 1m30s", out)
	}
}
