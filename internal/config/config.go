package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v8"
	"go.uber.org/multierr"
)

type Config struct {
	// Remote columnar source (R2, S3-compatible).
	R2Endpoint  string `env:"R2_ENDPOINT_URL"`
	R2AccessKey string `env:"R2_ACCESS_KEY_ID"`
	R2SecretKey string `env:"R2_SECRET_ACCESS_KEY"`
	R2Bucket    string `env:"R2_BUCKET"`
	CategoryID  string `env:"CATEGORY_ID" envDefault:"1"`

	// Local snapshot store and generated files.
	SQLiteFile string `env:"SQLITE_FILE" envDefault:"tcg_data.db"`
	DumpDir    string `env:"DUMP_DIR" envDefault:"."`

	// Chunk sizes, tuned empirically against the remote target's
	// per-file execution ceiling. Re-tune if D1's limits change.
	SKUChunkSize     int `env:"SKU_CHUNK_SIZE" envDefault:"500000"`
	ProductChunkSize int `env:"PRODUCT_CHUNK_SIZE" envDefault:"50000"`

	// Remote execution target (Cloudflare D1 via wrangler).
	D1Database string `env:"D1_DATABASE" envDefault:"tcg-matcher-db"`
	WorkingDir string `env:"WORKING_DIR" envDefault:"worker"`

	// Phase toggles (also settable via CLI flags).
	SkipDownload bool `env:"SKIP_DOWNLOAD" envDefault:"false"`
	SkipImport   bool `env:"SKIP_IMPORT" envDefault:"false"`

	// Observability & Debugging
	EnableJsonLogging bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
	EnablePprof       bool `env:"ENABLE_PPROF" envDefault:"false"`
	MetricsPort       int  `env:"METRICS_PORT" envDefault:"9091"`
	DebugMode         bool `env:"DEBUG_MODE" envDefault:"false"`

	// Vault (optional source for the R2 key pair)
	VaultEnabled    bool   `env:"VAULT_ENABLED" envDefault:"false"`
	VaultAddr       string `env:"VAULT_ADDR" envDefault:"http://127.0.0.1:8200"`
	VaultToken      string `env:"VAULT_TOKEN"`
	VaultCACert     string `env:"VAULT_CACERT"`
	VaultSkipVerify bool   `env:"VAULT_SKIP_VERIFY" envDefault:"false"`
	R2SecretPath    string `env:"R2_SECRET_PATH"`
	R2AccessKeyKey  string `env:"R2_ACCESS_KEY_KEY" envDefault:"access_key_id"`
	R2SecretKeyKey  string `env:"R2_SECRET_KEY_KEY" envDefault:"secret_access_key"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config parsing error: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	var err error

	if cfg.SKUChunkSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("SKU_CHUNK_SIZE must be positive, got %d", cfg.SKUChunkSize))
	}
	if cfg.ProductChunkSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("PRODUCT_CHUNK_SIZE must be positive, got %d", cfg.ProductChunkSize))
	}
	if cfg.MetricsPort < 1 || cfg.MetricsPort > 65535 {
		err = multierr.Append(err, fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort))
	}
	if cfg.SQLiteFile == "" {
		err = multierr.Append(err, fmt.Errorf("SQLITE_FILE cannot be empty"))
	}
	if cfg.D1Database == "" {
		err = multierr.Append(err, fmt.Errorf("D1_DATABASE cannot be empty"))
	}
	if cfg.CategoryID == "" {
		err = multierr.Append(err, fmt.Errorf("CATEGORY_ID cannot be empty"))
	}
	if cfg.VaultEnabled && cfg.R2SecretPath == "" {
		err = multierr.Append(err, fmt.Errorf("VAULT_ENABLED is set but R2_SECRET_PATH is empty"))
	}

	return err
}

// MissingSourceVars lists the R2 environment variables that still have no
// value. Credential presence is checked only after the secret managers have
// had a chance to fill the key pair, so it lives apart from validateConfig.
func (c *Config) MissingSourceVars() []string {
	var missing []string
	if strings.TrimSpace(c.R2Endpoint) == "" {
		missing = append(missing, "R2_ENDPOINT_URL")
	}
	if c.R2AccessKey == "" {
		missing = append(missing, "R2_ACCESS_KEY_ID")
	}
	if c.R2SecretKey == "" {
		missing = append(missing, "R2_SECRET_ACCESS_KEY")
	}
	if c.R2Bucket == "" {
		missing = append(missing, "R2_BUCKET")
	}
	return missing
}

// S3Endpoint returns the endpoint without its URL scheme, which is the form
// DuckDB's httpfs settings expect.
func (c *Config) S3Endpoint() string {
	ep := strings.TrimSuffix(strings.TrimSpace(c.R2Endpoint), "/")
	ep = strings.TrimPrefix(ep, "https://")
	ep = strings.TrimPrefix(ep, "http://")
	return ep
}

// StorePath returns the local snapshot store location resolved against the
// dump directory when relative.
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.SQLiteFile) {
		return c.SQLiteFile
	}
	return filepath.Join(c.DumpDir, c.SQLiteFile)
}
