package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		R2Endpoint:       "https://account.r2.cloudflarestorage.com",
		R2AccessKey:      "ak",
		R2SecretKey:      "sk",
		R2Bucket:         "snapshots",
		CategoryID:       "1",
		SQLiteFile:       "tcg_data.db",
		DumpDir:          ".",
		SKUChunkSize:     500_000,
		ProductChunkSize: 50_000,
		D1Database:       "tcg-matcher-db",
		MetricsPort:      9091,
	}
}

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Valid", func(c *Config) {}, ""},
		{"Zero SKU Chunk Size", func(c *Config) { c.SKUChunkSize = 0 }, "SKU_CHUNK_SIZE"},
		{"Negative Product Chunk Size", func(c *Config) { c.ProductChunkSize = -1 }, "PRODUCT_CHUNK_SIZE"},
		{"Bad Metrics Port", func(c *Config) { c.MetricsPort = 70000 }, "metrics port"},
		{"Empty Store File", func(c *Config) { c.SQLiteFile = "" }, "SQLITE_FILE"},
		{"Empty Database", func(c *Config) { c.D1Database = "" }, "D1_DATABASE"},
		{"Empty Category", func(c *Config) { c.CategoryID = "" }, "CATEGORY_ID"},
		{"Vault Without Path", func(c *Config) { c.VaultEnabled = true }, "R2_SECRET_PATH"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(cfg)
			err := validateConfig(cfg)
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestValidateConfigAggregatesAllFindings(t *testing.T) {
	cfg := validTestConfig()
	cfg.SKUChunkSize = 0
	cfg.D1Database = ""
	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SKU_CHUNK_SIZE")
	assert.Contains(t, err.Error(), "D1_DATABASE")
}

func TestMissingSourceVars(t *testing.T) {
	cfg := validTestConfig()
	assert.Empty(t, cfg.MissingSourceVars())

	cfg.R2AccessKey = ""
	cfg.R2Bucket = ""
	assert.Equal(t, []string{"R2_ACCESS_KEY_ID", "R2_BUCKET"}, cfg.MissingSourceVars())
}

func TestS3Endpoint(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"HTTPS Scheme", "https://account.r2.cloudflarestorage.com", "account.r2.cloudflarestorage.com"},
		{"HTTP Scheme", "http://localhost:9000", "localhost:9000"},
		{"Trailing Slash", "https://account.r2.cloudflarestorage.com/", "account.r2.cloudflarestorage.com"},
		{"Bare Host", "account.r2.cloudflarestorage.com", "account.r2.cloudflarestorage.com"},
		{"Surrounding Spaces", "  https://host  ", "host"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{R2Endpoint: tc.input}
			assert.Equal(t, tc.expected, cfg.S3Endpoint())
		})
	}
}

func TestStorePath(t *testing.T) {
	cfg := &Config{SQLiteFile: "tcg_data.db", DumpDir: "/var/tmp/sync"}
	assert.Equal(t, "/var/tmp/sync/tcg_data.db", cfg.StorePath())

	cfg.SQLiteFile = "/data/tcg_data.db"
	assert.Equal(t, "/data/tcg_data.db", cfg.StorePath())
}
