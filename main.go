package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tcgmatcher/d1sync/internal/config"
	"github.com/tcgmatcher/d1sync/internal/logger"
	"github.com/tcgmatcher/d1sync/internal/metrics"
	"github.com/tcgmatcher/d1sync/internal/secrets"
	"github.com/tcgmatcher/d1sync/internal/server"
	projectSync "github.com/tcgmatcher/d1sync/internal/sync"
)

var (
	databaseOverride         string
	workingDirOverride       string
	skipDownloadOverride     bool
	skipImportOverride       bool
	skuChunkSizeOverride     int
	productChunkSizeOverride int
)

func main() {
	flag.StringVar(&databaseOverride, "database", "", "Override D1_DATABASE (remote target database name)")
	flag.StringVar(&workingDirOverride, "working-dir", "", "Override WORKING_DIR (directory wrangler runs in)")
	flag.BoolVar(&skipDownloadOverride, "skip-download", false, "Skip the parquet download, reuse the existing snapshot store")
	flag.BoolVar(&skipImportOverride, "skip-import", false, "Skip the remote import, only create local files")
	flag.IntVar(&skuChunkSizeOverride, "sku-chunk-size", 0, "Override SKU_CHUNK_SIZE (must be > 0)")
	flag.IntVar(&productChunkSizeOverride, "product-chunk-size", 0, "Override PRODUCT_CHUNK_SIZE (must be > 0)")
	flag.Parse()

	// 1. Load environment variables (.env overrides)
	if err := godotenv.Overload(".env"); err != nil {
		stdlog.Printf("Warning: Could not load .env file: %v. Relying on environment variables.\n", err)
	}

	// 2. Initial config loading to get the logger settings
	preCfg := &struct {
		EnableJsonLogging bool `env:"ENABLE_JSON_LOGGING" envDefault:"false"`
		DebugMode         bool `env:"DEBUG_MODE" envDefault:"false"`
	}{}
	if err := env.Parse(preCfg); err != nil {
		stdlog.Fatalf("Failed to parse pre-configuration for logger: %v", err)
	}

	// 3. Initialize Zap logger
	if err := logger.Init(preCfg.DebugMode, preCfg.EnableJsonLogging); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Log.Sync() }()

	// 4. Load and validate full configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("Configuration loading error from environment", zap.Error(err))
	}

	applyCliOverrides(cfg)

	// 5. Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 6. Initialize Metrics Store
	metricsStore := metrics.NewMetricsStore()

	// 7. Resolve R2 credentials (env first, then Vault if enabled)
	if err := resolveSourceCredentials(ctx, cfg); err != nil {
		logger.Log.Fatal("Failed to resolve R2 credentials", zap.Error(err))
	}

	logLoadedConfig(cfg)

	// 8. Run the sync with the observability server alongside
	runner := projectSync.NewRunner(cfg, logger.Log, metricsStore)
	go server.RunHTTPServer(ctx, cfg, metricsStore, runner.CurrentStore, logger.Log)

	logger.Log.Info("Starting R2 parquet to D1 synchronization run")
	result := runner.Run(ctx)

	exitCode := processResult(result)

	// Give the HTTP server its shutdown signal before exiting.
	stop()
	time.Sleep(100 * time.Millisecond)

	logger.Log.Info("Exiting.", zap.Int("exit_code", exitCode))
	os.Exit(exitCode)
}

// applyCliOverrides applies CLI flag values on top of the env config.
func applyCliOverrides(cfg *config.Config) {
	if databaseOverride != "" {
		logger.Log.Info("Overriding D1_DATABASE with CLI flag",
			zap.String("env_value", cfg.D1Database), zap.String("cli_value", databaseOverride))
		cfg.D1Database = databaseOverride
	}
	if workingDirOverride != "" {
		logger.Log.Info("Overriding WORKING_DIR with CLI flag",
			zap.String("env_value", cfg.WorkingDir), zap.String("cli_value", workingDirOverride))
		cfg.WorkingDir = workingDirOverride
	}
	if skipDownloadOverride {
		cfg.SkipDownload = true
	}
	if skipImportOverride {
		cfg.SkipImport = true
	}
	if skuChunkSizeOverride > 0 {
		logger.Log.Info("Overriding SKU_CHUNK_SIZE with CLI flag",
			zap.Int("env_value", cfg.SKUChunkSize), zap.Int("cli_value", skuChunkSizeOverride))
		cfg.SKUChunkSize = skuChunkSizeOverride
	}
	if productChunkSizeOverride > 0 {
		logger.Log.Info("Overriding PRODUCT_CHUNK_SIZE with CLI flag",
			zap.Int("env_value", cfg.ProductChunkSize), zap.Int("cli_value", productChunkSizeOverride))
		cfg.ProductChunkSize = productChunkSizeOverride
	}
}

// resolveSourceCredentials fills the R2 key pair from Vault when the env
// vars are empty and Vault is enabled. Env vars always win when set.
func resolveSourceCredentials(ctx context.Context, cfg *config.Config) error {
	if cfg.R2AccessKey != "" && cfg.R2SecretKey != "" {
		logger.Log.Info("Using R2 key pair directly from environment variables.")
		return nil
	}
	if !cfg.VaultEnabled {
		// Preflight in the runner reports exactly which variables are
		// missing, so an empty pair here is not yet fatal.
		return nil
	}

	vaultMgr, err := secrets.NewVaultManager(cfg, logger.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize Vault secret manager: %w", err)
	}
	if !vaultMgr.IsEnabled() {
		return nil
	}

	getCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	creds, err := vaultMgr.GetCredentials(getCtx, cfg.R2SecretPath, cfg.R2AccessKeyKey, cfg.R2SecretKeyKey)
	if err != nil {
		return err
	}

	cfg.R2AccessKey = creds.AccessKeyID
	cfg.R2SecretKey = creds.SecretAccessKey
	logger.Log.Info("Resolved R2 key pair from Vault.", zap.String("secret_path", cfg.R2SecretPath))
	return nil
}

// logLoadedConfig records the final configuration in use.
func logLoadedConfig(cfg *config.Config) {
	keySource := "not set"
	if cfg.R2AccessKey != "" {
		keySource = "env var"
		if cfg.VaultEnabled && cfg.R2SecretPath != "" {
			keySource = "vault"
		}
	}

	logger.Log.Info("Final configuration in use",
		zap.String("r2_endpoint", cfg.S3Endpoint()),
		zap.String("r2_bucket", cfg.R2Bucket),
		zap.String("category_id", cfg.CategoryID),
		zap.String("r2_key_source", keySource),
		zap.String("sqlite_file", cfg.StorePath()),
		zap.String("dump_dir", cfg.DumpDir),
		zap.Int("sku_chunk_size", cfg.SKUChunkSize),
		zap.Int("product_chunk_size", cfg.ProductChunkSize),
		zap.String("d1_database", cfg.D1Database),
		zap.String("working_dir", cfg.WorkingDir),
		zap.Bool("skip_download", cfg.SkipDownload),
		zap.Bool("skip_import", cfg.SkipImport),
		zap.Bool("json_logging", cfg.EnableJsonLogging), zap.Bool("enable_pprof", cfg.EnablePprof),
		zap.Int("metrics_port", cfg.MetricsPort), zap.Bool("debug_mode", cfg.DebugMode),
		zap.Bool("vault_enabled", cfg.VaultEnabled), zap.String("vault_addr", cfg.VaultAddr),
		zap.Bool("vault_token_present", cfg.VaultToken != ""),
	)
}

// processResult logs the run outcome and determines the exit code.
func processResult(result projectSync.Result) int {
	fields := []zap.Field{
		zap.Duration("duration", result.Duration),
		zap.Int("files_written", len(result.Files)),
		zap.Int("files_applied", result.FilesApplied),
		zap.Bool("plan_only", result.PlanOnly),
	}
	for table, rows := range result.RowsLoaded {
		fields = append(fields, zap.Int64("rows_loaded_"+table, rows))
	}
	for table, rows := range result.RowsDumped {
		fields = append(fields, zap.Int64("rows_dumped_"+table, rows))
	}

	if result.Err != nil {
		fields = append(fields,
			zap.String("error_category", projectSync.Categorize(result.Err)),
			zap.Error(result.Err))
		logger.Log.Error("Synchronization run FAILED.", fields...)
		return 1
	}

	if names := fileNames(result.Files); len(names) > 0 {
		logger.Log.Info("Unit-of-work files in execution order", zap.String("files", strings.Join(names, ", ")))
	}
	logger.Log.Info("Synchronization run COMPLETED SUCCESSFULLY.", fields...)
	return 0
}

func fileNames(files []projectSync.DumpFile) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}
