package sync

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/tcgmatcher/d1sync/internal/config"
	"github.com/tcgmatcher/d1sync/internal/metrics"
	"github.com/tcgmatcher/d1sync/internal/utils"
)

// Loader materializes the remote parquet snapshot into the local SQLite
// store. DuckDB does the heavy lifting: httpfs reads the objects straight
// from the bucket and the sqlite extension writes the attached store file.
type Loader struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Store
}

func NewLoader(cfg *config.Config, logger *zap.Logger, metricsStore *metrics.Store) *Loader {
	return &Loader{
		cfg:     cfg,
		logger:  logger.Named("loader"),
		metrics: metricsStore,
	}
}

// Download replaces the local store with a fresh copy of every registered
// table and rebuilds the lookup indexes. Returns the per-table row counts.
func (l *Loader) Download(ctx context.Context, tables []TableDescriptor) (map[string]int64, error) {
	storePath := l.cfg.StorePath()

	// The store is rebuilt destructively on every run; stale WAL sidecars
	// from a crashed run must go with it.
	for _, p := range []string{storePath, storePath + "-wal", storePath + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove previous store file %s: %w", p, err)
		}
	}

	duck, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	defer func() {
		if cerr := duck.Close(); cerr != nil {
			l.logger.Warn("Failed to close DuckDB", zap.Error(cerr))
		}
	}()

	if err := l.configureSession(ctx, duck); err != nil {
		return nil, err
	}

	attach := fmt.Sprintf("ATTACH '%s' AS db (TYPE SQLITE)", strings.ReplaceAll(storePath, "'", "''"))
	if _, err := duck.ExecContext(ctx, attach); err != nil {
		return nil, fmt.Errorf("failed to attach snapshot store %s: %w", storePath, err)
	}
	if _, err := duck.ExecContext(ctx, "USE db"); err != nil {
		return nil, fmt.Errorf("failed to select attached store: %w", err)
	}

	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		log := l.logger.With(zap.String("table", table.Name))
		objectPath := fmt.Sprintf("s3://%s/%s/%s", l.cfg.R2Bucket, l.cfg.CategoryID, table.Object)
		log.Info("Copying table from remote source", zap.String("object", objectPath))

		if _, err := duck.ExecContext(ctx, copyTableSQL(table, objectPath)); err != nil {
			return nil, classifyLoadError(l.cfg.S3Endpoint(), objectPath, err)
		}

		var count int64
		countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s", utils.QuoteIdentifier(table.Name))
		if err := duck.QueryRowContext(ctx, countSQL).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", table.Name, err)
		}
		counts[table.Name] = count
		l.metrics.RowsLoadedTotal.WithLabelValues(table.Name).Add(float64(count))
		log.Info("Table copied", zap.Int64("rows", count))
	}

	l.logger.Info("Creating lookup indexes")
	for _, table := range tables {
		for _, idx := range tableIndexes[table.Name] {
			if _, err := duck.ExecContext(ctx, idx); err != nil {
				return nil, &SchemaError{Object: table.Name, Err: fmt.Errorf("failed to create index: %w", err)}
			}
		}
	}

	if info, err := os.Stat(storePath); err == nil {
		l.logger.Info("Snapshot store materialized",
			zap.String("path", storePath),
			zap.Float64("size_mb", float64(info.Size())/1024/1024))
	}

	return counts, nil
}

// configureSession installs the httpfs and sqlite extensions and points the
// S3 settings at the configured endpoint. R2 needs region "auto" and
// path-style URLs.
func (l *Loader) configureSession(ctx context.Context, duck *sql.DB) error {
	setup := []string{
		"INSTALL httpfs; LOAD httpfs;",
		"INSTALL sqlite; LOAD sqlite;",
		fmt.Sprintf("SET s3_endpoint = '%s';", strings.ReplaceAll(l.cfg.S3Endpoint(), "'", "''")),
		fmt.Sprintf("SET s3_access_key_id = '%s';", strings.ReplaceAll(l.cfg.R2AccessKey, "'", "''")),
		fmt.Sprintf("SET s3_secret_access_key = '%s';", strings.ReplaceAll(l.cfg.R2SecretKey, "'", "''")),
		"SET s3_region = 'auto';",
		"SET s3_url_style = 'path';",
	}
	for _, stmt := range setup {
		if _, err := duck.ExecContext(ctx, stmt); err != nil {
			if strings.HasPrefix(stmt, "INSTALL") {
				// Extension installs hit the DuckDB extension repository.
				return &ConnectivityError{Endpoint: "duckdb extension repository", Err: err}
			}
			return fmt.Errorf("failed to configure DuckDB session: %w", err)
		}
	}
	return nil
}

// copyTableSQL builds the CREATE TABLE ... AS SELECT for one table. Boolean
// columns are replaced by 0/1 integers in the projection; everything else is
// copied verbatim.
func copyTableSQL(table TableDescriptor, objectPath string) string {
	selectList := "*"
	if len(table.BoolColumns) > 0 {
		replacements := make([]string, 0, len(table.BoolColumns))
		for _, col := range table.BoolColumns {
			replacements = append(replacements,
				fmt.Sprintf("CASE WHEN %s THEN 1 ELSE 0 END AS %s", col, col))
		}
		selectList = fmt.Sprintf("* REPLACE (%s)", strings.Join(replacements, ", "))
	}
	return fmt.Sprintf("CREATE TABLE %s AS SELECT %s FROM '%s'",
		utils.QuoteIdentifier(table.Name), selectList, objectPath)
}

// classifyLoadError sorts a failed remote copy into the error taxonomy:
// auth/transport problems are connectivity, a missing or unreadable object
// is a schema problem.
func classifyLoadError(endpoint, object string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "could not establish connection") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "unable to connect"):
		return &ConnectivityError{Endpoint: endpoint, Err: err}
	default:
		// 404s, empty globs, and parse failures all mean the expected
		// object is missing or malformed.
		return &SchemaError{Object: object, Err: err}
	}
}
