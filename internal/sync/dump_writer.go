package sync

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tcgmatcher/d1sync/internal/config"
	"github.com/tcgmatcher/d1sync/internal/db"
	"github.com/tcgmatcher/d1sync/internal/metrics"
	"github.com/tcgmatcher/d1sync/internal/utils"
)

// DumpWriter serializes the local store into the ordered unit-of-work file
// sequence: one schema script, then per table either a single incremental
// file or a setup/chunk/merge triplet when the row count exceeds the table's
// chunk size. Every file is immutable once written and safe to re-apply.
type DumpWriter struct {
	store   *db.Connector
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Store
}

func NewDumpWriter(store *db.Connector, cfg *config.Config, logger *zap.Logger, metricsStore *metrics.Store) *DumpWriter {
	return &DumpWriter{
		store:   store,
		cfg:     cfg,
		logger:  logger.Named("dump-writer"),
		metrics: metricsStore,
	}
}

// WritePlan produces the complete file sequence in execution order and the
// per-table dumped row counts. All generation is local; nothing touches the
// remote target here.
func (w *DumpWriter) WritePlan(tables []TableDescriptor) ([]DumpFile, map[string]int64, error) {
	var files []DumpFile
	rows := make(map[string]int64, len(tables))

	schemaFile, err := w.writeSchemaFile()
	if err != nil {
		return nil, nil, err
	}
	files = append(files, schemaFile)

	for _, table := range tables {
		count, err := w.rowCount(table.Name)
		if err != nil {
			return nil, nil, err
		}
		rows[table.Name] = count

		var tableFiles []DumpFile
		if table.ChunkSize > 0 && count > int64(table.ChunkSize) {
			tableFiles, err = w.writeChunked(table, count)
		} else {
			tableFiles, err = w.writeIncremental(table, count)
		}
		if err != nil {
			return nil, nil, err
		}
		files = append(files, tableFiles...)
		w.metrics.RowsDumpedTotal.WithLabelValues(table.Name).Add(float64(count))
	}

	var totalBytes int64
	for _, f := range files {
		totalBytes += f.Bytes
	}
	w.logger.Info("Dump plan written",
		zap.Int("files", len(files)),
		zap.Float64("total_mb", float64(totalBytes)/1024/1024))
	return files, rows, nil
}

func (w *DumpWriter) writeSchemaFile() (DumpFile, error) {
	emitter := NewSchemaEmitter(w.store, w.logger)
	script, err := emitter.BuildScript()
	if err != nil {
		return DumpFile{}, err
	}
	return w.writeFile("dump_schema.sql", "", FileSchema, script)
}

// writeIncremental emits one self-contained file: staging setup, all row
// inserts, and the merge, inside a single transaction. A zero-row table
// still yields a valid file whose merge warns and skips deletes.
func (w *DumpWriter) writeIncremental(table TableDescriptor, count int64) ([]DumpFile, error) {
	staging := stagingTableName(table.Name)
	columns, err := w.tableColumns(table.Name)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- Incremental sync for %s\n", table.Name)
	b.WriteString("PRAGMA foreign_keys=OFF;\n")
	b.WriteString("BEGIN;\n")
	fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s;\n", staging)
	fmt.Fprintf(&b, "CREATE TABLE %s AS SELECT * FROM %s WHERE 0;\n", staging, table.Name)

	if err := w.renderInserts(&b, staging, fmt.Sprintf("SELECT * FROM %s", table.Name)); err != nil {
		return nil, err
	}

	b.WriteString(strings.TrimSpace(BuildMergeSQL(table.Name, table.KeyColumn, columns)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s;\n", staging)
	b.WriteString("COMMIT;\n")

	w.logger.Info("Dumped table as single incremental file",
		zap.String("table", table.Name), zap.Int64("rows", count))

	file, err := w.writeFile(fmt.Sprintf("dump_%s.sql", table.Name), table.Name, FileIncremental, b.String())
	if err != nil {
		return nil, err
	}
	return []DumpFile{file}, nil
}

// writeChunked emits a setup file, one bounded chunk file per LIMIT/OFFSET
// slice, and the merge file. Staging setup stays outside any transaction so
// a leftover staging table from a crashed run is always replaced.
func (w *DumpWriter) writeChunked(table TableDescriptor, count int64) ([]DumpFile, error) {
	staging := stagingTableName(table.Name)
	columns, err := w.tableColumns(table.Name)
	if err != nil {
		return nil, err
	}

	chunkSize := int64(table.ChunkSize)
	numChunks := (count + chunkSize - 1) / chunkSize
	w.logger.Info("Splitting table into chunks",
		zap.String("table", table.Name),
		zap.Int64("rows", count),
		zap.Int64("chunks", numChunks),
		zap.Int("chunk_size", table.ChunkSize))

	var files []DumpFile

	var setup strings.Builder
	fmt.Fprintf(&setup, "-- Prepare staging table for %s\n", table.Name)
	setup.WriteString("PRAGMA foreign_keys=OFF;\n")
	fmt.Fprintf(&setup, "DROP TABLE IF EXISTS %s;\n", staging)
	fmt.Fprintf(&setup, "CREATE TABLE %s AS SELECT * FROM %s WHERE 0;\n", staging, table.Name)
	setupFile, err := w.writeFile(fmt.Sprintf("dump_%s_setup.sql", table.Name), table.Name, FileSetup, setup.String())
	if err != nil {
		return nil, err
	}
	files = append(files, setupFile)

	for i := int64(0); i < numChunks; i++ {
		offset := i * chunkSize
		var chunk strings.Builder
		fmt.Fprintf(&chunk, "-- Insert %s chunk %d into staging\n", table.Name, i)
		chunk.WriteString("BEGIN;\n")
		query := fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", table.Name, chunkSize, offset)
		if err := w.renderInserts(&chunk, staging, query); err != nil {
			return nil, err
		}
		chunk.WriteString("COMMIT;\n")

		chunkFile, err := w.writeFile(fmt.Sprintf("dump_%s_%d.sql", table.Name, i), table.Name, FileChunk, chunk.String())
		if err != nil {
			return nil, err
		}
		files = append(files, chunkFile)
		w.logger.Info("Chunk written", zap.String("file", chunkFile.Name), zap.Int64("offset", offset))
	}

	var merge strings.Builder
	fmt.Fprintf(&merge, "-- Merge staging %s into main table\n", table.Name)
	merge.WriteString("BEGIN;\n")
	merge.WriteString(strings.TrimSpace(BuildMergeSQL(table.Name, table.KeyColumn, columns)))
	merge.WriteString("\n")
	fmt.Fprintf(&merge, "DROP TABLE IF EXISTS %s;\n", staging)
	merge.WriteString("COMMIT;\n")
	mergeFile, err := w.writeFile(fmt.Sprintf("dump_%s_merge.sql", table.Name), table.Name, FileMerge, merge.String())
	if err != nil {
		return nil, err
	}
	files = append(files, mergeFile)

	return files, nil
}

// renderInserts streams query results as one positional INSERT per row, in
// the table's declared column order.
func (w *DumpWriter) renderInserts(b *strings.Builder, staging, query string) error {
	rows, err := w.store.DB.Raw(query).Rows()
	if err != nil {
		return fmt.Errorf("failed to query rows for dump (%s): %w", query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read result columns: %w", err)
	}

	values := make([]interface{}, len(cols))
	scanTargets := make([]interface{}, len(cols))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	literals := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return fmt.Errorf("failed to scan row for dump: %w", err)
		}
		for i, v := range values {
			literals[i] = utils.SQLLiteral(v)
		}
		fmt.Fprintf(b, "INSERT INTO %s VALUES(%s);\n", staging, strings.Join(literals, ","))
	}
	return rows.Err()
}

type columnInfo struct {
	Name string
}

// tableColumns reads the declared column order from the local store so the
// merge script and the positional INSERTs agree on shape.
func (w *DumpWriter) tableColumns(tableName string) ([]string, error) {
	var infos []columnInfo
	err := w.store.DB.Raw(fmt.Sprintf("PRAGMA table_info(%s)", utils.QuoteIdentifier(tableName))).Scan(&infos).Error
	if err != nil {
		return nil, &SchemaError{Object: tableName, Err: fmt.Errorf("failed to read table_info: %w", err)}
	}
	if len(infos) == 0 {
		return nil, &SchemaError{Object: tableName, Err: fmt.Errorf("table does not exist in local store")}
	}
	columns := make([]string, len(infos))
	for i, info := range infos {
		columns[i] = info.Name
	}
	return columns, nil
}

func (w *DumpWriter) rowCount(tableName string) (int64, error) {
	var count int64
	err := w.store.DB.Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s", utils.QuoteIdentifier(tableName))).Scan(&count).Error
	if err != nil {
		return 0, &SchemaError{Object: tableName, Err: fmt.Errorf("failed to count rows: %w", err)}
	}
	return count, nil
}

func (w *DumpWriter) writeFile(name, table string, kind FileKind, content string) (DumpFile, error) {
	path := filepath.Join(w.cfg.DumpDir, name)
	f, err := os.Create(path)
	if err != nil {
		return DumpFile{}, fmt.Errorf("failed to create dump file %s: %w", path, err)
	}

	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString(content); err != nil {
		_ = f.Close()
		return DumpFile{}, fmt.Errorf("failed to write dump file %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return DumpFile{}, fmt.Errorf("failed to flush dump file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return DumpFile{}, fmt.Errorf("failed to close dump file %s: %w", path, err)
	}

	w.metrics.DumpFilesWritten.Inc()
	w.metrics.DumpBytesWritten.Add(float64(len(content)))
	return DumpFile{
		Name:  name,
		Path:  path,
		Table: table,
		Kind:  kind,
		Bytes: int64(len(content)),
	}, nil
}
