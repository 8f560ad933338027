package sync

import (
	"time"

	"github.com/tcgmatcher/d1sync/internal/config"
)

// TableDescriptor describes one logical table of the snapshot: its unique
// key column, its parquet object within the category partition, and how its
// dump is split. Column order is read from the local store at dump time so
// the positional INSERTs stay schema-aligned.
type TableDescriptor struct {
	Name      string
	KeyColumn string
	Object    string // object key relative to bucket/category

	// ChunkSize bounds the rows per unit-of-work file. Zero disables
	// chunking and the table is dumped as a single incremental file.
	ChunkSize int

	// BoolColumns are normalized to 0/1 integers during load; parquet
	// booleans have no SQLite storage class of their own.
	BoolColumns []string
}

// FileKind distinguishes the unit-of-work file roles; the apply order
// contract is schema, then per-table setup -> chunks -> merge.
type FileKind string

const (
	FileSchema      FileKind = "schema"
	FileIncremental FileKind = "incremental"
	FileSetup       FileKind = "setup"
	FileChunk       FileKind = "chunk"
	FileMerge       FileKind = "merge"
)

// DumpFile is one immutable unit-of-work script, identified by its position
// in the plan. The plan order IS the execution contract.
type DumpFile struct {
	Name  string
	Path  string
	Table string
	Kind  FileKind
	Bytes int64
}

// Result summarizes one sync run for the caller deciding the exit code.
type Result struct {
	RowsLoaded   map[string]int64
	RowsDumped   map[string]int64
	Files        []DumpFile
	FilesApplied int
	PlanOnly     bool
	Duration     time.Duration
	Err          error
}

// Tables returns the registered table descriptors in dependency order
// (groups -> products -> skus). The order is a convention for operators
// reading the plan, not an engine-enforced invariant: every merge runs with
// foreign keys off and reconciles its table independently.
func Tables(cfg *config.Config) []TableDescriptor {
	return []TableDescriptor{
		{
			Name:        "groups",
			KeyColumn:   "group_id",
			Object:      "groups.parquet",
			BoolColumns: []string{"is_current"},
		},
		{
			Name:      "products",
			KeyColumn: "product_id",
			Object:    "products.parquet",
			ChunkSize: cfg.ProductChunkSize,
		},
		{
			Name:      "skus",
			KeyColumn: "sku_id",
			Object:    "skus.parquet",
			ChunkSize: cfg.SKUChunkSize,
		},
	}
}

// tableIndexes are the composite lookup indexes the loader rebuilds after
// every download; they keep the dump's verification queries and downstream
// single-row lookups efficient.
var tableIndexes = map[string][]string{
	"groups":   {"CREATE INDEX idx_groups_abbr ON groups(abbr)"},
	"products": {"CREATE INDEX idx_products_lookup ON products(group_id, collector_number)"},
	"skus":     {"CREATE INDEX idx_skus_lookup ON skus(product_id, printing_id, condition_id, language_id)"},
}
