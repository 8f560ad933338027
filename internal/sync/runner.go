package sync

import (
	"context"
	"fmt"
	"os"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/tcgmatcher/d1sync/internal/config"
	"github.com/tcgmatcher/d1sync/internal/db"
	"github.com/tcgmatcher/d1sync/internal/logger"
	"github.com/tcgmatcher/d1sync/internal/metrics"
)

// Runner sequences the full sync: preflight, load (or reuse), local file
// generation, then remote apply. The run is strictly sequential; the local
// store and the generated files double as the recovery checkpoint between
// runs.
type Runner struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Store
	applier *Applier

	mu    stdsync.Mutex
	store *db.Connector
}

func NewRunner(cfg *config.Config, baseLogger *zap.Logger, metricsStore *metrics.Store) *Runner {
	return &Runner{
		cfg:     cfg,
		logger:  baseLogger.Named("runner"),
		metrics: metricsStore,
		applier: NewApplier(cfg, baseLogger, metricsStore),
	}
}

// CurrentStore exposes the snapshot store for readiness checks; nil until
// the load phase has materialized or verified it.
func (r *Runner) CurrentStore() *db.Connector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store
}

func (r *Runner) setStore(conn *db.Connector) {
	r.mu.Lock()
	r.store = conn
	r.mu.Unlock()
}

// Run executes the whole sync and reports the outcome; it never panics on
// sync failures, the caller decides the exit code from Result.Err.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	r.metrics.SyncRunning.Set(1)
	defer r.metrics.SyncRunning.Set(0)
	defer func() {
		r.metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	res := Result{PlanOnly: r.cfg.SkipImport}
	tables := Tables(r.cfg)

	fail := func(phase string, err error) Result {
		r.metrics.SyncErrorsTotal.WithLabelValues(Categorize(err), phase).Inc()
		res.Duration = time.Since(start)
		res.Err = err
		return res
	}

	if err := r.preflight(); err != nil {
		return fail("preflight", err)
	}

	// Phase 1: materialize or reuse the local snapshot store.
	loadStart := time.Now()
	store, counts, err := r.loadPhase(ctx, tables)
	if err != nil {
		return fail("load", err)
	}
	r.setStore(store)
	defer func() {
		r.setStore(nil)
		if cerr := store.Close(); cerr != nil {
			r.logger.Warn("Failed to close snapshot store", zap.Error(cerr))
		}
	}()
	res.RowsLoaded = counts
	r.metrics.PhaseDuration.WithLabelValues("load").Observe(time.Since(loadStart).Seconds())

	// Phase 2: generate every unit-of-work file locally. No remote
	// mutation happens until the entire plan exists on disk.
	dumpStart := time.Now()
	writer := NewDumpWriter(store, r.cfg, r.logger, r.metrics)
	files, dumped, err := writer.WritePlan(tables)
	if err != nil {
		return fail("dump", err)
	}
	res.Files = files
	res.RowsDumped = dumped
	r.metrics.PhaseDuration.WithLabelValues("dump").Observe(time.Since(dumpStart).Seconds())

	// Phase 3: apply in order, or emit the plan.
	if r.cfg.SkipImport {
		r.applier.Plan(files)
		res.Duration = time.Since(start)
		return res
	}

	applyStart := time.Now()
	applied, err := r.applier.Apply(ctx, files)
	res.FilesApplied = applied
	r.metrics.PhaseDuration.WithLabelValues("apply").Observe(time.Since(applyStart).Seconds())
	if err != nil {
		return fail("apply", err)
	}

	res.Duration = time.Since(start)
	return res
}

// preflight reports every missing prerequisite before any data movement.
func (r *Runner) preflight() error {
	if !r.cfg.SkipDownload {
		if missing := r.cfg.MissingSourceVars(); len(missing) > 0 {
			return &PreconditionError{
				Reason: fmt.Sprintf("missing environment variables: %v (add them to .env)", missing),
			}
		}
	}
	if !r.cfg.SkipImport {
		if err := r.applier.CheckPrerequisites(); err != nil {
			return err
		}
	}
	return nil
}

// loadPhase either downloads a fresh snapshot or verifies the existing store
// when the download is explicitly skipped.
func (r *Runner) loadPhase(ctx context.Context, tables []TableDescriptor) (*db.Connector, map[string]int64, error) {
	storePath := r.cfg.StorePath()

	if r.cfg.SkipDownload {
		if _, err := os.Stat(storePath); err != nil {
			return nil, nil, &PreconditionError{
				Reason: fmt.Sprintf("skip-download specified but %s not found", storePath),
				Err:    err,
			}
		}
		r.logger.Info("Skipping download, using existing snapshot store", zap.String("path", storePath))

		store, err := db.Open(storePath, logger.GormLoggerOrNil())
		if err != nil {
			return nil, nil, &PreconditionError{Reason: "existing snapshot store is unreadable", Err: err}
		}
		for _, table := range tables {
			ok, err := store.HasTable(table.Name)
			if err != nil {
				_ = store.Close()
				return nil, nil, err
			}
			if !ok {
				_ = store.Close()
				return nil, nil, &PreconditionError{
					Reason: fmt.Sprintf("existing snapshot store %s is missing table %s", storePath, table.Name),
				}
			}
		}
		return store, nil, nil
	}

	loader := NewLoader(r.cfg, r.logger, r.metrics)
	counts, err := loader.Download(ctx, tables)
	if err != nil {
		return nil, nil, err
	}

	store, err := db.Open(storePath, logger.GormLoggerOrNil())
	if err != nil {
		return nil, nil, &SchemaError{Object: storePath, Err: err}
	}
	return store, counts, nil
}
