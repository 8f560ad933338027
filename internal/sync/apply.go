package sync

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tcgmatcher/d1sync/internal/config"
	"github.com/tcgmatcher/d1sync/internal/metrics"
)

// CommandRunner abstracts subprocess execution so the sequencing logic can
// be tested without a wrangler installation.
type CommandRunner interface {
	// Run executes the command in dir and returns its combined output and
	// exit code. A non-nil error means the command could not be started at
	// all; a started command that fails reports through the exit code.
	Run(ctx context.Context, dir, name string, args ...string) (output string, exitCode int, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, name string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), exitErr.ExitCode(), nil
		}
		return string(out), -1, err
	}
	return string(out), 0, nil
}

// Applier executes the unit-of-work files against the remote target in plan
// order, halting on the first failure. It never retries or rolls back: every
// file is independently idempotent, so recovery is manual re-invocation
// after operator inspection.
type Applier struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Store
	runner   CommandRunner
	lookPath func(string) (string, error)
}

func NewApplier(cfg *config.Config, logger *zap.Logger, metricsStore *metrics.Store) *Applier {
	return &Applier{
		cfg:      cfg,
		logger:   logger.Named("applier"),
		metrics:  metricsStore,
		runner:   execRunner{},
		lookPath: exec.LookPath,
	}
}

// CheckPrerequisites verifies the remote execution tool is available before
// any data movement begins.
func (a *Applier) CheckPrerequisites() error {
	if _, err := a.lookPath("npx"); err != nil {
		return &PreconditionError{Reason: "npx command not found (wrangler is invoked via npx)", Err: err}
	}
	return nil
}

// Apply executes every file in order. Returns the number of files applied;
// on failure the remaining files are never invoked.
func (a *Applier) Apply(ctx context.Context, files []DumpFile) (int, error) {
	a.logger.Info("Importing unit-of-work files to remote target",
		zap.String("database", a.cfg.D1Database),
		zap.Int("files", len(files)))

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("apply cancelled before %s: %w", file.Name, err)
		}

		log := a.logger.With(
			zap.String("file", file.Name),
			zap.Int("position", i+1),
			zap.Int("total", len(files)))
		log.Info("Executing file against remote target")

		start := time.Now()
		args := a.commandArgs(file)
		output, exitCode, err := a.runner.Run(ctx, a.cfg.WorkingDir, "npx", args...)
		a.metrics.ApplyDuration.WithLabelValues(file.Name).Observe(time.Since(start).Seconds())

		if err != nil {
			return i, &ApplyError{File: file.Name, ExitCode: exitCode, Output: output, Err: err}
		}
		if exitCode != 0 {
			log.Error("Remote execution failed",
				zap.Int("exit_code", exitCode),
				zap.String("output", strings.TrimSpace(output)))
			return i, &ApplyError{File: file.Name, ExitCode: exitCode, Output: output}
		}

		a.metrics.FilesAppliedTotal.Inc()
		log.Info("File applied", zap.Duration("duration", time.Since(start)))
	}

	a.logger.Info("All imports complete")
	return len(files), nil
}

// Plan logs the exact commands an operator would run, without executing any
// of them.
func (a *Applier) Plan(files []DumpFile) {
	a.logger.Info("Skipping remote import; run these commands in order",
		zap.String("working_dir", a.cfg.WorkingDir))
	for _, file := range files {
		a.logger.Info(fmt.Sprintf("npx %s", strings.Join(a.commandArgs(file), " ")))
	}
}

func (a *Applier) commandArgs(file DumpFile) []string {
	path := file.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return []string{"wrangler", "d1", "execute", a.cfg.D1Database, "--remote", "--file=" + path}
}
