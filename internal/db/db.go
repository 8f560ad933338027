package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tcgmatcher/d1sync/internal/logger"
)

// Connector wraps the local snapshot store: a single-file SQLite database
// rebuilt by the loader on every run and owned exclusively by that run.
type Connector struct {
	DB   *gorm.DB
	Path string
}

// Open connects to the snapshot store file. The file must already exist; the
// loader creates it, and skip-download runs reuse the previous one.
func Open(path string, gl logger.GormLoggerInterface) (*Connector, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("snapshot store %s is not readable: %w", path, err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store %s: %w", path, err)
	}

	conn := &Connector{DB: db, Path: path}
	if err := conn.optimize(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// optimize pins the pool to one connection. The store is read by a single
// sequential dump pass; SQLite behaves best without connection churn.
func (c *Connector) optimize() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for optimization: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Duration(0))
	return nil
}

func (c *Connector) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for ping: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// HasTable reports whether the store contains the named table.
func (c *Connector) HasTable(name string) (bool, error) {
	var count int64
	err := c.DB.Raw(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to inspect sqlite_master: %w", err)
	}
	return count > 0, nil
}

func (c *Connector) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		logger.Log.Warn("Failed to get sql.DB for closing", zap.Error(err))
		return fmt.Errorf("failed to get sql.DB handle to close: %w", err)
	}
	logger.Log.Info("Closing snapshot store", zap.String("path", c.Path))
	return sqlDB.Close()
}
