package storage

import (
	"context"
	"errors"
	"strings"

	logx "tixwatch/pkg/logx"
)

// Store is the persistence API used by the notifier and the CLI.
type Store interface {
	AppendAlert(ctx context.Context, r AlertRecord) error
	// RecentAlerts returns up to limit records, newest first.
	RecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
