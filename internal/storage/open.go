package storage

import (
	"context"
	"fmt"
	"strings"

	logx "eagertimer/pkg/logx"
)

// Store is the persistence API used by the app recorder and the history command.
type Store interface {
	AppendFire(ctx context.Context, r FireRecord) error
	// RecentFires returns up to limit records, newest first. An empty name
	// matches every event; limit <= 0 means no limit.
	RecentFires(ctx context.Context, name string, limit int) ([]FireRecord, error)
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
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
