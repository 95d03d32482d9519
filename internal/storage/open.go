package storage

import (
	"errors"
	"strings"

	logx "slonyara/pkg/logx"
)

// Open initializes the configured store. An empty driver defaults to
// sqlite when a path is set, otherwise memory (useful for local runs).
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		if strings.TrimSpace(cfg.Path) != "" {
			driver = "sqlite"
		} else {
			driver = "memory"
		}
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return newMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
