package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/internal/storage/memory"
	pgstorage "github.com/pdazone/engine/internal/storage/postgres"
	sqlitestorage "github.com/pdazone/engine/internal/storage/sqlite"
)

// createStorageBackend builds the store selected by storage.type. The
// SQLite dump path defaults to a session file in logsDir.
func createStorageBackend(storageCfg config.StorageConfig, logsDir string, sessionStart time.Time, log *slog.Logger) (storage.Store, error) {
	switch storageCfg.Type {
	case "postgres":
		backend, err := pgstorage.New(config.GetDBConfig(), log)
		if err != nil {
			return nil, err
		}
		log.Info("Postgres storage backend initialized")
		return backend, nil

	case "sqlite":
		sqliteCfg := storageCfg.SQLite
		if sqliteCfg.DumpPath == "" {
			sqliteCfg.DumpPath = filepath.Join(logsDir, fmt.Sprintf("%s_%s.db", ServiceName, sessionStart.Format("20060102_150405")))
		}
		backend, err := sqlitestorage.New(sqliteCfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		log.Info("SQLite storage backend initialized", "dumpPath", sqliteCfg.DumpPath)
		return backend, nil

	case "memory", "":
		log.Info("Memory storage backend initialized")
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}
