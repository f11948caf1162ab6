// Package postgres implements storage.Store on a PostgreSQL database through
// the shared GORM backend.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/database"
	gormstorage "github.com/pdazone/engine/internal/storage/gorm"
)

// Pool limits applied to every connection pool.
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Backend wraps the GORM backend with a pooled Postgres connection.
type Backend struct {
	*gormstorage.Backend
}

// New connects to Postgres and verifies the connection.
func New(cfg config.DBConfig, log *slog.Logger) (*Backend, error) {
	db, err := database.GetPostgresDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if log == nil {
		log = slog.Default()
	}
	log.Info("Connected to database", "host", cfg.Host, "database", cfg.Database)

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: db, Logger: log}),
	}, nil
}
