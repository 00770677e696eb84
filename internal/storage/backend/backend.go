// Package backend opens the storage.Store named by database.type.
package backend

import (
	"fmt"

	"go.uber.org/zap"

	"assistant/backend/internal/config"
	"assistant/backend/internal/storage"
	"assistant/backend/internal/storage/memory"
	"assistant/backend/internal/storage/postgres"
	"assistant/backend/internal/storage/sqlite"
)

// Persistent reports whether cfg selects a store that outlives the process.
func Persistent(cfg config.DatabaseConfig) bool {
	return cfg.Type != "" && cfg.Type != "memory"
}

// Open selects the store by cfg.Type.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (storage.Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	switch cfg.Type {
	case "", "memory":
		log.Info("using memory storage (data is lost on restart)")
		return memory.NewStore(), nil
	case "sqlite":
		store, err := sqlite.NewStore(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info("using sqlite storage", zap.String("path", cfg.DSN))
		return store, nil
	case "postgres", "postgresql":
		store, err := postgres.NewStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		log.Info("using postgres storage")
		return store, nil
	case "mysql":
		store, err := postgres.NewMySQLStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open mysql store: %w", err)
		}
		log.Info("using mysql storage")
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}
