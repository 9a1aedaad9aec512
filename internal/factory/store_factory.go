package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/adapters/store"
	"github.com/mikey/ta-triage/internal/config"
	"github.com/mikey/ta-triage/internal/core"
)

// StoreFactory creates knowledge stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateKnowledgeStore creates a knowledge store based on the configuration
func (f *StoreFactory) CreateKnowledgeStore() (core.KnowledgeStore, error) {
	storeType := f.cfg.GetString("store.type")

	switch storeType {
	case "memory":
		return store.NewMemoryStore(f.logger), nil
	case "sqlite":
		sqlitePath := f.cfg.GetString("store.sqlite_path")
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLiteStore(sqlitePath, f.logger)
	case "mysql":
		return store.NewMySQLStore(f.cfg.GetString("store.mysql_dsn"), f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
