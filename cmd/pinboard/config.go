package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/pinboard/internal/config"
	"github.com/haasonsaas/pinboard/internal/storage"
)

const defaultConfigName = "pinboard.yaml"

// resolveConfigPath falls back to $PINBOARD_CONFIG and then pinboard.yaml
// when no --config flag was given.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("PINBOARD_CONFIG")); env != "" {
		return env
	}
	return defaultConfigName
}

func sqlConfig(cfg *config.Config) *storage.SQLConfig {
	pool := storage.DefaultSQLConfig()
	if cfg.Database.MaxConnections > 0 {
		pool.MaxOpenConns = cfg.Database.MaxConnections
		if pool.MaxIdleConns > pool.MaxOpenConns {
			pool.MaxIdleConns = pool.MaxOpenConns
		}
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	return pool
}

// openStores opens the configured database and applies pending migrations.
func openStores(cfg *config.Config) (storage.StoreSet, error) {
	if cfg == nil {
		return storage.StoreSet{}, fmt.Errorf("config is required")
	}
	stores, err := storage.NewSQLStoresFromDSN(cfg.Database.Driver, cfg.Database.DSN, sqlConfig(cfg))
	if err != nil {
		return storage.StoreSet{}, fmt.Errorf("open stores: %w", err)
	}
	return stores, nil
}
