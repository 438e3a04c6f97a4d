// Package storage selects the message and room store backend.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dkeye/Chat/internal/adapters/storage/memory"
	"github.com/dkeye/Chat/internal/adapters/storage/postgres"
	"github.com/dkeye/Chat/internal/adapters/storage/sqlite"
	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/core"
	"github.com/rs/zerolog/log"
)

func Open(ctx context.Context, cfg config.StorageConfig) (core.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		log.Info().Str("module", "storage").Msg("using in-memory store")
		return memory.New(), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.DSN); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		s, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "storage.sqlite").Str("path", cfg.DSN).Msg("sqlite store ready")
		return s, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "storage.postgres").Msg("postgres store ready")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
