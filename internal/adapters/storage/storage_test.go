package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/Chat/internal/adapters/storage"
	"github.com/dkeye/Chat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SelectsDriver(t *testing.T) {
	ctx := context.Background()

	mem, err := storage.Open(ctx, config.StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	path := filepath.Join(t.TempDir(), "nested", "chat.db")
	lite, err := storage.Open(ctx, config.StorageConfig{Driver: "sqlite", DSN: path})
	require.NoError(t, err)
	require.NoError(t, lite.Close())

	_, err = storage.Open(ctx, config.StorageConfig{Driver: "redis"})
	assert.Error(t, err)

	_, err = storage.Open(ctx, config.StorageConfig{Driver: "postgres"})
	assert.Error(t, err)
}
