package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/backend/internal/config"
	"assistant/backend/internal/storage/memory"
	"assistant/backend/internal/storage/sqlite"
)

func TestOpen(t *testing.T) {
	store, err := Open(config.DatabaseConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)

	store, err = Open(config.DatabaseConfig{Type: "sqlite", DSN: ":memory:"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, store)
	require.NoError(t, store.Health())
	_, err = store.ListAccounts(context.Background(), "nobody")
	assert.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = Open(config.DatabaseConfig{Type: "oracle"}, nil)
	assert.Error(t, err)
}

func TestPersistent(t *testing.T) {
	assert.False(t, Persistent(config.DatabaseConfig{}))
	assert.False(t, Persistent(config.DatabaseConfig{Type: "memory"}))
	assert.True(t, Persistent(config.DatabaseConfig{Type: "sqlite"}))
}
