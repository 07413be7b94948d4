package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr002/linkboard/internal/config"
	"github.com/mtr002/linkboard/internal/marts"
	"github.com/mtr002/linkboard/internal/memory"
)

func TestNew_InMemory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.URL = ""

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.IsType(t, &memory.Store{}, a.Store)
	assert.NotNil(t, a.Links)
	assert.NotNil(t, a.Reports)

	_, err = a.Marts.Sync(context.Background())
	assert.ErrorIs(t, err, marts.ErrSyncNotConfigured, "no sheets API key configured")
}

func TestNew_BadDatabaseURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.URL = "postgres://user@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestDBConfig(t *testing.T) {
	got := dbConfig(config.DatabaseConfig{URL: "postgres://x", MaxOpenConns: 25})
	assert.Equal(t, "postgres://x", got.URL)
	assert.Equal(t, 25, got.MaxOpenConns)
	assert.Equal(t, 5, got.MaxIdleConns, "unset values keep the pool defaults")
	assert.Equal(t, 30*time.Minute, got.ConnMaxLifetime)
}
