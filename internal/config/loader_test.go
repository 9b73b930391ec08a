package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, found, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 16, cfg.Search.MaxConditionDepth)
	assert.Equal(t, 10*time.Minute, cfg.Search.PlanCacheTTL)
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
store: postgres
server:
  address: ":9443"
  allowed_origins: ["https://a.example", "https://b.example"]
database:
  host: db.internal
  port: 6543
search:
  max_condition_depth: 4
  plan_cache_ttl: 90s
`), 0o600))
	t.Setenv("EGERIA_DATABASE_HOST", "override.internal")
	t.Setenv("EGERIA_SEARCH_MAX_PAGE_SIZE", "200")

	cfg, found, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, ":9443", cfg.Server.Address)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 4, cfg.Search.MaxConditionDepth)
	assert.Equal(t, 200, cfg.Search.MaxPageSize)
	assert.Equal(t, 90*time.Second, cfg.Search.PlanCacheTTL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("EGERIA_STORE", "cassandra")
	_, _, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "unknown store")
}

func TestValidatePageBounds(t *testing.T) {
	cfg := Config{Store: StoreMemory, Search: SearchConfig{MaxConditionDepth: 3, MaxPageSize: 10, DefaultPageSize: 20}}
	assert.Error(t, cfg.Validate())
	cfg.Search.DefaultPageSize = 10
	assert.NoError(t, cfg.Validate())
}
