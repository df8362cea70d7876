package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutSettingsFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, ":8765", cfg.Server.Addr)
}

func TestLoadSettingsFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dehum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: anthropic
model: claude-sonnet-4-20250514
store:
  backend: sqlite
  sqlite_path: /tmp/test.db
`), 0o644))

	t.Setenv("DEHUM_MODEL", "claude-opus-4-20250514")
	t.Setenv("DEHUM_TEMPERATURE", "0.2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-opus-4-20250514", cfg.Model, "env overrides file")
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/test.db", cfg.Store.SQLitePath)
}

func TestExplicitMissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidation(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("DEHUM_PROVIDER", "grok")
	_, err := Load("")
	assert.ErrorContains(t, err, "unsupported provider")

	t.Setenv("DEHUM_PROVIDER", "openai")
	t.Setenv("DEHUM_STORE", "wordpress")
	_, err = Load("")
	assert.ErrorContains(t, err, "site_url")

	t.Setenv("DEHUM_WP_SITE_URL", "https://example.com")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StoreWordPress, cfg.Store.Backend)
}

func TestDotEnvFileIsApplied(t *testing.T) {
	t.Chdir(t.TempDir())
	// t.Setenv registers restoration; unset so godotenv sees the key as absent.
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	require.NoError(t, os.WriteFile(".env", []byte("OPENAI_API_KEY=sk-test-123\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.APIKey())
}
