// ABOUTME: Tests for config loading, defaulting, env override, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, 15, cfg.Session.IdleMinutes)
	assert.Equal(t, 60, cfg.Catalog.RefreshSeconds)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SESSION_IDLE_MINUTES", "5")
	t.Setenv("STORAGE_BACKEND", "local")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Session.IdleMinutes)
}

func TestLoad_FileWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_ADMIN_TOKEN", "sekret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "admin_auth_token: \"${TEST_ADMIN_TOKEN}\"\nstorage_backend: local\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sekret", cfg.Admin.AuthToken)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.NoError(t, err)
}

func TestValidate_RemoteRequiresBucketAndRedis(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Backend: "remote"},
		Session: SessionConfig{IdleMinutes: 1, ExpiryHours: 1},
		Catalog: CatalogConfig{RefreshSeconds: 1, ToolCallTimeoutSeconds: 1},
		Logging: LoggingConfig{Format: "text"},
	}
	assert.Error(t, cfg.Validate(), "want error without object_store_bucket/redis_addr")

	cfg.Storage.ObjectStoreBucket = "skills"
	cfg.Storage.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Backend: "azure"}}
	assert.Error(t, cfg.Validate(), "want error for unknown storage backend")
}
