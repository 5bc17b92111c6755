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
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "./db/migrations", cfg.MigrationsDir)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "ummahhub_session", cfg.SessionCookie)
	assert.Equal(t, "587", cfg.SMTPPort)
	assert.Empty(t, cfg.ArchiveEndpoint)
	assert.Equal(t, "us-east-1", cfg.ArchiveRegion)
	assert.Equal(t, 10, cfg.WriteBurst)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.toml")
	contents := "addr = \":9000\"\nsession_ttl = \"30m\"\nlog_level = \"debug\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	t.Setenv("UMMAH_ADDR", ":9100")
	t.Setenv("UMMAH_ARCHIVE_USE_SSL", "true")
	t.Setenv("UMMAH_ARCHIVE_REGION", "me-central-1")
	t.Setenv("UMMAH_WRITE_BURST", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.ArchiveUseSSL)
	assert.Equal(t, "me-central-1", cfg.ArchiveRegion)
	assert.Equal(t, 3, cfg.WriteBurst)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
