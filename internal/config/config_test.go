package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 12*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.CreateRateBurst)
	assert.Equal(t, "editdesk-host-key", cfg.HostKey)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.UsesMemoryStore())
	assert.False(t, cfg.ObjectStorageConfigured())
}

func TestLoadFileEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "editdesk.toml")
	contents := "addr = \":9000\"\nstore = \"memory\"\ntoken_ttl = \"1h\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	t.Setenv("EDITDESK_ADDR", ":9100")
	t.Setenv("EDITDESK_CREATE_RATE_BURST", "3")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Addr)
	assert.True(t, cfg.UsesMemoryStore())
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 3, cfg.CreateRateBurst)
}

func TestLoadFileMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
