package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskchain/fullnode/internal/config"
)

func TestLoadWithNoFileReturnsDefaultsWithGeneratedRuntimeID(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.RuntimeID)
	require.Equal(t, config.Default().ListenAddr, cfg.ListenAddr)
	require.Equal(t, config.Default().Dandelion, cfg.Dandelion)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "duskd.toml")
	contents := `
listen_addr = "0.0.0.0:9999"
min_peers = 2
max_peers = 6

[mempool]
max_count = 10
max_bytes = 1024
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9999", cfg.ListenAddr)
	require.Equal(t, 2, cfg.MinPeers)
	require.Equal(t, 6, cfg.MaxPeers)
	require.EqualValues(t, 10, cfg.Mempool.MaxCount)
	require.EqualValues(t, 1024, cfg.Mempool.MaxBytes)

	// Fields the file doesn't set fall back to defaults.
	require.Equal(t, config.Default().Bbs, cfg.Bbs)
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"), nil)
	require.Error(t, err)
}

func TestLoadGeneratesDistinctRuntimeIDs(t *testing.T) {
	a, err := config.Load("", nil)
	require.NoError(t, err)
	b, err := config.Load("", nil)
	require.NoError(t, err)
	require.NotEqual(t, a.RuntimeID, b.RuntimeID)
}
