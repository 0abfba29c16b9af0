package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.False(t, cfg.Log.JSON)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "graph.tgxml", cfg.Graph.Path)
	assert.Equal(t, "graph.tgdb", cfg.Graph.StorePath)
	assert.Equal(t, 250, cfg.Watch.DebounceMs)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typegraph.toml")
	content := `
[log]
json = true
level = "debug"

[graph]
path = "world.tgxml"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "world.tgxml", cfg.Graph.Path)
	// unset values keep their defaults
	assert.Equal(t, "graph.tgdb", cfg.Graph.StorePath)
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("TYPEGRAPH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}
