package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFlags(t *testing.T, path string) map[string]bool {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return cfg.Flags
}

func TestSaveFlag_CreatesNewFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, SaveFlag(configPath, "query-cache", true))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "flags:")
	assert.Contains(t, string(data), "query-cache: true")
}

func TestSaveFlag_PreservesOtherConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	initial := `# top comment
log:
  level: debug # keep me
flags:
  publish-events: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(initial), 0o600))

	require.NoError(t, SaveFlag(configPath, "vet-logging", true))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "# top comment")
	assert.Contains(t, content, "# keep me")
	assert.Contains(t, content, "level: debug")

	got := readFlags(t, configPath)
	assert.Equal(t, map[string]bool{"publish-events": false, "vet-logging": true}, got)
}

func TestSaveFlag_OverwritesExisting(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveFlag(configPath, "query-cache", true))
	require.NoError(t, SaveFlag(configPath, "query-cache", false))

	assert.Equal(t, map[string]bool{"query-cache": false}, readFlags(t, configPath))
}

func TestSaveFlags_ReplacesSection(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(configPath))

	require.NoError(t, SaveFlags(configPath, map[string]bool{"vet-logging": true, "query-cache": true}))

	assert.Equal(t, map[string]bool{"query-cache": true, "vet-logging": true}, readFlags(t, configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Distributed tracing", "comments outside flags survive")
}

func TestSaveFlag_RejectsNonMapping(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("- a\n- b\n"), 0o600))

	err := SaveFlag(configPath, "query-cache", true)
	require.ErrorContains(t, err, "not a mapping")
}

func TestSaveFlag_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log: [unclosed\n"), 0o600))

	err := SaveFlag(configPath, "query-cache", true)
	require.ErrorContains(t, err, "parsing config")
}

func TestWriteDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "sub", "config.yaml")
	require.NoError(t, WriteDefaultConfig(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigTemplate(), string(data))
}
