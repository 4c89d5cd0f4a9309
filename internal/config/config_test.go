package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_PassesValidation(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangeM(t *testing.T) {
	cfg := NewConfig()
	cfg.Index.M = 2
	assert.Error(t, cfg.Validate())

	cfg.Index.M = 100
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownSpace(t *testing.T) {
	cfg := NewConfig()
	cfg.Index.Space = "manhattan"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsZeroConcurrency(t *testing.T) {
	cfg := NewConfig()
	cfg.Resources.Concurrency = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsZeroDimensions(t *testing.T) {
	cfg := NewConfig()
	cfg.Index.Dimensions = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_NoFilePresentUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Index.Dimensions, cfg.Index.Dimensions)
}

func TestLoad_MergesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	content := "index:\n  dimensions: 384\n  space: l2\nsearch:\n  top_k: 25\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "astdb.yaml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 384, cfg.Index.Dimensions)
	assert.Equal(t, "l2", cfg.Index.Space)
	assert.Equal(t, 25, cfg.Search.TopK)
}

func TestLoad_EnvOverridesTopK(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ASTDB_TOP_K", "42")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Search.TopK)
}

func TestValidate_RejectsEmptyIndexFile(t *testing.T) {
	cfg := NewConfig()
	cfg.Index.IndexFile = ""
	assert.Error(t, cfg.Validate())
}
