package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsApplyWithNoFlagsOrEnv(t *testing.T) {
	v, err := New(nil, "")
	require.NoError(t, err)

	cfg := LoadWorkerConfig(v)
	assert.Equal(t, DefaultCols, cfg.Cols)
	assert.Equal(t, DefaultRows, cfg.Rows)
	assert.Equal(t, DefaultLogRingSize, cfg.LogRingSize)
	assert.True(t, cfg.StallEnabled)
	assert.Equal(t, int64(DefaultStallTimeoutMs), cfg.StallTimeoutMs)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestNew_EnvOverridesDefault(t *testing.T) {
	t.Setenv("PTYSUP_COLS", "200")
	t.Setenv("PTYSUP_STALL_TIMEOUT_MS", "5000")

	v, err := New(nil, "")
	require.NoError(t, err)

	cfg := LoadWorkerConfig(v)
	assert.Equal(t, 200, cfg.Cols)
	assert.Equal(t, int64(5000), cfg.StallTimeoutMs)
}

func TestNew_ConfigFileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ptysup.yaml"
	require.NoError(t, os.WriteFile(path, []byte("rows: 60\naddr: \":9090\"\n"), 0o644))

	v, err := New(nil, path)
	require.NoError(t, err)

	cfg := LoadAPIConfig(v)
	assert.Equal(t, 60, cfg.Rows)
	assert.Equal(t, ":9090", cfg.Addr)
}

func TestLoadAPIConfig_EmbedsWorkerConfig(t *testing.T) {
	v, err := New(nil, "")
	require.NoError(t, err)

	cfg := LoadAPIConfig(v)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DefaultCols, cfg.Cols)
}
