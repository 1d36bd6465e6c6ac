package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 65536, cfg.MaxFrameBytes)
	assert.Equal(t, "allow", cfg.DuplicateNamePolicy)
	assert.True(t, cfg.RequireCredential)
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	os.Setenv("GATEWAY_MAX_FRAME_BYTES", "1024")
	os.Setenv("GATEWAY_REQUIRE_CREDENTIAL", "false")
	defer os.Unsetenv("GATEWAY_MAX_FRAME_BYTES")
	defer os.Unsetenv("GATEWAY_REQUIRE_CREDENTIAL")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.MaxFrameBytes)
	assert.False(t, cfg.RequireCredential)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/gateway.yaml"
	require.NoError(t, os.WriteFile(path, []byte("wsAddr: \":9000\"\nduplicateNamePolicy: reject-new\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.WSAddr)
	assert.Equal(t, "reject-new", cfg.DuplicateNamePolicy)
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	_, err := Load("/nonexistent/gateway.yaml")
	require.NoError(t, err)
}
