package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ARK_API_KEY", "ARK_API_URL", "ARK_MODEL", "ARK_PROMPT", "ANALYSIS_HOST", "ANALYSIS_PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIURL, cfg.API.URL)
	assert.Equal(t, DefaultModel, cfg.API.Model)
	assert.Equal(t, DefaultPrompt, cfg.API.Prompt)
	assert.Empty(t, cfg.API.Key)
	assert.Equal(t, "127.0.0.1:8000", cfg.ListenAddr())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARK_API_KEY", "test-key")
	t.Setenv("ARK_API_URL", "http://localhost:9999/api/v3")
	t.Setenv("ARK_MODEL", "custom-model")
	t.Setenv("ARK_PROMPT", "描述这张图")
	t.Setenv("ANALYSIS_HOST", "0.0.0.0")
	t.Setenv("ANALYSIS_PORT", "8080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.API.Key)
	assert.Equal(t, "http://localhost:9999/api/v3", cfg.API.URL)
	assert.Equal(t, "custom-model", cfg.API.Model)
	assert.Equal(t, "描述这张图", cfg.API.Prompt)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
}

func TestLoad_InvalidPortIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANALYSIS_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  key: file-key
  model: file-model
server:
  host: 10.0.0.1
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.API.Key)
	assert.Equal(t, "file-model", cfg.API.Model)
	assert.Equal(t, DefaultAPIURL, cfg.API.URL)
	assert.Equal(t, "10.0.0.1:9000", cfg.ListenAddr())
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARK_MODEL", "env-model")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  model: file-model\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.API.Model)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.API.Model)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRequireAPIKey(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Error(t, cfg.RequireAPIKey())

	cfg.API.Key = "k"
	assert.NoError(t, cfg.RequireAPIKey())
}
