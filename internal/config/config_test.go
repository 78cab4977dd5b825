package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing-means-defaults-only.toml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 10, cfg.Worker.MaxWorkers)
	assert.Equal(t, 60, cfg.LLM.TimeoutSeconds)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracklens.toml")
	content := `
[server]
port = 9090

[llm]
provider = "ollama"
model = "llama3"
base_url = "http://localhost:11434"

[worker]
max_workers = 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 4, cfg.Worker.MaxWorkers)
	// untouched keys keep their defaults
	assert.Equal(t, 10, cfg.Worker.MaxAttempts)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TRACKLENS_SERVER__PORT", "7070")
	t.Setenv("TRACKLENS_LLM__API_KEY", "sk-from-env")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		cfg.LLM.APIKey = "sk-test"
		return cfg
	}

	assert.NoError(t, Validate(valid()))

	missingKey := valid()
	missingKey.LLM.APIKey = ""
	assert.Error(t, Validate(missingKey))

	// ollama needs no key
	ollama := valid()
	ollama.LLM.Provider = "ollama"
	ollama.LLM.APIKey = ""
	assert.NoError(t, Validate(ollama))

	badProvider := valid()
	badProvider.LLM.Provider = "bard"
	assert.Error(t, Validate(badProvider))

	badPort := valid()
	badPort.Server.Port = 0
	assert.Error(t, Validate(badPort))

	badWorkers := valid()
	badWorkers.Worker.MaxWorkers = 0
	assert.Error(t, Validate(badWorkers))
}

func TestInitConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracklens.toml")
	require.NoError(t, InitConfig(path))
	assert.Error(t, InitConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}
