package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "mock", cfg.Embedding.Provider)
	require.Equal(t, 384, cfg.Embedding.Dimensions)
	require.Equal(t, 8, cfg.Agent.MaxIterations)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  dir: /var/lib/memu
llm:
  model: claude-opus-4-20250514
  timeout: 90s
agent:
  max_iterations: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/memu", cfg.Store.Dir)
	require.Equal(t, "claude-opus-4-20250514", cfg.LLM.Model)
	require.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	require.Equal(t, 3, cfg.Agent.MaxIterations)
	// Untouched sections keep their defaults.
	require.Equal(t, int64(4096), cfg.LLM.MaxTokens)
	require.Equal(t, 5, cfg.Agent.RecallK)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: from-file
`)
	t.Setenv("MEMU_LLM_MODEL", "from-env")
	t.Setenv("MEMU_AGENT_MAX_ITERATIONS", "12")
	t.Setenv("MEMU_EMBEDDING_TIMEOUT", "30s")
	t.Setenv("MEMU_LOG_DEVELOPMENT", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.LLM.Model)
	require.Equal(t, 12, cfg.Agent.MaxIterations)
	require.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
	require.True(t, cfg.Log.Development)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "embedding:\n  provider: quantum\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "log:\n  level: loud\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "store:\n  dir: \"\"\n"))
	require.Error(t, err)

	t.Setenv("MEMU_AGENT_RECALL_K", "many")
	_, err = Load("")
	require.Error(t, err)
}
