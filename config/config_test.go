package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "ant-key")
	t.Setenv("OPENAI_API_KEY", "oai-key")
	t.Setenv("STREETRACE_REDIS_ADDR", "localhost:6379")
	t.Setenv("STREETRACE_AGENT_PATHS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ant-key", cfg.AnthropicAPIKey)
	assert.Equal(t, "oai-key", cfg.OpenAIAPIKey)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Len(t, cfg.AgentSearchPaths, len(DefaultSearchPaths))
}

func TestLoadAppendsExtraAgentPaths(t *testing.T) {
	t.Setenv("STREETRACE_AGENT_PATHS", "/opt/agents:/srv/agents")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.AgentSearchPaths, "/opt/agents")
	assert.Contains(t, cfg.AgentSearchPaths, "/srv/agents")
}

func TestExpandHomeExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded, err := expandHome("~/.streetrace/agents")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".streetrace/agents"), expanded)
}

func TestExpandHomeLeavesNonTildePathsUnchanged(t *testing.T) {
	expanded, err := expandHome("/etc/streetrace/agents")
	require.NoError(t, err)
	assert.Equal(t, "/etc/streetrace/agents", expanded)
}
