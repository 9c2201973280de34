// Package config loads process configuration: agent/workload search
// paths, provider API keys, and an optional local .env file, grounded on
// tarsy's cmd/tarsy/main.go use of github.com/joho/godotenv for local dev
// config loading.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultSearchPaths is the default search-path set, applied before any
// STREETRACE_AGENT_PATHS extras.
var DefaultSearchPaths = []string{"./agents", ".", "~/.streetrace/agents", "/etc/streetrace/agents"}

// Config is the process-wide configuration resolved once at startup.
type Config struct {
	// AgentSearchPaths is the ordered, tilde-expanded list of directories
	// workload.Manager walks for discovery.
	AgentSearchPaths []string
	// AnthropicAPIKey, OpenAIAPIKey configure the respective model
	// adapters; either may be empty if that provider is unused.
	AnthropicAPIKey string
	OpenAIAPIKey    string
	// RedisAddr configures the optional session/redis and
	// eventstream/pulse backends; empty disables both.
	RedisAddr string
}

// Load reads .env (if present, via godotenv, not fatal if absent) then
// resolves configuration from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	paths := append([]string(nil), DefaultSearchPaths...)
	if extra := os.Getenv("STREETRACE_AGENT_PATHS"); extra != "" {
		paths = append(paths, strings.Split(extra, ":")...)
	}
	for i, p := range paths {
		expanded, err := expandHome(p)
		if err != nil {
			return nil, err
		}
		paths[i] = expanded
	}

	return &Config{
		AgentSearchPaths: paths,
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		RedisAddr:        os.Getenv("STREETRACE_REDIS_ADDR"),
	}, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
