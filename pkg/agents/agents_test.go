package agents_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/pkg/agents"
	"github.com/h-ess/agentic-mcp/registry"
)

// testConfig returns a config whose file agent works against a temp root and
// whose ollama endpoint is unreachable.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.File.Root = t.TempDir()
	cfg.Ollama.URL = "http://127.0.0.1:1"
	return cfg
}

func toolNames(reg *registry.Registry) []string {
	tools := reg.ListTools()
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestRegisterDefaultsWithAllKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Anthropic.APIKey = "sk-ant-test"

	reg := registry.NewWithLogger(logging.New("error", "text", io.Discard))
	agents.RegisterDefaults(reg, cfg, logging.New("error", "text", io.Discard))

	assert.Equal(t, []string{"file", "openai", "anthropic", "ollama", "web"}, reg.ListAgents())

	names := toolNames(reg)
	assert.Contains(t, names, "file_read")
	assert.Contains(t, names, "openai_chat")
	assert.Contains(t, names, "anthropic_chat")
	assert.Contains(t, names, "web_fetch")
	// The unreachable ollama daemon contributes nothing.
	assert.NotContains(t, names, "ollama_chat")

	st := reg.GetStatus()
	assert.Equal(t, 5, st.TotalAgents)
	for _, a := range st.Agents {
		if a.Name == "ollama" {
			assert.False(t, a.Available)
		} else {
			assert.True(t, a.Available, "agent %s should be available", a.Name)
		}
	}
}

func TestRegisterDefaultsWithoutKeys(t *testing.T) {
	cfg := testConfig(t)

	reg := registry.NewWithLogger(logging.New("error", "text", io.Discard))
	agents.RegisterDefaults(reg, cfg, logging.New("error", "text", io.Discard))

	// Agents whose constructors fail are skipped entirely.
	assert.Equal(t, []string{"file", "ollama", "web"}, reg.ListAgents())

	names := toolNames(reg)
	assert.Contains(t, names, "file_read")
	assert.Contains(t, names, "web_fetch")
	assert.NotContains(t, names, "openai_chat")
	assert.NotContains(t, names, "anthropic_chat")
}

func TestRegisterDefaultsBadFileRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.File.Root = "/this/path/does/not/exist"

	reg := registry.NewWithLogger(logging.New("error", "text", io.Discard))
	agents.RegisterDefaults(reg, cfg, logging.New("error", "text", io.Discard))

	require.NotContains(t, reg.ListAgents(), "file")
	assert.NotContains(t, toolNames(reg), "file_read")
}
