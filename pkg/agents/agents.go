// Package agents constructs the built-in agents and registers them with a
// registry. A failing agent is logged and skipped, never fatal: the server
// runs with whatever subset the configuration supports.
package agents

import (
	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/pkg/agents/anthropic"
	"github.com/h-ess/agentic-mcp/pkg/agents/file"
	"github.com/h-ess/agentic-mcp/pkg/agents/ollama"
	"github.com/h-ess/agentic-mcp/pkg/agents/openai"
	"github.com/h-ess/agentic-mcp/pkg/agents/web"
	"github.com/h-ess/agentic-mcp/registry"
)

// RegisterDefaults builds the five built-in agents from cfg and registers
// them in a fixed order: file, openai, anthropic, ollama, web.
func RegisterDefaults(reg *registry.Registry, cfg config.Config, log *logging.Logger) {
	boot := logging.Named(log, "agents")

	register(reg, boot, "file", func() (registry.Agent, error) {
		return file.New(cfg.File, logging.Named(log, "agent.file"))
	})
	register(reg, boot, "openai", func() (registry.Agent, error) {
		return openai.New(cfg.OpenAI, logging.Named(log, "agent.openai"))
	})
	register(reg, boot, "anthropic", func() (registry.Agent, error) {
		return anthropic.New(cfg.Anthropic, logging.Named(log, "agent.anthropic"))
	})
	register(reg, boot, "ollama", func() (registry.Agent, error) {
		return ollama.New(cfg.Ollama, logging.Named(log, "agent.ollama")), nil
	})
	register(reg, boot, "web", func() (registry.Agent, error) {
		return web.New(cfg.Web, logging.Named(log, "agent.web")), nil
	})

	st := reg.GetStatus()
	boot.WithFields(logging.Fields{
		"agents": st.TotalAgents,
		"tools":  st.TotalTools,
	}).Info("agent registration complete")
}

func register(reg *registry.Registry, log *logging.Entry, name string, build func() (registry.Agent, error)) {
	agent, err := build()
	if err != nil {
		log.WithError(err).Warnf("skipping %s agent", name)
		return
	}
	if err := reg.RegisterAgent(name, agent); err != nil {
		log.WithError(err).Warnf("failed to register %s agent", name)
	}
}
