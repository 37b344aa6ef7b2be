// Command agentic-host serves the HTTP front end of the agentic MCP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/httpapi"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/mcp"
	"github.com/h-ess/agentic-mcp/pkg/agents"
	"github.com/h-ess/agentic-mcp/registry"
)

const serverDescription = "Agentic MCP server with OpenAI, Anthropic, Ollama, file, and web agents"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		logLevel   = flag.String("log-level", "", "override the configured log level")
		logFile    = flag.String("log-file", "", "append logs to this file in addition to stderr")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	logOut := io.Writer(os.Stderr)
	if cfg.LogFile != "" {
		f, err := logging.OpenFile(cfg.LogFile)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = io.MultiWriter(os.Stderr, f)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, logOut)

	reg := registry.NewWithLogger(log)
	agents.RegisterDefaults(reg, cfg, log)

	host := httpapi.New(reg, mcp.ServerInfo{
		Name:        cfg.ServerName,
		Version:     cfg.ServerVersion,
		Description: serverDescription,
	}, logging.Named(log, "http"))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.WithField("addr", addr).Info("starting HTTP host")
	for _, ep := range []string{
		"GET  /tools         list available tools",
		"POST /tools/call    invoke a tool",
		"GET  /agent/status  per-agent liveness and tools",
		"GET  /ping          health check",
		"GET  /schema        tool call request and response schemas",
		"POST /analyze       text analysis with agent fallback",
	} {
		log.Info(ep)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- host.Start(addr) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return host.Shutdown(shutdownCtx)
}
