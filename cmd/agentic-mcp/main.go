// Command agentic-mcp serves the agentic MCP server over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/mcp"
	"github.com/h-ess/agentic-mcp/pkg/agents"
	"github.com/h-ess/agentic-mcp/registry"
)

const serverDescription = "Agentic MCP server with OpenAI, Anthropic, Ollama, file, and web agents"

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

	// stdout carries the JSON-RPC framing, so logs go to stderr and
	// optionally a file, never stdout.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(reg, mcp.ServerInfo{
		Name:        cfg.ServerName,
		Version:     cfg.ServerVersion,
		Description: serverDescription,
	}, logging.Named(log, "mcp"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, os.Stdin, os.Stdout) }()

	select {
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("signal received, shutting down")
		return nil
	}
}
