// Package registry implements the routing core of the agentic MCP server.
// It owns the mapping from tool names to the agents that serve them, and is
// the single authority for registration-time conflict detection, call-time
// argument validation, and status aggregation across independently-failing
// agents.
//
// Core concepts:
//   - Agent: an external unit of functionality that declares zero or more
//     named tools, reports its own liveness, and executes a tool call
//   - Descriptor: the schema describing one tool (name, parameters, defaults)
//   - Registry: the routing table that resolves tool names to agents
//
// This file defines the interface every Agent implementation must satisfy.
package registry

import "context"

// Agent represents a named unit of functionality behind the registry.
// Implementations wrap an external capability provider (the local filesystem,
// an LLM API, a local model daemon) and degrade gracefully: an agent that
// cannot serve calls reports it through IsAvailable rather than by failing
// construction.
type Agent interface {
	// GetTools returns the descriptors for every tool this agent serves,
	// in declaration order. The registry snapshots the returned slice at
	// registration time; descriptors must not change afterwards except
	// through an explicit re-registration.
	GetTools() []Descriptor

	// IsAvailable reports whether the agent can currently serve calls.
	// It must be cheap and safe to call repeatedly: the registry consults
	// it at registration time and again on every call, since external
	// dependencies (credentials, local daemons) can change state between
	// registration and use.
	IsAvailable() bool

	// HandleToolCall executes the named tool with a fully-defaulted
	// argument map. The registry substitutes declared defaults for omitted
	// optional parameters before delegating, so implementations never see
	// a missing optional parameter. The provided context carries
	// cancellation and deadlines from the transport; implementations
	// should pass it through to any outbound calls.
	HandleToolCall(ctx context.Context, tool string, args map[string]any) (any, error)
}
