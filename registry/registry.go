// Package registry implements the routing core of the agentic MCP server.
// This file contains the Registry itself: registration with all-or-nothing
// conflict detection, call routing with validation and defaulting, and
// status aggregation.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// entry is one registered agent together with the tool descriptors
// snapshotted at registration time. Entries are immutable once published:
// re-registration replaces the whole entry rather than mutating it, so a
// pointer obtained under the read lock stays safe to use after the lock is
// released.
type entry struct {
	name   string
	agent  Agent
	tools  []Descriptor
	byName map[string]int // tool name -> index into tools
}

// Registry is the sole authority for tool-to-agent routing. It maps tool
// names to the agents that serve them, detects registration conflicts before
// committing anything, validates and defaults arguments on every call, and
// aggregates per-agent status for introspection.
//
// A single Registry instance is shared by all transport front ends. Reads
// (CallTool, ListTools, GetStatus) run concurrently under a shared lock;
// registration, deregistration, and replacement take the exclusive lock for
// the whole check-then-commit sequence, so no reader ever observes a partial
// capability set. No lock is held across a delegated agent invocation: slow
// agents never block unrelated calls.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*entry
	order  []string          // agent names in registration order
	routes map[string]string // tool name -> owning agent name
	log    *logrus.Entry
}

// New creates an empty registry logging through the process-wide logrus
// logger. Use NewWithLogger to attach a configured logger instead.
func New() *Registry {
	return NewWithLogger(logrus.StandardLogger())
}

// NewWithLogger creates an empty registry that logs through log.
func NewWithLogger(log *logrus.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*entry),
		routes: make(map[string]string),
		log:    log.WithField("component", "registry"),
	}
}

// --- Registration ---

// RegisterAgent adds an agent and routes for all of its tools.
//
// Registration is all-or-nothing: either every tool the agent declares
// becomes routable, or none do and the routing table is left exactly as it
// was. Failure cases:
//   - empty name or nil agent: invalid_descriptor
//   - name already registered: duplicate_agent (re-registration is the
//     explicit ReregisterAgent operation, never implied by a second call)
//   - a declared tool is malformed: invalid_descriptor
//   - a declared tool name is already routed to another agent:
//     tool_conflict, naming both owners
//
// An agent that reports not live at registration time is still recorded, but
// contributes zero routes; its tools are not queried. Liveness may recover
// later, at which point an explicit ReregisterAgent picks up its tools.
func (r *Registry) RegisterAgent(name string, agent Agent) error {
	if name == "" {
		return NewError(CodeInvalidDescriptor, "agent name must not be empty")
	}
	if agent == nil {
		return Errorf(CodeInvalidDescriptor, "agent %q must not be nil", name)
	}

	// Probe and validate outside the lock: liveness checks may hit the
	// network, and descriptor validation is pure.
	tools, byName, err := snapshotTools(name, agent)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; exists {
		return Errorf(CodeDuplicateAgent, "agent %q is already registered", name)
	}
	for _, d := range tools {
		if owner, exists := r.routes[d.Name]; exists {
			return Errorf(CodeToolConflict,
				"tool %q declared by agent %q is already provided by agent %q", d.Name, name, owner)
		}
	}

	r.agents[name] = &entry{name: name, agent: agent, tools: tools, byName: byName}
	r.order = append(r.order, name)
	for _, d := range tools {
		r.routes[d.Name] = name
	}

	if len(tools) == 0 {
		r.log.WithField("agent", name).Warn("agent registered without routable tools (not available)")
	} else {
		r.log.WithFields(logrus.Fields{"agent": name, "tools": len(tools)}).Info("agent registered")
	}
	return nil
}

// DeregisterAgent removes an agent and all of its routes atomically.
// Deregistering a name that was never registered fails with unknown_agent.
func (r *Registry) DeregisterAgent(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.agents[name]
	if !ok {
		return Errorf(CodeUnknownAgent, "agent %q is not registered", name)
	}

	delete(r.agents, name)
	for _, d := range e.tools {
		delete(r.routes, d.Name)
	}
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.log.WithField("agent", name).Info("agent deregistered")
	return nil
}

// ReregisterAgent atomically replaces a registered agent's entry, including
// its entire tool set, under a single exclusive section: no caller ever
// observes a state where only some of the new tools are routable. The agent
// keeps its original registration order position.
//
// The name must already be registered (unknown_agent otherwise); replacing
// an agent that was never registered is a plain RegisterAgent. On any
// validation or conflict failure the previous entry stays fully in place.
func (r *Registry) ReregisterAgent(name string, agent Agent) error {
	if agent == nil {
		return Errorf(CodeInvalidDescriptor, "agent %q must not be nil", name)
	}

	tools, byName, err := snapshotTools(name, agent)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.agents[name]
	if !ok {
		return Errorf(CodeUnknownAgent, "agent %q is not registered", name)
	}
	for _, d := range tools {
		if owner, exists := r.routes[d.Name]; exists && owner != name {
			return Errorf(CodeToolConflict,
				"tool %q declared by agent %q is already provided by agent %q", d.Name, name, owner)
		}
	}

	for _, d := range old.tools {
		delete(r.routes, d.Name)
	}
	r.agents[name] = &entry{name: name, agent: agent, tools: tools, byName: byName}
	for _, d := range tools {
		r.routes[d.Name] = name
	}

	r.log.WithFields(logrus.Fields{"agent": name, "tools": len(tools)}).Info("agent re-registered")
	return nil
}

// snapshotTools queries a live agent for its descriptors and validates them.
// A not-live agent yields an empty snapshot without being queried.
func snapshotTools(name string, agent Agent) ([]Descriptor, map[string]int, error) {
	if !agent.IsAvailable() {
		return nil, map[string]int{}, nil
	}
	tools := agent.GetTools()
	byName, err := validateDescriptors(name, tools)
	if err != nil {
		return nil, nil, err
	}
	return tools, byName, nil
}

// --- Dispatch ---

// CallTool resolves a tool name, validates the arguments against the tool's
// declared schema, and delegates to the owning agent.
//
// Failure cases, in check order:
//   - unknown_tool: no route for the name
//   - agent_unavailable: the owning agent reports not live right now
//     (liveness is re-checked on every call, never cached from registration)
//   - invalid_arguments: a required parameter is missing or a present value
//     violates its type tag, enum, or numeric bounds; the first offending
//     parameter in declared order is named
//   - tool_execution_error: the agent's own execution failed; the original
//     error remains reachable through errors.Unwrap
//
// On success the agent's return value is passed through unmodified. The
// agent receives a fresh argument map with declared defaults substituted for
// omitted optional parameters; the caller's map is never mutated. Only the
// route lookup runs under the registry lock, so a slow agent cannot delay
// unrelated calls.
func (r *Registry) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	r.mu.RLock()
	agentName, ok := r.routes[tool]
	var e *entry
	if ok {
		e = r.agents[agentName]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, Errorf(CodeUnknownTool, "tool %q is not provided by any registered agent", tool)
	}
	if !e.agent.IsAvailable() {
		return nil, Errorf(CodeAgentUnavailable, "agent %q for tool %q is currently unavailable", agentName, tool)
	}

	prepared, err := prepareArguments(e.tools[e.byName[tool]], args)
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{"tool": tool, "agent": agentName}).Debug("dispatching tool call")
	result, err := e.agent.HandleToolCall(ctx, tool, prepared)
	if err != nil {
		return nil, WrapError(CodeToolExecutionError, fmt.Sprintf("tool %q failed: %v", tool, err), err)
	}
	return result, nil
}

// --- Introspection ---

// ListTools returns the union of tool descriptors across all agents
// currently reporting live, in registration order and then declaration
// order within each agent. The result is stable across repeated calls as
// long as the registry is not mutated and liveness does not change.
func (r *Registry) ListTools() []Descriptor {
	entries := r.snapshot()

	var tools []Descriptor
	for _, e := range entries {
		if len(e.tools) == 0 || !e.agent.IsAvailable() {
			continue
		}
		tools = append(tools, e.tools...)
	}
	return tools
}

// ListAgents returns the names of all registered agents, live or not, in
// registration order.
func (r *Registry) ListAgents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// GetStatus reports every registered agent, live or not: its name, current
// liveness, and the tools it would contribute if live. The snapshot is
// recomputed on every call and never cached, so its staleness window is
// zero by construction. Pure read, no side effects.
func (r *Registry) GetStatus() Status {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.agents[name])
	}
	totalTools := len(r.routes)
	r.mu.RUnlock()

	st := Status{
		TotalAgents: len(entries),
		TotalTools:  totalTools,
		Agents:      make([]AgentStatus, 0, len(entries)),
	}
	for _, e := range entries {
		names := make([]string, len(e.tools))
		for i, d := range e.tools {
			names[i] = d.Name
		}
		st.Agents = append(st.Agents, AgentStatus{
			Name:      e.name,
			Available: e.agent.IsAvailable(),
			ToolCount: len(e.tools),
			Tools:     names,
		})
	}
	return st
}

// snapshot copies the entry list under the read lock. Liveness probes happen
// on the caller's side, outside any lock, because a probe may hit the
// network.
func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*entry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.agents[name])
	}
	return entries
}
