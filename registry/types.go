// Package registry implements the routing core of the agentic MCP server.
// This file defines the descriptor model agents use to declare their tools,
// the structured error type shared across the server, and the status types
// returned by introspection.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/invopop/jsonschema"
)

// --- Tool Descriptor Model ---

// Parameter type tags. Values in a tool call must match the declared tag
// after JSON decoding: a "number" accepts any numeric value, an "integer"
// only whole numbers.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Param describes a single parameter of a tool. Declaration order is
// significant: validation scans parameters left to right and reports the
// first offending one, so repeated calls with the same malformed input
// always produce the same error.
type Param struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Default     any      `json:"default,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// Descriptor describes one tool an agent serves. Descriptors are immutable
// once registered: the registry snapshots them at registration time and an
// agent must go through an explicit re-registration to change its set.
type Descriptor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  []Param `json:"parameters,omitempty"`
}

// Schema converts the descriptor's parameter list into a JSON Schema object
// suitable for MCP tools/list responses and LLM tool registration. Property
// order follows parameter declaration order.
func (d Descriptor) Schema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	var required []string
	for _, p := range d.Parameters {
		ps := &jsonschema.Schema{
			Type:        p.Type,
			Description: p.Description,
		}
		if p.Default != nil {
			ps.Default = p.Default
		}
		if len(p.Enum) > 0 {
			ps.Enum = append([]any(nil), p.Enum...)
		}
		if p.Minimum != nil {
			ps.Minimum = jsonNumber(*p.Minimum)
		}
		if p.Maximum != nil {
			ps.Maximum = jsonNumber(*p.Maximum)
		}
		props.Set(p.Name, ps)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func jsonNumber(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
}

// Float returns a pointer to f, for declaring Minimum/Maximum bounds inline.
func Float(f float64) *float64 {
	return &f
}

// --- Status Types ---

// AgentStatus reports one registered agent's state at the moment of the
// status query: its current liveness and the tools it would contribute
// if live.
type AgentStatus struct {
	Name      string   `json:"name"`
	Available bool     `json:"available"`
	ToolCount int      `json:"tool_count"`
	Tools     []string `json:"tools"`
}

// Status is a point-in-time snapshot across every registered agent, live or
// not. It is recomputed on every query and never cached. Agents appear in
// registration order.
type Status struct {
	TotalAgents int           `json:"total_agents"`
	TotalTools  int           `json:"total_tools"`
	Agents      []AgentStatus `json:"agents"`
}

// --- Error Handling ---

// Error codes returned by the registry. Transports map these onto their own
// wire conventions (JSON-RPC error codes, HTTP status codes).
const (
	CodeDuplicateAgent     = "duplicate_agent"      // agent name already registered
	CodeUnknownAgent       = "unknown_agent"        // deregistering a name that is not registered
	CodeToolConflict       = "tool_conflict"        // tool name already routed to another agent
	CodeInvalidDescriptor  = "invalid_descriptor"   // malformed registration input (empty name, bad tool descriptor)
	CodeUnknownTool        = "unknown_tool"         // no route for the requested tool name
	CodeAgentUnavailable   = "agent_unavailable"    // owning agent reports not live at call time
	CodeInvalidArguments   = "invalid_arguments"    // arguments fail the tool's declared schema
	CodeToolExecutionError = "tool_execution_error" // the agent's own execution failed
)

// Error provides a standardized structure for errors occurring within the
// server. It carries a machine-readable code for programmatic handling, a
// human-readable message, and optionally the underlying cause for
// tool_execution_error wrapping.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the standard error interface, preserving the structured
// code alongside the message.
func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any, so errors.Is and errors.As
// can reach through a wrapped tool execution failure.
func (e Error) Unwrap() error {
	return e.Err
}

// NewError creates a registry Error with the given code and message. This is
// the preferred way to construct errors inside the server so every failure
// carries a stable code.
func NewError(code, message string) error {
	return Error{Code: code, Message: message}
}

// Errorf creates a registry Error with a formatted message.
func Errorf(code, format string, args ...any) error {
	return Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a registry Error that records err as its underlying
// cause. Used to normalize agent execution failures without losing the
// original error chain.
func WrapError(code, message string, err error) error {
	return Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the registry error code from err, or returns the empty
// string when err does not carry one.
func CodeOf(err error) string {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// DecodeArguments converts a validated argument map into a typed arguments
// struct via a JSON round trip, so agents can work with fields instead of
// map lookups.
func DecodeArguments(args map[string]any, v any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// --- Schema Generation Helper ---

// GenerateSchema creates a JSON schema representation for the provided
// generic type T. It uses reflection through github.com/invopop/jsonschema
// to produce a self-contained schema usable for documentation and for
// describing request envelopes to clients.
//
// The generation respects jsonschema tags on struct fields, including:
// - required: Whether the field is required
// - description: Field descriptions for documentation
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  true, // callers may pass extra fields; agents see them untouched
		DoNotReference:             true, // keep schema self-contained, no $refs
		RequiredFromJSONSchemaTags: true, // respect `jsonschema:"required"` tags
	}
	var v T
	return reflector.Reflect(&v)
}
