package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/registry"
)

// maxLineBytes caps a single request line read from the transport.
const maxLineBytes = 1 << 20

// Server answers MCP requests against a registry. One Server can serve any
// line-delimited reader/writer pair; in production that pair is
// stdin/stdout, which is why nothing here may ever log to stdout.
type Server struct {
	registry *registry.Registry
	info     ServerInfo
	log      *logging.Entry
}

// NewServer returns a Server exposing reg under the given identity.
func NewServer(reg *registry.Registry, info ServerInfo, log *logging.Entry) *Server {
	return &Server{registry: reg, info: info, log: log}
}

// Serve reads newline-delimited JSON-RPC requests from r until EOF, writing
// each response to w. Requests are handled sequentially in arrival order.
// Cancellation is observed between requests; a blocked read ends only when
// r is closed.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.log.WithField("server", s.info.Name).Info("listening on stdio transport")
	defer s.log.Info("stdio transport stopped")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Error("invalid JSON received")
			if err := enc.Encode(errorResponse(nil, CodeParseError, "Parse error")); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
			continue
		}

		resp := s.Handle(ctx, &req)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	return scanner.Err()
}

// Handle dispatches a single request and returns its response, or nil for
// notifications.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if strings.HasPrefix(req.Method, "notifications/") {
		s.log.WithField("method", req.Method).Debug("notification received")
		return nil
	}
	s.log.WithField("method", req.Method).Debug("handling request")

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return resultResponse(req.ID, map[string]any{"tools": s.ListTools()})
	case "tools/call":
		return s.handleCallTool(ctx, req)
	case "ping":
		return resultResponse(req.ID, map[string]any{"status": "ok", "server": s.info.Name})
	case "agent/status":
		return resultResponse(req.ID, s.registry.GetStatus())
	case "resources/list":
		return resultResponse(req.ID, map[string]any{"resources": []any{}})
	case "prompts/list":
		return resultResponse(req.ID, map[string]any{"prompts": []any{}})
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return resultResponse(req.ID, map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      s.info,
	})
}

// ListTools renders the registry's live tool union in MCP wire form.
func (s *Server) ListTools() []Tool {
	return ToolList(s.registry)
}

// ToolList converts the registry's live descriptors into MCP wire form. The
// HTTP host shares this conversion so both transports list identical tools.
func ToolList(reg *registry.Registry) []Tool {
	descriptors := reg.ListTools()
	tools := make([]Tool, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.Schema(),
		})
	}
	return tools
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleCallTool(ctx context.Context, req *Request) *Response {
	var params callToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("Invalid params: %v", err))
		}
	}
	if params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "Tool name is required")
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	result, err := s.registry.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.WithError(err).WithField("tool", params.Name).Error("tool call failed")
		return errorResponse(req.ID, rpcCode(err), err.Error())
	}
	return resultResponse(req.ID, CallResult{
		Content: []ContentBlock{{Type: "text", Text: renderText(result)}},
	})
}

// renderText turns a tool result into the text block MCP clients expect.
// Strings pass through untouched, everything else becomes indented JSON.
func renderText(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(b)
}

// rpcCode maps a registry error to its JSON-RPC code.
func rpcCode(err error) int {
	switch registry.CodeOf(err) {
	case registry.CodeUnknownTool:
		return CodeToolNotFound
	case registry.CodeAgentUnavailable:
		return CodeAgentUnavailable
	case registry.CodeInvalidArguments:
		return CodeInvalidParams
	case registry.CodeToolExecutionError:
		return CodeToolExecutionError
	default:
		return CodeInternalError
	}
}

func resultResponse(id, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

func errorResponse(id any, code int, message string) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: &ErrorObject{Code: code, Message: message}}
}
