// Package mcp implements the Model Context Protocol server surface: JSON-RPC
// 2.0 over newline-delimited stdio, exposing the registry's tools to MCP
// clients.
package mcp

import "encoding/json"

// Version is the JSON-RPC version string carried on every message.
const Version = "2.0"

// ProtocolVersion is the MCP protocol revision this server implements.
const ProtocolVersion = "2024-11-05"

// Request is a single JSON-RPC request or notification. Params stays raw
// until the method handler knows what to decode it into.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a single JSON-RPC response. ID is always emitted, null when the
// request's id could not be read.
type Response struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      any          `json:"id"`
	Result  any          `json:"result,omitempty"`
	Error   *ErrorObject `json:"error,omitempty"`
}

// ErrorObject is the error member of a failed response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC 2.0 protocol error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application error codes for tools/call failures.
const (
	CodeToolNotFound       = -32001
	CodeToolExecutionError = -32002
	CodeAgentUnavailable   = -32003
)

// ServerInfo identifies the server in the initialize handshake.
type ServerInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// Tool is the tools/list wire form of one registry descriptor.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// ContentBlock is one element of a tools/call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the result payload of a successful tools/call.
type CallResult struct {
	Content []ContentBlock `json:"content"`
}
