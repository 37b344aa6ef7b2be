// Package httpapi exposes the registry over plain HTTP for browsers, scripts,
// and dashboards that do not speak MCP. Every response is JSON; failures use
// a single envelope shape carrying the registry error kind and message.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/mcp"
	"github.com/h-ess/agentic-mcp/registry"
)

// Server is the HTTP host in front of a registry.
type Server struct {
	registry *registry.Registry
	info     mcp.ServerInfo
	log      *logging.Entry
	http     *http.Server
}

// New returns an HTTP host exposing reg under the given identity.
func New(reg *registry.Registry, info mcp.ServerInfo, log *logging.Entry) *Server {
	return &Server{registry: reg, info: info, log: log}
}

// CallToolRequest is the POST /tools/call body.
type CallToolRequest struct {
	ToolName  string         `json:"tool_name" jsonschema:"required,description=Name of the tool to invoke"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"description=Arguments passed to the tool"`
}

// CallToolResponse is the success body of POST /tools/call.
type CallToolResponse struct {
	Status   string `json:"status" jsonschema:"required"`
	ToolName string `json:"tool_name" jsonschema:"required"`
	Result   any    `json:"result"`
}

type analyzeRequest struct {
	Text         string `json:"text"`
	AnalysisType string `json:"analysis_type"`
}

// analysisTools are tried in order by POST /analyze until one succeeds.
var analysisTools = []string{"openai_analysis", "anthropic_analysis", "ollama_analysis"}

// Handler builds the full middleware and routing chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tools", s.handleToolsList)
	mux.HandleFunc("POST /tools/call", s.handleToolCall)
	mux.HandleFunc("GET /agent/status", s.handleAgentStatus)
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /schema", s.handleSchema)
	mux.HandleFunc("POST /analyze", s.handleAnalyze)

	var h http.Handler = mux
	h = s.withCORS(h)
	h = s.withLogging(h)
	h = s.withRecovery(h)
	return h
}

// Start serves HTTP on addr until Shutdown is called. A clean shutdown
// returns nil.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("HTTP host listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	s.log.Info("HTTP host shutting down")
	return s.http.Shutdown(ctx)
}

// --- Endpoint Handlers ---

func (s *Server) handleToolsList(w http.ResponseWriter, r *http.Request) {
	tools := mcp.ToolList(s.registry)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"tools":       tools,
		"server_info": s.info,
		"agent_count": len(s.registry.ListAgents()),
		"tool_count":  len(tools),
	})
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	var req CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, registry.CodeInvalidArguments, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.ToolName == "" {
		writeError(w, http.StatusBadRequest, registry.CodeInvalidArguments, "tool_name is required")
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	result, err := s.registry.CallTool(r.Context(), req.ToolName, req.Arguments)
	if err != nil {
		s.log.WithError(err).WithField("tool", req.ToolName).Error("tool call failed")
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CallToolResponse{
		Status:   "success",
		ToolName: req.ToolName,
		Result:   result,
	})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"agent_status": s.registry.GetStatus(),
		"server_info":  s.info,
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	descriptors := s.registry.ListTools()
	toolNames := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		toolNames = append(toolNames, d.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"message":          fmt.Sprintf("%s is running", s.info.Name),
		"server_info":      s.info,
		"available_agents": s.registry.ListAgents(),
		"available_tools":  toolNames,
	})
}

// handleSchema describes the invoke envelope as JSON Schema so clients can
// discover the API shape without reading documentation.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"request_schema":  registry.GenerateSchema[CallToolRequest](),
		"response_schema": registry.GenerateSchema[CallToolResponse](),
		"server_info":     s.info,
	})
}

// handleAnalyze runs text analysis through whichever LLM analysis tool is
// currently live, preferring OpenAI, then Anthropic, then Ollama.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, registry.CodeInvalidArguments, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, registry.CodeInvalidArguments, "text is required")
		return
	}
	if req.AnalysisType == "" {
		req.AnalysisType = "general"
	}

	available := make(map[string]bool)
	for _, d := range s.registry.ListTools() {
		available[d.Name] = true
	}

	args := map[string]any{"text": req.Text, "analysis_type": req.AnalysisType}
	for _, tool := range analysisTools {
		if !available[tool] {
			continue
		}
		result, err := s.registry.CallTool(r.Context(), tool, args)
		if err != nil {
			s.log.WithError(err).WithField("tool", tool).Warn("analysis tool failed, trying next")
			continue
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "success",
			"analysis_type": req.AnalysisType,
			"used_tool":     tool,
			"result":        result,
		})
		return
	}
	writeError(w, http.StatusServiceUnavailable, registry.CodeAgentUnavailable, "no analysis tools available")
}

// --- Middleware ---

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.log.WithFields(logging.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		}).Info("request handled")
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.WithField("panic", rec).Error("handler panicked")
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// --- Response Helpers ---

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Kind: kind, Message: message}})
}

// writeRegistryError maps a registry error onto an HTTP status and the shared
// error envelope.
func writeRegistryError(w http.ResponseWriter, err error) {
	var re registry.Error
	if errors.As(err, &re) {
		writeError(w, statusFor(re.Code), re.Code, re.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func statusFor(code string) int {
	switch code {
	case registry.CodeInvalidArguments, registry.CodeInvalidDescriptor:
		return http.StatusBadRequest
	case registry.CodeUnknownTool, registry.CodeUnknownAgent:
		return http.StatusNotFound
	case registry.CodeDuplicateAgent, registry.CodeToolConflict:
		return http.StatusConflict
	case registry.CodeAgentUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
