package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/pkg/agents/anthropic"
	"github.com/h-ess/agentic-mcp/pkg/agents/prompt"
	"github.com/h-ess/agentic-mcp/registry"
)

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// messageRequest mirrors the wire shape the SDK sends to the messages
// endpoint.
type messageRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int64       `json:"max_tokens"`
	Temperature float64     `json:"temperature"`
	System      []textBlock `json:"system"`
	Messages    []struct {
		Role    string      `json:"role"`
		Content []textBlock `json:"content"`
	} `json:"messages"`
}

const messageResponse = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-3-7-sonnet-20250219",
	"content": [{"type": "text", "text": "RESPONSE"}],
	"stop_reason": "end_turn",
	"stop_sequence": null,
	"usage": {"input_tokens": 12, "output_tokens": 6}
}`

type fixture struct {
	reg      *registry.Registry
	requests *[]messageRequest
}

func newFixture(t *testing.T, status int, body string) fixture {
	t.Helper()

	var requests []messageRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req messageRequest
		require.NoError(t, json.Unmarshal(raw, &req))
		requests = append(requests, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	log := logging.Named(logging.New("error", "text", io.Discard), "test")
	agent, err := anthropic.New(config.AnthropicConfig{
		APIKey:    "test-key",
		Model:     "claude-3-7-sonnet-20250219",
		MaxTokens: 1000,
		BaseURL:   ts.URL,
	}, log)
	require.NoError(t, err)

	reg := registry.NewWithLogger(log.Logger)
	require.NoError(t, reg.RegisterAgent("anthropic", agent))
	return fixture{reg: reg, requests: &requests}
}

func (f fixture) call(t *testing.T, tool string, args map[string]any) map[string]any {
	t.Helper()
	res, err := f.reg.CallTool(context.Background(), tool, args)
	require.NoError(t, err)
	out, ok := res.(map[string]any)
	require.True(t, ok, "result should be a map, got %T", res)
	return out
}

func (f fixture) callErr(t *testing.T, tool string, args map[string]any) error {
	t.Helper()
	_, err := f.reg.CallTool(context.Background(), tool, args)
	require.Error(t, err)
	return err
}

func (f fixture) lastRequest(t *testing.T) messageRequest {
	t.Helper()
	require.NotEmpty(t, *f.requests)
	return (*f.requests)[len(*f.requests)-1]
}

func TestNewRequiresAPIKey(t *testing.T) {
	log := logging.Named(logging.New("error", "text", io.Discard), "test")
	_, err := anthropic.New(config.AnthropicConfig{Model: "claude-3-7-sonnet-20250219", MaxTokens: 1000}, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestToolDeclarations(t *testing.T) {
	f := newFixture(t, http.StatusOK, messageResponse)

	tools := f.reg.ListTools()
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"anthropic_chat", "anthropic_analysis", "anthropic_summarize"}, names)
}

func TestChatInjectsSystemPrompt(t *testing.T) {
	f := newFixture(t, http.StatusOK, messageResponse)

	res := f.call(t, "anthropic_chat", map[string]any{"message": "hi there"})
	assert.Equal(t, "RESPONSE", res["content"])
	assert.Equal(t, "claude-3-7-sonnet-20250219", res["model"])

	usage, ok := res["usage"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 12, usage["input_tokens"])
	assert.EqualValues(t, 6, usage["output_tokens"])

	req := f.lastRequest(t)
	assert.Equal(t, "claude-3-7-sonnet-20250219", req.Model)
	assert.EqualValues(t, 1000, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 0.001)
	require.Len(t, req.System, 1)
	assert.Equal(t, prompt.SystemAssistant, req.System[0].Text)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	require.Len(t, req.Messages[0].Content, 1)
	assert.Equal(t, "hi there", req.Messages[0].Content[0].Text)
}

func TestChatLiftsSystemMessages(t *testing.T) {
	f := newFixture(t, http.StatusOK, messageResponse)

	f.call(t, "anthropic_chat", map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "You are terse."},
			map[string]any{"role": "user", "content": "hello"},
			map[string]any{"role": "assistant", "content": "hi"},
			map[string]any{"role": "user", "content": "bye"},
		},
		"max_tokens": 50,
	})

	req := f.lastRequest(t)
	require.Len(t, req.System, 1)
	assert.Equal(t, "You are terse.", req.System[0].Text)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.Equal(t, "hi", req.Messages[1].Content[0].Text)
	assert.EqualValues(t, 50, req.MaxTokens)
}

func TestChatWithoutMessage(t *testing.T) {
	f := newFixture(t, http.StatusOK, messageResponse)

	err := f.callErr(t, "anthropic_chat", map[string]any{})
	assert.Equal(t, registry.CodeToolExecutionError, registry.CodeOf(err))
	assert.Contains(t, err.Error(), "no messages provided")
	assert.Empty(t, *f.requests)
}

func TestAnalysis(t *testing.T) {
	f := newFixture(t, http.StatusOK, messageResponse)

	res := f.call(t, "anthropic_analysis", map[string]any{
		"text":          "kubernetes, helm, and a sprinkle of yaml",
		"analysis_type": "keywords",
	})
	assert.Equal(t, "RESPONSE", res["analysis"])
	assert.Equal(t, "keywords", res["analysis_type"])

	req := f.lastRequest(t)
	assert.EqualValues(t, 800, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 0.001)
	assert.Equal(t, prompt.SystemAnalyst, req.System[0].Text)
	assert.Contains(t, req.Messages[0].Content[0].Text, "Extract the key topics")
	assert.Contains(t, req.Messages[0].Content[0].Text, "sprinkle of yaml")
}

func TestSummarize(t *testing.T) {
	f := newFixture(t, http.StatusOK, messageResponse)

	res := f.call(t, "anthropic_summarize", map[string]any{
		"text":   "a long report about quarterly results",
		"length": "long",
		"style":  "abstract",
	})
	assert.Equal(t, "RESPONSE", res["summary"])
	assert.Equal(t, "long", res["length"])
	assert.Equal(t, "abstract", res["style"])

	req := f.lastRequest(t)
	assert.EqualValues(t, 600, req.MaxTokens)
	assert.Equal(t, prompt.SystemSummarizer, req.System[0].Text)
	assert.Contains(t, req.Messages[0].Content[0].Text, "in 3-4 paragraphs")
	assert.Contains(t, req.Messages[0].Content[0].Text, "as an academic abstract")
}

func TestArgumentValidation(t *testing.T) {
	f := newFixture(t, http.StatusOK, messageResponse)

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"analysis type outside enum", "anthropic_analysis", map[string]any{"text": "x", "analysis_type": "vibes"}},
		{"temperature above maximum", "anthropic_chat", map[string]any{"message": "x", "temperature": 2}},
		{"max tokens above maximum", "anthropic_chat", map[string]any{"message": "x", "max_tokens": 5000}},
		{"missing required text", "anthropic_summarize", map[string]any{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.callErr(t, tc.tool, tc.args)
			assert.Equal(t, registry.CodeInvalidArguments, registry.CodeOf(err))
		})
	}
	assert.Empty(t, *f.requests)
}

func TestAPIError(t *testing.T) {
	f := newFixture(t, http.StatusBadRequest, `{"type": "error", "error": {"type": "invalid_request_error", "message": "max_tokens required"}}`)

	err := f.callErr(t, "anthropic_chat", map[string]any{"message": "hi"})
	assert.Equal(t, registry.CodeToolExecutionError, registry.CodeOf(err))
	assert.Contains(t, err.Error(), "anthropic api error (http 400)")
}
