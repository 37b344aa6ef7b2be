package ollama_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/pkg/agents/ollama"
	"github.com/h-ess/agentic-mcp/registry"
)

type requestOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int64   `json:"num_predict"`
}

type chatPayload struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Options requestOptions `json:"options"`
}

type generatePayload struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options requestOptions `json:"options"`
}

// fixture runs a fake Ollama daemon serving /api/tags, /api/chat, and
// /api/generate, with the agent registered in a real registry.
type fixture struct {
	reg       *registry.Registry
	chats     []chatPayload
	generates []generatePayload
	failWith  int
}

func newFixture(t *testing.T, installed ...string) *fixture {
	t.Helper()
	if len(installed) == 0 {
		installed = []string{"llama3.2:latest", "mistral:7b"}
	}

	f := &fixture{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			models := make([]map[string]string, 0, len(installed))
			for _, m := range installed {
				models = append(models, map[string]string{"name": m, "model": m})
			}
			require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"models": models}))
			return
		}

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if f.failWith != 0 {
			w.WriteHeader(f.failWith)
			fmt.Fprint(w, `{"error": "boom"}`)
			return
		}

		switch r.URL.Path {
		case "/api/chat":
			var req chatPayload
			require.NoError(t, json.Unmarshal(raw, &req))
			f.chats = append(f.chats, req)
			fmt.Fprintf(w, `{"model": %q, "message": {"role": "assistant", "content": "LOCAL RESPONSE"}, "done": true, "total_duration": 123456789, "prompt_eval_count": 10, "eval_count": 20}`, req.Model)
		case "/api/generate":
			var req generatePayload
			require.NoError(t, json.Unmarshal(raw, &req))
			f.generates = append(f.generates, req)
			fmt.Fprintf(w, `{"model": %q, "response": "LOCAL RESPONSE", "done": true, "total_duration": 123456789, "prompt_eval_count": 10, "eval_count": 20}`, req.Model)
		default:
			t.Fatalf("unexpected request path %s", r.URL.Path)
		}
	}))
	t.Cleanup(ts.Close)

	log := logging.Named(logging.New("error", "text", io.Discard), "test")
	agent := ollama.New(config.OllamaConfig{URL: ts.URL, Model: "llama3.2:latest"}, log)

	f.reg = registry.NewWithLogger(log.Logger)
	require.NoError(t, f.reg.RegisterAgent("ollama", agent))
	return f
}

func (f *fixture) call(t *testing.T, tool string, args map[string]any) map[string]any {
	t.Helper()
	res, err := f.reg.CallTool(context.Background(), tool, args)
	require.NoError(t, err)
	out, ok := res.(map[string]any)
	require.True(t, ok, "result should be a map, got %T", res)
	return out
}

func (f *fixture) callErr(t *testing.T, tool string, args map[string]any) error {
	t.Helper()
	_, err := f.reg.CallTool(context.Background(), tool, args)
	require.Error(t, err)
	return err
}

func TestToolDeclarations(t *testing.T) {
	f := newFixture(t)

	tools := f.reg.ListTools()
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"ollama_chat", "ollama_analysis", "ollama_completion", "ollama_summarize"}, names)
}

func TestChat(t *testing.T) {
	f := newFixture(t)

	res := f.call(t, "ollama_chat", map[string]any{"message": "hi there"})
	assert.Equal(t, "LOCAL RESPONSE", res["content"])
	assert.Equal(t, "llama3.2:latest", res["model"])
	assert.Equal(t, true, res["done"])
	assert.EqualValues(t, 123456789, res["total_duration"])
	assert.EqualValues(t, 10, res["prompt_eval_count"])
	assert.EqualValues(t, 20, res["eval_count"])

	require.Len(t, f.chats, 1)
	req := f.chats[0]
	assert.Equal(t, "llama3.2:latest", req.Model)
	assert.False(t, req.Stream)
	assert.InDelta(t, 0.7, req.Options.Temperature, 0.001)
	assert.EqualValues(t, 1000, req.Options.NumPredict)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "running locally via Ollama")
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "hi there", req.Messages[1].Content)
}

func TestChatKeepsCallerSystemPrompt(t *testing.T) {
	f := newFixture(t)

	f.call(t, "ollama_chat", map[string]any{
		"messages": []any{
			map[string]any{"role": "system", "content": "You are terse."},
			map[string]any{"role": "user", "content": "hello"},
		},
		"max_tokens": 64,
	})

	req := f.chats[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "You are terse.", req.Messages[0].Content)
	assert.EqualValues(t, 64, req.Options.NumPredict)
}

func TestChatWithoutMessage(t *testing.T) {
	f := newFixture(t)

	err := f.callErr(t, "ollama_chat", map[string]any{})
	assert.Equal(t, registry.CodeToolExecutionError, registry.CodeOf(err))
	assert.Contains(t, err.Error(), "no messages provided")
	assert.Empty(t, f.chats)
}

func TestModelResolutionFallback(t *testing.T) {
	// Configured model is not installed, so the first installed one is used.
	f := newFixture(t, "mistral:7b")

	res := f.call(t, "ollama_chat", map[string]any{"message": "hi"})
	assert.Equal(t, "mistral:7b", res["model"])
	assert.Equal(t, "mistral:7b", f.chats[0].Model)
}

func TestModelResolutionByBaseName(t *testing.T) {
	// A different tag of the configured model family matches by base name.
	f := newFixture(t, "llama3.2:1b-instruct")

	res := f.call(t, "ollama_chat", map[string]any{"message": "hi"})
	assert.Equal(t, "llama3.2:1b-instruct", res["model"])
}

func TestExplicitModelWins(t *testing.T) {
	f := newFixture(t)

	f.call(t, "ollama_chat", map[string]any{"message": "hi", "model": "custom:3b"})
	assert.Equal(t, "custom:3b", f.chats[0].Model)
}

func TestAnalysis(t *testing.T) {
	f := newFixture(t)

	res := f.call(t, "ollama_analysis", map[string]any{
		"text":          "the rollout went great",
		"analysis_type": "sentiment",
	})
	assert.Equal(t, "LOCAL RESPONSE", res["analysis"])
	assert.Equal(t, "sentiment", res["analysis_type"])
	assert.Equal(t, "llama3.2:latest", res["model"])

	require.Len(t, f.generates, 1)
	req := f.generates[0]
	assert.Contains(t, req.Prompt, "Analyze the sentiment")
	assert.Contains(t, req.Prompt, "the rollout went great")
	assert.InDelta(t, 0.3, req.Options.Temperature, 0.001)
	assert.EqualValues(t, 800, req.Options.NumPredict)
}

func TestCompletion(t *testing.T) {
	f := newFixture(t)

	res := f.call(t, "ollama_completion", map[string]any{"prompt": "Once upon a time"})
	assert.Equal(t, "LOCAL RESPONSE", res["completion"])
	assert.Equal(t, "Once upon a time", res["prompt"])

	req := f.generates[0]
	assert.Equal(t, "Complete this text naturally and coherently: Once upon a time", req.Prompt)
	assert.InDelta(t, 0.7, req.Options.Temperature, 0.001)
	assert.EqualValues(t, 500, req.Options.NumPredict)
}

func TestSummarize(t *testing.T) {
	f := newFixture(t)

	res := f.call(t, "ollama_summarize", map[string]any{
		"text":   "a long report about quarterly results",
		"length": "short",
		"style":  "bullet_points",
	})
	assert.Equal(t, "LOCAL RESPONSE", res["summary"])
	assert.Equal(t, "short", res["length"])
	assert.Equal(t, "bullet_points", res["style"])

	req := f.generates[0]
	assert.Contains(t, req.Prompt, "in 2-3 sentences")
	assert.Contains(t, req.Prompt, "using bullet points")
	assert.InDelta(t, 0.3, req.Options.Temperature, 0.001)
	assert.EqualValues(t, 600, req.Options.NumPredict)
}

func TestArgumentValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"analysis type outside enum", "ollama_analysis", map[string]any{"text": "x", "analysis_type": "vibes"}},
		{"temperature above maximum", "ollama_chat", map[string]any{"message": "x", "temperature": 1.5}},
		{"max tokens below minimum", "ollama_completion", map[string]any{"prompt": "x", "max_tokens": 0}},
		{"missing required text", "ollama_summarize", map[string]any{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.callErr(t, tc.tool, tc.args)
			assert.Equal(t, registry.CodeInvalidArguments, registry.CodeOf(err))
		})
	}
	assert.Empty(t, f.chats)
	assert.Empty(t, f.generates)
}

func TestDaemonError(t *testing.T) {
	f := newFixture(t)
	f.failWith = http.StatusInternalServerError

	err := f.callErr(t, "ollama_chat", map[string]any{"message": "hi"})
	assert.Equal(t, registry.CodeToolExecutionError, registry.CodeOf(err))
	assert.Contains(t, err.Error(), "chat completion failed")
	assert.Contains(t, err.Error(), "http 500")
}

func TestDaemonDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	log := logging.Named(logging.New("error", "text", io.Discard), "test")
	agent := ollama.New(config.OllamaConfig{URL: url, Model: "llama3.2:latest"}, log)
	assert.False(t, agent.IsAvailable())

	// A not-live agent registers with zero routes, so its tools resolve as
	// unknown rather than unavailable until it is re-registered.
	reg := registry.NewWithLogger(log.Logger)
	require.NoError(t, reg.RegisterAgent("ollama", agent))

	assert.Empty(t, reg.ListTools())

	st := reg.GetStatus()
	require.Len(t, st.Agents, 1)
	assert.False(t, st.Agents[0].Available)
	assert.Zero(t, st.Agents[0].ToolCount)

	_, err := reg.CallTool(context.Background(), "ollama_chat", map[string]any{"message": "hi"})
	require.Error(t, err)
	assert.Equal(t, registry.CodeUnknownTool, registry.CodeOf(err))
}

func TestNoModelsInstalled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models": []}`)
			return
		}
		t.Fatalf("unexpected request path %s", r.URL.Path)
	}))
	t.Cleanup(ts.Close)

	log := logging.Named(logging.New("error", "text", io.Discard), "test")
	agent := ollama.New(config.OllamaConfig{URL: strings.TrimRight(ts.URL, "/"), Model: "llama3.2:latest"}, log)
	assert.False(t, agent.IsAvailable())
}
