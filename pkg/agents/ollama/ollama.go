// Package ollama implements the local Ollama agent over the daemon's HTTP
// API. Liveness follows the daemon: the agent probes /api/tags and caches
// the answer briefly, so a daemon restart flips availability without
// hammering the socket on every status call.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/pkg/agents/prompt"
	"github.com/h-ess/agentic-mcp/registry"
)

const (
	probeTTL       = 30 * time.Second
	probeTimeout   = 2 * time.Second
	requestTimeout = 2 * time.Minute

	analysisMaxTokens    = 800
	analysisTemperature  = 0.3
	summarizeMaxTokens   = 600
	summarizeTemperature = 0.3

	systemPrompt = "You are a helpful AI assistant running locally via Ollama. " +
		"You can help with various tasks including text analysis, information retrieval, " +
		"data validation, and general conversation. Be helpful and informative."

	completionPrefix = "Complete this text naturally and coherently: "
)

// Agent provides LLM tools backed by a local Ollama daemon.
type Agent struct {
	baseURL     string
	configModel string
	http        *http.Client
	log         *logging.Entry

	mu        sync.Mutex
	live      bool
	model     string
	lastProbe time.Time
}

// New builds an Ollama agent. Construction never fails; an unreachable
// daemon just leaves the agent reporting not available.
func New(cfg config.OllamaConfig, log *logging.Entry) *Agent {
	a := &Agent{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		configModel: cfg.Model,
		http:        &http.Client{Timeout: requestTimeout},
		log:         log,
	}
	if a.IsAvailable() {
		a.log.WithField("model", a.currentModel()).Info("ollama agent initialized")
	} else {
		a.log.WithField("url", cfg.URL).Warn("ollama not reachable")
	}
	return a
}

// IsAvailable probes the daemon's tag list, caching the result so frequent
// status and listing calls do not hammer the socket. A successful probe also
// refreshes model resolution: the configured model if installed, otherwise
// the first installed model.
func (a *Agent) IsAvailable() bool {
	a.mu.Lock()
	if time.Since(a.lastProbe) < probeTTL {
		live := a.live
		a.mu.Unlock()
		return live
	}
	a.mu.Unlock()

	models, err := a.listModels(context.Background())

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastProbe = time.Now()
	if err != nil || len(models) == 0 {
		a.live = false
		return false
	}
	a.live = true
	a.model = resolveModel(a.configModel, models)
	return true
}

func (a *Agent) currentModel() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.model != "" {
		return a.model
	}
	return a.configModel
}

// resolveModel picks the installed model to use: an installed name containing
// the configured one, or sharing its base name, wins; otherwise the first
// installed model serves as fallback.
func resolveModel(want string, installed []string) string {
	base, _, _ := strings.Cut(want, ":")
	for _, m := range installed {
		if strings.Contains(m, want) || strings.HasPrefix(m, base) {
			return m
		}
	}
	return installed[0]
}

// GetTools declares the four Ollama tools. The model parameter carries no
// default: the resolved model is applied at call time, since resolution can
// happen after registration.
func (a *Agent) GetTools() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name:        "ollama_chat",
			Description: "Local conversational AI using Ollama",
			Parameters: []registry.Param{
				{Name: "message", Type: registry.TypeString, Description: "Message for the local AI to respond to"},
				{Name: "messages", Type: registry.TypeArray, Description: "Array of chat messages (alternative to single message)"},
				{Name: "model", Type: registry.TypeString, Description: "Ollama model to use"},
				{Name: "temperature", Type: registry.TypeNumber, Description: "Response creativity (0-1)", Default: 0.7, Minimum: registry.Float(0), Maximum: registry.Float(1)},
				{Name: "max_tokens", Type: registry.TypeInteger, Description: "Maximum tokens in response", Default: 1000, Minimum: registry.Float(1), Maximum: registry.Float(4000)},
			},
		},
		{
			Name:        "ollama_analysis",
			Description: "Local AI-powered text analysis using Ollama",
			Parameters: []registry.Param{
				{Name: "text", Type: registry.TypeString, Description: "Text to analyze", Required: true},
				{Name: "analysis_type", Type: registry.TypeString, Description: "Type of analysis to perform", Enum: prompt.AnalysisTypes, Default: "general"},
				{Name: "model", Type: registry.TypeString, Description: "Ollama model to use"},
			},
		},
		{
			Name:        "ollama_completion",
			Description: "Text completion using a local Ollama model",
			Parameters: []registry.Param{
				{Name: "prompt", Type: registry.TypeString, Description: "Text prompt to complete", Required: true},
				{Name: "model", Type: registry.TypeString, Description: "Ollama model to use"},
				{Name: "max_tokens", Type: registry.TypeInteger, Description: "Maximum tokens in completion", Default: 500, Minimum: registry.Float(1), Maximum: registry.Float(2000)},
				{Name: "temperature", Type: registry.TypeNumber, Description: "Response creativity (0-1)", Default: 0.7, Minimum: registry.Float(0), Maximum: registry.Float(1)},
			},
		},
		{
			Name:        "ollama_summarize",
			Description: "Text summarization using a local Ollama model",
			Parameters: []registry.Param{
				{Name: "text", Type: registry.TypeString, Description: "Text to summarize", Required: true},
				{Name: "length", Type: registry.TypeString, Description: "Desired summary length", Enum: prompt.SummaryLengths, Default: "medium"},
				{Name: "style", Type: registry.TypeString, Description: "Summary style", Enum: prompt.SummaryStyles, Default: "paragraph"},
				{Name: "model", Type: registry.TypeString, Description: "Ollama model to use"},
			},
		},
	}
}

// HandleToolCall dispatches one validated tool call.
func (a *Agent) HandleToolCall(ctx context.Context, tool string, args map[string]any) (any, error) {
	var (
		result any
		err    error
	)
	switch tool {
	case "ollama_chat":
		result, err = a.chat(ctx, args)
	case "ollama_analysis":
		result, err = a.analysis(ctx, args)
	case "ollama_completion":
		result, err = a.completion(ctx, args)
	case "ollama_summarize":
		result, err = a.summarize(ctx, args)
	default:
		err = fmt.Errorf("unknown tool: %s", tool)
	}
	if err != nil {
		a.log.WithError(err).WithField("tool", tool).Error("ollama tool failed")
		return nil, err
	}
	return result, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int64   `json:"num_predict"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  requestOptions `json:"options"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	TotalDuration   int64       `json:"total_duration"`
	PromptEvalCount int64       `json:"prompt_eval_count"`
	EvalCount       int64       `json:"eval_count"`
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options requestOptions `json:"options"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	TotalDuration   int64  `json:"total_duration"`
	PromptEvalCount int64  `json:"prompt_eval_count"`
	EvalCount       int64  `json:"eval_count"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

type chatArgs struct {
	Message     string        `json:"message"`
	Messages    []chatMessage `json:"messages"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int64         `json:"max_tokens"`
}

func (a *Agent) chat(ctx context.Context, args map[string]any) (any, error) {
	var in chatArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}

	msgs := in.Messages
	if len(msgs) == 0 {
		if in.Message == "" {
			return nil, errors.New("no messages provided")
		}
		msgs = []chatMessage{{Role: "user", Content: in.Message}}
	}
	hasSystem := false
	for _, m := range msgs {
		if m.Role == "system" {
			hasSystem = true
			break
		}
	}
	if !hasSystem {
		msgs = append([]chatMessage{{Role: "system", Content: systemPrompt}}, msgs...)
	}

	model := in.Model
	if model == "" {
		model = a.currentModel()
	}

	var resp chatResponse
	err := a.postJSON(ctx, "/api/chat", chatRequest{
		Model:    model,
		Messages: msgs,
		Options:  requestOptions{Temperature: in.Temperature, NumPredict: in.MaxTokens},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	return map[string]any{
		"content":           resp.Message.Content,
		"model":             model,
		"done":              resp.Done,
		"total_duration":    resp.TotalDuration,
		"prompt_eval_count": resp.PromptEvalCount,
		"eval_count":        resp.EvalCount,
	}, nil
}

type analysisArgs struct {
	Text         string `json:"text"`
	AnalysisType string `json:"analysis_type"`
	Model        string `json:"model"`
}

func (a *Agent) analysis(ctx context.Context, args map[string]any) (any, error) {
	var in analysisArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}

	model := in.Model
	if model == "" {
		model = a.currentModel()
	}

	var resp generateResponse
	err := a.postJSON(ctx, "/api/generate", generateRequest{
		Model:   model,
		Prompt:  prompt.Analysis(in.AnalysisType, in.Text),
		Options: requestOptions{Temperature: analysisTemperature, NumPredict: analysisMaxTokens},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	return map[string]any{
		"analysis":          resp.Response,
		"analysis_type":     in.AnalysisType,
		"model":             model,
		"done":              resp.Done,
		"total_duration":    resp.TotalDuration,
		"prompt_eval_count": resp.PromptEvalCount,
		"eval_count":        resp.EvalCount,
	}, nil
}

type completionArgs struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"`
	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

func (a *Agent) completion(ctx context.Context, args map[string]any) (any, error) {
	var in completionArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}

	model := in.Model
	if model == "" {
		model = a.currentModel()
	}

	var resp generateResponse
	err := a.postJSON(ctx, "/api/generate", generateRequest{
		Model:   model,
		Prompt:  completionPrefix + in.Prompt,
		Options: requestOptions{Temperature: in.Temperature, NumPredict: in.MaxTokens},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	return map[string]any{
		"completion":        resp.Response,
		"prompt":            in.Prompt,
		"model":             model,
		"done":              resp.Done,
		"total_duration":    resp.TotalDuration,
		"prompt_eval_count": resp.PromptEvalCount,
		"eval_count":        resp.EvalCount,
	}, nil
}

type summarizeArgs struct {
	Text   string `json:"text"`
	Length string `json:"length"`
	Style  string `json:"style"`
	Model  string `json:"model"`
}

func (a *Agent) summarize(ctx context.Context, args map[string]any) (any, error) {
	var in summarizeArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}

	model := in.Model
	if model == "" {
		model = a.currentModel()
	}

	var resp generateResponse
	err := a.postJSON(ctx, "/api/generate", generateRequest{
		Model:   model,
		Prompt:  prompt.Summarize(in.Length, in.Style, in.Text),
		Options: requestOptions{Temperature: summarizeTemperature, NumPredict: summarizeMaxTokens},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}
	return map[string]any{
		"summary":           resp.Response,
		"length":            in.Length,
		"style":             in.Style,
		"model":             model,
		"done":              resp.Done,
		"total_duration":    resp.TotalDuration,
		"prompt_eval_count": resp.PromptEvalCount,
		"eval_count":        resp.EvalCount,
	}, nil
}

func (a *Agent) listModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags request failed (http %d)", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		switch {
		case m.Model != "":
			names = append(names, m.Model)
		case m.Name != "":
			names = append(names, m.Name)
		}
	}
	return names, nil
}

func (a *Agent) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ollama request failed (http %d): %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
