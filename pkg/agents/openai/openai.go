// Package openai implements the OpenAI agent: chat, analysis, completion,
// and summarization tools backed by the Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/pkg/agents/prompt"
	"github.com/h-ess/agentic-mcp/registry"
)

// Token and temperature budgets for the fixed-purpose tools. Analysis and
// summarization run cooler than chat so output stays structured.
const (
	analysisMaxTokens    = 800
	analysisTemperature  = 0.3
	summarizeMaxTokens   = 600
	summarizeTemperature = 0.3
)

// Agent provides OpenAI-backed LLM tools.
type Agent struct {
	client *openai.Client
	model  string
	log    *logging.Entry
}

// New builds an OpenAI agent. The API key is required; BaseURL is optional
// and mainly useful for proxies and tests.
func New(cfg config.OpenAIConfig, log *logging.Entry) (*Agent, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(normalizeBaseURL(base)))
	}
	client := openai.NewClient(opts...)

	a := &Agent{client: &client, model: cfg.Model, log: log}
	a.log.WithField("model", cfg.Model).Info("openai agent initialized")
	return a, nil
}

// normalizeBaseURL ensures the configured base ends in /v1, which the SDK
// expects to prefix request paths with.
func normalizeBaseURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return strings.TrimRight(raw, "/")
	}
	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return parsed.String()
}

// IsAvailable reports whether the client was constructed. OpenAI exposes no
// cheap liveness probe, so a configured agent counts as live.
func (a *Agent) IsAvailable() bool { return a.client != nil }

// GetTools declares the four OpenAI tools.
func (a *Agent) GetTools() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name:        "openai_chat",
			Description: "Advanced conversational AI using OpenAI GPT models",
			Parameters: []registry.Param{
				{Name: "message", Type: registry.TypeString, Description: "Message for the AI to respond to"},
				{Name: "messages", Type: registry.TypeArray, Description: "Array of chat messages (alternative to single message)"},
				{Name: "model", Type: registry.TypeString, Description: "OpenAI model to use", Default: a.model},
				{Name: "temperature", Type: registry.TypeNumber, Description: "Response creativity (0-1)", Default: 0.7, Minimum: registry.Float(0), Maximum: registry.Float(1)},
				{Name: "max_tokens", Type: registry.TypeInteger, Description: "Maximum tokens in response", Default: 1000, Minimum: registry.Float(1), Maximum: registry.Float(4000)},
			},
		},
		{
			Name:        "openai_analysis",
			Description: "Advanced AI-powered text analysis using OpenAI",
			Parameters: []registry.Param{
				{Name: "text", Type: registry.TypeString, Description: "Text to analyze", Required: true},
				{Name: "analysis_type", Type: registry.TypeString, Description: "Type of analysis to perform", Enum: prompt.AnalysisTypes, Default: "general"},
				{Name: "model", Type: registry.TypeString, Description: "OpenAI model to use", Default: a.model},
			},
		},
		{
			Name:        "openai_completion",
			Description: "Text completion using OpenAI models",
			Parameters: []registry.Param{
				{Name: "prompt", Type: registry.TypeString, Description: "Text prompt to complete", Required: true},
				{Name: "model", Type: registry.TypeString, Description: "OpenAI model to use", Default: a.model},
				{Name: "max_tokens", Type: registry.TypeInteger, Description: "Maximum tokens in completion", Default: 500, Minimum: registry.Float(1), Maximum: registry.Float(2000)},
				{Name: "temperature", Type: registry.TypeNumber, Description: "Response creativity (0-1)", Default: 0.7, Minimum: registry.Float(0), Maximum: registry.Float(1)},
			},
		},
		{
			Name:        "openai_summarize",
			Description: "Text summarization using OpenAI",
			Parameters: []registry.Param{
				{Name: "text", Type: registry.TypeString, Description: "Text to summarize", Required: true},
				{Name: "length", Type: registry.TypeString, Description: "Desired summary length", Enum: prompt.SummaryLengths, Default: "medium"},
				{Name: "style", Type: registry.TypeString, Description: "Summary style", Enum: prompt.SummaryStyles, Default: "paragraph"},
				{Name: "model", Type: registry.TypeString, Description: "OpenAI model to use", Default: a.model},
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
	case "openai_chat":
		result, err = a.chat(ctx, args)
	case "openai_analysis":
		result, err = a.analysis(ctx, args)
	case "openai_completion":
		result, err = a.completion(ctx, args)
	case "openai_summarize":
		result, err = a.summarize(ctx, args)
	default:
		err = fmt.Errorf("unknown tool: %s", tool)
	}
	if err != nil {
		a.log.WithError(err).WithField("tool", tool).Error("openai tool failed")
		return nil, err
	}
	return result, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
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

	union := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if !hasSystem {
		union = append(union, openai.SystemMessage(prompt.SystemAssistant))
	}
	for _, m := range msgs {
		switch m.Role {
		case "system":
			union = append(union, openai.SystemMessage(m.Content))
		case "assistant":
			union = append(union, openai.AssistantMessage(m.Content))
		default:
			union = append(union, openai.UserMessage(m.Content))
		}
	}

	resp, err := a.complete(ctx, in.Model, union, in.MaxTokens, in.Temperature)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"content": resp.Choices[0].Message.Content,
		"model":   resp.Model,
		"usage":   usage(resp),
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

	resp, err := a.complete(ctx, in.Model, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt.SystemAnalyst),
		openai.UserMessage(prompt.Analysis(in.AnalysisType, in.Text)),
	}, analysisMaxTokens, analysisTemperature)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"analysis":      resp.Choices[0].Message.Content,
		"analysis_type": in.AnalysisType,
		"model":         resp.Model,
		"usage":         usage(resp),
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

	resp, err := a.complete(ctx, in.Model, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt.SystemCompletion),
		openai.UserMessage(prompt.Complete(in.Prompt)),
	}, in.MaxTokens, in.Temperature)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"completion": resp.Choices[0].Message.Content,
		"prompt":     in.Prompt,
		"model":      resp.Model,
		"usage":      usage(resp),
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

	resp, err := a.complete(ctx, in.Model, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt.SystemSummarizer),
		openai.UserMessage(prompt.Summarize(in.Length, in.Style, in.Text)),
	}, summarizeMaxTokens, summarizeTemperature)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"summary": resp.Choices[0].Message.Content,
		"length":  in.Length,
		"style":   in.Style,
		"model":   resp.Model,
		"usage":   usage(resp),
	}, nil
}

func (a *Agent) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessageParamUnion, maxTokens int64, temperature float64) (*openai.ChatCompletion, error) {
	if model == "" {
		model = a.model
	}
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}
	return resp, nil
}

func usage(resp *openai.ChatCompletion) map[string]any {
	return map[string]any{
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
	}
}

func wrapAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		if raw := strings.TrimSpace(apiErr.RawJSON()); raw != "" {
			return fmt.Errorf("openai api error (http %d): %s", apiErr.StatusCode, raw)
		}
		return fmt.Errorf("openai api error (http %d): %v", apiErr.StatusCode, err)
	}
	return err
}
