// Package anthropic implements the Anthropic agent over the Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/pkg/agents/prompt"
	"github.com/h-ess/agentic-mcp/registry"
)

const (
	analysisMaxTokens    = 800
	analysisTemperature  = 0.3
	summarizeMaxTokens   = 600
	summarizeTemperature = 0.3
)

// Agent provides Anthropic-backed LLM tools. There is no completion tool;
// the Messages API has no bare completion mode.
type Agent struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	log       *logging.Entry
}

// New builds an Anthropic agent. The API key is required.
func New(cfg config.AnthropicConfig, log *logging.Entry) (*Agent, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing ANTHROPIC_API_KEY")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	a := &Agent{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		log:       log,
	}
	a.log.WithField("model", cfg.Model).Info("anthropic agent initialized")
	return a, nil
}

// IsAvailable reports whether the client was constructed.
func (a *Agent) IsAvailable() bool { return a.client != nil }

// GetTools declares the three Anthropic tools.
func (a *Agent) GetTools() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name:        "anthropic_chat",
			Description: "Conversational AI using Anthropic Claude models",
			Parameters: []registry.Param{
				{Name: "message", Type: registry.TypeString, Description: "Message for the AI to respond to"},
				{Name: "messages", Type: registry.TypeArray, Description: "Array of chat messages (alternative to single message)"},
				{Name: "model", Type: registry.TypeString, Description: "Anthropic model to use", Default: a.model},
				{Name: "temperature", Type: registry.TypeNumber, Description: "Response creativity (0-1)", Default: 0.7, Minimum: registry.Float(0), Maximum: registry.Float(1)},
				{Name: "max_tokens", Type: registry.TypeInteger, Description: "Maximum tokens in response", Default: a.maxTokens, Minimum: registry.Float(1), Maximum: registry.Float(4096)},
			},
		},
		{
			Name:        "anthropic_analysis",
			Description: "AI-powered text analysis using Anthropic Claude",
			Parameters: []registry.Param{
				{Name: "text", Type: registry.TypeString, Description: "Text to analyze", Required: true},
				{Name: "analysis_type", Type: registry.TypeString, Description: "Type of analysis to perform", Enum: prompt.AnalysisTypes, Default: "general"},
				{Name: "model", Type: registry.TypeString, Description: "Anthropic model to use", Default: a.model},
			},
		},
		{
			Name:        "anthropic_summarize",
			Description: "Text summarization using Anthropic Claude",
			Parameters: []registry.Param{
				{Name: "text", Type: registry.TypeString, Description: "Text to summarize", Required: true},
				{Name: "length", Type: registry.TypeString, Description: "Desired summary length", Enum: prompt.SummaryLengths, Default: "medium"},
				{Name: "style", Type: registry.TypeString, Description: "Summary style", Enum: prompt.SummaryStyles, Default: "paragraph"},
				{Name: "model", Type: registry.TypeString, Description: "Anthropic model to use", Default: a.model},
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
	case "anthropic_chat":
		result, err = a.chat(ctx, args)
	case "anthropic_analysis":
		result, err = a.analysis(ctx, args)
	case "anthropic_summarize":
		result, err = a.summarize(ctx, args)
	default:
		err = fmt.Errorf("unknown tool: %s", tool)
	}
	if err != nil {
		a.log.WithError(err).WithField("tool", tool).Error("anthropic tool failed")
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

	// The Messages API takes the system prompt out of band, so system
	// entries are lifted into the system parameter.
	system := prompt.SystemAssistant
	var systems []string
	history := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			systems = append(systems, m.Content)
		case "assistant":
			history = append(history, anthropic.MessageParam{
				Role:    anthropic.F(anthropic.MessageParamRoleAssistant),
				Content: anthropic.F([]anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}),
			})
		default:
			history = append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(systems) > 0 {
		system = strings.Join(systems, "\n")
	}
	if len(history) == 0 {
		return nil, errors.New("no messages provided")
	}

	resp, err := a.complete(ctx, in.Model, system, history, in.MaxTokens, in.Temperature)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"content": textOf(resp),
		"model":   string(resp.Model),
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

	resp, err := a.complete(ctx, in.Model, prompt.SystemAnalyst, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.Analysis(in.AnalysisType, in.Text))),
	}, analysisMaxTokens, analysisTemperature)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"analysis":      textOf(resp),
		"analysis_type": in.AnalysisType,
		"model":         string(resp.Model),
		"usage":         usage(resp),
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

	resp, err := a.complete(ctx, in.Model, prompt.SystemSummarizer, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.Summarize(in.Length, in.Style, in.Text))),
	}, summarizeMaxTokens, summarizeTemperature)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"summary": textOf(resp),
		"length":  in.Length,
		"style":   in.Style,
		"model":   string(resp.Model),
		"usage":   usage(resp),
	}, nil
}

func (a *Agent) complete(ctx context.Context, model, system string, history []anthropic.MessageParam, maxTokens int64, temperature float64) (*anthropic.Message, error) {
	if model == "" {
		model = a.model
	}
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(anthropic.Model(model)),
		MaxTokens: anthropic.Int(maxTokens),
		System: anthropic.F([]anthropic.TextBlockParam{
			anthropic.NewTextBlock(system),
		}),
		Messages:    anthropic.F(history),
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if len(resp.Content) == 0 {
		return nil, errors.New("empty response from anthropic")
	}
	return resp, nil
}

// textOf joins the text blocks of a response, skipping thinking and tool use
// blocks.
func textOf(resp *anthropic.Message) string {
	var parts []string
	for _, block := range resp.Content {
		if b, ok := block.AsUnion().(anthropic.TextBlock); ok {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func usage(resp *anthropic.Message) map[string]any {
	return map[string]any{
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	}
}

func wrapAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return fmt.Errorf("anthropic api error (http %d): %v", apiErr.StatusCode, err)
	}
	return err
}
