// Package web implements the web fetch agent. HTML responses are converted
// to markdown so LLM callers get readable text instead of tag soup.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/registry"
)

const (
	maxBodyBytes = 2 << 20
	userAgent    = "agentic-mcp/1.0"
)

// Agent fetches URLs and returns their content as text.
type Agent struct {
	client    *http.Client
	converter *md.Converter
	log       *logging.Entry
}

// New builds a web agent with the configured request timeout.
func New(cfg config.WebConfig, log *logging.Entry) *Agent {
	return &Agent{
		client:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		converter: md.NewConverter("", true, nil),
		log:       log,
	}
}

// IsAvailable always reports true; the agent has no backing service.
func (a *Agent) IsAvailable() bool { return true }

// GetTools declares the single fetch tool.
func (a *Agent) GetTools() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name:        "web_fetch",
			Description: "Fetch a URL and return its content as markdown or plain text",
			Parameters: []registry.Param{
				{Name: "url", Type: registry.TypeString, Description: "URL to fetch", Required: true},
				{Name: "max_chars", Type: registry.TypeInteger, Description: "Maximum characters to return", Default: 8000, Minimum: registry.Float(100), Maximum: registry.Float(100000)},
			},
		},
	}
}

type fetchArgs struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars"`
}

// HandleToolCall dispatches one validated tool call.
func (a *Agent) HandleToolCall(ctx context.Context, tool string, args map[string]any) (any, error) {
	if tool != "web_fetch" {
		return nil, fmt.Errorf("unknown tool: %s", tool)
	}
	result, err := a.fetch(ctx, args)
	if err != nil {
		a.log.WithError(err).WithField("tool", tool).Error("web tool failed")
		return nil, err
	}
	return result, nil
}

func (a *Agent) fetch(ctx context.Context, args map[string]any) (any, error) {
	var in fetchArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}

	parsed, err := url.Parse(in.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("url %q must use http or https", in.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed (http %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("content of %q is not valid UTF-8 text", in.URL)
	}

	contentType := resp.Header.Get("Content-Type")
	content := string(body)
	if strings.Contains(contentType, "html") {
		content, err = a.converter.ConvertString(content)
		if err != nil {
			return nil, fmt.Errorf("html parsing failed: %w", err)
		}
	}

	truncated := false
	if runes := []rune(content); len(runes) > in.MaxChars {
		content = string(runes[:in.MaxChars])
		truncated = true
	}

	return map[string]any{
		"url":          in.URL,
		"content":      content,
		"content_type": contentType,
		"length":       utf8.RuneCountInString(content),
		"truncated":    truncated,
	}, nil
}
