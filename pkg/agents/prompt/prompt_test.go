package prompt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/h-ess/agentic-mcp/pkg/agents/prompt"
)

func TestAnalysis(t *testing.T) {
	tests := []struct {
		analysisType string
		wantPrefix   string
	}{
		{"sentiment", "Analyze the sentiment"},
		{"summary", "Provide a concise summary"},
		{"keywords", "Extract the key topics"},
		{"classification", "Classify the following text"},
		{"general", "Perform a comprehensive analysis"},
		{"anything-else", "Perform a comprehensive analysis"},
	}
	for _, tt := range tests {
		t.Run(tt.analysisType, func(t *testing.T) {
			got := prompt.Analysis(tt.analysisType, "some text")
			assert.Contains(t, got, tt.wantPrefix)
			assert.Contains(t, got, "\n\nsome text")
		})
	}
}

func TestSummarize(t *testing.T) {
	got := prompt.Summarize("short", "bullet_points", "the text")
	assert.Contains(t, got, "in 2-3 sentences")
	assert.Contains(t, got, "using bullet points")
	assert.Contains(t, got, "\n\nthe text")

	got = prompt.Summarize("unknown", "paragraph", "x")
	assert.Contains(t, got, "concisely")
}

func TestComplete(t *testing.T) {
	assert.Equal(t, "Complete this text: Once upon", prompt.Complete("Once upon"))
}
