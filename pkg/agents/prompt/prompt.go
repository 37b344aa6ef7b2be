// Package prompt holds the instruction templates shared by the LLM agents,
// so OpenAI, Anthropic, and Ollama produce comparable output for the same
// analysis request.
package prompt

import "fmt"

// System prompts used when a backend supports a distinct system role.
const (
	SystemAssistant = "You are an AI assistant integrated with the MCP Agentic Server. " +
		"You can help with various tasks including text analysis, information retrieval, " +
		"data validation, and general conversation. Be helpful and informative."
	SystemAnalyst    = "You are an expert text analyst. Provide clear, structured analysis."
	SystemCompletion = "You are a helpful writing assistant. Complete the given text naturally and coherently."
	SystemSummarizer = "You are an expert at creating clear, informative summaries."
)

// Enum values for the corresponding tool parameters.
var (
	AnalysisTypes  = []any{"sentiment", "summary", "keywords", "general", "classification"}
	SummaryLengths = []any{"short", "medium", "long"}
	SummaryStyles  = []any{"bullet_points", "paragraph", "abstract"}
)

var lengthInstructions = map[string]string{
	"short":  "in 2-3 sentences",
	"medium": "in 1-2 paragraphs",
	"long":   "in 3-4 paragraphs with detailed key points",
}

var styleInstructions = map[string]string{
	"bullet_points": "using bullet points",
	"paragraph":     "in paragraph form",
	"abstract":      "as an academic abstract",
}

// Analysis builds the user instruction for one analysis type. Unknown types
// fall back to the general analysis instruction.
func Analysis(analysisType, text string) string {
	switch analysisType {
	case "sentiment":
		return "Analyze the sentiment of the following text. Provide a clear sentiment classification (positive, negative, neutral) and confidence score:\n\n" + text
	case "summary":
		return "Provide a concise summary of the following text:\n\n" + text
	case "keywords":
		return "Extract the key topics, themes, and important keywords from the following text:\n\n" + text
	case "classification":
		return "Classify the following text by category, genre, or type. Explain your classification:\n\n" + text
	default:
		return "Perform a comprehensive analysis of the following text, including sentiment, key themes, and important insights:\n\n" + text
	}
}

// Summarize builds the user instruction for a summary of the requested
// length and style.
func Summarize(length, style, text string) string {
	li, ok := lengthInstructions[length]
	if !ok {
		li = "concisely"
	}
	return fmt.Sprintf("Summarize the following text %s %s:\n\n%s", li, styleInstructions[style], text)
}

// Complete builds the user instruction for a text completion.
func Complete(text string) string {
	return "Complete this text: " + text
}
