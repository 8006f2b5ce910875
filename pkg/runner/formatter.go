package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Formatter renders tool invocations and results for tracker-visible
// activities. Implementations are pure presentation, no side effects.
type Formatter interface {
	// FormatToolParameter renders the salient parameter of a tool call.
	FormatToolParameter(toolName, toolInput string) string

	// FormatToolResult renders a tool's result text.
	FormatToolResult(toolName, toolInput, resultText string, isError bool) string

	// FormatToolActionName renders the display name for an action
	// activity, optionally enriched from the input (e.g. a shell
	// command's description).
	FormatToolActionName(toolName, toolInput string, isError bool) string

	// FormatTodoWriteParameter renders a todo-list tool call as a
	// markdown checklist.
	FormatTodoWriteParameter(content string) string
}

const maxResultLength = 4000

// baseFormatter holds rendering logic shared by both runner flavors.
// The per-flavor types map their own tool vocabulary onto it.
type baseFormatter struct {
	// shellTool is the flavor's shell execution tool name.
	shellTool string
}

// parameterKeys lists, per tool, which input field carries the salient
// parameter, in preference order.
var parameterKeys = map[string][]string{
	"Read":                {"file_path"},
	"Write":               {"file_path"},
	"Edit":                {"file_path"},
	"Glob":                {"pattern"},
	"Grep":                {"pattern"},
	"Task":                {"description", "prompt"},
	"WebFetch":            {"url"},
	"read_file":           {"absolute_path", "path"},
	"write_file":          {"file_path", "path"},
	"replace":             {"file_path", "path"},
	"glob":                {"pattern"},
	"search_file_content": {"pattern"},
	"web_fetch":           {"url"},
}

func (f baseFormatter) FormatToolParameter(toolName, toolInput string) string {
	name := strings.TrimPrefix(toolName, "↪ ")
	input := parseInput(toolInput)

	if name == f.shellTool {
		if cmd, ok := input["command"].(string); ok {
			return fmt.Sprintf("```bash\n%s\n```", cmd)
		}
	}

	for _, key := range parameterKeys[name] {
		if v, ok := input[key].(string); ok && v != "" {
			return v
		}
	}

	// Fall back to the raw input, compacted.
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(toolInput)); err == nil {
		return truncate(buf.String(), 500)
	}
	return truncate(toolInput, 500)
}

func (f baseFormatter) FormatToolResult(toolName, toolInput, resultText string, isError bool) string {
	text := truncate(resultText, maxResultLength)
	if isError {
		if text == "" {
			text = "(no output)"
		}
		return fmt.Sprintf("⚠️ Error\n\n```\n%s\n```", text)
	}
	if text == "" {
		return "(no output)"
	}
	name := strings.TrimPrefix(toolName, "↪ ")
	if name == f.shellTool {
		return fmt.Sprintf("```\n%s\n```", text)
	}
	return text
}

func (f baseFormatter) FormatToolActionName(toolName, toolInput string, isError bool) string {
	name := toolName
	base := strings.TrimPrefix(toolName, "↪ ")
	if base == f.shellTool {
		input := parseInput(toolInput)
		if desc, ok := input["description"].(string); ok && desc != "" {
			name = fmt.Sprintf("%s (%s)", toolName, desc)
		}
	}
	if isError {
		name = name + " ❌"
	}
	return name
}

// todoItem is the shared todo-list entry shape of both flavors.
type todoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

func (f baseFormatter) FormatTodoWriteParameter(content string) string {
	var payload struct {
		Todos []todoItem `json:"todos"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil || len(payload.Todos) == 0 {
		return content
	}

	var b strings.Builder
	for i, todo := range payload.Todos {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch todo.Status {
		case "completed":
			fmt.Fprintf(&b, "- [x] %s", todo.Content)
		case "in_progress":
			fmt.Fprintf(&b, "- [ ] **%s**", todo.Content)
		default:
			fmt.Fprintf(&b, "- [ ] %s", todo.Content)
		}
	}
	return b.String()
}

func parseInput(toolInput string) map[string]interface{} {
	var input map[string]interface{}
	if err := json.Unmarshal([]byte(toolInput), &input); err != nil {
		return nil
	}
	return input
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n… (truncated)"
}

// ClaudeFormatter renders the Claude runner's tool vocabulary.
type ClaudeFormatter struct {
	baseFormatter
}

// NewClaudeFormatter returns a formatter for Claude tool names.
func NewClaudeFormatter() *ClaudeFormatter {
	return &ClaudeFormatter{baseFormatter{shellTool: "Bash"}}
}

// GeminiFormatter renders the Gemini runner's tool vocabulary.
type GeminiFormatter struct {
	baseFormatter
}

// NewGeminiFormatter returns a formatter for Gemini tool names.
func NewGeminiFormatter() *GeminiFormatter {
	return &GeminiFormatter{baseFormatter{shellTool: "run_shell_command"}}
}
