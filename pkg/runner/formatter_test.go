package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatToolParameter(t *testing.T) {
	f := NewClaudeFormatter()

	t.Run("bash command renders as code fence", func(t *testing.T) {
		got := f.FormatToolParameter("Bash", `{"command":"ls -la","description":"List files"}`)
		assert.Equal(t, "```bash\nls -la\n```", got)
	})

	t.Run("file tools render their path", func(t *testing.T) {
		got := f.FormatToolParameter("Read", `{"file_path":"/tmp/a.go"}`)
		assert.Equal(t, "/tmp/a.go", got)
	})

	t.Run("nested tool prefix is ignored for lookup", func(t *testing.T) {
		got := f.FormatToolParameter("↪ Read", `{"file_path":"/tmp/a.go"}`)
		assert.Equal(t, "/tmp/a.go", got)
	})

	t.Run("unknown tool falls back to compact input", func(t *testing.T) {
		got := f.FormatToolParameter("Mystery", `{ "a" : 1 }`)
		assert.Equal(t, `{"a":1}`, got)
	})

	t.Run("nested input compacts whitespace", func(t *testing.T) {
		got := f.FormatToolParameter("Mystery", "{\n  \"a\": {\n    \"b\": [1, 2]\n  }\n}")
		assert.Equal(t, `{"a":{"b":[1,2]}}`, got)
	})

	t.Run("invalid json passes through", func(t *testing.T) {
		got := f.FormatToolParameter("Mystery", "not json")
		assert.Equal(t, "not json", got)
	})
}

func TestFormatToolResult(t *testing.T) {
	f := NewClaudeFormatter()

	t.Run("error results carry a warning marker", func(t *testing.T) {
		got := f.FormatToolResult("Read", "{}", "no such file", true)
		assert.Contains(t, got, "⚠️ Error")
		assert.Contains(t, got, "no such file")
	})

	t.Run("shell output is fenced", func(t *testing.T) {
		got := f.FormatToolResult("Bash", "{}", "hello", false)
		assert.Equal(t, "```\nhello\n```", got)
	})

	t.Run("empty output is marked", func(t *testing.T) {
		got := f.FormatToolResult("Read", "{}", "", false)
		assert.Equal(t, "(no output)", got)
	})
}

func TestFormatToolActionName(t *testing.T) {
	f := NewClaudeFormatter()

	got := f.FormatToolActionName("Bash", `{"command":"make","description":"Build project"}`, false)
	assert.Equal(t, "Bash (Build project)", got)

	got = f.FormatToolActionName("Read", "{}", true)
	assert.Equal(t, "Read ❌", got)
}

func TestFormatTodoWriteParameter(t *testing.T) {
	f := NewClaudeFormatter()

	input := `{"todos":[
		{"content":"Write tests","status":"completed"},
		{"content":"Fix bug","status":"in_progress"},
		{"content":"Ship it","status":"pending"}
	]}`
	got := f.FormatTodoWriteParameter(input)
	assert.Equal(t, "- [x] Write tests\n- [ ] **Fix bug**\n- [ ] Ship it", got)

	// Unparseable content passes through untouched
	assert.Equal(t, "not json", f.FormatTodoWriteParameter("not json"))
}

func TestGeminiShellTool(t *testing.T) {
	f := NewGeminiFormatter()
	got := f.FormatToolParameter("run_shell_command", `{"command":"pwd"}`)
	assert.Equal(t, "```bash\npwd\n```", got)
}
