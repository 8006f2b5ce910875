package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/grovetools/bridge/command"
	"github.com/grovetools/bridge/logging"
	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// CLIRunner drives an agent CLI binary in streaming JSON mode and
// translates its output lines into protocol messages.
type CLIRunner struct {
	kind      models.RunnerKind
	binary    string
	executor  command.Executor
	formatter Formatter
	logger    *logrus.Entry
}

// NewClaudeRunner returns a runner backed by the claude CLI.
func NewClaudeRunner() *CLIRunner {
	return &CLIRunner{
		kind:      models.RunnerClaude,
		binary:    "claude",
		executor:  &command.RealExecutor{},
		formatter: NewClaudeFormatter(),
		logger:    logging.NewLogger("runner"),
	}
}

// NewGeminiRunner returns a runner backed by the gemini CLI.
func NewGeminiRunner() *CLIRunner {
	return &CLIRunner{
		kind:      models.RunnerGemini,
		binary:    "gemini",
		executor:  &command.RealExecutor{},
		formatter: NewGeminiFormatter(),
		logger:    logging.NewLogger("runner"),
	}
}

// NewCLIRunnerWithExecutor builds a runner with an injected executor,
// used by tests to substitute mock binaries.
func NewCLIRunnerWithExecutor(kind models.RunnerKind, binary string, exec command.Executor) *CLIRunner {
	r := &CLIRunner{
		kind:     kind,
		binary:   binary,
		executor: exec,
		logger:   logging.NewLogger("runner"),
	}
	if kind == models.RunnerGemini {
		r.formatter = NewGeminiFormatter()
	} else {
		r.formatter = NewClaudeFormatter()
	}
	return r
}

// Kind reports the runner flavor.
func (r *CLIRunner) Kind() models.RunnerKind { return r.kind }

// Formatter returns the flavor's presentation formatter.
func (r *CLIRunner) Formatter() Formatter { return r.formatter }

// Run starts or resumes an agent run. The returned channel delivers
// messages in emission order and is closed after the terminal result.
func (r *CLIRunner) Run(ctx context.Context, cfg RunConfig) (<-chan protocol.Message, error) {
	args := r.buildArgs(cfg)

	cmd := r.executor.CommandContext(ctx, r.binary, args...)
	cmd.Dir = cfg.WorkingDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", r.binary, err)
	}

	r.logger.WithFields(logrus.Fields{
		"binary":  r.binary,
		"resume":  cfg.ResumeSessionID != "",
		"workdir": cfg.WorkingDir,
	}).Debug("Started agent run")

	out := make(chan protocol.Message)
	go func() {
		defer close(out)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			msg, err := decodeStreamLine(line)
			if err != nil {
				r.logger.WithError(err).Warn("Skipping unparseable stream line")
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			r.logger.WithError(err).Warn("Agent stream read failed")
		}
		if err := cmd.Wait(); err != nil {
			r.logger.WithError(err).Debug("Agent process exited with error")
		}
	}()

	return out, nil
}

func (r *CLIRunner) buildArgs(cfg RunConfig) []string {
	args := []string{"-p", cfg.Prompt, "--output-format", "stream-json", "--verbose"}
	if cfg.ResumeSessionID != "" {
		args = append(args, "--resume", cfg.ResumeSessionID)
	}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	for _, tool := range cfg.DisallowedTools {
		args = append(args, "--disallowed-tools", tool)
	}
	if cfg.SingleTurn {
		args = append(args, "--max-turns", strconv.Itoa(1))
	}
	return args
}

// streamLine is the wire shape of one CLI output line.
type streamLine struct {
	Type            string          `json:"type"`
	Subtype         string          `json:"subtype"`
	SessionID       string          `json:"session_id"`
	Model           string          `json:"model"`
	Tools           []string        `json:"tools"`
	PermissionMode  string          `json:"permissionMode"`
	Status          string          `json:"status"`
	Message         *streamMessage  `json:"message"`
	IsError         bool            `json:"is_error"`
	Result          string          `json:"result"`
	TotalCostUSD    float64         `json:"total_cost_usd"`
	Usage           json.RawMessage `json:"usage"`
	NumTurns        int             `json:"num_turns"`
	DurationMS      int64           `json:"duration_ms"`
	ParentToolUseID string          `json:"parent_tool_use_id"`
}

type streamMessage struct {
	Content []streamBlock `json:"content"`
}

type streamBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// decodeStreamLine translates one CLI JSON line into a protocol message.
func decodeStreamLine(line []byte) (protocol.Message, error) {
	var raw streamLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return protocol.Message{}, err
	}

	switch raw.Type {
	case "system":
		payload := &protocol.SystemPayload{
			Subtype:         protocol.SystemSubtype(raw.Subtype),
			RunnerSessionID: raw.SessionID,
			Model:           raw.Model,
			Tools:           raw.Tools,
			PermissionMode:  raw.PermissionMode,
			Status:          raw.Status,
		}
		return protocol.Message{Type: protocol.MessageSystem, System: payload, SessionID: raw.SessionID}, nil

	case "user", "assistant":
		msg := protocol.Message{SessionID: raw.SessionID}
		if raw.Type == "user" {
			msg.Type = protocol.MessageUser
		} else {
			msg.Type = protocol.MessageAssistant
		}
		if raw.Message != nil {
			for _, block := range raw.Message.Content {
				msg.Content = append(msg.Content, decodeBlock(block, raw.ParentToolUseID))
			}
		}
		return msg, nil

	case "result":
		payload := &protocol.ResultPayload{
			Subtype:    protocol.ResultSubtype(raw.Subtype),
			IsError:    raw.IsError,
			Text:       raw.Result,
			CostUSD:    raw.TotalCostUSD,
			NumTurns:   raw.NumTurns,
			DurationMS: raw.DurationMS,
		}
		if len(raw.Usage) > 0 {
			var usage map[string]int64
			if err := json.Unmarshal(raw.Usage, &usage); err == nil {
				payload.Usage = usage
			}
		}
		return protocol.Message{Type: protocol.MessageResult, Result: payload, SessionID: raw.SessionID}, nil

	default:
		return protocol.Message{}, fmt.Errorf("unknown message type %q", raw.Type)
	}
}

func decodeBlock(block streamBlock, parentToolUseID string) protocol.ContentBlock {
	switch block.Type {
	case "tool_use":
		return protocol.ContentBlock{
			Type:            protocol.BlockToolUse,
			ToolUseID:       block.ID,
			ToolName:        block.Name,
			ToolInput:       block.Input,
			ParentToolUseID: parentToolUseID,
		}
	case "tool_result":
		return protocol.ContentBlock{
			Type:            protocol.BlockToolResult,
			ToolUseID:       block.ToolUseID,
			Text:            flattenResultContent(block.Content),
			IsError:         block.IsError,
			ParentToolUseID: parentToolUseID,
		}
	default:
		return protocol.ContentBlock{
			Type:            protocol.BlockText,
			Text:            block.Text,
			ParentToolUseID: parentToolUseID,
		}
	}
}

// flattenResultContent reduces a tool_result content value (a string or
// a list of text blocks) to plain text.
func flattenResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			if b.Type == "text" {
				if out != "" {
					out += "\n"
				}
				out += b.Text
			}
		}
		return out
	}
	return string(raw)
}
