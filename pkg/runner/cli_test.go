package runner

import (
	"testing"

	"github.com/grovetools/bridge/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStreamLine(t *testing.T) {
	t.Run("system init", func(t *testing.T) {
		line := `{"type":"system","subtype":"init","session_id":"run-1","model":"opus","tools":["Bash","Read"],"permissionMode":"default"}`
		msg, err := decodeStreamLine([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, protocol.MessageSystem, msg.Type)
		require.NotNil(t, msg.System)
		assert.Equal(t, protocol.SystemInit, msg.System.Subtype)
		assert.Equal(t, "run-1", msg.System.RunnerSessionID)
		assert.Equal(t, "opus", msg.System.Model)
		assert.Equal(t, []string{"Bash", "Read"}, msg.System.Tools)
	})

	t.Run("assistant tool use", func(t *testing.T) {
		line := `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"tu-1","name":"Bash","input":{"command":"ls"}}]},"parent_tool_use_id":"task-9"}`
		msg, err := decodeStreamLine([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, protocol.MessageAssistant, msg.Type)
		require.Len(t, msg.Content, 1)
		block := msg.Content[0]
		assert.Equal(t, protocol.BlockToolUse, block.Type)
		assert.Equal(t, "tu-1", block.ToolUseID)
		assert.Equal(t, "Bash", block.ToolName)
		assert.Equal(t, "task-9", block.ParentToolUseID)
	})

	t.Run("user tool result with block list content", func(t *testing.T) {
		line := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"tu-1","content":[{"type":"text","text":"out"}],"is_error":false}]}}`
		msg, err := decodeStreamLine([]byte(line))
		require.NoError(t, err)
		require.Len(t, msg.Content, 1)
		assert.Equal(t, protocol.BlockToolResult, msg.Content[0].Type)
		assert.Equal(t, "out", msg.Content[0].Text)
	})

	t.Run("result", func(t *testing.T) {
		line := `{"type":"result","subtype":"success","is_error":false,"result":"done","total_cost_usd":0.42,"usage":{"input_tokens":100},"num_turns":3}`
		msg, err := decodeStreamLine([]byte(line))
		require.NoError(t, err)
		require.NotNil(t, msg.Result)
		assert.Equal(t, protocol.ResultSuccess, msg.Result.Subtype)
		assert.False(t, msg.Result.IsError)
		assert.Equal(t, "done", msg.Result.Text)
		assert.Equal(t, 0.42, msg.Result.CostUSD)
		assert.Equal(t, int64(100), msg.Result.Usage["input_tokens"])
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := decodeStreamLine([]byte(`{"type":"banana"}`))
		assert.Error(t, err)
	})
}
