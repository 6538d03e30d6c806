package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/memory"
	"mcp-agent/agent_go/pkg/types"
)

// scriptedModel replays a fixed sequence of responses, one per
// GenerateContent call, simulating a worker that finishes immediately.
type scriptedModel struct {
	responses []string
	calls     int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.responses[idx]}},
	}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func TestExecuteStopsOnCompletionSignal(t *testing.T) {
	dir := t.TempDir()
	mem, err := memory.New(dir)
	require.NoError(t, err)

	model := &scriptedModel{responses: []string{"All done. [STEP_COMPLETE]"}}
	exec := New(model, nil, mem, logger.CreateTestLogger("", "info"))

	step := &types.SkillStep{ID: "s1", Title: "write a file", TaskInstruction: "write hello.txt"}
	out, err := exec.Execute(context.Background(), types.StepExecutorInput{Step: step, ActiveFolder: dir}, "test-skill")
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, 1, out.CyclesUsed)
}

// capturingModel records the system message of its first call so a test can
// assert on what the context envelope actually contained.
type capturingModel struct {
	response   string
	systemMsgs []string
}

func (m *capturingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		if msg.Role == llms.ChatMessageTypeSystem {
			for _, part := range msg.Parts {
				if text, ok := part.(llms.TextContent); ok {
					m.systemMsgs = append(m.systemMsgs, text.Text)
				}
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *capturingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

func TestExecuteIncludesSkillManualAndRecentClipboardInEnvelope(t *testing.T) {
	dir := t.TempDir()
	mem, err := memory.New(dir)
	require.NoError(t, err)
	require.NoError(t, mem.AppendToolCall(types.ToolCallRecord{
		StepID: "s1", Tool: "read_file", Arguments: map[string]interface{}{"path": "notes.md"},
	}))
	require.NoError(t, mem.CaptureClipboard("notes.md", "design notes content"))

	model := &capturingModel{response: "Done. [STEP_COMPLETE]"}
	exec := New(model, nil, mem, logger.CreateTestLogger("", "info"))

	step := &types.SkillStep{ID: "s1", Title: "write a file", TaskInstruction: "write hello.txt"}
	_, err = exec.Execute(context.Background(), types.StepExecutorInput{
		Step: step, ActiveFolder: dir, SkillManual: "Full manual body goes here.",
	}, "test-skill")
	require.NoError(t, err)

	require.NotEmpty(t, model.systemMsgs)
	assert.Contains(t, model.systemMsgs[0], "Full manual body goes here.")
	assert.Contains(t, model.systemMsgs[0], "notes.md")
	assert.Contains(t, model.systemMsgs[0], "design notes content")
}

func TestExecuteExhaustsCyclesWithoutSignal(t *testing.T) {
	dir := t.TempDir()
	mem, err := memory.New(dir)
	require.NoError(t, err)

	model := &scriptedModel{responses: []string{"still working"}}
	exec := New(model, nil, mem, logger.CreateTestLogger("", "info"))

	step := &types.SkillStep{ID: "s1", Title: "long task"}
	out, err := exec.Execute(context.Background(), types.StepExecutorInput{Step: step, ActiveFolder: dir}, "test-skill")
	require.NoError(t, err)
	assert.False(t, out.Completed)
	assert.Equal(t, ReActMaxCycles, out.CyclesUsed)
}
