package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/mcpclient"
	"mcp-agent/agent_go/pkg/types"
)

// runInnerLoop drives up to MaxReActSteps generations of one ReAct cycle:
// each generation may request tool calls, which are executed against the
// MCP tool client and fed back as tool-result messages, until the model
// produces a plain text answer with no further tool calls or the inner
// bound is exhausted.
func (e *StepExecutor) runInnerLoop(ctx context.Context, history []llms.MessageContent, stepID string, cycle int) (string, []types.ToolCallRecord, error) {
	messages := append([]llms.MessageContent{}, history...)
	var recorded []types.ToolCallRecord

	tools, toolErr := e.availableTools(ctx)
	if toolErr != nil {
		e.log.Warnf("executor: tool discovery failed, continuing without tools: %v", toolErr)
	}

	for iter := 0; iter < MaxReActSteps; iter++ {
		opts := []llms.CallOption{}
		if len(tools) > 0 {
			opts = append(opts, llms.WithTools(tools))
		}

		resp, err := e.model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return "", recorded, fmt.Errorf("executor: generate content: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", recorded, fmt.Errorf("executor: empty model response")
		}
		choice := resp.Choices[0]

		if len(choice.ToolCalls) == 0 {
			return choice.Content, recorded, nil
		}

		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: toolCallParts(choice.ToolCalls),
		})

		for _, tc := range choice.ToolCalls {
			result, record := e.invokeTool(ctx, stepID, cycle, tc)
			recorded = append(recorded, record)
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       tc.FunctionCall.Name,
						Content:    result,
					},
				},
			})
		}
	}

	return "", recorded, fmt.Errorf("executor: inner ReAct loop exhausted %d iterations without a final answer", MaxReActSteps)
}

func toolCallParts(calls []llms.ToolCall) []llms.ContentPart {
	parts := make([]llms.ContentPart, len(calls))
	for i, c := range calls {
		parts[i] = c
	}
	return parts
}

func (e *StepExecutor) availableTools(ctx context.Context) ([]llms.Tool, error) {
	if e.tools == nil {
		return nil, nil
	}
	mcpTools, err := e.tools.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]llms.Tool, 0, len(mcpTools))
	for _, t := range mcpTools {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out, nil
}

// invokeTool calls a tool through the MCP client (when configured) and
// records the attempt into a ToolCallRecord for SessionMemory.AppendToolCall,
// capturing clipboard content on single-path read_file observations.
func (e *StepExecutor) invokeTool(ctx context.Context, stepID string, cycle int, tc llms.ToolCall) (string, types.ToolCallRecord) {
	var args map[string]interface{}
	if tc.FunctionCall.Arguments != "" {
		_ = json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args)
	}

	record := types.ToolCallRecord{
		StepID:    stepID,
		Cycle:     cycle,
		Tool:      tc.FunctionCall.Name,
		Arguments: args,
	}

	if e.tools == nil {
		record.Error = "no MCP tool server configured"
		_ = e.mem.AppendToolCall(record)
		return "error: no tool server configured", record
	}

	result, err := e.tools.CallTool(ctx, tc.FunctionCall.Name, args)
	if err != nil {
		record.Error = err.Error()
		_ = e.mem.AppendToolCall(record)
		return fmt.Sprintf("error: %v", err), record
	}

	text := mcpclient.ResultText(result)
	record.Result = text
	_ = e.mem.AppendToolCall(record)

	e.captureClipboard(tc.FunctionCall.Name, args, text)

	return text, record
}

// captureClipboard populates SessionMemory.Clipboard when a tool call was a
// single-path read observation, per the invariant that clipboard[p]
// reflects a successful read-file observation.
func (e *StepExecutor) captureClipboard(tool string, args map[string]interface{}, result string) {
	switch tool {
	case "read_file":
		if path, ok := args["path"].(string); ok {
			_ = e.mem.CaptureClipboard(path, result)
		}
	case "read_multiple_files":
		if paths, ok := args["paths"].([]interface{}); ok && len(paths) == 1 {
			if path, ok := paths[0].(string); ok {
				_ = e.mem.CaptureClipboard(path, result)
			}
		}
	}
}
