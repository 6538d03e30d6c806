// Package bedrockadapter adapts the AWS Bedrock runtime SDK to langchaingo's
// llms.Model interface, invoking Claude-on-Bedrock directly through
// bedrockruntime.InvokeModel instead of langchaingo's bedrock wrapper.
// Grounded on the teacher's BedrockAdapter, ported onto langchaingo's llms
// types and its Anthropic Messages wire format.
package bedrockadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/logger"
)

// NewClient loads the default AWS config (environment, shared config, or
// instance role, in that order) and builds a Bedrock runtime client from it.
func NewClient(ctx context.Context) (*bedrockruntime.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("bedrockadapter: load AWS config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

// Adapter implements llms.Model against bedrockruntime.InvokeModel using the
// Anthropic Messages API request/response shape Bedrock exposes for Claude
// models.
type Adapter struct {
	client  *bedrockruntime.Client
	modelID string
	log     logger.Logger
}

// New wraps an existing Bedrock runtime client for the given default model.
func New(client *bedrockruntime.Client, modelID string, log logger.Logger) *Adapter {
	return &Adapter{client: client, modelID: modelID, log: log}
}

// GenerateContent implements llms.Model.
func (a *Adapter) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	modelID := a.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	body := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"messages":          convertMessages(messages),
	}
	if opts.Temperature > 0 {
		body["temperature"] = opts.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	body["max_tokens"] = maxTokens
	if len(opts.Tools) > 0 {
		body["tools"] = convertTools(opts.Tools)
		if choice := convertToolChoice(opts.ToolChoice); choice != nil {
			body["tool_choice"] = choice
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("bedrockadapter: marshal request: %w", err)
	}

	result, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		a.log.Errorf("bedrockadapter: invoke model failed (model=%s): %v", modelID, err)
		return nil, fmt.Errorf("bedrockadapter: invoke model: %w", err)
	}

	var respBody map[string]interface{}
	if err := json.Unmarshal(result.Body, &respBody); err != nil {
		return nil, fmt.Errorf("bedrockadapter: unmarshal response: %w", err)
	}
	return convertResponse(respBody), nil
}

// Call implements llms.Model's convenience single-prompt form.
func (a *Adapter) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := a.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("bedrockadapter: empty response")
	}
	return resp.Choices[0].Content, nil
}

func convertMessages(messages []llms.MessageContent) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		var blocks []map[string]interface{}
		var toolCalls []llms.ToolCall
		var toolUseID, toolResult string

		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": p.Text})
			case llms.ToolCall:
				toolCalls = append(toolCalls, p)
			case llms.ToolCallResponse:
				toolUseID = p.ToolCallID
				toolResult = p.Content
			}
		}

		switch msg.Role {
		case llms.ChatMessageTypeAI:
			if len(toolCalls) > 0 {
				for _, tc := range toolCalls {
					input := map[string]interface{}{}
					if tc.FunctionCall != nil && tc.FunctionCall.Arguments != "" {
						_ = json.Unmarshal([]byte(tc.FunctionCall.Arguments), &input)
					}
					blocks = append(blocks, map[string]interface{}{
						"type": "tool_use", "id": tc.ID, "name": tc.FunctionCall.Name, "input": input,
					})
				}
			}
			if len(blocks) > 0 {
				out = append(out, map[string]interface{}{"role": "assistant", "content": blocks})
			}
		case llms.ChatMessageTypeTool:
			if toolUseID != "" {
				out = append(out, map[string]interface{}{
					"role": "user",
					"content": []map[string]interface{}{
						{"type": "tool_result", "tool_use_id": toolUseID, "content": toolResult},
					},
				})
			}
		default:
			// System and human turns both become Claude "user" turns; Bedrock's
			// Messages API has no distinct system role on this path.
			if len(blocks) > 0 {
				out = append(out, map[string]interface{}{"role": "user", "content": blocks})
			}
		}
	}
	return out
}

func convertTools(tools []llms.Tool) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		schema, ok := tool.Function.Parameters.(map[string]interface{})
		if !ok {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
			if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
				_ = json.Unmarshal(raw, &schema)
			}
		}
		out = append(out, map[string]interface{}{
			"name": tool.Function.Name, "description": tool.Function.Description, "input_schema": schema,
		})
	}
	return out
}

func convertToolChoice(choice any) map[string]interface{} {
	str, ok := choice.(string)
	if !ok {
		return nil
	}
	switch str {
	case "none":
		return map[string]interface{}{"type": "none"}
	case "required", "any":
		return map[string]interface{}{"type": "any"}
	case "auto", "":
		return map[string]interface{}{"type": "auto"}
	default:
		return map[string]interface{}{"type": "tool", "name": str}
	}
}

func convertResponse(body map[string]interface{}) *llms.ContentResponse {
	var text strings.Builder
	var calls []llms.ToolCall

	if blocks, ok := body["content"].([]interface{}); ok {
		for _, raw := range blocks {
			block, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			switch block["type"] {
			case "text":
				if t, ok := block["text"].(string); ok {
					if text.Len() > 0 {
						text.WriteString("\n")
					}
					text.WriteString(t)
				}
			case "tool_use":
				id, _ := block["id"].(string)
				name, _ := block["name"].(string)
				input, _ := block["input"].(map[string]interface{})
				argsJSON := "{}"
				if input != nil {
					if b, err := json.Marshal(input); err == nil {
						argsJSON = string(b)
					}
				}
				calls = append(calls, llms.ToolCall{
					ID: id, Type: "function",
					FunctionCall: &llms.FunctionCall{Name: name, Arguments: argsJSON},
				})
			}
		}
	}

	choice := &llms.ContentChoice{Content: text.String(), ToolCalls: calls}
	if stop, ok := body["stop_reason"].(string); ok {
		choice.StopReason = stop
	}
	if usage, ok := body["usage"].(map[string]interface{}); ok {
		info := map[string]interface{}{}
		if in, ok := usage["input_tokens"].(float64); ok {
			info["prompt_tokens"] = int(in)
		}
		if out, ok := usage["output_tokens"].(float64); ok {
			info["completion_tokens"] = int(out)
		}
		choice.GenerationInfo = info
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}
}
