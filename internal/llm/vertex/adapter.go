// Package vertex adapts the Google GenAI SDK to langchaingo's llms.Model
// interface so the orchestrator can talk to Vertex AI without going through
// langchaingo's own (narrower) googleai wrapper. Grounded on the teacher's
// GoogleGenAIAdapter, ported from its custom llmtypes package onto
// langchaingo's llms types.
package vertex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/logger"
)

// NewClient builds a GenAI client backed by Vertex AI, reading the project
// and location the same way the rest of the orchestrator's provider
// constructors read credentials from the environment.
func NewClient(ctx context.Context) (*genai.Client, error) {
	project := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if project == "" {
		return nil, fmt.Errorf("vertex: GOOGLE_CLOUD_PROJECT is not set")
	}
	location := os.Getenv("GOOGLE_CLOUD_LOCATION")
	if location == "" {
		location = "us-central1"
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  project,
		Location: location,
	})
}

// Adapter implements llms.Model directly against the Google GenAI SDK,
// bypassing langchaingo's own Vertex wrapper.
type Adapter struct {
	client  *genai.Client
	modelID string
	log     logger.Logger
}

// New wraps an existing GenAI client for the given default model.
func New(client *genai.Client, modelID string, log logger.Logger) *Adapter {
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

	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		parts := convertParts(msg.Parts)
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: convertRole(msg.Role), Parts: parts})
	}

	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		config.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	if len(opts.Tools) > 0 {
		config.Tools = convertTools(opts.Tools)
		if opts.ToolChoice != nil {
			config.ToolConfig = convertToolChoice(opts.ToolChoice)
		}
	}

	result, err := a.client.Models.GenerateContent(ctx, modelID, contents, config)
	if err != nil {
		a.log.Errorf("vertex: generate content failed (model=%s): %v", modelID, err)
		return nil, fmt.Errorf("vertex: generate content: %w", err)
	}
	return convertResponse(result), nil
}

// Call implements llms.Model's convenience single-prompt form.
func (a *Adapter) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := a.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vertex: empty response")
	}
	return resp.Choices[0].Content, nil
}

func convertRole(role llms.ChatMessageType) string {
	switch role {
	case llms.ChatMessageTypeAI:
		return "model"
	default:
		// GenAI has no system role; system and tool-result turns both read
		// naturally as "user" turns to the model.
		return "user"
	}
}

func convertParts(parts []llms.ContentPart) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case llms.TextContent:
			out = append(out, genai.NewPartFromText(p.Text))
		case llms.ToolCallResponse:
			out = append(out, genai.NewPartFromFunctionResponse(p.ToolCallID, parseJSONObject(p.Content)))
		case llms.ToolCall:
			if p.FunctionCall != nil {
				out = append(out, genai.NewPartFromFunctionCall(p.FunctionCall.Name, parseJSONObject(p.FunctionCall.Arguments)))
			}
		}
	}
	return out
}

func convertTools(tools []llms.Tool) []*genai.Tool {
	out := make([]*genai.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		decl := &genai.FunctionDeclaration{Name: tool.Function.Name, Description: tool.Function.Description}
		if schema := paramsToSchema(tool.Function.Parameters); schema != nil {
			decl.Parameters = schema
		}
		out = append(out, &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{decl}})
	}
	return out
}

func paramsToSchema(params any) *genai.Schema {
	if params == nil {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	var schema genai.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	return &schema
}

func convertToolChoice(choice any) *genai.ToolConfig {
	cfg := &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}}
	str, ok := choice.(string)
	if !ok {
		return cfg
	}
	switch str {
	case "none":
		cfg.FunctionCallingConfig.Mode = genai.FunctionCallingConfigModeNone
	case "required", "any":
		cfg.FunctionCallingConfig.Mode = genai.FunctionCallingConfigModeAny
	default:
		cfg.FunctionCallingConfig.Mode = genai.FunctionCallingConfigModeAuto
	}
	return cfg
}

func convertResponse(result *genai.GenerateContentResponse) *llms.ContentResponse {
	if result == nil {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{}}
	}
	choices := make([]*llms.ContentChoice, 0, len(result.Candidates))
	for _, candidate := range result.Candidates {
		choice := &llms.ContentChoice{}
		var text strings.Builder
		var calls []llms.ToolCall
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					if text.Len() > 0 {
						text.WriteString("\n")
					}
					text.WriteString(part.Text)
				}
				if part.FunctionCall != nil {
					calls = append(calls, llms.ToolCall{
						ID:   fmt.Sprintf("call_%d", len(calls)+1),
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: argsToJSON(part.FunctionCall.Args),
						},
					})
				}
			}
		}
		choice.Content = text.String()
		choice.ToolCalls = calls
		choice.StopReason = string(candidate.FinishReason)
		if result.UsageMetadata != nil {
			choice.GenerationInfo = map[string]interface{}{
				"prompt_tokens":     int(result.UsageMetadata.PromptTokenCount),
				"completion_tokens": int(result.UsageMetadata.CandidatesTokenCount),
				"total_tokens":      int(result.UsageMetadata.TotalTokenCount),
			}
		}
		choices = append(choices, choice)
	}
	return &llms.ContentResponse{Choices: choices}
}

func argsToJSON(args map[string]interface{}) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func parseJSONObject(s string) map[string]interface{} {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return map[string]interface{}{"result": s}
	}
	return out
}
