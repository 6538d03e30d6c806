// Package llm builds langchaingo model clients for the providers the
// orchestrator is configured to use. It deliberately does not reimplement
// langchaingo's own request/response types: StepExecutor, AtomicPlanner and
// Critic all talk to llms.Model directly.
package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"mcp-agent/agent_go/internal/llm/bedrockadapter"
	"mcp-agent/agent_go/internal/llm/vertex"
	"mcp-agent/agent_go/pkg/logger"
)

// Provider identifies an LLM vendor.
type Provider string

const (
	Anthropic Provider = "anthropic"
	OpenAI    Provider = "openai"
	Bedrock   Provider = "bedrock"
	VertexAI  Provider = "vertexai"
)

// New constructs a Model for the given provider and model ID. Anthropic and
// OpenAI go through langchaingo's own clients; Bedrock and VertexAI go
// through this module's direct-SDK adapters so the orchestrator exercises
// the raw AWS and Google GenAI clients rather than langchaingo's thinner
// wrappers around them. Credentials are read from the environment the way
// each provider's SDK already expects (ANTHROPIC_API_KEY, OPENAI_API_KEY,
// AWS_* for bedrock, GOOGLE_CLOUD_PROJECT/GOOGLE_APPLICATION_CREDENTIALS for
// vertex) — the orchestrator never handles raw API keys itself.
func New(ctx context.Context, provider Provider, modelID string, log logger.Logger) (llms.Model, error) {
	switch provider {
	case Anthropic:
		return anthropic.New(anthropic.WithModel(modelID))
	case OpenAI:
		return openai.New(openai.WithModel(modelID))
	case Bedrock:
		client, err := bedrockadapter.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("llm: bedrock client: %w", err)
		}
		return bedrockadapter.New(client, modelID, log), nil
	case VertexAI:
		client, err := vertex.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("llm: vertex client: %w", err)
		}
		return vertex.New(client, modelID, log), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}

// FallbackChain wraps an ordered list of providers and tries each in turn
// when a model call fails outright (not a hallucination, an actual
// transport/auth/rate-limit error). The orchestrator and cmd/run do not use
// it; they each work with a single llms.Model returned by New.
type FallbackChain struct {
	models []llms.Model
	names  []string
}

// NewFallbackChain resolves every (provider, modelID) pair up front so a
// misconfigured fallback is caught when the chain is built, not mid-call.
func NewFallbackChain(ctx context.Context, specs []Spec, log logger.Logger) (*FallbackChain, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("llm: fallback chain requires at least one model")
	}
	chain := &FallbackChain{}
	for _, spec := range specs {
		m, err := New(ctx, spec.Provider, spec.ModelID, log)
		if err != nil {
			return nil, fmt.Errorf("llm: resolving fallback %s/%s: %w", spec.Provider, spec.ModelID, err)
		}
		chain.models = append(chain.models, m)
		chain.names = append(chain.names, fmt.Sprintf("%s/%s", spec.Provider, spec.ModelID))
	}
	return chain, nil
}

// Spec names a single provider/model pair inside a fallback chain.
type Spec struct {
	Provider Provider
	ModelID  string
}

// GenerateContent tries each model in order, returning the first success.
// It returns the name of the model that actually answered alongside the
// response so the caller can emit a FallbackModelUsed telemetry event.
func (c *FallbackChain) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, string, error) {
	var lastErr error
	for i, m := range c.models {
		resp, err := m.GenerateContent(ctx, messages, options...)
		if err == nil {
			return resp, c.names[i], nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("llm: all %d fallback models failed, last error: %w", len(c.models), lastErr)
}
