package observability

import (
	"strings"

	"mcp-agent/agent_go/pkg/logger"
)

const (
	ProviderLangfuse = "langfuse"
	ProviderNoop     = "noop"
)

// GetTracer returns a Tracer implementation based on the provided provider string,
// falling back to NoopTracer when the provider is unrecognized.
func GetTracer(provider string, log logger.Logger) Tracer {
	switch strings.ToLower(provider) {
	case ProviderLangfuse:
		return NewLangfuseTracer(log)
	case ProviderNoop, "":
		return NoopTracer{}
	default:
		return NoopTracer{}
	}
}
