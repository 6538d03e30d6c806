package observability

import "time"

// TraceID identifies a top-level trace (one orchestrator run).
type TraceID string

// SpanID identifies a single observation within a trace.
type SpanID string

// UsageMetrics carries token accounting for a single LLM generation.
type UsageMetrics struct {
	Unit         string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Tracer is the sink for orchestration-level observability data. Implementations
// must tolerate being called from a single goroutine at a time; the orchestrator
// never fans out concurrent spans for one trace.
type Tracer interface {
	StartTrace(name string, input interface{}) TraceID
	EndTrace(traceID TraceID, output interface{})
	StartSpan(traceID TraceID, parentID SpanID, name string, input interface{}) SpanID
	EndSpan(spanID SpanID, output interface{}, err error)
	StartGeneration(traceID TraceID, parentID SpanID, name, model string, input interface{}) SpanID
	EndGeneration(spanID SpanID, usage UsageMetrics, output interface{}, err error)
	Flush()
	Shutdown()
}

// NoopTracer discards everything. GetTracer returns it for the "noop"
// provider, an empty provider, and any provider name other than "langfuse".
type NoopTracer struct{}

func (NoopTracer) StartTrace(string, interface{}) TraceID                                 { return "" }
func (NoopTracer) EndTrace(TraceID, interface{})                                          {}
func (NoopTracer) StartSpan(TraceID, SpanID, string, interface{}) SpanID                   { return "" }
func (NoopTracer) EndSpan(SpanID, interface{}, error)                                      {}
func (NoopTracer) StartGeneration(TraceID, SpanID, string, string, interface{}) SpanID     { return "" }
func (NoopTracer) EndGeneration(SpanID, UsageMetrics, interface{}, error)                  {}
func (NoopTracer) Flush()                                                                 {}
func (NoopTracer) Shutdown()                                                              {}

// now is a replaceable clock hook; no code in this package reads it.
var now = time.Now
