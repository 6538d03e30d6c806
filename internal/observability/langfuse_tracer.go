package observability

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"

	"mcp-agent/agent_go/pkg/logger"
)

// LangfuseTracer forwards orchestrator spans to a Langfuse project via the
// official client. Trace/span identity is minted locally with uuid.NewString
// so callers get an ID back before the async batch is flushed.
type LangfuseTracer struct {
	client *langfuse.Langfuse
	log    logger.Logger

	mu     sync.Mutex
	traces map[TraceID]*model.Trace
	spans  map[SpanID]*model.Span
	gens   map[SpanID]*model.Generation
}

// NewLangfuseTracer builds a tracer reading LANGFUSE_PUBLIC_KEY, LANGFUSE_SECRET_KEY
// and LANGFUSE_HOST from the environment, per the langfuse-go client's own
// configuration contract.
func NewLangfuseTracer(log logger.Logger) *LangfuseTracer {
	return &LangfuseTracer{
		client: langfuse.New(context.Background()),
		log:    log,
		traces: make(map[TraceID]*model.Trace),
		spans:  make(map[SpanID]*model.Span),
		gens:   make(map[SpanID]*model.Generation),
	}
}

func (l *LangfuseTracer) StartTrace(name string, input interface{}) TraceID {
	t := &model.Trace{
		ID:    uuid.NewString(),
		Name:  name,
		Input: input,
	}
	if _, err := l.client.Trace(t); err != nil {
		l.log.Warnf("langfuse: start trace %s: %v", name, err)
	}
	id := TraceID(t.ID)
	l.mu.Lock()
	l.traces[id] = t
	l.mu.Unlock()
	return id
}

func (l *LangfuseTracer) EndTrace(traceID TraceID, output interface{}) {
	l.mu.Lock()
	t, ok := l.traces[traceID]
	l.mu.Unlock()
	if !ok {
		return
	}
	t.Output = output
	if _, err := l.client.Trace(t); err != nil {
		l.log.Warnf("langfuse: end trace %s: %v", traceID, err)
	}
}

func (l *LangfuseTracer) StartSpan(traceID TraceID, parentID SpanID, name string, input interface{}) SpanID {
	s := &model.Span{
		ID:      uuid.NewString(),
		TraceID: string(traceID),
		Name:    name,
		Input:   input,
	}
	var parent *string
	if parentID != "" {
		p := string(parentID)
		parent = &p
	}
	if _, err := l.client.Span(s, parent); err != nil {
		l.log.Warnf("langfuse: start span %s: %v", name, err)
	}
	id := SpanID(s.ID)
	l.mu.Lock()
	l.spans[id] = s
	l.mu.Unlock()
	return id
}

func (l *LangfuseTracer) EndSpan(spanID SpanID, output interface{}, err error) {
	l.mu.Lock()
	s, ok := l.spans[spanID]
	l.mu.Unlock()
	if !ok {
		return
	}
	s.Output = output
	if err != nil {
		s.Output = map[string]interface{}{"error": err.Error(), "result": output}
	}
	if _, spanErr := l.client.SpanEnd(s); spanErr != nil {
		l.log.Warnf("langfuse: end span %s: %v", spanID, spanErr)
	}
}

func (l *LangfuseTracer) StartGeneration(traceID TraceID, parentID SpanID, name, model_ string, input interface{}) SpanID {
	g := &model.Generation{
		ID:      uuid.NewString(),
		TraceID: string(traceID),
		Name:    name,
		Model:   model_,
		Input:   input,
	}
	var parent *string
	if parentID != "" {
		p := string(parentID)
		parent = &p
	}
	if _, err := l.client.Generation(g, parent); err != nil {
		l.log.Warnf("langfuse: start generation %s: %v", name, err)
	}
	id := SpanID(g.ID)
	l.mu.Lock()
	l.gens[id] = g
	l.mu.Unlock()
	return id
}

func (l *LangfuseTracer) EndGeneration(spanID SpanID, usage UsageMetrics, output interface{}, err error) {
	l.mu.Lock()
	g, ok := l.gens[spanID]
	l.mu.Unlock()
	if !ok {
		return
	}
	g.Output = output
	g.Usage = &model.Usage{
		Input:  usage.InputTokens,
		Output: usage.OutputTokens,
		Total:  usage.TotalTokens,
		Unit:   usage.Unit,
	}
	if err != nil {
		g.Output = map[string]interface{}{"error": err.Error(), "result": output}
	}
	if _, genErr := l.client.GenerationEnd(g); genErr != nil {
		l.log.Warnf("langfuse: end generation %s: %v", spanID, genErr)
	}
}

func (l *LangfuseTracer) Flush() {
	l.client.Flush(context.Background())
}

func (l *LangfuseTracer) Shutdown() {
	l.client.Flush(context.Background())
}
