// Package telemetry implements the mandated JSON-lines event stream (spec.md
// §6): one JSON object per line on stderr, keyed by timestamp/level/
// component/session_id/event_type. Grounded on utils/telemetry.py's
// TelemetryManager singleton, reimplemented as an injected, non-global value
// per spec.md §9's "ambient singletons passed as explicit arguments" note.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcp-agent/agent_go/internal/observability"
	"mcp-agent/agent_go/pkg/events"
	"mcp-agent/agent_go/pkg/telemetry/store"
)

// Level mirrors logrus's level vocabulary for the required "level" key.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one line of the telemetry stream.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	SessionID string                 `json:"session_id"`
	EventType events.EventType       `json:"event_type"`
	StepID    string                 `json:"step_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Telemetry is the per-run emitter. It is constructed once by cmd/run and
// passed explicitly to orchestrator.New — never a package-level global.
type Telemetry struct {
	sessionID string
	out       io.Writer
	mu        sync.Mutex
	tracer    observability.Tracer
	store     *store.Store
}

// New creates a Telemetry instance writing JSON lines to w (os.Stderr in
// production) and minting a fresh session ID, matching the original's
// uuid.uuid4() session identity.
func New(w io.Writer, tracer observability.Tracer, durableStore *store.Store) *Telemetry {
	if tracer == nil {
		tracer = observability.NoopTracer{}
	}
	return &Telemetry{
		sessionID: uuid.NewString(),
		out:       w,
		tracer:    tracer,
		store:     durableStore,
	}
}

// NewDefault wires the conventional stderr + noop-tracer + no durable store
// configuration, for callers that haven't configured a tracing provider.
func NewDefault() *Telemetry {
	return New(os.Stderr, observability.NoopTracer{}, nil)
}

// SessionID returns this run's session identifier.
func (t *Telemetry) SessionID() string {
	return t.sessionID
}

// Log emits one structured event: written to the JSON-lines stream, mirrored
// to the durable SQLite store if configured, and left for Langfuse span
// correlation at the call sites that manage trace/span IDs directly (the
// tracer is exposed via Tracer() for that purpose).
func (t *Telemetry) Log(level Level, component string, eventType events.EventType, stepID string, details map[string]interface{}) {
	evt := Event{
		Timestamp: time.Now(),
		Level:     level,
		Component: component,
		SessionID: t.sessionID,
		EventType: eventType,
		StepID:    stepID,
		Details:   details,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Fprintf(t.out, `{"level":"error","event_type":"telemetry_marshal_error","error":%q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(t.out, string(data))

	if t.store != nil {
		if err := t.store.Append(evt.Timestamp, string(evt.Level), evt.Component, evt.SessionID, string(evt.EventType), evt.StepID, details); err != nil {
			fmt.Fprintf(t.out, `{"level":"error","event_type":"telemetry_store_error","error":%q}`+"\n", err.Error())
		}
	}
}

// Info is a convenience wrapper for the common info-level case.
func (t *Telemetry) Info(component string, eventType events.EventType, stepID string, details map[string]interface{}) {
	t.Log(LevelInfo, component, eventType, stepID, details)
}

// Warn is a convenience wrapper for the warn-level case.
func (t *Telemetry) Warn(component string, eventType events.EventType, stepID string, details map[string]interface{}) {
	t.Log(LevelWarn, component, eventType, stepID, details)
}

// Error is a convenience wrapper for the error-level case.
func (t *Telemetry) Error(component string, eventType events.EventType, stepID string, details map[string]interface{}) {
	t.Log(LevelError, component, eventType, stepID, details)
}

// Tracer exposes the distributed tracing sink for callers that start their
// own spans. No component in this module currently calls it.
func (t *Telemetry) Tracer() observability.Tracer {
	return t.tracer
}

// Close flushes the tracer and closes the durable store, if present.
func (t *Telemetry) Close() error {
	t.tracer.Flush()
	t.tracer.Shutdown()
	if t.store != nil {
		return t.store.Close()
	}
	return nil
}
