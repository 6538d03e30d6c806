package telemetry

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-agent/agent_go/internal/observability"
	"mcp-agent/agent_go/pkg/events"
)

func TestLogEmitsRequiredKeys(t *testing.T) {
	var buf bytes.Buffer
	tel := New(&buf, observability.NoopTracer{}, nil)

	tel.Info("orchestrator", events.OrchestratorStart, "", map[string]interface{}{"query": "do thing"})

	var evt Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &evt))
	assert.Equal(t, tel.SessionID(), evt.SessionID)
	assert.Equal(t, events.OrchestratorStart, evt.EventType)
	assert.Equal(t, "orchestrator", evt.Component)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestEachSessionGetsAFreshID(t *testing.T) {
	var buf bytes.Buffer
	a := New(&buf, observability.NoopTracer{}, nil)
	b := New(&buf, observability.NoopTracer{}, nil)
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}
