package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-agent/agent_go/pkg/memory"
	"mcp-agent/agent_go/pkg/types"
)

func TestCompletionCheckerEmptyCriteriaNeverShortCircuits(t *testing.T) {
	dir := t.TempDir()
	mem, err := memory.New(dir)
	require.NoError(t, err)

	checker := NewCompletionChecker(mem)
	done, reason := checker.IsComplete(context.Background(), types.CompletionCriteria{})
	assert.False(t, done)
	assert.Empty(t, reason)
}

func TestCompletionCheckerDetectsExistingArtifact(t *testing.T) {
	dir := t.TempDir()
	mem, err := memory.New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "final.txt"), []byte("already done"), 0644))

	checker := NewCompletionChecker(mem)
	done, reason := checker.IsComplete(context.Background(), types.CompletionCriteria{RequiredArtifacts: []string{"final.txt"}})
	assert.True(t, done)
	assert.Contains(t, reason, "final.txt")
}

func TestCompletionCheckerIgnoresEmptyArtifact(t *testing.T) {
	dir := t.TempDir()
	mem, err := memory.New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), nil, 0644))

	checker := NewCompletionChecker(mem)
	done, _ := checker.IsComplete(context.Background(), types.CompletionCriteria{RequiredArtifacts: []string{"empty.txt"}})
	assert.False(t, done, "a zero-byte file must not count as already produced")
}

func TestCompletionCheckerDetectsSuccessSignalInToolHistory(t *testing.T) {
	dir := t.TempDir()
	mem, err := memory.New(dir)
	require.NoError(t, err)

	require.NoError(t, mem.AppendToolCall(types.ToolCallRecord{StepID: "s1", Tool: "run_script", Result: "MISSION_COMPLETE: all done"}))

	checker := NewCompletionChecker(mem)
	done, reason := checker.IsComplete(context.Background(), types.CompletionCriteria{SuccessSignals: []string{"MISSION_COMPLETE"}})
	assert.True(t, done)
	assert.Contains(t, reason, "MISSION_COMPLETE")
}

func TestCompletionCheckerCommandCheckExitZero(t *testing.T) {
	dir := t.TempDir()
	mem, err := memory.New(dir)
	require.NoError(t, err)

	checker := NewCompletionChecker(mem)
	done, reason := checker.IsComplete(context.Background(), types.CompletionCriteria{CommandChecks: []string{"true"}})
	assert.True(t, done)
	assert.Contains(t, reason, "true")
}

func TestCompletionCheckerCommandCheckNonZeroDoesNotShortCircuit(t *testing.T) {
	dir := t.TempDir()
	mem, err := memory.New(dir)
	require.NoError(t, err)

	checker := NewCompletionChecker(mem)
	done, _ := checker.IsComplete(context.Background(), types.CompletionCriteria{CommandChecks: []string{"false"}})
	assert.False(t, done)
}
