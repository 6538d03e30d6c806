package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateManagerStartsAtInitializing(t *testing.T) {
	m := NewStateManager()
	assert.Equal(t, Initializing, m.Current())
	assert.Empty(t, m.History())
}

func TestStateManagerValidTransitionSequence(t *testing.T) {
	m := NewStateManager()
	for _, target := range []State{Discovery, Planning, Executing, Verifying, Critiquing, Complete} {
		_, err := m.TransitionTo(target, "s1", "advancing")
		require.NoError(t, err)
	}
	assert.Equal(t, Complete, m.Current())
	assert.Len(t, m.History(), 6)
}

func TestStateManagerRejectsInvalidTransition(t *testing.T) {
	m := NewStateManager()
	_, err := m.TransitionTo(Complete, "", "skip everything")
	assert.Error(t, err)
	assert.Equal(t, Initializing, m.Current())
}

func TestExecutingHasNoSelfLoop(t *testing.T) {
	m := NewStateManager()
	_, err := m.TransitionTo(Discovery, "", "")
	require.NoError(t, err)
	_, err = m.TransitionTo(Planning, "", "")
	require.NoError(t, err)
	_, err = m.TransitionTo(Executing, "", "")
	require.NoError(t, err)

	assert.False(t, m.CanTransitionTo(Executing))
	_, err = m.TransitionTo(Executing, "", "retry")
	assert.Error(t, err)
}

func TestTerminalStatesHaveNoValidTransitions(t *testing.T) {
	m := NewStateManager()
	_, err := m.TransitionTo(Discovery, "", "")
	require.NoError(t, err)
	_, err = m.TransitionTo(Failed, "", "boom")
	require.NoError(t, err)

	assert.True(t, m.Current().IsTerminal())
	assert.False(t, m.CanTransitionTo(Discovery))
	assert.False(t, m.CanTransitionTo(Failed))
}

func TestGetExecutionSummaryTracksRecoveryAndPhases(t *testing.T) {
	m := NewStateManager()
	for _, target := range []State{Discovery, Planning, Executing} {
		_, err := m.TransitionTo(target, "", "")
		require.NoError(t, err)
	}
	_, err := m.TransitionTo(SelfHealing, "s1", "exhausted retries")
	require.NoError(t, err)
	_, err = m.TransitionTo(Executing, "s1", "resume")
	require.NoError(t, err)
	_, err = m.TransitionTo(Verifying, "s1", "")
	require.NoError(t, err)
	_, err = m.TransitionTo(Critiquing, "s1", "")
	require.NoError(t, err)
	_, err = m.TransitionTo(Complete, "", "")
	require.NoError(t, err)

	summary := m.GetExecutionSummary()
	assert.Equal(t, Complete, summary.CurrentState)
	assert.Equal(t, 1, summary.RecoveryCount)
	assert.Contains(t, summary.PhasesVisited, "RECOVERY")
	assert.Contains(t, summary.PhasesVisited, "DONE")
	assert.LessOrEqual(t, len(summary.RecentHistory), 5)
}
