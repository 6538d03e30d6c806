package orchestrator

import (
	"fmt"
	"time"
)

// State is an explicit orchestrator lifecycle state, reproduced verbatim
// from orchestrator/states.py's OrchestratorState enum.
type State string

const (
	Initializing State = "INITIALIZING"
	Discovery    State = "DISCOVERY"
	Planning     State = "PLANNING"
	Executing    State = "EXECUTING"
	Verifying    State = "VERIFYING"
	Critiquing   State = "CRITIQUING"
	SelfHealing  State = "SELF_HEALING"
	Complete     State = "COMPLETE"
	Failed       State = "FAILED"
)

// IsTerminal reports whether s has no further valid transitions.
func (s State) IsTerminal() bool {
	return s == Complete || s == Failed
}

// IsRecovery reports whether s is the self-healing recovery state.
func (s State) IsRecovery() bool {
	return s == SelfHealing
}

// Phase groups states into the high-level phase buckets states.py's
// OrchestratorState.phase property reports.
func (s State) Phase() string {
	switch s {
	case Initializing, Discovery:
		return "INIT"
	case Planning:
		return "PLAN"
	case Executing, Verifying, Critiquing:
		return "EXEC"
	case SelfHealing:
		return "RECOVERY"
	case Complete, Failed:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// validTransitions reproduces states.py's StateManager.VALID_TRANSITIONS
// dict verbatim as a Go map[State][]State.
var validTransitions = map[State][]State{
	Initializing: {Discovery, Failed},
	Discovery:    {Planning, Failed},
	Planning:     {Executing, Failed},
	Executing:    {Verifying, SelfHealing, Complete, Failed},
	Verifying:    {Critiquing, Executing, Failed},
	Critiquing:   {Executing, Complete, Failed},
	SelfHealing:  {Executing, Failed},
	Complete:     {},
	Failed:       {},
}

// Transition is one recorded state change, for telemetry/GetExecutionSummary.
type Transition struct {
	From      State
	To        State
	Timestamp time.Time
	StepID    string
	Reason    string
}

// StateManager tracks the current state and its full transition history.
type StateManager struct {
	current State
	history []Transition
}

// NewStateManager creates a StateManager starting at INITIALIZING.
func NewStateManager() *StateManager {
	return &StateManager{current: Initializing}
}

// Current returns the current state.
func (m *StateManager) Current() State {
	return m.current
}

// History returns a copy of the full transition history.
func (m *StateManager) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// CanTransitionTo reports whether target is reachable from the current state.
func (m *StateManager) CanTransitionTo(target State) bool {
	for _, valid := range validTransitions[m.current] {
		if valid == target {
			return true
		}
	}
	return false
}

// TransitionTo moves to target, recording the transition. It returns an
// error (not a panic) when the transition is invalid, so the Orchestrator's
// top-level loop can classify it as pkg/errors.InvalidStateTransition.
func (m *StateManager) TransitionTo(target State, stepID, reason string) (Transition, error) {
	if !m.CanTransitionTo(target) {
		return Transition{}, fmt.Errorf("orchestrator: invalid transition %s -> %s", m.current, target)
	}
	t := Transition{From: m.current, To: target, Timestamp: time.Now(), StepID: stepID, Reason: reason}
	m.history = append(m.history, t)
	m.current = target
	return t, nil
}

// ExecutionSummary is the telemetry-facing digest of the run so far,
// matching states.py's get_execution_summary.
type ExecutionSummary struct {
	CurrentState    State        `json:"current_state"`
	TotalTransitions int         `json:"total_transitions"`
	PhasesVisited   []string     `json:"phases_visited"`
	RecoveryCount   int          `json:"recovery_count"`
	RecentHistory   []Transition `json:"history"`
}

// GetExecutionSummary builds the telemetry-facing digest.
func (m *StateManager) GetExecutionSummary() ExecutionSummary {
	phaseSet := map[string]bool{}
	recoveryCount := 0
	for _, t := range m.history {
		phaseSet[t.To.Phase()] = true
		if t.To.IsRecovery() {
			recoveryCount++
		}
	}
	phases := make([]string, 0, len(phaseSet))
	for p := range phaseSet {
		phases = append(phases, p)
	}

	recent := m.history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	return ExecutionSummary{
		CurrentState:     m.current,
		TotalTransitions: len(m.history),
		PhasesVisited:    phases,
		RecoveryCount:    recoveryCount,
		RecentHistory:    recent,
	}
}
