// Package events defines the catalog of telemetry event types emitted by
// the orchestrator, StepExecutor, Verifier and Critic — the vocabulary
// Telemetry writes one JSON line per event for.
package events

// EventType identifies a telemetry event kind.
type EventType string

const (
	OrchestratorStart EventType = "orchestrator_start"
	OrchestratorEnd   EventType = "orchestrator_end"
	OrchestratorError EventType = "orchestrator_error"
	StateTransition   EventType = "state_transition"

	DiscoveryStart EventType = "discovery_start"
	DiscoveryEnd   EventType = "discovery_end"

	PlanCreated  EventType = "plan_created"
	PlanReplaced EventType = "plan_replaced"

	StepStart EventType = "step_start"
	StepEnd   EventType = "step_end"

	ReActCycleStart EventType = "react_cycle_start"
	ReActCycleEnd   EventType = "react_cycle_end"

	LLMGenerationStart EventType = "llm_generation_start"
	LLMGenerationEnd   EventType = "llm_generation_end"
	LLMGenerationError EventType = "llm_generation_error"
	FallbackModelUsed  EventType = "fallback_model_used"

	ToolCallStart EventType = "tool_call_start"
	ToolCallEnd   EventType = "tool_call_end"
	ToolCallError EventType = "tool_call_error"

	AutoWriteNudge EventType = "auto_write_nudge"

	VerificationStart EventType = "verification_start"
	VerificationEnd   EventType = "verification_end"
	SmartFindResolved EventType = "smart_find_resolved"
	Hallucination     EventType = "hallucination_detected"

	CritiqueStart  EventType = "critique_start"
	CritiqueEnd    EventType = "critique_end"
	TechLeadAdvice EventType = "tech_lead_advice"

	SelfHealStart EventType = "self_heal_start"
	SelfHealEnd   EventType = "self_heal_end"

	CompletionCheck EventType = "completion_check"
)
