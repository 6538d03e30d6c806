// Package types holds the shared data-transfer objects passed between
// SkillRegistry, SessionMemory, AtomicPlanner, StepExecutor, Verifier,
// Critic and Orchestrator. Keeping them in one package avoids import
// cycles between those components.
package types

import "time"

// StepStatus is the lifecycle state of a single SkillStep within a Plan.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepActive  StepStatus = "active"
	StepDone    StepStatus = "done"
)

// Skill is an immutable, discovered unit of work instructions: a directory
// containing a SKILL.md manual plus any scripts it requires.
type Skill struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	ManualPath      string   `json:"manual_path"`
	DirectoryPath   string   `json:"directory_path"`
	RequiredScripts []string `json:"required_scripts"`
}

// SkillStep is one atomic unit of a Plan. Mutable during a run: Status
// advances pending -> active -> done and never regresses.
type SkillStep struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	TaskInstruction   string     `json:"task_instruction"`
	TaskQuery         string     `json:"task_query"`
	Content           string     `json:"content"`
	References        []string   `json:"references"`
	ExpectedArtifacts []string   `json:"expected_artifacts"`
	Status            StepStatus `json:"status"`
	SkillRawContext   string     `json:"skill_raw_context"`
}

// CompletionCriteria tells the CompletionChecker what "done" means for a
// Plan: files that must exist, textual signals looked for in tool-call
// results and registered artifact paths, and shell commands whose success
// (exit 0) counts as confirmation.
type CompletionCriteria struct {
	RequiredArtifacts []string `json:"required_artifacts"`
	SuccessSignals    []string `json:"success_signals"`
	CommandChecks     []string `json:"command_checks"`
}

// IsEmpty reports whether none of the three criteria kinds carry anything to
// check, so the CompletionChecker can skip evaluation entirely.
func (c CompletionCriteria) IsEmpty() bool {
	return len(c.RequiredArtifacts) == 0 && len(c.SuccessSignals) == 0 && len(c.CommandChecks) == 0
}

// Plan is the AtomicPlanner's output: an ordered sequence of steps plus the
// reasoning behind the breakdown and the criteria that decide early exit.
type Plan struct {
	Steps               []*SkillStep        `json:"steps"`
	Reasoning           string               `json:"reasoning"`
	CompletionCriteria  CompletionCriteria   `json:"completion_criteria"`
}

// ToolCallRecord is one entry in SessionMemory.ToolHistory: a single tool
// invocation issued by a worker during a ReAct cycle.
type ToolCallRecord struct {
	StepID    string                 `json:"step_id"`
	Cycle     int                    `json:"cycle"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
	Result    string                 `json:"result"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// FeedbackEntry is one Critic verdict appended to
// SessionMemory.AgentFeedbackHistory.
type FeedbackEntry struct {
	StepID    string    `json:"step_id"`
	Approved  bool      `json:"approved"`
	Feedback  string    `json:"feedback"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEntry is a free-form note appended to SessionMemory.Logs, distinct from
// the Telemetry stream: these are human-facing narrative breadcrumbs, not
// structured events.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// AtomicPlannerInput is what the Orchestrator hands the AtomicPlanner to
// produce an initial Plan.
type AtomicPlannerInput struct {
	Query         string   `json:"query"`
	SkillManual   string   `json:"skill_manual"`
	WorkspaceRoot string   `json:"workspace_root"`
	ActiveFolder  string   `json:"active_folder"`
	Resources     []string `json:"resources"`
}

// AtomicPlannerOutput is the LLM-structured response AtomicPlanner.Plan
// parses into a Plan. CompletionCriteria is deliberately not part of this
// shape: it is derived mechanically from the produced steps, not requested
// from the LLM (spec.md §4.3).
type AtomicPlannerOutput struct {
	Steps     []*SkillStep `json:"steps"`
	Reasoning string       `json:"reasoning"`
}

// ReplanInput is what Orchestrator hands AtomicPlanner.Replan when
// self-healing after a failed/rejected step.
type ReplanInput struct {
	CurrentPlan *Plan  `json:"current_plan"`
	FailedStep  *SkillStep `json:"failed_step"`
	Reason      string `json:"reason"`
	SkillManual string `json:"skill_manual"`
}

// StepExecutorInput is the context envelope StepExecutor.Execute consumes.
type StepExecutorInput struct {
	Step           *SkillStep `json:"step"`
	ActiveFolder   string     `json:"active_folder"`
	Roadmap        string     `json:"roadmap"`
	MemorySnapshot string     `json:"memory_snapshot"`
	SkillManual    string     `json:"skill_manual"`
	RetryFeedback  string     `json:"retry_feedback,omitempty"`
	Attempt        int        `json:"attempt"`
}

// StepExecutorOutput is what a worker run produces for the Verifier and
// Critic to inspect.
type StepExecutorOutput struct {
	StepID        string           `json:"step_id"`
	FinalAnswer   string           `json:"final_answer"`
	ToolCalls     []ToolCallRecord `json:"tool_calls"`
	CyclesUsed    int              `json:"cycles_used"`
	Completed     bool             `json:"completed"`
	ReportedFiles []string         `json:"reported_files"`
}

// CriticInput is the XML-composed context handed to the Critic's LLM
// auditor.
type CriticInput struct {
	StepID            string   `json:"step_id"`
	StepTitle         string   `json:"step_title"`
	ActiveFolder      string   `json:"active_folder"`
	WorkerOutput      string   `json:"worker_output"`
	GlobalContext     string   `json:"global_context"`
	ProjectRoadmap    string   `json:"project_roadmap"`
	ExpectedArtifacts []string `json:"expected_artifacts"`
}

// CriticOutput is the Critic's verdict.
type CriticOutput struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

// TechLeadInput is handed to the Tech Lead escalation persona after repeated
// same-step rejections.
type TechLeadInput struct {
	StepID          string   `json:"step_id"`
	StepTitle       string   `json:"step_title"`
	RejectionHistory []string `json:"rejection_history"`
	WorkerOutput    string   `json:"worker_output"`
}

// TechLeadOutput is the Tech Lead's root-cause diagnosis.
type TechLeadOutput struct {
	Diagnosis string `json:"diagnosis"`
	Advice    string `json:"advice"`
	Severity  string `json:"severity"`
}

// VerificationResult is the Verifier's classification of a step's claimed
// artifacts.
type VerificationResult struct {
	Verified     []string `json:"verified"`
	Missing      []string `json:"missing"`
	Hallucinated []string `json:"hallucinated"`
}
