// Package planner implements the AtomicPlanner: it turns a skill manual and
// a user query into an ordered Plan of atomic SkillSteps, and can replan
// around a failed step during self-healing. Grounded on
// pkg/orchestrator/agents/planning_agent.go and plan_breakdown_agent.go (the
// teacher's LLM-backed structured-output agent idiom) and structs.py's
// AtomicPlannerInput/AtomicPlannerOutput/SkillStep dataclasses.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/types"
)

// defaultSuccessSignals are the tokens the CompletionChecker looks for in
// tool-call results and artifact paths to signal early completion, matching
// the original's CompletionChecker vocabulary.
var defaultSuccessSignals = []string{"MISSION_COMPLETE", "TASK_DONE", "BUNDLE_SUCCESS", "[STEP_COMPLETE]"}

// Planner is the AtomicPlanner.
type Planner struct {
	model llms.Model
	log   logger.Logger
}

// New creates a Planner backed by an LLM model.
func New(model llms.Model, log logger.Logger) *Planner {
	return &Planner{model: model, log: log}
}

// Model exposes the underlying LLM model for callers (skill discovery) that
// need a raw generation round-trip outside the planning prompt templates.
func (p *Planner) Model() (llms.Model, bool) {
	return p.model, p.model != nil
}

// outputSchema returns the JSON Schema describing AtomicPlannerOutput,
// generated via invopop/jsonschema rather than hand-written, and embedded in
// the planning prompt so the LLM knows the exact structured shape expected.
func outputSchema() string {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&types.AtomicPlannerOutput{})
	data, err := schema.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

const planPromptTemplate = `You are the AtomicPlanner. Break the user's task into an ordered
sequence of atomic, independently-verifiable steps, each with its own
expected artifacts.

TASK QUERY:
%s

SKILL MANUAL:
%s

WORKSPACE ROOT: %s
ACTIVE FOLDER: %s

AVAILABLE RESOURCES:
%s

Respond with a single JSON object matching this schema exactly:
%s
`

// Plan produces an initial Plan from a skill manual and user query.
func (p *Planner) Plan(ctx context.Context, input types.AtomicPlannerInput) (*types.Plan, error) {
	prompt := fmt.Sprintf(planPromptTemplate,
		input.Query, input.SkillManual, input.WorkspaceRoot, input.ActiveFolder,
		strings.Join(input.Resources, "\n"), outputSchema())

	resp, err := p.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("planner: generate plan: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner: empty response from model")
	}

	var out types.AtomicPlannerOutput
	if err := ParseStructured(resp.Choices[0].Content, &out); err != nil {
		return nil, fmt.Errorf("planner: parse plan output: %w", err)
	}

	return buildPlan(out), nil
}

const replanPromptTemplate = `You are the AtomicPlanner performing a self-healing replan. A step
failed and the plan must be revised around it.

CURRENT PLAN REASONING:
%s

FAILED STEP: %s (%s)
FAILURE REASON:
%s

SKILL MANUAL:
%s

Respond with a single JSON object matching this schema exactly, describing
the REVISED remaining steps (including a corrected version of the failed
step):
%s
`

// Replan revises the Plan after a step failed verification or was rejected
// by the Critic, splicing corrected steps in starting at the failed step.
func (p *Planner) Replan(ctx context.Context, input types.ReplanInput) (*types.Plan, error) {
	prompt := fmt.Sprintf(replanPromptTemplate,
		input.CurrentPlan.Reasoning, input.FailedStep.ID, input.FailedStep.Title,
		input.Reason, input.SkillManual, outputSchema())

	resp, err := p.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("planner: generate replan: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner: empty response from model")
	}

	var out types.AtomicPlannerOutput
	if err := ParseStructured(resp.Choices[0].Content, &out); err != nil {
		return nil, fmt.Errorf("planner: parse replan output: %w", err)
	}

	revised := buildPlan(out)
	return splice(input.CurrentPlan, input.FailedStep.ID, revised), nil
}

func buildPlan(out types.AtomicPlannerOutput) *types.Plan {
	for _, step := range out.Steps {
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		if step.Status == "" {
			step.Status = types.StepPending
		}
	}

	return &types.Plan{
		Steps:              out.Steps,
		Reasoning:          out.Reasoning,
		CompletionCriteria: deriveCompletionCriteria(out.Steps),
	}
}

// deriveCompletionCriteria derives CompletionCriteria from the produced
// steps rather than asking the LLM for it (spec.md §4.3): required_artifacts
// is the union of the final step's expected artifacts, falling back to the
// union across all steps if the final step names none; success_signals is
// always the fixed well-known token vocabulary.
func deriveCompletionCriteria(steps []*types.SkillStep) types.CompletionCriteria {
	criteria := types.CompletionCriteria{SuccessSignals: defaultSuccessSignals}
	if len(steps) == 0 {
		return criteria
	}

	last := steps[len(steps)-1]
	if len(last.ExpectedArtifacts) > 0 {
		criteria.RequiredArtifacts = append([]string{}, last.ExpectedArtifacts...)
		return criteria
	}

	seen := map[string]bool{}
	for _, step := range steps {
		for _, artifact := range step.ExpectedArtifacts {
			if !seen[artifact] {
				seen[artifact] = true
				criteria.RequiredArtifacts = append(criteria.RequiredArtifacts, artifact)
			}
		}
	}
	return criteria
}

// splice replaces every step from failedStepID onward with the revised
// plan's steps, preserving the already-done prefix. current_step_id
// monotonicity is intentionally broken only here, per spec.md's documented
// replan-splice exception.
func splice(current *types.Plan, failedStepID string, revised *types.Plan) *types.Plan {
	var prefix []*types.SkillStep
	for _, step := range current.Steps {
		if step.ID == failedStepID {
			break
		}
		prefix = append(prefix, step)
	}

	merged := append(prefix, revised.Steps...)
	return &types.Plan{
		Steps:              merged,
		Reasoning:          current.Reasoning + "\n\n[REPLAN] " + revised.Reasoning,
		CompletionCriteria: deriveCompletionCriteria(merged),
	}
}
