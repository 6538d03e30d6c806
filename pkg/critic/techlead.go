package critic

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/planner"
	"mcp-agent/agent_go/pkg/types"
)

const techLeadInstructionTemplate = `You are a SENIOR TECHNICAL LEAD (the "Active Debugger"). Your junior
engineer (the worker) is stuck: the same step has been rejected %d times in
a row. Your goal is to unblock them with specific, technical advice.

STEP: %s (%s)

REJECTION HISTORY:
%s

RECENT WORKER OUTPUT:
%s

Diagnose the root cause precisely — do not say "check the logs"; name the
exact file, line, or command that is wrong and what to change it to.

Respond with a single JSON object:
{"diagnosis": "...", "advice": "...", "severity": "info|warning|critical"}
`

// TechLead is the bounded escalation persona invoked after repeated
// same-step Critic rejections. It never replaces the worker's own system
// prompt — it only feeds the next retry's feedback, per SPEC_FULL.md §10's
// resolution of the persona-routing Open Question.
type TechLead struct {
	model llms.Model
}

// NewTechLead creates a TechLead backed by an LLM model.
func NewTechLead(model llms.Model) *TechLead {
	return &TechLead{model: model}
}

// Advise produces a root-cause diagnosis for a step that has failed Critic
// review repeatedly.
func (t *TechLead) Advise(ctx context.Context, step *types.SkillStep, rejectionHistory []string, workerOutput string) (types.TechLeadOutput, error) {
	prompt := fmt.Sprintf(techLeadInstructionTemplate,
		len(rejectionHistory), step.ID, step.Title, strings.Join(rejectionHistory, "\n---\n"), workerOutput)

	resp, err := t.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return types.TechLeadOutput{}, fmt.Errorf("techlead: generate advice: %w", err)
	}
	if len(resp.Choices) == 0 {
		return types.TechLeadOutput{}, fmt.Errorf("techlead: empty response from model")
	}

	var out types.TechLeadOutput
	if err := planner.ParseStructured(resp.Choices[0].Content, &out); err != nil {
		return types.TechLeadOutput{Diagnosis: "unknown issue", Advice: "review the error logs and retry", Severity: "warning"}, nil
	}
	if out.Diagnosis == "" {
		out.Diagnosis = "unknown issue"
	}
	if out.Advice == "" {
		out.Advice = "review the error logs and retry"
	}
	if out.Severity == "" {
		out.Severity = "warning"
	}
	return out, nil
}

// RejectionStreak counts how many times stepID has been rejected in a row
// at the tail of the feedback history (stops at the first approval or a
// different step).
func RejectionStreak(history []types.FeedbackEntry, stepID string) int {
	streak := 0
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.StepID != stepID {
			break
		}
		if entry.Approved {
			break
		}
		streak++
	}
	return streak
}
