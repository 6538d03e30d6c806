// Package critic implements the Critic: a technical-keyword gated LLM
// auditor that reviews a worker's output against its step's expectations
// and either [APPROVED]s or [REJECTED]s it. Grounded on structs.py's
// CriticInput.to_xml() (the literal XML template reproduced here) and
// orchestrator.py's critic-gate wiring.
package critic

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/types"
)

var technicalKeywordPattern = regexp.MustCompile(`(?i)\b(develop|code|build|script|implement|create)\b`)

// IsTechnical reports whether a step's instruction contains a technical
// keyword warranting Critic review at all. Non-technical steps auto-approve
// without spending an LLM call.
func IsTechnical(taskInstruction string) bool {
	return technicalKeywordPattern.MatchString(taskInstruction)
}

const criticPromptTemplate = `You are a Senior Technical Critic reviewing a worker's completed step.
Respond with [APPROVED] if the work genuinely satisfies the step's
expectations, or [REJECTED] followed by specific, actionable feedback if it
does not.

%s
`

// Critic audits StepExecutor output.
type Critic struct {
	model llms.Model
	log   logger.Logger
}

// New creates a Critic backed by an LLM model.
func New(model llms.Model, log logger.Logger) *Critic {
	return &Critic{model: model, log: log}
}

// toXML reproduces structs.py's CriticInput.to_xml() layout verbatim.
func toXML(input types.CriticInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<CriticContext>\n")
	fmt.Fprintf(&b, "<StepID>%s</StepID>\n", input.StepID)
	fmt.Fprintf(&b, "<StepTitle>%s</StepTitle>\n", input.StepTitle)
	fmt.Fprintf(&b, "<ActiveFolder>%s</ActiveFolder>\n", input.ActiveFolder)
	fmt.Fprintf(&b, "<WorkerOutput>\n%s\n</WorkerOutput>\n", orNone(input.WorkerOutput))
	fmt.Fprintf(&b, "<GlobalContext>\n%s\n</GlobalContext>\n", orNone(input.GlobalContext))
	fmt.Fprintf(&b, "<ProjectRoadmap>\n%s\n</ProjectRoadmap>\n", orNone(input.ProjectRoadmap))
	fmt.Fprintf(&b, "<ExpectedArtifacts>%s</ExpectedArtifacts>\n", strings.Join(input.ExpectedArtifacts, ", "))
	b.WriteString("</CriticContext>")
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "(None)"
	}
	return s
}

// Review audits one step's output. If taskInstruction carries no technical
// keyword, it auto-approves without an LLM call.
func (c *Critic) Review(ctx context.Context, taskInstruction string, input types.CriticInput) (types.CriticOutput, error) {
	if !IsTechnical(taskInstruction) {
		c.log.Infof("critic: step %s auto-approved (non-technical)", input.StepID)
		return types.CriticOutput{Approved: true, Feedback: "auto-approved: non-technical step"}, nil
	}

	prompt := fmt.Sprintf(criticPromptTemplate, toXML(input))
	resp, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return types.CriticOutput{}, fmt.Errorf("critic: generate review: %w", err)
	}
	if len(resp.Choices) == 0 {
		return types.CriticOutput{}, fmt.Errorf("critic: empty response from model")
	}

	decision := resp.Choices[0].Content
	approved := strings.Contains(decision, "[APPROVED]")
	rejected := strings.Contains(decision, "[REJECTED]")

	if !approved && !rejected {
		c.log.Warnf("critic: step %s produced an undecided verdict, treating as rejected", input.StepID)
		return types.CriticOutput{Approved: false, Feedback: decision}, nil
	}

	feedback := decision
	if rejected {
		feedback = strings.TrimSpace(strings.Replace(decision, "[REJECTED]", "", 1))
	}
	return types.CriticOutput{Approved: approved && !rejected, Feedback: feedback}, nil
}
