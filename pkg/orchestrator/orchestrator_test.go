package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/critic"
	"mcp-agent/agent_go/pkg/executor"
	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/memory"
	"mcp-agent/agent_go/pkg/planner"
	"mcp-agent/agent_go/pkg/skills"
	"mcp-agent/agent_go/pkg/telemetry"
	"mcp-agent/agent_go/pkg/types"
	"mcp-agent/agent_go/pkg/verifier"
)

// scriptedModel replays a fixed sequence of responses by call index, clamping
// at the last entry once exhausted, with an optional per-call side effect
// (used to simulate a worker's tool calls writing a file to disk).
type scriptedModel struct {
	responses []string
	onCall    func(idx int)
	calls     int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	if m.onCall != nil {
		m.onCall(idx)
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.responses[idx]}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

// unusedModel fails the test if it is ever called, for asserting that a
// component (typically the Critic or TechLead) is skipped entirely.
type unusedModel struct{ t *testing.T }

func (m *unusedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.t.Fatal("model should not have been called")
	return nil, nil
}

func (m *unusedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	m.t.Fatal("model should not have been called")
	return "", nil
}

// newTestSkill writes a single-skill registry rooted at a fresh temp dir,
// with manualBody embedded after the YAML frontmatter so scripts/ references
// inside it populate RequiredScripts the way a real SKILL.md would.
func newTestSkill(t *testing.T, name, manualBody string) *skills.Registry {
	t.Helper()
	skillsDir := t.TempDir()
	skillDir := filepath.Join(skillsDir, name)
	require.NoError(t, os.MkdirAll(skillDir, 0755))
	manual := fmt.Sprintf("---\nname: %s\ndescription: test skill for orchestrator\n---\n\n%s\n", name, manualBody)
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(manual), 0644))

	reg, err := skills.NewRegistry(skillsDir, logger.CreateTestLogger("", "info"))
	require.NoError(t, err)
	return reg
}

func planResponse(t *testing.T, steps []*types.SkillStep, reasoning string) string {
	t.Helper()
	out := types.AtomicPlannerOutput{Steps: steps, Reasoning: reasoning}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	return string(data)
}

func newOrchestrator(
	skillsReg *skills.Registry,
	mem *memory.SessionMemory,
	plannerModel, executorModel, criticModel, techLeadModel llms.Model,
) *Orchestrator {
	log := logger.CreateTestLogger("", "info")
	pl := planner.New(plannerModel, log)
	exec := executor.New(executorModel, nil, mem, log)
	ver := verifier.New(mem, log)
	crit := critic.New(criticModel, log)
	techLead := critic.NewTechLead(techLeadModel)
	telem := telemetry.New(os.Stderr, nil, nil)
	return New(skillsReg, mem, pl, exec, ver, crit, techLead, telem, log)
}

func TestRunHappyPathSingleStep(t *testing.T) {
	skillsReg := newTestSkill(t, "summarizer", "Summarize the input text.")
	workspace := t.TempDir()
	mem, err := memory.New(workspace)
	require.NoError(t, err)

	step := &types.SkillStep{
		ID:              "s1",
		Title:           "Summarize results",
		TaskInstruction: "Summarize the findings in plain prose",
	}
	plannerModel := &scriptedModel{responses: []string{planResponse(t, []*types.SkillStep{step}, "one summarization step")}}
	executorModel := &scriptedModel{responses: []string{"Here is the summary. [STEP_COMPLETE]"}}
	criticModel := &unusedModel{t: t}
	techLeadModel := &unusedModel{t: t}

	orch := newOrchestrator(skillsReg, mem, plannerModel, executorModel, criticModel, techLeadModel)
	summary, err := orch.Run(context.Background(), "summarize this document")
	require.NoError(t, err)
	assert.Equal(t, Complete, summary.CurrentState)
	assert.Equal(t, 1, plannerModel.calls)
	assert.Equal(t, 1, executorModel.calls)
}

func TestRunScriptStepShortCircuits(t *testing.T) {
	manual := "Run the setup script first: scripts/setup.sh"
	skillsDir := t.TempDir()
	skillDir := filepath.Join(skillsDir, "bootstrapper")
	require.NoError(t, os.MkdirAll(filepath.Join(skillDir, "scripts"), 0755))
	manualContent := fmt.Sprintf("---\nname: bootstrapper\ndescription: test skill with a script\n---\n\n%s\n", manual)
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(manualContent), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "scripts", "setup.sh"), []byte("#!/bin/bash\necho initialized\nexit 0\n"), 0755))

	skillsReg, err := skills.NewRegistry(skillsDir, logger.CreateTestLogger("", "info"))
	require.NoError(t, err)

	workspace := t.TempDir()
	mem, err := memory.New(workspace)
	require.NoError(t, err)

	step := &types.SkillStep{
		ID:         "s1",
		Title:      "Run setup script",
		TaskQuery:  "Run `bash scripts/setup.sh` to initialize the project.",
		References: []string{"scripts/setup.sh"},
	}
	plannerModel := &scriptedModel{responses: []string{planResponse(t, []*types.SkillStep{step}, "one script step")}}
	executorModel := &unusedModel{t: t}
	criticModel := &unusedModel{t: t}
	techLeadModel := &unusedModel{t: t}

	orch := newOrchestrator(skillsReg, mem, plannerModel, executorModel, criticModel, techLeadModel)
	summary, err := orch.Run(context.Background(), "bootstrap the project")
	require.NoError(t, err)
	assert.Equal(t, Complete, summary.CurrentState)
}

func TestRunRetriesOnMissingArtifactThenSucceeds(t *testing.T) {
	skillsReg := newTestSkill(t, "reporter", "Produce the final report file.")
	workspace := t.TempDir()
	mem, err := memory.New(workspace)
	require.NoError(t, err)

	step := &types.SkillStep{
		ID:                "s1",
		Title:             "Generate output",
		TaskInstruction:   "Generate the summary output",
		ExpectedArtifacts: []string{"output.txt"},
	}
	plannerModel := &scriptedModel{responses: []string{planResponse(t, []*types.SkillStep{step}, "one reporting step")}}

	outputPath := filepath.Join(workspace, "output.txt")
	executorModel := &scriptedModel{
		responses: []string{
			"Report written. [STEP_COMPLETE]",
			"Wrote the report. [STEP_COMPLETE]",
		},
		onCall: func(idx int) {
			if idx == 1 {
				require.NoError(t, os.WriteFile(outputPath, []byte("report body"), 0644))
			}
		},
	}
	criticModel := &unusedModel{t: t}
	techLeadModel := &unusedModel{t: t}

	orch := newOrchestrator(skillsReg, mem, plannerModel, executorModel, criticModel, techLeadModel)
	summary, err := orch.Run(context.Background(), "write me a report")
	require.NoError(t, err)
	assert.Equal(t, Complete, summary.CurrentState)
	assert.Equal(t, 2, executorModel.calls)
}

func TestRunCriticRejectsThenApproves(t *testing.T) {
	skillsReg := newTestSkill(t, "builder", "Implement the requested feature.")
	workspace := t.TempDir()
	mem, err := memory.New(workspace)
	require.NoError(t, err)

	step := &types.SkillStep{
		ID:              "s1",
		Title:           "Implement feature",
		TaskInstruction: "Implement the calculator function",
	}
	plannerModel := &scriptedModel{responses: []string{planResponse(t, []*types.SkillStep{step}, "one implementation step")}}
	executorModel := &scriptedModel{responses: []string{
		"First attempt done. [STEP_COMPLETE]",
		"Fixed it. [STEP_COMPLETE]",
	}}
	criticModel := &scriptedModel{responses: []string{
		"[REJECTED] the function has an off-by-one bug",
		"[APPROVED] looks correct now",
	}}
	techLeadModel := &unusedModel{t: t}

	orch := newOrchestrator(skillsReg, mem, plannerModel, executorModel, criticModel, techLeadModel)
	summary, err := orch.Run(context.Background(), "build the calculator")
	require.NoError(t, err)
	assert.Equal(t, Complete, summary.CurrentState)
	assert.Equal(t, 2, executorModel.calls)
	assert.Equal(t, 2, criticModel.calls)
}

func TestRunSelfHealsAfterExhaustingRetries(t *testing.T) {
	skillsReg := newTestSkill(t, "reporter", "Produce the final report file.")
	workspace := t.TempDir()
	mem, err := memory.New(workspace)
	require.NoError(t, err)

	failingStep := &types.SkillStep{
		ID:                "s1",
		Title:             "Generate report",
		TaskInstruction:   "Generate the summary output",
		ExpectedArtifacts: []string{"final.txt"},
	}
	replacementStep := &types.SkillStep{
		ID:              "s1-fixed",
		Title:           "Generate a shorter report",
		TaskInstruction: "Generate a short summary output instead",
	}

	plannerModel := &scriptedModel{responses: []string{
		planResponse(t, []*types.SkillStep{failingStep}, "one reporting step"),
		planResponse(t, []*types.SkillStep{replacementStep}, "revised after failure"),
	}}
	executorModel := &scriptedModel{responses: []string{
		"Report written. [STEP_COMPLETE]",
		"Report written. [STEP_COMPLETE]",
		"Report written. [STEP_COMPLETE]",
		"Shorter summary delivered. [STEP_COMPLETE]",
	}}
	criticModel := &unusedModel{t: t}
	techLeadModel := &unusedModel{t: t}

	orch := newOrchestrator(skillsReg, mem, plannerModel, executorModel, criticModel, techLeadModel)
	summary, err := orch.Run(context.Background(), "write me a report")
	require.NoError(t, err)
	assert.Equal(t, Complete, summary.CurrentState)
	assert.Equal(t, 1, summary.RecoveryCount)
	assert.Equal(t, 2, plannerModel.calls)
	assert.Equal(t, 4, executorModel.calls)
}
