// Package executor implements the StepExecutor: it spawns an ephemeral
// worker for a single Plan step, drives the outer ReAct loop, and logs
// every tool call into SessionMemory. Grounded on
// orchestrator/step_executor.py (cycle structure, auto-write intervention)
// and the teacher's pkg/mcpagent/agent.go + react_reasoning.go generation
// loop, unified here into one Go StepExecutor.Execute rather than kept as a
// separate wrapped agent layer.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/mcpclient"
	"mcp-agent/agent_go/pkg/memory"
	"mcp-agent/agent_go/pkg/types"
)

// ReActMaxCycles is the outer loop bound (spec.md §4.4 ≈15).
const ReActMaxCycles = 15

// MaxReActSteps is the inner per-cycle tool-iteration bound (spec.md §4.4 ≈15).
const MaxReActSteps = 15

// ClipboardTokenBudget bounds how much of the recency working set is
// embedded in the context envelope, counted with tiktoken-go so the budget
// reflects actual model tokenization rather than a crude byte/char cap.
const ClipboardTokenBudget = 4000

// RecencyLookbackSteps bounds the clipboard working set to files read in the
// last two steps (spec.md §4.4), rather than the entire clipboard.
const RecencyLookbackSteps = 2

const statusUpdatePrompt = "Status Update: Continue execution. If done, output [STEP_COMPLETE]."

const subagentInstructionTemplate = `You are %s, an ephemeral worker executing one atomic step of a larger plan.

TASK:
%s

ACTIVE FOLDER: %s

PROJECT ROADMAP:
%s

SESSION MEMORY SNAPSHOT:
%s

EXPECTED ARTIFACTS:
%s

RECENT CLIPBOARD WORKING SET:
%s

SKILL MANUAL:
%s

Use the available tools to complete the task. When you have produced the
expected artifacts, report them as a JSON object with a "created_files" key,
and include the literal token [STEP_COMPLETE] in your final message.
`

// StepExecutor spawns and drives workers.
type StepExecutor struct {
	model  llms.Model
	tools  *mcpclient.Client
	mem    *memory.SessionMemory
	log    logger.Logger
	tokEnc *tiktoken.Tiktoken
}

// New creates a StepExecutor. tools may be nil when no MCP tool server is
// configured (the tool-server subprocess is out of scope per spec.md
// Non-goals; StepExecutor treats a nil client as "no tools available" rather
// than failing).
func New(model llms.Model, tools *mcpclient.Client, mem *memory.SessionMemory, log logger.Logger) *StepExecutor {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &StepExecutor{model: model, tools: tools, mem: mem, log: log, tokEnc: enc}
}

// Execute runs one attempt of a single step through the outer ReAct loop.
func (e *StepExecutor) Execute(ctx context.Context, input types.StepExecutorInput, skillName string) (*types.StepExecutorOutput, error) {
	workerName := fmt.Sprintf("Worker-%s-%s-%d-%s", skillName, input.Step.ID, input.Attempt, uuid.NewString()[:8])
	e.log.Infof("spawning worker %s in %s", workerName, input.ActiveFolder)

	snapshot, err := e.mem.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("executor: memory snapshot: %w", err)
	}
	expectations, _ := json.MarshalIndent(input.Step.ExpectedArtifacts, "", "  ")

	staticInstruction := fmt.Sprintf(subagentInstructionTemplate,
		workerName, input.Step.TaskInstruction, input.ActiveFolder, input.Roadmap,
		snapshot, string(expectations), e.clipboardWorkingSet(), input.SkillManual)

	if input.RetryFeedback != "" {
		staticInstruction += fmt.Sprintf("\n\n[PREVIOUS FAILURE]: %s\n", input.RetryFeedback)
	}

	userPrompt := fmt.Sprintf("Step %s: %s\n\n%s\n\nContext:\n%s",
		input.Step.ID, input.Step.Title, input.Step.Content, input.Roadmap)

	history := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, staticInstruction),
	}

	output := &types.StepExecutorOutput{StepID: input.Step.ID}

	for cycle := 1; cycle <= ReActMaxCycles; cycle++ {
		prompt := userPrompt
		if cycle > 1 {
			prompt = statusUpdatePrompt
		}
		history = append(history, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

		response, toolCalls, genErr := e.runInnerLoop(ctx, history, input.Step.ID, cycle)
		if genErr != nil {
			e.log.Errorf("worker %s cycle %d error: %v", workerName, cycle, genErr)
			output.FinalAnswer += fmt.Sprintf("\nError: %v", genErr)
			output.CyclesUsed = cycle
			break
		}

		history = append(history, llms.TextParts(llms.ChatMessageTypeAI, response))
		output.FinalAnswer = response
		output.ToolCalls = append(output.ToolCalls, toolCalls...)
		output.CyclesUsed = cycle

		if strings.Contains(response, "```") && !containsToolCall(toolCalls, "write_file") {
			e.log.Infof("worker %s cycle %d: auto-write nudge (code without write_file)", workerName, cycle)
			nudgeResponse, nudgeCalls, nudgeErr := e.runInnerLoop(ctx, append(history, llms.TextParts(llms.ChatMessageTypeHuman, AutoWritePrompt)), input.Step.ID, cycle)
			if nudgeErr == nil {
				history = append(history, llms.TextParts(llms.ChatMessageTypeHuman, AutoWritePrompt), llms.TextParts(llms.ChatMessageTypeAI, nudgeResponse))
				output.ToolCalls = append(output.ToolCalls, nudgeCalls...)
				output.FinalAnswer = nudgeResponse
			}
		}

		if strings.Contains(response, "[STEP_COMPLETE]") {
			output.Completed = true
			break
		}
	}

	return output, nil
}

func containsToolCall(calls []types.ToolCallRecord, tool string) bool {
	for _, c := range calls {
		if c.Tool == tool {
			return true
		}
	}
	return false
}

// clipboardWorkingSet renders the recency-bounded working set of files read
// in the last RecencyLookbackSteps steps (spec.md §4.4) — not the entire
// clipboard — truncated to ClipboardTokenBudget tokens so the context
// envelope doesn't grow unbounded across a long-running step.
func (e *StepExecutor) clipboardWorkingSet() string {
	paths := e.mem.GetRecentFilePaths(RecencyLookbackSteps)
	subset := e.mem.GetClipboardSubset(paths)
	if len(subset) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	budget := ClipboardTokenBudget
	for _, path := range paths {
		content, ok := subset[path]
		if !ok {
			continue
		}
		entry := fmt.Sprintf("### %s\n%s\n\n", path, content)
		used := e.countTokens(entry)
		if used > budget {
			remaining := e.truncateToTokens(entry, budget)
			b.WriteString(remaining)
			break
		}
		b.WriteString(entry)
		budget -= used
	}
	return b.String()
}

func (e *StepExecutor) countTokens(text string) int {
	if e.tokEnc == nil {
		return len(text) / 4
	}
	return len(e.tokEnc.Encode(text, nil, nil))
}

func (e *StepExecutor) truncateToTokens(text string, budget int) string {
	if e.tokEnc == nil {
		maxChars := budget * 4
		if maxChars >= len(text) {
			return text
		}
		return text[:maxChars] + "...(truncated)"
	}
	tokens := e.tokEnc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return e.tokEnc.Decode(tokens[:budget]) + "...(truncated)"
}
