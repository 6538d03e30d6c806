// Package orchestrator wires the SkillRegistry, SessionMemory, Planner,
// StepExecutor, Verifier, Critic/TechLead and Telemetry into the mission
// control loop: discovery -> planning -> per-step execution -> self-healing
// -> completion. Grounded on orchestrator/orchestrator.py's Orchestrator.run
// and its _enforce_required_scripts/_is_script_step helpers.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"mcp-agent/agent_go/pkg/critic"
	"mcp-agent/agent_go/pkg/errors"
	"mcp-agent/agent_go/pkg/events"
	"mcp-agent/agent_go/pkg/executor"
	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/memory"
	"mcp-agent/agent_go/pkg/planner"
	"mcp-agent/agent_go/pkg/skills"
	"mcp-agent/agent_go/pkg/telemetry"
	"mcp-agent/agent_go/pkg/types"
	"mcp-agent/agent_go/pkg/verifier"
)

// MaxStepRetries is the orchestrator-level retry budget per step, matching
// orchestrator.py's max_retries = 2 (three attempts total).
const MaxStepRetries = 2

// TechLeadEscalationThreshold is the consecutive-same-step rejection count
// that triggers a Tech Lead diagnosis before the next retry.
const TechLeadEscalationThreshold = 2

var scriptRefPattern = regexp.MustCompile(`scripts/([A-Za-z0-9._-]+\.(?:sh|py|js))`)

// Orchestrator drives one end-to-end mission run.
type Orchestrator struct {
	skillsReg  *skills.Registry
	mem        *memory.SessionMemory
	planner    *planner.Planner
	executor   *executor.StepExecutor
	verifier   *verifier.Verifier
	criticR    *critic.Critic
	techLead   *critic.TechLead
	telem      *telemetry.Telemetry
	states     *StateManager
	completion *CompletionChecker
	log        logger.Logger
}

// New assembles an Orchestrator from its already-constructed components.
func New(
	skillsReg *skills.Registry,
	mem *memory.SessionMemory,
	planner *planner.Planner,
	executor *executor.StepExecutor,
	verifier *verifier.Verifier,
	criticR *critic.Critic,
	techLead *critic.TechLead,
	telem *telemetry.Telemetry,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		skillsReg:  skillsReg,
		mem:        mem,
		planner:    planner,
		executor:   executor,
		verifier:   verifier,
		criticR:    criticR,
		techLead:   techLead,
		telem:      telem,
		states:     NewStateManager(),
		completion: NewCompletionChecker(mem),
		log:        log,
	}
}

// Run executes the full mission lifecycle for query, returning the final
// execution summary for callers that want to report on it (e.g. cmd/run).
func (o *Orchestrator) Run(ctx context.Context, query string) (ExecutionSummary, error) {
	o.telem.Info("orchestrator", events.OrchestratorStart, "", map[string]interface{}{"query": query})

	if _, err := o.states.TransitionTo(Discovery, "", "begin skill discovery"); err != nil {
		return o.fail(err)
	}

	skillName, err := o.discoverSkill(ctx, query)
	if err != nil {
		return o.fail(fmt.Errorf("discover skill: %w", err))
	}
	if skillName == "" {
		return o.fail(errors.New(errors.SkillNotFound, errors.SeverityCritical, false, "no matching skill found for query", nil))
	}

	skillManual, err := o.skillsReg.GetContent(skillName)
	if err != nil {
		return o.fail(fmt.Errorf("load skill content: %w", err))
	}
	resources, _ := o.skillsReg.ListResources(skillName)
	requiredScripts, _ := o.skillsReg.RequiredScripts(skillName)

	if _, err := o.states.TransitionTo(Planning, "", "plan atomic steps"); err != nil {
		return o.fail(err)
	}

	plan, err := o.planner.Plan(ctx, types.AtomicPlannerInput{
		Query:         query,
		SkillManual:   skillManual,
		WorkspaceRoot: o.mem.WorkspaceRoot,
		ActiveFolder:  o.mem.ActiveFolder(),
		Resources:     resources,
	})
	if err != nil {
		return o.fail(fmt.Errorf("plan atomic steps: %w", err))
	}
	plan.Steps = enforceRequiredScripts(plan.Steps, requiredScripts)
	assignSkillManual(plan.Steps, skillManual)
	if err := o.mem.SetPlan(plan); err != nil {
		return o.fail(err)
	}
	o.telem.Info("orchestrator", events.PlanCreated, "", map[string]interface{}{"step_count": len(plan.Steps)})

	if _, err := o.states.TransitionTo(Executing, "", "begin execution loop"); err != nil {
		return o.fail(err)
	}

	stepIdx := 0
	for stepIdx < len(plan.Steps) {
		step := plan.Steps[stepIdx]

		if done, reason := o.completion.IsComplete(ctx, plan.CompletionCriteria); done {
			o.log.Infof("orchestrator: completion criteria satisfied early before step %s: %s", step.ID, reason)
			o.telem.Info("orchestrator", events.CompletionCheck, step.ID, map[string]interface{}{"reason": reason})
			break
		}

		if err := o.mem.MarkStepActive(step.ID); err != nil {
			o.log.Warnf("orchestrator: mark step active: %v", err)
		}
		if err := o.mem.AdvanceStep(step.ID); err != nil {
			return o.fail(err)
		}
		o.telem.Info("orchestrator", events.StepStart, step.ID, map[string]interface{}{"title": step.Title})

		if err := o.ensureExecuting(step.ID, "begin step"); err != nil {
			return o.fail(err)
		}

		if isScriptStep(step) {
			done, scriptErr := o.runScriptStep(ctx, skillName, step, query)
			if scriptErr != nil {
				return o.fail(scriptErr)
			}
			if done {
				if err := o.mem.MarkStepDone(step.ID); err != nil {
					return o.fail(err)
				}
				o.telem.Info("orchestrator", events.StepEnd, step.ID, map[string]interface{}{"via": "script"})
				stepIdx++
				continue
			}
			o.log.Warnf("orchestrator: script step %s failed, falling through to LLM retry path", step.ID)
		}

		success, err := o.runLLMStep(ctx, skillName, plan, step, skillManual)
		if err != nil {
			return o.fail(err)
		}

		if success {
			if err := o.mem.MarkStepDone(step.ID); err != nil {
				return o.fail(err)
			}
			o.telem.Info("orchestrator", events.StepEnd, step.ID, map[string]interface{}{"via": "llm"})
			stepIdx++
			continue
		}

		o.log.Warnf("orchestrator: step %s failed after %d retries, initiating self-healing", step.ID, MaxStepRetries)
		if _, err := o.states.TransitionTo(SelfHealing, step.ID, "step exhausted retries"); err != nil {
			return o.fail(err)
		}
		o.telem.Warn("orchestrator", events.SelfHealStart, step.ID, nil)

		lastFeedback := lastFeedbackFor(o.mem.AgentFeedbackHistory, step.ID)
		revised, replanErr := o.planner.Replan(ctx, types.ReplanInput{
			CurrentPlan: plan,
			FailedStep:  step,
			Reason:      lastFeedback,
			SkillManual: skillManual,
		})
		if replanErr != nil || len(revised.Steps) == 0 {
			o.telem.Error("orchestrator", events.SelfHealEnd, step.ID, map[string]interface{}{"outcome": "failed"})
			return o.fail(errors.New(errors.SelfHealingFailed, errors.SeverityCritical, false, fmt.Sprintf("self-healing failed for step %s", step.ID), replanErr))
		}

		plan = revised
		assignSkillManual(plan.Steps, skillManual)
		if err := o.mem.SetPlan(plan); err != nil {
			return o.fail(err)
		}
		o.telem.Info("orchestrator", events.SelfHealEnd, step.ID, map[string]interface{}{"outcome": "replanned", "new_step_count": len(plan.Steps)})
		o.telem.Info("orchestrator", events.PlanReplaced, step.ID, nil)

		if _, err := o.states.TransitionTo(Executing, step.ID, "resume after replan"); err != nil {
			return o.fail(err)
		}
		// stepIdx is left unchanged: the spliced plan's first step occupies
		// the failed step's old slot and must run next, per orchestrator.py's
		// `continue` (no step_idx increment) after a successful replan.
	}

	if _, err := o.states.TransitionTo(Complete, "", "all steps done"); err != nil {
		return o.fail(err)
	}
	o.telem.Info("orchestrator", events.OrchestratorEnd, "", nil)
	return o.states.GetExecutionSummary(), nil
}

// ensureExecuting transitions into EXECUTING unless already there — the
// state machine has no EXECUTING->EXECUTING self-loop, so re-entering it at
// the top of every step (coming from CRITIQUING after an approval, or
// SELF_HEALING after a replan) needs this guard rather than an unconditional
// TransitionTo.
func (o *Orchestrator) ensureExecuting(stepID, reason string) error {
	if o.states.Current() == Executing {
		return nil
	}
	_, err := o.states.TransitionTo(Executing, stepID, reason)
	return err
}

func (o *Orchestrator) fail(cause error) (ExecutionSummary, error) {
	if o.states.Current() != Failed {
		if _, err := o.states.TransitionTo(Failed, "", cause.Error()); err != nil {
			o.log.Errorf("orchestrator: could not even transition to FAILED: %v", err)
		}
	}
	o.telem.Error("orchestrator", events.OrchestratorError, "", map[string]interface{}{"error": cause.Error()})
	return o.states.GetExecutionSummary(), cause
}

// discoverSkill asks the planner's model to pick a skill name given the
// registry's catalog, mirroring orchestrator.py's _discover_skill SKILL_NAME:
// regex contract but reusing the Planner's model rather than a separate agent.
func (o *Orchestrator) discoverSkill(ctx context.Context, query string) (string, error) {
	catalog := o.skillsReg.List()
	if len(catalog) == 0 {
		return "", fmt.Errorf("orchestrator: no skills registered")
	}
	// A single unambiguous skill never needs a model round-trip.
	if len(catalog) == 1 {
		return catalog[0].Name, nil
	}

	var b strings.Builder
	for _, s := range catalog {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}
	prompt := fmt.Sprintf(`Given the available skills below, choose the single best match for the
user's request. Respond with exactly one line: "SKILL_NAME: <name>".

AVAILABLE SKILLS:
%s
REQUEST: %s
`, b.String(), query)

	model, ok := o.planner.Model()
	if !ok {
		return catalog[0].Name, nil
	}
	resp, err := model.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("orchestrator: empty discovery response")
	}
	match := regexp.MustCompile(`(?i)SKILL_NAME:\s*(.+)`).FindStringSubmatch(resp.Choices[0].Content)
	if match == nil {
		return catalog[0].Name, nil
	}
	name := strings.TrimSpace(match[1])
	if _, ok := o.skillsReg.Get(name); !ok {
		return catalog[0].Name, nil
	}
	return name, nil
}

// runScriptStep short-circuits LLM execution for a step that names a
// required script directly, matching orchestrator.py's script short-circuit.
// It returns done=true only on [SUCCESS]; a [FAILURE] falls through to the
// LLM retry path rather than aborting the mission outright.
func (o *Orchestrator) runScriptStep(ctx context.Context, skillName string, step *types.SkillStep, query string) (bool, error) {
	scriptName := extractScriptName(step)
	if scriptName == "" {
		return false, fmt.Errorf("orchestrator: script step %s names no script", step.ID)
	}
	args := extractScriptArgs(step, scriptName, query)

	result, err := o.skillsReg.RunScript(ctx, skillName, scriptName, args, o.mem.ActiveFolder())
	if err != nil {
		return false, fmt.Errorf("orchestrator: run script %s: %w", scriptName, err)
	}
	summary := result.Summary()
	o.log.Infof("orchestrator: script %s result: %.200s", scriptName, summary)

	if result.ExitCode != 0 || result.TimedOut {
		return false, nil
	}

	if strings.Contains(strings.ToLower(scriptName), "init") {
		if newRoot, ok := findNewestDir(o.mem.ActiveFolder()); ok {
			o.log.Infof("orchestrator: switching project root to %s", newRoot)
			if err := o.mem.SetProjectRoot(newRoot); err != nil {
				o.log.Warnf("orchestrator: could not switch project root: %v", err)
			}
		}
	}
	return true, nil
}

// runLLMStep drives the orchestrator-level retry loop around one
// StepExecutor attempt: verify -> decide -> critic gate, matching
// orchestrator.py's for attempt in range(max_retries + 1) block.
func (o *Orchestrator) runLLMStep(ctx context.Context, skillName string, plan *types.Plan, step *types.SkillStep, skillManual string) (bool, error) {
	retryFeedback := ""
	roadmap := renderRoadmap(plan)

	for attempt := 0; attempt <= MaxStepRetries; attempt++ {
		if err := o.ensureExecuting(step.ID, fmt.Sprintf("attempt %d", attempt)); err != nil {
			return false, err
		}

		result, err := o.executor.Execute(ctx, types.StepExecutorInput{
			Step:          step,
			ActiveFolder:  o.mem.ActiveFolder(),
			Roadmap:       roadmap,
			SkillManual:   skillManual,
			RetryFeedback: retryFeedback,
			Attempt:       attempt,
		}, skillName)
		if err != nil {
			return false, fmt.Errorf("orchestrator: step executor: %w", err)
		}
		if err := o.mem.SetStepOutput(step.ID, *result); err != nil {
			return false, err
		}

		if _, err := o.states.TransitionTo(Verifying, step.ID, "check reported artifacts"); err != nil {
			return false, err
		}
		o.telem.Info("orchestrator", events.VerificationStart, step.ID, nil)
		verification := o.verifier.VerifyArtifacts(result.FinalAnswer, step.ExpectedArtifacts)
		o.telem.Info("orchestrator", events.VerificationEnd, step.ID, map[string]interface{}{
			"verified": len(verification.Verified), "missing": len(verification.Missing), "hallucinated": len(verification.Hallucinated),
		})

		isScript := strings.Contains(strings.ToLower(step.Title), "script") || strings.Contains(strings.ToLower(step.Title), "run")
		explicitDone := result.Completed

		switch {
		case len(verification.Missing) > 0 && !isScript:
			o.telem.Warn("orchestrator", events.Hallucination, step.ID, map[string]interface{}{"missing": verification.Missing})
			retryFeedback = fmt.Sprintf("VALIDATION ERROR: missing required artifacts: %s", strings.Join(verification.Missing, ", "))
			if _, err := o.states.TransitionTo(Executing, step.ID, "retry after missing artifacts"); err != nil {
				return false, err
			}
			continue

		case len(verification.Hallucinated) > 0 && len(verification.Verified) == 0 && !isScript:
			o.telem.Warn("orchestrator", events.Hallucination, step.ID, map[string]interface{}{"hallucinated": verification.Hallucinated})
			retryFeedback = "VALIDATION ERROR: files were claimed but not found on disk."
			if _, err := o.states.TransitionTo(Executing, step.ID, "retry after hallucination"); err != nil {
				return false, err
			}
			continue

		case explicitDone || (len(verification.Missing) == 0 && len(step.ExpectedArtifacts) > 0) || isScript:
			if _, err := o.states.TransitionTo(Critiquing, step.ID, "technical audit"); err != nil {
				return false, err
			}
			approved, feedback, err := o.runCriticPhase(ctx, step, result.FinalAnswer, skillManual)
			if err != nil {
				return false, err
			}
			if approved {
				return true, nil
			}
			retryFeedback = fmt.Sprintf("CRITIC REJECTED your work. Feedback:\n%s\nFix these issues immediately.", feedback)
			if _, err := o.states.TransitionTo(Executing, step.ID, "retry after critic rejection"); err != nil {
				return false, err
			}

		default:
			retryFeedback = "Step was not marked complete, and no verification criteria were met."
			if _, err := o.states.TransitionTo(Executing, step.ID, "retry after incomplete step"); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// runCriticPhase runs the technical-keyword-gated Critic review, escalating
// to the Tech Lead when the same step has been rejected
// TechLeadEscalationThreshold times in a row.
func (o *Orchestrator) runCriticPhase(ctx context.Context, step *types.SkillStep, workerOutput, globalContext string) (bool, string, error) {
	o.telem.Info("orchestrator", events.CritiqueStart, step.ID, map[string]interface{}{"title": step.Title})

	input := types.CriticInput{
		StepID:            step.ID,
		StepTitle:         step.Title,
		ActiveFolder:      o.mem.ActiveFolder(),
		WorkerOutput:      workerOutput,
		GlobalContext:     globalContext,
		ProjectRoadmap:    renderRoadmapSnippet(o.mem),
		ExpectedArtifacts: step.ExpectedArtifacts,
	}

	out, err := o.criticR.Review(ctx, step.TaskInstruction+" "+step.Title, input)
	if err != nil {
		return false, "", fmt.Errorf("orchestrator: critic review: %w", err)
	}
	if err := o.mem.AppendFeedback(types.FeedbackEntry{StepID: step.ID, Approved: out.Approved, Feedback: out.Feedback, Timestamp: time.Now()}); err != nil {
		return false, "", err
	}
	o.telem.Info("orchestrator", events.CritiqueEnd, step.ID, map[string]interface{}{"approved": out.Approved})

	if out.Approved {
		return true, "", nil
	}

	streak := critic.RejectionStreak(o.mem.AgentFeedbackHistory, step.ID)
	if streak >= TechLeadEscalationThreshold && o.techLead != nil {
		history := rejectionMessages(o.mem.AgentFeedbackHistory, step.ID)
		advice, adviceErr := o.techLead.Advise(ctx, step, history, workerOutput)
		if adviceErr == nil {
			o.telem.Warn("orchestrator", events.TechLeadAdvice, step.ID, map[string]interface{}{"severity": advice.Severity})
			return false, fmt.Sprintf("%s\n\nTECH LEAD DIAGNOSIS: %s\nADVICE: %s", out.Feedback, advice.Diagnosis, advice.Advice), nil
		}
		o.log.Warnf("orchestrator: tech lead escalation failed: %v", adviceErr)
	}
	return false, out.Feedback, nil
}

func rejectionMessages(history []types.FeedbackEntry, stepID string) []string {
	var out []string
	for _, entry := range history {
		if entry.StepID == stepID && !entry.Approved {
			out = append(out, entry.Feedback)
		}
	}
	return out
}

func lastFeedbackFor(history []types.FeedbackEntry, stepID string) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].StepID == stepID {
			return history[i].Feedback
		}
	}
	return "step failed after exhausting retries"
}

// assignSkillManual snapshots the full skill manual text onto every step's
// SkillRawContext, so StepExecutor's context envelope (spec.md §4.4 step 1)
// can include it without each step re-reading the registry.
func assignSkillManual(steps []*types.SkillStep, manual string) {
	for _, step := range steps {
		step.SkillRawContext = manual
	}
}

func renderRoadmap(plan *types.Plan) string {
	var b strings.Builder
	for i, step := range plan.Steps {
		fmt.Fprintf(&b, "%d. [%s] %s (%s)\n", i+1, step.Status, step.Title, step.ID)
	}
	return b.String()
}

func renderRoadmapSnippet(mem *memory.SessionMemory) string {
	if mem.Plan == nil {
		return ""
	}
	return renderRoadmap(mem.Plan)
}

// enforceRequiredScripts ensures every script named in the skill manual is
// represented by an explicit step, in the manual's declared order, matching
// orchestrator.py's _enforce_required_scripts splice-and-reindex logic.
func enforceRequiredScripts(steps []*types.SkillStep, requiredScripts []string) []*types.SkillStep {
	if len(requiredScripts) == 0 {
		return steps
	}

	mentions := func(step *types.SkillStep, script string) bool {
		hay := strings.Join([]string{step.Title, step.TaskInstruction, step.TaskQuery, strings.Join(step.References, " ")}, " ")
		return strings.Contains(hay, script) || strings.Contains(hay, "scripts/"+script)
	}

	var out []*types.SkillStep
	i := 0
	for _, script := range requiredScripts {
		foundIdx := -1
		for idx := i; idx < len(steps); idx++ {
			if mentions(steps[idx], script) {
				foundIdx = idx
				break
			}
		}
		if foundIdx == -1 {
			out = append(out, &types.SkillStep{
				ID:              uuid.NewString(),
				Title:           fmt.Sprintf("Run required script: %s", script),
				TaskInstruction: fmt.Sprintf("Run required script scripts/%s.", script),
				TaskQuery:       fmt.Sprintf("Run `bash scripts/%s` in the project root.", script),
				References:      []string{"scripts/" + script},
				Content:         fmt.Sprintf("Execute scripts/%s as required by the skill manual.", script),
				Status:          types.StepPending,
			})
		} else {
			out = append(out, steps[i:foundIdx+1]...)
			i = foundIdx + 1
		}
	}
	if i < len(steps) {
		out = append(out, steps[i:]...)
	}
	return out
}

func isScriptStep(step *types.SkillStep) bool {
	refs := strings.Join(step.References, " ")
	return strings.Contains(refs, "scripts/") ||
		strings.Contains(step.TaskQuery, "scripts/") ||
		strings.Contains(strings.ToLower(step.Title), "script")
}

func extractScriptName(step *types.SkillStep) string {
	refs := strings.Join(step.References, " ")
	if m := scriptRefPattern.FindStringSubmatch(refs); m != nil {
		return m[1]
	}
	if m := scriptRefPattern.FindStringSubmatch(step.TaskQuery); m != nil {
		return m[1]
	}
	return ""
}

func extractScriptArgs(step *types.SkillStep, scriptName, query string) []string {
	pattern := regexp.MustCompile(regexp.QuoteMeta(scriptName) + `\s+([^\n` + "`" + `]+)`)
	if m := pattern.FindStringSubmatch(step.TaskQuery); m != nil {
		return strings.Fields(strings.TrimSpace(m[1]))
	}
	if strings.Contains(strings.ToLower(scriptName), "init") {
		return []string{deriveProjectName(query)}
	}
	return nil
}

var nonAlnumPattern = regexp.MustCompile(`[^A-Za-z0-9]+`)

func deriveProjectName(query string) string {
	base := strings.Trim(nonAlnumPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(query)), "-"), "-")
	if base == "" {
		return "web-artifact"
	}
	if len(base) > 32 {
		base = base[:32]
	}
	return base
}

var skipDirs = map[string]bool{".git": true, "node_modules": true, "__pycache__": true, ".agent": true}

// findNewestDir finds the most recently modified subdirectory of base,
// matching orchestrator.py's _find_newest_dir (used to pick up a freshly
// scaffolded project directory after an init script runs).
func findNewestDir(base string) (string, bool) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", false
	}
	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || skipDirs[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(base, e.Name()), modTime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime.After(candidates[j].modTime) })
	return candidates[0].path, true
}
