package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mcp-agent/agent_go/pkg/memory"
	"mcp-agent/agent_go/pkg/types"
)

// commandCheckTimeout bounds each CompletionCriteria.CommandChecks
// invocation, matching completion_checker.py's subprocess.run(..., timeout=5).
const commandCheckTimeout = 5 * time.Second

// CompletionChecker implements the early-exit check (spec.md §4.8):
// evaluated before each step, it lets a resumed session skip straight to
// COMPLETE when the plan's goal is already satisfied. Grounded on
// completion_checker.py's CompletionChecker.is_complete, which checks
// artifacts, then signals, then commands, in that priority order.
type CompletionChecker struct {
	mem *memory.SessionMemory
}

// NewCompletionChecker builds a checker reading against mem.
func NewCompletionChecker(mem *memory.SessionMemory) *CompletionChecker {
	return &CompletionChecker{mem: mem}
}

// IsComplete evaluates criteria and returns (true, reason) on the first
// satisfied check, or (false, "") if nothing short-circuits.
func (c *CompletionChecker) IsComplete(ctx context.Context, criteria types.CompletionCriteria) (bool, string) {
	if criteria.IsEmpty() {
		return false, ""
	}
	if done, reason := c.checkArtifacts(criteria.RequiredArtifacts); done {
		return true, reason
	}
	if done, reason := c.checkSignals(criteria.SuccessSignals); done {
		return true, reason
	}
	if done, reason := c.checkCommands(ctx, criteria.CommandChecks); done {
		return true, reason
	}
	return false, ""
}

// checkArtifacts reports complete if any required artifact already exists
// (non-empty) relative to the active folder.
func (c *CompletionChecker) checkArtifacts(required []string) (bool, string) {
	for _, rel := range required {
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.mem.ActiveFolder(), rel)
		}
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return true, fmt.Sprintf("required artifact already exists: %s", rel)
		}
	}
	return false, ""
}

// checkSignals scans tool_history results, then registered artifacts, for
// any of the well-known success tokens.
func (c *CompletionChecker) checkSignals(signals []string) (bool, string) {
	for _, entry := range c.mem.ToolHistory {
		lower := strings.ToLower(entry.Result)
		for _, signal := range signals {
			if strings.Contains(lower, strings.ToLower(signal)) {
				return true, fmt.Sprintf("success signal %q observed in tool history", signal)
			}
		}
	}
	for _, artifact := range c.mem.Artifacts {
		lower := strings.ToLower(artifact)
		for _, signal := range signals {
			if strings.Contains(lower, strings.ToLower(signal)) {
				return true, fmt.Sprintf("success signal %q observed in registered artifacts", signal)
			}
		}
	}
	return false, ""
}

// checkCommands runs each command via the shell in the active folder;
// exit 0 on any one of them counts as confirmation.
func (c *CompletionChecker) checkCommands(ctx context.Context, commands []string) (bool, string) {
	for _, cmdStr := range commands {
		timeoutCtx, cancel := context.WithTimeout(ctx, commandCheckTimeout)
		cmd := exec.CommandContext(timeoutCtx, "sh", "-c", cmdStr)
		cmd.Dir = c.mem.ActiveFolder()
		err := cmd.Run()
		cancel()
		if err == nil {
			return true, fmt.Sprintf("command check %q exited 0", cmdStr)
		}
	}
	return false, ""
}
