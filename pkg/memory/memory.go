// Package memory implements SessionMemory: the single mutable state blob the
// Orchestrator, StepExecutor, Verifier and Critic all read and write during
// one run. It is the sole shared state in the single-threaded cooperative
// execution model — no locking is needed because nothing runs concurrently
// with it (spec.md §5).
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mcp-agent/agent_go/pkg/types"
)

const stateFileName = ".agent_state.json"

// SessionMemory is the unified schema: workspace_root/cwd_rel/project_root
// plus the richer bookkeeping fields (clipboard, tool_history,
// agent_feedback_history, plan, env_vars, step_outputs) from the
// orchestrator's structs.SessionMemory dataclass. See SPEC_FULL.md §10 for
// why the richer schema won out over the simplified variant.
type SessionMemory struct {
	WorkspaceRoot        string                       `json:"workspace_root"`
	CwdRel               string                       `json:"cwd_rel"`
	ProjectRoot          string                       `json:"project_root"`
	Artifacts            []string                     `json:"artifacts"`
	Clipboard            map[string]string            `json:"clipboard"`
	ToolHistory          []types.ToolCallRecord       `json:"tool_history"`
	AgentFeedbackHistory []types.FeedbackEntry        `json:"agent_feedback_history"`
	Plan                 *types.Plan                  `json:"plan,omitempty"`
	CurrentStepID        string                       `json:"current_step_id"`
	Logs                 []types.LogEntry             `json:"logs"`
	EnvVars              map[string]string             `json:"env_vars"`
	StepOutputs          map[string]types.StepExecutorOutput `json:"step_outputs"`

	path string
}

// New creates a fresh SessionMemory rooted at workspaceRoot and persists it
// immediately so the state file exists from the first mutation onward.
func New(workspaceRoot string) (*SessionMemory, error) {
	absRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("memory: resolve workspace root: %w", err)
	}
	m := &SessionMemory{
		WorkspaceRoot:        absRoot,
		CwdRel:               ".",
		ProjectRoot:          absRoot,
		Artifacts:            []string{},
		Clipboard:            map[string]string{},
		ToolHistory:          []types.ToolCallRecord{},
		AgentFeedbackHistory: []types.FeedbackEntry{},
		Logs:                 []types.LogEntry{},
		EnvVars:              map[string]string{},
		StepOutputs:          map[string]types.StepExecutorOutput{},
		path:                 filepath.Join(absRoot, stateFileName),
	}
	if err := m.persist(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load rehydrates a SessionMemory from {workspace}/.agent_state.json. If the
// persisted workspace_root doesn't match workspaceRoot (the workspace was
// moved, or a stale state file from a different run is present), it resets
// to a fresh SessionMemory instead of trusting mismatched state.
func Load(workspaceRoot string) (*SessionMemory, error) {
	absRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("memory: resolve workspace root: %w", err)
	}
	path := filepath.Join(absRoot, stateFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(workspaceRoot)
		}
		return nil, fmt.Errorf("memory: read state file: %w", err)
	}

	var m SessionMemory
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("memory: parse state file: %w", err)
	}
	if m.WorkspaceRoot != absRoot {
		return New(workspaceRoot)
	}
	m.path = path
	if m.Clipboard == nil {
		m.Clipboard = map[string]string{}
	}
	if m.EnvVars == nil {
		m.EnvVars = map[string]string{}
	}
	if m.StepOutputs == nil {
		m.StepOutputs = map[string]types.StepExecutorOutput{}
	}
	return &m, nil
}

// persist writes the whole SessionMemory via temp-file-then-rename so a
// crash mid-write never leaves a truncated state file behind (spec.md §9
// recommends this; adopted here as the chosen resolution).
func (m *SessionMemory) persist() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal state: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("memory: write temp state file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("memory: rename temp state file: %w", err)
	}
	return nil
}

// ActiveFolder returns the absolute path of the current working directory
// within the workspace.
func (m *SessionMemory) ActiveFolder() string {
	return filepath.Join(m.WorkspaceRoot, m.CwdRel)
}

// SetActiveFolder changes the active folder, enforcing the invariant that
// active_folder stays inside workspace_root.
func (m *SessionMemory) SetActiveFolder(absPath string) error {
	rel, err := filepath.Rel(m.WorkspaceRoot, absPath)
	if err != nil {
		return fmt.Errorf("memory: compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("memory: active folder %s escapes workspace root %s", absPath, m.WorkspaceRoot)
	}
	m.CwdRel = rel
	return m.persist()
}

// SetProjectRoot records a new project root and aligns the active folder to
// it, matching the set_project_root(path) operation (spec.md §4.2). This is
// the method runScriptStep calls after an init script scaffolds a new
// directory, so ProjectRoot no longer sits permanently at the workspace root.
func (m *SessionMemory) SetProjectRoot(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("memory: resolve project root: %w", err)
	}
	m.ProjectRoot = abs
	return m.SetActiveFolder(abs)
}

var ignoredScanDirs = map[string]bool{".git": true, "node_modules": true, "__pycache__": true, ".venv": true, ".agent": true}

// UpdateActiveFolder matches the update_active_folder(new_dir?) operation
// (spec.md §4.2): with an explicit directory that exists, switch directly;
// called with an empty string, scan the workspace for the most recently
// modified non-ignored file and switch to its parent directory.
func (m *SessionMemory) UpdateActiveFolder(newDir string) error {
	if newDir != "" {
		info, err := os.Stat(newDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("memory: %s is not a directory", newDir)
		}
		return m.SetActiveFolder(newDir)
	}
	newest, ok := findNewestFile(m.WorkspaceRoot)
	if !ok {
		return nil
	}
	return m.SetActiveFolder(filepath.Dir(newest))
}

func findNewestFile(root string) (string, bool) {
	var newestPath string
	var newestMod time.Time
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || ignoredScanDirs[name] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(newestMod) {
			newestMod = info.ModTime()
			newestPath = path
		}
		return nil
	})
	if newestPath == "" {
		return "", false
	}
	return newestPath, true
}

// GetRoadmap renders a bounded-depth tree of the active folder (max depth 2,
// max 8 entries per directory, "…" truncation indicator), matching
// get_roadmap() (spec.md §4.2).
func (m *SessionMemory) GetRoadmap() string {
	return renderRoadmapTree(m.ActiveFolder(), 0, 2, 8)
}

func renderRoadmapTree(dir string, depth, maxDepth, maxEntries int) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	indent := strings.Repeat("  ", depth)
	shown := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || ignoredScanDirs[e.Name()] {
			continue
		}
		if shown >= maxEntries {
			b.WriteString(indent + "…\n")
			break
		}
		shown++
		if e.IsDir() {
			fmt.Fprintf(&b, "%s%s/\n", indent, e.Name())
			if depth+1 < maxDepth {
				b.WriteString(renderRoadmapTree(filepath.Join(dir, e.Name()), depth+1, maxDepth, maxEntries))
			}
			continue
		}
		fmt.Fprintf(&b, "%s%s\n", indent, e.Name())
	}
	return b.String()
}

// GetRecentFilePaths walks tool_history backward and returns the unique
// paths read via read_file/read_multiple_files across the lookbackSteps
// most recent distinct step ids, matching get_recent_file_paths(lookback_steps)
// (spec.md §4.2). This is the recency working set StepExecutor bounds its
// clipboard view to, instead of the full clipboard.
func (m *SessionMemory) GetRecentFilePaths(lookbackSteps int) []string {
	if lookbackSteps <= 0 {
		return nil
	}
	seenStep := map[string]bool{}
	distinctSteps := 0
	seenPath := map[string]bool{}
	var paths []string

	for i := len(m.ToolHistory) - 1; i >= 0; i-- {
		entry := m.ToolHistory[i]
		if !seenStep[entry.StepID] {
			if distinctSteps >= lookbackSteps {
				break
			}
			seenStep[entry.StepID] = true
			distinctSteps++
		}
		if entry.Tool != "read_file" && entry.Tool != "read_multiple_files" {
			continue
		}
		for _, p := range readToolPaths(entry.Arguments) {
			if p == "" || seenPath[p] {
				continue
			}
			seenPath[p] = true
			paths = append(paths, p)
		}
	}
	return paths
}

// readToolPaths extracts the file path(s) a read_file/read_multiple_files
// tool call was issued with, from its loosely-typed arguments map.
func readToolPaths(args map[string]interface{}) []string {
	var out []string
	if p, ok := args["path"].(string); ok && p != "" {
		out = append(out, p)
	}
	switch v := args["paths"].(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// GetClipboardSubset returns the clipboard entries matching any of the given
// paths, tried under relative-to-workspace, absolute, and as-given forms,
// matching get_clipboard_subset(paths) (spec.md §4.2).
func (m *SessionMemory) GetClipboardSubset(paths []string) map[string]string {
	subset := map[string]string{}
	for _, p := range paths {
		if content, ok := m.Clipboard[p]; ok {
			subset[p] = content
			continue
		}
		if !filepath.IsAbs(p) {
			if content, ok := m.Clipboard[filepath.Join(m.WorkspaceRoot, p)]; ok {
				subset[p] = content
				continue
			}
		}
		if rel, err := filepath.Rel(m.WorkspaceRoot, p); err == nil {
			if content, ok := m.Clipboard[rel]; ok {
				subset[p] = content
			}
		}
	}
	return subset
}

// RegisterArtifact records a newly verified artifact. The invariant that
// every registered artifact exists on disk at registration time is the
// caller's responsibility (the Verifier is the only caller in practice) —
// this method still defends it so a bug elsewhere can't silently corrupt
// state.
func (m *SessionMemory) RegisterArtifact(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("memory: artifact %s does not exist: %w", path, err)
	}
	for _, existing := range m.Artifacts {
		if existing == path {
			return nil
		}
	}
	m.Artifacts = append(m.Artifacts, path)
	return m.persist()
}

// CaptureClipboard records the content of a successfully read file. Only
// single-path read_file/read_multiple_files observations populate this —
// the invariant is clipboard[p] reflects a successful read, never a failed
// or partial one.
func (m *SessionMemory) CaptureClipboard(path, content string) error {
	m.Clipboard[path] = content
	return m.persist()
}

// AppendToolCall logs one tool invocation into tool_history, strictly
// ordered by (step_id, cycle, issue-order) per the concurrency model.
func (m *SessionMemory) AppendToolCall(record types.ToolCallRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	m.ToolHistory = append(m.ToolHistory, record)
	return m.persist()
}

// AppendFeedback logs one Critic verdict into agent_feedback_history.
func (m *SessionMemory) AppendFeedback(entry types.FeedbackEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	m.AgentFeedbackHistory = append(m.AgentFeedbackHistory, entry)
	return m.persist()
}

// AppendLog records a free-form narrative breadcrumb distinct from the
// structured Telemetry stream.
func (m *SessionMemory) AppendLog(message string) error {
	m.Logs = append(m.Logs, types.LogEntry{Timestamp: time.Now(), Message: message})
	return m.persist()
}

// SetPlan installs a new (or replaced) Plan.
func (m *SessionMemory) SetPlan(plan *types.Plan) error {
	m.Plan = plan
	return m.persist()
}

// AdvanceStep sets current_step_id to the given step. It is called once per
// executed step; a replan splice installs the revised plan through SetPlan.
func (m *SessionMemory) AdvanceStep(stepID string) error {
	m.CurrentStepID = stepID
	return m.persist()
}

// MarkStepDone transitions a step's status to done. status=done never
// regresses: calling this on an already-done step is a no-op, and there is
// deliberately no method to move a step back to pending or active once done.
func (m *SessionMemory) MarkStepDone(stepID string) error {
	if m.Plan == nil {
		return fmt.Errorf("memory: no plan installed")
	}
	for _, step := range m.Plan.Steps {
		if step.ID == stepID {
			if step.Status == types.StepDone {
				return nil
			}
			step.Status = types.StepDone
			return m.persist()
		}
	}
	return fmt.Errorf("memory: step %s not found in plan", stepID)
}

// MarkStepActive transitions a pending step to active.
func (m *SessionMemory) MarkStepActive(stepID string) error {
	if m.Plan == nil {
		return fmt.Errorf("memory: no plan installed")
	}
	for _, step := range m.Plan.Steps {
		if step.ID == stepID {
			if step.Status == types.StepDone {
				return fmt.Errorf("memory: cannot reactivate done step %s", stepID)
			}
			step.Status = types.StepActive
			return m.persist()
		}
	}
	return fmt.Errorf("memory: step %s not found in plan", stepID)
}

// SetStepOutput records a completed StepExecutor run's output keyed by step
// ID, for the Verifier/Critic to inspect and for later steps' roadmap view.
func (m *SessionMemory) SetStepOutput(stepID string, output types.StepExecutorOutput) error {
	m.StepOutputs[stepID] = output
	return m.persist()
}

// SetEnvVar records a workspace-scoped environment variable override.
func (m *SessionMemory) SetEnvVar(key, value string) error {
	m.EnvVars[key] = value
	return m.persist()
}

// ClipboardSnapshot returns a copy of the full clipboard. The map does not
// record insertion order, so no recency bound is applied here.
func (m *SessionMemory) ClipboardSnapshot() map[string]string {
	snapshot := make(map[string]string, len(m.Clipboard))
	for k, v := range m.Clipboard {
		snapshot[k] = v
	}
	return snapshot
}

// Snapshot returns an indented JSON rendering of the current memory state,
// for embedding into the StepExecutor's context envelope.
func (m *SessionMemory) Snapshot() (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("memory: snapshot: %w", err)
	}
	return string(data), nil
}
