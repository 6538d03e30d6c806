package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-agent/agent_go/pkg/types"
)

func TestNewPersistsImmediately(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, m.WorkspaceRoot, reloaded.WorkspaceRoot)
}

func TestLoadResetsOnWorkspaceMismatch(t *testing.T) {
	dirA := t.TempDir()
	m, err := New(dirA)
	require.NoError(t, err)
	require.NoError(t, m.AppendLog("hello"))

	dirB := t.TempDir()
	// simulate a stale state file copied from dirA into dirB
	data, err := m.Snapshot()
	require.NoError(t, err)
	require.NoError(t, writeFile(filepath.Join(dirB, stateFileName), data))

	reloaded, err := Load(dirB)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Logs, "mismatched workspace_root must reset state, not inherit stale logs")
}

func TestSetActiveFolderRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	err = m.SetActiveFolder(filepath.Join(dir, ".."))
	assert.Error(t, err, "active_folder must stay inside workspace_root")
}

func TestSetActiveFolderAllowsSubdir(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	sub := filepath.Join(dir, "src")
	require.NoError(t, m.SetActiveFolder(sub))
	assert.Equal(t, sub, m.ActiveFolder())
}

func TestRegisterArtifactRequiresExistence(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	missing := filepath.Join(dir, "nope.txt")
	assert.Error(t, m.RegisterArtifact(missing))

	present := filepath.Join(dir, "present.txt")
	require.NoError(t, writeFile(present, "x"))
	assert.NoError(t, m.RegisterArtifact(present))
	assert.Contains(t, m.Artifacts, present)
}

func TestMarkStepDoneNeverRegresses(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, m.SetPlan(&types.Plan{Steps: []*types.SkillStep{{ID: "s1", Status: types.StepPending}}}))
	require.NoError(t, m.MarkStepActive("s1"))
	require.NoError(t, m.MarkStepDone("s1"))
	assert.Error(t, m.MarkStepActive("s1"), "a done step must never regress to active")
}

func TestSetProjectRootAlignsActiveFolder(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	sub := filepath.Join(dir, "generated-app")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, m.SetProjectRoot(sub))
	assert.Equal(t, sub, m.ProjectRoot)
	assert.Equal(t, sub, m.ActiveFolder())
}

func TestGetRecentFilePathsBoundsByDistinctSteps(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, m.AppendToolCall(types.ToolCallRecord{StepID: "s1", Tool: "read_file", Arguments: map[string]interface{}{"path": "a.txt"}}))
	require.NoError(t, m.AppendToolCall(types.ToolCallRecord{StepID: "s2", Tool: "read_file", Arguments: map[string]interface{}{"path": "b.txt"}}))
	require.NoError(t, m.AppendToolCall(types.ToolCallRecord{StepID: "s3", Tool: "read_file", Arguments: map[string]interface{}{"path": "c.txt"}}))

	paths := m.GetRecentFilePaths(2)
	assert.ElementsMatch(t, []string{"c.txt", "b.txt"}, paths, "only the two most recent distinct steps should contribute paths")
}

func TestGetRecentFilePathsIgnoresNonReadTools(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, m.AppendToolCall(types.ToolCallRecord{StepID: "s1", Tool: "write_file", Arguments: map[string]interface{}{"path": "a.txt"}}))
	assert.Empty(t, m.GetRecentFilePaths(2))
}

func TestGetClipboardSubsetMatchesRelativeAndAbsolute(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, m.CaptureClipboard("src/main.go", "package main"))

	subset := m.GetClipboardSubset([]string{"src/main.go", filepath.Join(dir, "src/main.go"), "missing.go"})
	assert.Equal(t, "package main", subset["src/main.go"])
	assert.Equal(t, "package main", subset[filepath.Join(dir, "src/main.go")])
	assert.NotContains(t, subset, "missing.go")
}

func TestGetRoadmapSkipsIgnoredDirsAndBoundsDepth(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", "nested", "deeper"), 0755))
	require.NoError(t, writeFile(filepath.Join(dir, "src", "main.go"), "package main"))
	require.NoError(t, writeFile(filepath.Join(dir, "src", "nested", "deeper", "ignored.go"), "x"))

	roadmap := m.GetRoadmap()
	assert.Contains(t, roadmap, "src/")
	assert.Contains(t, roadmap, "main.go")
	assert.NotContains(t, roadmap, ".git")
	assert.NotContains(t, roadmap, "ignored.go", "depth 2 must not descend into nested/deeper")
}

func TestUpdateActiveFolderAutoDetectsNewestFile(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)

	sub := filepath.Join(dir, "output")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, writeFile(filepath.Join(sub, "result.txt"), "done"))

	require.NoError(t, m.UpdateActiveFolder(""))
	assert.Equal(t, sub, m.ActiveFolder())
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
