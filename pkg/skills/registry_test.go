package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-agent/agent_go/pkg/logger"
)

func writeSkill(t *testing.T, root, name, body string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	manual := "---\nname: " + name + "\ndescription: a test skill\n---\n" + body
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(manual), 0644))
}

func TestDiscoverAndListSorted(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "zeta", "run scripts/build.sh then done")
	writeSkill(t, root, "alpha", "no scripts here")

	reg, err := NewRegistry(root, logger.CreateTestLogger("", "info"))
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)
}

func TestRequiredScriptsExtractedInOrder(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "build", "first scripts/init.sh then scripts/build.py then scripts/init.sh again")

	reg, err := NewRegistry(root, logger.CreateTestLogger("", "info"))
	require.NoError(t, err)

	scripts, err := reg.RequiredScripts("build")
	require.NoError(t, err)
	assert.Equal(t, []string{"init.sh", "build.py"}, scripts)
}

func TestReadReferenceRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "docs", "no scripts")

	reg, err := NewRegistry(root, logger.CreateTestLogger("", "info"))
	require.NoError(t, err)

	_, err = reg.ReadReference("docs", "../../etc/passwd")
	assert.Error(t, err)
}

func TestReadReferenceFallsBackToReferencesSubdir(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "docs", "no scripts")
	refDir := filepath.Join(root, "docs", "references")
	require.NoError(t, os.MkdirAll(refDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(refDir, "api.md"), []byte("API docs"), 0644))

	reg, err := NewRegistry(root, logger.CreateTestLogger("", "info"))
	require.NoError(t, err)

	content, err := reg.ReadReference("docs", "api.md")
	require.NoError(t, err)
	assert.Equal(t, "API docs", content)
}

func TestRunScriptCapturesSuccessAndFailure(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "runner", "uses scripts/ok.sh and scripts/fail.sh")
	scriptsDir := filepath.Join(root, "runner", "scripts")
	require.NoError(t, os.MkdirAll(scriptsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, "ok.sh"), []byte("#!/bin/bash\necho hello\n"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(scriptsDir, "fail.sh"), []byte("#!/bin/bash\necho boom 1>&2\nexit 3\n"), 0755))

	reg, err := NewRegistry(root, logger.CreateTestLogger("", "info"))
	require.NoError(t, err)

	ok, err := reg.RunScript(context.Background(), "runner", "ok.sh", nil, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, ok.ExitCode)
	assert.Contains(t, ok.Stdout, "hello")

	fail, err := reg.RunScript(context.Background(), "runner", "fail.sh", nil, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3, fail.ExitCode)
	assert.Contains(t, fail.Summary(), "[FAILURE]")
}
