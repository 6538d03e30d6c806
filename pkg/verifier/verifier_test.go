package verifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/memory"
)

func TestExtractReportedFilesFromFencedJSON(t *testing.T) {
	resp := "done\n```json\n{\"created_files\": [\"a.go\", \"b.go\"]}\n```\n"
	files := ExtractReportedFiles(resp)
	assert.Equal(t, []string{"a.go", "b.go"}, files)
}

func TestExtractReportedFilesFallsBackToRegex(t *testing.T) {
	resp := "CREATED_FILE: out/main.go\nCREATED_FILE: out/util.go\n"
	files := ExtractReportedFiles(resp)
	assert.Equal(t, []string{"out/main.go", "out/util.go"}, files)
}

func TestVerifyArtifactsClassifiesCorrectly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.txt"), []byte("x"), 0644))
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "deep.txt"), []byte("y"), 0644))

	mem, err := memory.New(dir)
	require.NoError(t, err)

	v := New(mem, logger.CreateTestLogger("", "info"))
	resp := `{"created_files": ["real.txt", "deep.txt", "ghost.txt"]}`
	result := v.VerifyArtifacts(resp, []string{"deep.txt", "missing-expected.txt"})

	assert.ElementsMatch(t, []string{"real.txt", "nested/deep.txt"}, result.Verified)
	assert.ElementsMatch(t, []string{"ghost.txt"}, result.Hallucinated)
	assert.ElementsMatch(t, []string{"missing-expected.txt"}, result.Missing)
}
