// Package verifier implements the Verifier: it decouples "checking" from
// "doing" by parsing a worker's claimed output files, physically confirming
// them on disk, and classifying the result as verified, missing, or
// hallucinated. Grounded on orchestrator/verifier.py's verify_artifacts.
package verifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/memory"
	"mcp-agent/agent_go/pkg/types"
)

var (
	jsonFencePattern = regexp.MustCompile(`(?s)` + "```json\\s*(\\{.*?\\})\\s*```")
	jsonRawPattern   = regexp.MustCompile(`(?s)(\{.*\})`)
	createdFilePattern = regexp.MustCompile(`CREATED_FILE:\s*(.*)`)
)

// Verifier physically checks artifacts a worker claims to have produced.
type Verifier struct {
	mem *memory.SessionMemory
	log logger.Logger
}

// New creates a Verifier bound to the run's SessionMemory.
func New(mem *memory.SessionMemory, log logger.Logger) *Verifier {
	return &Verifier{mem: mem, log: log}
}

type reportedFiles struct {
	CreatedFiles interface{} `json:"created_files"`
	Artifacts    interface{} `json:"artifacts"`
}

// ExtractReportedFiles parses a worker's final answer for files it claims to
// have created: a ```json fenced block, falling back to the largest raw
// JSON object, falling back further to CREATED_FILE: regex lines.
func ExtractReportedFiles(response string) []string {
	jsonStr := ""
	if m := jsonFencePattern.FindStringSubmatch(response); m != nil {
		jsonStr = m[1]
	} else if m := jsonRawPattern.FindStringSubmatch(response); m != nil {
		jsonStr = m[1]
	}

	var files []string
	if jsonStr != "" {
		var data reportedFiles
		if err := json.Unmarshal([]byte(jsonStr), &data); err == nil {
			files = flattenStringish(data.CreatedFiles)
			if len(files) == 0 {
				files = flattenStringish(data.Artifacts)
			}
		}
	}

	if len(files) == 0 {
		for _, m := range createdFilePattern.FindAllStringSubmatch(response, -1) {
			files = append(files, strings.TrimSpace(m[1]))
		}
	}
	return files
}

func flattenStringish(v interface{}) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []interface{}:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// smartFind searches baseFolder for a file by basename, returning the path
// relative to baseFolder. A file directly in baseFolder counts as depth 1,
// so only files at most maxDepth-1 subdirectories below it are found.
func smartFind(baseFolder, filename string, maxDepth int) (string, bool) {
	var found string
	_ = filepath.WalkDir(baseFolder, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return nil
		}
		rel, _ := filepath.Rel(baseFolder, path)
		depth := 0
		if rel != "." {
			depth = strings.Count(rel, string(filepath.Separator)) + 1
		}
		if d.IsDir() {
			if depth > maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if depth > maxDepth {
			return nil
		}
		if d.Name() == filename {
			found = rel
		}
		return nil
	})
	if found == "" {
		return "", false
	}
	return found, true
}

func existsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

func sanitize(path string) string {
	path = strings.TrimPrefix(path, "./")
	return strings.TrimPrefix(path, "/")
}

// VerifyArtifacts checks a worker's reported output against disk, then
// checks the step's expected_artifacts against disk too. Verified reported
// files are registered into SessionMemory; expected artifacts are only
// checked, not registered.
func (v *Verifier) VerifyArtifacts(response string, expectedArtifacts []string) types.VerificationResult {
	activeFolder := v.mem.ActiveFolder()

	reported := ExtractReportedFiles(response)
	result := types.VerificationResult{}

	if len(reported) > 0 {
		v.log.Infof("verifier: checking %d reported artifacts", len(reported))
	}
	for _, raw := range reported {
		f := strings.TrimSpace(raw)
		clean := sanitize(f)
		abs := filepath.Join(activeFolder, clean)

		if existsNonEmpty(abs) {
			v.log.Infof("verifier: [OK] verified %s", f)
			result.Verified = append(result.Verified, f)
			_ = v.mem.RegisterArtifact(abs)
			continue
		}
		if rel, ok := smartFind(activeFolder, filepath.Base(clean), 2); ok {
			v.log.Infof("verifier: [OK] verified via smart-find %s (reported as %s)", rel, f)
			result.Verified = append(result.Verified, rel)
			_ = v.mem.RegisterArtifact(filepath.Join(activeFolder, rel))
			continue
		}
		v.log.Errorf("verifier: [FAIL] missing or empty: %s", f)
		result.Hallucinated = append(result.Hallucinated, f)
	}

	for _, exp := range expectedArtifacts {
		clean := sanitize(exp)
		abs := filepath.Join(activeFolder, clean)
		if existsNonEmpty(abs) {
			v.log.Infof("verifier: [OK] expected artifact found: %s", exp)
			continue
		}
		if rel, ok := smartFind(activeFolder, filepath.Base(clean), 2); ok {
			v.log.Infof("verifier: [OK] expected artifact found via smart-find: %s", rel)
			continue
		}
		v.log.Errorf("verifier: [FAIL] expected artifact missing: %s", exp)
		result.Missing = append(result.Missing, exp)
	}

	return result
}
