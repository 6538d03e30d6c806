// Package skills implements the SkillRegistry: discovery of skill manuals on
// disk, reading their bundled resources, and executing their scripts.
// Grounded on the original skill_manager.py/skill_discovery.py, reworked
// into a Go binding with filepath.WalkDir discovery and a process-group
// script runner.
package skills

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mcp-agent/agent_go/pkg/logger"
	"mcp-agent/agent_go/pkg/types"
)

var scriptRefPattern = regexp.MustCompile(`scripts/([A-Za-z0-9._-]+\.(?:sh|py|js))`)

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Registry discovers and serves skills rooted at a skills directory
// (conventionally `.agent/skills`).
type Registry struct {
	skillsDir     string
	log           logger.Logger
	skills        map[string]types.Skill
	scriptTimeout time.Duration
}

// SetScriptTimeout overrides DefaultScriptTimeout for every RunScript call
// on this registry, wiring the ambient-stack --script-timeout flag (spec.md
// §4.1's "configurable timeout (default 300 s)").
func (r *Registry) SetScriptTimeout(d time.Duration) {
	r.scriptTimeout = d
}

// NewRegistry walks skillsDir for SKILL.md files, parses their YAML
// frontmatter, and indexes them by name.
func NewRegistry(skillsDir string, log logger.Logger) (*Registry, error) {
	absDir, err := filepath.Abs(skillsDir)
	if err != nil {
		return nil, fmt.Errorf("skills: resolve skills dir: %w", err)
	}
	r := &Registry{skillsDir: absDir, log: log, skills: map[string]types.Skill{}}
	if err := r.discover(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) discover() error {
	err := filepath.WalkDir(r.skillsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "SKILL.md" {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			r.log.Warnf("skills: failed reading %s: %v", path, readErr)
			return nil
		}
		fm, parseErr := parseFrontmatter(content)
		if parseErr != nil {
			r.log.Warnf("skills: failed parsing frontmatter in %s: %v", path, parseErr)
			return nil
		}
		if fm.Name == "" || fm.Description == "" {
			r.log.Warnf("skills: %s missing name/description frontmatter, skipping", path)
			return nil
		}
		dir := filepath.Dir(path)
		r.skills[fm.Name] = types.Skill{
			Name:            fm.Name,
			Description:     fm.Description,
			ManualPath:      path,
			DirectoryPath:   dir,
			RequiredScripts: extractRequiredScripts(string(content)),
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("skills: walk %s: %w", r.skillsDir, err)
	}
	return nil
}

func parseFrontmatter(content []byte) (frontmatter, error) {
	var fm frontmatter
	text := string(content)
	if !strings.HasPrefix(text, "---") {
		return fm, fmt.Errorf("missing frontmatter delimiter")
	}
	parts := strings.SplitN(text, "---", 3)
	if len(parts) < 3 {
		return fm, fmt.Errorf("malformed frontmatter block")
	}
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return fm, fmt.Errorf("parse yaml frontmatter: %w", err)
	}
	return fm, nil
}

func extractRequiredScripts(content string) []string {
	matches := scriptRefPattern.FindAllStringSubmatch(content, -1)
	seen := map[string]bool{}
	var ordered []string
	for _, m := range matches {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			ordered = append(ordered, name)
		}
	}
	return ordered
}

// List returns every discovered skill, sorted by name for deterministic
// output.
func (r *Registry) List() []types.Skill {
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]types.Skill, 0, len(names))
	for _, name := range names {
		out = append(out, r.skills[name])
	}
	return out
}

// Get looks up one skill by name.
func (r *Registry) Get(name string) (types.Skill, bool) {
	s, ok := r.skills[name]
	return s, ok
}

// RequiredScripts returns the script names referenced in a skill's manual,
// in order of first appearance.
func (r *Registry) RequiredScripts(name string) ([]string, error) {
	skill, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("skills: skill %q not found", name)
	}
	return skill.RequiredScripts, nil
}

// GetContent returns the skill manual's content plus a bounded directory
// tree view of its directory, the combined form workers get as
// skill_raw_context.
func (r *Registry) GetContent(name string) (string, error) {
	skill, ok := r.skills[name]
	if !ok {
		return "", fmt.Errorf("skills: skill %q not found", name)
	}
	manual, err := os.ReadFile(skill.ManualPath)
	if err != nil {
		return "", fmt.Errorf("skills: read manual %s: %w", skill.ManualPath, err)
	}
	tree := treeView(skill.DirectoryPath, 3)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "SKILL: %s\nDESCRIPTION: %s\nPATH: %s\n\n", skill.Name, skill.Description, skill.ManualPath)
	buf.WriteString("[DIRECTORY STRUCTURE]\n")
	buf.WriteString(tree)
	buf.WriteString("\n\n[INSTRUCTIONS (SKILL.md)]\n")
	buf.Write(manual)
	return buf.String(), nil
}

// ListResources lists the bundled scripts/references/assets of a skill.
func (r *Registry) ListResources(name string) ([]string, error) {
	skill, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("skills: skill %q not found", name)
	}
	var resources []string
	for _, subdir := range []string{"scripts", "references", "assets"} {
		sub := filepath.Join(skill.DirectoryPath, subdir)
		entries, err := os.ReadDir(sub)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			resources = append(resources, filepath.Join(subdir, e.Name()))
		}
	}
	return resources, nil
}

// ReadReference reads a reference file from a skill's directory, rejecting
// any path that attempts to traverse outside it and falling back to the
// references/ subdirectory when the bare name doesn't resolve.
func (r *Registry) ReadReference(name, referencePath string) (string, error) {
	skill, ok := r.skills[name]
	if !ok {
		return "", fmt.Errorf("skills: skill %q not found", name)
	}
	if strings.Contains(referencePath, "..") || strings.HasPrefix(referencePath, "/") {
		return "", fmt.Errorf("skills: invalid reference path %q", referencePath)
	}

	full := filepath.Join(skill.DirectoryPath, referencePath)
	if _, err := os.Stat(full); err != nil {
		if !strings.HasPrefix(referencePath, "references/") {
			fallback := filepath.Join(skill.DirectoryPath, "references", referencePath)
			if _, ferr := os.Stat(fallback); ferr == nil {
				full = fallback
			} else {
				return "", fmt.Errorf("skills: reference %q not found in skill %q", referencePath, name)
			}
		} else {
			return "", fmt.Errorf("skills: reference %q not found in skill %q", referencePath, name)
		}
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("skills: read reference %s: %w", full, err)
	}
	return string(content), nil
}

func treeView(root string, maxDepth int) string {
	var lines []string
	base := filepath.Base(root)
	if base == "" {
		base = root
	}
	lines = append(lines, base+"/")

	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(rel, string(filepath.Separator))
		if depth >= maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		indent := strings.Repeat("│   ", depth)
		if d.IsDir() {
			lines = append(lines, fmt.Sprintf("%s├── %s/", indent, d.Name()))
		} else {
			lines = append(lines, fmt.Sprintf("%s%s", indent, d.Name()))
		}
		return nil
	})
	return strings.Join(lines, "\n")
}
