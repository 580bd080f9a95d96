// Package scanner walks the configured changes directory and turns each
// change's proposal.md/tasks.md pair into a models.WorkItem and its Tasks.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/specq-run/specq/internal/models"
)

var frontmatterRe = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)$`)

// ParseFrontmatter splits front-matter YAML from a markdown document's
// body. Documents without a leading "---" fence have no front-matter and
// the whole content is the body.
func ParseFrontmatter(content string) (map[string]any, string) {
	m := frontmatterRe.FindStringSubmatch(content)
	if m == nil {
		return map[string]any{}, content
	}
	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(m[1]), &meta); err != nil || meta == nil {
		return map[string]any{}, m[2]
	}
	return meta, m[2]
}

var taskHeadingRe = regexp.MustCompile(`(?i)^##\s+(task-\S+):\s*(.+)$`)

// ParseTasks extracts tasks from tasks.md content. A task begins at a
// "## task-<id>: title" heading; everything up to the next heading (or EOF)
// is its trimmed description. Source order is preserved.
func ParseTasks(content string) []*models.Task {
	var tasks []*models.Task
	var curID, curTitle string
	var curLines []string
	seq := 0

	flush := func() {
		if curID == "" {
			return
		}
		seq++
		tasks = append(tasks, &models.Task{
			ID:          curID,
			Seq:         seq,
			Title:       curTitle,
			Description: strings.TrimSpace(strings.Join(curLines, "\n")),
			Status:      models.StatusPending,
		})
		curID, curTitle, curLines = "", "", nil
	}

	for _, line := range strings.Split(content, "\n") {
		if m := taskHeadingRe.FindStringSubmatch(line); m != nil {
			flush()
			curID = m[1]
			curTitle = strings.TrimSpace(m[2])
			continue
		}
		if curID != "" {
			curLines = append(curLines, line)
		}
	}
	flush()
	return tasks
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intField(meta map[string]any, key string, def int) int {
	switch v := meta[key].(type) {
	case int:
		return v
	default:
		return def
	}
}

func stringField(meta map[string]any, key, def string) string {
	if s, ok := meta[key].(string); ok && s != "" {
		return s
	}
	return def
}

// parseChangeDir reads one change directory's proposal.md (and optional
// tasks.md) into a WorkItem.
func parseChangeDir(projectRoot, changesDir, name string) (*models.WorkItem, []*models.Task, error) {
	dir := filepath.Join(changesDir, name)
	proposalPath := filepath.Join(dir, "proposal.md")
	raw, err := os.ReadFile(proposalPath)
	if err != nil {
		return nil, nil, fmt.Errorf("scanner: read %s: %w", proposalPath, err)
	}

	meta, body := ParseFrontmatter(string(raw))

	var tasks []*models.Task
	tasksPath := filepath.Join(dir, "tasks.md")
	if tb, err := os.ReadFile(tasksPath); err == nil {
		tasks = ParseTasks(string(tb))
	}

	title := name
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			title = strings.TrimSpace(trimmed[2:])
			break
		}
	}

	relDir, err := filepath.Rel(projectRoot, dir)
	if err != nil {
		relDir = dir
	}

	wi := &models.WorkItem{
		ID:                   name,
		Dir:                  relDir,
		Title:                title,
		Description:          strings.TrimSpace(body),
		Deps:                 stringSlice(meta["depends_on"]),
		Priority:             intField(meta, "priority", 0),
		Risk:                 models.Risk(stringField(meta, "risk", string(models.RiskMedium))),
		ExecutorType:         stringField(meta, "executor_type", ""),
		ExecutorModel:        stringField(meta, "executor_model", ""),
		MaxTurns:             intField(meta, "max_turns", 0),
		ExecutorTools:        stringSlice(meta["executor_tools"]),
		VerificationStrategy: "",
		Status:               models.StatusPending,
		MaxRetries:           models.DefaultMaxRetries,
	}
	if verification, ok := meta["verification"].(map[string]any); ok {
		wi.VerificationStrategy = models.VerificationStrategy(stringField(verification, "strategy", ""))
	}

	for _, t := range tasks {
		t.WorkItemID = name
	}
	return wi, tasks, nil
}

// DetectChangesDir returns the changes directory relative to projectRoot,
// preferring "openspec/changes" when it exists over the plain "changes".
func DetectChangesDir(projectRoot string) string {
	if fi, err := os.Stat(filepath.Join(projectRoot, "openspec", "changes")); err == nil && fi.IsDir() {
		return "openspec/changes"
	}
	return "changes"
}

// Scan walks changesDirRel (relative to projectRoot) and returns every
// valid change, sorted by directory name. A directory is valid when it is
// a directory, is not named "archive", and contains a proposal.md; anything
// else is silently skipped. Scan is pure: the same filesystem state always
// yields the same result.
func Scan(projectRoot, changesDirRel string) ([]*models.WorkItem, map[string][]*models.Task, error) {
	changesDir := filepath.Join(projectRoot, changesDirRel)
	entries, err := os.ReadDir(changesDir)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scanner: read changes dir %s: %w", changesDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var items []*models.WorkItem
	tasksByItem := make(map[string][]*models.Task)
	for _, name := range names {
		if name == "archive" {
			continue
		}
		fi, err := os.Stat(filepath.Join(changesDir, name))
		if err != nil || !fi.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(changesDir, name, "proposal.md")); err != nil {
			continue
		}
		wi, tasks, err := parseChangeDir(projectRoot, changesDir, name)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, wi)
		tasksByItem[name] = tasks
	}
	return items, tasksByItem, nil
}
