package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/specq-run/specq/internal/models"
)

func writeChange(t *testing.T, changesDir, name, proposal, tasks string) {
	t.Helper()
	dir := filepath.Join(changesDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "proposal.md"), []byte(proposal), 0o644); err != nil {
		t.Fatalf("WriteFile proposal: %v", err)
	}
	if tasks != "" {
		if err := os.WriteFile(filepath.Join(dir, "tasks.md"), []byte(tasks), 0o644); err != nil {
			t.Fatalf("WriteFile tasks: %v", err)
		}
	}
}

func TestParseFrontmatter(t *testing.T) {
	content := "---\ndepends_on: [a, b]\npriority: 3\n---\n# Title\n\nBody text.\n"
	meta, body := ParseFrontmatter(content)
	if meta["priority"] != 3 {
		t.Errorf("priority = %v, want 3", meta["priority"])
	}
	if body != "# Title\n\nBody text.\n" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestParseFrontmatterNoFence(t *testing.T) {
	meta, body := ParseFrontmatter("# Just a title\n\nNo fence here.")
	if len(meta) != 0 {
		t.Errorf("expected empty meta, got %v", meta)
	}
	if body != "# Just a title\n\nNo fence here." {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestParseTasksPreservesOrder(t *testing.T) {
	content := "## task-first: Do the first thing\nfirst description\nmore text\n\n## task-second: Do the second\nsecond description\n"
	tasks := ParseTasks(content)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "task-first" || tasks[1].ID != "task-second" {
		t.Errorf("unexpected order: %v, %v", tasks[0].ID, tasks[1].ID)
	}
	if tasks[0].Description != "first description\nmore text" {
		t.Errorf("unexpected description: %q", tasks[0].Description)
	}
}

func TestScanSkipsArchiveAndFilesAndMissingProposal(t *testing.T) {
	root := t.TempDir()
	changesDir := filepath.Join(root, "changes")

	writeChange(t, changesDir, "add-auth", "# Add auth\n\nDescription.\n", "")
	writeChange(t, changesDir, "archive", "# Should be skipped\n", "")
	if err := os.MkdirAll(filepath.Join(changesDir, "no-proposal"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(changesDir, "README.md"), []byte("not a dir"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	items, _, err := Scan(root, "changes")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(items) != 1 || items[0].ID != "add-auth" {
		t.Fatalf("Scan = %+v, want exactly [add-auth]", items)
	}
}

func TestScanIDEqualsDirectoryName(t *testing.T) {
	root := t.TempDir()
	changesDir := filepath.Join(root, "changes")
	writeChange(t, changesDir, "my-change-id", "---\npriority: 1\n---\n# Hello\n", "")

	items, _, err := Scan(root, "changes")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(items) != 1 || items[0].ID != "my-change-id" {
		t.Fatalf("invariant 1 violated: %+v", items)
	}
}

func TestScanParsesFrontmatterOverrides(t *testing.T) {
	root := t.TempDir()
	changesDir := filepath.Join(root, "changes")
	writeChange(t, changesDir, "risky-change", `---
depends_on: [base]
priority: 7
risk: high
executor_type: claude_code
executor_model: claude-sonnet-4-5
max_turns: 20
executor_tools: [Read, Edit]
verification:
  strategy: unanimous
---
# Risky change

Some body text.
`, "")
	writeChange(t, changesDir, "base", "# Base\n", "")

	items, _, err := Scan(root, "changes")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	var risky *models.WorkItem
	for _, it := range items {
		if it.ID == "risky-change" {
			risky = it
		}
	}
	if risky == nil {
		t.Fatal("risky-change not found")
	}
	if risky.Priority != 7 || risky.Risk != models.RiskHigh {
		t.Errorf("unexpected priority/risk: %+v", risky)
	}
	if len(risky.Deps) != 1 || risky.Deps[0] != "base" {
		t.Errorf("unexpected deps: %v", risky.Deps)
	}
	if risky.VerificationStrategy != models.StrategyUnanimous {
		t.Errorf("unexpected verification strategy: %v", risky.VerificationStrategy)
	}
	if risky.MaxTurns != 20 || len(risky.ExecutorTools) != 2 {
		t.Errorf("unexpected executor overrides: %+v", risky)
	}
}

func TestScanMissingChangesDirReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	items, tasks, err := Scan(root, "changes")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(items) != 0 || len(tasks) != 0 {
		t.Errorf("expected empty scan, got %v / %v", items, tasks)
	}
}
