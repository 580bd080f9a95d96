package executor

import (
	"context"
	"testing"

	"github.com/specq-run/specq/internal/models"
)

type stubAgent struct {
	run              models.AgentRun
	capturedSystem   string
	capturedPrompt   string
}

func (s *stubAgent) Run(_ context.Context, prompt, _, systemPromptOverride string) models.AgentRun {
	s.capturedPrompt = prompt
	s.capturedSystem = systemPromptOverride
	return s.run
}

func TestExecuteFailureShortCircuitsGitInspection(t *testing.T) {
	agent := &stubAgent{run: models.AgentRun{Success: false, Error: "agent crashed"}}
	e := New(agent)
	result := e.Execute(context.Background(), "add-auth", t.TempDir(), "brief text")

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error != "agent crashed" {
		t.Fatalf("Error = %q, want agent crashed", result.Error)
	}
	if result.CommitHash != "" || result.FilesChanged != nil {
		t.Fatalf("expected no git state on failure, got %+v", result)
	}
}

func TestExecuteSendsCommitEnforcingSystemPrompt(t *testing.T) {
	agent := &stubAgent{run: models.AgentRun{Success: true, Output: "done"}}
	e := New(agent)
	e.Execute(context.Background(), "add-auth", t.TempDir(), "brief text")

	if agent.capturedPrompt != "brief text" {
		t.Fatalf("prompt = %q, want brief text", agent.capturedPrompt)
	}
	if agent.capturedSystem == "" {
		t.Fatal("expected a non-empty commit-enforcing system prompt")
	}
}

func TestExecuteSuccessDegradesGitStateOnFailure(t *testing.T) {
	// cwd is not a git repo; gitops calls degrade to empty values rather than
	// failing the already-successful execution.
	agent := &stubAgent{run: models.AgentRun{Success: true, Output: "done", Turns: 2}}
	e := New(agent)
	result := e.Execute(context.Background(), "add-auth", t.TempDir(), "brief text")

	if !result.Success {
		t.Fatal("expected success")
	}
	if result.CommitHash != "" {
		t.Fatalf("expected empty commit hash for non-repo dir, got %q", result.CommitHash)
	}
	if result.TurnsUsed != 2 {
		t.Fatalf("TurnsUsed = %d, want 2", result.TurnsUsed)
	}
}
