// Package executor wraps an agent.Client with the git post-processing the
// pipeline needs after a task runs: which files it touched and what it
// committed. Agent execution and git inspection are deliberately kept
// separate — one process's success/failure, one directory's file state.
package executor

import (
	"context"
	"fmt"

	"github.com/specq-run/specq/internal/gitops"
	"github.com/specq-run/specq/internal/models"
)

const commitSystemPromptFmt = "Complete, then commit. Message format: feat(%s): {description}"

// Agent is the subset of agent.Client's surface the executor depends on.
type Agent interface {
	Run(ctx context.Context, prompt, cwd, systemPromptOverride string) models.AgentRun
}

// Executor runs one task's brief through an Agent and collects the
// resulting git changes.
type Executor struct {
	Agent Agent
}

// New constructs an Executor around the given Agent.
func New(a Agent) *Executor {
	return &Executor{Agent: a}
}

// Execute runs brief for changeID inside cwd, enforcing the
// complete-then-commit system prompt. On agent failure it returns
// immediately without inspecting git state.
func (e *Executor) Execute(ctx context.Context, changeID, cwd, brief string) models.ExecutionResult {
	systemPrompt := fmt.Sprintf(commitSystemPromptFmt, changeID)
	run := e.Agent.Run(ctx, brief, cwd, systemPrompt)

	if !run.Success {
		return models.ExecutionResult{
			Success:     false,
			Output:      run.Output,
			TurnsUsed:   run.Turns,
			TokensIn:    run.TokensIn,
			TokensOut:   run.TokensOut,
			DurationSec: run.Duration.Seconds(),
			Error:       run.Error,
		}
	}

	// The agent is expected to have committed exactly once; diff against its
	// parent to capture what that commit touched plus anything left untracked.
	return models.ExecutionResult{
		Success:      true,
		Output:       run.Output,
		FilesChanged: gitops.ChangedFiles(cwd, "HEAD~1"),
		CommitHash:   gitops.HeadCommit(cwd),
		TurnsUsed:    run.Turns,
		TokensIn:     run.TokensIn,
		TokensOut:    run.TokensOut,
		DurationSec:  run.Duration.Seconds(),
	}
}
