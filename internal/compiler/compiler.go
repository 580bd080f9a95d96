// Package compiler assembles the brief an executor agent receives for one
// task: the proposal, sibling tasks, prior results, project rules, and any
// retry findings. Two strategies are available — deterministic
// Passthrough and LLM-Refined — selected per project config.
package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/specq-run/specq/internal/models"
	"github.com/specq-run/specq/internal/textgen"
)

const refiningSystemPrompt = `You are a tech lead briefing a developer. Given the proposal, the task list, and prior context, produce a precise execution brief for the current task.

Output format:

## Task: {task title}
{one-line goal}

### Context
{what came before, how it relates to this task}

### Requirements
{concrete implementation requirements, drawn from the proposal}

### Constraints
{conventions and limits to respect}

### Interfaces
{which modules this task touches}`

// Input bundles everything a Compiler needs to produce a brief.
type Input struct {
	Proposal       string
	AllTasks       []string
	CurrentTask    *models.Task
	PrevResults    []*models.Task
	ProjectRules   string
	RetryFindings  []models.Finding
}

// Compiler turns an Input into a brief string handed to the executor agent.
type Compiler interface {
	Compile(ctx context.Context, in Input) (string, error)
}

// assembleContext renders Input into the shared section layout used by
// both strategies, in this order: Proposal, All Tasks, Current Task,
// Completed Tasks, Project Rules, and (on retry) Previous Review Findings.
func assembleContext(in Input) string {
	var b strings.Builder

	b.WriteString("## Proposal\n")
	b.WriteString(in.Proposal)
	b.WriteString("\n\n## All Tasks\n")
	for i, t := range in.AllTasks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}

	b.WriteString("\n## Current Task\n")
	if in.CurrentTask != nil {
		fmt.Fprintf(&b, "ID: %s\n", in.CurrentTask.ID)
		fmt.Fprintf(&b, "Title: %s\n", in.CurrentTask.Title)
		fmt.Fprintf(&b, "Description: %s\n", in.CurrentTask.Description)
	}

	if len(in.PrevResults) > 0 {
		b.WriteString("\n## Completed Tasks\n")
		for _, prev := range in.PrevResults {
			files := "none"
			if len(prev.FilesChanged) > 0 {
				files = strings.Join(prev.FilesChanged, ", ")
			}
			fmt.Fprintf(&b, "- %s (%s): files=%s, commit=%s\n", prev.ID, prev.Title, files, prev.CommitHash)
		}
	}

	if in.ProjectRules != "" {
		fmt.Fprintf(&b, "\n## Project Rules\n%s\n", in.ProjectRules)
	}

	if len(in.RetryFindings) > 0 {
		b.WriteString("\n## Previous Review Findings\n")
		for _, f := range in.RetryFindings {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", f.Severity, f.Category, f.Description)
		}
	}

	return b.String()
}

// Passthrough deterministically concatenates Input's sections with no LLM
// call — cheap and reproducible, used when no compiler provider is
// configured.
type Passthrough struct{}

// Compile implements Compiler.
func (Passthrough) Compile(_ context.Context, in Input) (string, error) {
	return assembleContext(in), nil
}

// Refined sends the assembled context to a TextGenerator for a tighter,
// role-specific brief. If Fallback is set, a generation failure falls back
// to the raw assembled context instead of propagating the error — refining
// is an enhancement, not a requirement for the pipeline to proceed.
type Refined struct {
	Generator textgen.TextGenerator
	Fallback  bool
}

// Compile implements Compiler.
func (r Refined) Compile(ctx context.Context, in Input) (string, error) {
	raw := assembleContext(in)
	out, err := r.Generator.Generate(ctx, refiningSystemPrompt, raw)
	if err != nil {
		if r.Fallback {
			return raw, nil
		}
		return "", fmt.Errorf("compiler: refine brief: %w", err)
	}
	return out, nil
}
