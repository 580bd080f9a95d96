// Package pipeline drives the main orchestration loop: scan changes,
// rebuild the dependency DAG, pick the next ready change, compile and run
// each of its tasks in order, vote on the resulting diff, and dispatch the
// aggregated decision.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specq-run/specq/internal/aggregator"
	"github.com/specq-run/specq/internal/compiler"
	"github.com/specq-run/specq/internal/config"
	"github.com/specq-run/specq/internal/executor"
	"github.com/specq-run/specq/internal/gitops"
	"github.com/specq-run/specq/internal/graph"
	"github.com/specq-run/specq/internal/models"
	"github.com/specq-run/specq/internal/notifier"
	"github.com/specq-run/specq/internal/scanner"
	"github.com/specq-run/specq/internal/scheduler"
	"github.com/specq-run/specq/internal/store"
	"github.com/specq-run/specq/internal/voter"
)

const projectRulesFile = "CLAUDE.md"

// VoterFactory builds the committee for one verification pass from config.
type VoterFactory func(cfg *config.Config) []voter.Voter

// Loop wires every pipeline stage's concrete dependency and runs the
// scan-pick-execute-verify loop.
type Loop struct {
	Config      *config.Config
	Store       *store.Store
	Compiler    compiler.Compiler
	Executor    *executor.Executor
	Notifier    *notifier.Notifier
	BuildVoters VoterFactory
}

func (l *Loop) projectRules() string {
	raw, err := os.ReadFile(filepath.Join(l.Config.ProjectRoot, projectRulesFile))
	if err != nil {
		return ""
	}
	return string(raw)
}

// Run executes the orchestration loop. If targetID is non-empty, only that
// change is advanced and the loop exits after its first decision that is
// not a rejection re-armed for retry; otherwise it rescans and repeats
// until no change is ready.
func (l *Loop) Run(ctx context.Context, targetID string) error {
	projectRules := l.projectRules()

	for {
		items, tasksByItem, err := scanner.Scan(l.Config.ProjectRoot, l.Config.ChangesDir)
		if err != nil {
			return fmt.Errorf("pipeline: scan: %w", err)
		}

		if err := l.reconcileStatuses(items, tasksByItem); err != nil {
			return err
		}

		g, err := graph.Build(items)
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		graph.UpdateBlockedReady(items)

		if err := l.persistAll(items, tasksByItem); err != nil {
			return err
		}

		next := scheduler.PickNext(items, g, targetID)
		if next == nil {
			return nil
		}

		_, retried, err := l.runChange(ctx, next, tasksByItem[next.ID], projectRules)
		if err != nil {
			return err
		}

		// A rejected decision with retry budget remaining re-arms the same
		// change and keeps going even in single-target mode; every other
		// outcome honors target_id by stopping after one pass.
		if retried {
			continue
		}
		if targetID != "" {
			return nil
		}
	}
}

// reconcileStatuses overlays freshly scanned items with stored state: a
// terminal status (accepted/failed/skipped) or any in-flight status found
// in the store is preserved rather than reset to pending.
func (l *Loop) reconcileStatuses(items []*models.WorkItem, tasksByItem map[string][]*models.Task) error {
	for _, wi := range items {
		existing, err := l.Store.GetWorkItem(wi.ID)
		if err != nil {
			return fmt.Errorf("pipeline: load work item %s: %w", wi.ID, err)
		}
		if existing != nil {
			wi.Status = existing.Status
			wi.RetryCount = existing.RetryCount
			wi.CompiledBrief = existing.CompiledBrief
			wi.ErrorMessage = existing.ErrorMessage
		}
		storedTasks, err := l.Store.GetTasks(wi.ID)
		if err != nil {
			return fmt.Errorf("pipeline: load tasks for %s: %w", wi.ID, err)
		}
		byID := make(map[string]*models.Task, len(storedTasks))
		for _, st := range storedTasks {
			byID[st.ID] = st
		}
		for _, task := range tasksByItem[wi.ID] {
			st, ok := byID[task.ID]
			if !ok {
				continue
			}
			task.Status = st.Status
			task.FilesChanged = st.FilesChanged
			task.CommitHash = st.CommitHash
			task.ExecutionOutput = st.ExecutionOutput
			task.TurnsUsed = st.TurnsUsed
			task.TokensIn = st.TokensIn
			task.TokensOut = st.TokensOut
			task.DurationSec = st.DurationSec
		}
	}
	return nil
}

func (l *Loop) persistAll(items []*models.WorkItem, tasksByItem map[string][]*models.Task) error {
	for _, wi := range items {
		if err := l.Store.UpsertWorkItem(wi); err != nil {
			return fmt.Errorf("pipeline: persist work item %s: %w", wi.ID, err)
		}
		for _, task := range tasksByItem[wi.ID] {
			task.WorkItemID = wi.ID
			if err := l.Store.UpsertTask(task); err != nil {
				return fmt.Errorf("pipeline: persist task %s/%s: %w", wi.ID, task.ID, err)
			}
		}
	}
	return nil
}

// runChange executes one change's full compile/execute/verify/decide
// pass. It returns the aggregated decision and whether the change was
// re-armed for an immediate retry (StatusReady with a bumped RetryCount).
func (l *Loop) runChange(ctx context.Context, wi *models.WorkItem, tasks []*models.Task, projectRules string) (models.Decision, bool, error) {
	allTaskTitles := make([]string, len(tasks))
	for i, t := range tasks {
		allTaskTitles[i] = t.Title
	}

	var retryFindings []models.Finding
	if wi.RetryCount > 0 {
		votes, err := l.Store.GetVoteResults(wi.ID, wi.RetryCount)
		if err != nil {
			return "", false, fmt.Errorf("pipeline: load retry findings for %s: %w", wi.ID, err)
		}
		for _, v := range votes {
			retryFindings = append(retryFindings, v.Findings...)
		}
	}

	cwd := l.Config.ProjectRoot

	for _, task := range tasks {
		l.setStatus(wi, models.StatusCompiling)
		l.logEvent(wi.ID, "compile", fmt.Sprintf(`{"task":%q}`, task.ID))

		var prevResults []*models.Task
		for _, t := range tasks {
			if t.Status == models.StatusAccepted {
				prevResults = append(prevResults, t)
			}
		}

		brief, err := l.Compiler.Compile(ctx, compiler.Input{
			Proposal:      wi.Description,
			AllTasks:      allTaskTitles,
			CurrentTask:   task,
			PrevResults:   prevResults,
			ProjectRules:  projectRules,
			RetryFindings: retryFindings,
		})
		if err != nil {
			return "", false, fmt.Errorf("pipeline: compile brief for %s/%s: %w", wi.ID, task.ID, err)
		}
		wi.CompiledBrief = brief
		if err := l.Store.UpdateCompiledBrief(wi.ID, brief); err != nil {
			return "", false, fmt.Errorf("pipeline: persist brief: %w", err)
		}

		l.setStatus(wi, models.StatusRunning)
		l.logEvent(wi.ID, "execute", fmt.Sprintf(`{"task":%q}`, task.ID))

		result := l.Executor.Execute(ctx, wi.ID, cwd, brief)

		task.FilesChanged = result.FilesChanged
		task.CommitHash = result.CommitHash
		task.ExecutionOutput = result.Output
		task.TurnsUsed = result.TurnsUsed
		task.TokensIn = result.TokensIn
		task.TokensOut = result.TokensOut
		task.DurationSec = result.DurationSec
		if result.Success {
			task.Status = models.StatusAccepted
		} else {
			task.Status = models.StatusFailed
		}
		if err := l.Store.UpsertTask(task); err != nil {
			return "", false, fmt.Errorf("pipeline: persist task result: %w", err)
		}

		// A failed task stops the remaining task sequence, but the change
		// still proceeds to verification against whatever diff exists so
		// far rather than short-circuiting the decision.
		if !result.Success {
			break
		}
	}

	strategy := config.GetVerificationStrategy(wi, l.Config)

	var decision models.Decision
	var findings []models.Finding

	if strategy != models.StrategySkip {
		l.setStatus(wi, models.StatusVerifying)

		diff, err := gitops.Diff(cwd, l.Config.BaseBranch, 50000)
		if err != nil {
			diff = ""
		}

		voters := l.BuildVoters(l.Config)
		results := voter.RunVoters(ctx, voters, diff, wi.Description, projectRules, l.Config.Verification.Checks)

		attempt := wi.RetryCount + 1
		if err := l.Store.SaveVoteResults(wi.ID, attempt, results); err != nil {
			return "", false, fmt.Errorf("pipeline: persist vote results: %w", err)
		}
		l.logEvent(wi.ID, "vote", fmt.Sprintf(`{"attempt":%d,"count":%d}`, attempt, len(results)))

		decision, findings = aggregator.Aggregate(results, strategy, wi.Risk)
	} else {
		decision = models.DecisionApproved
	}

	retried := false
	switch decision {
	case models.DecisionApproved:
		l.setStatus(wi, models.StatusAccepted)
		l.logEvent(wi.ID, "approve", "{}")
		l.Notifier.Notify(ctx, "change.completed", wi)

	case models.DecisionNeedsReview:
		l.setStatus(wi, models.StatusNeedsReview)
		l.logEvent(wi.ID, "needs_review", "{}")
		l.Notifier.Notify(ctx, "change.needs_review", wi)

	case models.DecisionRejected:
		if wi.RetryCount < wi.MaxRetries {
			wi.RetryCount++
			if err := l.Store.UpdateRetryCount(wi.ID, wi.RetryCount); err != nil {
				return "", false, fmt.Errorf("pipeline: persist retry count: %w", err)
			}
			l.setStatus(wi, models.StatusReady)
			l.logEvent(wi.ID, "retry", fmt.Sprintf(`{"attempt":%d,"findings":%d}`, wi.RetryCount, len(findings)))
			retried = true
		} else {
			l.setStatus(wi, models.StatusFailed)
			l.logEvent(wi.ID, "failed", `{"reason":"max_retries_exceeded"}`)
			l.Notifier.Notify(ctx, "change.failed", wi)
		}
	}

	return decision, retried, nil
}

func (l *Loop) setStatus(wi *models.WorkItem, status models.Status) {
	wi.Status = status
	if err := l.Store.UpdateStatus(wi.ID, status); err != nil {
		wi.ErrorMessage = err.Error()
	}
}

func (l *Loop) logEvent(changeID, event, detail string) {
	_ = l.Store.LogEvent(changeID, event, detail)
}
