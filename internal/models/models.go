// Package models holds the data types shared across specq's orchestration
// packages: work items, their compiled tasks, voter verdicts, and the
// append-only run log.
package models

import "time"

// Status is the lifecycle state of a WorkItem as it moves through the
// pipeline.
type Status string

const (
	StatusPending     Status = "pending"
	StatusBlocked     Status = "blocked"
	StatusReady       Status = "ready"
	StatusCompiling   Status = "compiling"
	StatusRunning     Status = "running"
	StatusVerifying   Status = "verifying"
	StatusAccepted    Status = "accepted"
	StatusNeedsReview Status = "needs_review"
	StatusRejected    Status = "rejected"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
)

// Risk is the declared or inferred risk tier of a change.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// VerificationStrategy selects how voter results are aggregated into a
// decision.
type VerificationStrategy string

const (
	StrategySkip      VerificationStrategy = "skip"
	StrategyMajority  VerificationStrategy = "majority"
	StrategyUnanimous VerificationStrategy = "unanimous"
)

// Verdict is a single voter's judgment on a proposed change's diff.
type Verdict string

const (
	VerdictPass  Verdict = "pass"
	VerdictFail  Verdict = "fail"
	VerdictError Verdict = "error"
)

// Severity classifies a single voter Finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Decision is the aggregator's final call for a change.
type Decision string

const (
	DecisionApproved    Decision = "approved"
	DecisionRejected    Decision = "rejected"
	DecisionNeedsReview Decision = "needs_review"
)

const DefaultMaxRetries = 3

// WorkItem is one change proposal discovered by the scanner: a directory
// under the changes root with a proposal.md and optional tasks.md.
//
// id equals the directory name; deps name other WorkItem ids and are
// validated by the DAG (internal/graph) before the item is dispatched.
type WorkItem struct {
	ID          string
	Dir         string // path relative to project root
	Title       string
	Description string // proposal body, front-matter stripped
	Deps        []string
	Priority    int
	Risk        Risk

	// Per-change overrides from proposal.md front-matter; empty means
	// "use the configured default".
	ExecutorType         string
	ExecutorModel        string
	MaxTurns             int
	ExecutorTools        []string
	VerificationStrategy VerificationStrategy

	Status         Status
	RetryCount     int
	MaxRetries     int
	CompiledBrief  string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Task is one sub-unit of a WorkItem's plan, identified by
// (WorkItemID, ID) where ID matches "task-<slug>". Parsed from tasks.md in
// file order; Seq preserves that order since IDs are not sortable.
type Task struct {
	ID          string
	WorkItemID  string
	Seq         int
	Title       string
	Description string
	Status      Status

	FilesChanged    []string
	CommitHash      string
	ExecutionOutput string
	TurnsUsed       int
	TokensIn        int
	TokensOut       int
	DurationSec     float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Finding is one reviewer observation attached to a VoteResult.
type Finding struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
}

// VoteResult is one voter's structured verdict on a WorkItem's diff, stored
// keyed by (WorkItemID, Attempt) where Attempt = RetryCount + 1.
type VoteResult struct {
	ID         int64
	WorkItemID string
	Attempt    int
	VoterName  string
	Verdict    Verdict
	Confidence float64
	Findings   []Finding
	Summary    string
	CreatedAt  time.Time
}

// LogEvent is one append-only entry in the run log: a state transition or
// notable event for a WorkItem.
type LogEvent struct {
	ID         int64
	WorkItemID string
	Event      string
	Detail     string // opaque JSON
	CreatedAt  time.Time
}

// AgentRun is the result of one coding-agent subprocess invocation.
type AgentRun struct {
	Success  bool
	Output   string
	Turns    int
	TokensIn int
	TokensOut int
	Duration time.Duration
	Error    string
}

// ExecutionResult is the Executor's outcome for one Task: the agent's raw
// result plus the git fingerprint of whatever it changed.
type ExecutionResult struct {
	Success      bool
	Output       string
	FilesChanged []string
	CommitHash   string
	TurnsUsed    int
	TokensIn     int
	TokensOut    int
	DurationSec  float64
	Error        string
}
