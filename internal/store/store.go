// Package store provides SQLite-backed persistence for specq's orchestration
// state: work items, their compiled tasks, voter results, and the run log.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/specq-run/specq/internal/models"
)

// Store wraps a SQLite database holding orchestration state.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS work_items (
	id TEXT PRIMARY KEY,
	dir TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	risk TEXT NOT NULL DEFAULT 'medium',
	priority INTEGER DEFAULT 0,
	deps TEXT DEFAULT '[]',
	executor_type TEXT DEFAULT '',
	executor_model TEXT DEFAULT '',
	max_turns INTEGER DEFAULT 0,
	executor_tools TEXT DEFAULT '[]',
	verification_strategy TEXT DEFAULT '',
	retry_count INTEGER DEFAULT 0,
	max_retries INTEGER DEFAULT 3,
	compiled_brief TEXT DEFAULT '',
	error_message TEXT DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT NOT NULL,
	work_item_id TEXT NOT NULL REFERENCES work_items(id),
	seq INTEGER NOT NULL,
	title TEXT DEFAULT '',
	description TEXT DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	files_changed TEXT DEFAULT '[]',
	commit_hash TEXT DEFAULT '',
	execution_output TEXT DEFAULT '',
	turns_used INTEGER DEFAULT 0,
	tokens_in INTEGER DEFAULT 0,
	tokens_out INTEGER DEFAULT 0,
	duration_sec REAL DEFAULT 0.0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (work_item_id, id)
);

CREATE TABLE IF NOT EXISTS vote_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	work_item_id TEXT NOT NULL REFERENCES work_items(id),
	attempt INTEGER NOT NULL,
	voter TEXT NOT NULL,
	verdict TEXT NOT NULL,
	confidence REAL,
	findings TEXT DEFAULT '[]',
	summary TEXT DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	work_item_id TEXT NOT NULL,
	event TEXT NOT NULL,
	detail TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_work_items_status ON work_items(status);
CREATE INDEX IF NOT EXISTS idx_tasks_work_item ON tasks(work_item_id);
CREATE INDEX IF NOT EXISTS idx_votes_work_item_attempt ON vote_results(work_item_id, attempt);
CREATE INDEX IF NOT EXISTS idx_run_log_work_item ON run_log(work_item_id);
`

// Open creates (or reuses) a SQLite database at dbPath in WAL mode and
// applies the schema.
func Open(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for packages that need ad-hoc read-only
// queries (e.g. a reporting CLI verb).
func (s *Store) DB() *sql.DB {
	return s.db
}

func marshalStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func marshalFindings(v []models.Finding) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalFindings(raw string) []models.Finding {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []models.Finding
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// UpsertWorkItem inserts a work item or updates it in place, keyed by ID.
func (s *Store) UpsertWorkItem(wi *models.WorkItem) error {
	now := time.Now().UTC()
	if wi.CreatedAt.IsZero() {
		wi.CreatedAt = now
	}
	wi.UpdatedAt = now
	if wi.MaxRetries == 0 {
		wi.MaxRetries = models.DefaultMaxRetries
	}
	_, err := s.db.Exec(`
		INSERT INTO work_items
			(id, dir, title, description, status, risk, priority, deps, executor_type, executor_model,
			 max_turns, executor_tools, verification_strategy, retry_count, max_retries,
			 compiled_brief, error_message, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			dir=excluded.dir, title=excluded.title, description=excluded.description,
			status=excluded.status, risk=excluded.risk, priority=excluded.priority, deps=excluded.deps,
			executor_type=excluded.executor_type, executor_model=excluded.executor_model,
			max_turns=excluded.max_turns, executor_tools=excluded.executor_tools,
			verification_strategy=excluded.verification_strategy, retry_count=excluded.retry_count,
			max_retries=excluded.max_retries, compiled_brief=excluded.compiled_brief,
			error_message=excluded.error_message, updated_at=excluded.updated_at
	`,
		wi.ID, wi.Dir, wi.Title, wi.Description, string(wi.Status), string(wi.Risk), wi.Priority,
		marshalStrings(wi.Deps), wi.ExecutorType, wi.ExecutorModel,
		wi.MaxTurns, marshalStrings(wi.ExecutorTools), string(wi.VerificationStrategy),
		wi.RetryCount, wi.MaxRetries, wi.CompiledBrief, wi.ErrorMessage,
		wi.CreatedAt.Format(time.RFC3339Nano), wi.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: upsert work item %s: %w", wi.ID, err)
	}
	return nil
}

const workItemCols = `id, dir, title, description, status, risk, priority, deps, executor_type, executor_model,
	max_turns, executor_tools, verification_strategy, retry_count, max_retries,
	compiled_brief, error_message, created_at, updated_at`

func scanWorkItem(row interface {
	Scan(dest ...any) error
}) (*models.WorkItem, error) {
	var wi models.WorkItem
	var deps, tools, createdAt, updatedAt string
	err := row.Scan(
		&wi.ID, &wi.Dir, &wi.Title, &wi.Description, &wi.Status, &wi.Risk, &wi.Priority, &deps,
		&wi.ExecutorType, &wi.ExecutorModel, &wi.MaxTurns, &tools, &wi.VerificationStrategy,
		&wi.RetryCount, &wi.MaxRetries, &wi.CompiledBrief, &wi.ErrorMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	wi.Deps = unmarshalStrings(deps)
	wi.ExecutorTools = unmarshalStrings(tools)
	wi.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	wi.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &wi, nil
}

// GetWorkItem fetches a single work item by ID, or (nil, nil) if absent.
func (s *Store) GetWorkItem(id string) (*models.WorkItem, error) {
	row := s.db.QueryRow(`SELECT `+workItemCols+` FROM work_items WHERE id = ?`, id)
	wi, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get work item %s: %w", id, err)
	}
	return wi, nil
}

// ListWorkItems returns all work items ordered by ID.
func (s *Store) ListWorkItems() ([]*models.WorkItem, error) {
	rows, err := s.db.Query(`SELECT ` + workItemCols + ` FROM work_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list work items: %w", err)
	}
	defer rows.Close()
	var out []*models.WorkItem
	for rows.Next() {
		wi, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan work item: %w", err)
		}
		out = append(out, wi)
	}
	return out, rows.Err()
}

// ListWorkItemsByStatus returns work items currently in the given status.
func (s *Store) ListWorkItemsByStatus(status models.Status) ([]*models.WorkItem, error) {
	rows, err := s.db.Query(`SELECT `+workItemCols+` FROM work_items WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("store: list work items by status %s: %w", status, err)
	}
	defer rows.Close()
	var out []*models.WorkItem
	for rows.Next() {
		wi, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan work item: %w", err)
		}
		out = append(out, wi)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a work item to a new status.
func (s *Store) UpdateStatus(id string, status models.Status) error {
	_, err := s.db.Exec(`UPDATE work_items SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("store: update status %s: %w", id, err)
	}
	return nil
}

// UpdateRetryCount persists the current retry count for a work item.
func (s *Store) UpdateRetryCount(id string, retryCount int) error {
	_, err := s.db.Exec(`UPDATE work_items SET retry_count = ?, updated_at = ? WHERE id = ?`,
		retryCount, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("store: update retry count %s: %w", id, err)
	}
	return nil
}

// UpdateCompiledBrief records the most recently assembled brief for a work
// item.
func (s *Store) UpdateCompiledBrief(id, brief string) error {
	_, err := s.db.Exec(`UPDATE work_items SET compiled_brief = ?, updated_at = ? WHERE id = ?`,
		brief, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("store: update compiled brief %s: %w", id, err)
	}
	return nil
}

// UpdateErrorMessage records the last failure reason for a work item.
func (s *Store) UpdateErrorMessage(id, msg string) error {
	_, err := s.db.Exec(`UPDATE work_items SET error_message = ?, updated_at = ? WHERE id = ?`,
		msg, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("store: update error message %s: %w", id, err)
	}
	return nil
}

// UpsertTask inserts or updates a single compiled task belonging to a work
// item.
func (s *Store) UpsertTask(t *models.Task) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO tasks
			(id, work_item_id, seq, title, description, status, files_changed, commit_hash,
			 execution_output, turns_used, tokens_in, tokens_out, duration_sec, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(work_item_id, id) DO UPDATE SET
			seq=excluded.seq, title=excluded.title, description=excluded.description,
			status=excluded.status, files_changed=excluded.files_changed, commit_hash=excluded.commit_hash,
			execution_output=excluded.execution_output, turns_used=excluded.turns_used,
			tokens_in=excluded.tokens_in, tokens_out=excluded.tokens_out,
			duration_sec=excluded.duration_sec, updated_at=excluded.updated_at
	`, t.ID, t.WorkItemID, t.Seq, t.Title, t.Description, string(t.Status),
		marshalStrings(t.FilesChanged), t.CommitHash, t.ExecutionOutput,
		t.TurnsUsed, t.TokensIn, t.TokensOut, t.DurationSec,
		t.CreatedAt.Format(time.RFC3339Nano), now)
	if err != nil {
		return fmt.Errorf("store: upsert task %s/%s: %w", t.WorkItemID, t.ID, err)
	}
	return nil
}

// GetTasks returns a work item's tasks in file order (by Seq).
func (s *Store) GetTasks(workItemID string) ([]*models.Task, error) {
	rows, err := s.db.Query(`
		SELECT id, work_item_id, seq, title, description, status, files_changed, commit_hash,
		       execution_output, turns_used, tokens_in, tokens_out, duration_sec, created_at, updated_at
		FROM tasks WHERE work_item_id = ? ORDER BY seq`, workItemID)
	if err != nil {
		return nil, fmt.Errorf("store: get tasks %s: %w", workItemID, err)
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		var t models.Task
		var filesChanged, createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.WorkItemID, &t.Seq, &t.Title, &t.Description, &t.Status,
			&filesChanged, &t.CommitHash, &t.ExecutionOutput, &t.TurnsUsed, &t.TokensIn, &t.TokensOut,
			&t.DurationSec, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		t.FilesChanged = unmarshalStrings(filesChanged)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// SaveVoteResults appends one committee attempt's verdicts for a work item.
func (s *Store) SaveVoteResults(workItemID string, attempt int, results []models.VoteResult) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, vr := range results {
		_, err := s.db.Exec(`
			INSERT INTO vote_results (work_item_id, attempt, voter, verdict, confidence, findings, summary, created_at)
			VALUES (?,?,?,?,?,?,?,?)
		`, workItemID, attempt, vr.VoterName, string(vr.Verdict), vr.Confidence,
			marshalFindings(vr.Findings), vr.Summary, now)
		if err != nil {
			return fmt.Errorf("store: save vote result %s/%s attempt %d: %w", workItemID, vr.VoterName, attempt, err)
		}
	}
	return nil
}

// GetVoteResults returns a work item's recorded voter verdicts for one
// attempt, in insertion order.
func (s *Store) GetVoteResults(workItemID string, attempt int) ([]models.VoteResult, error) {
	rows, err := s.db.Query(`
		SELECT id, work_item_id, attempt, voter, verdict, confidence, findings, summary, created_at
		FROM vote_results WHERE work_item_id = ? AND attempt = ? ORDER BY id`, workItemID, attempt)
	if err != nil {
		return nil, fmt.Errorf("store: get vote results %s attempt %d: %w", workItemID, attempt, err)
	}
	defer rows.Close()
	var out []models.VoteResult
	for rows.Next() {
		var vr models.VoteResult
		var findings, createdAt string
		if err := rows.Scan(&vr.ID, &vr.WorkItemID, &vr.Attempt, &vr.VoterName, &vr.Verdict, &vr.Confidence,
			&findings, &vr.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan vote result: %w", err)
		}
		vr.Findings = unmarshalFindings(findings)
		vr.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, vr)
	}
	return out, rows.Err()
}

// LogEvent appends one entry to the run log.
func (s *Store) LogEvent(workItemID, event, detail string) error {
	_, err := s.db.Exec(`INSERT INTO run_log (work_item_id, event, detail, created_at) VALUES (?,?,?,?)`,
		workItemID, event, detail, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: log event %s/%s: %w", workItemID, event, err)
	}
	return nil
}

// GetLogs returns the run log for a work item in chronological order.
func (s *Store) GetLogs(workItemID string) ([]models.LogEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, work_item_id, event, detail, created_at
		FROM run_log WHERE work_item_id = ? ORDER BY id`, workItemID)
	if err != nil {
		return nil, fmt.Errorf("store: get logs %s: %w", workItemID, err)
	}
	defer rows.Close()
	var out []models.LogEvent
	for rows.Next() {
		var e models.LogEvent
		var detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.WorkItemID, &e.Event, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan log event: %w", err)
		}
		e.Detail = detail.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
