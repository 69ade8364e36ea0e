package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/muylucir/pr-review-orchestrator/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for executions, their
// durable stage journal, and the task-result audit trail.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateExecution inserts a new execution record
func (s *Store) CreateExecution(e *domain.Execution) error {
	_, err := s.db.Exec(`
		INSERT INTO executions (id, platform, owner, repo, pr_number, pr_title, stage, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		string(e.PR.Platform),
		e.PR.Owner,
		e.PR.Repo,
		e.PR.Number,
		e.PR.Title,
		string(e.Stage),
		string(e.Status),
		e.StartedAt,
	)
	return err
}

// GetExecution retrieves an execution by id
func (s *Store) GetExecution(id string) (*domain.Execution, error) {
	row := s.db.QueryRow(`
		SELECT id, platform, owner, repo, pr_number, pr_title, stage, status, error, started_at, finished_at
		FROM executions WHERE id = ?
	`, id)

	return scanExecution(row)
}

// ListOptions specifies filters for listing executions
type ListOptions struct {
	Status domain.ExecutionStatus
	Limit  int
}

// ListExecutions returns executions matching the given options,
// newest first
func (s *Store) ListExecutions(opts ListOptions) ([]*domain.Execution, error) {
	query := `SELECT id, platform, owner, repo, pr_number, pr_title, stage, status, error, started_at, finished_at FROM executions WHERE 1=1`
	var args []interface{}

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY started_at DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}

	return execs, rows.Err()
}

// UpdateStage records the execution's current stage
func (s *Store) UpdateStage(id string, stage domain.Stage) error {
	_, err := s.db.Exec(`UPDATE executions SET stage = ? WHERE id = ?`, string(stage), id)
	return err
}

// FinishExecution marks an execution terminal. Terminal records are
// never updated again.
func (s *Store) FinishExecution(id string, status domain.ExecutionStatus, errMsg string) error {
	res, err := s.db.Exec(`
		UPDATE executions SET status = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`, string(status), errMsg, time.Now(), id, string(domain.ExecutionRunning))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("execution %s is not running", id)
	}
	return nil
}

// JournalStage stores a completed stage's output payload. Write-once:
// a stage already journaled for this execution keeps its first payload.
func (s *Store) JournalStage(executionID string, stage domain.Stage, payload []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO stage_journal (execution_id, stage, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(execution_id, stage) DO NOTHING
	`, executionID, string(stage), string(payload))
	return err
}

// GetJournal returns the journaled payload for a stage, if present
func (s *Store) GetJournal(executionID string, stage domain.Stage) ([]byte, bool, error) {
	var payload string
	err := s.db.QueryRow(`
		SELECT payload FROM stage_journal WHERE execution_id = ? AND stage = ?
	`, executionID, string(stage)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(payload), true, nil
}

// RecordTaskResult appends one task invocation outcome to the audit
// trail. The pass distinguishes first-pass results from the retry pass.
func (s *Store) RecordTaskResult(executionID string, pass int, taskName string, r domain.TaskResult) error {
	_, err := s.db.Exec(`
		INSERT INTO task_results (execution_id, chunk_index, pass, task, status_code, error_kind, error_message, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		executionID,
		r.ChunkIndex,
		pass,
		taskName,
		r.StatusCode,
		string(r.ErrorKind),
		r.ErrorMessage,
		string(r.Body),
	)
	return err
}

// TaskResultRow is one audit-trail entry
type TaskResultRow struct {
	Pass   int
	Task   string
	Result domain.TaskResult
}

// ListTaskResults returns the audit trail for an execution in
// insertion order
func (s *Store) ListTaskResults(executionID string) ([]TaskResultRow, error) {
	rows, err := s.db.Query(`
		SELECT chunk_index, pass, task, status_code, error_kind, error_message, body
		FROM task_results WHERE execution_id = ? ORDER BY id
	`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskResultRow
	for rows.Next() {
		var row TaskResultRow
		var kind, msg, body string
		if err := rows.Scan(&row.Result.ChunkIndex, &row.Pass, &row.Task, &row.Result.StatusCode, &kind, &msg, &body); err != nil {
			return nil, err
		}
		row.Result.ErrorKind = domain.ErrorKind(kind)
		row.Result.ErrorMessage = msg
		row.Result.Body = []byte(body)
		out = append(out, row)
	}

	return out, rows.Err()
}

// DeleteFinishedBefore removes terminal executions older than cutoff,
// together with their journal and audit rows. Returns the number of
// executions removed.
func (s *Store) DeleteFinishedBefore(cutoff time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	where := `SELECT id FROM executions WHERE finished_at IS NOT NULL AND finished_at < ?`

	if _, err := tx.Exec(`DELETE FROM task_results WHERE execution_id IN (`+where+`)`, cutoff); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`DELETE FROM stage_journal WHERE execution_id IN (`+where+`)`, cutoff); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM executions WHERE finished_at IS NOT NULL AND finished_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return n, tx.Commit()
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row scanner) (*domain.Execution, error) {
	var e domain.Execution
	var platform, stage, status string
	var errMsg sql.NullString
	var finished sql.NullTime

	err := row.Scan(&e.ID, &platform, &e.PR.Owner, &e.PR.Repo, &e.PR.Number, &e.PR.Title, &stage, &status, &errMsg, &e.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	e.PR.Platform = domain.Platform(platform)
	e.Stage = domain.Stage(stage)
	e.Status = domain.ExecutionStatus(status)
	if errMsg.Valid {
		e.Error = errMsg.String
	}
	if finished.Valid {
		t := finished.Time
		e.FinishedAt = &t
	}

	return &e, nil
}
