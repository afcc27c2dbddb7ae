package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"clipforge/internal/config"
	"clipforge/internal/services"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    channel       TEXT NOT NULL DEFAULT '',
    mood          TEXT NOT NULL DEFAULT '',
    report        INTEGER NOT NULL DEFAULT 0,
    scenes_json   TEXT NOT NULL DEFAULT '[]',
    stills_json   TEXT NOT NULL DEFAULT '[]',
    output_json   TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    retryable     INTEGER NOT NULL DEFAULT 0,
    final_file    TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
`

// Open initializes or connects to the job database under the log directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "jobs.db"))
}

// OpenPath initializes or connects to a job database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply job schema: %w", err)
	}
	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

const jobColumns = "id, title, channel, mood, report, scenes_json, stills_json, output_json, status, error_message, retryable, final_file, created_at, updated_at"

// Create inserts a new job. An empty ID is assigned a fresh UUID and an empty
// status starts as pending.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Title,
		job.Channel,
		job.Mood,
		boolToInt(job.Report),
		job.ScenesJSON,
		job.StillsJSON,
		job.OutputJSON,
		string(job.Status),
		job.ErrorMessage,
		boolToInt(job.Retryable),
		job.FinalFile,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update persists all mutable fields of the job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET title = ?, channel = ?, mood = ?, report = ?, scenes_json = ?, stills_json = ?,
            output_json = ?, status = ?, error_message = ?, retryable = ?, final_file = ?, updated_at = ?
         WHERE id = ?`,
		job.Title,
		job.Channel,
		job.Mood,
		boolToInt(job.Report),
		job.ScenesJSON,
		job.StillsJSON,
		job.OutputJSON,
		string(job.Status),
		job.ErrorMessage,
		boolToInt(job.Retryable),
		job.FinalFile,
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "jobs", "update", "job "+job.ID, nil)
	}
	return nil
}

// GetByID loads a single job.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "get", "job "+id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// NextPending returns the oldest pending job, or nil when the queue is empty.
func (s *Store) NextPending(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1`,
		string(StatusPending))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending job: %w", err)
	}
	return job, nil
}

// RetryFailed resets retryable failed jobs back to pending. A job that still
// has persisted pipeline output resumes at the assembled state so only
// finalization is re-run. It returns the number of jobs reset.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	run := func(query string, args ...any) (int, error) {
		res, err := s.execWithRetry(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		return int(affected), nil
	}

	resumable := `UPDATE jobs SET status = ?, error_message = '', updated_at = ?
        WHERE status = ? AND retryable = 1 AND output_json != ''`
	fresh := `UPDATE jobs SET status = ?, error_message = '', updated_at = ?
        WHERE status = ? AND retryable = 1 AND output_json = ''`
	resumableArgs := []any{string(StatusAssembled), now, string(StatusFailed)}
	freshArgs := []any{string(StatusPending), now, string(StatusFailed)}

	if len(ids) > 0 {
		placeholders := make([]string, len(ids))
		idArgs := make([]any, len(ids))
		for i, id := range ids {
			placeholders[i] = "?"
			idArgs[i] = id
		}
		clause := ` AND id IN (` + strings.Join(placeholders, ", ") + `)`
		resumable += clause
		fresh += clause
		resumableArgs = append(resumableArgs, idArgs...)
		freshArgs = append(freshArgs, idArgs...)
	}

	resumed, err := run(resumable, resumableArgs...)
	if err != nil {
		return 0, err
	}
	restarted, err := run(fresh, freshArgs...)
	if err != nil {
		return resumed, err
	}
	return resumed + restarted, nil
}

// Clear removes jobs in the given statuses and returns the number deleted.
func (s *Store) Clear(ctx context.Context, statuses ...Status) (int, error) {
	if len(statuses) == 0 {
		return 0, errors.New("clear: at least one status required")
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = string(status)
	}

	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE status IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

// Counts returns the number of jobs per status.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, err
		}
		if status, ok := ParseStatus(raw); ok {
			counts[status] = count
		}
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job                Job
		report, retryable  int
		createdRaw, updRaw string
		statusRaw          string
	)
	if err := row.Scan(
		&job.ID,
		&job.Title,
		&job.Channel,
		&job.Mood,
		&report,
		&job.ScenesJSON,
		&job.StillsJSON,
		&job.OutputJSON,
		&statusRaw,
		&job.ErrorMessage,
		&retryable,
		&job.FinalFile,
		&createdRaw,
		&updRaw,
	); err != nil {
		return nil, err
	}
	job.Report = report != 0
	job.Retryable = retryable != 0
	job.Status = Status(statusRaw)
	if parsed, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		job.CreatedAt = parsed
	}
	if parsed, err := time.Parse(time.RFC3339Nano, updRaw); err == nil {
		job.UpdatedAt = parsed
	}
	return &job, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
