package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"clipforge/internal/config"
)

// ErrNotFound is returned when no job matches the requested ID.
var ErrNotFound = errors.New("job not found")

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "jobs.db"))
}

// OpenPath opens the job database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
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

// NewJob inserts a pending job for the given uploads.
func (s *Store) NewJob(ctx context.Context, title string, clips []Clip, trimStart, trimEnd *float64) (*Job, error) {
	clipsJSON, err := json.Marshal(clips)
	if err != nil {
		return nil, fmt.Errorf("marshal clips: %w", err)
	}

	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (id, title, status, clips_json, trim_start, trim_end, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		strings.TrimSpace(title),
		StatusPending,
		string(clipsJSON),
		nullableFloat(trimStart),
		nullableFloat(trimEnd),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Update persists the mutable fields of a job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	clipsJSON, err := json.Marshal(job.Clips)
	if err != nil {
		return fmt.Errorf("marshal clips: %w", err)
	}
	job.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET title = ?, status = ?, clips_json = ?, output_path = ?,
            video_bitrate_kbps = ?, artifact_bytes = ?, result = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		job.Title,
		job.Status,
		string(clipsJSON),
		job.OutputPath,
		job.VideoBitrateKbps,
		job.ArtifactBytes,
		string(job.Result),
		job.ErrorMessage,
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
		return fmt.Errorf("job %s not found", job.ID)
	}
	return nil
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job, err
}

// Find resolves a job by full ID or by a unique ID prefix.
func (s *Store) Find(ctx context.Context, idOrPrefix string) (*Job, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return nil, fmt.Errorf("job id: %w", ErrNotFound)
	}

	job, err := s.GetByID(ctx, idOrPrefix)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+" WHERE id LIKE ? LIMIT 2", idOrPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("find job: %w", err)
	}
	defer rows.Close()

	var matches []*Job
	for rows.Next() {
		match, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("job %s: %w", idOrPrefix, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("job id prefix %q is ambiguous", idOrPrefix)
	}
}

// List returns jobs ordered newest first, up to limit (0 means no limit).
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	query := selectColumns + " ORDER BY created_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// FailInFlight marks every non-terminal job failed. Called at daemon startup
// to surface jobs orphaned by a crash, and at shutdown.
func (s *Store) FailInFlight(ctx context.Context) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, result = ?, error_message = ?, updated_at = ?
         WHERE status NOT IN (?, ?, ?)`,
		StatusFailed,
		string(ResultDaemonStopped),
		DaemonStopReason,
		timestamp,
		StatusDelivered,
		StatusRejected,
		StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("fail in-flight jobs: %w", err)
	}
	return res.RowsAffected()
}

const selectColumns = `SELECT id, title, status, clips_json, trim_start, trim_end, output_path,
    video_bitrate_kbps, artifact_bytes, result, error_message, created_at, updated_at FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job       Job
		clipsJSON string
		trimStart sql.NullFloat64
		trimEnd   sql.NullFloat64
		result    string
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&job.ID,
		&job.Title,
		&job.Status,
		&clipsJSON,
		&trimStart,
		&trimEnd,
		&job.OutputPath,
		&job.VideoBitrateKbps,
		&job.ArtifactBytes,
		&result,
		&job.ErrorMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if err := json.Unmarshal([]byte(clipsJSON), &job.Clips); err != nil {
		return nil, fmt.Errorf("unmarshal clips: %w", err)
	}
	if trimStart.Valid {
		value := trimStart.Float64
		job.TrimStart = &value
	}
	if trimEnd.Valid {
		value := trimEnd.Float64
		job.TrimEnd = &value
	}
	job.Result = Result(result)
	job.CreatedAt = parseTimestamp(createdAt)
	job.UpdatedAt = parseTimestamp(updatedAt)
	return &job, nil
}

func parseTimestamp(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}
