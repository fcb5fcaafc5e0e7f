package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	conn *sql.DB
	now  func() time.Time
}

// NewSQLite opens (or creates) a SQLite database at path and applies all
// pending migrations from the embedded migrations/ directory.
func NewSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: ":memory:" databases are per-connection and SQLite
	// serialises writers anyway.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, err
		}
	}
	applied, err := migrate(context.Background(), conn, time.Now().UTC())
	if err != nil {
		conn.Close()
		return nil, err
	}
	if len(applied) > 0 {
		slog.Info("job store migrated", "path", path, "versions", applied)
	}
	return &SQLiteStore{conn: conn, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error { return s.conn.Close() }

// --- Jobs ---

const jobColumns = `id, folder_path, show_id, show_name, state, confirm_renames,
	download_posters, write_tags, match_strategy, error, renamed, skipped, errors,
	posters_downloaded, created_at, started_at, finished_at`

// CreateJob inserts j in the queued state. CreatedAt is set by the store.
func (s *SQLiteStore) CreateJob(ctx context.Context, j Job) (Job, error) {
	j.State = JobQueued
	j.CreatedAt = s.now().UTC()
	j.StartedAt, j.FinishedAt = nil, nil
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, folder_path, show_id, show_name, state, confirm_renames,
			download_posters, write_tags, match_strategy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.FolderPath, j.ShowID, j.ShowName, j.State, j.ConfirmRenames,
		j.DownloadPosters, j.WriteTags, j.MatchStrategy, formatTime(j.CreatedAt))
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// ListJobs returns the most recent jobs first. A limit <= 0 returns all.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// JobIDsWithPrefix returns up to limit job ids starting with prefix.
func (s *SQLiteStore) JobIDsWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id FROM jobs
		WHERE substr(id, 1, length(?1)) = ?1
		ORDER BY id
		LIMIT ?2
	`, prefix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetJobState moves a job to state. Entering running stamps started_at;
// entering a terminal state stamps finished_at and stores errMsg.
func (s *SQLiteStore) SetJobState(ctx context.Context, id string, state JobState, errMsg string) error {
	now := formatTime(s.now().UTC())
	var (
		res sql.Result
		err error
	)
	switch {
	case state == JobRunning:
		res, err = s.conn.ExecContext(ctx,
			`UPDATE jobs SET state = ?, started_at = ? WHERE id = ?`, state, now, id)
	case state.Done():
		res, err = s.conn.ExecContext(ctx,
			`UPDATE jobs SET state = ?, error = ?, finished_at = ? WHERE id = ?`, state, errMsg, now, id)
	default:
		res, err = s.conn.ExecContext(ctx, `UPDATE jobs SET state = ? WHERE id = ?`, state, id)
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AddJobStats adds stats to the job's running totals.
func (s *SQLiteStore) AddJobStats(ctx context.Context, id string, stats JobStats) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE jobs SET
			renamed            = renamed + ?,
			skipped            = skipped + ?,
			errors             = errors + ?,
			posters_downloaded = posters_downloaded + ?
		WHERE id = ?
	`, stats.Renamed, stats.Skipped, stats.Errors, stats.PostersDownloaded, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListUnfinishedJobs returns queued and running jobs, oldest first.
func (s *SQLiteStore) ListUnfinishedJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE state IN (?, ?)
		ORDER BY created_at, rowid
	`, JobQueued, JobRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FailUnfinishedJob marks id failed with errMsg if it is still queued or
// running. It reports whether the job was changed.
func (s *SQLiteStore) FailUnfinishedJob(ctx context.Context, id, errMsg string) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE jobs SET state = ?, error = ?, finished_at = ?
		WHERE id = ? AND state IN (?, ?)
	`, JobFailed, errMsg, formatTime(s.now().UTC()), id, JobQueued, JobRunning)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- Rename history ---

func (s *SQLiteStore) RecordRename(ctx context.Context, r Rename) error {
	if r.RenamedAt.IsZero() {
		r.RenamedAt = s.now()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO renames (job_id, season, episode, old_path, new_path, renamed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.JobID, r.Season, r.Episode, r.OldPath, r.NewPath, formatTime(r.RenamedAt.UTC()))
	return err
}

// ListRenames returns a job's renames in the order they happened.
func (s *SQLiteStore) ListRenames(ctx context.Context, jobID string) ([]Rename, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, job_id, season, episode, old_path, new_path, renamed_at
		FROM renames WHERE job_id = ?
		ORDER BY id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rename
	for rows.Next() {
		var r Rename
		var at string
		if err := rows.Scan(&r.ID, &r.JobID, &r.Season, &r.Episode, &r.OldPath, &r.NewPath, &at); err != nil {
			return nil, err
		}
		if r.RenamedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var (
		j                 Job
		created           string
		started, finished sql.NullString
	)
	if err := row.Scan(&j.ID, &j.FolderPath, &j.ShowID, &j.ShowName, &j.State,
		&j.ConfirmRenames, &j.DownloadPosters, &j.WriteTags, &j.MatchStrategy, &j.Error,
		&j.Stats.Renamed, &j.Stats.Skipped, &j.Stats.Errors, &j.Stats.PostersDownloaded,
		&created, &started, &finished); err != nil {
		return Job{}, err
	}
	var err error
	if j.CreatedAt, err = parseTime(created); err != nil {
		return Job{}, err
	}
	if j.StartedAt, err = parseNullTime(started); err != nil {
		return Job{}, err
	}
	if j.FinishedAt, err = parseNullTime(finished); err != nil {
		return Job{}, err
	}
	return j, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
