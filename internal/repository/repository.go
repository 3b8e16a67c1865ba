// Package repository persists download tasks and their progress snapshots in SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/slipstream/downloaddb/internal/database"
	"github.com/slipstream/downloaddb/internal/download"
)

const (
	selectTaskColumns = `SELECT id, url, target_path, status, created_at, updated_at FROM download_tasks`
	taskOrder         = ` ORDER BY created_at DESC, rowid DESC`

	// A URL already owned by another row wins over the submitted task; an existing
	// id is updated in place without touching created_at.
	upsertTaskSQL = `
		INSERT INTO download_tasks (id, url, target_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			target_path = excluded.target_path,
			status = excluded.status,
			updated_at = excluded.updated_at`

	upsertProgressSQL = `
		INSERT INTO download_progress (task_id, downloaded_bytes, total_bytes, speed_bps, eta_seconds, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			downloaded_bytes = excluded.downloaded_bytes,
			total_bytes = excluded.total_bytes,
			speed_bps = excluded.speed_bps,
			eta_seconds = excluded.eta_seconds,
			updated_at = excluded.updated_at`

	selectProgressSQL = `
		SELECT task_id, downloaded_bytes, total_bytes, speed_bps, eta_seconds, updated_at
		FROM download_progress WHERE task_id = ?`
)

// SaveResult reports the task that is authoritative for a saved URL.
type SaveResult struct {
	Task *download.Task
	// Merged is set when the URL already belonged to a stored task. The submitted
	// task was not written and Task is the stored one.
	Merged bool
}

// StatusCount is the number of tasks sharing one stored status value.
type StatusCount struct {
	Status string `json:"status"` // stored encoding, see download.EncodeStatus
	Count  int64  `json:"count"`
}

// Label returns the human readable status, or the raw stored text if it does not decode.
func (c StatusCount) Label() string {
	status, err := download.DecodeStatus(c.Status)
	if err != nil {
		return c.Status
	}
	return status.String()
}

// Repository provides CRUD and aggregation over the task and progress tables.
// It keeps no cache; every call round-trips to the store.
type Repository struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a repository on an open connection.
func New(db *sql.DB, logger zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With().Str("component", "repository").Logger(),
		now:    time.Now,
	}
}

// SetClock replaces the time source used to stamp rows.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// Initialize creates the schema if needed. It is safe to call on every startup.
func (r *Repository) Initialize(ctx context.Context) error {
	if err := database.InitializeSchema(ctx, r.db); err != nil {
		return storeErr("initialize schema", err)
	}
	r.logger.Debug().Msg("schema initialized")
	return nil
}

// SaveTask stores task unless its URL is already owned by another row, in which
// case the stored task is returned unchanged and the result is marked Merged.
// Saving a task whose id exists updates url, target path, status and updated_at.
func (r *Repository) SaveTask(ctx context.Context, task *download.Task) (*SaveResult, error) {
	rec, err := NewTaskRecord(task, r.now())
	if err != nil {
		return nil, err
	}

	res, err := r.db.ExecContext(ctx, upsertTaskSQL,
		rec.ID, rec.URL, rec.TargetPath, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		// The id matched and the new url belongs to a different row.
		if isURLConflict(err) {
			return r.mergeWithExisting(ctx, task, err)
		}
		return nil, storeErr("save task", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storeErr("save task", err)
	}
	if affected == 0 {
		return r.mergeWithExisting(ctx, task, nil)
	}

	saved, err := r.GetTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return &SaveResult{Task: saved}, nil
}

func (r *Repository) mergeWithExisting(ctx context.Context, task *download.Task, cause error) (*SaveResult, error) {
	existing, err := r.GetTaskByURL(ctx, task.URL)
	if err != nil {
		if cause != nil && IsNotFound(err) {
			return nil, storeErr("save task", cause)
		}
		return nil, err
	}

	r.logger.Debug().
		Str("url", task.URL).
		Str("submittedId", task.ID.String()).
		Str("existingId", existing.ID.String()).
		Msg("task url already stored, keeping existing task")

	return &SaveResult{Task: existing, Merged: true}, nil
}

// GetTaskByURL returns the task stored for url.
func (r *Repository) GetTaskByURL(ctx context.Context, url string) (*download.Task, error) {
	return r.queryTask(ctx, "get task by url", url, selectTaskColumns+` WHERE url = ? LIMIT 1`, url)
}

// GetTask returns the task with the given id.
func (r *Repository) GetTask(ctx context.Context, id download.TaskID) (*download.Task, error) {
	key := id.String()
	return r.queryTask(ctx, "get task", key, selectTaskColumns+` WHERE id = ?`, key)
}

// ListTasks returns all tasks, newest first.
func (r *Repository) ListTasks(ctx context.Context) ([]*download.Task, error) {
	return r.queryTasks(ctx, "list tasks", selectTaskColumns+taskOrder)
}

// ListTasksByStatus returns tasks whose stored status equals status, newest first.
// Failed statuses match only when the reason is identical.
func (r *Repository) ListTasksByStatus(ctx context.Context, status download.Status) ([]*download.Task, error) {
	encoded, err := download.EncodeStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return r.queryTasks(ctx, "list tasks by status", selectTaskColumns+` WHERE status = ?`+taskOrder, encoded)
}

// UpdateStatus sets the status of an existing task.
func (r *Repository) UpdateStatus(ctx context.Context, id download.TaskID, status download.Status) error {
	encoded, err := download.EncodeStatus(status)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE download_tasks SET status = ?, updated_at = ? WHERE id = ?`,
		encoded, r.now().Unix(), id.String())
	if err != nil {
		return storeErr("update status", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("update status", err)
	}
	if affected == 0 {
		return notFound(id.String())
	}
	return nil
}

// DeleteTask removes a task and, through the foreign key cascade, its progress.
// Deleting an unknown id is not an error.
func (r *Repository) DeleteTask(ctx context.Context, id download.TaskID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM download_tasks WHERE id = ?`, id.String())
	return storeErr("delete task", err)
}

// SaveProgress inserts or overwrites the progress snapshot of taskID. The task must
// exist; the store rejects orphaned progress rows.
func (r *Repository) SaveProgress(ctx context.Context, taskID download.TaskID, progress *download.Progress) error {
	rec, err := NewProgressRecord(taskID, progress, r.now())
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, upsertProgressSQL,
		rec.TaskID, rec.DownloadedBytes, rec.TotalBytes, rec.SpeedBPS, rec.ETASeconds, rec.UpdatedAt)
	return storeErr("save progress", err)
}

// GetProgress returns the progress snapshot of taskID. A missing task and a task
// without progress both report ErrTaskNotFound.
func (r *Repository) GetProgress(ctx context.Context, taskID download.TaskID) (*download.Progress, error) {
	key := taskID.String()

	var rec ProgressRecord
	err := r.db.QueryRowContext(ctx, selectProgressSQL, key).Scan(
		&rec.TaskID, &rec.DownloadedBytes, &rec.TotalBytes, &rec.SpeedBPS, &rec.ETASeconds, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, storeErr("get progress", err)
	}

	return rec.Progress()
}

// DeleteProgress removes the progress snapshot of taskID, if any.
func (r *Repository) DeleteProgress(ctx context.Context, taskID download.TaskID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM download_progress WHERE task_id = ?`, taskID.String())
	return storeErr("delete progress", err)
}

// CountTasks returns the number of stored tasks.
func (r *Repository) CountTasks(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM download_tasks`).Scan(&count); err != nil {
		return 0, storeErr("count tasks", err)
	}
	return count, nil
}

// CountTasksByStatus returns one count per distinct stored status. Order is unspecified.
func (r *Repository) CountTasksByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM download_tasks GROUP BY status`)
	if err != nil {
		return nil, storeErr("count tasks by status", err)
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, storeErr("count tasks by status", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("count tasks by status", err)
	}
	return counts, nil
}

// ClearAll deletes every progress row and then every task. It succeeds on an empty store.
func (r *Repository) ClearAll(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("clear all", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	progressRes, err := tx.ExecContext(ctx, `DELETE FROM download_progress`)
	if err != nil {
		return storeErr("clear progress", err)
	}
	taskRes, err := tx.ExecContext(ctx, `DELETE FROM download_tasks`)
	if err != nil {
		return storeErr("clear tasks", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("clear all", err)
	}

	progressRows, _ := progressRes.RowsAffected()
	taskRows, _ := taskRes.RowsAffected()
	r.logger.Info().Int64("tasks", taskRows).Int64("progress", progressRows).Msg("cleared download store")
	return nil
}

func (r *Repository) queryTask(ctx context.Context, op, key, query string, args ...any) (*download.Task, error) {
	var rec TaskRecord
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&rec.ID, &rec.URL, &rec.TargetPath, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, storeErr(op, err)
	}
	return rec.Task()
}

func (r *Repository) queryTasks(ctx context.Context, op, query string, args ...any) ([]*download.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	tasks := make([]*download.Task, 0)
	for rows.Next() {
		var rec TaskRecord
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.TargetPath, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, storeErr(op, err)
		}
		task, err := rec.Task()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return tasks, nil
}

// isURLConflict reports whether err is a unique violation of download_tasks.url.
func isURLConflict(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(sqliteErr.Error(), "download_tasks.url")
}
