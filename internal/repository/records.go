package repository

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/slipstream/downloaddb/internal/download"
)

// TaskRecord is the storage form of a download.Task.
type TaskRecord struct {
	ID         string
	URL        string
	TargetPath string
	Status     string
	CreatedAt  int64
	UpdatedAt  int64
}

// NewTaskRecord converts a task to its row representation. Both timestamps are
// stamped with now; the store never overwrites created_at of an existing row.
func NewTaskRecord(task *download.Task, now time.Time) (*TaskRecord, error) {
	status, err := download.EncodeStatus(task.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: task %s: %w", ErrSerialization, task.ID, err)
	}

	ts := now.Unix()
	return &TaskRecord{
		ID:         task.ID.String(),
		URL:        task.URL,
		TargetPath: task.TargetPath,
		Status:     status,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}, nil
}

// Task converts the row back to a domain task.
func (r *TaskRecord) Task() (*download.Task, error) {
	status, err := download.DecodeStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: task %s: %w", ErrSerialization, r.ID, err)
	}

	id, err := download.ParseTaskID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
	}

	return &download.Task{
		ID:         id,
		URL:        r.URL,
		TargetPath: r.TargetPath,
		Status:     status,
		CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:  time.Unix(r.UpdatedAt, 0).UTC(),
	}, nil
}

// ProgressRecord is the storage form of a download.Progress.
type ProgressRecord struct {
	TaskID          string
	DownloadedBytes int64
	TotalBytes      sql.NullInt64
	SpeedBPS        int64
	ETASeconds      sql.NullInt64
	UpdatedAt       int64
}

// NewProgressRecord converts a progress snapshot for taskID to its row representation.
func NewProgressRecord(taskID download.TaskID, p *download.Progress, now time.Time) (*ProgressRecord, error) {
	rec := &ProgressRecord{
		TaskID:    taskID.String(),
		UpdatedAt: now.Unix(),
	}

	var err error
	if rec.DownloadedBytes, err = toInt64("downloaded_bytes", p.DownloadedBytes); err != nil {
		return nil, err
	}
	if rec.SpeedBPS, err = toInt64("speed_bps", p.SpeedBPS); err != nil {
		return nil, err
	}
	if rec.TotalBytes, err = toNullInt64("total_bytes", p.TotalBytes); err != nil {
		return nil, err
	}
	if rec.ETASeconds, err = toNullInt64("eta_seconds", p.ETASeconds); err != nil {
		return nil, err
	}

	return rec, nil
}

// Progress converts the row back to a domain progress snapshot.
func (r *ProgressRecord) Progress() (*download.Progress, error) {
	p := &download.Progress{
		UpdatedAt: time.Unix(r.UpdatedAt, 0).UTC(),
	}

	var err error
	if p.DownloadedBytes, err = toUint64("downloaded_bytes", r.DownloadedBytes); err != nil {
		return nil, err
	}
	if p.SpeedBPS, err = toUint64("speed_bps", r.SpeedBPS); err != nil {
		return nil, err
	}
	if p.TotalBytes, err = fromNullInt64("total_bytes", r.TotalBytes); err != nil {
		return nil, err
	}
	if p.ETASeconds, err = fromNullInt64("eta_seconds", r.ETASeconds); err != nil {
		return nil, err
	}

	return p, nil
}

func toInt64(column string, v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s %d exceeds storage range", ErrInvalidRecord, column, v)
	}
	return int64(v), nil
}

func toNullInt64(column string, v *uint64) (sql.NullInt64, error) {
	if v == nil {
		return sql.NullInt64{}, nil
	}
	n, err := toInt64(column, *v)
	if err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: n, Valid: true}, nil
}

func toUint64(column string, v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: negative %s %d", ErrInvalidRecord, column, v)
	}
	return uint64(v), nil
}

func fromNullInt64(column string, v sql.NullInt64) (*uint64, error) {
	if !v.Valid {
		return nil, nil
	}
	n, err := toUint64(column, v.Int64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
