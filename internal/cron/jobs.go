// Package cron persists scheduled jobs and fires them through the agent
// runner. Expressions are standard 5-field cron; one-shot jobs carry a
// delay marker instead and self-remove after firing.
package cron

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/pocketclaw/internal/persistence"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// OneShotExpression marks a job that fires once at next_run and self-removes.
const OneShotExpression = "@once"

// Job is a persisted scheduled job.
type Job struct {
	ID         string
	Expression string
	Command    string
	NextRun    *time.Time
	LastRun    *time.Time
	LastStatus *string
	Paused     bool
	OneShot    bool
	CreatedAt  time.Time
}

// Jobs provides CRUD over the cron_jobs table.
type Jobs struct {
	store *persistence.Store
}

// NewJobs wraps the shared sqlite store.
func NewJobs(store *persistence.Store) *Jobs {
	return &Jobs{store: store}
}

// NextRunTime parses the cron expression and returns the next run time after
// the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// Add validates the expression and inserts a recurring job.
func (j *Jobs) Add(ctx context.Context, expression, command string) (Job, error) {
	if strings.TrimSpace(command) == "" {
		return Job{}, fmt.Errorf("cron command must not be empty")
	}
	next, err := NextRunTime(expression, time.Now().UTC())
	if err != nil {
		return Job{}, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	job := Job{
		ID:         uuid.NewString(),
		Expression: expression,
		Command:    command,
		NextRun:    &next,
		CreatedAt:  time.Now().UTC(),
	}
	return job, j.insert(ctx, job)
}

// AddOnce inserts a one-shot job that fires after the given delay
// (Go duration syntax, e.g. "5m" or "1h30m").
func (j *Jobs) AddOnce(ctx context.Context, delay, command string) (Job, error) {
	if strings.TrimSpace(command) == "" {
		return Job{}, fmt.Errorf("cron command must not be empty")
	}
	d, err := time.ParseDuration(delay)
	if err != nil {
		return Job{}, fmt.Errorf("invalid delay %q: %w", delay, err)
	}
	if d <= 0 {
		return Job{}, fmt.Errorf("delay must be positive: %s", delay)
	}
	next := time.Now().UTC().Add(d)
	job := Job{
		ID:         uuid.NewString(),
		Expression: OneShotExpression,
		Command:    command,
		NextRun:    &next,
		OneShot:    true,
		CreatedAt:  time.Now().UTC(),
	}
	return job, j.insert(ctx, job)
}

func (j *Jobs) insert(ctx context.Context, job Job) error {
	return persistence.RetryOnBusy(ctx, 5, func() error {
		_, err := j.store.DB().ExecContext(ctx, `
			INSERT INTO cron_jobs (id, expression, command, next_run, last_run, last_status, paused, one_shot, created_at)
			VALUES (?, ?, ?, ?, NULL, NULL, ?, ?, ?)`,
			job.ID, job.Expression, job.Command, formatTime(job.NextRun),
			job.Paused, job.OneShot, job.CreatedAt.Format(time.RFC3339Nano),
		)
		return err
	})
}

// List returns all jobs ordered by creation time.
func (j *Jobs) List(ctx context.Context) ([]Job, error) {
	rows, err := j.store.DB().QueryContext(ctx, `
		SELECT id, expression, command, next_run, last_run, last_status, paused, one_shot, created_at
		FROM cron_jobs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list cron jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// Get returns a job by id, nil if absent.
func (j *Jobs) Get(ctx context.Context, id string) (*Job, error) {
	rows, err := j.store.DB().QueryContext(ctx, `
		SELECT id, expression, command, next_run, last_run, last_status, paused, one_shot, created_at
		FROM cron_jobs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get cron job: %w", err)
	}
	defer rows.Close()
	jobs, err := scanJobs(rows)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return &jobs[0], nil
}

// Remove deletes a job. Returns whether it existed.
func (j *Jobs) Remove(ctx context.Context, id string) (bool, error) {
	return j.exec(ctx, `DELETE FROM cron_jobs WHERE id = ?`, id)
}

// SetPaused pauses or resumes a job. Returns whether it existed.
func (j *Jobs) SetPaused(ctx context.Context, id string, paused bool) (bool, error) {
	return j.exec(ctx, `UPDATE cron_jobs SET paused = ? WHERE id = ?`, paused, id)
}

// RunNow schedules a job to fire on the next scheduler tick.
// Returns whether it existed.
func (j *Jobs) RunNow(ctx context.Context, id string) (bool, error) {
	return j.exec(ctx, `UPDATE cron_jobs SET next_run = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
}

func (j *Jobs) exec(ctx context.Context, query string, args ...any) (bool, error) {
	var affected bool
	err := persistence.RetryOnBusy(ctx, 5, func() error {
		res, err := j.store.DB().ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		affected = n > 0
		return nil
	})
	return affected, err
}

// Due returns unpaused jobs whose next_run is at or before now.
func (j *Jobs) Due(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := j.store.DB().QueryContext(ctx, `
		SELECT id, expression, command, next_run, last_run, last_status, paused, one_shot, created_at
		FROM cron_jobs
		WHERE paused = 0 AND next_run IS NOT NULL AND next_run <= ?
		ORDER BY next_run`,
		now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("due cron jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

// MarkRun records a completed run. One-shot jobs are deleted; recurring jobs
// get their next_run advanced past ranAt.
func (j *Jobs) MarkRun(ctx context.Context, job Job, ranAt time.Time, status string) error {
	if job.OneShot {
		_, err := j.exec(ctx, `DELETE FROM cron_jobs WHERE id = ?`, job.ID)
		return err
	}
	next, err := NextRunTime(job.Expression, ranAt)
	if err != nil {
		return fmt.Errorf("compute next run for %s: %w", job.ID, err)
	}
	_, err = j.exec(ctx, `
		UPDATE cron_jobs SET last_run = ?, last_status = ?, next_run = ? WHERE id = ?`,
		ranAt.UTC().Format(time.RFC3339Nano), status,
		next.UTC().Format(time.RFC3339Nano), job.ID)
	return err
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	var out []Job
	for rows.Next() {
		var job Job
		var nextRun, lastRun, lastStatus sql.NullString
		var created string
		if err := rows.Scan(&job.ID, &job.Expression, &job.Command,
			&nextRun, &lastRun, &lastStatus, &job.Paused, &job.OneShot, &created); err != nil {
			return nil, err
		}
		job.NextRun = parseTimePtr(nextRun)
		job.LastRun = parseTimePtr(lastRun)
		if lastStatus.Valid {
			job.LastStatus = &lastStatus.String
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			job.CreatedAt = ts
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func parseTimePtr(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &ts
}
