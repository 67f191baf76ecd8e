package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

const jobColumns = `id, name, job_type, status, tool, difficulties, max_results_per_term, min_quality_score,
	schedule_id, search_terms_total, search_terms_completed, videos_found, videos_saved, videos_filtered,
	current_search_term, error_count, last_error, result_summary, created_at, updated_at,
	started_at, paused_at, resumed_at, completed_at`

func scanJob(row rowScanner) (engine.Job, error) {
	var (
		j                                       engine.Job
		status, tool, difficulties              string
		created, updated                        string
		started, paused, resumed, completedNull sql.NullString
	)
	err := row.Scan(&j.ID, &j.Name, &j.JobType, &status, &tool, &difficulties, &j.MaxResultsPerTerm, &j.MinQualityScore,
		&j.ScheduleID, &j.SearchTermsTotal, &j.SearchTermsCompleted, &j.VideosFound, &j.VideosSaved, &j.VideosFiltered,
		&j.CurrentSearchTerm, &j.ErrorCount, &j.LastError, &j.ResultSummary, &created, &updated,
		&started, &paused, &resumed, &completedNull)
	if err != nil {
		return j, err
	}
	j.Status = engine.JobStatus(status)
	j.Tool = engine.Tool(tool)
	j.Difficulties = fromJSON[[]engine.Difficulty](difficulties)
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	j.StartedAt = timePtr(started)
	j.PausedAt = timePtr(paused)
	j.ResumedAt = timePtr(resumed)
	j.CompletedAt = timePtr(completedNull)
	return j, nil
}

// CreateJob inserts a pending job.
func (d *DB) CreateJob(ctx context.Context, p engine.JobParams) (engine.Job, error) {
	if p.Tool == "" {
		return engine.Job{}, engine.Validationf("tool is required")
	}
	if len(p.Difficulties) == 0 {
		return engine.Job{}, engine.Validationf("at least one difficulty is required")
	}
	if p.MaxResultsPerTerm <= 0 {
		return engine.Job{}, engine.Validationf("max_results_per_term must be positive")
	}
	if p.MinQualityScore < 0 || p.MinQualityScore > 100 {
		return engine.Job{}, engine.Validationf("min_quality_score must be in 0..100, got %d", p.MinQualityScore)
	}
	if p.JobType == "" {
		p.JobType = engine.JobManual
	}
	now := d.now()
	if p.Name == "" {
		p.Name = fmt.Sprintf("%s scrape - %s", p.Tool.DisplayName(), now.UTC().Format("2006-01-02 15:04"))
	}
	id := uuid.NewString()
	_, err := d.exec(ctx, `INSERT INTO jobs (id, name, job_type, status, tool, difficulties, max_results_per_term,
		min_quality_score, schedule_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Name, p.JobType, string(engine.JobPending), string(p.Tool), toJSON(p.Difficulties),
		p.MaxResultsPerTerm, p.MinQualityScore, p.ScheduleID, formatTime(now), formatTime(now))
	if err != nil {
		return engine.Job{}, persistErr("create job", err)
	}
	return d.GetJob(ctx, id)
}

// GetJob loads one job.
func (d *DB) GetJob(ctx context.Context, id string) (engine.Job, error) {
	j, err := scanJob(d.queryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return j, engine.NotFoundf("job %s", id)
	}
	if err != nil {
		return j, persistErr("get job", err)
	}
	return j, nil
}

// ListJobs returns a page of jobs, newest first, and the total matching count.
func (d *DB) ListJobs(ctx context.Context, f engine.JobFilter) (engine.JobList, error) {
	out := engine.JobList{Jobs: []engine.Job{}}
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Tool != "" {
		where = append(where, "tool = ?")
		args = append(args, string(f.Tool))
	}
	if f.ScheduleID != "" {
		where = append(where, "schedule_id = ?")
		args = append(args, f.ScheduleID)
	}
	if f.Unfinished {
		where = append(where, "status IN (?, ?, ?)")
		args = append(args, string(engine.JobPending), string(engine.JobRunning), string(engine.JobPaused))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}
	if err := d.queryRow(ctx, `SELECT COUNT(*) FROM jobs`+cond, args...).Scan(&out.Total); err != nil {
		return out, persistErr("count jobs", err)
	}
	limit := clampLimit(f.Limit, 50, 200)
	rows, err := d.query(ctx, `SELECT `+jobColumns+` FROM jobs`+cond+` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`,
		append(args, limit, max(f.Offset, 0))...)
	if err != nil {
		return out, persistErr("list jobs", err)
	}
	defer rows.Close()
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return out, persistErr("scan job", err)
		}
		out.Jobs = append(out.Jobs, j)
	}
	return out, rows.Err()
}

// TransitionOpts carries fields written alongside a status change.
type TransitionOpts struct {
	LastError string
	Summary   string
}

// TransitionJob moves a job to status `to` with a conditional UPDATE, so two
// callers racing on one job can never both succeed from the same state.
// A rejected transition returns *engine.TransitionError carrying the current status.
func (d *DB) TransitionJob(ctx context.Context, id string, to engine.JobStatus, opts TransitionOpts) (engine.Job, error) {
	from := engine.AllowedFrom(to)
	if len(from) == 0 {
		return engine.Job{}, engine.Validationf("unknown target status %q", to)
	}
	now := d.stamp()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(to), now}
	switch to {
	case engine.JobRunning:
		sets = append(sets,
			"resumed_at = CASE WHEN started_at IS NULL THEN resumed_at ELSE ? END",
			"started_at = COALESCE(started_at, ?)")
		args = append(args, now, now)
	case engine.JobPaused:
		sets = append(sets, "paused_at = ?")
		args = append(args, now)
	default:
		sets = append(sets, "completed_at = ?", "current_search_term = ''")
		args = append(args, now)
	}
	if opts.LastError != "" {
		sets = append(sets, "last_error = ?", "error_count = error_count + 1")
		args = append(args, opts.LastError)
	}
	if opts.Summary != "" {
		sets = append(sets, "result_summary = ?")
		args = append(args, opts.Summary)
	}
	args = append(args, id)
	for _, s := range from {
		args = append(args, string(s))
	}
	res, err := d.exec(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+
		` WHERE id = ? AND status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		return engine.Job{}, persistErr("transition job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return engine.Job{}, persistErr("transition job", err)
	}
	j, err := d.GetJob(ctx, id)
	if err != nil {
		return j, err
	}
	if n == 0 {
		return j, &engine.TransitionError{JobID: id, From: j.Status, To: to}
	}
	return j, nil
}

// SetJobPlan records the number of search terms the job will run.
func (d *DB) SetJobPlan(ctx context.Context, id string, total int) error {
	_, err := d.exec(ctx, `UPDATE jobs SET search_terms_total = ?, updated_at = ? WHERE id = ?`, total, d.stamp(), id)
	if err != nil {
		return persistErr("set job plan", err)
	}
	return nil
}

// SetCurrentTerm records the term being processed.
func (d *DB) SetCurrentTerm(ctx context.Context, id, term string) error {
	_, err := d.exec(ctx, `UPDATE jobs SET current_search_term = ?, updated_at = ? WHERE id = ?`, term, d.stamp(), id)
	if err != nil {
		return persistErr("set current term", err)
	}
	return nil
}

// AddJobCounters increments progress counters. Counters accumulate across pause/resume.
func (d *DB) AddJobCounters(ctx context.Context, id string, c engine.JobCounters) error {
	_, err := d.exec(ctx, `UPDATE jobs SET
			search_terms_completed = search_terms_completed + ?,
			videos_found = videos_found + ?,
			videos_saved = videos_saved + ?,
			videos_filtered = videos_filtered + ?,
			error_count = error_count + ?,
			updated_at = ?
		WHERE id = ?`,
		c.TermsCompleted, c.Found, c.Saved, c.Filtered, c.Errors, d.stamp(), id)
	if err != nil {
		return persistErr("update job counters", err)
	}
	return nil
}

// RecordJobError stores the latest non-fatal error message.
func (d *DB) RecordJobError(ctx context.Context, id, msg string) error {
	_, err := d.exec(ctx, `UPDATE jobs SET last_error = ?, updated_at = ? WHERE id = ?`, msg, d.stamp(), id)
	if err != nil {
		return persistErr("record job error", err)
	}
	return nil
}

// insertForJob runs an insert of a row owned by jobID, dropping it when the
// job no longer exists. On PostgreSQL the job row is share-locked so that a
// concurrent DeleteJob, which deletes the job row first, waits for the insert
// and then removes the new row with the rest.
func (d *DB) insertForJob(ctx context.Context, jobID, q string, args ...any) error {
	lock := `SELECT 1 FROM jobs WHERE id = ?`
	if d.postgres {
		lock += ` FOR SHARE`
	}
	return d.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, d.rebind(lock), jobID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			slog.Debug("store: dropped row for deleted job", slog.String("job", jobID))
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, d.rebind(q), args...)
		return err
	})
}

// AddJobLog appends a log entry to a job.
func (d *DB) AddJobLog(ctx context.Context, jobID, level, msg string) error {
	err := d.insertForJob(ctx, jobID, `INSERT INTO job_logs (id, job_id, level, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), jobID, level, msg, d.stamp())
	if err != nil {
		return persistErr("add job log", err)
	}
	return nil
}

// ListJobLogs returns the newest `limit` entries of a job, oldest first.
func (d *DB) ListJobLogs(ctx context.Context, jobID string, limit int) ([]engine.JobLogEntry, error) {
	rows, err := d.query(ctx, `SELECT id, job_id, level, message, created_at FROM job_logs
		WHERE job_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, jobID, clampLimit(limit, 100, 1000))
	if err != nil {
		return nil, persistErr("list job logs", err)
	}
	defer rows.Close()
	out := []engine.JobLogEntry{}
	for rows.Next() {
		var (
			e       engine.JobLogEntry
			created string
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.Level, &e.Message, &created); err != nil {
			return nil, persistErr("scan job log", err)
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list job logs", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// AddJobProgress stores the outcome of one search term.
func (d *DB) AddJobProgress(ctx context.Context, p engine.JobProgress) error {
	err := d.insertForJob(ctx, p.JobID, `INSERT INTO job_progress (id, job_id, search_term, difficulty, status, videos_found,
		videos_saved, error, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), p.JobID, p.SearchTerm, string(p.Difficulty), p.Status, p.VideosFound, p.VideosSaved,
		p.Error, formatTime(p.StartedAt), formatTime(p.FinishedAt))
	if err != nil {
		return persistErr("add job progress", err)
	}
	return nil
}

// ListJobProgress returns a job's term snapshots in execution order.
func (d *DB) ListJobProgress(ctx context.Context, jobID string) ([]engine.JobProgress, error) {
	rows, err := d.query(ctx, `SELECT job_id, search_term, difficulty, status, videos_found, videos_saved, error,
		started_at, finished_at FROM job_progress WHERE job_id = ? ORDER BY started_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, persistErr("list job progress", err)
	}
	defer rows.Close()
	out := []engine.JobProgress{}
	for rows.Next() {
		var (
			p                 engine.JobProgress
			diff              string
			started, finished string
		)
		if err := rows.Scan(&p.JobID, &p.SearchTerm, &diff, &p.Status, &p.VideosFound, &p.VideosSaved, &p.Error,
			&started, &finished); err != nil {
			return nil, persistErr("scan job progress", err)
		}
		p.Difficulty = engine.Difficulty(diff)
		p.StartedAt = parseTime(started)
		p.FinishedAt = parseTime(finished)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteJob removes a job with its logs and progress. Running jobs are rejected.
func (d *DB) DeleteJob(ctx context.Context, id string) error {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, d.rebind(`SELECT status FROM jobs WHERE id = ?`), id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return engine.NotFoundf("job %s", id)
		}
		if err != nil {
			return persistErr("load job", err)
		}
		if engine.JobStatus(status) == engine.JobRunning {
			return fmt.Errorf("%w: job %s is running; pause or cancel it first", engine.ErrInvalidTransition, id)
		}
		for _, q := range []string{
			`DELETE FROM jobs WHERE id = ?`,
			`DELETE FROM job_logs WHERE job_id = ?`,
			`DELETE FROM job_progress WHERE job_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, d.rebind(q), id); err != nil {
				return persistErr("delete job", err)
			}
		}
		return nil
	})
	return err
}

// DeleteJobsByStatus removes every job in a terminal status, cascading to
// logs and progress. Returns the number of jobs deleted.
func (d *DB) DeleteJobsByStatus(ctx context.Context, status engine.JobStatus) (int, error) {
	if !status.Terminal() {
		return 0, engine.Validationf("bulk delete is limited to completed, failed or cancelled jobs, got %q", status)
	}
	return d.deleteJobsWhere(ctx, `status = ?`, string(status))
}

// PurgeJobs removes terminal jobs last updated before cutoff.
func (d *DB) PurgeJobs(ctx context.Context, cutoff time.Time) (int, error) {
	return d.deleteJobsWhere(ctx, `status IN (?, ?, ?) AND updated_at < ?`,
		string(engine.JobCompleted), string(engine.JobFailed), string(engine.JobCancelled), formatTime(cutoff))
}

func (d *DB) deleteJobsWhere(ctx context.Context, cond string, args ...any) (int, error) {
	var n int64
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		sub := `SELECT id FROM jobs WHERE ` + cond
		if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM job_logs WHERE job_id IN (`+sub+`)`), args...); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM job_progress WHERE job_id IN (`+sub+`)`), args...); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM jobs WHERE `+cond), args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, persistErr("delete jobs", err)
	}
	return int(n), nil
}

// PurgeLogs removes log entries older than cutoff.
func (d *DB) PurgeLogs(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := d.exec(ctx, `DELETE FROM job_logs WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, persistErr("purge logs", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// JobStats counts jobs per status and sums saved videos.
func (d *DB) JobStats(ctx context.Context) (engine.JobStats, error) {
	st := engine.JobStats{ByStatus: map[engine.JobStatus]int{}}
	rows, err := d.query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(videos_saved), 0) FROM jobs GROUP BY status`)
	if err != nil {
		return st, persistErr("job stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status      string
			count, save int64
		)
		if err := rows.Scan(&status, &count, &save); err != nil {
			return st, persistErr("scan job stats", err)
		}
		st.ByStatus[engine.JobStatus(status)] = int(count)
		st.Total += int(count)
		st.VideosSaved += int(save)
	}
	return st, rows.Err()
}

// FailRunningJobs marks every job still recorded as running as failed. Used at
// startup, when no background task can own them any more. Returns the affected ids.
func (d *DB) FailRunningJobs(ctx context.Context, reason string) ([]string, error) {
	var ids []string
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, d.rebind(`SELECT id FROM jobs WHERE status = ?`), string(engine.JobRunning))
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		now := d.stamp()
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, d.rebind(`UPDATE jobs SET status = ?, last_error = ?, error_count = error_count + 1,
				completed_at = ?, updated_at = ?, current_search_term = '' WHERE id = ? AND status = ?`),
				string(engine.JobFailed), reason, now, now, id, string(engine.JobRunning)); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO job_logs (id, job_id, level, message, created_at)
				VALUES (?, ?, ?, ?, ?)`), uuid.NewString(), id, engine.LogError, reason, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, persistErr("fail running jobs", err)
	}
	return ids, nil
}
