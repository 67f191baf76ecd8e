package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

const scheduleColumns = `id, name, cron_expr, tool, is_active, difficulties, max_results_per_term,
	min_quality_score, last_run_at, created_at, updated_at`

func scanSchedule(row rowScanner) (engine.Schedule, error) {
	var (
		s                  engine.Schedule
		tool, difficulties string
		active             int
		lastRun            sql.NullString
		created, updated   string
	)
	err := row.Scan(&s.ID, &s.Name, &s.CronExpr, &tool, &active, &difficulties, &s.MaxResultsPerTerm,
		&s.MinQualityScore, &lastRun, &created, &updated)
	if err != nil {
		return s, err
	}
	s.Tool = engine.Tool(tool)
	s.IsActive = active != 0
	s.Difficulties = fromJSON[[]engine.Difficulty](difficulties)
	s.LastRunAt = timePtr(lastRun)
	s.CreatedAt = parseTime(created)
	s.UpdatedAt = parseTime(updated)
	return s, nil
}

// CreateSchedule stores a new schedule. The cron expression must already be validated.
func (d *DB) CreateSchedule(ctx context.Context, s engine.Schedule) (engine.Schedule, error) {
	if s.CronExpr == "" {
		return s, engine.Validationf("cron_expr is required")
	}
	if s.Tool == "" {
		return s, engine.Validationf("tool is required")
	}
	s.ID = uuid.NewString()
	now := d.stamp()
	_, err := d.exec(ctx, `INSERT INTO schedules (id, name, cron_expr, tool, is_active, difficulties,
		max_results_per_term, min_quality_score, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.CronExpr, string(s.Tool), boolInt(s.IsActive), toJSON(s.Difficulties),
		s.MaxResultsPerTerm, s.MinQualityScore, now, now)
	if err != nil {
		return s, persistErr("create schedule", err)
	}
	return d.GetSchedule(ctx, s.ID)
}

// GetSchedule loads one schedule.
func (d *DB) GetSchedule(ctx context.Context, id string) (engine.Schedule, error) {
	s, err := scanSchedule(d.queryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return s, engine.NotFoundf("schedule %s", id)
	}
	if err != nil {
		return s, persistErr("get schedule", err)
	}
	return s, nil
}

// ListSchedules returns schedules oldest first.
func (d *DB) ListSchedules(ctx context.Context, activeOnly bool) ([]engine.Schedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules`
	var args []any
	if activeOnly {
		q += ` WHERE is_active = ?`
		args = append(args, 1)
	}
	rows, err := d.query(ctx, q+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, persistErr("list schedules", err)
	}
	defer rows.Close()
	out := []engine.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, persistErr("scan schedule", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetScheduleActive toggles a schedule.
func (d *DB) SetScheduleActive(ctx context.Context, id string, active bool) (engine.Schedule, error) {
	res, err := d.exec(ctx, `UPDATE schedules SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), d.stamp(), id)
	if err != nil {
		return engine.Schedule{}, persistErr("update schedule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.Schedule{}, engine.NotFoundf("schedule %s", id)
	}
	return d.GetSchedule(ctx, id)
}

// MarkScheduleRun records when a schedule last fired.
func (d *DB) MarkScheduleRun(ctx context.Context, id string) error {
	now := d.stamp()
	if _, err := d.exec(ctx, `UPDATE schedules SET last_run_at = ?, updated_at = ? WHERE id = ?`, now, now, id); err != nil {
		return persistErr("mark schedule run", err)
	}
	return nil
}

// DeleteSchedule removes one schedule.
func (d *DB) DeleteSchedule(ctx context.Context, id string) error {
	res, err := d.exec(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return persistErr("delete schedule", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.NotFoundf("schedule %s", id)
	}
	return nil
}

// DeleteDuplicateSchedules keeps the oldest schedule of every (cron_expr, tool)
// pair and removes the rest. Returns the number removed.
func (d *DB) DeleteDuplicateSchedules(ctx context.Context) (int, error) {
	all, err := d.ListSchedules(ctx, false)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(all))
	var drop []string
	for _, s := range all {
		k := s.CronExpr + "\x00" + string(s.Tool)
		if seen[k] {
			drop = append(drop, s.ID)
			continue
		}
		seen[k] = true
	}
	if len(drop) == 0 {
		return 0, nil
	}
	args := make([]any, len(drop))
	for i, id := range drop {
		args[i] = id
	}
	res, err := d.exec(ctx, `DELETE FROM schedules WHERE id IN (`+placeholders(len(drop))+`)`, args...)
	if err != nil {
		return 0, persistErr("delete duplicate schedules", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
