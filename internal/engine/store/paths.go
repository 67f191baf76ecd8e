package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

const pathColumns = `id, name, description, tool, difficulty, video_ids, estimated_duration, prerequisites,
	learning_objectives, target_audience, completion_criteria, is_active, user_rating, completion_count,
	created_at, updated_at`

func scanPath(row rowScanner) (engine.LearningPath, error) {
	var (
		p                           engine.LearningPath
		tool, diff                  string
		videoIDs, prereqs, objs, cc string
		active                      int
		created, updated            string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &tool, &diff, &videoIDs, &p.EstimatedDuration, &prereqs,
		&objs, &p.TargetAudience, &cc, &active, &p.UserRating, &p.CompletionCount, &created, &updated)
	if err != nil {
		return p, err
	}
	p.Tool = engine.Tool(tool)
	p.Difficulty = engine.Difficulty(diff)
	p.VideoIDs = nonNil(fromJSON[[]string](videoIDs))
	p.Prerequisites = nonNil(fromJSON[[]string](prereqs))
	p.LearningObjectives = nonNil(fromJSON[[]string](objs))
	p.CompletionCriteria = nonNil(fromJSON[[]string](cc))
	p.IsActive = active != 0
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func validatePath(p engine.LearningPath) error {
	if strings.TrimSpace(p.Name) == "" {
		return engine.Validationf("path name is required")
	}
	if p.Tool == "" || p.Tool == engine.ToolAll {
		return engine.Validationf("path tool must be a concrete tool")
	}
	if p.Difficulty == "" {
		return engine.Validationf("path difficulty is required")
	}
	if p.EstimatedDuration < 0 {
		return engine.Validationf("estimated_duration must not be negative")
	}
	return nil
}

// SavePath upserts a path on (name, tool, difficulty). Regenerating a path
// replaces its members and metadata but keeps id, rating and completion count.
func (d *DB) SavePath(ctx context.Context, p engine.LearningPath) (engine.LearningPath, error) {
	if err := validatePath(p); err != nil {
		return p, err
	}
	now := d.stamp()
	_, err := d.exec(ctx, `INSERT INTO learning_paths (id, name, description, tool, difficulty, video_ids,
			estimated_duration, prerequisites, learning_objectives, target_audience, completion_criteria,
			is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, tool, difficulty) DO UPDATE SET
			description = excluded.description,
			video_ids = excluded.video_ids,
			estimated_duration = excluded.estimated_duration,
			prerequisites = excluded.prerequisites,
			learning_objectives = excluded.learning_objectives,
			target_audience = excluded.target_audience,
			completion_criteria = excluded.completion_criteria,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		uuid.NewString(), p.Name, p.Description, string(p.Tool), string(p.Difficulty), toJSON(nonNil(p.VideoIDs)),
		p.EstimatedDuration, toJSON(nonNil(p.Prerequisites)), toJSON(nonNil(p.LearningObjectives)), p.TargetAudience,
		toJSON(nonNil(p.CompletionCriteria)), boolInt(p.IsActive), now, now)
	if err != nil {
		return p, persistErr("save path", err)
	}
	engine.InvalidateCatalog()
	saved, err := scanPath(d.queryRow(ctx, `SELECT `+pathColumns+` FROM learning_paths
		WHERE name = ? AND tool = ? AND difficulty = ?`, p.Name, string(p.Tool), string(p.Difficulty)))
	if err != nil {
		return p, persistErr("load saved path", err)
	}
	return saved, nil
}

// CreatePath inserts a hand-authored path. A duplicate (name, tool, difficulty) is a validation error.
func (d *DB) CreatePath(ctx context.Context, p engine.LearningPath) (engine.LearningPath, error) {
	if err := validatePath(p); err != nil {
		return p, err
	}
	var n int
	if err := d.queryRow(ctx, `SELECT COUNT(*) FROM learning_paths WHERE name = ? AND tool = ? AND difficulty = ?`,
		p.Name, string(p.Tool), string(p.Difficulty)).Scan(&n); err != nil {
		return p, persistErr("check path", err)
	}
	if n > 0 {
		return p, engine.Validationf("path %q already exists for %s/%s", p.Name, p.Tool, p.Difficulty)
	}
	return d.SavePath(ctx, p)
}

// PathPatch lists the editable fields of a path; nil leaves a field unchanged.
type PathPatch struct {
	Name               *string
	Description        *string
	VideoIDs           []string
	EstimatedDuration  *int
	Prerequisites      []string
	LearningObjectives []string
	TargetAudience     *string
	CompletionCriteria []string
	IsActive           *bool
}

// UpdatePath applies a patch to an existing path.
func (d *DB) UpdatePath(ctx context.Context, id string, patch PathPatch) (engine.LearningPath, error) {
	p, err := d.GetPath(ctx, id)
	if err != nil {
		return p, err
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.VideoIDs != nil {
		p.VideoIDs = patch.VideoIDs
	}
	if patch.EstimatedDuration != nil {
		p.EstimatedDuration = *patch.EstimatedDuration
	}
	if patch.Prerequisites != nil {
		p.Prerequisites = patch.Prerequisites
	}
	if patch.LearningObjectives != nil {
		p.LearningObjectives = patch.LearningObjectives
	}
	if patch.TargetAudience != nil {
		p.TargetAudience = *patch.TargetAudience
	}
	if patch.CompletionCriteria != nil {
		p.CompletionCriteria = patch.CompletionCriteria
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	if err := validatePath(p); err != nil {
		return p, err
	}
	_, err = d.exec(ctx, `UPDATE learning_paths SET name = ?, description = ?, video_ids = ?, estimated_duration = ?,
		prerequisites = ?, learning_objectives = ?, target_audience = ?, completion_criteria = ?, is_active = ?,
		updated_at = ? WHERE id = ?`,
		p.Name, p.Description, toJSON(nonNil(p.VideoIDs)), p.EstimatedDuration, toJSON(nonNil(p.Prerequisites)),
		toJSON(nonNil(p.LearningObjectives)), p.TargetAudience, toJSON(nonNil(p.CompletionCriteria)),
		boolInt(p.IsActive), d.stamp(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return p, engine.Validationf("path %q already exists for %s/%s", p.Name, p.Tool, p.Difficulty)
		}
		return p, persistErr("update path", err)
	}
	engine.InvalidateCatalog()
	return d.GetPath(ctx, id)
}

// DeactivatePath hides a path from listings without deleting it.
func (d *DB) DeactivatePath(ctx context.Context, id string) error {
	res, err := d.exec(ctx, `UPDATE learning_paths SET is_active = 0, updated_at = ? WHERE id = ?`, d.stamp(), id)
	if err != nil {
		return persistErr("deactivate path", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.NotFoundf("learning path %s", id)
	}
	engine.InvalidateCatalog()
	return nil
}

// GetPath loads one path, active or not.
func (d *DB) GetPath(ctx context.Context, id string) (engine.LearningPath, error) {
	p, err := scanPath(d.queryRow(ctx, `SELECT `+pathColumns+` FROM learning_paths WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, engine.NotFoundf("learning path %s", id)
	}
	if err != nil {
		return p, persistErr("get path", err)
	}
	return p, nil
}

// ListPaths returns active paths, optionally narrowed by tool and difficulty.
func (d *DB) ListPaths(ctx context.Context, tool engine.Tool, difficulty engine.Difficulty) ([]engine.LearningPath, error) {
	where := []string{"is_active = 1"}
	var args []any
	if tool != "" && tool != engine.ToolAll {
		where = append(where, "tool = ?")
		args = append(args, string(tool))
	}
	if difficulty != "" {
		where = append(where, "difficulty = ?")
		args = append(args, string(difficulty))
	}
	rows, err := d.query(ctx, `SELECT `+pathColumns+` FROM learning_paths WHERE `+strings.Join(where, " AND ")+
		` ORDER BY tool ASC, CASE difficulty WHEN 'beginner' THEN 0 WHEN 'intermediate' THEN 1 ELSE 2 END, name ASC`, args...)
	if err != nil {
		return nil, persistErr("list paths", err)
	}
	defer rows.Close()
	out := []engine.LearningPath{}
	for rows.Next() {
		p, err := scanPath(rows)
		if err != nil {
			return nil, persistErr("scan path", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// isUniqueViolation matches the unique-constraint error text of both backends.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
