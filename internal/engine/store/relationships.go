package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// UpsertRelationship stores a link between two videos. (source, target, type)
// is unique; a repeat refreshes strength, confidence and reason.
func (d *DB) UpsertRelationship(ctx context.Context, r engine.VideoRelationship) error {
	if r.SourceVideoID == "" || r.TargetVideoID == "" {
		return engine.Validationf("relationship needs both source and target video ids")
	}
	if r.SourceVideoID == r.TargetVideoID {
		return engine.Validationf("video %s cannot relate to itself", r.SourceVideoID)
	}
	if r.Type == "" {
		return engine.Validationf("relationship_type is required")
	}
	now := d.stamp()
	_, err := d.exec(ctx, `INSERT INTO video_relationships (id, source_video_id, target_video_id, relationship_type,
			strength, confidence, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_video_id, target_video_id, relationship_type) DO UPDATE SET
			strength = excluded.strength,
			confidence = excluded.confidence,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		uuid.NewString(), r.SourceVideoID, r.TargetVideoID, r.Type, r.Strength, r.Confidence, r.Reason, now, now)
	if err != nil {
		return persistErr("upsert relationship", err)
	}
	return nil
}

// ListRelationships returns outgoing links of a video, optionally of one type.
func (d *DB) ListRelationships(ctx context.Context, videoID, relType string) ([]engine.VideoRelationship, error) {
	q := `SELECT id, source_video_id, target_video_id, relationship_type, strength, confidence, reason,
		created_at, updated_at FROM video_relationships WHERE source_video_id = ?`
	args := []any{videoID}
	if relType != "" {
		q += ` AND relationship_type = ?`
		args = append(args, relType)
	}
	rows, err := d.query(ctx, q+` ORDER BY strength DESC, target_video_id ASC`, args...)
	if err != nil {
		return nil, persistErr("list relationships", err)
	}
	defer rows.Close()
	out := []engine.VideoRelationship{}
	for rows.Next() {
		var (
			r                engine.VideoRelationship
			created, updated string
		)
		if err := rows.Scan(&r.ID, &r.SourceVideoID, &r.TargetVideoID, &r.Type, &r.Strength, &r.Confidence,
			&r.Reason, &created, &updated); err != nil {
			return nil, persistErr("scan relationship", err)
		}
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountRelationships returns the number of stored links.
func (d *DB) CountRelationships(ctx context.Context) (int, error) {
	var n int
	if err := d.queryRow(ctx, `SELECT COUNT(*) FROM video_relationships`).Scan(&n); err != nil {
		return 0, persistErr("count relationships", err)
	}
	return n, nil
}
