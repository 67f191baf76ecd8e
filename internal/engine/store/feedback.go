package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// SubmitFeedback stores one rating and recomputes the video's rating rollup
// (mean of user ratings, count) in the same transaction. Invalid ratings are
// rejected before anything is written.
func (d *DB) SubmitFeedback(ctx context.Context, f engine.Feedback) (engine.Feedback, error) {
	if err := f.Validate(); err != nil {
		return f, err
	}
	if f.FeedbackType == "" {
		f.FeedbackType = "general"
	}
	f.ID = uuid.NewString()
	f.CreatedAt = d.now().UTC()
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, d.rebind(`SELECT 1 FROM videos WHERE external_id = ?`), f.VideoID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return engine.NotFoundf("video %s", f.VideoID)
		}
		if err != nil {
			return persistErr("load video", err)
		}
		if _, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO feedback (id, video_id, user_rating, quality_rating,
			helpfulness_rating, accuracy_rating, clarity_rating, comment, feedback_type, session_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			f.ID, f.VideoID, f.UserRating, f.QualityRating, f.HelpfulnessRating, f.AccuracyRating, f.ClarityRating,
			f.Comment, f.FeedbackType, f.SessionID, formatTime(f.CreatedAt)); err != nil {
			return persistErr("insert feedback", err)
		}
		if _, err := tx.ExecContext(ctx, d.rebind(`UPDATE videos SET
				user_rating = (SELECT COALESCE(AVG(user_rating * 1.0), 0) FROM feedback WHERE video_id = ?),
				rating_count = (SELECT COUNT(*) FROM feedback WHERE video_id = ?)
			WHERE external_id = ?`), f.VideoID, f.VideoID, f.VideoID); err != nil {
			return persistErr("update rating rollup", err)
		}
		return nil
	})
	if err != nil {
		return f, err
	}
	engine.IncrFeedbackSubmitted()
	engine.InvalidateCatalog()
	return f, nil
}

// ListFeedback returns a video's feedback, newest first.
func (d *DB) ListFeedback(ctx context.Context, videoID string, limit int) ([]engine.Feedback, error) {
	rows, err := d.query(ctx, `SELECT id, video_id, user_rating, quality_rating, helpfulness_rating, accuracy_rating,
		clarity_rating, comment, feedback_type, session_id, created_at FROM feedback
		WHERE video_id = ? ORDER BY created_at DESC, id ASC LIMIT ?`, videoID, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, persistErr("list feedback", err)
	}
	defer rows.Close()
	out := []engine.Feedback{}
	for rows.Next() {
		var (
			f       engine.Feedback
			created string
		)
		if err := rows.Scan(&f.ID, &f.VideoID, &f.UserRating, &f.QualityRating, &f.HelpfulnessRating,
			&f.AccuracyRating, &f.ClarityRating, &f.Comment, &f.FeedbackType, &f.SessionID, &created); err != nil {
			return nil, persistErr("scan feedback", err)
		}
		f.CreatedAt = parseTime(created)
		out = append(out, f)
	}
	return out, rows.Err()
}
