package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

const videoColumns = `external_id, title, description, channel, view_count, like_count, duration_seconds,
	published_at, thumbnail_url, video_url, tags, tool, difficulty, quality_score, engagement_score,
	scores, signals, tutorial_type, use_case, industry, complexity_level, estimated_learning_time,
	learning_objectives, prerequisites, key_topics, review_status, user_rating, rating_count,
	first_seen_at, last_scored_at`

// videoOrder is the default ranking: score, then engagement proxy, then reach.
const videoOrder = `quality_score DESC, engagement_score DESC, view_count DESC, external_id ASC`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner, extra ...any) (engine.VideoRecord, error) {
	var (
		v                                          engine.VideoRecord
		published                                  sql.NullString
		tags, scores, signals, objectives, prereqs string
		topics, firstSeen, lastScored              string
		tool, difficulty                           string
	)
	dest := []any{
		&v.ExternalID, &v.Title, &v.Description, &v.Channel, &v.ViewCount, &v.LikeCount, &v.DurationSeconds,
		&published, &v.ThumbnailURL, &v.VideoURL, &tags, &tool, &difficulty, &v.QualityScore, &v.EngagementScore,
		&scores, &signals, &v.TutorialType, &v.UseCase, &v.Industry, &v.ComplexityLevel, &v.EstimatedLearningTime,
		&objectives, &prereqs, &topics, &v.ReviewStatus, &v.UserRating, &v.RatingCount,
		&firstSeen, &lastScored,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return v, err
	}
	v.PublishedAt = timePtr(published)
	v.Tags = fromJSON[[]string](tags)
	v.Tool = engine.Tool(tool)
	v.Difficulty = engine.Difficulty(difficulty)
	v.Scores = fromJSON[engine.SubScores](scores)
	v.Signals = fromJSON[engine.Signals](signals)
	v.LearningObjectives = fromJSON[[]string](objectives)
	v.Prerequisites = fromJSON[[]string](prereqs)
	v.KeyTopics = fromJSON[[]string](topics)
	v.FirstSeenAt = parseTime(firstSeen)
	v.LastScoredAt = parseTime(lastScored)
	return v, nil
}

func scanVideos(rows *sql.Rows) ([]engine.VideoRecord, error) {
	defer rows.Close()
	var out []engine.VideoRecord
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpsertVideo inserts v or, when its external id exists, overwrites every
// scoring, classification and metadata field. first_seen_at and the feedback
// rollups of an existing row are never touched. The write is a single
// INSERT ... ON CONFLICT statement, so concurrent upserts of one id are atomic.
func (d *DB) UpsertVideo(ctx context.Context, v engine.VideoRecord) error {
	if v.ExternalID == "" {
		return engine.Validationf("video external_id is required")
	}
	if v.Tool == "" || v.Difficulty == "" {
		return engine.Validationf("video %s: tool and difficulty are required", v.ExternalID)
	}
	if v.QualityScore < 0 || v.QualityScore > 100 {
		return engine.Validationf("video %s: quality_score %d out of range", v.ExternalID, v.QualityScore)
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	now := d.stamp()
	_, err := d.exec(ctx, `INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			channel = excluded.channel,
			view_count = excluded.view_count,
			like_count = excluded.like_count,
			duration_seconds = excluded.duration_seconds,
			published_at = excluded.published_at,
			thumbnail_url = excluded.thumbnail_url,
			video_url = excluded.video_url,
			tags = excluded.tags,
			tool = excluded.tool,
			difficulty = excluded.difficulty,
			quality_score = excluded.quality_score,
			engagement_score = excluded.engagement_score,
			scores = excluded.scores,
			signals = excluded.signals,
			tutorial_type = excluded.tutorial_type,
			use_case = excluded.use_case,
			industry = excluded.industry,
			complexity_level = excluded.complexity_level,
			estimated_learning_time = excluded.estimated_learning_time,
			learning_objectives = excluded.learning_objectives,
			prerequisites = excluded.prerequisites,
			key_topics = excluded.key_topics,
			review_status = '`+engine.ReviewUpdated+`',
			last_scored_at = excluded.last_scored_at`,
		v.ExternalID, v.Title, v.Description, v.Channel, v.ViewCount, v.LikeCount, v.DurationSeconds,
		nullTime(v.PublishedAt), v.ThumbnailURL, v.VideoURL, toJSON(v.Tags), string(v.Tool), string(v.Difficulty),
		v.QualityScore, v.EngagementScore, toJSON(v.Scores), toJSON(v.Signals),
		v.TutorialType, v.UseCase, v.Industry, v.ComplexityLevel, v.EstimatedLearningTime,
		toJSON(nonNil(v.LearningObjectives)), toJSON(nonNil(v.Prerequisites)), toJSON(nonNil(v.KeyTopics)),
		engine.ReviewPending, now, now,
	)
	if err != nil {
		return persistErr("upsert video "+v.ExternalID, err)
	}
	engine.InvalidateCatalog()
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// GetVideo loads one catalog record.
func (d *DB) GetVideo(ctx context.Context, id string) (engine.VideoRecord, error) {
	v, err := scanVideo(d.queryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE external_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return v, engine.NotFoundf("video %s", id)
	}
	if err != nil {
		return v, persistErr("get video", err)
	}
	return v, nil
}

// GetVideos loads the given ids, returned in the order requested. Unknown ids are skipped.
func (d *DB) GetVideos(ctx context.Context, ids []string) ([]engine.VideoRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := d.query(ctx, `SELECT `+videoColumns+` FROM videos WHERE external_id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, persistErr("get videos", err)
	}
	found, err := scanVideos(rows)
	if err != nil {
		return nil, persistErr("scan videos", err)
	}
	byID := make(map[string]engine.VideoRecord, len(found))
	for _, v := range found {
		byID[v.ExternalID] = v
	}
	out := make([]engine.VideoRecord, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// SearchVideos runs a ranked catalog read. A read that matches nothing is not
// an error; Status tells an empty catalog apart from filters that excluded everything.
func (d *DB) SearchVideos(ctx context.Context, q engine.SearchQuery) (engine.SearchResult, error) {
	res := engine.SearchResult{Videos: []engine.VideoRecord{}}
	if q.Tool == "" {
		return res, engine.Validationf("tool is required")
	}

	where := []string{"tool = ?"}
	args := []any{string(q.Tool)}
	if q.Difficulty != "" {
		where = append(where, "difficulty = ?")
		args = append(args, string(q.Difficulty))
	}
	if q.MinScore > 0 {
		where = append(where, "quality_score >= ?")
		args = append(args, q.MinScore)
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		p := likePattern(text)
		where = append(where, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'
			OR LOWER(channel) LIKE ? ESCAPE '\' OR LOWER(tags) LIKE ? ESCAPE '\' OR LOWER(key_topics) LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p, p, p)
	}
	cond := strings.Join(where, " AND ")

	if err := d.queryRow(ctx, `SELECT COUNT(*) FROM videos WHERE `+cond, args...).Scan(&res.Total); err != nil {
		return res, persistErr("count videos", err)
	}
	if res.Total == 0 {
		var inTool int
		if err := d.queryRow(ctx, `SELECT COUNT(*) FROM videos WHERE tool = ?`, string(q.Tool)).Scan(&inTool); err != nil {
			return res, persistErr("count catalog", err)
		}
		res.Status = engine.SearchNoMatch
		if inTool == 0 {
			res.Status = engine.SearchEmptyCatalog
		}
		return res, nil
	}

	limit := clampLimit(q.Limit, 20, 100)
	offset := max(q.Offset, 0)
	rows, err := d.query(ctx, `SELECT `+videoColumns+` FROM videos WHERE `+cond+
		` ORDER BY `+videoOrder+` LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return res, persistErr("search videos", err)
	}
	videos, err := scanVideos(rows)
	if err != nil {
		return res, persistErr("scan videos", err)
	}
	if videos != nil {
		res.Videos = videos
	}
	res.Status = engine.SearchOK
	return res, nil
}

// TopVideos returns up to limit videos for tool+difficulty with score >= minScore,
// ordered by score then view count.
func (d *DB) TopVideos(ctx context.Context, tool engine.Tool, difficulty engine.Difficulty, minScore, limit int) ([]engine.VideoRecord, error) {
	rows, err := d.query(ctx, `SELECT `+videoColumns+` FROM videos
		WHERE tool = ? AND difficulty = ? AND quality_score >= ?
		ORDER BY quality_score DESC, view_count DESC, external_id ASC LIMIT ?`,
		string(tool), string(difficulty), minScore, limit)
	if err != nil {
		return nil, persistErr("top videos", err)
	}
	out, err := scanVideos(rows)
	if err != nil {
		return nil, persistErr("scan videos", err)
	}
	return out, nil
}

// RelatedVideos returns same tool+difficulty videos with score >= minScore, excluding ids.
func (d *DB) RelatedVideos(ctx context.Context, tool engine.Tool, difficulty engine.Difficulty, minScore int, exclude []string, limit int) ([]engine.VideoRecord, error) {
	q := `SELECT ` + videoColumns + ` FROM videos WHERE tool = ? AND difficulty = ? AND quality_score >= ?`
	args := []any{string(tool), string(difficulty), minScore}
	if len(exclude) > 0 {
		q += ` AND external_id NOT IN (` + placeholders(len(exclude)) + `)`
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	q += ` ORDER BY quality_score DESC, view_count DESC, external_id ASC LIMIT ?`
	rows, err := d.query(ctx, q, append(args, limit)...)
	if err != nil {
		return nil, persistErr("related videos", err)
	}
	out, err := scanVideos(rows)
	if err != nil {
		return nil, persistErr("scan videos", err)
	}
	return out, nil
}

// Recommend ranks catalog videos against src: 100 when tool and difficulty
// both match, 80 tool only, 60 difficulty only, 40 otherwise. Candidates must
// share at least one of tool, difficulty, tutorial type, use case or industry.
func (d *DB) Recommend(ctx context.Context, src engine.VideoRecord, minScore, limit int) ([]engine.Recommendation, error) {
	rows, err := d.query(ctx, `SELECT `+videoColumns+`,
			CASE
				WHEN tool = ? AND difficulty = ? THEN 100
				WHEN tool = ? THEN 80
				WHEN difficulty = ? THEN 60
				ELSE 40
			END AS relevance
		FROM videos
		WHERE external_id <> ? AND quality_score >= ?
			AND (tool = ? OR difficulty = ? OR tutorial_type = ? OR use_case = ? OR industry = ?)
		ORDER BY relevance DESC, quality_score DESC, view_count DESC, external_id ASC
		LIMIT ?`,
		string(src.Tool), string(src.Difficulty), string(src.Tool), string(src.Difficulty),
		src.ExternalID, minScore,
		string(src.Tool), string(src.Difficulty), src.TutorialType, src.UseCase, src.Industry,
		limit,
	)
	if err != nil {
		return nil, persistErr("recommend", err)
	}
	defer rows.Close()
	out := []engine.Recommendation{}
	for rows.Next() {
		var rel int
		v, err := scanVideo(rows, &rel)
		if err != nil {
			return nil, persistErr("scan recommendation", err)
		}
		out = append(out, engine.Recommendation{Video: v, Relevance: rel})
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("recommend", err)
	}
	return out, nil
}

// VideoStats aggregates the catalog by tool and difficulty. An empty tool means every tool.
func (d *DB) VideoStats(ctx context.Context, tool engine.Tool) ([]engine.VideoStat, error) {
	q := `SELECT tool, difficulty, COUNT(*), AVG(quality_score), AVG(view_count) FROM videos`
	var args []any
	if tool != "" && tool != engine.ToolAll {
		q += ` WHERE tool = ?`
		args = append(args, string(tool))
	}
	q += ` GROUP BY tool, difficulty ORDER BY tool, difficulty`
	rows, err := d.query(ctx, q, args...)
	if err != nil {
		return nil, persistErr("video stats", err)
	}
	defer rows.Close()
	out := []engine.VideoStat{}
	for rows.Next() {
		var (
			s                engine.VideoStat
			tool, difficulty string
		)
		if err := rows.Scan(&tool, &difficulty, &s.Count, &s.AvgScore, &s.AvgViews); err != nil {
			return nil, persistErr("scan video stats", err)
		}
		s.Tool = engine.Tool(tool)
		s.Difficulty = engine.Difficulty(difficulty)
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneVideos deletes catalog records scoring below belowScore, together with
// their relationships and feedback. Returns the number of videos removed.
func (d *DB) PruneVideos(ctx context.Context, belowScore int) (int, error) {
	if belowScore <= 0 || belowScore > 100 {
		return 0, engine.Validationf("prune threshold must be in 1..100, got %d", belowScore)
	}
	var n int64
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		sub := `SELECT external_id FROM videos WHERE quality_score < ?`
		if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM video_relationships
			WHERE source_video_id IN (`+sub+`) OR target_video_id IN (`+sub+`)`), belowScore, belowScore); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM feedback WHERE video_id IN (`+sub+`)`), belowScore); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM videos WHERE quality_score < ?`), belowScore)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, persistErr("prune videos", err)
	}
	if n > 0 {
		engine.InvalidateCatalog()
	}
	return int(n), nil
}

// CountVideos returns the catalog size.
func (d *DB) CountVideos(ctx context.Context) (int, error) {
	var n int
	if err := d.queryRow(ctx, `SELECT COUNT(*) FROM videos`).Scan(&n); err != nil {
		return 0, persistErr("count videos", err)
	}
	return n, nil
}
