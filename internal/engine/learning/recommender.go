package learning

import (
	"context"
	"strconv"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// Recommendation limits.
const (
	RecommendMinScore     = 60
	DefaultRecommendLimit = 5
	MaxRecommendLimit     = 50
)

// Recommender ranks catalog videos against a source video.
type Recommender struct {
	db Store
}

// NewRecommender returns a Recommender over db.
func NewRecommender(db Store) *Recommender {
	return &Recommender{db: db}
}

// Recommend returns up to limit videos related to videoID, best first.
// Unknown ids fail with engine.ErrNotFound.
func (r *Recommender) Recommend(ctx context.Context, videoID string, limit int) ([]engine.Recommendation, error) {
	if videoID == "" {
		return nil, engine.Validationf("video_id is required")
	}
	if limit <= 0 {
		limit = DefaultRecommendLimit
	}
	if limit > MaxRecommendLimit {
		limit = MaxRecommendLimit
	}
	key := engine.CatalogCacheKey("recommend", videoID, strconv.Itoa(limit))
	if cached, ok := engine.CacheLoadJSON[[]engine.Recommendation](ctx, key); ok {
		return cached, nil
	}
	src, err := r.db.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	recs, err := r.db.Recommend(ctx, src, RecommendMinScore, limit)
	if err != nil {
		return nil, err
	}
	engine.CacheStoreJSON(ctx, key, recs)
	return recs, nil
}
