package quality

import (
	"math"
	"time"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// Classify assigns one label from each of the four closed label sets.
func (s *Scorer) Classify(in Input) engine.Classification {
	tx := newText(in)
	return engine.Classification{
		TutorialType:    s.classifiers["tutorial_type"].apply(tx.combined)[0],
		UseCase:         s.classifiers["use_case"].apply(tx.combined)[0],
		Industry:        s.classifiers["industry"].apply(tx.combined)[0],
		ComplexityLevel: s.classifiers["complexity"].apply(tx.combined)[0],
	}
}

// ExtractLearning derives curriculum metadata. Learning time is 1.5× the
// video duration, in seconds.
func (s *Scorer) ExtractLearning(in Input) engine.LearningMeta {
	tx := newText(in)
	return engine.LearningMeta{
		EstimatedLearningTime: int(math.Ceil(float64(in.DurationSeconds) * 1.5)),
		LearningObjectives:    engine.DedupeStrings(s.learning["objectives"].apply(tx.combined)),
		Prerequisites:         engine.DedupeStrings(s.learning["prerequisites"].apply(tx.combined)),
		KeyTopics:             engine.DedupeStrings(s.learning["topics"].apply(tx.combined)),
	}
}

// Annotate scores and classifies a connector record into a catalog record for
// tool and difficulty. Rollups and timestamps are left for the store.
func (s *Scorer) Annotate(v engine.RawVideo, tool engine.Tool, difficulty engine.Difficulty, now time.Time) (engine.VideoRecord, Result) {
	in := InputFrom(v)
	res := s.Score(in, now)
	rec := engine.VideoRecord{
		ExternalID:      v.ExternalID,
		Title:           v.Title,
		Description:     v.Description,
		Channel:         v.Channel,
		ViewCount:       v.ViewCount,
		LikeCount:       v.LikeCount,
		DurationSeconds: v.DurationSeconds,
		ThumbnailURL:    v.ThumbnailURL,
		VideoURL:        v.URL,
		Tags:            v.Tags,
		Tool:            tool,
		Difficulty:      difficulty,
		QualityScore:    res.Overall,
		EngagementScore: res.Scores.Engagement,
		Scores:          res.Scores,
		Signals:         res.Signals,
		Classification:  s.Classify(in),
		LearningMeta:    s.ExtractLearning(in),
	}
	if !v.PublishedAt.IsZero() {
		p := v.PublishedAt.UTC()
		rec.PublishedAt = &p
	}
	return rec, res
}

// SearchTerms builds the ordered, deduplicated cross product of the tool's base
// phrases and the difficulty's modifiers, capped at max entries (max <= 0 = no cap).
func (s *Scorer) SearchTerms(tool engine.Tool, difficulty engine.Difficulty, max int) []string {
	bases := s.baseTerms[string(tool)]
	mods := s.modifiers[string(difficulty)]
	terms := make([]string, 0, len(bases)*len(mods))
	for _, b := range bases {
		for _, m := range mods {
			terms = append(terms, b+" "+m)
		}
	}
	terms = engine.DedupeStrings(terms)
	if max > 0 && len(terms) > max {
		terms = terms[:max]
	}
	return terms
}
