package engine

import "time"

// --- Learning paths, relationships, feedback ---

// LearningPath is a named, ordered curriculum over catalog videos.
type LearningPath struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Tool               Tool       `json:"tool"`
	Difficulty         Difficulty `json:"difficulty"`
	VideoIDs           []string   `json:"video_ids"`
	EstimatedDuration  int        `json:"estimated_duration"` // minutes
	Prerequisites      []string   `json:"prerequisites"`
	LearningObjectives []string   `json:"learning_objectives"`
	TargetAudience     string     `json:"target_audience"`
	CompletionCriteria []string   `json:"completion_criteria"`
	IsActive           bool       `json:"is_active"`
	UserRating         float64    `json:"user_rating"`
	CompletionCount    int        `json:"completion_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DefaultCompletionCriteria is attached to generated paths.
var DefaultCompletionCriteria = []string{
	"Complete all videos in sequence",
	"Practice with provided examples",
	"Build at least one automation",
}

// PathDetail is a path with its member videos in order and a few related videos.
type PathDetail struct {
	Path    LearningPath  `json:"path"`
	Videos  []VideoRecord `json:"videos"`
	Related []VideoRecord `json:"related"`
}

// Relationship types.
const (
	RelNextInPath = "next_in_path"
	RelSimilar    = "similar"
	RelPrereq     = "prerequisite"
)

// VideoRelationship links two catalog videos. (Source, Target, Type) is unique.
type VideoRelationship struct {
	ID            string    `json:"id"`
	SourceVideoID string    `json:"source_video_id"`
	TargetVideoID string    `json:"target_video_id"`
	Type          string    `json:"relationship_type"`
	Strength      float64   `json:"strength"`
	Confidence    float64   `json:"confidence"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Recommendation is a catalog video ranked against a source video.
type Recommendation struct {
	Video     VideoRecord `json:"video"`
	Relevance int         `json:"relevance"`
}

// Feedback is one user rating of a catalog video. Zero optional ratings mean "not given".
type Feedback struct {
	ID                string    `json:"id"`
	VideoID           string    `json:"video_id"`
	UserRating        int       `json:"user_rating"`
	QualityRating     int       `json:"quality_rating,omitempty"`
	HelpfulnessRating int       `json:"helpfulness_rating,omitempty"`
	AccuracyRating    int       `json:"accuracy_rating,omitempty"`
	ClarityRating     int       `json:"clarity_rating,omitempty"`
	Comment           string    `json:"comment,omitempty"`
	FeedbackType      string    `json:"feedback_type"`
	SessionID         string    `json:"session_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Validate checks every rating is within 1–5 and the user rating is present.
func (f Feedback) Validate() error {
	if f.VideoID == "" {
		return Validationf("video_id is required")
	}
	if f.UserRating < 1 || f.UserRating > 5 {
		return Validationf("user_rating must be between 1 and 5, got %d", f.UserRating)
	}
	optional := map[string]int{
		"quality_rating":     f.QualityRating,
		"helpfulness_rating": f.HelpfulnessRating,
		"accuracy_rating":    f.AccuracyRating,
		"clarity_rating":     f.ClarityRating,
	}
	for name, v := range optional {
		if v != 0 && (v < 1 || v > 5) {
			return Validationf("%s must be between 1 and 5, got %d", name, v)
		}
	}
	return nil
}
