package engine

import (
	"strings"
	"time"
)

// --- Catalog vocabulary ---

// Tool is a workflow-automation product covered by the catalog.
type Tool string

const (
	ToolZapier Tool = "zapier"
	ToolN8N    Tool = "n8n"
	ToolMake   Tool = "make"
	ToolAll    Tool = "all" // job/schedule filter only, never stored on a video
)

// SupportedTools lists every concrete tool in generation order.
var SupportedTools = []Tool{ToolZapier, ToolN8N, ToolMake}

// DisplayName is the human label used in learning-path names.
func (t Tool) DisplayName() string {
	switch t {
	case ToolZapier:
		return "Zapier"
	case ToolN8N:
		return "n8n"
	case ToolMake:
		return "Make"
	}
	return string(t)
}

// ParseTool normalises a user-supplied tool name. allowAll permits the "all" filter.
func ParseTool(s string, allowAll bool) (Tool, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "zapier":
		return ToolZapier, nil
	case "n8n":
		return ToolN8N, nil
	case "make", "make.com", "integromat":
		return ToolMake, nil
	case "all":
		if allowAll {
			return ToolAll, nil
		}
	case "":
		return "", Validationf("tool is required")
	}
	return "", Validationf("unsupported tool %q", s)
}

// ExpandTool resolves the "all" filter into the concrete tool list.
func ExpandTool(t Tool) []Tool {
	if t == ToolAll {
		return SupportedTools
	}
	return []Tool{t}
}

// Difficulty is the audience level of a video, job filter or path.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// Difficulties lists all levels in curriculum order.
var Difficulties = []Difficulty{Beginner, Intermediate, Advanced}

// ParseDifficulty validates a difficulty label. Empty input is a validation error.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case Beginner, Intermediate, Advanced:
		return d, nil
	case "":
		return "", Validationf("difficulty is required")
	}
	return "", Validationf("unsupported difficulty %q", s)
}

// ParseDifficulties validates a list; an empty list means all levels.
func ParseDifficulties(items []string) ([]Difficulty, error) {
	if len(items) == 0 {
		return append([]Difficulty(nil), Difficulties...), nil
	}
	seen := make(map[Difficulty]bool, len(items))
	out := make([]Difficulty, 0, len(items))
	for _, s := range items {
		d, err := ParseDifficulty(s)
		if err != nil {
			return nil, err
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out, nil
}

// TargetAudience is the path audience label for a difficulty.
func (d Difficulty) TargetAudience() string {
	switch d {
	case Beginner:
		return "Beginners"
	case Intermediate:
		return "Intermediate users"
	}
	return "Advanced users"
}

// --- Source Connector records ---

// RawVideo is one search hit as returned by a Source Connector.
type RawVideo struct {
	ExternalID      string    `json:"external_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Channel         string    `json:"channel,omitempty"`
	ViewCount       int64     `json:"view_count"`
	LikeCount       int64     `json:"like_count,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	PublishedAt     time.Time `json:"published_at,omitzero"` // zero = unknown
	ThumbnailURL    string    `json:"thumbnail_url,omitempty"`
	URL             string    `json:"url,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
}

// RawVideoDetails is the second-phase payload for a search hit.
type RawVideoDetails struct {
	Description     string
	PublishedAt     time.Time
	Tags            []string
	DurationSeconds int
	ViewCount       int64
	LikeCount       int64
}

// Merge fills fields of v left empty by the search phase.
func (v *RawVideo) Merge(d RawVideoDetails) {
	if v.Description == "" || len(d.Description) > len(v.Description) {
		v.Description = d.Description
	}
	if v.PublishedAt.IsZero() {
		v.PublishedAt = d.PublishedAt
	}
	if len(v.Tags) == 0 {
		v.Tags = d.Tags
	}
	if v.DurationSeconds == 0 {
		v.DurationSeconds = d.DurationSeconds
	}
	if v.ViewCount == 0 {
		v.ViewCount = d.ViewCount
	}
	if v.LikeCount == 0 {
		v.LikeCount = d.LikeCount
	}
}

// NeedsDetails reports whether the search phase left out fields the scorer reads.
func (v RawVideo) NeedsDetails() bool {
	return v.Description == "" || v.PublishedAt.IsZero()
}

// --- Scoring and classification ---

// SubScores holds the ten quality dimensions, each in [0,100].
type SubScores struct {
	ViewCount      int `json:"view_count"`
	ContentQuality int `json:"content_quality"`
	Educational    int `json:"educational"`
	Engagement     int `json:"engagement"`
	Authority      int `json:"authority"`
	Production     int `json:"production"`
	DurationFit    int `json:"duration_fit"`
	Uniqueness     int `json:"uniqueness"`
	Accessibility  int `json:"accessibility"`
	TitleDesc      int `json:"title_description"`
}

// Signals are the boolean content flags detected while scoring.
type Signals struct {
	HasTimestamps         bool `json:"has_timestamps"`
	HasCodeExamples       bool `json:"has_code_examples"`
	HasHandsOnDemo        bool `json:"has_hands_on_demo"`
	IsBeginnerFriendly    bool `json:"is_beginner_friendly"`
	IsProgressive         bool `json:"is_progressive"`
	HasRealWorldExamples  bool `json:"has_real_world_examples"`
	IsOfficialChannel     bool `json:"is_official_channel"`
	IsExpertChannel       bool `json:"is_expert_channel"`
	IsOriginalContent     bool `json:"is_original_content"`
	HasAdvancedTechniques bool `json:"has_advanced_techniques"`
	SolvesSpecificProblem bool `json:"solves_specific_problems"`
	HasClosedCaptions     bool `json:"has_closed_captions"`
	NoAssumedKnowledge    bool `json:"no_assumed_knowledge"`
}

// Classification holds the four categorical tags.
type Classification struct {
	TutorialType    string `json:"tutorial_type"`
	UseCase         string `json:"use_case"`
	Industry        string `json:"industry"`
	ComplexityLevel string `json:"complexity_level"`
}

// LearningMeta is derived curriculum metadata for one video.
type LearningMeta struct {
	EstimatedLearningTime int      `json:"estimated_learning_time"` // seconds
	LearningObjectives    []string `json:"learning_objectives"`
	Prerequisites         []string `json:"prerequisites"`
	KeyTopics             []string `json:"key_topics"`
}

// Review states of a catalog record.
const (
	ReviewPending = "pending"
	ReviewUpdated = "updated"
)

// VideoRecord is one scored, classified catalog entry.
type VideoRecord struct {
	ExternalID      string     `json:"external_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Channel         string     `json:"channel,omitempty"`
	ViewCount       int64      `json:"view_count"`
	LikeCount       int64      `json:"like_count,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	ThumbnailURL    string     `json:"thumbnail_url,omitempty"`
	VideoURL        string     `json:"video_url,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	Tool            Tool       `json:"tool"`
	Difficulty      Difficulty `json:"difficulty"`
	QualityScore    int        `json:"quality_score"`
	EngagementScore int        `json:"engagement_score"`
	Scores          SubScores  `json:"scores"`
	Signals         Signals    `json:"signals"`
	Classification
	LearningMeta
	ReviewStatus string    `json:"review_status"`
	UserRating   float64   `json:"user_rating"`
	RatingCount  int       `json:"rating_count"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastScoredAt time.Time `json:"last_scored_at"`
}

// Catalog read statuses.
const (
	SearchOK           = "ok"
	SearchEmptyCatalog = "empty_catalog" // no videos for the tool at all
	SearchNoMatch      = "no_match"      // videos exist but filters excluded all
)

// SearchQuery filters a catalog read. Tool is required.
type SearchQuery struct {
	Tool       Tool
	Difficulty Difficulty // empty = any
	MinScore   int
	Text       string // substring over title, description, channel, tags
	Limit      int
	Offset     int
}

// SearchResult is a ranked catalog page.
type SearchResult struct {
	Videos []VideoRecord `json:"videos"`
	Total  int           `json:"total"`
	Status string        `json:"status"`
}

// VideoStat aggregates the catalog for one tool+difficulty.
type VideoStat struct {
	Tool       Tool       `json:"tool"`
	Difficulty Difficulty `json:"difficulty"`
	Count      int        `json:"count"`
	AvgScore   float64    `json:"avg_score"`
	AvgViews   float64    `json:"avg_views"`
}
