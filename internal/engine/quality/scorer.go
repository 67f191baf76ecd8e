package quality

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anatolykoptev/go_learn/internal/engine"
)

// Input is the immutable view of a video the scorer and classifier read.
type Input struct {
	Title           string
	Description     string
	Channel         string
	ViewCount       int64
	DurationSeconds int
	PublishedAt     time.Time // zero = unknown
}

// InputFrom adapts a connector record.
func InputFrom(v engine.RawVideo) Input {
	return Input{
		Title:           v.Title,
		Description:     v.Description,
		Channel:         v.Channel,
		ViewCount:       v.ViewCount,
		DurationSeconds: v.DurationSeconds,
		PublishedAt:     v.PublishedAt,
	}
}

// Result is the scorer output.
type Result struct {
	Overall int              `json:"overall"`
	Scores  engine.SubScores `json:"scores"`
	Signals engine.Signals   `json:"signals"`
}

// Dimension weights. They sum to 150; the overall score is the weighted mean.
const (
	WeightViewCount      = 25
	WeightContentQuality = 25
	WeightEducational    = 15
	WeightEngagement     = 20
	WeightAuthority      = 15
	WeightProduction     = 10
	WeightDurationFit    = 10
	WeightUniqueness     = 10
	WeightAccessibility  = 5
	WeightTitleDesc      = 15
)

const totalWeight = WeightViewCount + WeightContentQuality + WeightEducational + WeightEngagement +
	WeightAuthority + WeightProduction + WeightDurationFit + WeightUniqueness + WeightAccessibility + WeightTitleDesc

// text is the lowercased title+description pair the families are matched against.
type text struct {
	title, desc, combined string
}

func newText(in Input) text {
	t := engine.NormalizeText(in.Title)
	d := engine.NormalizeText(in.Description)
	return text{title: t, desc: d, combined: t + " " + d}
}

// Score computes the ten sub-scores, their weighted mean and the signal flags.
// now anchors the recency bonus so results are reproducible.
func (s *Scorer) Score(in Input, now time.Time) Result {
	tx := newText(in)
	sig := s.signals(in, tx)

	sc := engine.SubScores{
		ViewCount:      s.viewCountScore(in.ViewCount),
		ContentQuality: contentQualityScore(sig, s.has("tutorial", tx.combined)),
		Educational:    educationalScore(sig),
		Engagement:     engagementScore(in.ViewCount, s.has("discussion", tx.combined), s.has("subscribe", tx.combined)),
		Authority:      authorityScore(sig, in.PublishedAt, now),
		Production: productionScore(
			s.has("professional", tx.combined), s.has("clear_audio", tx.combined), s.has("hd", tx.combined)),
		DurationFit:   DurationFit(in.DurationSeconds),
		Uniqueness:    uniquenessScore(sig),
		Accessibility: accessibilityScore(sig),
		TitleDesc:     s.titleDescScore(in, tx),
	}
	return Result{Overall: Overall(sc), Scores: sc, Signals: sig}
}

// Overall is round(clamp(Σ score·weight / Σ weight, 0, 100)).
func Overall(sc engine.SubScores) int {
	sum := sc.ViewCount*WeightViewCount +
		sc.ContentQuality*WeightContentQuality +
		sc.Educational*WeightEducational +
		sc.Engagement*WeightEngagement +
		sc.Authority*WeightAuthority +
		sc.Production*WeightProduction +
		sc.DurationFit*WeightDurationFit +
		sc.Uniqueness*WeightUniqueness +
		sc.Accessibility*WeightAccessibility +
		sc.TitleDesc*WeightTitleDesc
	mean := float64(sum) / float64(totalWeight)
	return int(math.Round(clamp(mean)))
}

func (s *Scorer) signals(in Input, tx text) engine.Signals {
	channel := strings.ToLower(in.Channel)
	official := containsAny(channel, s.official)
	return engine.Signals{
		HasTimestamps:         s.has("timestamps", tx.combined),
		HasCodeExamples:       s.has("code", tx.combined),
		HasHandsOnDemo:        s.has("hands_on", tx.combined),
		IsBeginnerFriendly:    s.has("beginner", tx.combined),
		IsProgressive:         s.has("progressive", tx.combined),
		HasRealWorldExamples:  s.has("real_world", tx.combined),
		IsOfficialChannel:     official,
		IsExpertChannel:       !official && containsAny(channel, s.expert),
		IsOriginalContent:     s.has("original", tx.combined),
		HasAdvancedTechniques: s.has("advanced", tx.combined),
		SolvesSpecificProblem: s.has("problem", tx.combined),
		HasClosedCaptions:     s.has("captions", tx.combined),
		NoAssumedKnowledge:    s.has("no_assumed", tx.combined),
	}
}

func containsAny(s string, subs []string) bool {
	if s == "" {
		return false
	}
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (s *Scorer) viewCountScore(views int64) int {
	for _, t := range s.viewTiers {
		if views >= t.Min {
			return t.Points
		}
	}
	return s.viewTiers[len(s.viewTiers)-1].Points
}

func contentQualityScore(sig engine.Signals, tutorialWords bool) int {
	score := 0
	switch {
	case sig.HasTimestamps:
		score += 40
	case tutorialWords:
		score += 20
	}
	if sig.HasCodeExamples {
		score += 30
	}
	if sig.HasHandsOnDemo {
		score += 30
	}
	return capScore(score)
}

func educationalScore(sig engine.Signals) int {
	score := 0
	if sig.IsBeginnerFriendly {
		score += 30
	}
	if sig.IsProgressive {
		score += 30
	}
	if sig.HasRealWorldExamples {
		score += 40
	}
	return capScore(score)
}

// engagementScore estimates engagement from reach and call-to-action wording;
// no like or comment ratios are available upstream.
func engagementScore(views int64, discussion, subscribe bool) int {
	var score int
	switch {
	case views > 100_000:
		score = 50
	case views > 10_000:
		score = 40
	case views > 1_000:
		score = 30
	default:
		score = 20
	}
	score += pick(discussion, 25, 15)
	score += pick(subscribe, 25, 15)
	return capScore(score)
}

func authorityScore(sig engine.Signals, published, now time.Time) int {
	score := 20
	switch {
	case sig.IsOfficialChannel:
		score = 60
	case sig.IsExpertChannel:
		score = 40
	}
	if !published.IsZero() {
		age := now.Sub(published)
		if age < 365*24*time.Hour {
			score += 20
		}
		if age < 180*24*time.Hour {
			score += 20
		}
	}
	return capScore(score)
}

func productionScore(professional, clearAudio, hd bool) int {
	return capScore(pick(professional, 50, 30) + pick(clearAudio, 30, 20) + pick(hd, 20, 10))
}

// DurationFit peaks at 100 for 10–30 minute videos and tapers on both sides.
func DurationFit(seconds int) int {
	switch {
	case seconds < 60:
		return 20
	case seconds < 180:
		return 40
	case seconds < 600:
		return 60
	case seconds <= 1800:
		return 100
	case seconds <= 3600:
		return 80
	default:
		return 30
	}
}

func uniquenessScore(sig engine.Signals) int {
	return capScore(pick(sig.IsOriginalContent, 40, 25) +
		pick(sig.HasAdvancedTechniques, 35, 20) +
		pick(sig.SolvesSpecificProblem, 25, 15))
}

func accessibilityScore(sig engine.Signals) int {
	return capScore(pick(sig.HasClosedCaptions, 60, 20) + pick(sig.NoAssumedKnowledge, 40, 20))
}

func (s *Scorer) titleDescScore(in Input, tx text) int {
	score := 0
	if n := utf8.RuneCountInString(strings.TrimSpace(in.Title)); n >= 20 && n <= 100 {
		score += 35
	}
	if s.has("title_tutorial", tx.title) {
		score += 20
	}
	if s.has("title_complete", tx.title) {
		score += 15
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Description)) > 100 {
		score += 20
	}
	if s.has("process", tx.desc) {
		score += 10
	}
	return capScore(score)
}

func pick(cond bool, yes, no int) int {
	if cond {
		return yes
	}
	return no
}

func capScore(n int) int {
	return int(clamp(float64(n)))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
