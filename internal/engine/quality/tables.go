// Package quality scores, classifies and annotates raw video metadata and
// generates search terms. Every function here is pure: keyword tables are
// loaded once into an immutable Scorer.
package quality

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultTables []byte

// Family is a keyword family: any keyword or pattern present means a match.
// In YAML it is either a plain list of keywords or a mapping with
// keywords and patterns.
type Family struct {
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

// UnmarshalYAML accepts the sequence shorthand.
func (f *Family) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&f.Keywords)
	}
	type plain Family
	return node.Decode((*plain)(f))
}

// Rule is one ordered classifier or learning-metadata entry.
type Rule struct {
	Label    string   `yaml:"label"`
	Labels   []string `yaml:"labels"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

// RuleSet is an ordered rule list. Cumulative sets collect the labels of every
// matching rule; otherwise the first match wins.
type RuleSet struct {
	Cumulative bool     `yaml:"cumulative"`
	Default    []string `yaml:"-"`
	Rules      []Rule   `yaml:"rules"`
}

// UnmarshalYAML accepts "default" as either a scalar or a list.
func (r *RuleSet) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Cumulative bool      `yaml:"cumulative"`
		Default    yaml.Node `yaml:"default"`
		Rules      []Rule    `yaml:"rules"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	r.Cumulative = raw.Cumulative
	r.Rules = raw.Rules
	switch raw.Default.Kind {
	case yaml.ScalarNode:
		r.Default = []string{raw.Default.Value}
	case yaml.SequenceNode:
		return raw.Default.Decode(&r.Default)
	}
	return nil
}

// ViewTier maps a minimum view count to sub-score points.
type ViewTier struct {
	Min    int64 `yaml:"min"`
	Points int   `yaml:"points"`
}

// Tables is the YAML document behind a Scorer.
type Tables struct {
	Channels struct {
		Official []string `yaml:"official"`
		Expert   []string `yaml:"expert"`
	} `yaml:"channels"`
	ViewTiers   []ViewTier         `yaml:"view_tiers"`
	Families    map[string]Family  `yaml:"families"`
	Classifiers map[string]RuleSet `yaml:"classifiers"`
	Learning    map[string]RuleSet `yaml:"learning"`
	Search      struct {
		BaseTerms map[string][]string `yaml:"base_terms"`
		Modifiers map[string][]string `yaml:"modifiers"`
	} `yaml:"search"`
}

// Family names every table must define.
var requiredFamilies = []string{
	"timestamps", "tutorial", "code", "hands_on", "beginner", "progressive",
	"real_world", "discussion", "subscribe", "professional", "clear_audio", "hd",
	"original", "advanced", "problem", "captions", "no_assumed",
	"title_tutorial", "title_complete", "process",
}

var (
	requiredClassifiers = []string{"tutorial_type", "use_case", "industry", "complexity"}
	requiredLearning    = []string{"objectives", "prerequisites", "topics"}
)

// matcher is a compiled Family.
type matcher struct {
	subs  []string
	words []string
	res   []*regexp.Regexp
}

func compileMatcher(keywords, patterns []string) (matcher, error) {
	var m matcher
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		switch {
		case k == "":
		case len([]rune(k)) <= 3:
			m.words = append(m.words, k)
		default:
			m.subs = append(m.subs, k)
		}
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return matcher{}, fmt.Errorf("pattern %q: %w", p, err)
		}
		m.res = append(m.res, re)
	}
	return m, nil
}

// match reports whether text (already lowercased) contains any keyword of the family.
func (m matcher) match(text string) bool {
	for _, s := range m.subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	for _, w := range m.words {
		if containsWord(text, w) {
			return true
		}
	}
	for _, re := range m.res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// containsWord finds w in text bounded by non-alphanumerics or the text edges.
func containsWord(text, w string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], w)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(w)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}

type compiledRule struct {
	labels []string
	m      matcher
}

type compiledSet struct {
	cumulative bool
	def        []string
	rules      []compiledRule
}

func compileSet(name string, rs RuleSet) (compiledSet, error) {
	cs := compiledSet{cumulative: rs.Cumulative, def: rs.Default}
	if len(cs.def) == 0 {
		return cs, fmt.Errorf("%s: default is required", name)
	}
	for i, r := range rs.Rules {
		labels := r.Labels
		if r.Label != "" {
			labels = append([]string{r.Label}, labels...)
		}
		if len(labels) == 0 {
			return cs, fmt.Errorf("%s: rule %d has no label", name, i)
		}
		m, err := compileMatcher(r.Keywords, r.Patterns)
		if err != nil {
			return cs, fmt.Errorf("%s: rule %d: %w", name, i, err)
		}
		cs.rules = append(cs.rules, compiledRule{labels: labels, m: m})
	}
	return cs, nil
}

// apply returns the labels selected for text.
func (cs compiledSet) apply(text string) []string {
	var out []string
	for _, r := range cs.rules {
		if !r.m.match(text) {
			continue
		}
		out = append(out, r.labels...)
		if !cs.cumulative {
			break
		}
	}
	if len(out) == 0 {
		return append([]string(nil), cs.def...)
	}
	return out
}

// Scorer holds compiled keyword tables. It is immutable after construction
// and safe for concurrent use.
type Scorer struct {
	official    []string
	expert      []string
	viewTiers   []ViewTier
	families    map[string]matcher
	classifiers map[string]compiledSet
	learning    map[string]compiledSet
	baseTerms   map[string][]string
	modifiers   map[string][]string
}

// Parse compiles a YAML table document.
func Parse(data []byte) (*Scorer, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("keyword tables: %w", err)
	}
	return compile(t)
}

func compile(t Tables) (*Scorer, error) {
	s := &Scorer{
		families:    make(map[string]matcher, len(t.Families)),
		classifiers: make(map[string]compiledSet, len(t.Classifiers)),
		learning:    make(map[string]compiledSet, len(t.Learning)),
		baseTerms:   t.Search.BaseTerms,
		modifiers:   t.Search.Modifiers,
	}
	for _, c := range t.Channels.Official {
		s.official = append(s.official, strings.ToLower(c))
	}
	for _, c := range t.Channels.Expert {
		s.expert = append(s.expert, strings.ToLower(c))
	}

	if len(t.ViewTiers) == 0 {
		return nil, fmt.Errorf("keyword tables: view_tiers is empty")
	}
	s.viewTiers = append([]ViewTier(nil), t.ViewTiers...)
	sort.Slice(s.viewTiers, func(i, j int) bool { return s.viewTiers[i].Min > s.viewTiers[j].Min })
	for i := 1; i < len(s.viewTiers); i++ {
		if s.viewTiers[i].Points > s.viewTiers[i-1].Points {
			return nil, fmt.Errorf("keyword tables: view_tiers must be monotonic")
		}
	}

	for _, name := range requiredFamilies {
		f, ok := t.Families[name]
		if !ok {
			return nil, fmt.Errorf("keyword tables: missing family %q", name)
		}
		m, err := compileMatcher(f.Keywords, f.Patterns)
		if err != nil {
			return nil, fmt.Errorf("keyword tables: family %s: %w", name, err)
		}
		s.families[name] = m
	}
	for _, name := range requiredClassifiers {
		cs, err := compileSet(name, t.Classifiers[name])
		if err != nil {
			return nil, fmt.Errorf("keyword tables: classifier %w", err)
		}
		s.classifiers[name] = cs
	}
	for _, name := range requiredLearning {
		cs, err := compileSet(name, t.Learning[name])
		if err != nil {
			return nil, fmt.Errorf("keyword tables: learning %w", err)
		}
		s.learning[name] = cs
	}
	return s, nil
}

// LoadFile compiles tables from a YAML file on disk.
func LoadFile(path string) (*Scorer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyword tables: %w", err)
	}
	return Parse(data)
}

var (
	defaultOnce   sync.Once
	defaultScorer *Scorer
)

// Default returns the Scorer built from the embedded tables.
func Default() *Scorer {
	defaultOnce.Do(func() {
		s, err := Parse(defaultTables)
		if err != nil {
			panic("quality: embedded keyword tables: " + err.Error())
		}
		defaultScorer = s
	})
	return defaultScorer
}

// New returns the Scorer for path, or the embedded one when path is empty.
func New(path string) (*Scorer, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func (s *Scorer) has(family, text string) bool {
	return s.families[family].match(text)
}
