// Package quality computes deterministic quality scores for documentation.
package quality

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// MaxScore is the upper bound of a document or repository score.
const MaxScore = 10.0

// Heading is a section title with its level (1 for H1).
type Heading struct {
	Level int
	Text  string
}

// Document is the extracted content the scorer inspects.
type Document struct {
	Path       string
	PlainText  string
	Headings   []Heading
	CodeBlocks []string
	Links      []string
	// HasTOC is set when the document carries a table of contents.
	HasTOC bool
}

// RepoMetadata is repository context for a document. AsOf is the reference
// time for freshness; scores are reproducible for a fixed AsOf.
type RepoMetadata struct {
	Description string
	Topics      []string
	LastUpdated time.Time
	AsOf        time.Time
}

// Metrics holds the sub-scores, each in [0, 1].
type Metrics struct {
	Completeness float64 `json:"completeness"`
	Freshness    float64 `json:"freshness"`
	Structure    float64 `json:"structure"`
	Readability  float64 `json:"readability"`
	Examples     float64 `json:"examples"`
	Navigation   float64 `json:"navigation"`
	Metadata     float64 `json:"metadata"`
}

// Result is a scored document.
type Result struct {
	Score   float64 `json:"score"`
	Grade   Grade   `json:"grade"`
	Metrics Metrics `json:"metrics"`
}

// Weights sets the contribution of each sub-score. They must sum to 1.
type Weights struct {
	Completeness float64 `yaml:"completeness"`
	Freshness    float64 `yaml:"freshness"`
	Structure    float64 `yaml:"structure"`
	Readability  float64 `yaml:"readability"`
	Examples     float64 `yaml:"examples"`
	Navigation   float64 `yaml:"navigation"`
	Metadata     float64 `yaml:"metadata"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{
		Completeness: 0.20,
		Freshness:    0.15,
		Structure:    0.15,
		Readability:  0.15,
		Examples:     0.15,
		Navigation:   0.10,
		Metadata:     0.10,
	}
}

func (w Weights) sum() float64 {
	return w.Completeness + w.Freshness + w.Structure + w.Readability + w.Examples + w.Navigation + w.Metadata
}

// Validate checks the weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Completeness, w.Freshness, w.Structure, w.Readability, w.Examples, w.Navigation, w.Metadata} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("quality weights must be non-negative")
		}
	}
	if s := w.sum(); math.Abs(s-1) > 1e-6 {
		return fmt.Errorf("quality weights sum to %.4f, want 1.0", s)
	}
	return nil
}

// Options tunes the scorer.
type Options struct {
	Weights Weights
	// FreshnessThreshold is the age below which freshness is 1.0.
	FreshnessThreshold time.Duration
	// FreshnessDecay is the span over which freshness decays to 0 after the threshold.
	FreshnessDecay time.Duration
}

// DefaultOptions returns the standard scorer options.
func DefaultOptions() Options {
	return Options{
		Weights:            DefaultWeights(),
		FreshnessThreshold: 90 * 24 * time.Hour,
		FreshnessDecay:     365 * 24 * time.Hour,
	}
}

// Scorer is a pure document scorer.
type Scorer struct {
	opts Options
}

// NewScorer validates opts and returns a scorer.
func NewScorer(opts Options) (*Scorer, error) {
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.FreshnessThreshold < 0 || opts.FreshnessDecay <= 0 {
		return nil, fmt.Errorf("freshness threshold must be >= 0 and decay > 0")
	}
	return &Scorer{opts: opts}, nil
}

// Default returns a scorer with DefaultOptions.
func Default() *Scorer {
	return &Scorer{opts: DefaultOptions()}
}

// Score computes the quality of doc.
func (s *Scorer) Score(doc Document, meta RepoMetadata) Result {
	m := Metrics{
		Completeness: completeness(doc.Headings),
		Freshness:    s.freshness(meta.LastUpdated, meta.AsOf),
		Structure:    structure(doc.Headings),
		Readability:  readability(doc.PlainText),
		Examples:     examples(doc.PlainText, doc.CodeBlocks),
		Navigation:   navigation(doc),
		Metadata:     metadata(meta),
	}
	w := s.opts.Weights
	total := m.Completeness*w.Completeness +
		m.Freshness*w.Freshness +
		m.Structure*w.Structure +
		m.Readability*w.Readability +
		m.Examples*w.Examples +
		m.Navigation*w.Navigation +
		m.Metadata*w.Metadata

	score := round2(clamp(total*MaxScore, 0, MaxScore))
	return Result{Score: score, Grade: GradeFor(score), Metrics: m}
}

// Aggregate returns the mean of document scores, rounded to two decimals.
// An empty slice yields ok=false.
func Aggregate(scores []float64) (mean float64, ok bool) {
	if len(scores) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range scores {
		sum += clamp(s, 0, MaxScore)
	}
	return round2(sum / float64(len(scores))), true
}

var sectionKeywords = [][]string{
	{"install", "setup", "getting started", "quickstart", "quick start"},
	{"usage", "how to", "tutorial", "guide"},
	{"api", "reference", "documentation"},
	{"example", "demo", "sample"},
}

func completeness(headings []Heading) float64 {
	if len(headings) == 0 {
		return 0
	}
	var b strings.Builder
	for _, h := range headings {
		b.WriteString(strings.ToLower(h.Text))
		b.WriteByte('\n')
	}
	all := b.String()

	found := 0
	for _, group := range sectionKeywords {
		for _, kw := range group {
			if strings.Contains(all, kw) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(sectionKeywords))
}

func (s *Scorer) freshness(lastUpdated, asOf time.Time) float64 {
	if lastUpdated.IsZero() || asOf.IsZero() {
		return 0.5
	}
	age := asOf.Sub(lastUpdated)
	if age <= s.opts.FreshnessThreshold {
		return 1
	}
	over := age - s.opts.FreshnessThreshold
	return clamp(1-float64(over)/float64(s.opts.FreshnessDecay), 0, 1)
}

func structure(headings []Heading) float64 {
	if len(headings) == 0 {
		return 0
	}
	score := 0.4

	levels := make(map[int]bool)
	for _, h := range headings {
		levels[h.Level] = true
	}
	if len(levels) > 1 {
		score += 0.2
	}

	if len(headings) == 1 {
		return score + 0.4
	}
	gaps := 0
	for i := 1; i < len(headings); i++ {
		if headings[i].Level > headings[i-1].Level+1 {
			gaps++
		}
	}
	transitions := len(headings) - 1
	score += 0.4 * (1 - float64(gaps)/float64(transitions))
	return clamp(score, 0, 1)
}

var sentenceEnd = regexp.MustCompile(`[.!?]+(\s|$)`)

const (
	longParagraphWords  = 150
	longSentenceWords   = 20
	sentencePenaltySpan = 20.0
)

func readability(text string) float64 {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return 0
	}

	long := 0
	for _, p := range paragraphs {
		if len(strings.Fields(p)) > longParagraphWords {
			long++
		}
	}
	score := 1 - 0.5*float64(long)/float64(len(paragraphs))

	sentences := 0
	words := 0
	for _, p := range paragraphs {
		for _, s := range sentenceEnd.Split(p, -1) {
			n := len(strings.Fields(s))
			if n == 0 {
				continue
			}
			sentences++
			words += n
		}
	}
	if sentences > 0 {
		avg := float64(words) / float64(sentences)
		if avg > longSentenceWords {
			score -= 0.5 * math.Min(1, (avg-longSentenceWords)/sentencePenaltySpan)
		}
	}
	return clamp(score, 0, 1)
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func examples(text string, codeBlocks []string) float64 {
	if len(codeBlocks) == 0 {
		return 0
	}
	words := len(strings.Fields(text))
	units := math.Max(1, float64(words)/500)
	return clamp(float64(len(codeBlocks))/units, 0, 1)
}

func navigation(doc Document) float64 {
	internal := 0
	for _, l := range doc.Links {
		if isInternalLink(l) {
			internal++
		}
	}
	score := 0.7 * math.Min(1, float64(internal)/5)
	if doc.HasTOC {
		score += 0.3
	}
	return clamp(score, 0, 1)
}

func isInternalLink(link string) bool {
	if link == "" {
		return false
	}
	if strings.HasPrefix(link, "#") || strings.HasPrefix(link, "./") || strings.HasPrefix(link, "../") || strings.HasPrefix(link, "/") {
		return true
	}
	return !strings.Contains(link, "://") && !strings.HasPrefix(link, "mailto:")
}

func metadata(meta RepoMetadata) float64 {
	score := 0.0
	if strings.TrimSpace(meta.Description) != "" {
		score += 0.5
	}
	if len(meta.Topics) > 0 {
		score += 0.5
	}
	return score
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
