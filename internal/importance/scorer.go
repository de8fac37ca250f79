// Package importance computes the heuristic [0,1] relevance weight
// attached to every memory at creation time. The scorer is pure and
// deterministic: same content and category, same score.
package importance

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/engram-labs/engram/internal/models"
)

// Length thresholds in runes. Long content carries slightly more signal,
// near-empty content slightly less.
const (
	longContentRunes  = 200
	shortContentRunes = 10
	lengthDelta       = 0.05
)

// keywordBonus is added once when any important keyword matches; further
// matches do not stack.
const keywordBonus = 0.10

// importantKeywords flag content the user explicitly marked as worth
// keeping. Matching is case-insensitive substring.
var importantKeywords = []string{
	"important",
	"remember",
	"don't forget",
	"never forget",
	"critical",
	"must",
	"always",
	"urgent",
}

// Structural patterns indicating personal, contact or goal information.
// Each pattern is applied once; the running total is clamped after each.
var patterns = []struct {
	re    *regexp.Regexp
	bonus float64
}{
	{regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`), 0.10},         // email address
	{regexp.MustCompile(`\+?\d[\d\s-]{6,}\d`), 0.05},               // phone number
	{regexp.MustCompile(`(?i)\bmy name is\b`), 0.05},               // stated identity
	{regexp.MustCompile(`(?i)\b(i want to|my goal|i plan to|i will)\b`), 0.05}, // stated goal
}

// Scorer computes importance weights from content and category.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes the heuristic importance of content within a category,
// clamped to [0,1] and rounded to two decimals.
func (s *Scorer) Score(content, category string) float64 {
	score, ok := models.CategoryBaseWeights[category]
	if !ok {
		score = models.ScorerDefaultBase
	}

	runes := utf8.RuneCountInString(content)
	if runes > longContentRunes {
		score = clamp01(score + lengthDelta)
	} else if runes < shortContentRunes {
		score = clamp01(score - lengthDelta)
	}

	lower := strings.ToLower(content)
	for _, kw := range importantKeywords {
		if strings.Contains(lower, kw) {
			score = clamp01(score + keywordBonus)
			break
		}
	}

	for _, p := range patterns {
		if p.re.MatchString(content) {
			score = clamp01(score + p.bonus)
		}
	}

	return round2(score)
}

// Blend combines the heuristic score with an explicitly supplied value as
// their arithmetic mean, still bounded and rounded.
func (s *Scorer) Blend(heuristic, explicit float64) float64 {
	return round2(clamp01((heuristic + clamp01(explicit)) / 2))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
