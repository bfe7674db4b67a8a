// Package fuzzy scores catalog candidates against a query using normalized
// edit distance.
package fuzzy

import (
	"github.com/agnivade/levenshtein"

	"github.com/edgard/nutribot/internal/normalize"
)

// DefaultMaxRunes bounds the strings handed to the distance function.
const DefaultMaxRunes = 64

// Distancer returns the non-negative edit distance between two strings.
type Distancer interface {
	Distance(a, b string) int
}

// Levenshtein is a Distancer backed by agnivade/levenshtein. Inputs longer
// than MaxRunes are truncated before comparison.
type Levenshtein struct {
	MaxRunes int
}

func (l Levenshtein) Distance(a, b string) int {
	limit := l.MaxRunes
	if limit <= 0 {
		limit = DefaultMaxRunes
	}
	return levenshtein.ComputeDistance(truncate(a, limit), truncate(b, limit))
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// Similarity returns 1 - d/max(len(a), len(b)) in [0, 1]. Two empty strings
// are identical.
func Similarity(d Distancer, a, b string) float64 {
	a, b = truncate(a, DefaultMaxRunes), truncate(b, DefaultMaxRunes)
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	score := 1 - float64(d.Distance(a, b))/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

// Candidate is one comparable entry, carrying both normalized forms.
type Candidate struct {
	Spaced  string
	Compact string
}

// NewCandidate builds a Candidate from a raw name.
func NewCandidate(name string) Candidate {
	return Candidate{Spaced: normalize.Spaced(name), Compact: normalize.Compact(name)}
}

// Match is the winning candidate index and its score.
type Match struct {
	Index int
	Score float64
}

// Matcher accepts the best-scoring candidate at or above Threshold.
type Matcher struct {
	dist      Distancer
	threshold float64
}

// NewMatcher returns a Matcher using d, defaulting to Levenshtein when nil.
func NewMatcher(d Distancer, threshold float64) *Matcher {
	if d == nil {
		d = Levenshtein{}
	}
	return &Matcher{dist: d, threshold: threshold}
}

// Threshold returns the minimum accepted score.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Score compares query to c on both the spaced and compact forms and keeps
// the better of the two.
func (m *Matcher) Score(query Candidate, c Candidate) float64 {
	spaced := Similarity(m.dist, query.Spaced, c.Spaced)
	compact := Similarity(m.dist, query.Compact, c.Compact)
	if compact > spaced {
		return compact
	}
	return spaced
}

// Best returns the highest-scoring candidate. Ties keep the earlier
// candidate, so callers pass candidates ordered by preference. The result is
// rejected when it scores below the threshold.
func (m *Matcher) Best(query string, candidates []Candidate) (Match, bool) {
	q := NewCandidate(query)
	if q.Compact == "" {
		return Match{}, false
	}
	best := Match{Index: -1}
	for i, c := range candidates {
		if s := m.Score(q, c); s > best.Score {
			best = Match{Index: i, Score: s}
		}
	}
	if best.Index < 0 || best.Score < m.threshold {
		return Match{}, false
	}
	return best, true
}
