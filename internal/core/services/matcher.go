package services

import (
	"context"
	"sort"
	"strings"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// DefaultMatchThreshold is the minimum similarity score for an automatic
// identity match. Below it the best candidate is surfaced but not applied.
const DefaultMatchThreshold = 0.90

// maxCandidates is how many ranked candidates a match result carries.
const maxCandidates = 3

// Matcher resolves extracted patient names against the known-patient
// directory using token-sorted Levenshtein similarity.
type Matcher struct {
	directory driven.PatientDirectory
	threshold float64
}

// MatcherConfig holds dependencies for Matcher.
type MatcherConfig struct {
	Directory driven.PatientDirectory

	// Threshold overrides DefaultMatchThreshold when > 0.
	Threshold float64
}

// NewMatcher creates a new matcher.
func NewMatcher(cfg MatcherConfig) *Matcher {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Matcher{directory: cfg.Directory, threshold: threshold}
}

// Match scores name against every directory patient and returns the ranked
// candidates. Best is nil when the top score is below the threshold or the
// name is unusable. The directory snapshot is taken per call.
func (m *Matcher) Match(ctx context.Context, name string) (*domain.MatchResult, error) {
	result := &domain.MatchResult{}

	normalized := NormalizeName(name)
	if normalized == "" || name == domain.UnknownPatientName {
		return result, nil
	}

	patients, err := m.directory.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.MatchCandidate, 0, len(patients))
	for _, p := range patients {
		score := tokenSortRatio(normalized, NormalizeName(p.DisplayName))
		candidates = append(candidates, domain.MatchCandidate{
			PatientID:   p.ID,
			DisplayName: p.DisplayName,
			Score:       score,
		})
	}

	// Stable sort keeps directory order for equal scores, so repeated runs
	// against the same snapshot return the same ranking.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	result.Candidates = candidates

	if len(candidates) > 0 && candidates[0].Score >= m.threshold {
		best := candidates[0]
		result.Best = &best
	}
	return result, nil
}

// honorifics are stripped from names before comparison.
var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true,
	"dr": true, "prof": true, "rev": true,
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true,
	"md": true, "do": true, "phd": true, "rn": true, "np": true, "pa": true,
}

// NormalizeName canonicalizes a patient name for comparison: "Last, First"
// becomes "First Last", honorifics and punctuation (apostrophes excepted)
// are dropped, and the result is lowercased with collapsed whitespace.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)

	// "Garcia, Maria" -> "Maria Garcia". Only the first comma reorders;
	// anything after a second comma is a suffix and gets dropped below.
	if i := strings.IndexByte(name, ','); i >= 0 {
		last := name[:i]
		first := name[i+1:]
		if j := strings.IndexByte(first, ','); j >= 0 {
			first = first[:j]
		}
		name = first + " " + last
	}

	name = strings.ToLower(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			b.WriteRune(r)
		case r >= 'à' && r <= 'ÿ' && r != '÷':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	out := tokens[:0]
	for _, t := range tokens {
		t = strings.Trim(t, "'")
		if t == "" || honorifics[t] {
			continue
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}

// tokenSortRatio compares two normalized names after sorting their tokens,
// so "john smith" and "smith john" score 1.0.
func tokenSortRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	at := strings.Fields(a)
	bt := strings.Fields(b)
	sort.Strings(at)
	sort.Strings(bt)
	return levenshteinRatio(strings.Join(at, " "), strings.Join(bt, " "))
}

// levenshteinRatio returns 1 - dist/maxLen over runes, in [0, 1].
func levenshteinRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	ar := []rune(a)
	br := []rune(b)
	longest := len(ar)
	if len(br) > longest {
		longest = len(br)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ar, br))/float64(longest)
}

// levenshtein computes edit distance with a single rolling row.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			best := prev + cost
			if row[j]+1 < best {
				best = row[j] + 1
			}
			if row[j-1]+1 < best {
				best = row[j-1] + 1
			}
			row[j] = best
			prev = cur
		}
	}
	return row[len(b)]
}
