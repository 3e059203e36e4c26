package extractor

import (
	"strings"
	"unicode"

	types "github.com/yungbote/riskreview-backend/internal/domain"
)

// DuplicateThreshold is the location similarity above which two findings are
// treated as the same clause.
const DuplicateThreshold = 0.6

// NormalizeLocation strips whitespace and punctuation and lowercases, so
// quotes taken from overlapping chunks compare equal.
func NormalizeLocation(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// LocationSimilarity is the Jaccard index over the character sets of the two
// normalized locations. Empty locations never match.
func LocationSimilarity(a, b string) float64 {
	na, nb := NormalizeLocation(a), NormalizeLocation(b)
	if na == "" || nb == "" {
		return 0
	}
	setA := make(map[rune]struct{}, len(na))
	for _, r := range na {
		setA[r] = struct{}{}
	}
	setB := make(map[rune]struct{}, len(nb))
	for _, r := range nb {
		setB[r] = struct{}{}
	}
	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// MergeDuplicates collapses near-duplicate candidates of one batch into the
// most severe of them, keeping the shorter quote and folding in the other
// descriptions. Order follows the first occurrence.
func MergeDuplicates(in []Candidate) []Candidate {
	if len(in) <= 1 {
		return in
	}
	used := make([]bool, len(in))
	out := make([]Candidate, 0, len(in))
	for i := range in {
		if used[i] {
			continue
		}
		best := in[i]
		for j := i + 1; j < len(in); j++ {
			if used[j] || LocationSimilarity(in[i].Location, in[j].Location) <= DuplicateThreshold {
				continue
			}
			used[j] = true
			best = merge(best, in[j])
		}
		out = append(out, best)
	}
	return out
}

func merge(a, b Candidate) Candidate {
	keep, other := a, b
	if types.LevelRank(b.Level) > types.LevelRank(a.Level) {
		keep, other = b, a
	}
	if other.Description != "" && other.Description != keep.Description {
		keep.Description += "\n\nRelated: " + other.Description
	}
	if other.Location != "" && (keep.Location == "" || len([]rune(other.Location)) < len([]rune(keep.Location))) {
		keep.Location = other.Location
	}
	return keep
}

// FilterSeen drops candidates that duplicate an already persisted location.
// Persisted risks are immutable, so a duplicate is dropped even when it is
// more severe. dropped counts what was removed.
func FilterSeen(in []Candidate, seen []string) (kept []Candidate, dropped int) {
	kept = make([]Candidate, 0, len(in))
	for _, c := range in {
		dup := false
		for _, loc := range seen {
			if LocationSimilarity(c.Location, loc) > DuplicateThreshold {
				dup = true
				break
			}
		}
		if dup {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	return kept, dropped
}
