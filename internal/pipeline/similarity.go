package pipeline

import (
	"strings"
	"unicode"
)

// Weights of the combined title similarity score.
const (
	JaccardWeight = 0.6
	EditWeight    = 0.4

	quickPrefixLen      = 10
	quickLengthRatio    = 0.3
	quickPrefixJaccard  = 0.5
	DefaultNearDupScore = 0.85
)

// NormalizeTitle lowercases s, drops everything but letters, digits and
// whitespace, and collapses whitespace. It is the key for exact title matches.
func NormalizeTitle(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return CollapseWhitespace(b.String())
}

// wordSet splits s into lowercase tokens longer than one character.
// Punctuation separates tokens.
func wordSet(s string) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) > 1 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the word sets of a and b.
func Jaccard(a, b string) float64 {
	if a == b {
		return 1
	}
	setA, setB := wordSet(a), wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// EditSimilarity returns 1 - levenshtein(a, b) / max(len(a), len(b)), case-folded.
func EditSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// Combined weighs Jaccard and edit similarity.
func Combined(a, b string) float64 {
	return JaccardWeight*Jaccard(a, b) + EditWeight*EditSimilarity(a, b)
}

// IsSimilar reports whether the combined score reaches threshold.
func IsSimilar(a, b string, threshold float64) bool {
	return Combined(a, b) >= threshold
}

// QuickCheck is a cheap pre-filter: titles whose lengths differ by more than 30%
// or whose 10-character prefixes share few words are not worth scoring.
func QuickCheck(a, b string) bool {
	if a == b {
		return true
	}
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	longest := max(len(ra), len(rb))
	diff := len(ra) - len(rb)
	if diff < 0 {
		diff = -diff
	}
	if float64(diff) > quickLengthRatio*float64(longest) {
		return false
	}
	pa := string(ra[:min(len(ra), quickPrefixLen)])
	pb := string(rb[:min(len(rb), quickPrefixLen)])
	return Jaccard(pa, pb) > quickPrefixJaccard
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
