// fuzzy.go - Text normalization and similarity scoring for job/PO matching

package fuzzy

import (
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	nonWordRegex    = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Normalize uppercases text, strips punctuation and collapses whitespace.
// Compatibility characters (ligatures, full-width digits) are folded first.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToUpper(norm.NFKC.String(text))
	text = nonWordRegex.ReplaceAllString(text, "")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// EditDistance returns the Levenshtein distance between a and b, counted in runes.
func EditDistance(a, b string) int {
	r1 := []rune(a)
	r2 := []rune(b)
	n, m := len(r1), len(r2)

	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
		dp[i][0] = i
	}
	for j := 0; j <= m; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			dp[i][j] = min(
				dp[i-1][j]+1,      // deletion
				dp[i][j-1]+1,      // insertion
				dp[i-1][j-1]+cost, // substitution
			)
		}
	}

	return dp[n][m]
}

// Similarity scores two strings in [0, 1].
//
// Equal after normalization scores 1.0, equal once spaces are removed scores
// 0.98, anything else is 1 - distance/longer on the space-stripped forms.
func Similarity(a, b string) float64 {
	n1 := Normalize(a)
	n2 := Normalize(b)
	if n1 == "" || n2 == "" {
		return 0.0
	}
	if n1 == n2 {
		return 1.0
	}

	s1 := strings.ReplaceAll(n1, " ", "")
	s2 := strings.ReplaceAll(n2, " ", "")
	if s1 == s2 {
		return 0.98
	}

	longer := max(len([]rune(s1)), len([]rune(s2)))
	if longer == 0 {
		return 0.0
	}

	score := 1.0 - float64(EditDistance(s1, s2))/float64(longer)
	return math.Max(0.0, score)
}

// NameMatch is the result of FindNameInText.
type NameMatch struct {
	Found    bool    `json:"found"`
	Position int     `json:"position"` // byte offset into the uppercased text, -1 when unknown
	Matched  string  `json:"matched"`
	Score    float64 `json:"score"`
}

// FindNameInText looks for name inside text tolerating misspellings and
// spacing noise. It tries a normalized substring, then a space-stripped
// substring, then 1-4 word windows scored with Similarity. A window result is
// only returned when its score reaches threshold.
func FindNameInText(text, name string, threshold float64) NameMatch {
	if text == "" || strings.TrimSpace(name) == "" {
		return NameMatch{Position: -1}
	}

	textUpper := strings.ToUpper(text)
	nameUpper := strings.TrimSpace(strings.ToUpper(name))
	nameCompact := compact(nameUpper)

	// Tier 1: normalized substring
	nameNormalized := Normalize(name)
	if nameNormalized != "" && strings.Contains(Normalize(text), nameNormalized) {
		pos := strings.Index(textUpper, nameUpper)
		if pos == -1 {
			pos = strings.Index(strings.ReplaceAll(textUpper, " ", ""), nameCompact)
		}
		return NameMatch{Found: true, Position: max(pos, 0), Matched: nameNormalized, Score: 1.0}
	}

	// Tier 2: both sides without spaces
	textCompact := strings.ReplaceAll(textUpper, " ", "")
	if nameCompact != "" {
		if pos := strings.Index(textCompact, nameCompact); pos >= 0 {
			return NameMatch{Found: true, Position: pos, Matched: nameCompact, Score: 0.98}
		}
	}

	// Tier 3: sliding word windows of similar length
	words := strings.Fields(textUpper)
	nameLen := len([]rune(nameCompact))
	tolerance := math.Max(3, float64(nameLen)*0.3)

	best := NameMatch{Position: -1}
	for size := 1; size <= min(4, len(words)); size++ {
		for i := 0; i+size <= len(words); i++ {
			window := words[i : i+size]
			joined := strings.Join(window, "")

			if math.Abs(float64(len([]rune(joined))-nameLen)) > tolerance {
				continue
			}

			score := Similarity(joined, nameCompact)
			if score > best.Score && score >= threshold {
				best = NameMatch{
					Found:    true,
					Position: strings.Index(textUpper, window[0]),
					Matched:  strings.Join(window, " "),
					Score:    score,
				}
			}
		}
	}

	if best.Found {
		return best
	}
	return NameMatch{Position: -1, Score: best.Score}
}

func compact(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}
