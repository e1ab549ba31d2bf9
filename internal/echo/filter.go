package echo

import "strings"

const (
	containmentRatio   = 0.8
	tokenMatchFraction = 0.8
	tokenMinLen        = 3
	tokenEditBudget    = 2
)

// IsEcho reports whether candidate is likely a re-capture of reference, the
// text the assistant just spoke. Pure function; applies three checks in order
// and short-circuits on the first hit:
//
//  1. exact case-insensitive match
//  2. candidate is a large substring of reference (>80% of its length)
//  3. fuzzy token overlap above 80%
func IsEcho(candidate, reference string) bool {
	cand := strings.ToLower(strings.TrimSpace(candidate))
	ref := strings.ToLower(strings.TrimSpace(reference))
	if cand == "" || ref == "" {
		return false
	}

	if cand == ref {
		return true
	}

	if strings.Contains(ref, cand) {
		if float64(len([]rune(cand))) > containmentRatio*float64(len([]rune(ref))) {
			return true
		}
	}

	candTokens := significantTokens(cand)
	refTokens := significantTokens(ref)
	if len(candTokens) == 0 || len(refTokens) == 0 {
		return false
	}

	matched := 0
	for _, ct := range candTokens {
		if tokenMatchesAny(ct, refTokens) {
			matched++
		}
	}
	return float64(matched)/float64(len(candTokens)) > tokenMatchFraction
}

func significantTokens(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > tokenMinLen {
			out = append(out, f)
		}
	}
	return out
}

func tokenMatchesAny(token string, refTokens []string) bool {
	for _, rt := range refTokens {
		if strings.Contains(rt, token) || strings.Contains(token, rt) {
			return true
		}
		if editDistance(token, rt) <= tokenEditBudget {
			return true
		}
	}
	return false
}

// editDistance computes the Levenshtein distance between a and b with the
// classic two-row dynamic-programming table.
func editDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
