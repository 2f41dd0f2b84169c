// Package fuzzy scores text similarity for the anchoring fallback path.
// It is only consulted when exact context checks fail; the common case
// short-circuits before any edit-distance work.
package fuzzy

import "strings"

// Similarity returns a normalised Levenshtein similarity in [0,1]:
// 1 - editDistance(a,b)/max(len(a),len(b)). Case-insensitive.
// Identical strings score 1.0 without running the DP.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la := strings.ToLower(a)
	lb := strings.ToLower(b)
	if la == lb {
		return 1
	}

	ra := []rune(la)
	rb := []rune(lb)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}

	return 1 - float64(distance(ra, rb))/float64(longest)
}

// distance computes Levenshtein edit distance with a two-row table.
func distance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}

	return prev[len(b)]
}
