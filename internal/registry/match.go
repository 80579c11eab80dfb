package registry

import "strings"

// similarity scores a candidate token against the input in [0,1]. The base
// score is edit distance normalized by the longer length; candidates that
// start with the input are lifted into the upper half of the range so a prefix
// match always outranks a non-prefix match with the same edit distance.
func similarity(input, candidate string) float64 {
	input = strings.ToLower(input)
	candidate = strings.ToLower(candidate)
	if input == candidate {
		return 1
	}
	maxLen := len(input)
	if len(candidate) > maxLen {
		maxLen = len(candidate)
	}
	if maxLen == 0 {
		return 0
	}
	base := 1 - float64(levenshtein(input, candidate))/float64(maxLen)
	if base < 0 {
		base = 0
	}
	if strings.HasPrefix(candidate, input) {
		return 0.5 + base/2
	}
	return base
}

// levenshtein returns the edit distance between two strings using two-row DP.
func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
			} else {
				curr[j] = 1 + min3(prev[j], curr[j-1], prev[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[lb]
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
