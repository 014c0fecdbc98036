package search

// fuzzyTokenMatch checks if two tokens are similar within the edit distance threshold
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	r1, r2 := []rune(token1), []rune(token2)

	// Only apply fuzzy matching to longer tokens to avoid false positives
	if len(r1) < fuzzyMinLength || len(r2) < fuzzyMinLength {
		return false
	}

	// Quick length check - if lengths differ by more than threshold, can't match
	lenDiff := len(r1) - len(r2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}

	return levenshteinDistance(r1, r2) <= threshold
}

// levenshteinDistance calculates the edit distance between two rune slices
func levenshteinDistance(r1, r2 []rune) int {
	m, n := len(r1), len(r2)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	// Use two rows instead of full matrix for space efficiency
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}
