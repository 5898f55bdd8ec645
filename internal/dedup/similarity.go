package dedup

// Similarity returns (longer - levenshtein(a, b)) / longer over runes, in
// [0, 1]. Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longer := max(len(ra), len(rb))
	if longer == 0 {
		return 1
	}
	return float64(longer-levenshtein(ra, rb)) / float64(longer)
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	return levenshtein([]rune(a), []rune(b))
}

// similarityAtLeast is Similarity with a shortcut: when the length gap alone
// rules out reaching threshold, it returns that upper bound without running
// the quadratic distance computation.
func similarityAtLeast(a, b string, threshold float64) float64 {
	ra, rb := []rune(a), []rune(b)
	longer := max(len(ra), len(rb))
	if longer == 0 {
		return 1
	}
	gap := len(ra) - len(rb)
	if gap < 0 {
		gap = -gap
	}
	upper := float64(longer-gap) / float64(longer)
	if upper < threshold {
		return upper
	}
	return float64(longer-levenshtein(ra, rb)) / float64(longer)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) < len(b) {
		a, b = b, a
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
