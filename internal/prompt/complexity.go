package prompt

import "strings"

// EstimateComplexity buckets content by line count, word count and number of
// code blocks. simple: <10 lines and <100 words; moderate: <50 lines and
// <500 words; anything else is complex. Each code block beyond the first
// bumps the estimate one level.
func EstimateComplexity(content string, codeBlocks int) Complexity {
	lines := strings.Count(strings.TrimSpace(content), "\n") + 1
	words := len(strings.Fields(content))

	level := 2
	switch {
	case lines < 10 && words < 100:
		level = 0
	case lines < 50 && words < 500:
		level = 1
	}
	if codeBlocks > 1 {
		level += codeBlocks - 1
	}

	switch {
	case level <= 0:
		return ComplexitySimple
	case level == 1:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}
