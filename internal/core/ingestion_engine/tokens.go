package ingestion_engine

import "strings"

// EstimateTokens is a cheap token estimator (~4 chars ≈ 1 token).
// Deterministic, monotonic in length, and biased upward so that sizing
// decisions err on the side of smaller chunks.
func EstimateTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// TailWords returns the trailing words of s whose estimated token sum
// reaches approximately tokens. This is the overlap seed for the next
// chunk; it is a heuristic word-boundary split, not an exact tokenizer
// boundary, and is kept approximate on purpose.
func TailWords(s string, tokens int) string {
	if tokens <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	sum := 0
	i := len(words)
	for i > 0 && sum < tokens {
		i--
		sum += EstimateTokens(words[i])
	}
	return strings.Join(words[i:], " ")
}
