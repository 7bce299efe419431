package matcher

import "github.com/agnivade/levenshtein"

// Similarity maps the rune edit distance of a and b onto [0, 1], 1 meaning
// equal.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
