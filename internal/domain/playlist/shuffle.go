package playlist

import "math/rand/v2"

// Shuffle permutes s in place with Fisher-Yates. A nil r uses the
// package-level random source.
func Shuffle[T any](s []T, r *rand.Rand) {
	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}
	for i := len(s) - 1; i > 0; i-- {
		j := intN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
