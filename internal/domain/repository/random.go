package repository

import "math/rand"

// RandomSource supplies the uniform draws used for gradual-rollout routing.
// Injectable so routing is deterministic under test.
type RandomSource interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
}

// SeededRandom returns a RandomSource backed by math/rand with the given seed.
func SeededRandom(seed int64) RandomSource {
	return rand.New(rand.NewSource(seed))
}
