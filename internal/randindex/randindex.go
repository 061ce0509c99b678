// Package randindex implements the PRNG-backed index shuffle that produces
// fresh elemental fingerprints: a sequence of K distinct indices drawn
// uniformly from [0, D). No cryptographic quality is required; speed and a
// good distribution are what matter here, matching the fast, non-secure
// randomizer the original implementation ("fast_random") used to seed
// symbol fingerprints.
package randindex

import (
	"math/rand"
	"sync"
)

// Randomizer yields shuffled index sequences for a fixed dimensionality D.
// It is safe for concurrent use; each call to Shuffle is independent.
type Randomizer struct {
	dimensions int

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Randomizer over [0, dimensions) seeded from a
// process-global entropy source.
func New(dimensions int) *Randomizer {
	return NewSeeded(dimensions, rand.Int63())
}

// NewSeeded returns a Randomizer deterministic under the given seed, for
// reproducible tests.
func NewSeeded(dimensions int, seed int64) *Randomizer {
	return &Randomizer{
		dimensions: dimensions,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Shuffle returns k distinct indices sampled uniformly from [0, dimensions)
// using a partial Fisher-Yates shuffle: O(k) time and O(dimensions) space
// is avoided by only shuffling the first k positions of a conceptual
// identity permutation, realized lazily with a sparse swap map.
func (r *Randomizer) Shuffle(k int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.dimensions
	swapped := make(map[int]int, k)
	out := make([]int, k)

	for i := 0; i < k; i++ {
		j := i + r.rng.Intn(n-i)

		vi, ok := swapped[i]
		if !ok {
			vi = i
		}
		vj, ok := swapped[j]
		if !ok {
			vj = j
		}

		swapped[i] = vj
		swapped[j] = vi
		out[i] = vj
	}
	return out
}

// Dimensions returns D, the range the randomizer draws from.
func (r *Randomizer) Dimensions() int {
	return r.dimensions
}
