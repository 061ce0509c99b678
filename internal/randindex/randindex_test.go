package randindex_test

import (
	"testing"

	"github.com/sdmlabs/sdm/internal/randindex"
)

func TestShuffleDistinctAndInRange(t *testing.T) {
	r := randindex.NewSeeded(16384, 42)
	const k = 16

	seen := make(map[int]bool, k)
	for _, idx := range r.Shuffle(k) {
		if idx < 0 || idx >= 16384 {
			t.Fatalf("index %d out of range [0, 16384)", idx)
		}
		if seen[idx] {
			t.Fatalf("duplicate index %d in shuffle result", idx)
		}
		seen[idx] = true
	}
	if len(seen) != k {
		t.Fatalf("got %d distinct indices, want %d", len(seen), k)
	}
}

func TestShuffleDeterministicUnderSeed(t *testing.T) {
	a := randindex.NewSeeded(16384, 7).Shuffle(16)
	b := randindex.NewSeeded(16384, 7).Shuffle(16)

	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different shuffle at %d: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestShuffleIndependentAcrossCalls(t *testing.T) {
	r := randindex.NewSeeded(16384, 1)
	first := r.Shuffle(16)
	second := r.Shuffle(16)

	identical := true
	for i := range first {
		if first[i] != second[i] {
			identical = false
			break
		}
	}
	if identical {
		t.Fatalf("two consecutive shuffles produced identical sequences, expected fresh draws")
	}
}

func TestDimensions(t *testing.T) {
	r := randindex.NewSeeded(1024, 1)
	if got := r.Dimensions(); got != 1024 {
		t.Fatalf("Dimensions() = %d, want 1024", got)
	}
}
