package symbol_test

import (
	"testing"

	"github.com/sdmlabs/sdm/fingerprint"
	"github.com/sdmlabs/sdm/internal/randindex"
	"github.com/sdmlabs/sdm/symbol"
)

const dimensions = 16384
const k = 16

func freshFingerprint(t *testing.T, r *randindex.Randomizer) fingerprint.Fingerprint {
	t.Helper()
	return fingerprint.New(r.Shuffle(k), dimensions)
}

func TestSelfSimilarityIsOne(t *testing.T) {
	r := randindex.NewSeeded(dimensions, 1)
	s := symbol.New("x", freshFingerprint(t, r), 1)
	source := symbol.New("y", freshFingerprint(t, r), 1)
	s.Superpose(source, 0)

	if got := s.Similarity(s); got != 1.0 {
		t.Fatalf("Similarity(s, s) = %v, want 1.0", got)
	}
	if got, want := s.Overlap(s), s.Density(); got != want {
		t.Fatalf("Overlap(s, s) = %v, want Density() = %v", got, want)
	}
}

func TestSuperposeMonotonic(t *testing.T) {
	r := randindex.NewSeeded(dimensions, 2)
	target := symbol.New("target", freshFingerprint(t, r), 1)
	before := target.Count()

	source := symbol.New("source", freshFingerprint(t, r), 1)
	target.Superpose(source, 0)

	if after := target.Count(); after < before {
		t.Fatalf("count after superpose = %d, want >= %d", after, before)
	}
}

func TestFreshSymbolsAreOrthogonalUntilTaught(t *testing.T) {
	r := randindex.NewSeeded(dimensions, 3)
	a := symbol.New("a", freshFingerprint(t, r), 1)
	b := symbol.New("b", freshFingerprint(t, r), 1)

	// Both all-zero: distance 0, similarity exactly 1.
	if got := a.Similarity(b); got != 1.0 {
		t.Fatalf("two fresh (untaught) symbols: Similarity = %v, want 1.0", got)
	}

	sa := symbol.New("source-a", freshFingerprint(t, r), 1)
	sb := symbol.New("source-b", freshFingerprint(t, r), 1)
	a.Superpose(sa, 0)
	b.Superpose(sb, 0)

	sim := a.Similarity(b)
	expected := 1 - 2*float64(k)/float64(dimensions)
	// allow generous tolerance: low collision probability, not a guarantee.
	if diff := sim - expected; diff < -0.01 || diff > 0.01 {
		t.Fatalf("Similarity after disjoint single superpose = %v, want close to %v", sim, expected)
	}
}

func TestSubtractSuperposeIdempotence(t *testing.T) {
	r := randindex.NewSeeded(dimensions, 4)
	source := symbol.New("source", freshFingerprint(t, r), 1)

	fresh := symbol.New("fresh", freshFingerprint(t, r), 1)
	fresh.Superpose(source, 0)

	roundtrip := symbol.New("roundtrip", fresh.Fingerprint(), 1)
	roundtrip.Superpose(source, 0)
	roundtrip.Subtract(source, 0)
	roundtrip.Superpose(source, 0)

	if got, want := roundtrip.Count(), fresh.Count(); got != want {
		t.Fatalf("superpose;subtract;superpose count = %d, want %d (single superpose)", got, want)
	}
	if got := roundtrip.Similarity(fresh); got != 1.0 {
		t.Fatalf("superpose;subtract;superpose vector differs from single superpose: similarity = %v", got)
	}
}

func TestDitherZeroSetsWholeFingerprint(t *testing.T) {
	r := randindex.NewSeeded(dimensions, 5)
	target := symbol.New("target", freshFingerprint(t, r), 1)

	source := symbol.New("source", freshFingerprint(t, r), 0)
	target.Superpose(source, 0)

	// dither 0 means h = 0, so the "clear" half is empty and the whole
	// fingerprint is treated as the "set" half -- matching source.hpp's
	// h = floor(p*K) rule where p=0 yields h=0.
	for i := 0; i < source.Fingerprint().Len(); i++ {
		bit := source.Fingerprint().Rotated(i, 0)
		if !target.Vector().Bit(bit) {
			t.Fatalf("bit %d should be set by dither=0 superpose (h=0 means entire fingerprint is the set half)", bit)
		}
	}
}

func TestRefcountIsAdvisoryOnly(t *testing.T) {
	r := randindex.NewSeeded(dimensions, 6)
	s := symbol.New("s", freshFingerprint(t, r), 1)
	if s.Refcount() != 0 {
		t.Fatalf("new symbol refcount = %d, want 0", s.Refcount())
	}
	s.BumpRefcount()
	s.BumpRefcount()
	if s.Refcount() != 2 {
		t.Fatalf("refcount after two bumps = %d, want 2", s.Refcount())
	}
}
