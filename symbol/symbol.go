// Package symbol implements the named record at the heart of the memory:
// a fingerprint (immutable sparse identity) paired with a semantic vector
// (mutable dense accumulator), plus usage metadata. Symbols delegate all
// bit-vector measurement to bitvector.Vector and implement the two learning
// primitives, superpose and subtract, exactly as the original symbol type
// did: the dither probability controls how much of the source fingerprint
// is actually contributed, split into a "clear" half and a "set" half.
package symbol

import (
	"github.com/sdmlabs/sdm/bitvector"
	"github.com/sdmlabs/sdm/fingerprint"
)

// Symbol is a named (fingerprint, semantic vector) pair plus refcount and
// dither metadata. Name is immutable once constructed; refcount and dither
// are the only fields a caller may mutate directly, never the fingerprint.
type Symbol struct {
	name        string
	fingerprint fingerprint.Fingerprint
	vector      bitvector.Vector
	refcount    uint64
	dither      float64
}

// New constructs a Symbol with a zero-initialized semantic vector, the
// given fingerprint, and dither probability p (clamped to [0,1]).
func New(name string, fp fingerprint.Fingerprint, p float64) *Symbol {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &Symbol{
		name:        name,
		fingerprint: fp,
		vector:      bitvector.New(fp.Dimensions()),
		dither:      p,
	}
}

// Name returns the symbol's name. Read-only: the name is fixed at
// construction and determines the symbol's identity in its owning space.
func (s *Symbol) Name() string {
	return s.name
}

// Fingerprint returns the symbol's immutable elemental fingerprint.
func (s *Symbol) Fingerprint() fingerprint.Fingerprint {
	return s.fingerprint
}

// Vector returns the symbol's mutable semantic vector, for callers that
// need direct bitvector access (e.g. load_vector in the capi surface).
func (s *Symbol) Vector() bitvector.Vector {
	return s.vector
}

// Refcount returns the current advisory usage count. Refcount has no
// semantic role in learning; it is bumped only by callers that opt in on
// lookup.
func (s *Symbol) Refcount() uint64 {
	return s.refcount
}

// BumpRefcount atomically-in-effect increments the usage count. Space
// callers invoke this through an index-aware mutator so the hash/ordered
// indexes, which key on name only, are untouched.
func (s *Symbol) BumpRefcount() {
	s.refcount++
}

// Dither returns the symbol's dither probability p.
func (s *Symbol) Dither() float64 {
	return s.dither
}

// SetDither updates the dither probability, clamped to [0,1].
func (s *Symbol) SetDither(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	s.dither = p
}

// Count returns the population count of the semantic vector.
func (s *Symbol) Count() int {
	return s.vector.Count()
}

// Density returns the semantic vector's density, popcount/D.
func (s *Symbol) Density() float64 {
	return s.vector.Density(s.fingerprint.Dimensions())
}

// Distance returns the Hamming distance between s and v's semantic
// vectors.
func (s *Symbol) Distance(v *Symbol) int {
	return s.vector.Distance(v.vector)
}

// Inner returns the overlap (common set bits) between s and v's semantic
// vectors.
func (s *Symbol) Inner(v *Symbol) int {
	return s.vector.Inner(v.vector)
}

// Countsum returns the popcount of the union of s and v's semantic
// vectors.
func (s *Symbol) Countsum(v *Symbol) int {
	return s.vector.Countsum(v.vector)
}

// Similarity returns 1 - distance/D between s and v.
func (s *Symbol) Similarity(v *Symbol) float64 {
	return s.vector.Similarity(v.vector, s.fingerprint.Dimensions())
}

// Overlap returns inner/D between s and v.
func (s *Symbol) Overlap(v *Symbol) float64 {
	return s.vector.Overlap(v.vector, s.fingerprint.Dimensions())
}

// Ones sets every bit of the semantic vector.
func (s *Symbol) Ones() {
	s.vector.Ones()
}

// Zeros clears every bit of the semantic vector.
func (s *Symbol) Zeros() {
	s.vector.Zeros()
}

// Superpose projects source's fingerprint onto s's semantic vector,
// rotated by shift and reduced modulo D. s is the target, source the
// contributor; this is always called on the target. Let h = floor(p*K)
// where p is source's dither. If p = 1, every rotated index is set (OR).
// If p < 1, the first h rotated indices of source's fingerprint are
// cleared (AND NOT) and the remaining K-h are set (OR) -- the "white
// noise" / partial-fingerprint contribution.
func (s *Symbol) Superpose(source *Symbol, shift int) {
	fp := source.fingerprint
	k := fp.Len()
	indices := make([]int, k)
	for i := 0; i < k; i++ {
		indices[i] = fp.Rotated(i, shift)
	}

	if source.dither >= 1 {
		s.vector.SetBits(indices)
		return
	}

	h := int(source.dither * float64(k))
	s.vector.ClearThenSet(indices, h)
}

// Subtract removes source's contribution from s's semantic vector: every
// rotated fingerprint index of source is cleared (AND NOT) in s.
func (s *Symbol) Subtract(source *Symbol, shift int) {
	fp := source.fingerprint
	k := fp.Len()
	indices := make([]int, k)
	for i := 0; i < k; i++ {
		indices[i] = fp.Rotated(i, shift)
	}
	for _, r := range indices {
		s.vector.ClearBit(r)
	}
}

// SetBits ORs every raw index into s's semantic vector directly, bypassing
// any fingerprint or rotation.
func (s *Symbol) SetBits(indices []int) {
	s.vector.SetBits(indices)
}
