// Package fingerprint implements the immutable sparse elemental index list
// that identifies a symbol in high-dimensional binary space. A Fingerprint
// is built once, from a PRNG shuffle, and never mutated afterward; rotated
// (shifted) access used for role binding is computed on demand, never
// stored, matching the original implementation's lazily-rotated basis.
package fingerprint

// Fingerprint is a read-only sequence of K distinct indices in [0, D).
type Fingerprint struct {
	indices    []int
	dimensions int
}

// New builds a Fingerprint from a shuffle result. indices must already be
// K distinct values in [0, dimensions); New does not re-validate this, the
// caller (typically a randindex.Randomizer) is trusted to provide it.
func New(indices []int, dimensions int) Fingerprint {
	cp := make([]int, len(indices))
	copy(cp, indices)
	return Fingerprint{indices: cp, dimensions: dimensions}
}

// Len returns K, the number of indices in the fingerprint.
func (f Fingerprint) Len() int {
	return len(f.indices)
}

// Dimensions returns D, the range each index falls within.
func (f Fingerprint) Dimensions() int {
	return f.dimensions
}

// At returns the i-th raw (unrotated) index.
func (f Fingerprint) At(i int) int {
	return f.indices[i]
}

// Rotated returns the i-th index shifted by r, reduced modulo D. This is
// computed on demand and never cached: shift is supplied per superpose/
// subtract call, not stored on the fingerprint itself.
func (f Fingerprint) Rotated(i, r int) int {
	return rotate(f.indices[i], r, f.dimensions)
}

// Indices returns the raw (unrotated) index list. The returned slice is a
// copy; mutating it does not affect the fingerprint.
func (f Fingerprint) Indices() []int {
	cp := make([]int, len(f.indices))
	copy(cp, f.indices)
	return cp
}

// RotatedIndices returns every index rotated by r, reduced modulo D.
func (f Fingerprint) RotatedIndices(r int) []int {
	out := make([]int, len(f.indices))
	for i, idx := range f.indices {
		out[i] = rotate(idx, r, f.dimensions)
	}
	return out
}

func rotate(idx, shift, dimensions int) int {
	r := (idx + shift) % dimensions
	if r < 0 {
		r += dimensions
	}
	return r
}
