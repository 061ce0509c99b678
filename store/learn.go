package store

import (
	"errors"
	"fmt"

	"github.com/sdmlabs/sdm/space"
	"github.com/sdmlabs/sdm/symbol"
)

// freshFingerprint draws a new K-of-D index shuffle for a symbol being
// inserted for the first time.
func (s *Store) freshFingerprint() []int {
	return s.rng.Shuffle(s.opts.FingerprintSize)
}

// NamedVector ensures a symbol exists in space, creating both the space
// and the symbol on demand from a freshly shuffled fingerprint. This is
// the write path's "convenience semantics": real-time training streams
// need not pre-declare vocabulary.
func (s *Store) NamedVector(spaceName, name string, dither float64) (Status, error) {
	if s.ReadOnly() {
		return StatusRuntime, newError("named_vector", StatusRuntime, fmt.Errorf("store is read-only"))
	}

	sp, _, err := s.EnsureSpace(spaceName)
	if err != nil {
		return StatusRuntime, err
	}

	_, created, err := s.insertOrGrow(sp, name, s.freshFingerprint(), dither, "named_vector")
	if err != nil {
		return s.mapInsertError(err)
	}
	if created {
		return StatusCreated, nil
	}
	return StatusExisted, nil
}

// Superpose projects the source symbol's fingerprint, rotated by shift,
// onto the target symbol's semantic vector, creating either side that
// doesn't yet exist. The source handle is always resolved (and inserted,
// if missing) before the target handle: any insertion into a space may
// invalidate handles obtained beforehand, so acquiring target last keeps
// this call correct even against an index implementation that does not
// guarantee positional stability.
func (s *Store) Superpose(targetSpace, targetName, sourceSpace, sourceName string, shift int, bumpRefcount bool) (Status, error) {
	if s.ReadOnly() {
		return StatusRuntime, newError("superpose", StatusRuntime, fmt.Errorf("store is read-only"))
	}

	tsp, tStatus, err := s.EnsureSpace(targetSpace)
	if err != nil {
		return StatusRuntime, err
	}
	ssp, sStatus, err := s.EnsureSpace(sourceSpace)
	if err != nil {
		return StatusRuntime, err
	}
	anyCreated := tStatus == StatusCreated || sStatus == StatusCreated

	source, ok := ssp.GetByName(sourceName, bumpRefcount)
	if !ok {
		var err error
		source, _, err = s.insertOrGrow(ssp, sourceName, s.freshFingerprint(), 1, "superpose")
		if err != nil {
			return s.mapInsertError(err)
		}
		anyCreated = true
		if bumpRefcount {
			source.BumpRefcount()
		}
	}

	// Target is acquired only now, after every insertion above has
	// completed -- see the ordering note on this method.
	target, ok := tsp.GetByName(targetName, false)
	if !ok {
		var err error
		target, _, err = s.insertOrGrow(tsp, targetName, s.freshFingerprint(), 1, "superpose")
		if err != nil {
			return s.mapInsertError(err)
		}
		anyCreated = true
	}

	target.Superpose(source, shift)

	if anyCreated {
		return StatusCreated, nil
	}
	return StatusExisted, nil
}

// Subtract removes the source symbol's (rotated) fingerprint contribution
// from the target's semantic vector. Unlike Superpose, both sides must
// already exist -- subtract is a read-then-mutate path, not a convenience
// one, so a missing space or symbol is reported rather than created.
func (s *Store) Subtract(targetSpace, targetName, sourceSpace, sourceName string, shift int) (Status, error) {
	if s.ReadOnly() {
		return StatusRuntime, newError("subtract", StatusRuntime, fmt.Errorf("store is read-only"))
	}

	tsp, ok := s.GetSpace(targetSpace)
	if !ok {
		return StatusMissingSpace, newError("subtract", StatusMissingSpace, nil)
	}
	ssp, ok := s.GetSpace(sourceSpace)
	if !ok {
		return StatusMissingSpace, newError("subtract", StatusMissingSpace, nil)
	}
	target, ok := tsp.GetByName(targetName, false)
	if !ok {
		return StatusMissingSymbol, newError("subtract", StatusMissingSymbol, nil)
	}
	source, ok := ssp.GetByName(sourceName, false)
	if !ok {
		return StatusMissingSymbol, newError("subtract", StatusMissingSymbol, nil)
	}

	target.Subtract(source, shift)
	return StatusOK, nil
}

// BatchSuperpose is reserved and intentionally left unimplemented, exactly
// as in the system this was modeled on. Callers that need the effect
// should use SuperposeEach, a single-pass loop over Superpose.
func (s *Store) BatchSuperpose(targetSpace, targetName, sourceSpace string, names []string, shifts []int, bumpRefcount bool) (Status, error) {
	return StatusUnimplemented, newError("batch_superpose", StatusUnimplemented, nil)
}

// SuperposeEach is the documented single-pass alternative to
// BatchSuperpose: it calls Superpose once per (name, shift) pair in order,
// stopping at the first error. Status is Created if any call created a
// space or symbol, else Existed.
func (s *Store) SuperposeEach(targetSpace, targetName, sourceSpace string, names []string, shifts []int, bumpRefcount bool) (Status, error) {
	if len(names) != len(shifts) {
		return StatusRuntime, newError("superpose_each", StatusRuntime, fmt.Errorf("names and shifts must be equal length"))
	}

	anyCreated := false
	for i, name := range names {
		status, err := s.Superpose(targetSpace, targetName, sourceSpace, name, shifts[i], bumpRefcount)
		if err != nil {
			return status, err
		}
		if status == StatusCreated {
			anyCreated = true
		}
	}
	if anyCreated {
		return StatusCreated, nil
	}
	return StatusExisted, nil
}

// insertOrGrow attempts sp.Insert; on ErrOutOfMemory it first attempts to
// grow the arena and, if that succeeds, retries the insert once before
// surfacing the failure -- per the error-handling policy that allocation
// failure inside a learning call first attempts a grow when can_grow, and
// only reports OutOfMemory if growth also fails.
func (s *Store) insertOrGrow(sp *space.Space, name string, fingerprintIndices []int, dither float64, op string) (*symbol.Symbol, bool, error) {
	sym, created, err := sp.Insert(name, fingerprintIndices, dither)
	if err == nil {
		return sym, created, nil
	}
	if !errors.Is(err, space.ErrOutOfMemory) {
		return nil, false, newError(op, StatusRuntime, err)
	}

	if grew, growErr := s.Grow(s.growIncrement()); growErr == nil && grew {
		if sym, created, err = sp.Insert(name, fingerprintIndices, dither); err == nil {
			return sym, created, nil
		}
	}
	return nil, false, newError(op, StatusOutOfMemory, err)
}

// mapInsertError extracts the Status an insertOrGrow failure already
// carries.
func (s *Store) mapInsertError(err error) (Status, error) {
	var sdmErr *Error
	if errors.As(err, &sdmErr) {
		return sdmErr.Status, err
	}
	return StatusRuntime, err
}
