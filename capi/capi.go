// Package capi is the Go-level mirror of the C-ABI function/status
// contract external consumers are expected to bind against: a handle-based
// API returning the bit-exact status integers of store.Status, rather than
// Go's idiomatic (T, error) pairs. It is a thin adapter over package
// store -- all real behavior lives there; this package only translates
// calling conventions.
package capi

import (
	"errors"
	"sync"

	"github.com/sdmlabs/sdm/bitvector"
	"github.com/sdmlabs/sdm/store"
)

// Handle identifies one open store for the lifetime of the process.
type Handle uint64

var (
	mu      sync.Mutex
	handles = make(map[Handle]*store.Store)
	nextID  Handle = 1
)

// Open creates or opens the backing file at path and returns a Handle for
// subsequent calls. If maxBytes is 0, growth is unbounded.
func Open(path string, initialBytes, maxBytes int64) (Handle, store.Status) {
	s, err := store.Open(store.Options{
		Path:        path,
		InitialSize: initialBytes,
		MaxSize:     maxBytes,
	})
	if err != nil {
		return 0, statusOf(err)
	}

	mu.Lock()
	defer mu.Unlock()
	h := nextID
	nextID++
	handles[h] = s
	return h, store.StatusOK
}

// Close releases the store associated with handle.
func Close(handle Handle) store.Status {
	mu.Lock()
	s, ok := handles[handle]
	delete(handles, handle)
	mu.Unlock()
	if !ok {
		return store.StatusRuntime
	}
	if err := s.Close(); err != nil {
		return statusOf(err)
	}
	return store.StatusOK
}

func resolve(handle Handle) (*store.Store, store.Status) {
	mu.Lock()
	defer mu.Unlock()
	s, ok := handles[handle]
	if !ok {
		return nil, store.StatusRuntime
	}
	return s, store.StatusOK
}

// NamedVector ensures a symbol exists, returning Created or Existed.
func NamedVector(handle Handle, space, name string, dither float64) store.Status {
	s, status := resolve(handle)
	if store.IsError(status) {
		return status
	}
	result, err := s.NamedVector(space, name, dither)
	if err != nil {
		return statusOf(err)
	}
	return result
}

// Superpose projects the source symbol onto the target, rotated by shift.
func Superpose(handle Handle, tSpace, tName, sSpace, sName string, shift int) store.Status {
	s, status := resolve(handle)
	if store.IsError(status) {
		return status
	}
	result, err := s.Superpose(tSpace, tName, sSpace, sName, shift, false)
	if err != nil {
		return statusOf(err)
	}
	return result
}

// Subtract removes the source symbol's contribution from the target.
func Subtract(handle Handle, tSpace, tName, sSpace, sName string, shift int) store.Status {
	s, status := resolve(handle)
	if store.IsError(status) {
		return status
	}
	result, err := s.Subtract(tSpace, tName, sSpace, sName, shift)
	if err != nil {
		return statusOf(err)
	}
	return result
}

// LoadVector copies a symbol's D/W-word semantic vector into out, which
// must already be sized for the store's dimensions.
func LoadVector(handle Handle, space, name string, out bitvector.Vector) store.Status {
	s, status := resolve(handle)
	if store.IsError(status) {
		return status
	}
	_, st, err := s.Density(space, name) // cheapest existence probe with no side effects
	if err != nil {
		return statusOf(err)
	}
	if store.IsError(st) {
		return st
	}
	sp, ok := s.GetSpace(space)
	if !ok {
		return store.StatusMissingSpace
	}
	sym, ok := sp.GetByName(name, false)
	if !ok {
		return store.StatusMissingSymbol
	}
	copy(out, sym.Vector())
	return store.StatusOK
}

// LoadElemental copies a symbol's K-word (raw, unrotated) fingerprint
// indices into out.
func LoadElemental(handle Handle, space, name string, out []int) store.Status {
	s, status := resolve(handle)
	if store.IsError(status) {
		return status
	}
	sp, ok := s.GetSpace(space)
	if !ok {
		return store.StatusMissingSpace
	}
	sym, ok := sp.GetByName(name, false)
	if !ok {
		return store.StatusMissingSymbol
	}
	fp := sym.Fingerprint()
	for i := 0; i < fp.Len() && i < len(out); i++ {
		out[i] = fp.At(i)
	}
	return store.StatusOK
}

// Metric selects which measure Topology sorts and filters by. It mirrors
// store.Metric exactly; the alias exists so callers binding against this
// package's exported names never have to import package store directly.
type Metric = store.Metric

const (
	MetricSimilarity = store.MetricSimilarity
	MetricOverlap    = store.MetricOverlap
)

// Topology mirrors the C-ABI topology call: it measures every symbol in
// targetSpace against a raw probe vector, filtered by the density and
// metric bounds (dlb, dub, mlb, mub), and returns the sorted neighbourhood
// truncated to cardinalityUpperBound. Both Similarity and Overlap ranking
// are dispatched straight through to store.TopologyVector.
func Topology(handle Handle, targetSpace string, probe bitvector.Vector, cardinalityUpperBound int, metric Metric, densityLowerBound, densityUpperBound, metricLowerBound, metricUpperBound float64) ([]store.Neighbour, store.Status) {
	s, status := resolve(handle)
	if store.IsError(status) {
		return nil, status
	}
	result, st, err := s.TopologyVector(targetSpace, probe, metric, densityLowerBound, densityUpperBound, metricLowerBound, metricUpperBound, cardinalityUpperBound)
	if err != nil {
		return nil, statusOf(err)
	}
	return result, st
}

// Geometry returns up to cardinality points describing every symbol in
// space.
func Geometry(handle Handle, space string, cardinality int) ([]store.Point, store.Status) {
	s, status := resolve(handle)
	if store.IsError(status) {
		return nil, status
	}
	points, st, err := s.Geometry(space)
	if err != nil {
		return nil, statusOf(err)
	}
	if cardinality > 0 && len(points) > cardinality {
		points = points[:cardinality]
	}
	return points, st
}

// Cardinality returns the number of symbols in space.
func Cardinality(handle Handle, space string) (int, store.Status) {
	s, status := resolve(handle)
	if store.IsError(status) {
		return 0, status
	}
	count, ok := s.SpaceCardinality(space)
	if !ok {
		return 0, store.StatusMissingSpace
	}
	return count, store.StatusOK
}

func statusOf(err error) store.Status {
	var sdmErr *store.Error
	if errors.As(err, &sdmErr) {
		return sdmErr.Status
	}
	return store.StatusRuntime
}
