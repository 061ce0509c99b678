// Package space implements the symbol table belonging to one named region
// of the store: a multi-index container of symbols offering lookup by
// name, by name prefix, and by stable position. The original implementation
// backs this with a Boost.Interprocess multi_index_container living inside
// a memory-mapped segment, whose pointers and iterators are invalidated by
// any insert. Re-architected per the redesign notes: symbols live in a
// single segregated append-only array addressed by integer position, and
// the hash and ordered indexes refer to symbols only by that position, so
// handles are stable across inserts and never need const-casting tricks to
// mutate in place.
package space

import (
	"errors"
	"sort"
	"sync"

	"github.com/sdmlabs/sdm/fingerprint"
	"github.com/sdmlabs/sdm/symbol"
)

// ErrOutOfMemory is returned by Insert when the space has a bounded
// capacity and is full. A zero-valued capacity means unbounded, the
// default for spaces not backed by a size-constrained arena.
var ErrOutOfMemory = errors.New("space: out of memory")

// Space holds all symbols of one logical namespace. The positional array
// is append-only and its indices are stable for the lifetime of the
// space: nothing is ever relocated or removed from it, only appended to,
// so a handle obtained from At, GetByName, or PrefixSearch remains valid
// across subsequent inserts -- unlike the source's intrusive container.
type Space struct {
	name       string
	dimensions int
	maxEntries int // 0 = unbounded

	mu      sync.RWMutex
	symbols []*symbol.Symbol
	byName  map[string]int // name -> position, the hash index
	ordered []int          // positions, kept sorted by symbols[pos].Name(), the ordered-name index
}

// New returns an empty Space named name, whose symbols have dimension
// dimensions. maxEntries bounds the number of symbols the space will
// accept before Insert reports ErrOutOfMemory; 0 means unbounded.
func New(name string, dimensions, maxEntries int) *Space {
	return &Space{
		name:       name,
		dimensions: dimensions,
		maxEntries: maxEntries,
		byName:     make(map[string]int),
	}
}

// Name returns the space's name.
func (s *Space) Name() string {
	return s.name
}

// Dimensions returns D, the width shared by every symbol's semantic
// vector in this space.
func (s *Space) Dimensions() int {
	return s.dimensions
}

// SetMaxEntries updates the space's capacity bound, e.g. after the owning
// arena has grown and can admit more symbols. A value <= 0 means
// unbounded.
func (s *Space) SetMaxEntries(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxEntries = n
}

// Entries returns the number of symbols currently held.
func (s *Space) Entries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.symbols)
}

// Insert constructs a new symbol from name and fingerprintIndices (a fresh
// PRNG shuffle result) and adds it to all three indexes. On a name
// collision the existing record is returned unchanged with created=false;
// this is not an error, matching the source's "EXISTED" status rather than
// IndexError for the Insert path itself. ErrOutOfMemory is returned, and
// the space left unchanged, if the space has a bounded capacity that is
// already full.
func (s *Space) Insert(name string, fingerprintIndices []int, dither float64) (sym *symbol.Symbol, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos, ok := s.byName[name]; ok {
		return s.symbols[pos], false, nil
	}
	if s.maxEntries > 0 && len(s.symbols) >= s.maxEntries {
		return nil, false, ErrOutOfMemory
	}

	fp := fingerprint.New(fingerprintIndices, s.dimensions)
	sym = symbol.New(name, fp, dither)

	pos := len(s.symbols)
	s.symbols = append(s.symbols, sym)
	s.byName[name] = pos
	s.insertOrdered(pos, name)

	return sym, true, nil
}

// insertOrdered inserts pos into the ordered-by-name index, keeping it
// sorted by name; caller holds the write lock.
func (s *Space) insertOrdered(pos int, name string) {
	i := sort.Search(len(s.ordered), func(i int) bool {
		return s.symbols[s.ordered[i]].Name() >= name
	})
	s.ordered = append(s.ordered, 0)
	copy(s.ordered[i+1:], s.ordered[i:])
	s.ordered[i] = pos
}

// GetByName finds a symbol by exact name. If bumpRefcount is true, the
// found symbol's refcount is incremented as a side effect -- this goes
// through the symbol's own mutator, not through the indexes, since
// refcount plays no part in the hash or ordered key.
func (s *Space) GetByName(name string, bumpRefcount bool) (*symbol.Symbol, bool) {
	s.mu.RLock()
	pos, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	sym := s.symbols[pos]
	if bumpRefcount {
		sym.BumpRefcount()
	}
	return sym, true
}

// At returns the i-th inserted symbol, addressed by stable position. ok is
// false if i is out of range.
func (s *Space) At(i int) (sym *symbol.Symbol, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.symbols) {
		return nil, false
	}
	return s.symbols[i], true
}

// PrefixSearch returns every symbol whose name begins with prefix, in
// ascending lexicographic order. The empty prefix matches every symbol.
// This implements the partial-string comparator's equal_range as a pair
// of binary searches over the ordered-name index -- lower_bound(prefix),
// then the first position from there whose name no longer starts with
// prefix -- rather than a heterogeneous comparator.
func (s *Space) PrefixSearch(prefix string) []*symbol.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.Search(len(s.ordered), func(i int) bool {
		return s.symbols[s.ordered[i]].Name() >= prefix
	})
	hi := lo + sort.Search(len(s.ordered)-lo, func(i int) bool {
		return !hasPrefix(s.symbols[s.ordered[lo+i]].Name(), prefix)
	})
	if hi < lo {
		hi = lo
	}

	out := make([]*symbol.Symbol, 0, hi-lo)
	for _, pos := range s.ordered[lo:hi] {
		out = append(out, s.symbols[pos])
	}
	return out
}

func hasPrefix(name, prefix string) bool {
	if len(name) < len(prefix) {
		return false
	}
	return name[:len(prefix)] == prefix
}

// Each invokes fn once per symbol in positional order. fn must not call
// back into the space; Each holds the read lock for its duration.
func (s *Space) Each(fn func(position int, sym *symbol.Symbol)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, sym := range s.symbols {
		fn(i, sym)
	}
}
