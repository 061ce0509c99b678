// Package store implements the manifold: the root object owning the single
// memory-mapped backing file, the cache of resolved spaces (loaded eagerly
// at Open, extended as new spaces are ensured), and the one PRNG instance
// new symbols draw fingerprints from.
// Learning (learn.go) and query (query.go) operations are defined as
// methods on Store; this file covers the lifecycle -- open, close, grow,
// compact -- and the space cache itself.
package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sdmlabs/sdm/internal/randindex"
	"github.com/sdmlabs/sdm/space"
)

const (
	// DefaultDimensions is D, the semantic vector width in bits.
	DefaultDimensions = 16384
	// DefaultFingerprintSize is K, the elemental fingerprint size.
	DefaultFingerprintSize = 16
	// DefaultInitialSize is the backing file size used when none is given.
	DefaultInitialSize = 4 << 20 // 4 MiB
)

// Options configures Open.
type Options struct {
	Path string // backing file path

	// InitialSize is the backing file size in bytes for a newly created
	// file (0 selects DefaultInitialSize). Against an already-existing
	// file, 0 instead opens the arena read-only; any other value opens it
	// read-write, using the file's actual existing size.
	InitialSize int64
	MaxSize     int64 // bytes; 0 means unbounded growth

	CompactOnClose bool // shrink the file to fit live data on Close

	Dimensions      int // D; 0 selects DefaultDimensions
	FingerprintSize int // K; 0 selects DefaultFingerprintSize

	Seed   int64 // 0 selects process entropy; set for reproducible tests
	seeded bool
}

// WithSeed returns a copy of opts with a fixed PRNG seed, for deterministic
// tests.
func (o Options) WithSeed(seed int64) Options {
	o.Seed = seed
	o.seeded = true
	return o
}

func (o Options) normalized() Options {
	if o.Dimensions == 0 {
		o.Dimensions = DefaultDimensions
	}
	if o.FingerprintSize == 0 {
		o.FingerprintSize = DefaultFingerprintSize
	}
	// InitialSize is deliberately left as the caller gave it, including
	// zero: openArena treats a zero request against an already-existing
	// file as a request to open read-only, per spec. Only a brand-new
	// file gets DefaultInitialSize, and that substitution happens inside
	// openArena itself, where file existence is known.
	return o
}

// Store is the root object: one backing file, one space cache, one PRNG.
type Store struct {
	opts Options

	mu     sync.Mutex
	arena  *arena
	spaces map[string]*space.Space // name -> cached resolved space
	rng    *randindex.Randomizer
	closed bool
}

// Open opens or creates the backing file at opts.Path and pre-resolves and
// caches every space already stored in it -- lazy resolution was observed
// to misbehave in the system this was modeled on, so Open always loads the
// full catalog eagerly rather than populating the cache on first use.
func Open(opts Options) (*Store, error) {
	opts = opts.normalized()

	a, existed, err := openArena(opts.Path, opts.InitialSize)
	if err != nil {
		return nil, newError("open", StatusRuntime, err)
	}

	spaces := make(map[string]*space.Space)
	if existed {
		if !a.valid() {
			a.close()
			return nil, newError("open", StatusRuntime, fmt.Errorf("backing file is not a valid sdm arena"))
		}
		decoded, err := decodeSpaces(a.mm, maxEntriesPerSpace(opts, a.size))
		if err != nil {
			a.close()
			return nil, newError("open", StatusRuntime, err)
		}
		spaces = decoded
	}

	var rng *randindex.Randomizer
	if opts.seeded || opts.Seed != 0 {
		rng = randindex.NewSeeded(opts.Dimensions, opts.Seed)
	} else {
		rng = randindex.New(opts.Dimensions)
	}

	return &Store{
		opts:   opts,
		arena:  a,
		spaces: spaces,
		rng:    rng,
	}, nil
}

// maxEntriesPerSpace bounds a space's symbol count by the byte budget
// currently available to it: currentSize if the arena hasn't yet grown to
// MaxSize, else MaxSize itself. Deriving the cap from the live arena size
// rather than the static MaxSize ceiling is what makes Store.Grow actually
// relax it -- growing the backing file raises currentSize, which in turn
// raises every cached space's cap, so a learning call that retries after a
// successful grow can really succeed instead of hitting the same ceiling
// immediately again.
func maxEntriesPerSpace(opts Options, currentSize int64) int {
	// A bounded arena can only ever hold so many symbols; an unbounded one
	// (MaxSize == 0) places no a-priori cap on any one space.
	if opts.MaxSize == 0 {
		return 0
	}
	perSymbol := symbolByteSize(opts.Dimensions, opts.FingerprintSize)
	if perSymbol == 0 {
		return 0
	}
	size := currentSize
	if opts.MaxSize > 0 && size > opts.MaxSize {
		size = opts.MaxSize
	}
	return int(size / int64(perSymbol))
}

func symbolByteSize(dimensions, fingerprintSize int) int {
	// name length prefix is variable; this is an upper-bound estimate used
	// only to size the OutOfMemory guard, not to lay out the file.
	const nameBudget = 64
	words := (dimensions + 63) / 64
	return nameBudget + fingerprintSize*4 + 8 + 8 + words*8
}

// Close flushes dirty pages and, if CompactOnClose was requested, shrinks
// the file to fit live data -- but only if the heap passes a sanity check
// first; an insane heap is left untouched rather than risking further
// corruption by writing to it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.arena.readOnly {
		return s.arena.close()
	}

	if !s.sane() {
		return s.arena.close()
	}

	if err := s.flushLocked(); err != nil {
		return err
	}
	if s.opts.CompactOnClose {
		if err := s.compactLocked(); err != nil {
			return err
		}
	}
	return s.arena.close()
}

func (s *Store) flushLocked() error {
	encoded := encodeSpaces(s.spaces, s.opts.Dimensions, s.opts.FingerprintSize)
	if int64(len(encoded)) > s.arena.size {
		if err := s.arena.remap(int64(len(encoded))); err != nil {
			return newError("close", StatusRuntime, err)
		}
	}
	copy(s.arena.mm, encoded)
	if len(encoded) < len(s.arena.mm) {
		zero(s.arena.mm[len(encoded):])
	}
	if err := s.arena.flush(); err != nil {
		return newError("close", StatusRuntime, err)
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// EnsureSpace resolves a space by name, constructing and caching it on
// first reference. A cache hit is a plain map lookup; a miss allocates a
// new, empty space and memoizes it.
func (s *Store) EnsureSpace(name string) (*space.Space, Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureSpaceLocked(name)
}

func (s *Store) ensureSpaceLocked(name string) (*space.Space, Status, error) {
	if sp, ok := s.spaces[name]; ok {
		return sp, StatusExisted, nil
	}
	sp := space.New(name, s.opts.Dimensions, maxEntriesPerSpace(s.opts, s.arena.size))
	s.spaces[name] = sp
	return sp, StatusCreated, nil
}

// ReadOnly reports whether the store was opened read-only (Options asked
// for the default InitialSize of 0 against an already-existing file).
// Write paths refuse to mutate a read-only store.
func (s *Store) ReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.readOnly
}

// GetSpace is a cache-only lookup: it never constructs a space.
func (s *Store) GetSpace(name string) (*space.Space, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.spaces[name]
	return sp, ok
}

// DestroySpace removes a named space from the store and, crucially, from
// the in-process cache -- the source implementation destroys the arena
// region but leaves a stale cache entry behind; evicting here fixes that
// latent bug rather than reproducing it.
func (s *Store) DestroySpace(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spaces[name]; !ok {
		return false
	}
	delete(s.spaces, name)
	return true
}

// NamedSpaces lists every user-visible space name, filtering out any space
// whose name begins with "_". The arena's own bookkeeping lives in its
// header, not in a named space.
func (s *Store) NamedSpaces() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.spaces))
	for name := range s.spaces {
		if strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	return names
}

// SpaceCardinality returns the entry count of a cached space, if present.
func (s *Store) SpaceCardinality(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.spaces[name]
	if !ok {
		return 0, false
	}
	return sp.Entries(), true
}

// Grow requests the backing file be extended by extraBytes and the region
// re-mapped. The space cache itself need not be invalidated -- unlike the
// source, spaces here are plain Go heap objects, not pointers into the
// mapped bytes, so a remap never dangles a previously resolved handle.
// Every cached space's capacity bound is also raised to match the new
// size, so a learning call that grows the arena and retries actually
// gains headroom instead of hitting the same cap again.
func (s *Store) Grow(extraBytes int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.arena.readOnly {
		return false, newError("grow", StatusRuntime, fmt.Errorf("store is read-only"))
	}
	return s.growLocked(extraBytes)
}

func (s *Store) growLocked(extraBytes int64) (bool, error) {
	if !s.canGrowLocked(extraBytes) {
		return false, nil
	}
	if err := s.arena.remap(s.arena.size + extraBytes); err != nil {
		return false, newError("grow", StatusRuntime, err)
	}
	newCap := maxEntriesPerSpace(s.opts, s.arena.size)
	for _, sp := range s.spaces {
		sp.SetMaxEntries(newCap)
	}
	return true, nil
}

// growIncrement is how much extra capacity a single grow-then-retry
// attempt requests from the arena: enough backing bytes for a further
// batch of symbols at the store's configured dimensions and fingerprint
// size.
func (s *Store) growIncrement() int64 {
	perSymbol := int64(symbolByteSize(s.opts.Dimensions, s.opts.FingerprintSize))
	if perSymbol <= 0 {
		return DefaultInitialSize
	}
	const retryHeadroomSymbols = 64
	return perSymbol * retryHeadroomSymbols
}

// Compact shrinks the backing file to fit currently live data.
func (s *Store) Compact() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.arena.readOnly {
		return false, newError("compact", StatusRuntime, fmt.Errorf("store is read-only"))
	}
	if err := s.compactLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) compactLocked() error {
	encoded := encodeSpaces(s.spaces, s.opts.Dimensions, s.opts.FingerprintSize)
	size := int64(len(encoded))
	if size < headerSize {
		size = headerSize
	}
	if err := s.arena.remap(size); err != nil {
		return newError("compact", StatusRuntime, err)
	}
	copy(s.arena.mm, encoded)
	return nil
}

// Size returns the backing file's current size in bytes.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.size
}

// Free returns an estimate of remaining capacity before MaxSize is hit; 0
// if MaxSize is unset (unbounded).
func (s *Store) Free() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.MaxSize == 0 {
		return 0
	}
	free := s.opts.MaxSize - s.arena.size
	if free < 0 {
		free = 0
	}
	return free
}

// Sane reports whether the backing arena still begins with a valid magic
// header -- the heap sanity probe gating Close's flush/compact.
func (s *Store) Sane() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sane()
}

func (s *Store) sane() bool {
	return s.arena.valid()
}

// CanGrow reports whether the arena may be extended by extraBytes without
// exceeding MaxSize.
func (s *Store) CanGrow(extraBytes int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canGrowLocked(extraBytes)
}

func (s *Store) canGrowLocked(extraBytes int64) bool {
	if s.opts.MaxSize == 0 {
		return true
	}
	return s.arena.size+extraBytes <= s.opts.MaxSize
}
