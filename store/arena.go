package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"

	"github.com/sdmlabs/sdm/bitvector"
	"github.com/sdmlabs/sdm/space"
	"github.com/sdmlabs/sdm/symbol"
)

// The backing file is a single memory-mapped region holding a header
// followed by one length-prefixed record per space. The live spaces and
// symbols are ordinary Go values: decodeSpaces rebuilds them from the
// mapped bytes at Open, and encodeSpaces re-flattens them into the mapping
// at Close/Compact. The "one named object per space" layout is kept, just
// without pointer-based in-place structures (§9's redesign notes: favor
// append-only arrays over intrusive, pointer-chasing containers).
const (
	arenaMagic   = "SDM1"
	headerSize   = 32
	metaSpace    = "_meta" // reserved, filtered from named_spaces()
)

// arena owns the backing file and its current memory mapping.
type arena struct {
	file     *os.File
	mm       mmap.MMap
	size     int64 // logical file size (== len(mm) once mapped)
	readOnly bool
}

// openArena opens or creates the backing file at path. requestedSize is
// the caller's raw Options.InitialSize: if it is zero and the file
// already exists, the arena is opened read-only and shared-locked, per
// the "arena is opened read-only" rule. Several read-only opens can hold
// the shared lock together, but it waits while another instance holds the
// file read-write (exclusively locked), so a read-only open does not run
// alongside a read-write one. Any non-zero requestedSize, or a file that
// does not yet exist, opens read-write and exclusively locked as before.
func openArena(path string, requestedSize int64) (*arena, bool, error) {
	info, statErr := os.Stat(path)
	if statErr != nil && !os.IsNotExist(statErr) {
		return nil, false, fmt.Errorf("stat backing file: %w", statErr)
	}
	fileExists := statErr == nil && info.Size() > 0
	readOnly := requestedSize == 0 && fileExists

	flags := os.O_RDWR | os.O_CREATE
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open backing file: %w", err)
	}

	var size int64
	if fileExists {
		size = info.Size()
	} else {
		size = requestedSize
		if size <= 0 {
			size = DefaultInitialSize
		}
		if size < headerSize {
			size = headerSize
		}
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, false, fmt.Errorf("truncate backing file: %w", err)
		}
	}

	if readOnly {
		err = lockArenaShared(int(f.Fd()))
	} else {
		err = lockArena(int(f.Fd()))
	}
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("lock backing file: %w", err)
	}

	mapMode := mmap.RDWR
	if readOnly {
		mapMode = mmap.RDONLY
	}
	m, err := mmap.MapRegion(f, int(size), mapMode, 0, 0)
	if err != nil {
		f.Close()
		return nil, false, fmt.Errorf("map backing file: %w", err)
	}

	a := &arena{file: f, mm: m, size: size, readOnly: readOnly}
	if !fileExists {
		a.writeEmptyHeader()
	}
	return a, fileExists, nil
}

func (a *arena) writeEmptyHeader() {
	copy(a.mm[0:4], arenaMagic)
	binary.LittleEndian.PutUint32(a.mm[4:8], 1) // version
	binary.LittleEndian.PutUint32(a.mm[8:12], 0) // space count
}

// valid reports whether the mapped region begins with the expected magic.
func (a *arena) valid() bool {
	return len(a.mm) >= headerSize && bytes.Equal(a.mm[0:4], []byte(arenaMagic))
}

// remap unmaps and remaps the backing file at a new size, truncating or
// extending the underlying file as needed. Any existing mapping is
// invalidated; callers must not retain slices into the old mm.
func (a *arena) remap(newSize int64) error {
	if a.readOnly {
		return fmt.Errorf("remap: arena is read-only")
	}
	if newSize > a.size {
		newSize = roundUpToPage(newSize)
	}
	if a.mm != nil {
		if err := a.mm.Unmap(); err != nil {
			return fmt.Errorf("unmap backing file: %w", err)
		}
	}
	if err := a.file.Truncate(newSize); err != nil {
		return fmt.Errorf("truncate backing file: %w", err)
	}
	m, err := mmap.MapRegion(a.file, int(newSize), mmap.RDWR, 0, 0)
	if err != nil {
		return fmt.Errorf("remap backing file: %w", err)
	}
	a.mm = m
	a.size = newSize
	return nil
}

func (a *arena) flush() error {
	if a.readOnly {
		return fmt.Errorf("flush: arena is read-only")
	}
	return a.mm.Flush()
}

func (a *arena) close() error {
	if a.mm != nil {
		if err := a.mm.Unmap(); err != nil {
			a.file.Close()
			return err
		}
	}
	unlockArena(int(a.file.Fd()))
	return a.file.Close()
}

// roundUpToPage rounds size up to the nearest page-size multiple, so a
// grow never leaves the mapping straddling a partial page.
func roundUpToPage(size int64) int64 {
	ps := int64(pageSize())
	if ps <= 0 {
		return size
	}
	rem := size % ps
	if rem == 0 {
		return size
	}
	return size + (ps - rem)
}

// encodeSpaces serializes every space (sorted by name for determinism)
// behind an arena header, returning the encoded bytes.
func encodeSpaces(spaces map[string]*space.Space, dimensions, fingerprintSize int) []byte {
	var buf bytes.Buffer

	header := make([]byte, headerSize)
	copy(header[0:4], arenaMagic)
	binary.LittleEndian.PutUint32(header[4:8], 1)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(spaces)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(dimensions))
	binary.LittleEndian.PutUint32(header[16:20], uint32(fingerprintSize))
	buf.Write(header)

	names := make([]string, 0, len(spaces))
	for name := range spaces {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		encodeSpace(&buf, spaces[name])
	}
	return buf.Bytes()
}

func encodeSpace(buf *bytes.Buffer, sp *space.Space) {
	writeString(buf, sp.Name())
	writeUint32(buf, uint32(sp.Dimensions()))
	writeUint32(buf, uint32(sp.Entries()))

	sp.Each(func(_ int, sym *symbol.Symbol) {
		writeString(buf, sym.Name())
		fp := sym.Fingerprint()
		writeUint32(buf, uint32(fp.Len()))
		for i := 0; i < fp.Len(); i++ {
			writeUint32(buf, uint32(fp.At(i)))
		}
		writeFloat64(buf, sym.Dither())
		writeUint64(buf, sym.Refcount())
		v := sym.Vector()
		writeUint32(buf, uint32(len(v)))
		for _, w := range v {
			writeUint64(buf, w)
		}
	})
}

// decodeSpaces reconstructs the in-process space map from a previously
// encoded arena image. maxEntriesPerSpace bounds each reconstructed
// space's future growth the same way a freshly ensure_space'd one would be.
func decodeSpaces(data []byte, maxEntriesPerSpace int) (map[string]*space.Space, error) {
	if len(data) < headerSize || !bytes.Equal(data[0:4], []byte(arenaMagic)) {
		return nil, fmt.Errorf("arena: bad magic")
	}
	spaceCount := binary.LittleEndian.Uint32(data[8:12])

	r := bytes.NewReader(data[headerSize:])
	spaces := make(map[string]*space.Space, spaceCount)

	for i := uint32(0); i < spaceCount; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("arena: decode space name: %w", err)
		}
		dims, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		symbolCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}

		sp := space.New(name, int(dims), maxEntriesPerSpace)
		for j := uint32(0); j < symbolCount; j++ {
			if err := decodeSymbolInto(r, sp, int(dims)); err != nil {
				return nil, fmt.Errorf("arena: decode symbol in space %q: %w", name, err)
			}
		}
		spaces[name] = sp
	}
	return spaces, nil
}

func decodeSymbolInto(r *bytes.Reader, sp *space.Space, dimensions int) error {
	name, err := readString(r)
	if err != nil {
		return err
	}
	k, err := readUint32(r)
	if err != nil {
		return err
	}
	indices := make([]int, k)
	for i := range indices {
		v, err := readUint32(r)
		if err != nil {
			return err
		}
		indices[i] = int(v)
	}
	dither, err := readFloat64(r)
	if err != nil {
		return err
	}
	refcount, err := readUint64(r)
	if err != nil {
		return err
	}
	nWords, err := readUint32(r)
	if err != nil {
		return err
	}
	words := make(bitvector.Vector, nWords)
	for i := range words {
		w, err := readUint64(r)
		if err != nil {
			return err
		}
		words[i] = w
	}

	sym, _, err := sp.Insert(name, indices, dither)
	if err != nil {
		return err
	}
	for i := 0; i < int(refcount); i++ {
		sym.BumpRefcount()
	}
	copy(sym.Vector(), words)
	return nil
}
