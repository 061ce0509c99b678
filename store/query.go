package store

import (
	"runtime"
	"sort"
	"sync"

	"github.com/sdmlabs/sdm/bitvector"
	"github.com/sdmlabs/sdm/space"
	"github.com/sdmlabs/sdm/symbol"
)

// Point is one entry of a space's geometry: a symbol's name alongside its
// density and advisory refcount, unfiltered by any similarity bound.
type Point struct {
	Name     string
	Density  float64
	Refcount uint64
}

// Neighbour is one entry of a topology result: a symbol's name alongside
// its density, similarity and overlap against the probe vector.
type Neighbour struct {
	Name       string
	Density    float64
	Similarity float64
	Overlap    float64
}

// Density returns the named symbol's semantic-vector density. Read-only:
// no side effects, no creation of missing entities.
func (s *Store) Density(spaceName, name string) (float64, Status, error) {
	sym, status, err := s.lookup(spaceName, name)
	if err != nil {
		return 0, status, err
	}
	return sym.Density(), StatusOK, nil
}

// Similarity returns 1 - distance/D between two named symbols.
func (s *Store) Similarity(tSpace, tName, sSpace, sName string) (float64, Status, error) {
	t, status, err := s.lookup(tSpace, tName)
	if err != nil {
		return 0, status, err
	}
	src, status, err := s.lookup(sSpace, sName)
	if err != nil {
		return 0, status, err
	}
	return t.Similarity(src), StatusOK, nil
}

// Overlap returns inner/D between two named symbols.
func (s *Store) Overlap(tSpace, tName, sSpace, sName string) (float64, Status, error) {
	t, status, err := s.lookup(tSpace, tName)
	if err != nil {
		return 0, status, err
	}
	src, status, err := s.lookup(sSpace, sName)
	if err != nil {
		return 0, status, err
	}
	return t.Overlap(src), StatusOK, nil
}

// PrefixSearch returns every name in space beginning with prefix, in
// ascending lexicographic order.
func (s *Store) PrefixSearch(spaceName, prefix string) ([]string, Status, error) {
	sp, ok := s.GetSpace(spaceName)
	if !ok {
		return nil, StatusMissingSpace, newError("prefix_search", StatusMissingSpace, nil)
	}
	matches := sp.PrefixSearch(prefix)
	names := make([]string, len(matches))
	for i, sym := range matches {
		names[i] = sym.Name()
	}
	return names, StatusOK, nil
}

// Geometry returns one Point per symbol in space, unfiltered and in
// positional order.
func (s *Store) Geometry(spaceName string) ([]Point, Status, error) {
	sp, ok := s.GetSpace(spaceName)
	if !ok {
		return nil, StatusMissingSpace, newError("geometry", StatusMissingSpace, nil)
	}
	points := make([]Point, 0, sp.Entries())
	sp.Each(func(_ int, sym *symbol.Symbol) {
		points = append(points, Point{
			Name:     sym.Name(),
			Density:  sym.Density(),
			Refcount: sym.Refcount(),
		})
	})
	return points, StatusOK, nil
}

// Metric selects which measure a topology call ranks, sorts and filters
// by: Similarity (1 - Hamming distance/D) or Overlap (common bits/D).
type Metric int

const (
	MetricSimilarity Metric = iota
	MetricOverlap
)

func (n Neighbour) metricValue(metric Metric) float64 {
	if metric == MetricOverlap {
		return n.Overlap
	}
	return n.Similarity
}

// Topology computes the metric-sorted, filtered neighbourhood of a named
// probe symbol inside targetSpace: every symbol there is measured against
// the probe, filtered by the density and metric bounds, sorted by
// descending metric value, and truncated to cardinalityUpperBound.
func (s *Store) Topology(targetSpace, sourceSpace, sourceName string, metric Metric, densityLowerBound, densityUpperBound, metricLowerBound, metricUpperBound float64, cardinalityUpperBound int) ([]Neighbour, Status, error) {
	probe, status, err := s.lookup(sourceSpace, sourceName)
	if err != nil {
		return nil, status, err
	}
	return s.topologyAgainst(targetSpace, probe.Vector(), metric, densityLowerBound, densityUpperBound, metricLowerBound, metricUpperBound, cardinalityUpperBound)
}

// TopologyVector is the raw-probe overload: it measures every symbol in
// targetSpace against an arbitrary semantic vector rather than one
// resolved from a named symbol.
func (s *Store) TopologyVector(targetSpace string, probe bitvector.Vector, metric Metric, densityLowerBound, densityUpperBound, metricLowerBound, metricUpperBound float64, cardinalityUpperBound int) ([]Neighbour, Status, error) {
	return s.topologyAgainst(targetSpace, probe, metric, densityLowerBound, densityUpperBound, metricLowerBound, metricUpperBound, cardinalityUpperBound)
}

func (s *Store) topologyAgainst(targetSpace string, probe bitvector.Vector, metric Metric, densityLowerBound, densityUpperBound, metricLowerBound, metricUpperBound float64, cardinalityUpperBound int) ([]Neighbour, Status, error) {
	sp, ok := s.GetSpace(targetSpace)
	if !ok {
		return nil, StatusMissingSpace, newError("topology", StatusMissingSpace, nil)
	}
	if cardinalityUpperBound <= 0 {
		return []Neighbour{}, StatusOK, nil
	}

	dim := sp.Dimensions()
	measured := parallelMeasure(sp, probe, dim)

	kept := measured[:0]
	for _, n := range measured {
		if n.Density <= densityLowerBound || n.Density > densityUpperBound {
			continue
		}
		v := n.metricValue(metric)
		if v < metricLowerBound || v > metricUpperBound {
			continue
		}
		kept = append(kept, n)
	}

	sort.Slice(kept, func(i, j int) bool {
		vi, vj := kept[i].metricValue(metric), kept[j].metricValue(metric)
		if vi != vj {
			return vi > vj
		}
		return kept[i].Name < kept[j].Name
	})

	if len(kept) > cardinalityUpperBound {
		kept = kept[:cardinalityUpperBound]
	}
	return kept, StatusOK, nil
}

// parallelMeasure computes density/similarity/overlap for every symbol in
// sp against probe, fanning the per-symbol measurement out across a fixed
// worker pool addressing the positional index by integer index -- the
// same fork-join shape as a parallel chunked file reader, generalized from
// byte ranges to symbol positions. The reduction (filter/sort/truncate)
// that follows stays serial, as the source's comments on its dispatch/
// OpenMP topology scan require.
func parallelMeasure(sp *space.Space, probe bitvector.Vector, dim int) []Neighbour {
	n := sp.Entries()
	out := make([]Neighbour, n)

	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	measure := func(i int) {
		sym, ok := sp.At(i)
		if !ok {
			return
		}
		out[i] = Neighbour{
			Name:       sym.Name(),
			Density:    sym.Vector().Density(dim),
			Similarity: sym.Vector().Similarity(probe, dim),
			Overlap:    sym.Vector().Overlap(probe, dim),
		}
	}

	if n <= 1 || workers <= 1 {
		for i := 0; i < n; i++ {
			measure(i)
		}
		return out
	}

	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				measure(i)
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

func (s *Store) lookup(spaceName, name string) (*symbol.Symbol, Status, error) {
	sp, ok := s.GetSpace(spaceName)
	if !ok {
		return nil, StatusMissingSpace, newError("query", StatusMissingSpace, nil)
	}
	sym, ok := sp.GetByName(name, false)
	if !ok {
		return nil, StatusMissingSymbol, newError("query", StatusMissingSymbol, nil)
	}
	return sym, StatusOK, nil
}
