package store_test

import (
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sdmlabs/sdm/store"
)

func openTestStore(t *testing.T, opts store.Options) *store.Store {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "test.sdm")
	}
	s, err := store.Open(opts.WithSeed(42))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Scenario 1 — Basic learning & similarity.
func TestBasicLearningAndSimilarity(t *testing.T) {
	s := openTestStore(t, store.Options{})

	pairs := [][2]string{
		{"Beaumont", "Simon"},
		{"Beaumont", "Natasha"},
		{"Beaumont", "Joshua"},
		{"Beaumont", "Oliver"},
		{"Beaumont", "Laura"},
		{"Simon", "Beaumont"},
	}
	for _, p := range pairs {
		if _, err := s.Superpose("names", p[0], "names", p[1], 0, false); err != nil {
			t.Fatalf("superpose(%s, %s): %v", p[0], p[1], err)
		}
	}

	density, status, err := s.Density("names", "Beaumont")
	if err != nil {
		t.Fatalf("density(Beaumont): %v", err)
	}
	if status != store.StatusOK {
		t.Fatalf("density status = %v, want OK", status)
	}
	if density <= 0.004 || density >= 0.02 {
		t.Fatalf("density(Beaumont) = %v, want in (0.004, 0.02)", density)
	}

	card, ok := s.SpaceCardinality("names")
	if !ok {
		t.Fatalf("space %q not found", "names")
	}
	if card != 6 {
		t.Fatalf("cardinality = %d, want 6", card)
	}
}

// Scenario 2 — Prefix scan.
func TestPrefixScan(t *testing.T) {
	s := openTestStore(t, store.Options{})
	for _, n := range []string{"apple", "apex", "banana", "band", "bandana"} {
		if _, err := s.NamedVector("words", n, 1); err != nil {
			t.Fatalf("named_vector(%s): %v", n, err)
		}
	}

	ba, _, err := s.PrefixSearch("words", "ba")
	if err != nil {
		t.Fatalf("prefix_search(ba): %v", err)
	}
	want := []string{"banana", "band", "bandana"}
	if len(ba) != len(want) {
		t.Fatalf("prefix_search(ba) = %v, want %v", ba, want)
	}
	for i := range want {
		if ba[i] != want[i] {
			t.Fatalf("prefix_search(ba)[%d] = %q, want %q", i, ba[i], want[i])
		}
	}

	exact, _, _ := s.PrefixSearch("words", "bandana")
	if len(exact) != 1 || exact[0] != "bandana" {
		t.Fatalf("prefix_search(bandana) = %v, want [bandana]", exact)
	}

	all, _, _ := s.PrefixSearch("words", "")
	if len(all) != 5 {
		t.Fatalf("prefix_search(\"\") returned %d, want 5", len(all))
	}
}

// Scenario 3 — Self-similarity.
func TestSelfSimilarity(t *testing.T) {
	s := openTestStore(t, store.Options{})
	if _, err := s.Superpose("names", "x", "names", "y", 0, false); err != nil {
		t.Fatalf("superpose: %v", err)
	}

	sim, _, err := s.Similarity("names", "x", "names", "x")
	if err != nil {
		t.Fatalf("similarity(x,x): %v", err)
	}
	if sim != 1.0 {
		t.Fatalf("similarity(x,x) = %v, want 1.0", sim)
	}

	overlap, _, err := s.Overlap("names", "x", "names", "x")
	if err != nil {
		t.Fatalf("overlap(x,x): %v", err)
	}
	density, _, err := s.Density("names", "x")
	if err != nil {
		t.Fatalf("density(x): %v", err)
	}
	if overlap != density {
		t.Fatalf("overlap(x,x) = %v, want density(x) = %v", overlap, density)
	}
	if density <= 0 {
		t.Fatalf("density(x) = %v, want > 0", density)
	}
}

// Scenario 4 — Orthogonality of fresh symbols.
func TestOrthogonalityOfFreshSymbols(t *testing.T) {
	s := openTestStore(t, store.Options{})

	const count = 50 // smaller than the spec's 1000 to keep the test fast
	for i := 0; i < count; i++ {
		name := string(rune('a' + i%26))
		if _, err := s.NamedVector("fresh", name+string(rune('A'+i/26)), 1); err != nil {
			t.Fatalf("named_vector #%d: %v", i, err)
		}
	}

	sim, _, err := s.Similarity("fresh", "aA", "fresh", "bA")
	if err != nil {
		t.Fatalf("similarity: %v", err)
	}
	if sim != 1.0 {
		t.Fatalf("similarity between two untaught (all-zero) symbols = %v, want 1.0", sim)
	}

	if _, err := s.Superpose("fresh", "aA", "sources", "src1", 0, false); err != nil {
		t.Fatalf("superpose aA: %v", err)
	}
	if _, err := s.Superpose("fresh", "bA", "sources", "src2", 0, false); err != nil {
		t.Fatalf("superpose bA: %v", err)
	}

	sim, _, err = s.Similarity("fresh", "aA", "fresh", "bA")
	if err != nil {
		t.Fatalf("similarity after teaching: %v", err)
	}
	expected := 1 - 2*float64(store.DefaultFingerprintSize)/float64(store.DefaultDimensions)
	if diff := sim - expected; diff < -0.02 || diff > 0.02 {
		t.Fatalf("similarity after disjoint single superpose = %v, want close to %v", sim, expected)
	}
}

// Scenario 5 — Persistence.
func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.sdm")

	s, err := store.Open(store.Options{Path: path}.WithSeed(7))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	const n = 200 // smaller than the spec's 10,000 to keep the test fast
	for i := 0; i < n; i++ {
		name := "word" + strconv.Itoa(i)
		if _, err := s.NamedVector("TESTSPACE", name, 1); err != nil {
			t.Fatalf("named_vector #%d: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := store.Open(store.Options{Path: path}.WithSeed(7))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	card, ok := reopened.SpaceCardinality("TESTSPACE")
	if !ok {
		t.Fatalf("TESTSPACE not found after reopen")
	}
	if card != n {
		t.Fatalf("cardinality after reopen = %d, want %d", card, n)
	}

	names, _, err := reopened.PrefixSearch("TESTSPACE", "")
	if err != nil {
		t.Fatalf("prefix_search: %v", err)
	}
	if len(names) != n {
		t.Fatalf("prefix_search(\"\") after reopen returned %d, want %d", len(names), n)
	}
}

func TestLoadVectorAfterNamedVectorIsZero(t *testing.T) {
	s := openTestStore(t, store.Options{})
	if _, err := s.NamedVector("names", "fresh", 1); err != nil {
		t.Fatalf("named_vector: %v", err)
	}
	density, _, err := s.Density("names", "fresh")
	if err != nil {
		t.Fatalf("density: %v", err)
	}
	if density != 0 {
		t.Fatalf("density of freshly named vector = %v, want 0", density)
	}
}

// Scenario 6 — Topology shape.
func TestTopologyShape(t *testing.T) {
	s := openTestStore(t, store.Options{})
	pairs := [][2]string{
		{"Beaumont", "Simon"},
		{"Beaumont", "Natasha"},
		{"Beaumont", "Joshua"},
		{"Beaumont", "Oliver"},
		{"Beaumont", "Laura"},
		{"Simon", "Beaumont"},
	}
	for _, p := range pairs {
		if _, err := s.Superpose("names", p[0], "names", p[1], 0, false); err != nil {
			t.Fatalf("superpose: %v", err)
		}
	}

	neighbours, status, err := s.Topology("names", "names", "Beaumont", store.MetricSimilarity, 0, 1.0, 0.5, 1.0, 10)
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	if status != store.StatusOK {
		t.Fatalf("topology status = %v, want OK", status)
	}
	if len(neighbours) < 1 {
		t.Fatalf("topology returned no neighbours")
	}
	if neighbours[0].Name != "Beaumont" {
		t.Fatalf("topology[0].Name = %q, want Beaumont", neighbours[0].Name)
	}
	if neighbours[0].Similarity != 1.0 {
		t.Fatalf("topology[0].Similarity = %v, want 1.0", neighbours[0].Similarity)
	}
	for i := 1; i < len(neighbours); i++ {
		if neighbours[i].Similarity > neighbours[i-1].Similarity {
			t.Fatalf("topology not in non-increasing similarity order at %d: %v > %v", i, neighbours[i].Similarity, neighbours[i-1].Similarity)
		}
	}
}

func TestTopologyZeroCardinalityIsEmpty(t *testing.T) {
	s := openTestStore(t, store.Options{})
	if _, err := s.Superpose("names", "a", "names", "b", 0, false); err != nil {
		t.Fatalf("superpose: %v", err)
	}
	neighbours, status, err := s.Topology("names", "names", "a", store.MetricSimilarity, 0, 1.0, 0.0, 1.0, 0)
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	if status != store.StatusOK {
		t.Fatalf("status = %v, want OK", status)
	}
	if len(neighbours) != 0 {
		t.Fatalf("topology with cub=0 returned %d entries, want 0", len(neighbours))
	}
}

func TestTopologyOverlapMetricRanksBySharedBits(t *testing.T) {
	s := openTestStore(t, store.Options{})
	pairs := [][2]string{
		{"Beaumont", "Simon"},
		{"Beaumont", "Natasha"},
		{"Beaumont", "Joshua"},
		{"Simon", "Beaumont"},
	}
	for _, p := range pairs {
		if _, err := s.Superpose("names", p[0], "names", p[1], 0, false); err != nil {
			t.Fatalf("superpose: %v", err)
		}
	}

	neighbours, status, err := s.Topology("names", "names", "Beaumont", store.MetricOverlap, 0, 1.0, 0.0, 1.0, 10)
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	if status != store.StatusOK {
		t.Fatalf("topology status = %v, want OK", status)
	}
	if len(neighbours) < 1 || neighbours[0].Name != "Beaumont" {
		t.Fatalf("topology[0] = %+v, want self-match Beaumont first", neighbours)
	}
	for i := 1; i < len(neighbours); i++ {
		if neighbours[i].Overlap > neighbours[i-1].Overlap {
			t.Fatalf("overlap topology not in non-increasing overlap order at %d: %v > %v", i, neighbours[i].Overlap, neighbours[i-1].Overlap)
		}
	}
}

func TestTopologyMetricUpperBoundExcludesNearMatches(t *testing.T) {
	s := openTestStore(t, store.Options{})
	if _, err := s.Superpose("names", "a", "names", "b", 0, false); err != nil {
		t.Fatalf("superpose: %v", err)
	}

	neighbours, status, err := s.Topology("names", "names", "a", store.MetricSimilarity, 0, 1.0, 0.0, 0.5, 10)
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	if status != store.StatusOK {
		t.Fatalf("topology status = %v, want OK", status)
	}
	for _, n := range neighbours {
		if n.Name == "a" {
			t.Fatalf("topology with mub=0.5 kept self-match %+v, want excluded by upper bound", n)
		}
	}
}

func TestInsertingExistingNameDoesNotMutateRecord(t *testing.T) {
	s := openTestStore(t, store.Options{})
	status, err := s.NamedVector("names", "a", 1)
	if err != nil || status != store.StatusCreated {
		t.Fatalf("first named_vector: status=%v err=%v", status, err)
	}
	if _, err := s.Superpose("names", "a", "names", "teacher", 0, false); err != nil {
		t.Fatalf("superpose: %v", err)
	}
	before, _, _ := s.Density("names", "a")

	status, err = s.NamedVector("names", "a", 1)
	if err != nil {
		t.Fatalf("second named_vector: %v", err)
	}
	if status != store.StatusExisted {
		t.Fatalf("status on existing name = %v, want Existed", status)
	}
	after, _, _ := s.Density("names", "a")
	if before != after {
		t.Fatalf("density changed after re-inserting an existing name: %v -> %v", before, after)
	}
}

func TestSubtractRequiresBothSidesToExist(t *testing.T) {
	s := openTestStore(t, store.Options{})
	_, err := s.Subtract("names", "ghost", "names", "ghost2", 0)
	var sdmErr *store.Error
	if !errors.As(err, &sdmErr) || sdmErr.Status != store.StatusMissingSpace {
		t.Fatalf("subtract on missing space: err = %v, want StatusMissingSpace", err)
	}
}

func TestBatchSuperposeIsUnimplemented(t *testing.T) {
	s := openTestStore(t, store.Options{})
	status, err := s.BatchSuperpose("t", "tn", "s", []string{"a"}, []int{0}, false)
	if status != store.StatusUnimplemented {
		t.Fatalf("batch_superpose status = %v, want Unimplemented", status)
	}
	if err == nil {
		t.Fatalf("batch_superpose should return an error")
	}
}

func TestDestroySpaceEvictsCache(t *testing.T) {
	s := openTestStore(t, store.Options{})
	if _, err := s.NamedVector("names", "a", 1); err != nil {
		t.Fatalf("named_vector: %v", err)
	}
	if !s.DestroySpace("names") {
		t.Fatalf("destroy_space should report true for an existing space")
	}
	if _, ok := s.GetSpace("names"); ok {
		t.Fatalf("destroyed space should no longer be resolvable from the cache")
	}
}
