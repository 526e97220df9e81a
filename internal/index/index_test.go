package index

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
)

const simTolerance = 1e-4

// unit returns a unit vector along the given axis of a dim-dimensional space.
func unit(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func buildSmall(t *testing.T) *Index {
	t.Helper()
	ix := New()
	entries := []Entry{
		{Name: "alice", Vector: unit(8, 0)},
		{Name: "bob", Vector: unit(8, 1)},
		{Name: "carol", Vector: unit(8, 2)},
	}
	if err := ix.Build(entries, MetricInnerProduct); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return ix
}

func TestQueryBeforeBuildReturnsEmpty(t *testing.T) {
	ix := New()
	matches, err := ix.Query(unit(8, 0), 5)
	if err != nil {
		t.Fatalf("Query on untrained index returned error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Query on untrained index returned %d matches, want 0", len(matches))
	}
}

func TestBuildAndQuerySelf(t *testing.T) {
	ix := buildSmall(t)

	matches, err := ix.Query(unit(8, 1), 1)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Query returned %d matches, want 1", len(matches))
	}
	if matches[0].Name != "bob" {
		t.Errorf("best match = %q, want bob", matches[0].Name)
	}
	if math.Abs(matches[0].Similarity-1) > simTolerance {
		t.Errorf("self similarity = %v, want ~1", matches[0].Similarity)
	}
}

func TestQueryResultsSortedDescending(t *testing.T) {
	ix := buildSmall(t)

	query := []float32{0.9, 0.4, 0.1, 0, 0, 0, 0, 0}
	matches, err := ix.Query(query, 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("Query returned %d matches, want 3", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Errorf("matches not sorted: [%d]=%v > [%d]=%v",
				i, matches[i].Similarity, i-1, matches[i-1].Similarity)
		}
	}
	if matches[0].Name != "alice" {
		t.Errorf("best match = %q, want alice", matches[0].Name)
	}
}

func TestQueryKCappedAtCatalogSize(t *testing.T) {
	ix := buildSmall(t)
	matches, err := ix.Query(unit(8, 0), 100)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 3 {
		t.Errorf("Query returned %d matches, want 3", len(matches))
	}
}

func TestBuildEmptyFails(t *testing.T) {
	ix := New()
	err := ix.Build(nil, MetricInnerProduct)
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("Build(nil) error = %v, want *BuildError", err)
	}
}

func TestBuildDimensionMismatchPreservesPreviousState(t *testing.T) {
	ix := buildSmall(t)

	bad := []Entry{
		{Name: "x", Vector: unit(8, 0)},
		{Name: "y", Vector: unit(4, 0)},
	}
	err := ix.Build(bad, MetricInnerProduct)
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("Build with mismatched dims error = %v, want *BuildError", err)
	}

	// Previous content must still answer queries.
	matches, err := ix.Query(unit(8, 2), 1)
	if err != nil {
		t.Fatalf("Query after failed build: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "carol" {
		t.Errorf("index lost previous state after failed build: %+v", matches)
	}
}

func TestTieBreakFirstInserted(t *testing.T) {
	ix := New()
	v := unit(8, 3)
	entries := []Entry{
		{Name: "first", Vector: v},
		{Name: "second", Vector: v},
	}
	if err := ix.Build(entries, MetricInnerProduct); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	matches, err := ix.Query(v, 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if matches[0].Name != "first" {
		t.Errorf("tie resolved to %q, want first", matches[0].Name)
	}
}

func TestL2MetricSimilarityMapping(t *testing.T) {
	ix := New()
	entries := []Entry{
		{Name: "origin", Vector: unit(4, 0)},
		{Name: "far", Vector: []float32{-1, 0, 0, 0}},
	}
	if err := ix.Build(entries, MetricL2); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	matches, err := ix.Query(unit(4, 0), 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Query returned %d matches, want 2", len(matches))
	}
	// Distance 0 maps to similarity 1; larger distances map lower.
	if matches[0].Name != "origin" || math.Abs(matches[0].Similarity-1) > simTolerance {
		t.Errorf("exact match = %+v, want origin with similarity 1", matches[0])
	}
	if matches[1].Similarity >= matches[0].Similarity {
		t.Errorf("farther entry scored %v >= %v", matches[1].Similarity, matches[0].Similarity)
	}
	if matches[1].Similarity <= 0 {
		t.Errorf("L2 similarity must stay positive, got %v", matches[1].Similarity)
	}
}

func TestBackendSelectionByCatalogSize(t *testing.T) {
	ix := New(func(o *Options) { o.ExactThreshold = 5 })

	small := make([]Entry, 3)
	for i := range small {
		small[i] = Entry{Name: fmt.Sprintf("p%d", i), Vector: unit(8, i)}
	}
	if err := ix.Build(small, MetricInnerProduct); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := ix.Stats().Backend; got != "exact" {
		t.Errorf("backend for %d entries = %q, want exact", len(small), got)
	}

	large := make([]Entry, 6)
	for i := range large {
		large[i] = Entry{Name: fmt.Sprintf("p%d", i), Vector: unit(8, i)}
	}
	if err := ix.Build(large, MetricInnerProduct); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := ix.Stats().Backend; got != "hnsw" {
		t.Errorf("backend for %d entries = %q, want hnsw", len(large), got)
	}
}

func TestHNSWBackendFindsExactMatch(t *testing.T) {
	ix := New(func(o *Options) { o.ExactThreshold = 2 })

	entries := make([]Entry, 10)
	for i := range entries {
		entries[i] = Entry{Name: fmt.Sprintf("p%d", i), Vector: unit(16, i)}
	}
	if err := ix.Build(entries, MetricInnerProduct); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if ix.Stats().Backend != "hnsw" {
		t.Fatalf("expected hnsw backend, got %q", ix.Stats().Backend)
	}

	matches, err := ix.Query(unit(16, 7), 1)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "p7" {
		t.Fatalf("hnsw query = %+v, want p7", matches)
	}
	if math.Abs(matches[0].Similarity-1) > simTolerance {
		t.Errorf("self similarity = %v, want ~1", matches[0].Similarity)
	}
}

// mutationConsistency asserts the maintained index and a fresh build over
// the same logical set answer a probe identically.
func mutationConsistency(t *testing.T, ix *Index, probe []float32) {
	t.Helper()

	fresh := New(func(o *Options) { o.ExactThreshold = ix.opts.ExactThreshold })
	entries := ix.Entries()
	if len(entries) == 0 {
		return
	}
	if err := fresh.Build(entries, MetricInnerProduct); err != nil {
		t.Fatalf("fresh Build failed: %v", err)
	}

	got, err := ix.Query(probe, len(entries))
	if err != nil {
		t.Fatalf("maintained Query failed: %v", err)
	}
	want, err := fresh.Query(probe, len(entries))
	if err != nil {
		t.Fatalf("fresh Query failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("result lengths differ: %d vs %d", len(got), len(want))
	}
	for i := range got {
		if got[i].Name != want[i].Name {
			t.Errorf("result[%d] name %q != fresh %q", i, got[i].Name, want[i].Name)
		}
		if math.Abs(got[i].Similarity-want[i].Similarity) > simTolerance {
			t.Errorf("result[%d] similarity %v != fresh %v", i, got[i].Similarity, want[i].Similarity)
		}
	}
}

func TestInsertUpdateRemoveConsistentWithFreshBuild(t *testing.T) {
	ix := buildSmall(t)
	probe := []float32{0.7, 0.1, 0.2, 0.5, 0, 0, 0, 0}

	if err := ix.Insert("dave", unit(8, 3)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	mutationConsistency(t, ix, probe)

	if err := ix.Update("bob", unit(8, 4)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	mutationConsistency(t, ix, probe)

	if err := ix.Remove("alice"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	mutationConsistency(t, ix, probe)
}

func TestUpdateUnknownName(t *testing.T) {
	ix := buildSmall(t)
	if err := ix.Update("nobody", unit(8, 0)); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("Update(nobody) error = %v, want ErrNameNotFound", err)
	}
}

func TestRemoveUnknownName(t *testing.T) {
	ix := buildSmall(t)
	if err := ix.Remove("nobody"); !errors.Is(err, ErrNameNotFound) {
		t.Errorf("Remove(nobody) error = %v, want ErrNameNotFound", err)
	}
}

func TestRemoveLastEntryLeavesUntrained(t *testing.T) {
	ix := New()
	if err := ix.Build([]Entry{{Name: "only", Vector: unit(4, 0)}}, MetricInnerProduct); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := ix.Remove("only"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	matches, err := ix.Query(unit(4, 0), 1)
	if err != nil {
		t.Fatalf("Query after emptying index: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("emptied index returned %d matches, want 0", len(matches))
	}
	if ix.Stats().Trained {
		t.Error("emptied index still reports trained")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identities.idx")

	ix := buildSmall(t)
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := New()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Count() != 3 {
		t.Fatalf("loaded index has %d entries, want 3", loaded.Count())
	}

	matches, err := loaded.Query(unit(8, 2), 1)
	if err != nil {
		t.Fatalf("Query on loaded index: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "carol" {
		t.Errorf("loaded index query = %+v, want carol", matches)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	ix := New()
	if err := ix.Load(filepath.Join(t.TempDir(), "nope.idx")); err != nil {
		t.Errorf("Load of missing file returned error: %v", err)
	}
	if ix.Stats().Trained {
		t.Error("index trained after loading nothing")
	}
}

func TestSaveLoadRoundTripHNSW(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identities.idx")

	ix := New(func(o *Options) { o.ExactThreshold = 2 })
	entries := make([]Entry, 8)
	for i := range entries {
		entries[i] = Entry{Name: fmt.Sprintf("p%d", i), Vector: unit(16, i)}
	}
	if err := ix.Build(entries, MetricInnerProduct); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := ix.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := New(func(o *Options) { o.ExactThreshold = 2 })
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := loaded.Stats().Backend; got != "hnsw" {
		t.Errorf("loaded backend = %q, want hnsw", got)
	}
	matches, err := loaded.Query(unit(16, 5), 1)
	if err != nil {
		t.Fatalf("Query on loaded index: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "p5" {
		t.Errorf("loaded hnsw query = %+v, want p5", matches)
	}
}
