// Package index implements the similarity index over enrolled identity
// embeddings. Small catalogs are answered with an exact linear scan; once
// the catalog reaches the configured threshold a build switches to an
// approximate HNSW graph. The backend choice is re-evaluated only when a
// build runs, never silently mid-session.
package index

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/vault-watch/internal/vecmath"
)

// Metric selects how stored vectors are compared.
type Metric string

const (
	// MetricInnerProduct compares L2-normalized vectors by dot product,
	// equivalent to cosine similarity. This is the default for face
	// embeddings.
	MetricInnerProduct Metric = "ip"
	// MetricL2 compares by Euclidean distance, converted to a similarity
	// score so callers can use one threshold regardless of backend.
	MetricL2 Metric = "l2"
)

// l2Scale controls the exponential decay that maps an L2 distance to a
// similarity score: sim = exp(-d / l2Scale). Distance 0 maps to 1.
const l2Scale = 10.0

// Entry is one labeled vector in the catalog.
type Entry struct {
	Name   string
	Vector []float32
}

// Match is a query result.
type Match struct {
	Name       string
	Similarity float64
}

// Options configures an Index.
type Options struct {
	// ExactThreshold is the catalog size at which a build switches from
	// the exact linear scan to the HNSW backend.
	ExactThreshold int
	// MaxNeighbors is the HNSW M parameter.
	MaxNeighbors int
	// EfSearch is the HNSW search beam width.
	EfSearch int
}

// DefaultOptions are tuned for 512-dim face embeddings.
var DefaultOptions = Options{
	ExactThreshold: 50,
	MaxNeighbors:   16,
	EfSearch:       100,
}

// Index holds the catalog of identity vectors and answers nearest-match
// queries. All methods are safe for concurrent use; mutations rebuild the
// backend under the write lock so a query never observes a partial rebuild.
type Index struct {
	mu   sync.RWMutex
	opts Options

	metric  Metric
	dim     int
	names   []string // insertion order; first entry wins similarity ties
	vectors map[string][]float32

	graph   *hnsw.Graph[string] // nil while the exact backend is active
	trained bool
	builtAt time.Time
}

// New creates an empty, untrained index. Queries against it return no
// results until the first successful Build.
func New(optFns ...func(o *Options)) *Index {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ExactThreshold < 1 {
		opts.ExactThreshold = 1
	}
	if opts.MaxNeighbors < 2 {
		opts.MaxNeighbors = DefaultOptions.MaxNeighbors
	}
	if opts.EfSearch < 1 {
		opts.EfSearch = DefaultOptions.EfSearch
	}
	return &Index{
		opts:    opts,
		vectors: make(map[string][]float32),
	}
}

// Build replaces the entire index content with entries. It fails with a
// *BuildError on empty input or inconsistent vector dimensions, in which
// case the previous index state is preserved untouched.
func (ix *Index) Build(entries []Entry, metric Metric) error {
	if len(entries) == 0 {
		return &BuildError{Reason: "no entries"}
	}

	dim := len(entries[0].Vector)
	if dim == 0 {
		return &BuildError{Reason: "empty vector for " + entries[0].Name}
	}
	for _, e := range entries[1:] {
		if len(e.Vector) != dim {
			return &BuildError{Reason: "inconsistent vector dimensions"}
		}
	}

	names := make([]string, 0, len(entries))
	vectors := make(map[string][]float32, len(entries))
	for _, e := range entries {
		if _, ok := vectors[e.Name]; ok {
			return &BuildError{Reason: "duplicate entry name " + e.Name}
		}
		v := e.Vector
		if metric == MetricInnerProduct {
			v = vecmath.Normalize(v)
		}
		stored := make([]float32, dim)
		copy(stored, v)
		names = append(names, e.Name)
		vectors[e.Name] = stored
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.metric = metric
	ix.dim = dim
	ix.names = names
	ix.vectors = vectors
	ix.graph = nil
	if len(names) >= ix.opts.ExactThreshold {
		ix.graph = ix.buildGraph()
	}
	ix.trained = true
	ix.builtAt = time.Now()
	return nil
}

// buildGraph constructs the HNSW backend from the current logical set.
// Caller must hold the write lock.
func (ix *Index) buildGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = ix.opts.MaxNeighbors
	g.Ml = 1.0 / float64(ix.opts.MaxNeighbors)
	g.EfSearch = ix.opts.EfSearch
	if ix.metric == MetricL2 {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	for _, name := range ix.names {
		g.Add(hnsw.MakeNode(name, ix.vectors[name]))
	}
	return g
}

// Query returns up to min(k, n) matches sorted descending by similarity.
// An untrained index returns no results and no error; that is the normal
// startup state, not a fault. Ties at identical similarity resolve to the
// entry inserted first.
func (ix *Index) Query(vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.trained || len(ix.names) == 0 {
		return nil, nil
	}
	if len(vector) != ix.dim {
		return nil, &BuildError{Reason: "query dimension mismatch"}
	}
	if k > len(ix.names) {
		k = len(ix.names)
	}

	if ix.graph != nil {
		return ix.queryGraph(vector, k), nil
	}
	return ix.queryExact(vector, k), nil
}

// queryExact scans every entry. Caller must hold at least the read lock.
func (ix *Index) queryExact(vector []float32, k int) []Match {
	matches := make([]Match, 0, len(ix.names))
	for _, name := range ix.names {
		matches = append(matches, Match{
			Name:       name,
			Similarity: ix.similarity(vector, ix.vectors[name]),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches[:k]
}

// queryGraph searches the HNSW backend and recomputes exact similarities
// from the stored vectors, so both backends report identical scores.
func (ix *Index) queryGraph(vector []float32, k int) []Match {
	neighbors := ix.graph.Search(vector, k)

	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		v, ok := ix.vectors[n.Key]
		if !ok {
			continue
		}
		matches = append(matches, Match{
			Name:       n.Key,
			Similarity: ix.similarity(vector, v),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func (ix *Index) similarity(query, stored []float32) float64 {
	if ix.metric == MetricL2 {
		return math.Exp(-vecmath.EuclideanDistance(query, stored) / l2Scale)
	}
	return vecmath.CosineSimilarity(query, stored)
}

// Insert adds a labeled vector and rebuilds the backend. Inserting a name
// that already exists replaces its vector, keeping the one-entry-per-name
// invariant.
func (ix *Index) Insert(name string, vector []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.checkMutation(vector); err != nil {
		return err
	}
	if _, ok := ix.vectors[name]; !ok {
		ix.names = append(ix.names, name)
	}
	ix.vectors[name] = ix.prepare(vector)
	ix.rebuild()
	return nil
}

// Update replaces the vector stored under name and rebuilds the backend.
func (ix *Index) Update(name string, vector []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.vectors[name]; !ok {
		return ErrNameNotFound
	}
	if err := ix.checkMutation(vector); err != nil {
		return err
	}
	ix.vectors[name] = ix.prepare(vector)
	ix.rebuild()
	return nil
}

// Remove deletes the entry under name and rebuilds the backend. Removing
// the last entry leaves the index untrained; queries then return empty.
func (ix *Index) Remove(name string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.vectors[name]; !ok {
		return ErrNameNotFound
	}
	delete(ix.vectors, name)
	for i, n := range ix.names {
		if n == name {
			ix.names = append(ix.names[:i], ix.names[i+1:]...)
			break
		}
	}
	if len(ix.names) == 0 {
		ix.graph = nil
		ix.trained = false
		return nil
	}
	ix.rebuild()
	return nil
}

// checkMutation validates a vector against the trained dimension.
// Mutating an untrained index adopts the vector's dimension and the
// inner-product metric.
func (ix *Index) checkMutation(vector []float32) error {
	if len(vector) == 0 {
		return &BuildError{Reason: "empty vector"}
	}
	if !ix.trained {
		ix.metric = MetricInnerProduct
		ix.dim = len(vector)
		ix.trained = true
		return nil
	}
	if len(vector) != ix.dim {
		return &BuildError{Reason: "inconsistent vector dimensions"}
	}
	return nil
}

func (ix *Index) prepare(vector []float32) []float32 {
	v := vector
	if ix.metric == MetricInnerProduct {
		v = vecmath.Normalize(v)
	}
	stored := make([]float32, len(v))
	copy(stored, v)
	return stored
}

// rebuild re-evaluates the backend policy over the current logical set.
// Caller must hold the write lock.
func (ix *Index) rebuild() {
	if len(ix.names) >= ix.opts.ExactThreshold {
		ix.graph = ix.buildGraph()
	} else {
		ix.graph = nil
	}
	ix.builtAt = time.Now()
}

// Count returns the number of indexed entries.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.names)
}

// Stats describes the current index state.
type Stats struct {
	Entries   int       `json:"entries"`
	Dimension int       `json:"dimension"`
	Metric    Metric    `json:"metric"`
	Backend   string    `json:"backend"`
	Trained   bool      `json:"trained"`
	BuiltAt   time.Time `json:"built_at"`
}

// Stats returns a snapshot of the index state.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	backend := "none"
	if ix.trained {
		backend = "exact"
		if ix.graph != nil {
			backend = "hnsw"
		}
	}
	return Stats{
		Entries:   len(ix.names),
		Dimension: ix.dim,
		Metric:    ix.metric,
		Backend:   backend,
		Trained:   ix.trained,
		BuiltAt:   ix.builtAt,
	}
}

// Entries returns a copy of the logical entry set in insertion order.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entries := make([]Entry, 0, len(ix.names))
	for _, name := range ix.names {
		v := make([]float32, len(ix.vectors[name]))
		copy(v, ix.vectors[name])
		entries = append(entries, Entry{Name: name, Vector: v})
	}
	return entries
}
