package index

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/coder/hnsw"
)

const metadataVersion = 1

// Metadata is the sidecar written next to a saved index, used to validate
// a cached index at load time.
type Metadata struct {
	Count     int       `json:"count"`
	Dimension int       `json:"dimension"`
	Metric    Metric    `json:"metric"`
	BuiltAt   time.Time `json:"built_at"`
	Version   int       `json:"version"`
}

// Save persists the index for restart continuity: the logical entry set
// (gob, path+".entries"), a JSON metadata sidecar (path+".meta") and, when
// the HNSW backend is active, the exported graph at path. Saving an
// untrained index removes any stale files instead.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.trained || len(ix.names) == 0 {
		_ = os.Remove(path)
		_ = os.Remove(path + ".entries")
		_ = os.Remove(path + ".meta")
		return nil
	}

	entries := make([]Entry, 0, len(ix.names))
	for _, name := range ix.names {
		entries = append(entries, Entry{Name: name, Vector: ix.vectors[name]})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("encoding index entries: %w", err)
	}
	if err := os.WriteFile(path+".entries", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing entries file: %w", err)
	}

	meta := Metadata{
		Count:     len(ix.names),
		Dimension: ix.dim,
		Metric:    ix.metric,
		BuiltAt:   ix.builtAt,
		Version:   metadataVersion,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling index metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("writing metadata file: %w", err)
	}

	if ix.graph != nil {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating graph file: %w", err)
		}
		if err := ix.graph.Export(f); err != nil {
			_ = f.Close()
			return fmt.Errorf("exporting graph: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing graph file: %w", err)
		}
	} else {
		_ = os.Remove(path)
	}

	return nil
}

// Load restores an index saved by Save. A missing entries file is not an
// error; the index simply stays untrained and gets rebuilt from the
// identity store. When the HNSW backend is selected and an exported graph
// exists on disk, the graph is loaded instead of rebuilt.
func (ix *Index) Load(path string) error {
	data, err := os.ReadFile(path + ".entries")
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading entries file: %w", err)
	}

	var entries []Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return fmt.Errorf("decoding entries file: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	metric := MetricInnerProduct
	if metaData, err := os.ReadFile(path + ".meta"); err == nil {
		var meta Metadata
		if err := json.Unmarshal(metaData, &meta); err == nil && meta.Metric != "" {
			metric = meta.Metric
		}
	}

	if err := ix.Build(entries, metric); err != nil {
		return fmt.Errorf("rebuilding loaded index: %w", err)
	}

	// Prefer the exported graph over the rebuild when one is on disk.
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.graph != nil {
		if saved, err := hnsw.LoadSavedGraph[string](path); err == nil {
			ix.graph = saved.Graph
			ix.graph.M = ix.opts.MaxNeighbors
			ix.graph.Ml = 1.0 / float64(ix.opts.MaxNeighbors)
			ix.graph.EfSearch = ix.opts.EfSearch
		}
	}
	return nil
}
