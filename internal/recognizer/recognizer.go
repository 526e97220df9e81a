// Package recognizer implements the face recognition pipeline: frame
// smoothing, identity matching, adaptive reference updates and the
// capture of unknown faces for review.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/vault-watch/internal/config"
	"github.com/kozaktomas/vault-watch/internal/extractor"
	"github.com/kozaktomas/vault-watch/internal/index"
	"github.com/kozaktomas/vault-watch/internal/notify"
	"github.com/kozaktomas/vault-watch/internal/store"
	"github.com/kozaktomas/vault-watch/internal/tracker"
	"github.com/kozaktomas/vault-watch/internal/vecmath"
)

// Identity is an enrolled person held in the in-memory catalog.
type Identity struct {
	Name       string // display name as enrolled
	Key        string // normalized catalog key
	Embedding  []float32
	MatchCount int64
}

// Result describes what happened to a single processed face.
type Result struct {
	Matched     bool    `json:"matched"`
	Name        string  `json:"name,omitempty"`         // display name on match, empty otherwise
	Confidence  float64 `json:"confidence"`             // best similarity, reported even on non-match
	Saved       bool    `json:"saved"`                  // unknown face persisted for review
	DetectionID string  `json:"detection_id,omitempty"` // set when Saved
	ReviewFlag  bool    `json:"review_flag"`            // unknown was close enough to deserve review
}

// Recognizer owns the identity catalog and the similarity index and
// drives the recognition pipeline. All methods are safe for concurrent
// use.
type Recognizer struct {
	cfg      config.RecognitionConfig
	hnsw     config.HNSWConfig
	cameraID string

	mu      sync.RWMutex
	catalog map[string]*Identity // key -> identity

	index  *index.Index
	frames *tracker.Aggregator

	identities store.IdentityStore
	detections store.DetectionStore
	images     store.ImageStore
	alerter    notify.Alerter

	writer *asyncWriter
}

// New creates a Recognizer over the given stores. Call Reload to
// populate the catalog before processing frames.
func New(
	cfg *config.Config,
	identities store.IdentityStore,
	detections store.DetectionStore,
	images store.ImageStore,
	alerter notify.Alerter,
) *Recognizer {
	if alerter == nil {
		alerter = notify.Nop{}
	}
	rec := cfg.Recognition
	return &Recognizer{
		cfg:      rec,
		hnsw:     cfg.HNSW,
		cameraID: cfg.Camera.ID,
		catalog:  make(map[string]*Identity),
		index: index.New(func(o *index.Options) {
			o.ExactThreshold = rec.ExactSearchThreshold
			o.MaxNeighbors = cfg.HNSW.MaxNeighbors
			o.EfSearch = cfg.HNSW.EfSearch
		}),
		frames:     tracker.NewAggregator(rec.Window, rec.StaleAfter),
		identities: identities,
		detections: detections,
		images:     images,
		alerter:    alerter,
		writer:     newAsyncWriter(64),
	}
}

// Reload re-reads all identities from the store, rebuilds the catalog
// and the similarity index, and persists the index when a path is
// configured. The store is the source of truth; the index is a cache.
func (r *Recognizer) Reload(ctx context.Context) error {
	stored, err := r.identities.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading identities: %w", err)
	}

	catalog := make(map[string]*Identity, len(stored))
	entries := make([]index.Entry, 0, len(stored))
	for _, si := range stored {
		key := NormalizeName(si.Name)
		if _, dup := catalog[key]; dup {
			log.Printf("skipping identity %q: key %q already present", si.Name, key)
			continue
		}
		emb := vecmath.Normalize(si.Embedding)
		catalog[key] = &Identity{
			Name:       si.Name,
			Key:        key,
			Embedding:  emb,
			MatchCount: si.MatchCount,
		}
		entries = append(entries, index.Entry{Name: key, Vector: emb})
	}

	idx := index.New(func(o *index.Options) {
		o.ExactThreshold = r.cfg.ExactSearchThreshold
		o.MaxNeighbors = r.hnsw.MaxNeighbors
		o.EfSearch = r.hnsw.EfSearch
	})
	if len(entries) > 0 {
		if err := idx.Build(entries, index.MetricInnerProduct); err != nil {
			return fmt.Errorf("building index: %w", err)
		}
	}

	r.mu.Lock()
	r.catalog = catalog
	r.index = idx
	r.mu.Unlock()

	if r.cfg.IndexPath != "" {
		if err := idx.Save(r.cfg.IndexPath); err != nil {
			log.Printf("failed to persist index: %v", err)
		}
	}

	log.Printf("loaded %d identities, index backend: %s", len(catalog), idx.Stats().Backend)
	return nil
}

// Classify matches a vector against the catalog. On a match it returns
// the display name and the similarity; on a non-match the name is empty
// and the best similarity is still reported.
func (r *Recognizer) Classify(vector []float32) (string, float64) {
	key, conf := r.classify(vector)
	if key == "" || conf < r.cfg.MatchThreshold {
		return "", conf
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.catalog[key]; ok {
		return id.Name, conf
	}
	return "", conf
}

// classify returns the best catalog key and its similarity, no
// thresholding.
func (r *Recognizer) classify(vector []float32) (string, float64) {
	r.mu.RLock()
	idx := r.index
	r.mu.RUnlock()

	matches, err := idx.Query(vector, 1)
	if err != nil {
		log.Printf("index query failed: %v", err)
		return "", 0
	}
	if len(matches) == 0 {
		return "", 0
	}
	return matches[0].Name, matches[0].Similarity
}

// ProcessDetection runs one detected face through the pipeline: smooth
// the embedding over the track's recent frames, match it against the
// catalog, and either feed a match into the adaptive updater or capture
// an unknown face for review. Store and notification work happens off
// the hot path; their failures are logged, never returned.
func (r *Recognizer) ProcessDetection(
	ctx context.Context, trackKey string, embedding []float32, detScore float64, crop []byte,
) (Result, error) {
	// Low-quality detections are noise, not evidence.
	if detScore < r.cfg.MinDetScore {
		return Result{}, nil
	}

	smoothed, err := r.frames.Observe(trackKey, embedding)
	if err != nil {
		return Result{}, err
	}

	bestKey, conf := r.classify(smoothed)
	if bestKey != "" && conf >= r.cfg.MatchThreshold {
		name := r.recordMatch(bestKey, embedding)
		log.Printf("recognized %s on %s (similarity %.3f)", name, r.cameraID, conf)
		return Result{Matched: true, Name: name, Confidence: conf}, nil
	}

	// Unknown face. Anything too far from the catalog is not worth a
	// reviewer's time.
	if conf < r.cfg.SaveThreshold {
		return Result{Confidence: conf}, nil
	}

	bestName := r.displayName(bestKey)
	det := &store.Detection{
		ID:         uuid.NewString(),
		CameraID:   r.cameraID,
		TrackKey:   trackKey,
		Embedding:  smoothed,
		Confidence: conf,
		BestMatch:  bestName,
		ReviewFlag: conf >= r.cfg.ReviewThreshold,
		State:      store.StateUnreviewed,
		CapturedAt: time.Now().UTC(),
	}
	if len(crop) > 0 {
		det.ImageKey = det.ID + ".jpg"
	}

	r.saveUnknown(det, crop)

	return Result{
		Confidence:  conf,
		Saved:       true,
		DetectionID: det.ID,
		ReviewFlag:  det.ReviewFlag,
	}, nil
}

// saveUnknown persists the detection, its crop and the alert without
// blocking the caller.
func (r *Recognizer) saveUnknown(det *store.Detection, crop []byte) {
	d := *det
	r.writer.submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if d.ImageKey != "" {
			if err := r.images.Put(ctx, d.ImageKey, makeThumbnail(crop)); err != nil {
				log.Printf("failed to store face crop %s: %v", d.ImageKey, err)
				d.ImageKey = ""
			}
		}
		if err := r.detections.Append(ctx, &d); err != nil {
			log.Printf("failed to store detection %s: %v", d.ID, err)
			return
		}

		err := r.alerter.Notify(ctx, notify.Alert{
			CameraID:   d.CameraID,
			Detection:  d.ID,
			Confidence: d.Confidence,
			BestMatch:  d.BestMatch,
			CapturedAt: d.CapturedAt,
		})
		if err != nil {
			log.Printf("failed to send alert for detection %s: %v", d.ID, err)
		}
	})
}

// recordMatch counts a recognition and, every UpdateEvery-th match,
// folds the raw frame embedding into the identity's reference via an
// exponential moving average. Memory and index update first; the store
// write-through runs async and never rolls memory back.
func (r *Recognizer) recordMatch(key string, observed []float32) string {
	r.mu.Lock()
	id, ok := r.catalog[key]
	if !ok {
		r.mu.Unlock()
		return ""
	}
	id.MatchCount++
	name := id.Name
	count := id.MatchCount

	var updated []float32
	if r.cfg.AdaptiveUpdate && r.cfg.UpdateEvery > 0 && count%int64(r.cfg.UpdateEvery) == 0 {
		updated = blend(id.Embedding, observed, r.cfg.AdaptiveAlpha)
		id.Embedding = updated
	}
	idx := r.index
	r.mu.Unlock()

	if updated != nil {
		if err := idx.Update(key, updated); err != nil && !errors.Is(err, index.ErrNameNotFound) {
			log.Printf("failed to update index for %s: %v", name, err)
		}
		emb := updated
		r.writer.submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.identities.UpdateEmbedding(ctx, name, emb, count); err != nil {
				log.Printf("failed to persist adapted embedding for %s: %v", name, err)
			}
		})
		log.Printf("adapted reference embedding for %s (match %d)", name, count)
	}
	return name
}

// blend computes normalize(old*(1-alpha) + observed*alpha).
func blend(old, observed []float32, alpha float64) []float32 {
	if len(old) != len(observed) {
		return old
	}
	mixed := make([]float32, len(old))
	for i := range old {
		mixed[i] = float32(float64(old[i])*(1-alpha) + float64(observed[i])*alpha)
	}
	return vecmath.Normalize(mixed)
}

// Enroll adds a new identity to the store, catalog and index. A name
// that normalizes to an existing key is a conflict, never an overwrite.
func (r *Recognizer) Enroll(ctx context.Context, name string, vector []float32, image []byte) error {
	key := NormalizeName(name)
	if key == "" {
		return fmt.Errorf("empty identity name")
	}
	if len(vector) == 0 {
		return fmt.Errorf("empty embedding for identity %q", name)
	}
	emb := vecmath.Normalize(vector)

	r.mu.RLock()
	_, exists := r.catalog[key]
	r.mu.RUnlock()
	if exists {
		return &store.NameConflictError{Name: name}
	}

	// Store I/O runs unlocked so a slow write cannot stall frame
	// classification.
	err := r.identities.Create(ctx, store.Identity{Name: name, Embedding: emb})
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, raced := r.catalog[key]; raced {
		r.mu.Unlock()
		// A concurrent enrollment won the key. Back out the row we
		// just created; a failure here only leaves an orphan row.
		if _, err := r.identities.Delete(ctx, name); err != nil {
			log.Printf("failed to back out conflicting identity %s: %v", name, err)
		}
		return &store.NameConflictError{Name: name}
	}
	r.catalog[key] = &Identity{Name: name, Key: key, Embedding: emb}
	if err := r.index.Insert(key, emb); err != nil {
		log.Printf("failed to index enrolled identity %s: %v", name, err)
	}
	r.mu.Unlock()

	if len(image) > 0 {
		r.writer.submit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.images.Put(ctx, "identity/"+key+".jpg", makeThumbnail(image)); err != nil {
				log.Printf("failed to store enrollment image for %s: %v", name, err)
			}
		})
	}

	log.Printf("enrolled identity %s", name)
	return nil
}

// Remove deletes an identity from the store, catalog and index,
// reporting whether it existed.
func (r *Recognizer) Remove(ctx context.Context, name string) (bool, error) {
	key := NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.catalog[key]
	if !exists {
		return false, nil
	}

	if _, err := r.identities.Delete(ctx, id.Name); err != nil {
		return false, err
	}

	delete(r.catalog, key)
	if err := r.index.Remove(key); err != nil && !errors.Is(err, index.ErrNameNotFound) {
		log.Printf("failed to remove %s from index: %v", name, err)
	}

	log.Printf("removed identity %s", id.Name)
	return true, nil
}

// displayName resolves a catalog key to its display name.
func (r *Recognizer) displayName(key string) string {
	if key == "" {
		return ""
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.catalog[key]; ok {
		return id.Name
	}
	return ""
}

// Identities returns a snapshot of the catalog. Order is not
// guaranteed; callers sort as needed.
func (r *Recognizer) Identities() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Identity, 0, len(r.catalog))
	for _, id := range r.catalog {
		cp := *id
		cp.Embedding = append([]float32(nil), id.Embedding...)
		out = append(out, cp)
	}
	return out
}

// Sweep evicts stale frame-smoothing tracks. Call once per processing
// loop iteration.
func (r *Recognizer) Sweep() int {
	return r.frames.Sweep()
}

// IndexStats reports the similarity index state.
func (r *Recognizer) IndexStats() index.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Stats()
}

// SaveIndex persists the similarity index to the configured path.
// No-op when no path is configured.
func (r *Recognizer) SaveIndex() error {
	if r.cfg.IndexPath == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Save(r.cfg.IndexPath)
}

// ProcessFrame runs every face of a decoded frame through the pipeline.
// Track keys are derived from the camera and face index, which matches
// how the extractor orders faces between consecutive frames.
func (r *Recognizer) ProcessFrame(ctx context.Context, faces []extractor.Face, frame []byte) ([]Result, error) {
	results := make([]Result, 0, len(faces))
	for _, face := range faces {
		trackKey := fmt.Sprintf("%s/%d", r.cameraID, face.FaceIndex)
		res, err := r.ProcessDetection(ctx, trackKey, face.Embedding, face.DetScore, cropFace(frame, face.BBox))
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	r.Sweep()
	return results, nil
}

// Close drains pending store writes. The Recognizer must not be used
// afterwards.
func (r *Recognizer) Close() {
	r.writer.Close()
}
