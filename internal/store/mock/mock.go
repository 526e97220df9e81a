// Package mock provides in-memory implementations of the store
// interfaces for testing, with per-method error injection.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/vault-watch/internal/store"
	"github.com/kozaktomas/vault-watch/internal/vecmath"
)

// IdentityStore is an in-memory store.IdentityStore.
type IdentityStore struct {
	mu         sync.RWMutex
	identities map[string]store.Identity

	// Error injection
	LoadAllError error
	GetError     error
	CreateError  error
	UpdateError  error
	DeleteError  error
	CountError   error
}

// NewIdentityStore creates an empty mock identity store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{identities: make(map[string]store.Identity)}
}

var _ store.IdentityStore = (*IdentityStore)(nil)

// Add seeds an identity without going through Create.
func (m *IdentityStore) Add(id store.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[id.Name] = id
}

func (m *IdentityStore) LoadAll(ctx context.Context) ([]store.Identity, error) {
	if m.LoadAllError != nil {
		return nil, m.LoadAllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.identities))
	for name := range m.identities {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]store.Identity, 0, len(names))
	for _, name := range names {
		out = append(out, m.identities[name])
	}
	return out, nil
}

func (m *IdentityStore) Get(ctx context.Context, name string) (*store.Identity, bool, error) {
	if m.GetError != nil {
		return nil, false, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.identities[name]
	if !ok {
		return nil, false, nil
	}
	return &id, true, nil
}

func (m *IdentityStore) Create(ctx context.Context, id store.Identity) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.identities[id.Name]; exists {
		return &store.NameConflictError{Name: id.Name}
	}
	now := time.Now()
	if id.EnrolledAt.IsZero() {
		id.EnrolledAt = now
	}
	id.UpdatedAt = now
	m.identities[id.Name] = id
	return nil
}

func (m *IdentityStore) UpdateEmbedding(ctx context.Context, name string, embedding []float32, matchCount int64) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.identities[name]
	if !ok {
		return fmt.Errorf("identity %q does not exist", name)
	}
	id.Embedding = append([]float32(nil), embedding...)
	id.MatchCount = matchCount
	id.UpdatedAt = time.Now()
	m.identities[name] = id
	return nil
}

func (m *IdentityStore) Delete(ctx context.Context, name string) (bool, error) {
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.identities[name]
	delete(m.identities, name)
	return ok, nil
}

func (m *IdentityStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// DetectionStore is an in-memory store.DetectionStore.
type DetectionStore struct {
	mu         sync.RWMutex
	detections map[string]store.Detection

	// Error injection
	AppendError      error
	GetError         error
	ListError        error
	SetStateError    error
	DeleteError      error
	FindSimilarError error
	CountError       error
}

// NewDetectionStore creates an empty mock detection store.
func NewDetectionStore() *DetectionStore {
	return &DetectionStore{detections: make(map[string]store.Detection)}
}

var _ store.DetectionStore = (*DetectionStore)(nil)

func (m *DetectionStore) Append(ctx context.Context, det *store.Detection) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *det
	if d.State == "" {
		d.State = store.StateUnreviewed
	}
	d.Embedding = append([]float32(nil), det.Embedding...)
	m.detections[d.ID] = d
	return nil
}

func (m *DetectionStore) Get(ctx context.Context, id string) (*store.Detection, bool, error) {
	if m.GetError != nil {
		return nil, false, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	det, ok := m.detections[id]
	if !ok {
		return nil, false, nil
	}
	return &det, true, nil
}

func (m *DetectionStore) ListUnreviewed(ctx context.Context, limit int) ([]store.Detection, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []store.Detection
	for _, det := range m.detections {
		if det.State == store.StateUnreviewed {
			out = append(out, det)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *DetectionStore) SetReviewState(ctx context.Context, id string, state store.ReviewState) (bool, error) {
	if m.SetStateError != nil {
		return false, m.SetStateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	det, ok := m.detections[id]
	if !ok {
		return false, nil
	}
	now := time.Now()
	det.State = state
	det.ReviewedAt = &now
	m.detections[id] = det
	return true, nil
}

func (m *DetectionStore) Delete(ctx context.Context, id string) (bool, error) {
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.detections[id]
	delete(m.detections, id)
	return ok, nil
}

func (m *DetectionStore) FindSimilar(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]store.Detection, []float64, error) {
	if m.FindSimilarError != nil {
		return nil, nil, m.FindSimilarError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		det  store.Detection
		dist float64
	}
	var hits []scored
	for _, det := range m.detections {
		if det.State != store.StateUnreviewed {
			continue
		}
		dist := 1 - vecmath.CosineSimilarity(embedding, det.Embedding)
		if dist <= maxDistance {
			hits = append(hits, scored{det, dist})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	dets := make([]store.Detection, len(hits))
	dists := make([]float64, len(hits))
	for i, h := range hits {
		dets[i] = h.det
		dists[i] = h.dist
	}
	return dets, dists, nil
}

func (m *DetectionStore) CountByState(ctx context.Context) (map[store.ReviewState]int, error) {
	if m.CountError != nil {
		return nil, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[store.ReviewState]int)
	for _, det := range m.detections {
		counts[det.State]++
	}
	return counts, nil
}

// ImageStore is an in-memory store.ImageStore.
type ImageStore struct {
	mu     sync.RWMutex
	images map[string][]byte

	// Error injection
	PutError    error
	FetchError  error
	DeleteError error
}

// NewImageStore creates an empty mock image store.
func NewImageStore() *ImageStore {
	return &ImageStore{images: make(map[string][]byte)}
}

var _ store.ImageStore = (*ImageStore)(nil)

func (m *ImageStore) Put(ctx context.Context, key string, data []byte) error {
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[key] = append([]byte(nil), data...)
	return nil
}

func (m *ImageStore) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	if m.FetchError != nil {
		return nil, false, m.FetchError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.images[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *ImageStore) Delete(ctx context.Context, key string) (bool, error) {
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.images[key]
	delete(m.images, key)
	return ok, nil
}
