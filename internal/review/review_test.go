package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/vault-watch/internal/store"
	"github.com/kozaktomas/vault-watch/internal/store/mock"
)

type fakeEnroller struct {
	enrolled map[string][]float32
	err      error
}

func (f *fakeEnroller) Enroll(ctx context.Context, name string, vector []float32, image []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.enrolled == nil {
		f.enrolled = make(map[string][]float32)
	}
	f.enrolled[name] = vector
	return nil
}

func unit(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func seedDetection(t *testing.T, detections *mock.DetectionStore, id string, axis int, imageKey string) {
	t.Helper()
	err := detections.Append(context.Background(), &store.Detection{
		ID:         id,
		Embedding:  unit(8, axis),
		Confidence: 0.2,
		State:      store.StateUnreviewed,
		ImageKey:   imageKey,
		CapturedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seeding detection %s: %v", id, err)
	}
}

func TestDismiss(t *testing.T) {
	detections := mock.NewDetectionStore()
	q := NewQueue(detections, mock.NewImageStore(), &fakeEnroller{})
	ctx := context.Background()
	seedDetection(t, detections, "d1", 0, "")

	found, err := q.Dismiss(ctx, "d1")
	if err != nil || !found {
		t.Fatalf("Dismiss = %v, %v", found, err)
	}
	det, _, _ := detections.Get(ctx, "d1")
	if det.State != store.StateDismissed {
		t.Errorf("state = %s, want dismissed", det.State)
	}

	// Terminal states are immutable.
	found, err = q.Dismiss(ctx, "d1")
	if !found || !errors.Is(err, ErrAlreadyReviewed) {
		t.Errorf("second Dismiss = %v, %v; want true, ErrAlreadyReviewed", found, err)
	}

	found, err = q.Dismiss(ctx, "missing")
	if found || err != nil {
		t.Errorf("Dismiss(missing) = %v, %v; want false, nil", found, err)
	}
}

func TestEnroll(t *testing.T) {
	detections := mock.NewDetectionStore()
	images := mock.NewImageStore()
	enroller := &fakeEnroller{}
	q := NewQueue(detections, images, enroller)
	ctx := context.Background()

	seedDetection(t, detections, "d1", 0, "d1.jpg")
	images.Put(ctx, "d1.jpg", []byte{0xFF, 0xD8})

	found, err := q.Enroll(ctx, "d1", "Eve")
	if err != nil || !found {
		t.Fatalf("Enroll = %v, %v", found, err)
	}
	if _, ok := enroller.enrolled["Eve"]; !ok {
		t.Fatal("enroller never called")
	}
	det, _, _ := detections.Get(ctx, "d1")
	if det.State != store.StateEnrolled {
		t.Errorf("state = %s, want enrolled", det.State)
	}

	// Enrolling again hits the terminal-state guard.
	if _, err := q.Enroll(ctx, "d1", "Eve2"); !errors.Is(err, ErrAlreadyReviewed) {
		t.Errorf("re-Enroll error = %v, want ErrAlreadyReviewed", err)
	}
}

func TestEnrollConflictLeavesDetectionPending(t *testing.T) {
	detections := mock.NewDetectionStore()
	enroller := &fakeEnroller{err: &store.NameConflictError{Name: "Eve"}}
	q := NewQueue(detections, mock.NewImageStore(), enroller)
	ctx := context.Background()
	seedDetection(t, detections, "d1", 0, "")

	found, err := q.Enroll(ctx, "d1", "Eve")
	if !found {
		t.Fatal("Enroll reported detection missing")
	}
	var conflict *store.NameConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Enroll error = %v, want *NameConflictError", err)
	}

	det, _, _ := detections.Get(ctx, "d1")
	if det.State != store.StateUnreviewed {
		t.Errorf("state after conflict = %s, want unreviewed", det.State)
	}
}

func TestDeleteRemovesImage(t *testing.T) {
	detections := mock.NewDetectionStore()
	images := mock.NewImageStore()
	q := NewQueue(detections, images, &fakeEnroller{})
	ctx := context.Background()

	seedDetection(t, detections, "d1", 0, "d1.jpg")
	images.Put(ctx, "d1.jpg", []byte{0xFF, 0xD8})

	found, err := q.Delete(ctx, "d1")
	if err != nil || !found {
		t.Fatalf("Delete = %v, %v", found, err)
	}

	det, _, _ := detections.Get(ctx, "d1")
	if det.State != store.StateDeleted {
		t.Errorf("state = %s, want deleted", det.State)
	}
	if _, imgFound, _ := images.Fetch(ctx, "d1.jpg"); imgFound {
		t.Error("crop survived Delete")
	}

	// Delete works from terminal states too.
	detections.Append(ctx, &store.Detection{ID: "d2", Embedding: unit(8, 1), State: store.StateUnreviewed})
	q.Dismiss(ctx, "d2")
	if found, err := q.Delete(ctx, "d2"); err != nil || !found {
		t.Errorf("Delete of dismissed detection = %v, %v", found, err)
	}
}

func TestFindSimilar(t *testing.T) {
	detections := mock.NewDetectionStore()
	q := NewQueue(detections, mock.NewImageStore(), &fakeEnroller{})
	ctx := context.Background()

	// d1 and d2 are near-duplicates, d3 is orthogonal.
	detections.Append(ctx, &store.Detection{ID: "d1", Embedding: []float32{1, 0, 0, 0, 0, 0, 0, 0}, State: store.StateUnreviewed})
	detections.Append(ctx, &store.Detection{ID: "d2", Embedding: []float32{0.99, 0.14, 0, 0, 0, 0, 0, 0}, State: store.StateUnreviewed})
	detections.Append(ctx, &store.Detection{ID: "d3", Embedding: unit(8, 4), State: store.StateUnreviewed})

	similar, found, err := q.FindSimilar(ctx, "d1", 0.8, 10)
	if err != nil || !found {
		t.Fatalf("FindSimilar = %v, %v", found, err)
	}
	if len(similar) != 1 || similar[0].Detection.ID != "d2" {
		t.Fatalf("FindSimilar returned %d hits, want only d2", len(similar))
	}
	if similar[0].Similarity < 0.8 {
		t.Errorf("similarity = %v, want >= 0.8", similar[0].Similarity)
	}

	// Reviewed detections are excluded from the scan.
	q.Dismiss(ctx, "d2")
	similar, _, err = q.FindSimilar(ctx, "d1", 0.8, 10)
	if err != nil {
		t.Fatalf("FindSimilar after dismiss failed: %v", err)
	}
	if len(similar) != 0 {
		t.Errorf("dismissed detection still in similar set")
	}

	if _, found, _ := q.FindSimilar(ctx, "missing", 0.8, 10); found {
		t.Error("FindSimilar on missing id reported found")
	}
}

func TestFindSimilarThresholdInclusive(t *testing.T) {
	detections := mock.NewDetectionStore()
	q := NewQueue(detections, mock.NewImageStore(), &fakeEnroller{})
	ctx := context.Background()

	// An exact duplicate sits at similarity 1.0, the threshold bound
	// itself. It must still come back.
	detections.Append(ctx, &store.Detection{ID: "d1", Embedding: unit(8, 0), State: store.StateUnreviewed})
	detections.Append(ctx, &store.Detection{ID: "d2", Embedding: unit(8, 0), State: store.StateUnreviewed})

	similar, found, err := q.FindSimilar(ctx, "d1", 1.0, 10)
	if err != nil || !found {
		t.Fatalf("FindSimilar = %v, %v", found, err)
	}
	if len(similar) != 1 || similar[0].Detection.ID != "d2" {
		t.Fatalf("duplicate at the threshold not returned: %+v", similar)
	}
	if similar[0].Similarity != 1.0 {
		t.Errorf("similarity = %v, want 1.0", similar[0].Similarity)
	}
}

func TestList(t *testing.T) {
	detections := mock.NewDetectionStore()
	q := NewQueue(detections, mock.NewImageStore(), &fakeEnroller{})
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"d1", "d2", "d3"} {
		detections.Append(ctx, &store.Detection{
			ID:         id,
			Embedding:  unit(8, i),
			State:      store.StateUnreviewed,
			CapturedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	q.Dismiss(ctx, "d2")

	pending, err := q.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("List returned %d detections, want 2", len(pending))
	}
	if pending[0].ID != "d3" {
		t.Errorf("newest first: got %s, want d3", pending[0].ID)
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[store.StateUnreviewed] != 2 || counts[store.StateDismissed] != 1 {
		t.Errorf("Counts = %v", counts)
	}
}
