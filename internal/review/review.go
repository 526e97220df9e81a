// Package review manages the lifecycle of captured unknown faces. A
// detection starts Unreviewed and ends in exactly one terminal state:
// dismissed, enrolled as a new identity, or deleted.
package review

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kozaktomas/vault-watch/internal/store"
)

// ErrAlreadyReviewed is returned when a transition targets a detection
// that already reached a terminal state.
var ErrAlreadyReviewed = errors.New("review: detection already reviewed")

// Enroller promotes an unknown face into a named identity.
type Enroller interface {
	Enroll(ctx context.Context, name string, vector []float32, image []byte) error
}

// Similar is an unreviewed detection close to a reference detection.
type Similar struct {
	Detection  store.Detection
	Similarity float64
}

// Queue coordinates review operations across the detection store, the
// image store and the enroller.
type Queue struct {
	detections store.DetectionStore
	images     store.ImageStore
	enroller   Enroller
}

// NewQueue creates a review queue over the given stores.
func NewQueue(detections store.DetectionStore, images store.ImageStore, enroller Enroller) *Queue {
	return &Queue{detections: detections, images: images, enroller: enroller}
}

// List returns pending detections, newest first.
func (q *Queue) List(ctx context.Context, limit int) ([]store.Detection, error) {
	return q.detections.ListUnreviewed(ctx, limit)
}

// Get retrieves a single detection regardless of state.
func (q *Queue) Get(ctx context.Context, id string) (*store.Detection, bool, error) {
	return q.detections.Get(ctx, id)
}

// Dismiss marks an unreviewed detection as rejected. Reviewed
// detections are immutable; the boolean reports whether the detection
// exists.
func (q *Queue) Dismiss(ctx context.Context, id string) (bool, error) {
	det, found, err := q.detections.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if det.State != store.StateUnreviewed {
		return true, ErrAlreadyReviewed
	}
	return q.detections.SetReviewState(ctx, id, store.StateDismissed)
}

// Enroll promotes an unreviewed detection into a named identity using
// its captured embedding and crop. A duplicate name surfaces as a
// NameConflictError from the enroller and leaves the detection pending.
func (q *Queue) Enroll(ctx context.Context, id, name string) (bool, error) {
	det, found, err := q.detections.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if det.State != store.StateUnreviewed {
		return true, ErrAlreadyReviewed
	}

	var image []byte
	if det.ImageKey != "" {
		image, _, err = q.images.Fetch(ctx, det.ImageKey)
		if err != nil {
			log.Printf("failed to fetch crop %s for enrollment: %v", det.ImageKey, err)
			image = nil
		}
	}

	if err := q.enroller.Enroll(ctx, name, det.Embedding, image); err != nil {
		return true, err
	}

	if _, err := q.detections.SetReviewState(ctx, id, store.StateEnrolled); err != nil {
		// The identity exists, the detection just failed to move. Worst
		// case a reviewer sees a pending detection that now matches.
		return true, fmt.Errorf("identity %q created but detection not marked enrolled: %w", name, err)
	}
	return true, nil
}

// Delete marks the detection deleted and removes its stored crop. Works
// from any state.
func (q *Queue) Delete(ctx context.Context, id string) (bool, error) {
	det, found, err := q.detections.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if det.ImageKey != "" {
		if _, err := q.images.Delete(ctx, det.ImageKey); err != nil {
			log.Printf("failed to delete crop %s: %v", det.ImageKey, err)
		}
	}
	return q.detections.SetReviewState(ctx, id, store.StateDeleted)
}

// FindSimilar scans pending detections for faces similar to the given
// one, descending by cosine similarity, excluding the detection itself.
// Used to spot the same unknown person captured multiple times.
func (q *Queue) FindSimilar(ctx context.Context, id string, threshold float64, limit int) ([]Similar, bool, error) {
	det, found, err := q.detections.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	// Cosine distance and similarity are complementary; the bound is
	// inclusive, a candidate sitting exactly at the threshold counts.
	// Fetch one extra row to cover the self match.
	maxDistance := 1 - threshold
	candidates, distances, err := q.detections.FindSimilar(ctx, det.Embedding, limit+1, maxDistance)
	if err != nil {
		return nil, true, err
	}

	similar := make([]Similar, 0, len(candidates))
	for i, cand := range candidates {
		if cand.ID == id {
			continue
		}
		similar = append(similar, Similar{Detection: cand, Similarity: 1 - distances[i]})
		if len(similar) == limit {
			break
		}
	}
	return similar, true, nil
}

// Counts returns detection totals per review state for the stats
// endpoint.
func (q *Queue) Counts(ctx context.Context) (map[store.ReviewState]int, error) {
	return q.detections.CountByState(ctx)
}
