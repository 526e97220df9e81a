// Package store defines the persistence contracts for identities,
// detections and captured face crops. Implementations live in the
// postgres and mock subpackages.
package store

import (
	"context"
	"time"
)

// ReviewState tracks where an unknown-face detection is in its review
// lifecycle.
type ReviewState string

const (
	// StateUnreviewed is the initial state of every saved detection.
	StateUnreviewed ReviewState = "unreviewed"
	// StateDismissed marks a detection a reviewer looked at and rejected.
	StateDismissed ReviewState = "dismissed"
	// StateEnrolled marks a detection promoted into a named identity.
	StateEnrolled ReviewState = "enrolled"
	// StateDeleted marks a detection removed by a reviewer. The row is
	// kept for audit, the stored image is not.
	StateDeleted ReviewState = "deleted"
)

// Valid reports whether s is one of the known review states.
func (s ReviewState) Valid() bool {
	switch s {
	case StateUnreviewed, StateDismissed, StateEnrolled, StateDeleted:
		return true
	}
	return false
}

// Identity is an enrolled person with a reference embedding.
type Identity struct {
	Name       string
	Embedding  []float32
	MatchCount int64
	EnrolledAt time.Time
	UpdatedAt  time.Time
}

// Detection is a single saved face observation, typically an unknown
// face queued for review.
type Detection struct {
	ID         string
	CameraID   string
	TrackKey   string
	Embedding  []float32
	Confidence float64
	BestMatch  string // closest enrolled name at capture time, may be empty
	ReviewFlag bool   // true when confidence was close enough to warrant review
	State      ReviewState
	ImageKey   string // key of the stored face crop, may be empty
	CapturedAt time.Time
	ReviewedAt *time.Time
}

// IdentityStore persists enrolled identities. Lookups report missing
// rows through the boolean return, not an error.
type IdentityStore interface {
	// LoadAll returns every enrolled identity.
	LoadAll(ctx context.Context) ([]Identity, error)
	// Get retrieves an identity by name.
	Get(ctx context.Context, name string) (*Identity, bool, error)
	// Create enrolls a new identity. Returns *NameConflictError when the
	// name is already taken.
	Create(ctx context.Context, id Identity) error
	// UpdateEmbedding overwrites the reference embedding and match count
	// of an existing identity.
	UpdateEmbedding(ctx context.Context, name string, embedding []float32, matchCount int64) error
	// Delete removes an identity, reporting whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
	// Count returns the number of enrolled identities.
	Count(ctx context.Context) (int, error)
}

// DetectionStore persists saved detections and their review lifecycle.
type DetectionStore interface {
	// Append stores a new detection.
	Append(ctx context.Context, det *Detection) error
	// Get retrieves a detection by ID.
	Get(ctx context.Context, id string) (*Detection, bool, error)
	// ListUnreviewed returns unreviewed detections, newest first,
	// at most limit of them.
	ListUnreviewed(ctx context.Context, limit int) ([]Detection, error)
	// SetReviewState transitions a detection to the given state,
	// reporting whether the detection existed.
	SetReviewState(ctx context.Context, id string, state ReviewState) (bool, error)
	// Delete removes a detection row entirely, reporting whether it
	// existed.
	Delete(ctx context.Context, id string) (bool, error)
	// FindSimilar returns unreviewed detections ordered by cosine
	// distance to the embedding, with their distances, skipping rows
	// farther than maxDistance.
	FindSimilar(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]Detection, []float64, error)
	// CountByState returns detection counts per review state.
	CountByState(ctx context.Context) (map[ReviewState]int, error)
}

// ImageStore persists captured face crops keyed by an opaque string.
type ImageStore interface {
	// Put stores an encoded image under the key, replacing any previous
	// content.
	Put(ctx context.Context, key string, data []byte) error
	// Fetch retrieves an image by key.
	Fetch(ctx context.Context, key string) ([]byte, bool, error)
	// Delete removes an image, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
}
