package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/vault-watch/internal/store"
	"github.com/pgvector/pgvector-go"
)

// DetectionRepository provides PostgreSQL-backed detection storage with
// pgvector similarity queries.
type DetectionRepository struct {
	pool *Pool
}

// NewDetectionRepository creates a new PostgreSQL detection repository.
func NewDetectionRepository(pool *Pool) *DetectionRepository {
	return &DetectionRepository{pool: pool}
}

var _ store.DetectionStore = (*DetectionRepository)(nil)

const detectionColumns = `id, camera_id, track_key, embedding, confidence,
	best_match, review_flag, state, image_key, captured_at, reviewed_at`

// Append stores a new detection.
func (r *DetectionRepository) Append(ctx context.Context, det *store.Detection) error {
	state := det.State
	if state == "" {
		state = store.StateUnreviewed
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO detections
			(id, camera_id, track_key, embedding, confidence,
			 best_match, review_flag, state, image_key, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, det.ID, det.CameraID, det.TrackKey, pgvector.NewVector(det.Embedding),
		det.Confidence, det.BestMatch, det.ReviewFlag, string(state),
		det.ImageKey, det.CapturedAt)
	if err != nil {
		return transient("insert detection", err)
	}
	return nil
}

// Get retrieves a detection by ID.
func (r *DetectionRepository) Get(ctx context.Context, id string) (*store.Detection, bool, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT "+detectionColumns+" FROM detections WHERE id = $1", id)

	det, err := scanDetection(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &det, true, nil
}

// ListUnreviewed returns unreviewed detections, newest first.
func (r *DetectionRepository) ListUnreviewed(ctx context.Context, limit int) ([]store.Detection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+detectionColumns+`
		FROM detections
		WHERE state = $1
		ORDER BY captured_at DESC
		LIMIT $2
	`, string(store.StateUnreviewed), limit)
	if err != nil {
		return nil, transient("list unreviewed detections", err)
	}
	defer rows.Close()

	return collectDetections(rows)
}

// SetReviewState transitions a detection to the given state.
func (r *DetectionRepository) SetReviewState(ctx context.Context, id string, state store.ReviewState) (bool, error) {
	if !state.Valid() {
		return false, fmt.Errorf("invalid review state %q", state)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE detections
		SET state = $2, reviewed_at = NOW()
		WHERE id = $1
	`, id, string(state))
	if err != nil {
		return false, transient("update detection state", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, transient("update detection state", err)
	}
	return affected > 0, nil
}

// Delete removes a detection row entirely.
func (r *DetectionRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM detections WHERE id = $1", id)
	if err != nil {
		return false, transient("delete detection", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, transient("delete detection", err)
	}
	return affected > 0, nil
}

// FindSimilar returns unreviewed detections at or below maxDistance,
// ordered by cosine distance to the embedding, with their distances.
func (r *DetectionRepository) FindSimilar(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]store.Detection, []float64, error) {
	query := `
		SELECT ` + detectionColumns + `,
		       embedding <=> $1::vector AS distance
		FROM detections
		WHERE state = $2 AND embedding <=> $1::vector <= $3
		ORDER BY distance
		LIMIT $4
	`

	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx, query, vec, string(store.StateUnreviewed), maxDistance, limit)
	if err != nil {
		return nil, nil, transient("query similar detections", err)
	}
	defer rows.Close()

	var detections []store.Detection
	var distances []float64
	for rows.Next() {
		var dist float64
		det, err := scanDetectionRow(rows, &dist)
		if err != nil {
			return nil, nil, err
		}
		detections = append(detections, det)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, transient("iterate similar detections", err)
	}
	return detections, distances, nil
}

// CountByState returns detection counts per review state.
func (r *DetectionRepository) CountByState(ctx context.Context) (map[store.ReviewState]int, error) {
	rows, err := r.pool.Query(ctx, "SELECT state, COUNT(*) FROM detections GROUP BY state")
	if err != nil {
		return nil, transient("count detections", err)
	}
	defer rows.Close()

	counts := make(map[store.ReviewState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan detection count: %w", err)
		}
		counts[store.ReviewState(state)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, transient("iterate detection counts", err)
	}
	return counts, nil
}

func collectDetections(rows *sql.Rows) ([]store.Detection, error) {
	var detections []store.Detection
	for rows.Next() {
		det, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		detections = append(detections, det)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("iterate detections", err)
	}
	return detections, nil
}

func scanDetection(scanner interface{ Scan(...any) error }) (store.Detection, error) {
	return scanDetectionRow(scanner)
}

// scanDetectionRow scans the standard detection columns, with optional
// extra scan destinations appended (e.g. a distance column).
func scanDetectionRow(scanner interface{ Scan(...any) error }, extraDest ...any) (store.Detection, error) {
	var det store.Detection
	var vec pgvector.Vector
	var state string
	var reviewedAt sql.NullTime

	dest := make([]any, 0, 11+len(extraDest))
	dest = append(dest,
		&det.ID,
		&det.CameraID,
		&det.TrackKey,
		&vec,
		&det.Confidence,
		&det.BestMatch,
		&det.ReviewFlag,
		&state,
		&det.ImageKey,
		&det.CapturedAt,
		&reviewedAt,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return det, err
		}
		return det, fmt.Errorf("scan detection: %w", err)
	}

	det.Embedding = vec.Slice()
	det.State = store.ReviewState(state)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		det.ReviewedAt = &t
	}
	return det, nil
}
