package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/vault-watch/internal/review"
	"github.com/kozaktomas/vault-watch/internal/store"
)

const (
	defaultListLimit        = 100
	defaultSimilarLimit     = 20
	defaultSimilarThreshold = 0.75
)

// UnknownsHandler exposes the review queue of captured unknown faces.
type UnknownsHandler struct {
	queue  *review.Queue
	images store.ImageStore
}

// NewUnknownsHandler creates a new review queue handler.
func NewUnknownsHandler(queue *review.Queue, images store.ImageStore) *UnknownsHandler {
	return &UnknownsHandler{queue: queue, images: images}
}

type detectionResponse struct {
	ID         string  `json:"id"`
	CameraID   string  `json:"camera_id"`
	Confidence float64 `json:"confidence"`
	BestMatch  string  `json:"best_match,omitempty"`
	ReviewFlag bool    `json:"review_flag"`
	State      string  `json:"state"`
	HasImage   bool    `json:"has_image"`
	CapturedAt string  `json:"captured_at"`
}

func toDetectionResponse(det store.Detection) detectionResponse {
	return detectionResponse{
		ID:         det.ID,
		CameraID:   det.CameraID,
		Confidence: det.Confidence,
		BestMatch:  det.BestMatch,
		ReviewFlag: det.ReviewFlag,
		State:      string(det.State),
		HasImage:   det.ImageKey != "",
		CapturedAt: det.CapturedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// List returns pending detections, newest first.
func (h *UnknownsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)

	detections, err := h.queue.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list detections")
		return
	}

	out := make([]detectionResponse, 0, len(detections))
	for _, det := range detections {
		out = append(out, toDetectionResponse(det))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"detections": out,
		"count":      len(out),
	})
}

// Get returns a single detection.
func (h *UnknownsHandler) Get(w http.ResponseWriter, r *http.Request) {
	det, found, err := h.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load detection")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "detection not found")
		return
	}
	respondJSON(w, http.StatusOK, toDetectionResponse(*det))
}

// Image serves the stored face crop of a detection.
func (h *UnknownsHandler) Image(w http.ResponseWriter, r *http.Request) {
	det, found, err := h.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load detection")
		return
	}
	if !found || det.ImageKey == "" {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}

	data, found, err := h.images.Fetch(r.Context(), det.ImageKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load image")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

// Dismiss rejects a pending detection.
func (h *UnknownsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	found, err := h.queue.Dismiss(r.Context(), chi.URLParam(r, "id"))
	h.respondTransition(w, "dismissed", found, err)
}

type enrollRequest struct {
	Name string `json:"name"`
}

// Enroll promotes a pending detection into a named identity.
func (h *UnknownsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	found, err := h.queue.Enroll(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		var conflict *store.NameConflictError
		if errors.As(err, &conflict) {
			respondError(w, http.StatusConflict, conflict.Error())
			return
		}
	}
	h.respondTransition(w, "enrolled", found, err)
}

// Delete removes a detection and its stored crop.
func (h *UnknownsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	found, err := h.queue.Delete(r.Context(), chi.URLParam(r, "id"))
	h.respondTransition(w, "deleted", found, err)
}

func (h *UnknownsHandler) respondTransition(w http.ResponseWriter, action string, found bool, err error) {
	if errors.Is(err, review.ErrAlreadyReviewed) {
		respondError(w, http.StatusConflict, "detection already reviewed")
		return
	}
	// A store failure also reports found=false; the error wins.
	if err != nil {
		respondError(w, http.StatusInternalServerError, "review transition failed")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "detection not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": action})
}

// Similar lists pending detections similar to the given one, for
// spotting repeated captures of the same person.
func (h *UnknownsHandler) Similar(w http.ResponseWriter, r *http.Request) {
	threshold := queryFloat(r, "threshold", defaultSimilarThreshold)
	limit := queryInt(r, "limit", defaultSimilarLimit)

	similar, found, err := h.queue.FindSimilar(r.Context(), chi.URLParam(r, "id"), threshold, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "similarity scan failed")
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "detection not found")
		return
	}

	type similarResponse struct {
		detectionResponse
		Similarity float64 `json:"similarity"`
	}
	out := make([]similarResponse, 0, len(similar))
	for _, s := range similar {
		out = append(out, similarResponse{
			detectionResponse: toDetectionResponse(s.Detection),
			Similarity:        s.Similarity,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"similar": out,
		"count":   len(out),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	if s := r.URL.Query().Get(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
			return f
		}
	}
	return def
}
