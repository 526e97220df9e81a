package handlers

import (
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/vault-watch/internal/extractor"
	"github.com/kozaktomas/vault-watch/internal/recognizer"
	"github.com/kozaktomas/vault-watch/internal/store"
)

// maxUploadBytes bounds enrollment and classification uploads.
const maxUploadBytes = 16 << 20

// IdentitiesHandler manages the enrolled identity catalog.
type IdentitiesHandler struct {
	rec      *recognizer.Recognizer
	detector *extractor.Client
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(rec *recognizer.Recognizer, detector *extractor.Client) *IdentitiesHandler {
	return &IdentitiesHandler{rec: rec, detector: detector}
}

type identityResponse struct {
	Name       string `json:"name"`
	Key        string `json:"key"`
	MatchCount int64  `json:"match_count"`
}

// List returns all enrolled identities.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities := h.rec.Identities()
	sort.Slice(identities, func(i, j int) bool { return identities[i].Key < identities[j].Key })

	out := make([]identityResponse, 0, len(identities))
	for _, id := range identities {
		out = append(out, identityResponse{Name: id.Name, Key: id.Key, MatchCount: id.MatchCount})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": out,
		"count":      len(out),
	})
}

// Enroll registers a new identity from an uploaded face photo. The photo
// must contain exactly one face.
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	name, image, ok := readNameAndImage(w, r)
	if !ok {
		return
	}

	faces, err := h.detector.DetectFaces(r.Context(), image)
	if err != nil {
		respondError(w, http.StatusBadGateway, "face extraction failed")
		return
	}
	if len(faces) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "no face found in image")
		return
	}
	if len(faces) > 1 {
		respondError(w, http.StatusUnprocessableEntity, "image contains more than one face")
		return
	}

	if err := h.rec.Enroll(r.Context(), name, faces[0].Embedding, image); err != nil {
		var conflict *store.NameConflictError
		if errors.As(err, &conflict) {
			respondError(w, http.StatusConflict, conflict.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "enrollment failed")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"name": name})
}

// Delete removes an identity by name.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	existed, err := h.rec.Remove(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to remove identity")
		return
	}
	if !existed {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// Classify matches an uploaded photo against the catalog without
// mutating any state. Useful for testing thresholds.
func (h *IdentitiesHandler) Classify(w http.ResponseWriter, r *http.Request) {
	image, ok := readImage(w, r)
	if !ok {
		return
	}

	faces, err := h.detector.DetectFaces(r.Context(), image)
	if err != nil {
		respondError(w, http.StatusBadGateway, "face extraction failed")
		return
	}

	type classification struct {
		FaceIndex  int     `json:"face_index"`
		Name       string  `json:"name,omitempty"`
		Matched    bool    `json:"matched"`
		Confidence float64 `json:"confidence"`
		DetScore   float64 `json:"det_score"`
	}
	out := make([]classification, 0, len(faces))
	for _, face := range faces {
		name, conf := h.rec.Classify(face.Embedding)
		out = append(out, classification{
			FaceIndex:  face.FaceIndex,
			Name:       name,
			Matched:    name != "",
			Confidence: conf,
			DetScore:   face.DetScore,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"faces_count": len(out),
		"faces":       out,
	})
}

// readNameAndImage parses a multipart enrollment request.
func readNameAndImage(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart request")
		return "", nil, false
	}
	name := r.FormValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return "", nil, false
	}
	image, ok := readImage(w, r)
	return name, image, ok
}

// readImage reads the uploaded file part.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return nil, false
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return nil, false
	}
	return image, true
}
