package handlers

import (
	"net/http"

	"github.com/kozaktomas/vault-watch/internal/recognizer"
	"github.com/kozaktomas/vault-watch/internal/review"
)

// StatsHandler reports catalog, index and review queue totals.
type StatsHandler struct {
	rec   *recognizer.Recognizer
	queue *review.Queue
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(rec *recognizer.Recognizer, queue *review.Queue) *StatsHandler {
	return &StatsHandler{rec: rec, queue: queue}
}

// Get returns the current system totals.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Counts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count detections")
		return
	}

	var totalMatches int64
	identities := h.rec.Identities()
	for _, id := range identities {
		totalMatches += id.MatchCount
	}

	idx := h.rec.IndexStats()
	detections := make(map[string]int, len(counts))
	for state, n := range counts {
		detections[string(state)] = n
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"identities":    len(identities),
		"total_matches": totalMatches,
		"detections":    detections,
		"index": map[string]any{
			"entries":   idx.Entries,
			"dimension": idx.Dimension,
			"backend":   idx.Backend,
			"trained":   idx.Trained,
		},
	})
}
