// Package tracker smooths face embeddings over consecutive frames.
//
// Single-frame embeddings are noisy: motion blur, partial occlusion or a
// bad angle can push a known face below the match threshold. The
// Aggregator keeps a short FIFO window of recent embeddings per track and
// answers with the renormalized mean, which is considerably more stable
// than any individual frame.
package tracker

import (
	"fmt"
	"sync"

	"github.com/kozaktomas/vault-watch/internal/vecmath"
)

// DefaultWindow is the number of frames averaged per track.
const DefaultWindow = 3

// DefaultStaleAfter is the number of cycles a track may go unseen
// before Sweep evicts it.
const DefaultStaleAfter = 300

type track struct {
	frames   [][]float32 // FIFO, oldest first, at most window entries
	lastSeen uint64
}

// Aggregator maintains per-track embedding windows. All methods are safe
// for concurrent use.
type Aggregator struct {
	mu         sync.Mutex
	window     int
	staleAfter uint64
	cycle      uint64
	tracks     map[string]*track
}

// NewAggregator creates an Aggregator with the given window size and
// staleness limit. Non-positive arguments fall back to the defaults.
func NewAggregator(window, staleAfter int) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Aggregator{
		window:     window,
		staleAfter: uint64(staleAfter),
		tracks:     make(map[string]*track),
	}
}

// Observe appends an embedding to the track's window, evicting the oldest
// frame once the window is full, and returns the renormalized mean of the
// window. The returned slice is a fresh copy. The embedding dimension
// must match the track's earlier frames.
func (a *Aggregator) Observe(key string, embedding []float32) ([]float32, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("tracker: empty embedding for track %q", key)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tr, ok := a.tracks[key]
	if !ok {
		tr = &track{frames: make([][]float32, 0, a.window)}
		a.tracks[key] = tr
	}
	if len(tr.frames) > 0 && len(tr.frames[0]) != len(embedding) {
		return nil, fmt.Errorf("tracker: embedding dimension %d does not match track %q dimension %d",
			len(embedding), key, len(tr.frames[0]))
	}

	frame := make([]float32, len(embedding))
	copy(frame, embedding)
	if len(tr.frames) == a.window {
		copy(tr.frames, tr.frames[1:])
		tr.frames[len(tr.frames)-1] = frame
	} else {
		tr.frames = append(tr.frames, frame)
	}
	tr.lastSeen = a.cycle

	return meanNormalized(tr.frames), nil
}

// meanNormalized averages the frames component-wise and renormalizes the
// result to unit length. A zero mean is returned as-is.
func meanNormalized(frames [][]float32) []float32 {
	dim := len(frames[0])
	sum := make([]float64, dim)
	for _, f := range frames {
		for i, v := range f {
			sum[i] += float64(v)
		}
	}
	mean := make([]float32, dim)
	n := float64(len(frames))
	for i, v := range sum {
		mean[i] = float32(v / n)
	}
	return vecmath.Normalize(mean)
}

// Forget drops the track immediately, regardless of staleness.
func (a *Aggregator) Forget(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tracks, key)
}

// Len reports how many frames the track currently holds.
func (a *Aggregator) Len(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tr, ok := a.tracks[key]; ok {
		return len(tr.frames)
	}
	return 0
}

// Size reports the number of live tracks.
func (a *Aggregator) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tracks)
}

// Sweep advances the processing cycle and evicts every track that has not
// been observed for more than the staleness limit. It is meant to be
// called once per processing loop iteration and returns the number of
// evicted tracks.
func (a *Aggregator) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cycle++
	evicted := 0
	for key, tr := range a.tracks {
		if a.cycle-tr.lastSeen > a.staleAfter {
			delete(a.tracks, key)
			evicted++
		}
	}
	return evicted
}
