// Package reconciler keeps a client's live telemetry view consistent while it
// switches between push updates and periodic polling.
package reconciler

import (
	"sort"
	"sync"

	"nfcunha/vigil/core/models"
)

// DefaultHistoryLength is the number of points kept when none is configured.
const DefaultHistoryLength = 120

// Window is a bounded history of snapshots ordered by snapshot timestamp.
// Arrival order and source never affect position.
type Window struct {
	mu       sync.RWMutex
	capacity int
	points   []models.TelemetrySnapshot
}

// NewWindow creates a window holding at most capacity points.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultHistoryLength
	}
	return &Window{capacity: capacity, points: make([]models.TelemetrySnapshot, 0, capacity)}
}

// Add inserts s at its timestamp position and evicts the oldest point once
// the window is over capacity. A snapshot whose timestamp is already present,
// or that is older than everything in a full window, is ignored. Add reports
// whether s was kept.
func (w *Window) Add(s models.TelemetrySnapshot) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := sort.Search(len(w.points), func(i int) bool {
		return !w.points[i].Timestamp.Before(s.Timestamp)
	})
	if i < len(w.points) && w.points[i].Timestamp.Equal(s.Timestamp) {
		return false
	}
	if i == 0 && len(w.points) == w.capacity {
		return false
	}

	w.points = append(w.points, models.TelemetrySnapshot{})
	copy(w.points[i+1:], w.points[i:])
	w.points[i] = s

	if len(w.points) > w.capacity {
		w.points = append(w.points[:0], w.points[1:]...)
	}
	return true
}

// Points returns a copy of the history, oldest first.
func (w *Window) Points() []models.TelemetrySnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]models.TelemetrySnapshot, len(w.points))
	copy(out, w.points)
	return out
}

// Latest returns the newest snapshot.
func (w *Window) Latest() (models.TelemetrySnapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.points) == 0 {
		return models.TelemetrySnapshot{}, false
	}
	return w.points[len(w.points)-1], true
}

// Len returns the number of points held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.points)
}
