package models

import "time"

// RateWindow is a fixed-window request counter for one identity.
type RateWindow struct {
	Start    time.Time
	Count    int
	Limit    int
	Duration time.Duration
}

// Expired reports whether the window has elapsed at the given time.
func (w *RateWindow) Expired(now time.Time) bool {
	return !now.Before(w.Start.Add(w.Duration))
}
