package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"nfcunha/vigil/core/models"

	"github.com/rs/zerolog/log"
)

// ConnectionLister returns the current security view of the host.
type ConnectionLister interface {
	Connections() SecurityConnections
}

// SecurityWatcher polls remote sessions and raises an alert for each one
// that was not present on the previous poll.
type SecurityWatcher struct {
	lister   ConnectionLister
	hub      Broadcaster
	interval time.Duration
	now      func() time.Time

	known  map[string]bool
	primed bool
}

// NewSecurityWatcher creates a watcher.
func NewSecurityWatcher(lister ConnectionLister, hub Broadcaster, interval time.Duration) *SecurityWatcher {
	return &SecurityWatcher{
		lister:   lister,
		hub:      hub,
		interval: interval,
		now:      time.Now,
		known:    make(map[string]bool),
	}
}

// Run polls until ctx is cancelled.
func (w *SecurityWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check compares the current sessions with the previous poll. Sessions seen
// on the first poll are recorded without alerting. Returns alerts raised.
func (w *SecurityWatcher) check() int {
	current := make(map[string]bool)
	raised := 0

	for _, s := range w.lister.Connections().Sessions {
		key := s.RemoteAddr + ":" + formatPort(s.RemotePort) + "->" + formatPort(s.LocalPort)
		current[key] = true
		if !w.primed || w.known[key] {
			continue
		}
		raised++
		log.Warn().Str("remote", s.RemoteAddr).Uint64("port", s.LocalPort).Msg("New remote session")
		w.hub.Broadcast(models.Envelope{
			Type: models.MessageSecurityAlert,
			Data: models.SecurityAlert{
				Level:      "warning",
				Message:    fmt.Sprintf("New remote session on port %d", s.LocalPort),
				RemoteAddr: s.RemoteAddr,
				Timestamp:  w.now().UTC(),
			},
		})
	}

	w.known = current
	w.primed = true
	return raised
}

func formatPort(p uint64) string {
	return strconv.FormatUint(p, 10)
}
