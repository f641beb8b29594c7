package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"nfcunha/vigil/core/metrics"
	"nfcunha/vigil/core/models"

	"github.com/rs/zerolog/log"
)

// SnapshotSampler produces telemetry snapshots.
type SnapshotSampler interface {
	Sample(ctx context.Context) (*models.TelemetrySnapshot, error)
}

// Broadcaster fans messages out to push clients.
type Broadcaster interface {
	Broadcast(msg models.Envelope)
	ActiveCount() int
}

// TelemetryPublisher drives the sampler on a fixed period and broadcasts each
// snapshot. A tick is skipped when nobody is listening or when the previous
// tick has not finished broadcasting.
type TelemetryPublisher struct {
	sampler  SnapshotSampler
	hub      Broadcaster
	interval time.Duration
	metrics  *metrics.Metrics

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// NewTelemetryPublisher creates a publisher.
func NewTelemetryPublisher(sampler SnapshotSampler, hub Broadcaster, interval time.Duration, m *metrics.Metrics) *TelemetryPublisher {
	return &TelemetryPublisher{
		sampler:  sampler,
		hub:      hub,
		interval: interval,
		metrics:  m,
	}
}

// Run ticks until ctx is cancelled and waits for an outstanding sample.
func (p *TelemetryPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", p.interval).Msg("Telemetry publisher started")

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick starts one sample-and-broadcast cycle. It reports whether a cycle started.
func (p *TelemetryPublisher) tick(ctx context.Context) bool {
	if p.hub.ActiveCount() == 0 {
		p.metrics.SamplesSkipped.WithLabelValues("idle").Inc()
		return false
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		p.metrics.SamplesSkipped.WithLabelValues("in_flight").Inc()
		log.Debug().Msg("Previous telemetry sample still in flight, skipping tick")
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// Cleared only after Broadcast so ticks reach the hub in order.
		defer p.inFlight.Store(false)

		snap, err := p.sampler.Sample(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Telemetry sample failed")
			return
		}
		p.hub.Broadcast(models.Envelope{Type: models.MessageTelemetry, Data: snap})
	}()
	return true
}
