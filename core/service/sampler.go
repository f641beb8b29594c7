package service

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"nfcunha/vigil/core/metrics"
	"nfcunha/vigil/core/models"
	"nfcunha/vigil/utils/hostinfo"

	"github.com/rs/zerolog/log"
)

// Sampler turns host metric readings into telemetry snapshots. Calls are
// serialized; CPU and network rates are deltas against the previous call.
type Sampler struct {
	source  hostinfo.Source
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	prevCPU *hostinfo.CPUTimes
	prevNet *hostinfo.NetCounters
	// prevNetAt is when prevNet was read; it only moves on a successful read.
	prevNetAt time.Time
}

// NewSampler creates a sampler over source.
func NewSampler(source hostinfo.Source, m *metrics.Metrics) *Sampler {
	return &Sampler{
		source:  source,
		metrics: m,
		now:     time.Now,
	}
}

// Sample collects one snapshot. A failing source is replaced by zero (or
// UptimeUnknown for uptime) and sampling continues; ErrCollectionFailed is
// returned only when every source failed.
func (s *Sampler) Sample(ctx context.Context) (*models.TelemetrySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	defer func() { s.metrics.SampleDuration.Observe(time.Since(started).Seconds()) }()

	now := s.now()
	snap := &models.TelemetrySnapshot{
		Mounts:    []models.MountUsage{},
		Uptime:    models.UptimeUnknown,
		Timestamp: now.UTC(),
	}
	failed := 0

	if cpu, err := s.source.CPUTimes(); err != nil {
		s.sourceFailed("cpu", err)
		failed++
	} else {
		snap.CPU = round1(clampPercent(cpuPercent(s.prevCPU, cpu)))
		s.prevCPU = &cpu
	}

	if mem, err := s.source.Memory(); err != nil {
		s.sourceFailed("memory", err)
		failed++
	} else if mem.Total > 0 {
		used := float64(mem.Total) - float64(mem.Available)
		snap.Memory = round1(clampPercent(used / float64(mem.Total) * 100))
	}

	if counters, err := s.source.NetCounters(); err != nil {
		s.sourceFailed("network", err)
		failed++
	} else {
		snap.Network = s.throughput(counters, now)
		s.prevNet = &counters
		s.prevNetAt = now
	}

	if mounts, err := s.source.Mounts(); err != nil {
		s.sourceFailed("storage", err)
		failed++
	} else {
		snap.Mounts = mountUsage(mounts)
		snap.Storage = SelectStorage(snap.Mounts)
	}

	if up, err := s.source.Uptime(); err != nil {
		s.sourceFailed("uptime", err)
		failed++
	} else {
		snap.Uptime = int64(up / time.Second)
	}

	if failed == 5 {
		return nil, ErrCollectionFailed
	}
	return snap, nil
}

func (s *Sampler) sourceFailed(source string, err error) {
	s.metrics.SourceFailures.WithLabelValues(source).Inc()
	log.Debug().Err(err).Str("source", source).Msg("Metric source unavailable, substituting zero")
}

// throughput converts cumulative byte counters into KB/s since the previous
// successful counter read. The first sample and counter resets report zero.
func (s *Sampler) throughput(cur hostinfo.NetCounters, now time.Time) models.NetworkThroughput {
	if s.prevNet == nil || s.prevNetAt.IsZero() {
		return models.NetworkThroughput{}
	}
	elapsed := now.Sub(s.prevNetAt).Seconds()
	if elapsed <= 0 {
		return models.NetworkThroughput{}
	}
	rate := func(prev, cur uint64) float64 {
		if cur < prev {
			return 0
		}
		return round2(float64(cur-prev) / elapsed / 1024)
	}
	return models.NetworkThroughput{
		RxKBps: rate(s.prevNet.RxBytes, cur.RxBytes),
		TxKBps: rate(s.prevNet.TxBytes, cur.TxBytes),
	}
}

// cpuPercent is the busy share of CPU time between two readings. Without a
// previous reading it falls back to the ratio since boot.
func cpuPercent(prev *hostinfo.CPUTimes, cur hostinfo.CPUTimes) float64 {
	if prev == nil {
		if cur.Total() <= 0 {
			return 0
		}
		return cur.Busy / cur.Total() * 100
	}
	busy := cur.Busy - prev.Busy
	total := cur.Total() - prev.Total()
	if total <= 0 || busy < 0 {
		return 0
	}
	return busy / total * 100
}

// mountUsage de-duplicates mounts by mount point (the last entry wins, as the
// kernel stacks later mounts on top) and sorts them by mount point.
func mountUsage(mounts []hostinfo.Mount) []models.MountUsage {
	byPoint := make(map[string]hostinfo.Mount, len(mounts))
	for _, m := range mounts {
		byPoint[m.MountPoint] = m
	}

	out := make([]models.MountUsage, 0, len(byPoint))
	for _, m := range byPoint {
		pct := 0.0
		if m.TotalBytes > 0 {
			pct = round1(clampPercent(float64(m.UsedBytes) / float64(m.TotalBytes) * 100))
		}
		out = append(out, models.MountUsage{
			MountPoint: m.MountPoint,
			FSType:     m.FSType,
			TotalBytes: m.TotalBytes,
			UsedBytes:  m.UsedBytes,
			Percent:    pct,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MountPoint < out[j].MountPoint })
	return out
}

// SelectStorage picks the headline storage percentage: the "/" mount when
// present, otherwise the first mount in mount point order, otherwise zero.
// mounts must already be de-duplicated and sorted.
func SelectStorage(mounts []models.MountUsage) float64 {
	for _, m := range mounts {
		if m.MountPoint == "/" {
			return m.Percent
		}
	}
	if len(mounts) > 0 {
		return mounts[0].Percent
	}
	return 0
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
