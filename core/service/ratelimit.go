package service

import (
	"sync"
	"time"

	"nfcunha/vigil/core/metrics"
	"nfcunha/vigil/core/models"
)

// Bucket names an independently configured rate limit.
type Bucket string

const (
	BucketAuth Bucket = "auth"
	BucketAPI  Bucket = "api"
)

// BucketLimit configures one bucket.
type BucketLimit struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of a rate limit check. A denied decision carries
// enough to build a 429 response.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

type windowKey struct {
	bucket   Bucket
	identity string
}

// RateLimiter is a fixed-window counter per (bucket, identity). A window
// resets entirely once it elapses, so a burst straddling a boundary can reach
// twice the limit; that is the accepted behavior.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[Bucket]BucketLimit
	windows map[windowKey]*models.RateWindow
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRateLimiter creates a limiter with the given bucket configuration.
func NewRateLimiter(limits map[Bucket]BucketLimit, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		windows: make(map[windowKey]*models.RateWindow),
		metrics: m,
		now:     time.Now,
	}
}

// Check counts one attempt for identity in bucket. Unknown buckets are always allowed.
func (l *RateLimiter) Check(identity string, bucket Bucket) Decision {
	cfg, ok := l.limits[bucket]
	if !ok {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := windowKey{bucket: bucket, identity: identity}
	w, ok := l.windows[key]
	if !ok || w.Expired(now) {
		w = &models.RateWindow{Start: now, Limit: cfg.Limit, Duration: cfg.Window}
		l.windows[key] = w
	}
	w.Count++

	resetAt := w.Start.Add(w.Duration)
	if w.Count > w.Limit {
		l.metrics.RateLimitDenials.WithLabelValues(string(bucket)).Inc()
		return Decision{
			Allowed:    false,
			Limit:      w.Limit,
			Remaining:  0,
			RetryAfter: resetAt.Sub(now),
			ResetAt:    resetAt,
		}
	}
	return Decision{
		Allowed:   true,
		Limit:     w.Limit,
		Remaining: w.Limit - w.Count,
		ResetAt:   resetAt,
	}
}

// Reset forgets the window for identity in bucket.
func (l *RateLimiter) Reset(identity string, bucket Bucket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, windowKey{bucket: bucket, identity: identity})
}

// Sweep drops elapsed windows and returns how many were removed.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if w.Expired(now) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}
