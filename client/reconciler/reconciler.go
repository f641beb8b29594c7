package reconciler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"nfcunha/vigil/core/models"

	"github.com/rs/zerolog/log"
)

// Source identifies where live telemetry currently comes from.
type Source int32

const (
	SourcePoll Source = iota
	SourcePush
)

func (s Source) String() string {
	if s == SourcePush {
		return "push"
	}
	return "poll"
}

// Stream is an open push channel delivering telemetry snapshots. Recv
// blocks until the next snapshot and returns an error once the channel closes.
type Stream interface {
	Recv(ctx context.Context) (*models.TelemetrySnapshot, error)
	Close() error
}

// Dialer opens push channels.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// Poller fetches one snapshot on demand.
type Poller interface {
	Poll(ctx context.Context) (*models.TelemetrySnapshot, error)
}

// Clock provides timers so tests can drive the state machine.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Config controls polling and reconnection.
type Config struct {
	PushEnabled    bool
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	HistoryLength  int
}

// DefaultReconnectDelay is used when Config.ReconnectDelay is zero.
const DefaultReconnectDelay = 5 * time.Second

// Reconciler feeds a Window from exactly one live source at a time. While a
// push channel is open nothing is polled; otherwise polling runs and the push
// channel is re-dialed every ReconnectDelay, indefinitely.
type Reconciler struct {
	dialer Dialer
	poller Poller
	cfg    Config
	clock  Clock
	window *Window

	source atomic.Int32

	mu       sync.Mutex
	onUpdate func(Source, models.TelemetrySnapshot)
}

// New creates a reconciler. dialer may be nil when push is disabled.
func New(dialer Dialer, poller Poller, cfg Config) *Reconciler {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if dialer == nil {
		cfg.PushEnabled = false
	}
	return &Reconciler{
		dialer: dialer,
		poller: poller,
		cfg:    cfg,
		clock:  realClock{},
		window: NewWindow(cfg.HistoryLength),
	}
}

// OnUpdate registers a callback invoked for every snapshot kept in the window.
func (r *Reconciler) OnUpdate(fn func(Source, models.TelemetrySnapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = fn
}

// Source returns the current live source.
func (r *Reconciler) Source() Source {
	return Source(r.source.Load())
}

// Window returns the shared history.
func (r *Reconciler) Window() *Window {
	return r.window
}

// Run drives the reconciler until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	dialNow := true
	for {
		stream, err := r.pollUntilPush(ctx, dialNow)
		if err != nil {
			return err
		}

		r.source.Store(int32(SourcePush))
		log.Info().Msg("Push channel open, polling suspended")
		r.consume(ctx, stream)
		_ = stream.Close()
		r.source.Store(int32(SourcePoll))
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info().Msg("Push channel closed, polling resumed")
		dialNow = false
	}
}

func (r *Reconciler) consume(ctx context.Context, stream Stream) {
	for {
		snap, err := stream.Recv(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("Push channel receive ended")
			return
		}
		r.apply(SourcePush, snap)
	}
}

type dialResult struct {
	stream Stream
	err    error
}

// pollUntilPush polls immediately and then every PollInterval while the push
// channel is dialed in the background, so a hanging handshake never holds up
// polling. The first dial starts at once when dialNow is set, otherwise after
// ReconnectDelay; failed dials are retried after ReconnectDelay. It returns
// the first stream that opens, or ctx's error. With push disabled it polls
// until ctx is cancelled.
func (r *Reconciler) pollUntilPush(ctx context.Context, dialNow bool) (Stream, error) {
	r.source.Store(int32(SourcePoll))

	var (
		dialed    <-chan dialResult
		reconnect <-chan time.Time
	)
	if r.cfg.PushEnabled {
		if dialNow {
			dialed = r.dial(ctx)
		} else {
			reconnect = r.clock.After(r.cfg.ReconnectDelay)
		}
	}

	r.poll(ctx)
	next := r.clock.After(r.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			if dialed != nil {
				go closeLate(dialed)
			}
			return nil, ctx.Err()
		case <-next:
			r.poll(ctx)
			next = r.clock.After(r.cfg.PollInterval)
		case <-reconnect:
			reconnect = nil
			dialed = r.dial(ctx)
		case res := <-dialed:
			dialed = nil
			if res.err == nil {
				return res.stream, nil
			}
			log.Debug().Err(res.err).Msg("Push channel unavailable")
			reconnect = r.clock.After(r.cfg.ReconnectDelay)
		}
	}
}

func (r *Reconciler) dial(ctx context.Context) <-chan dialResult {
	ch := make(chan dialResult, 1)
	go func() {
		stream, err := r.dialer.Dial(ctx)
		ch <- dialResult{stream: stream, err: err}
	}()
	return ch
}

// closeLate closes a stream whose dial finished after Run gave up on it.
func closeLate(dialed <-chan dialResult) {
	if res := <-dialed; res.stream != nil {
		_ = res.stream.Close()
	}
}

func (r *Reconciler) poll(ctx context.Context) {
	snap, err := r.poller.Poll(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Poll failed")
		return
	}
	r.apply(SourcePoll, snap)
}

func (r *Reconciler) apply(src Source, snap *models.TelemetrySnapshot) {
	if snap == nil || !r.window.Add(*snap) {
		return
	}
	r.mu.Lock()
	fn := r.onUpdate
	r.mu.Unlock()
	if fn != nil {
		fn(src, *snap)
	}
}
