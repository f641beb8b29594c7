package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nfcunha/vigil/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu      sync.Mutex
	waiters map[time.Duration][]chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{waiters: make(map[time.Duration][]chan time.Time)}
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.waiters[d] = append(c.waiters[d], ch)
	return ch
}

func (c *manualClock) Pending(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters[d])
}

// Fire releases every waiter registered for d.
func (c *manualClock) Fire(d time.Duration) {
	c.mu.Lock()
	chans := c.waiters[d]
	delete(c.waiters, d)
	c.mu.Unlock()
	for _, ch := range chans {
		ch <- time.Now()
	}
}

type chanStream struct {
	snaps  chan *models.TelemetrySnapshot
	closed chan struct{}
	once   sync.Once
}

func newChanStream() *chanStream {
	return &chanStream{snaps: make(chan *models.TelemetrySnapshot, 8), closed: make(chan struct{})}
}

func (s *chanStream) Recv(ctx context.Context) (*models.TelemetrySnapshot, error) {
	select {
	case snap := <-s.snaps:
		return snap, nil
	case <-s.closed:
		return nil, errors.New("closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type scriptedDialer struct {
	mu      sync.Mutex
	streams []*chanStream
	dials   atomic.Int32
}

func (d *scriptedDialer) Dial(context.Context) (Stream, error) {
	d.dials.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil, errors.New("connection refused")
	}
	s := d.streams[0]
	d.streams = d.streams[1:]
	return s, nil
}

type countingPoller struct {
	calls atomic.Int32
	base  time.Time
}

func (p *countingPoller) Poll(context.Context) (*models.TelemetrySnapshot, error) {
	n := p.calls.Add(1)
	return &models.TelemetrySnapshot{CPU: float64(n), Timestamp: p.base.Add(time.Duration(n) * time.Second)}, nil
}

const (
	testPoll      = 3 * time.Second
	testReconnect = 5 * time.Second
)

func TestReconcilerPushSuspendsPollingAndReconnects(t *testing.T) {
	first, second := newChanStream(), newChanStream()
	dialer := &scriptedDialer{streams: []*chanStream{first, second}}
	poller := &countingPoller{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	clock := newManualClock()

	r := New(dialer, poller, Config{PushEnabled: true, PollInterval: testPoll, ReconnectDelay: testReconnect, HistoryLength: 10})
	r.clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// One poll at startup, then push opens and polling stops.
	require.Eventually(t, func() bool { return r.Source() == SourcePush }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, poller.calls.Load())
	first.snaps <- &models.TelemetrySnapshot{CPU: 50, Timestamp: poller.base.Add(-time.Minute)}
	require.Eventually(t, func() bool { return r.Window().Len() == 2 }, time.Second, time.Millisecond)
	clock.Fire(testPoll)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, poller.calls.Load())

	// Push closes: immediate poll, periodic polling, reconnect scheduled.
	first.Close()
	require.Eventually(t, func() bool { return poller.calls.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, SourcePoll, r.Source())
	require.Eventually(t, func() bool { return clock.Pending(testPoll) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, clock.Pending(testReconnect))

	clock.Fire(testPoll)
	require.Eventually(t, func() bool { return poller.calls.Load() == 3 }, time.Second, time.Millisecond)

	// Reconnect succeeds: polling stops again.
	require.Eventually(t, func() bool { return clock.Pending(testPoll) == 1 }, time.Second, time.Millisecond)
	clock.Fire(testReconnect)
	require.Eventually(t, func() bool { return r.Source() == SourcePush }, time.Second, time.Millisecond)
	assert.EqualValues(t, 2, dialer.dials.Load())

	clock.Fire(testPoll)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 3, poller.calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

type hangingDialer struct {
	dials atomic.Int32
}

func (d *hangingDialer) Dial(ctx context.Context) (Stream, error) {
	d.dials.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestReconcilerPollsWhileDialHangs(t *testing.T) {
	dialer := &hangingDialer{}
	poller := &countingPoller{base: time.Now()}
	clock := newManualClock()

	r := New(dialer, poller, Config{PushEnabled: true, PollInterval: testPoll, ReconnectDelay: testReconnect})
	r.clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return poller.calls.Load() == 1 }, time.Second, time.Millisecond)
	for want := int32(2); want <= 4; want++ {
		require.Eventually(t, func() bool { return clock.Pending(testPoll) == 1 }, time.Second, time.Millisecond)
		clock.Fire(testPoll)
		require.Eventually(t, func() bool { return poller.calls.Load() == want }, time.Second, time.Millisecond)
	}
	assert.Equal(t, SourcePoll, r.Source())
	assert.EqualValues(t, 1, dialer.dials.Load())
	assert.Zero(t, clock.Pending(testReconnect))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestReconcilerRetriesFailedDial(t *testing.T) {
	dialer := &scriptedDialer{}
	poller := &countingPoller{base: time.Now()}
	clock := newManualClock()

	r := New(dialer, poller, Config{PushEnabled: true, PollInterval: testPoll, ReconnectDelay: testReconnect})
	r.clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	require.Eventually(t, func() bool { return clock.Pending(testReconnect) == 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, dialer.dials.Load())
	clock.Fire(testReconnect)
	require.Eventually(t, func() bool { return dialer.dials.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, SourcePoll, r.Source())
}

func TestReconcilerPushDisabledOnlyPolls(t *testing.T) {
	dialer := &scriptedDialer{streams: []*chanStream{newChanStream()}}
	poller := &countingPoller{base: time.Now()}
	clock := newManualClock()

	r := New(dialer, poller, Config{PushEnabled: false, PollInterval: testPoll})
	r.clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	require.Eventually(t, func() bool { return poller.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return clock.Pending(testPoll) == 1 }, time.Second, time.Millisecond)
	clock.Fire(testPoll)
	require.Eventually(t, func() bool { return poller.calls.Load() == 2 }, time.Second, time.Millisecond)
	assert.Zero(t, dialer.dials.Load())
	assert.Zero(t, clock.Pending(testReconnect))
}

func TestReconcilerOnUpdateSeesSource(t *testing.T) {
	stream := newChanStream()
	dialer := &scriptedDialer{streams: []*chanStream{stream}}
	r := New(dialer, &countingPoller{base: time.Now()}, Config{PushEnabled: true})
	r.clock = newManualClock()

	got := make(chan Source, 1)
	r.OnUpdate(func(src Source, s models.TelemetrySnapshot) {
		if s.CPU == 77 {
			got <- src
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	stream.snaps <- &models.TelemetrySnapshot{CPU: 77, Timestamp: time.Now().Add(time.Hour)}
	select {
	case src := <-got:
		assert.Equal(t, SourcePush, src)
	case <-time.After(time.Second):
		t.Fatal("no update")
	}
}
