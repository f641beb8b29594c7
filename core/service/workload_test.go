package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nfcunha/vigil/core/metrics"
	"nfcunha/vigil/core/models"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu         sync.Mutex
	containers []types.Container
	listErr    error
	failures   map[string]error
	block      bool
	calls      []string
}

func (f *fakeBackend) ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]types.Container, len(f.containers))
	copy(out, f.containers)
	return out, nil
}

func (f *fakeBackend) record(ctx context.Context, action, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, action+":"+id)
	err := f.failures[id]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.containers {
		if f.containers[i].ID == id {
			if action == "stop" {
				f.containers[i].State = "exited"
			} else {
				f.containers[i].State = "running"
			}
		}
	}
	return nil
}

func (f *fakeBackend) ContainerStart(ctx context.Context, id string, _ container.StartOptions) error {
	return f.record(ctx, "start", id)
}

func (f *fakeBackend) ContainerStop(ctx context.Context, id string, _ container.StopOptions) error {
	return f.record(ctx, "stop", id)
}

func (f *fakeBackend) ContainerRestart(ctx context.Context, id string, _ container.StopOptions) error {
	return f.record(ctx, "restart", id)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingHub struct {
	mu   sync.Mutex
	msgs []models.Envelope
}

func (h *recordingHub) Broadcast(msg models.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func (h *recordingHub) ActiveCount() int { return 1 }

func (h *recordingHub) Messages() []models.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Envelope(nil), h.msgs...)
}

func threeWorkloads() *fakeBackend {
	return &fakeBackend{
		containers: []types.Container{
			{ID: "aaa111", Names: []string{"/alpha"}, Image: "nginx", State: "running"},
			{ID: "bbb222", Names: []string{"/bravo"}, Image: "redis", State: "exited"},
			{ID: "ccc333", Names: []string{"/charlie"}, Image: "postgres", State: "running"},
		},
		failures: map[string]error{},
	}
}

func newController(backend WorkloadBackend, hub Broadcaster) *WorkloadController {
	return NewWorkloadController(backend, nil, hub, metrics.NewUnregistered(), WorkloadControllerConfig{
		Timeout:          time.Second,
		StopTimeout:      time.Second,
		BatchConcurrency: 4,
	})
}

func TestWorkloadListConvertsContainers(t *testing.T) {
	ctl := newController(threeWorkloads(), &recordingHub{})

	list := ctl.List(context.Background())
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, models.StateRunning, list[0].State)
	assert.Equal(t, models.StateStopped, list[1].State)
}

func TestWorkloadListBackendDownReturnsEmpty(t *testing.T) {
	ctl := newController(&fakeBackend{listErr: errors.New("daemon unreachable")}, &recordingHub{})

	list := ctl.List(context.Background())
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestWorkloadActRejectsUnknownActionWithoutBackend(t *testing.T) {
	backend := threeWorkloads()
	ctl := newController(backend, &recordingHub{})

	_, err := ctl.Act(context.Background(), "aaa111", "delete")
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Empty(t, backend.Calls())
}

func TestWorkloadActFailureIsReportedNotReturned(t *testing.T) {
	backend := threeWorkloads()
	backend.failures["aaa111"] = errors.New("permission denied")
	hub := &recordingHub{}
	ctl := newController(backend, hub)

	res, err := ctl.Act(context.Background(), "aaa111", "stop")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.Equal(t, "permission denied", res.Reason)
	assert.Empty(t, hub.Messages())
}

func TestWorkloadActTimeoutReason(t *testing.T) {
	backend := threeWorkloads()
	backend.block = true
	ctl := NewWorkloadController(backend, nil, &recordingHub{}, metrics.NewUnregistered(), WorkloadControllerConfig{
		Timeout:     20 * time.Millisecond,
		StopTimeout: time.Second,
	})

	res, err := ctl.Act(context.Background(), "aaa111", "restart")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.Equal(t, "timeout", res.Reason)
}

func TestWorkloadActForwardsEvenWhenStateAlreadyMatches(t *testing.T) {
	backend := threeWorkloads()
	ctl := newController(backend, &recordingHub{})

	res, err := ctl.Act(context.Background(), "bbb222", "stop")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, []string{"stop:bbb222"}, backend.Calls())
}

func TestWorkloadRestartRoundTrip(t *testing.T) {
	backend := threeWorkloads()
	hub := &recordingHub{}
	ctl := newController(backend, hub)
	ctl.List(context.Background())

	res, err := ctl.Act(context.Background(), "aaa111", "restart")
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "alpha", res.Name)

	list := ctl.List(context.Background())
	assert.Equal(t, models.StateRunning, list[0].State)

	msgs := hub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.MessageLifecycleEvent, msgs[0].Type)
	ev, ok := msgs[0].Data.(models.LifecycleEvent)
	require.True(t, ok)
	assert.Equal(t, "aaa111", ev.WorkloadID)
	assert.Equal(t, models.ActionRestart, ev.Action)
}

func TestWorkloadBatchStopPartialFailure(t *testing.T) {
	backend := threeWorkloads()
	backend.failures["aaa111"] = errors.New("device busy")
	ctl := newController(backend, &recordingHub{})

	batch, err := ctl.BatchAct(context.Background(), "stop", IsRunning)
	require.NoError(t, err)

	require.Len(t, batch.Results, 2)
	assert.Equal(t, "aaa111", batch.Results[0].WorkloadID)
	assert.Equal(t, "ccc333", batch.Results[1].WorkloadID)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.False(t, batch.Results[0].Succeeded())
	assert.True(t, batch.Results[1].Succeeded())
	assert.ElementsMatch(t, []string{"stop:aaa111", "stop:ccc333"}, backend.Calls())
}

func TestWorkloadBatchEmptySelectionSkipsBackend(t *testing.T) {
	backend := threeWorkloads()
	ctl := newController(backend, &recordingHub{})

	batch, err := ctl.BatchAct(context.Background(), "start", InIDs("zzz"))
	require.NoError(t, err)
	assert.Empty(t, batch.Results)
	assert.Zero(t, batch.Succeeded)
	assert.Zero(t, batch.Failed)
	assert.Empty(t, backend.Calls())
}

func TestWorkloadBatchInvalidAction(t *testing.T) {
	backend := threeWorkloads()
	ctl := newController(backend, &recordingHub{})

	_, err := ctl.BatchAct(context.Background(), "pause", Any)
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Empty(t, backend.Calls())
}

func TestWorkloadBatchFallsBackToCachedListing(t *testing.T) {
	backend := threeWorkloads()
	ctl := newController(backend, &recordingHub{})
	ctl.List(context.Background())

	backend.mu.Lock()
	backend.listErr = errors.New("list failed")
	backend.mu.Unlock()

	batch, err := ctl.BatchAct(context.Background(), "start", IsStopped)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "bbb222", batch.Results[0].WorkloadID)
}

func TestPredicates(t *testing.T) {
	running := models.Workload{ID: "abc123", State: models.StateRunning}
	stopped := models.Workload{ID: "def456", State: models.StateStopped}

	assert.True(t, IsRunning(running))
	assert.False(t, IsRunning(stopped))
	assert.True(t, IsStopped(stopped))
	assert.True(t, Any(stopped))
	assert.True(t, InIDs("abc")(running))
	assert.False(t, InIDs("")(running))
	assert.True(t, And(IsRunning, InIDs("abc123"))(running))
	assert.False(t, And(IsRunning, InIDs("def456"))(stopped))
}
