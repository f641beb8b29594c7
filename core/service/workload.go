package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"nfcunha/vigil/core/metrics"
	"nfcunha/vigil/core/models"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// WorkloadBackend is the part of the Docker API the controller drives.
type WorkloadBackend interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
}

// UsageSource supplies cached resource usage for a container.
type UsageSource interface {
	Usage(containerID string) *models.ResourceUsage
}

// Predicate selects workloads for a batch action.
type Predicate func(models.Workload) bool

// IsRunning selects running workloads.
func IsRunning(w models.Workload) bool { return w.State == models.StateRunning }

// IsStopped selects stopped workloads.
func IsStopped(w models.Workload) bool { return w.State == models.StateStopped }

// Any selects every workload.
func Any(models.Workload) bool { return true }

// InIDs selects workloads whose id (or unambiguous id prefix) is listed.
func InIDs(ids ...string) Predicate {
	return func(w models.Workload) bool {
		for _, id := range ids {
			if id != "" && (w.ID == id || strings.HasPrefix(w.ID, id)) {
				return true
			}
		}
		return false
	}
}

// And selects workloads matching every predicate.
func And(preds ...Predicate) Predicate {
	return func(w models.Workload) bool {
		for _, p := range preds {
			if !p(w) {
				return false
			}
		}
		return true
	}
}

// WorkloadControllerConfig holds controller timeouts and limits.
type WorkloadControllerConfig struct {
	Timeout          time.Duration // per backend call
	StopTimeout      time.Duration // grace period passed to stop/restart
	BatchConcurrency int
}

// WorkloadController wraps the container backend behind a uniform result
// shape and reports successful actions to the hub.
type WorkloadController struct {
	backend WorkloadBackend
	usage   UsageSource
	hub     Broadcaster
	metrics *metrics.Metrics
	cfg     WorkloadControllerConfig
	now     func() time.Time

	mu     sync.RWMutex
	cached []models.Workload
}

// NewWorkloadController creates a controller. usage may be nil.
func NewWorkloadController(backend WorkloadBackend, usage UsageSource, hub Broadcaster, m *metrics.Metrics, cfg WorkloadControllerConfig) *WorkloadController {
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}
	return &WorkloadController{
		backend: backend,
		usage:   usage,
		hub:     hub,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

// List returns the current listing. If the backend is unreachable it returns
// an empty slice so callers stay usable without container management.
func (s *WorkloadController) List(ctx context.Context) []models.Workload {
	workloads, err := s.refresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Workload backend unavailable, returning empty listing")
		return []models.Workload{}
	}
	return workloads
}

// Cached returns the listing produced by the last successful refresh.
func (s *WorkloadController) Cached() []models.Workload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Workload, len(s.cached))
	copy(out, s.cached)
	return out
}

func (s *WorkloadController) refresh(ctx context.Context) ([]models.Workload, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	containers, err := s.backend.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	workloads := make([]models.Workload, 0, len(containers))
	for _, c := range containers {
		w := convertToWorkload(c)
		if w.State == models.StateRunning && s.usage != nil {
			w.Usage = s.usage.Usage(c.ID)
		}
		workloads = append(workloads, w)
	}

	s.mu.Lock()
	s.cached = workloads
	s.mu.Unlock()

	out := make([]models.Workload, len(workloads))
	copy(out, workloads)
	return out, nil
}

// Act performs one lifecycle action. Anything but start/stop/restart is
// rejected with ErrInvalidAction before the backend is contacted; every
// backend failure becomes a failed result instead of an error.
func (s *WorkloadController) Act(ctx context.Context, id, action string) (models.ActionResult, error) {
	a, err := models.ParseAction(action)
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if id == "" {
		return models.ActionResult{}, fmt.Errorf("%w: workload id is required", ErrInvalidAction)
	}
	return s.act(ctx, id, s.nameOf(id), a), nil
}

// BatchAct applies action to every workload selected by pred from a fresh
// listing (or the last cached one if the backend cannot list). Targets run
// concurrently and independently; an empty selection never reaches the backend.
func (s *WorkloadController) BatchAct(ctx context.Context, action string, pred Predicate) (models.BatchResult, error) {
	a, err := models.ParseAction(action)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	listing, err := s.refresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Using cached listing for batch selection")
		listing = s.Cached()
	}

	var targets []models.Workload
	for _, w := range listing {
		if pred(w) {
			targets = append(targets, w)
		}
	}

	batch := models.BatchResult{Action: a, Results: []models.ActionResult{}}
	if len(targets) == 0 {
		return batch, nil
	}

	results := make([]models.ActionResult, len(targets))
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, w := range targets {
		g.Go(func() error {
			results[i] = s.act(ctx, w.ID, w.Name, a)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		batch.Add(r)
	}

	log.Info().
		Str("action", string(a)).
		Int("targets", len(targets)).
		Int("succeeded", batch.Succeeded).
		Int("failed", batch.Failed).
		Msg("Batch action completed")
	return batch, nil
}

// act runs the backend call with a bounded timeout and never fails past this point.
func (s *WorkloadController) act(ctx context.Context, id, name string, a models.Action) models.ActionResult {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	grace := int(s.cfg.StopTimeout / time.Second)
	var err error
	switch a {
	case models.ActionStart:
		err = s.backend.ContainerStart(callCtx, id, container.StartOptions{})
	case models.ActionStop:
		err = s.backend.ContainerStop(callCtx, id, container.StopOptions{Timeout: &grace})
	case models.ActionRestart:
		err = s.backend.ContainerRestart(callCtx, id, container.StopOptions{Timeout: &grace})
	}

	result := models.ActionResult{WorkloadID: id, Name: name, Action: a, Outcome: models.OutcomeSucceeded}
	if err != nil {
		result.Outcome = models.OutcomeFailed
		result.Reason = err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			result.Reason = "timeout"
		}
		s.metrics.WorkloadActions.WithLabelValues(string(a), string(result.Outcome)).Inc()
		log.Warn().Err(err).Str("container", id).Str("action", string(a)).Msg("Workload action failed")
		return result
	}

	s.metrics.WorkloadActions.WithLabelValues(string(a), string(result.Outcome)).Inc()
	log.Info().Str("container", id).Str("name", name).Str("action", string(a)).Msg("Workload action succeeded")

	s.hub.Broadcast(models.Envelope{
		Type: models.MessageLifecycleEvent,
		Data: models.LifecycleEvent{
			WorkloadID: id,
			Name:       name,
			Action:     a,
			State:      stateAfter(a),
			Timestamp:  s.now().UTC(),
		},
	})
	return result
}

func (s *WorkloadController) nameOf(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, w := range s.cached {
		if w.ID == id {
			return w.Name
		}
	}
	return ""
}

// stateAfter is the state a successful action leaves a workload in.
func stateAfter(a models.Action) models.WorkloadState {
	if a == models.ActionStop {
		return models.StateStopped
	}
	return models.StateRunning
}

func convertToWorkload(c types.Container) models.Workload {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return models.Workload{
		ID:      c.ID,
		Name:    name,
		Image:   c.Image,
		State:   models.StateFromDocker(c.State),
		Status:  c.Status,
		Created: time.Unix(c.Created, 0).UTC(),
	}
}
