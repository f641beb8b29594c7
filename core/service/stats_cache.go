package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"nfcunha/vigil/core/models"
	"nfcunha/vigil/utils/statsutil"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/rs/zerolog/log"
)

// StatsBackend is the part of the Docker API the stats cache needs.
type StatsBackend interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerStats(ctx context.Context, containerID string, stream bool) (container.StatsResponseReader, error)
}

// StatsCache keeps the latest resource usage of every running container,
// refreshed in the background so listings never wait on the stats API.
type StatsCache struct {
	backend  StatsBackend
	interval time.Duration
	timeout  time.Duration

	mu    sync.RWMutex
	usage map[string]*models.ResourceUsage // containerID -> usage
}

// NewStatsCache creates a stats cache. Call Run to start refreshing.
func NewStatsCache(backend StatsBackend, interval, timeout time.Duration) *StatsCache {
	return &StatsCache{
		backend:  backend,
		interval: interval,
		timeout:  timeout,
		usage:    make(map[string]*models.ResourceUsage),
	}
}

// Usage returns cached usage for a container, or nil if not yet sampled.
func (c *StatsCache) Usage(containerID string) *models.ResourceUsage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if u, ok := c.usage[containerID]; ok {
		copied := *u
		return &copied
	}
	return nil
}

// Run refreshes the cache until ctx is cancelled.
func (c *StatsCache) Run(ctx context.Context) {
	c.Refresh(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

// Refresh fetches fresh stats for every running container in parallel.
func (c *StatsCache) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	containers, err := c.backend.ContainerList(ctx, container.ListOptions{
		All: false, // Only running
	})
	if err != nil {
		log.Debug().Err(err).Msg("Failed to list containers for stats cache")
		return
	}

	type statsResult struct {
		containerID string
		usage       *models.ResourceUsage
		err         error
	}

	statsChan := make(chan statsResult, len(containers))
	var wg sync.WaitGroup

	for _, ctr := range containers {
		wg.Add(1)
		go func(containerID string) {
			defer wg.Done()
			usage, err := c.fetch(ctx, containerID)
			statsChan <- statsResult{containerID: containerID, usage: usage, err: err}
		}(ctr.ID)
	}

	go func() {
		wg.Wait()
		close(statsChan)
	}()

	fresh := make(map[string]*models.ResourceUsage, len(containers))
	for result := range statsChan {
		if result.err != nil {
			log.Debug().Err(result.err).Str("container", result.containerID).Msg("Failed to get container stats")
			continue
		}
		fresh[result.containerID] = result.usage
	}

	c.mu.Lock()
	c.usage = fresh
	c.mu.Unlock()
}

// fetch reads one non-streaming stats sample for a container.
func (c *StatsCache) fetch(ctx context.Context, containerID string) (*models.ResourceUsage, error) {
	resp, err := c.backend.ContainerStats(ctx, containerID, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}

	return &models.ResourceUsage{
		CPUPercent:    round1(statsutil.CalculateCPUPercent(&stats)),
		MemoryPercent: round1(clampPercent(statsutil.CalculateMemoryPercent(&stats))),
		MemoryBytes:   statsutil.CalculateMemoryUsage(&stats),
	}, nil
}
