package models

import (
	"fmt"
	"time"
)

// WorkloadState is the lifecycle state of a container as last observed.
type WorkloadState string

const (
	StateRunning    WorkloadState = "running"
	StateStopped    WorkloadState = "stopped"
	StateRestarting WorkloadState = "restarting"
	StateUnknown    WorkloadState = "unknown"
)

// StateFromDocker maps a Docker container state string onto WorkloadState.
func StateFromDocker(state string) WorkloadState {
	switch state {
	case "running":
		return StateRunning
	case "exited", "created", "dead":
		return StateStopped
	case "restarting":
		return StateRestarting
	default:
		return StateUnknown
	}
}

// Workload is a managed container. The backend is authoritative; this view is
// only as fresh as the listing that produced it.
type Workload struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Image   string         `json:"image"`
	State   WorkloadState  `json:"state"`
	Status  string         `json:"status"`
	Created time.Time      `json:"created"`
	Usage   *ResourceUsage `json:"usage,omitempty"`
}

// ResourceUsage is a point-in-time resource reading for one container.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryBytes   uint64  `json:"memory_bytes"`
}

// Action is a lifecycle action against a workload.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// ParseAction validates a raw action name.
func ParseAction(raw string) (Action, error) {
	switch a := Action(raw); a {
	case ActionStart, ActionStop, ActionRestart:
		return a, nil
	default:
		return "", fmt.Errorf("unsupported action %q", raw)
	}
}

// Outcome is the result of one action against one workload.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// ActionResult is the outcome of one lifecycle action against one workload.
type ActionResult struct {
	WorkloadID string  `json:"workload_id"`
	Name       string  `json:"name,omitempty"`
	Action     Action  `json:"action"`
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason,omitempty"`
}

// Succeeded reports whether the action succeeded.
func (r ActionResult) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// BatchResult is an ordered collection of per-workload results. Partial
// failure does not invalidate successes.
type BatchResult struct {
	Action    Action         `json:"action"`
	Results   []ActionResult `json:"results"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}

// Add appends a result and updates the aggregate counts.
func (b *BatchResult) Add(r ActionResult) {
	b.Results = append(b.Results, r)
	if r.Succeeded() {
		b.Succeeded++
	} else {
		b.Failed++
	}
}
