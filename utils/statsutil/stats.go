// Package statsutil derives percentages from Docker container stats.
package statsutil

import (
	"github.com/docker/docker/api/types/container"
)

// CalculateCPUPercent calculates the CPU usage percentage from Docker stats,
// scaled by the number of CPUs available to the container.
func CalculateCPUPercent(stats *container.StatsResponse) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)

	cpus := float64(stats.CPUStats.OnlineCPUs)
	if cpus == 0 {
		// cgroup v1 daemons leave OnlineCPUs unset
		cpus = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}
	if cpus == 0 {
		cpus = 1
	}

	if systemDelta > 0.0 && cpuDelta > 0.0 {
		return (cpuDelta / systemDelta) * cpus * 100.0
	}
	return 0.0
}

// CalculateMemoryUsage returns memory in use excluding reclaimable page cache,
// matching what `docker stats` reports.
func CalculateMemoryUsage(stats *container.StatsResponse) uint64 {
	usage := stats.MemoryStats.Usage
	cache, ok := stats.MemoryStats.Stats["inactive_file"] // cgroup v2
	if !ok {
		cache = stats.MemoryStats.Stats["total_inactive_file"] // cgroup v1
	}
	if cache < usage {
		return usage - cache
	}
	return usage
}

// CalculateMemoryPercent returns memory usage as a percentage of the limit.
func CalculateMemoryPercent(stats *container.StatsResponse) float64 {
	if stats.MemoryStats.Limit == 0 {
		return 0
	}
	return float64(CalculateMemoryUsage(stats)) / float64(stats.MemoryStats.Limit) * 100.0
}
