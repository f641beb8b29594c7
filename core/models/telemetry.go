package models

import "time"

// UptimeUnknown marks a snapshot whose host uptime could not be read.
const UptimeUnknown int64 = -1

// TelemetrySnapshot is one immutable, timestamped bundle of sampled host metrics.
type TelemetrySnapshot struct {
	CPU       float64           `json:"cpu"`
	Memory    float64           `json:"memory"`
	Storage   float64           `json:"storage"`
	Mounts    []MountUsage      `json:"mounts"`
	Network   NetworkThroughput `json:"network"`
	Uptime    int64             `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
}

// MountUsage is the utilization of one mounted filesystem.
type MountUsage struct {
	MountPoint string  `json:"mount_point"`
	FSType     string  `json:"fs_type"`
	TotalBytes uint64  `json:"total_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
	Percent    float64 `json:"percent"`
}

// NetworkThroughput is receive/transmit rate in KB/s across non-loopback interfaces.
type NetworkThroughput struct {
	RxKBps float64 `json:"rx_kbps"`
	TxKBps float64 `json:"tx_kbps"`
}
