// Package hostinfo reads host metrics from procfs and the filesystem.
package hostinfo

import (
	"time"
)

// CPUTimes is cumulative CPU time in seconds across all cores.
type CPUTimes struct {
	Busy float64
	Idle float64
}

// Total returns busy + idle.
func (t CPUTimes) Total() float64 {
	return t.Busy + t.Idle
}

// MemoryInfo is physical memory in bytes.
type MemoryInfo struct {
	Total     uint64
	Available uint64
}

// NetCounters is cumulative bytes over non-loopback interfaces.
type NetCounters struct {
	RxBytes uint64
	TxBytes uint64
}

// Mount is one mounted filesystem with its usage.
type Mount struct {
	MountPoint string
	FSType     string
	Source     string
	TotalBytes uint64
	UsedBytes  uint64
}

// Source is a host metric source. Each method may fail independently.
type Source interface {
	CPUTimes() (CPUTimes, error)
	Memory() (MemoryInfo, error)
	NetCounters() (NetCounters, error)
	Mounts() ([]Mount, error)
	Uptime() (time.Duration, error)
}

// pseudoFS lists filesystem types that never represent real storage.
var pseudoFS = map[string]bool{
	"proc": true, "sysfs": true, "devtmpfs": true, "devpts": true, "tmpfs": true,
	"cgroup": true, "cgroup2": true, "securityfs": true, "pstore": true, "bpf": true,
	"debugfs": true, "tracefs": true, "mqueue": true, "hugetlbfs": true, "configfs": true,
	"fusectl": true, "autofs": true, "binfmt_misc": true, "rpc_pipefs": true, "nsfs": true,
	"overlay": true, "squashfs": true, "ramfs": true, "efivarfs": true,
}

// IsPseudoFS reports whether fsType is a virtual filesystem.
func IsPseudoFS(fsType string) bool {
	return pseudoFS[fsType]
}
