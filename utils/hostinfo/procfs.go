package hostinfo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// ProcSource reads metrics through procfs and statfs(2).
type ProcSource struct {
	fs  procfs.FS
	now func() time.Time
}

// NewProcSource opens procfs at mountPoint ("" means /proc).
func NewProcSource(mountPoint string) (*ProcSource, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}
	return &ProcSource{fs: fs, now: time.Now}, nil
}

// FS exposes the underlying procfs handle for other readers.
func (s *ProcSource) FS() procfs.FS {
	return s.fs
}

// CPUTimes reads the aggregate cpu line of /proc/stat.
// busy = user + nice + system + irq + softirq + steal; idle = idle + iowait.
func (s *ProcSource) CPUTimes() (CPUTimes, error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return CPUTimes{}, fmt.Errorf("failed to read cpu stats: %w", err)
	}
	c := stat.CPUTotal
	return CPUTimes{
		Busy: c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal,
		Idle: c.Idle + c.Iowait,
	}, nil
}

// Memory reads /proc/meminfo. MemAvailable is preferred; older kernels fall
// back to MemFree.
func (s *ProcSource) Memory() (MemoryInfo, error) {
	mi, err := s.fs.Meminfo()
	if err != nil {
		return MemoryInfo{}, fmt.Errorf("failed to read meminfo: %w", err)
	}
	if mi.MemTotal == nil || *mi.MemTotal == 0 {
		return MemoryInfo{}, errors.New("meminfo has no MemTotal")
	}

	available := uint64(0)
	switch {
	case mi.MemAvailable != nil:
		available = *mi.MemAvailable
	case mi.MemFree != nil:
		available = *mi.MemFree
	}
	return MemoryInfo{
		Total:     *mi.MemTotal * 1024,
		Available: available * 1024,
	}, nil
}

// NetCounters sums /proc/net/dev over every interface except loopback.
func (s *ProcSource) NetCounters() (NetCounters, error) {
	dev, err := s.fs.NetDev()
	if err != nil {
		return NetCounters{}, fmt.Errorf("failed to read net/dev: %w", err)
	}
	var out NetCounters
	for name, line := range dev {
		if name == "lo" {
			continue
		}
		out.RxBytes += line.RxBytes
		out.TxBytes += line.TxBytes
	}
	return out, nil
}

// Mounts lists real filesystems from /proc/self/mountinfo with statfs usage.
// Mounts whose statfs fails are left out.
func (s *ProcSource) Mounts() ([]Mount, error) {
	infos, err := procfs.GetMounts()
	if err != nil {
		return nil, fmt.Errorf("failed to read mounts: %w", err)
	}

	var out []Mount
	for _, mi := range infos {
		if IsPseudoFS(mi.FSType) || strings.HasPrefix(mi.MountPoint, "/proc") || strings.HasPrefix(mi.MountPoint, "/sys") {
			continue
		}
		var st unix.Statfs_t
		if err := unix.Statfs(mi.MountPoint, &st); err != nil {
			continue
		}
		total := st.Blocks * uint64(st.Bsize)
		if total == 0 {
			continue
		}
		free := st.Bfree * uint64(st.Bsize)
		out = append(out, Mount{
			MountPoint: mi.MountPoint,
			FSType:     mi.FSType,
			Source:     mi.Source,
			TotalBytes: total,
			UsedBytes:  total - free,
		})
	}
	return out, nil
}

// Uptime derives host uptime from the boot time in /proc/stat.
func (s *ProcSource) Uptime() (time.Duration, error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to read boot time: %w", err)
	}
	if stat.BootTime == 0 {
		return 0, errors.New("boot time unavailable")
	}
	boot := time.Unix(int64(stat.BootTime), 0)
	up := s.now().Sub(boot)
	if up < 0 {
		return 0, errors.New("boot time is in the future")
	}
	return up, nil
}
