package service

import (
	"context"
	"os"
	"runtime"
	"sort"
	"time"

	"nfcunha/vigil/core/models"
	"nfcunha/vigil/utils/hostinfo"

	"github.com/docker/docker/api/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// remoteAccessPorts are local ports whose inbound sessions count as remote logins.
var remoteAccessPorts = map[uint64]bool{22: true}

// VersionSource reports the container engine version.
type VersionSource interface {
	ServerVersion(ctx context.Context) (types.Version, error)
}

// SystemInfo describes the host and the service.
type SystemInfo struct {
	Hostname       string `json:"hostname"`
	OS             string `json:"os"`
	Kernel         string `json:"kernel"`
	Arch           string `json:"arch"`
	CPUCount       int    `json:"cpu_count"`
	GoVersion      string `json:"go_version"`
	ServiceVersion string `json:"service_version"`
	Uptime         int64  `json:"uptime"`
	DockerVersion  string `json:"docker_version,omitempty"`
}

// SecurityConnections lists inbound remote sessions and listening sockets.
type SecurityConnections struct {
	Sessions  []models.RemoteSession `json:"sessions"`
	Listening []models.ListeningPort `json:"listening"`
}

// SystemService answers host descriptor and socket queries.
type SystemService struct {
	host    hostinfo.Source
	sockets hostinfo.SocketSource
	docker  VersionSource
	version string
	timeout time.Duration
}

// NewSystemService creates a system service. docker may be nil.
func NewSystemService(host hostinfo.Source, sockets hostinfo.SocketSource, docker VersionSource, version string, timeout time.Duration) *SystemService {
	return &SystemService{
		host:    host,
		sockets: sockets,
		docker:  docker,
		version: version,
		timeout: timeout,
	}
}

// Info returns the host descriptor. Every field is best effort.
func (s *SystemService) Info(ctx context.Context) SystemInfo {
	info := SystemInfo{
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		CPUCount:       runtime.NumCPU(),
		GoVersion:      runtime.Version(),
		ServiceVersion: s.version,
		Uptime:         models.UptimeUnknown,
	}

	if name, err := os.Hostname(); err == nil {
		info.Hostname = name
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		info.OS = unix.ByteSliceToString(uts.Sysname[:])
		info.Kernel = unix.ByteSliceToString(uts.Release[:])
		info.Arch = unix.ByteSliceToString(uts.Machine[:])
	}

	if up, err := s.host.Uptime(); err == nil {
		info.Uptime = int64(up / time.Second)
	}

	if s.docker != nil {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if v, err := s.docker.ServerVersion(ctx); err == nil {
			info.DockerVersion = v.Version
		} else {
			log.Debug().Err(err).Msg("Docker version unavailable")
		}
	}
	return info
}

// Connections returns established sessions on remote-access ports and all
// listening sockets. Read failures yield empty lists.
func (s *SystemService) Connections() SecurityConnections {
	out := SecurityConnections{
		Sessions:  []models.RemoteSession{},
		Listening: []models.ListeningPort{},
	}

	socks, err := s.sockets.TCPSockets()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read sockets")
		return out
	}

	seen := make(map[string]bool)
	for _, sk := range socks {
		switch sk.State {
		case hostinfo.TCPListen:
			key := sk.Protocol + "|" + sk.LocalAddr + "|" + formatPort(sk.LocalPort)
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Listening = append(out.Listening, models.ListeningPort{
				Protocol: sk.Protocol,
				Address:  sk.LocalAddr,
				Port:     sk.LocalPort,
			})
		case hostinfo.TCPEstablished:
			if !remoteAccessPorts[sk.LocalPort] {
				continue
			}
			out.Sessions = append(out.Sessions, models.RemoteSession{
				LocalAddr:  sk.LocalAddr,
				LocalPort:  sk.LocalPort,
				RemoteAddr: sk.RemoteAddr,
				RemotePort: sk.RemotePort,
			})
		}
	}

	sort.Slice(out.Listening, func(i, j int) bool {
		if out.Listening[i].Port != out.Listening[j].Port {
			return out.Listening[i].Port < out.Listening[j].Port
		}
		return out.Listening[i].Address < out.Listening[j].Address
	})
	return out
}
