package hostinfo

import (
	"errors"
	"fmt"

	"github.com/prometheus/procfs"
)

// TCP states as encoded in /proc/net/tcp.
const (
	TCPEstablished uint64 = 0x01
	TCPListen      uint64 = 0x0A
)

// Socket is one TCP socket from /proc/net/tcp or /proc/net/tcp6.
type Socket struct {
	Protocol   string // "tcp" or "tcp6"
	LocalAddr  string
	LocalPort  uint64
	RemoteAddr string
	RemotePort uint64
	State      uint64
}

// SocketSource lists TCP sockets.
type SocketSource interface {
	TCPSockets() ([]Socket, error)
}

// TCPSockets reads IPv4 and IPv6 TCP sockets. A host without IPv6 still
// returns its IPv4 sockets; an error is returned only if both tables fail.
func (s *ProcSource) TCPSockets() ([]Socket, error) {
	var out []Socket

	v4, err4 := s.fs.NetTCP()
	if err4 == nil {
		out = appendSockets(out, "tcp", v4)
	}
	v6, err6 := s.fs.NetTCP6()
	if err6 == nil {
		out = appendSockets(out, "tcp6", v6)
	}

	if err4 != nil && err6 != nil {
		return nil, fmt.Errorf("failed to read tcp sockets: %w", errors.Join(err4, err6))
	}
	return out, nil
}

func appendSockets(out []Socket, proto string, lines procfs.NetTCP) []Socket {
	for _, l := range lines {
		out = append(out, Socket{
			Protocol:   proto,
			LocalAddr:  l.LocalAddr.String(),
			LocalPort:  l.LocalPort,
			RemoteAddr: l.RemAddr.String(),
			RemotePort: l.RemPort,
			State:      l.St,
		})
	}
	return out
}
