package models

import "time"

// MessageType discriminates push channel envelopes.
type MessageType string

const (
	MessageTelemetry      MessageType = "real-time-stats"
	MessageLifecycleEvent MessageType = "container-event"
	MessageSecurityAlert  MessageType = "security-alert"
)

// Envelope is the server-to-client push message.
type Envelope struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

// LifecycleEvent is broadcast after a successful workload action.
type LifecycleEvent struct {
	WorkloadID string        `json:"workload_id"`
	Name       string        `json:"name,omitempty"`
	Action     Action        `json:"action"`
	State      WorkloadState `json:"state"`
	Timestamp  time.Time     `json:"timestamp"`
}

// SecurityAlert is broadcast when the security watcher sees something worth flagging.
type SecurityAlert struct {
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RemoteSession is an established inbound connection to a remote-access port.
type RemoteSession struct {
	LocalAddr  string `json:"local_addr"`
	LocalPort  uint64 `json:"local_port"`
	RemoteAddr string `json:"remote_addr"`
	RemotePort uint64 `json:"remote_port"`
}

// ListeningPort is a socket in LISTEN state.
type ListeningPort struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
	Port     uint64 `json:"port"`
}
