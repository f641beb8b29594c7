package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"nfcunha/vigil/core/metrics"
	"nfcunha/vigil/core/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrHubStopped is returned by Accept once the hub's Run loop has exited.
var ErrHubStopped = errors.New("hub stopped")

// Transport is the write side of a push channel. *websocket.Conn satisfies it.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnState is the lifecycle state of a push connection.
type ConnState int32

const (
	ConnOpen ConnState = iota
	ConnClosing
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnOpen:
		return "open"
	case ConnClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Connection is one live push channel. The owning session is captured when
// the connection is created and never re-validated.
type Connection struct {
	ID      string
	Session *models.Session

	transport    Transport
	send         chan []byte
	done         chan struct{}
	state        atomic.Int32
	closeOnce    sync.Once
	writeTimeout time.Duration
}

// NewConnection wraps an authenticated transport. queueSize bounds how many
// messages may wait for the writer before the connection is dropped.
func NewConnection(session *models.Session, transport Transport, queueSize int, writeTimeout time.Duration) *Connection {
	return &Connection{
		ID:           uuid.NewString(),
		Session:      session,
		transport:    transport,
		send:         make(chan []byte, queueSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// Done is closed once the connection starts closing.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close transitions Open -> Closing -> Closed. Safe to call more than once.
func (c *Connection) Close() {
	c.CloseWithReason(websocket.CloseNormalClosure, "")
}

// CloseWithReason sends a best-effort close frame before closing the transport.
func (c *Connection) CloseWithReason(code int, reason string) {
	c.closeOnce.Do(func() {
		c.markClosing()
		c.finishClose(code, reason)
	})
}

// closeDetached marks the connection closing and returns at once. The close
// frame and transport close happen on their own goroutine, since the frame
// waits for the transport's write lock, which a stalled writer may hold until
// its deadline. The returned channel is closed when the connection is Closed.
func (c *Connection) closeDetached(code int, reason string) <-chan struct{} {
	finished := make(chan struct{})
	started := false
	c.closeOnce.Do(func() {
		started = true
		c.markClosing()
		go func() {
			defer close(finished)
			c.finishClose(code, reason)
		}()
	})
	if !started {
		close(finished)
	}
	return finished
}

func (c *Connection) markClosing() {
	c.state.Store(int32(ConnClosing))
	close(c.done)
}

func (c *Connection) finishClose(code int, reason string) {
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.transport.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = c.transport.Close()
	c.state.Store(int32(ConnClosed))
}

// enqueue hands a message to the writer without blocking.
func (c *Connection) enqueue(data []byte) bool {
	if c.State() != ConnOpen {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump delivers queued messages in order. Any write failure closes the
// connection and reports it through onFailure.
func (c *Connection) writePump(onFailure func(*Connection)) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.transport.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.transport.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("connection", c.ID).Msg("Push write failed")
				c.Close()
				onFailure(c)
				return
			}
		}
	}
}

type acceptRequest struct {
	conn *Connection
	ack  chan struct{}
}

type broadcastRequest struct {
	kind models.MessageType
	data []byte
}

// Hub owns the set of open push connections. The set is only touched by the
// Run goroutine; Accept, Remove and Broadcast talk to it over channels.
type Hub struct {
	acceptCh    chan acceptRequest
	removeCh    chan *Connection
	broadcastCh chan broadcastRequest
	stopped     chan struct{}
	active      atomic.Int64
	metrics     *metrics.Metrics
}

// NewHub creates a hub. Call Run to start it.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		acceptCh:    make(chan acceptRequest),
		removeCh:    make(chan *Connection, 64),
		broadcastCh: make(chan broadcastRequest, 64),
		stopped:     make(chan struct{}),
		metrics:     m,
	}
}

// Run owns the connection set until ctx is cancelled, then closes every
// connection with a going-away frame.
func (h *Hub) Run(ctx context.Context) {
	conns := make(map[string]*Connection)
	defer close(h.stopped)

	drop := func(c *Connection) {
		if _, ok := conns[c.ID]; ok {
			delete(conns, c.ID)
			h.setActive(len(conns))
		}
	}

	for {
		select {
		case <-ctx.Done():
			closing := make([]<-chan struct{}, 0, len(conns))
			for _, c := range conns {
				closing = append(closing, c.closeDetached(websocket.CloseGoingAway, "server shutting down"))
			}
			for _, finished := range closing {
				<-finished
			}
			conns = nil
			h.setActive(0)
			log.Info().Msg("Broadcast hub stopped")
			return

		case req := <-h.acceptCh:
			if req.conn.State() == ConnOpen {
				conns[req.conn.ID] = req.conn
				h.setActive(len(conns))
				go req.conn.writePump(h.Remove)
				log.Debug().
					Str("connection", req.conn.ID).
					Str("user", req.conn.Session.Username).
					Int("active", len(conns)).
					Msg("Push connection accepted")
			}
			close(req.ack)

		case c := <-h.removeCh:
			drop(c)
			c.closeDetached(websocket.CloseNormalClosure, "")

		case msg := <-h.broadcastCh:
			for _, c := range conns {
				if !c.enqueue(msg.data) {
					drop(c)
					c.closeDetached(websocket.CloseNormalClosure, "")
					h.metrics.HubDropped.Inc()
					log.Debug().Str("connection", c.ID).Msg("Dropped unresponsive push connection")
				}
			}
			h.metrics.HubMessages.WithLabelValues(string(msg.kind)).Inc()
		}
	}
}

func (h *Hub) setActive(n int) {
	h.active.Store(int64(n))
	h.metrics.HubConnections.Set(float64(n))
}

// ActiveCount returns the number of connections in the active set.
func (h *Hub) ActiveCount() int {
	return int(h.active.Load())
}

// Accept admits an authenticated, open connection. When Accept returns nil
// the connection is in the active set.
func (h *Hub) Accept(c *Connection) error {
	if c.Session == nil {
		c.CloseWithReason(websocket.ClosePolicyViolation, "authentication required")
		return ErrUnauthenticated
	}

	req := acceptRequest{conn: c, ack: make(chan struct{})}
	select {
	case h.acceptCh <- req:
	case <-h.stopped:
		c.CloseWithReason(websocket.CloseGoingAway, "server shutting down")
		return ErrHubStopped
	}
	<-req.ack
	return nil
}

// Remove closes c and takes it out of the active set. Idempotent.
func (h *Hub) Remove(c *Connection) {
	c.Close()
	select {
	case h.removeCh <- c:
	case <-h.stopped:
	}
}

// Broadcast delivers msg to every open connection in call order. It does no
// work at all when the active set is empty. Delivery is best effort.
func (h *Hub) Broadcast(msg models.Envelope) {
	if h.ActiveCount() == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("Failed to encode broadcast")
		return
	}

	select {
	case h.broadcastCh <- broadcastRequest{kind: msg.Type, data: data}:
	case <-h.stopped:
	}
}
