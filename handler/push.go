package handler

import (
	"net/http"
	"net/url"
	"time"

	"nfcunha/vigil/core/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// PushHandler upgrades authenticated clients onto the broadcast hub.
type PushHandler struct {
	auth         *service.AuthService
	hub          *service.Hub
	cookieName   string
	queueSize    int
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewPushHandler creates a push handler. Browsers are only accepted from
// allowedOrigins or the serving host itself.
func NewPushHandler(auth *service.AuthService, hub *service.Hub, cookieName string, queueSize int, writeTimeout time.Duration, allowedOrigins []string) *PushHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &PushHandler{
		auth:         auth,
		hub:          hub,
		cookieName:   cookieName,
		queueSize:    queueSize,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowed[origin] || allowed["*"] {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

// Serve handles GET /api/ws
// The session is resolved before the upgrade. A handshake without one is
// still upgraded and then closed with 1008 so clients see a policy close
// rather than a bare HTTP error.
func (h *PushHandler) Serve(c *gin.Context) {
	id, _ := c.Cookie(h.cookieName)
	session, err := h.auth.Authenticate(c.Request.Context(), id)
	if err != nil {
		session = nil
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}

	conn := service.NewConnection(session, ws, h.queueSize, h.writeTimeout)
	if err := h.hub.Accept(conn); err != nil {
		log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("Push connection rejected")
		return
	}

	// Reads only detect the peer going away; clients never send data.
	ws.SetReadLimit(512)
	go func() {
		defer h.hub.Remove(conn)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
