package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"nfcunha/vigil/core/models"

	"github.com/gorilla/websocket"
)

// Session is an HTTP client holding the server's session cookie.
type Session struct {
	BaseURL string // e.g. http://host:8080/api
	Client  *http.Client
}

// Login authenticates against BaseURL and returns a session with the cookie stored.
func Login(ctx context.Context, baseURL, username, password string) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	s := &Session{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed: %s", resp.Status)
	}
	return s, nil
}

// Cookies returns the cookies the session sends to BaseURL.
func (s *Session) Cookies() []*http.Cookie {
	u, err := url.Parse(s.BaseURL)
	if err != nil || s.Client.Jar == nil {
		return nil
	}
	return s.Client.Jar.Cookies(u)
}

// HTTPPoller polls GET {BaseURL}/system/stats.
type HTTPPoller struct {
	Session *Session
}

// Poll fetches one snapshot.
func (p *HTTPPoller) Poll(ctx context.Context) (*models.TelemetrySnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Session.BaseURL+"/system/stats", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Session.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll failed: %s", resp.Status)
	}

	var snap models.TelemetrySnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// DefaultHandshakeTimeout bounds the push handshake when WebSocketDialer has
// no Dialer of its own.
const DefaultHandshakeTimeout = 10 * time.Second

// WebSocketDialer opens the push channel at {BaseURL}/ws with the session cookie.
type WebSocketDialer struct {
	Session          *Session
	Dialer           *websocket.Dialer
	HandshakeTimeout time.Duration
}

// Dial opens the push channel.
func (d *WebSocketDialer) Dial(ctx context.Context) (Stream, error) {
	u, err := url.Parse(d.Session.BaseURL + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	for _, c := range d.Session.Cookies() {
		header.Add("Cookie", c.String())
	}

	dialer := d.Dialer
	if dialer == nil {
		timeout := d.HandshakeTimeout
		if timeout <= 0 {
			timeout = DefaultHandshakeTimeout
		}
		dialer = &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: timeout}
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("push dial failed: %w", err)
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn
}

// Recv skips non-telemetry envelopes. A policy close from the server
// (expired session) is returned like any other close.
func (s *wsStream) Recv(ctx context.Context) (*models.TelemetrySnapshot, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	for {
		var env struct {
			Type models.MessageType `json:"type"`
			Data json.RawMessage    `json:"data"`
		}
		if err := s.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ctx.Err(), err)
			}
			return nil, err
		}
		if env.Type != models.MessageTelemetry {
			continue
		}
		var snap models.TelemetrySnapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		return &snap, nil
	}
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
