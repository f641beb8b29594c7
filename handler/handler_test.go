package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"nfcunha/vigil/core/metrics"
	"nfcunha/vigil/core/models"
	"nfcunha/vigil/core/repository"
	"nfcunha/vigil/core/service"
	"nfcunha/vigil/database"
	"nfcunha/vigil/utils/config"
	"nfcunha/vigil/utils/hostinfo"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSource struct{}

func (stubSource) CPUTimes() (hostinfo.CPUTimes, error) {
	return hostinfo.CPUTimes{Busy: 1, Idle: 3}, nil
}
func (stubSource) Memory() (hostinfo.MemoryInfo, error) {
	return hostinfo.MemoryInfo{Total: 100, Available: 60}, nil
}
func (stubSource) NetCounters() (hostinfo.NetCounters, error) { return hostinfo.NetCounters{}, nil }
func (stubSource) Mounts() ([]hostinfo.Mount, error) {
	return []hostinfo.Mount{{MountPoint: "/", TotalBytes: 100, UsedBytes: 25}}, nil
}
func (stubSource) Uptime() (time.Duration, error) { return time.Minute, nil }

type stubSockets struct{}

func (stubSockets) TCPSockets() ([]hostinfo.Socket, error) { return nil, errors.New("unavailable") }

type stubBackend struct {
	mu         sync.Mutex
	containers []types.Container
	failures   map[string]error
	calls      int
}

func (b *stubBackend) ContainerList(context.Context, container.ListOptions) ([]types.Container, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Container(nil), b.containers...), nil
}

func (b *stubBackend) do(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.failures[id]
}

func (b *stubBackend) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	return b.do(id)
}

func (b *stubBackend) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	return b.do(id)
}

func (b *stubBackend) ContainerRestart(_ context.Context, id string, _ container.StopOptions) error {
	return b.do(id)
}

type testEnv struct {
	router  *gin.Engine
	hub     *service.Hub
	backend *stubBackend
	cfg     *config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.Mode = "debug"
	if mutate != nil {
		mutate(cfg)
	}

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.NewUnregistered()
	verifier := service.NewBcryptVerifier(repository.NewUserRepository(db))
	require.NoError(t, verifier.EnsureUser(context.Background(), "admin", "s3cret", models.RoleAdmin))
	auth := service.NewAuthService(repository.NewSessionRepository(db), verifier, m, time.Hour, time.Second)

	limiter := service.NewRateLimiter(map[service.Bucket]service.BucketLimit{
		service.BucketAuth: {Limit: cfg.RateLimit.AuthLimit, Window: cfg.RateLimit.Window},
		service.BucketAPI:  {Limit: cfg.RateLimit.APILimit, Window: cfg.RateLimit.Window},
	}, m)

	hub := service.NewHub(m)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	backend := &stubBackend{
		containers: []types.Container{
			{ID: "aaa", Names: []string{"/alpha"}, State: "running"},
			{ID: "bbb", Names: []string{"/bravo"}, State: "exited"},
			{ID: "ccc", Names: []string{"/charlie"}, State: "running"},
		},
		failures: map[string]error{"aaa": errors.New("device busy")},
	}

	router := NewRouter(Dependencies{
		Config:  cfg,
		Auth:    auth,
		Limiter: limiter,
		Sampler: service.NewSampler(stubSource{}, m),
		System:  service.NewSystemService(stubSource{}, stubSockets{}, nil, "test", time.Second),
		Workloads: service.NewWorkloadController(backend, nil, hub, m, service.WorkloadControllerConfig{
			Timeout:          time.Second,
			StopTimeout:      time.Second,
			BatchConcurrency: 2,
		}),
		Logs: service.NewLogService(map[string]string{}, nil, 100),
		Hub:  hub,
	})

	return &testEnv{router: router, hub: hub, backend: backend, cfg: cfg}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"admin","password":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	w := e.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == e.cfg.Session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func (e *testEnv) authed(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	cookie := e.login(t)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	return e.do(req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestUnauthenticatedAPIGets401(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(httptest.NewRequest(http.MethodGet, "/api/system/stats", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Authentication required", body["error"])
	assert.Equal(t, "unauthenticated", body["code"])
}

func TestUnauthenticatedPageRedirects(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestBogusSessionCookieRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/system/stats", nil)
	req.AddCookie(&http.Cookie{Name: env.cfg.Session.CookieName, Value: "forged"})

	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"admin","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", decode(t, w)["code"])
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, nil)

	var w *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"admin","password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		w = env.do(req)
		if i < 5 {
			require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
		}
	}

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	body := decode(t, w)
	assert.Equal(t, "Too many requests", body["error"])
	assert.Equal(t, "rate_limited", body["code"])
	assert.Positive(t, body["retry_after"])
}

func TestSystemStatsAuthenticated(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.authed(t, http.MethodGet, "/api/system/stats", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.InDelta(t, 40.0, body["memory"], 0.001)
	assert.InDelta(t, 25.0, body["storage"], 0.001)
	assert.Contains(t, body, "network")
	assert.Contains(t, body, "timestamp")
}

func TestAuthCheckAndLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.AddCookie(cookie)
	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["authenticated"])

	req = httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(cookie)
	require.Equal(t, http.StatusOK, env.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	req.AddCookie(cookie)
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
}

func TestSecurityConnectionsEmptyOnFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.authed(t, http.MethodGet, "/api/security/connections", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[],"listening":[]}`, w.Body.String())
}

func TestWorkloadInvalidAction(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.authed(t, http.MethodPost, "/api/workloads/aaa/delete", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_action", decode(t, w)["code"])
	assert.Zero(t, env.backend.calls)
}

func TestWorkloadActFailureIs502(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.authed(t, http.MethodPost, "/api/workloads/aaa/stop", "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to stop workload", body["message"])
	assert.NotContains(t, body["message"], "device busy")
	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, result["reason"], "device busy")
}

func TestWorkloadBatchStopRunning(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.authed(t, http.MethodPost, "/api/workloads/batch/stop", `{"filter":"running"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var batch models.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	require.Len(t, batch.Results, 2)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
}

func TestWorkloadBatchBadFilter(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.authed(t, http.MethodPost, "/api/workloads/batch/stop", `{"filter":"sleeping"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkloadsDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Features.Workloads = false })
	w := env.authed(t, http.MethodGet, "/api/workloads", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Workload management is disabled", decode(t, w)["error"])
}

func TestLogsUnsupportedType(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.authed(t, http.MethodGet, "/api/logs?type=bogus&lines=5", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["count"])
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
}

func TestPushRejectsUnauthenticatedWithPolicyClose(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "authentication required", closeErr.Text)
	assert.Equal(t, 0, env.hub.ActiveCount())
}

func TestPushDeliversBroadcasts(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	cookie := env.login(t)
	header := http.Header{}
	header.Set("Cookie", cookie.Name+"="+cookie.Value)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.ActiveCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	env.hub.Broadcast(models.Envelope{Type: models.MessageTelemetry, Data: map[string]int{"cpu": 12}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env2 struct {
		Type string         `json:"type"`
		Data map[string]int `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&env2))
	assert.Equal(t, "real-time-stats", env2.Type)
	assert.Equal(t, 12, env2.Data["cpu"])

	conn.Close()
	assert.Eventually(t, func() bool { return env.hub.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
