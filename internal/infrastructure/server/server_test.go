package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/iosdriver/internal/domain/application"
	"github.com/GriffinCanCode/iosdriver/internal/domain/host"
	"github.com/GriffinCanCode/iosdriver/internal/domain/session"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/config"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/logging"
	"github.com/GriffinCanCode/iosdriver/internal/instruments"
)

type fakeInstruments struct {
	mu      sync.Mutex
	channel *instruments.Channel
	killed  bool
}

func (f *fakeInstruments) StartSession(context.Context, instruments.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = instruments.NewChannel(1)
	return nil
}

func (f *fakeInstruments) Stop(context.Context) { f.ForceStop() }

func (f *fakeInstruments) ForceStop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = true
	if f.channel != nil {
		f.channel.Close()
	}
}

func (f *fakeInstruments) Communicate() *instruments.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel
}

func (f *fakeInstruments) Output() string    { return "" }
func (f *fakeInstruments) SessionID() string { return "instruments-1" }

func (f *fakeInstruments) isKilled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.killed
}

type fixture struct {
	server *Server

	mu      sync.Mutex
	handles []*fakeInstruments
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false

	f := &fixture{}
	calc := application.New("/apps/Calc.app", map[string]string{
		application.MetaBundleName: "Calc",
		application.MetaBundleID:   "com.example.calc",
	})

	srv, err := NewServer(cfg, Options{
		Logger:  logging.NewNop(),
		Host:    host.New(4444, []string{"9.1"}, ""),
		Catalog: application.NewCatalog(calc),
		NewInstruments: func(int) session.Instruments {
			h := &fakeInstruments{}
			f.mu.Lock()
			f.handles = append(f.handles, h)
			f.mu.Unlock()
			return h
		},
	})
	require.NoError(t, err)
	f.server = srv
	return f
}

func (f *fixture) request(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestServerRoutes(t *testing.T) {
	f := newFixture(t)
	defer f.server.Shutdown(context.Background())

	w := f.request(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.request(http.MethodGet, "/wd/hub/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"), "tracing middleware sets trace headers")

	w = f.request(http.MethodPost, "/wd/hub/session", map[string]interface{}{
		"desiredCapabilities": map[string]interface{}{"CFBundleName": "Calc"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, f.server.Sessions().Len())
	assert.Equal(t, 1, f.server.Hooks().Len(), "live sessions are guarded by a force-stop hook")

	w = f.request(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "iosdriver_uptime_seconds")
	assert.Contains(t, body, "iosdriver_sessions_created_total 1")
	assert.Contains(t, body, `iosdriver_http_requests_total{method="POST",path="/wd/hub/session",status="200"} 1`)
}

func TestServeShutsDownSessions(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	body := bytes.NewBufferString(`{"desiredCapabilities":{"CFBundleName":"Calc"}}`)
	resp, err := http.Post(url+"/wd/hub/session", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	assert.Equal(t, 0, f.server.Sessions().Len())
	assert.Equal(t, 0, f.server.Hooks().Len())
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.handles, 1)
	assert.True(t, f.handles[0].isKilled())
}

func TestHooksForceStopLiveSessions(t *testing.T) {
	f := newFixture(t)
	defer f.server.Shutdown(context.Background())

	w := f.request(http.MethodPost, "/wd/hub/session", map[string]interface{}{
		"desiredCapabilities": map[string]interface{}{"CFBundleName": "Calc"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	// what a termination signal does
	f.server.Hooks().Run()

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.True(t, f.handles[0].isKilled())
}
