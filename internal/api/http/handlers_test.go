package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/iosdriver/internal/domain/application"
	"github.com/GriffinCanCode/iosdriver/internal/domain/host"
	"github.com/GriffinCanCode/iosdriver/internal/domain/session"
	"github.com/GriffinCanCode/iosdriver/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/iosdriver/internal/instruments"
)

type fakeInstruments struct {
	mu      sync.Mutex
	channel *instruments.Channel
	stopped bool
	log     string
	output  string
}

func (f *fakeInstruments) StartSession(context.Context, instruments.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = instruments.NewChannel(4)
	return nil
}

func (f *fakeInstruments) Stop(context.Context) { f.ForceStop() }

func (f *fakeInstruments) ForceStop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.channel != nil {
		f.channel.Close()
	}
}

func (f *fakeInstruments) Communicate() *instruments.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channel
}

func (f *fakeInstruments) Output() string    { return f.output }
func (f *fakeInstruments) SessionID() string { return "instruments-1" }
func (f *fakeInstruments) Log() string       { return f.log }

type fakeDriver struct{ session string }

func (d *fakeDriver) SessionID() string          { return d.session }
func (d *fakeDriver) Quit(context.Context) error { return nil }

type testServer struct {
	router   *gin.Engine
	sessions *session.Manager
	metrics  *monitoring.Metrics

	mu          sync.Mutex
	instruments []*fakeInstruments
	output      string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	calc := application.New("/apps/Calc.app", map[string]string{
		application.MetaBundleName: "Calc",
		application.MetaBundleID:   "com.example.calc",
	})
	catalog := application.NewCatalog(calc)
	hostInfo := host.New(4444, []string{"9.1", "8.4"}, "")
	metrics := monitoring.NewRegistryMetrics()

	ts := &testServer{metrics: metrics, output: "/tmp/instruments-test"}
	ts.sessions = session.NewManager(session.Deps{
		Matcher: catalog,
		Host:    hostInfo,
		NewInstruments: func(int) session.Instruments {
			ts.mu.Lock()
			f := &fakeInstruments{log: "Instruments Trace Complete\n", output: ts.output}
			ts.instruments = append(ts.instruments, f)
			ts.mu.Unlock()
			return f
		},
		NewDriver: func(_ *url.URL, id string) session.NativeDriver {
			return &fakeDriver{session: id}
		},
		Metrics: metrics,
	})

	ts.router = gin.New()
	NewHandlers(ts.sessions, hostInfo, catalog, NewHandlerMetrics(metrics), nil).Register(ts.router)

	t.Cleanup(func() { _ = ts.sessions.StopAll(context.Background()) })
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var resp Response
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (ts *testServer) create(t *testing.T) string {
	t.Helper()
	w, resp := ts.do(t, http.MethodPost, "/wd/hub/session", CreateRequest{
		DesiredCapabilities: map[string]interface{}{"CFBundleName": "Calc"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func objectValue(t *testing.T, resp Response) map[string]interface{} {
	t.Helper()
	value, ok := resp.Value.(map[string]interface{})
	require.True(t, ok, "value should be an object, got %T", resp.Value)
	return value
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t)

	w, resp := ts.do(t, http.MethodPost, "/wd/hub/session", CreateRequest{
		DesiredCapabilities: map[string]interface{}{
			"CFBundleName": "Calc",
			"device":       "iPad",
			"custom":       "kept",
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "/wd/hub/session/"+resp.SessionID, w.Header().Get("Location"))

	caps := objectValue(t, resp)
	assert.Equal(t, "9.1", caps["sdkVersion"], "default sdk is the highest installed")
	assert.Equal(t, "ipad", caps["device"])
	assert.Equal(t, "kept", caps["custom"])

	assert.Equal(t, 1, ts.sessions.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.SessionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.SessionsActive))
}

func TestCreateSessionRejected(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		reason string
	}{
		{
			name:   "sdk not installed",
			body:   CreateRequest{DesiredCapabilities: map[string]interface{}{"CFBundleName": "Calc", "sdkVersion": "6.0"}},
			reason: session.ReasonSDKUnavailable,
		},
		{
			name:   "no matching application",
			body:   CreateRequest{DesiredCapabilities: map[string]interface{}{"CFBundleName": "Mail"}},
			reason: session.ReasonNoApplication,
		},
		{
			name:   "missing capabilities",
			body:   map[string]interface{}{},
			reason: session.ReasonInvalidRequest,
		},
		{
			name:   "bad capability type",
			body:   CreateRequest{DesiredCapabilities: map[string]interface{}{"CFBundleName": "Calc", "timeHack": 3}},
			reason: session.ReasonInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			w, resp := ts.do(t, http.MethodPost, "/wd/hub/session", tt.body)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, StatusSessionNotCreated, resp.Status)
			assert.Equal(t, tt.reason, objectValue(t, resp)["reason"])

			assert.Equal(t, 0, ts.sessions.Len())
			assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.SessionsRejected.WithLabelValues(tt.reason)))
		})
	}
}

func TestUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/wd/hub/session/sess_missing",
		"/wd/hub/session/sess_missing/context",
		"/wd/hub/session/sess_missing/configuration/native",
		"/wd/hub/session/sess_missing/log",
		"/wd/hub/session/sess_missing/artifacts",
		"/wd/hub/session/sess_missing/artifact/instruments.log",
	} {
		w, resp := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, StatusNoSuchDriver, resp.Status, path)
		assert.Equal(t, "sess_missing", resp.SessionID, path)
	}

	w, resp := ts.do(t, http.MethodDelete, "/wd/hub/session/sess_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, StatusNoSuchDriver, resp.Status)
}

func TestGetAndListSessions(t *testing.T) {
	ts := newTestServer(t)
	first := ts.create(t)
	second := ts.create(t)

	w, resp := ts.do(t, http.MethodGet, "/wd/hub/session/"+first, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := objectValue(t, resp)
	assert.Equal(t, first, view["id"])
	assert.Equal(t, "NATIVE_APP", view["mode"])
	assert.Equal(t, true, view["started"])
	assert.Equal(t, true, view["nativeDriver"])
	assert.Equal(t, "instruments-1", view["instrumentsSessionId"])

	w, resp = ts.do(t, http.MethodGet, "/wd/hub/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list, ok := resp.Value.([]interface{})
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].(map[string]interface{})["id"])
	assert.Equal(t, second, list[1].(map[string]interface{})["id"])
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	w, resp := ts.do(t, http.MethodDelete, "/wd/hub/session/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, id, resp.SessionID)

	assert.Equal(t, 0, ts.sessions.Len())
	ts.mu.Lock()
	assert.True(t, ts.instruments[0].stopped)
	ts.mu.Unlock()

	w, _ = ts.do(t, http.MethodGet, "/wd/hub/session/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContext(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)
	path := "/wd/hub/session/" + id + "/context"

	_, resp := ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, "NATIVE_APP", resp.Value)

	w, _ := ts.do(t, http.MethodPost, path, ContextRequest{Name: "WEBVIEW"})
	require.Equal(t, http.StatusOK, w.Code)

	_, resp = ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, "WEBVIEW", resp.Value)

	w, resp = ts.do(t, http.MethodPost, path, ContextRequest{Name: "hybrid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, StatusUnknownCommand, resp.Status)

	w, _ = ts.do(t, http.MethodPost, path, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, resp = ts.do(t, http.MethodGet, path, nil)
	assert.Equal(t, "WEBVIEW", resp.Value, "failed switches leave the mode alone")
}

func TestConfigurationPerMode(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)
	base := "/wd/hub/session/" + id + "/configuration/"

	w, _ := ts.do(t, http.MethodPost, base+"native", map[string]interface{}{
		"implicitWait": 2000,
		"screenshots":  true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	_, resp := ts.do(t, http.MethodGet, base+"NATIVE_APP", nil)
	assert.Equal(t, map[string]interface{}{"implicitWait": 2000.0, "screenshots": true}, resp.Value)

	_, resp = ts.do(t, http.MethodGet, base+"WEBVIEW", nil)
	assert.Equal(t, map[string]interface{}{}, resp.Value, "modes have separate stores")

	w, resp = ts.do(t, http.MethodGet, base+"hybrid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, StatusUnknownCommand, resp.Status)
}

func TestGetLog(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t)

	w, _ := ts.do(t, http.MethodGet, "/wd/hub/session/"+id+"/log", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Instruments Trace Complete\n", w.Body.String())
	assert.Equal(t, id, w.Header().Get("X-Session-ID"))
}

func TestStatusAndHealth(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t)

	w, resp := ts.do(t, http.MethodGet, "/wd/hub/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	value := objectValue(t, resp)
	ios := value["ios"].(map[string]interface{})
	assert.Equal(t, []interface{}{"8.4", "9.1"}, ios["sdks"])
	assert.Equal(t, "9.1", ios["simulatorVersion"])
	assert.Equal(t, 1.0, value["sessions"])

	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, 1.0, health["sessions"])
	assert.Equal(t, 1.0, health["applications"])
	assert.Contains(t, health, "metrics")
}
