package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jscsandbox/bridge"
	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

type fakeGate struct {
	state     bridge.State
	available bool
}

func (g fakeGate) State() bridge.State { return g.state }
func (g fakeGate) IsAvailable() bool   { return g.available }
func (g fakeGate) ModuleName() string  { return bridge.DefaultModuleName }

func testConfig() Config {
	gin.SetMode(gin.TestMode)
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.Development = true
	return cfg
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		gate       fakeGate
		wantStatus int
		wantBody   string
	}{
		{"installed", fakeGate{bridge.StateInstalled, true}, http.StatusOK, "ok"},
		{"failed", fakeGate{bridge.StateFailed, false}, http.StatusServiceUnavailable, "unavailable"},
		{"uninstalled", fakeGate{bridge.StateUninstalled, false}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testConfig(), tt.gate)
			w := serve(t, s, "/health")
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Equal(t, tt.gate.state.String(), resp.State)
			assert.Equal(t, tt.gate.available, resp.Available)
			assert.Equal(t, bridge.DefaultModuleName, resp.Module)
		})
	}
}

func TestStatsAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	m.RecordEval(monitoring.OpEval, monitoring.StatusOK, 2*time.Millisecond)
	m.RecordEval(monitoring.OpEval, monitoring.StatusTimeout, 4*time.Millisecond)

	s := New(testConfig(), fakeGate{bridge.StateInstalled, true}, WithMetrics(m, reg))

	w := serve(t, s, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.Evals)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, int64(1), stats.Timeouts)
	assert.InDelta(t, 6.0, stats.TotalMS, 0.001)
	assert.InDelta(t, 3.0, stats.MeanMS, 0.001)

	w = serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "jscsandbox_evals_total")
}

func TestNoMetrics(t *testing.T) {
	s := New(testConfig(), fakeGate{bridge.StateInstalled, true})

	assert.Equal(t, http.StatusNotFound, serve(t, s, "/metrics").Code)

	w := serve(t, s, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Zero(t, stats.Evals)
}

func TestStartShutdown(t *testing.T) {
	inst := bridge.NewInstaller(bridge.WithStrategies())
	inst.Install(bridge.NewEngineBridge(sandbox.DefaultConfig()))

	s := New(testConfig(), inst)
	assert.Empty(t, s.Addr())
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"state":"installed"`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))
	assert.Empty(t, s.Addr())
}

func TestNilLogger(t *testing.T) {
	inst := bridge.NewInstaller(bridge.WithStrategies())
	s := New(testConfig(), inst, WithLogger(nil))

	assert.NotPanics(t, func() {
		require.NoError(t, s.Start())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Shutdown(ctx))
	})
}
