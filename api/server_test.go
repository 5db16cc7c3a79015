package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CristiGvl/ecfanctl/internal/clock"
	"github.com/CristiGvl/ecfanctl/internal/curve"
	"github.com/CristiGvl/ecfanctl/internal/device"
	"github.com/CristiGvl/ecfanctl/internal/fan"
	"github.com/CristiGvl/ecfanctl/internal/metrics"
	"github.com/CristiGvl/ecfanctl/internal/telemetry"
	"github.com/CristiGvl/ecfanctl/internal/view"
)

type testEnv struct {
	server *Server
	ctl    *fan.Controller
	poller *telemetry.Poller
}

func newTestEnv(t *testing.T, store device.Store, fans ...int) *testEnv {
	t.Helper()
	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	hub := view.NewHub(fans, c, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()

	m := metrics.New()
	ctl := fan.NewController(store, fans, hub, fan.Options{Clock: c, Observer: m})
	_ = ctl.Load(context.Background())
	poller := telemetry.NewPoller(store, fans, hub, telemetry.Options{Clock: c, Observer: m})

	t.Cleanup(func() {
		ctl.Close()
		cancel()
		<-done
	})

	server := NewServer(Options{
		Controller: ctl,
		Hub:        hub,
		Poller:     poller,
		Metrics:    m.Handler(),
		Simulated:  true,
	})
	return &testEnv{server: server, ctl: ctl, poller: poller}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.server.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func decode(t *testing.T, body string, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(body), v))
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, device.NewSimulator([]int{1}), 1)

	status, body := env.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, status)

	var resp map[string]interface{}
	decode(t, body, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, true, resp["simulated"])
}

func TestGetFans(t *testing.T) {
	env := newTestEnv(t, device.NewSimulator([]int{1, 2}), 1, 2)

	status, body := env.do(t, http.MethodGet, "/api/fans", "")
	require.Equal(t, http.StatusOK, status)

	var resp struct {
		Fans      []view.FanView `json:"fans"`
		PowerMode string         `json:"power_mode"`
	}
	decode(t, body, &resp)
	require.Len(t, resp.Fans, 2)
	assert.Equal(t, 1, resp.Fans[0].ID)
	assert.Equal(t, 2, resp.Fans[1].ID)
	assert.Equal(t, "auto", resp.Fans[0].Mode)
	assert.Equal(t, "balanced", resp.PowerMode)
}

func TestGetFan(t *testing.T) {
	env := newTestEnv(t, device.NewSimulator([]int{1}), 1)

	status, body := env.do(t, http.MethodGet, "/api/fan/1", "")
	require.Equal(t, http.StatusOK, status)
	var f view.FanView
	decode(t, body, &f)
	assert.Equal(t, 2, f.Level)
	assert.True(t, f.CurvesLoaded)

	status, _ = env.do(t, http.MethodGet, "/api/fan/7", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodGet, "/api/fan/one", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSetFanMode(t *testing.T) {
	env := newTestEnv(t, device.NewSimulator([]int{1}), 1)

	status, body := env.do(t, http.MethodPost, "/api/fan/1/mode", `{"mode":"fixed"}`)
	require.Equal(t, http.StatusOK, status, body)
	var st fan.State
	decode(t, body, &st)
	assert.Equal(t, fan.ModeFixed, st.Mode)

	status, _ = env.do(t, http.MethodPost, "/api/fan/1/mode", `{"mode":"turbo"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/fan/4/mode", `{"mode":"auto"}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSetFanLevel(t *testing.T) {
	env := newTestEnv(t, device.NewSimulator([]int{1}), 1)

	status, body := env.do(t, http.MethodPost, "/api/fan/1/level", `{"level":4}`)
	require.Equal(t, http.StatusOK, status, body)
	var st fan.State
	decode(t, body, &st)
	assert.Equal(t, 4, st.Level)

	status, _ = env.do(t, http.MethodPost, "/api/fan/1/level", `{"level":9}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/fan/1/level", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEditCurve(t *testing.T) {
	env := newTestEnv(t, device.NewSimulator([]int{1}), 1)

	status, body := env.do(t, http.MethodPost, "/api/fan/1/curve/rampup/1", `{"value":85}`)
	require.Equal(t, http.StatusOK, status, body)

	var edit fan.Edit
	decode(t, body, &edit)
	assert.True(t, edit.Changed)
	assert.False(t, edit.Touched)
	assert.Equal(t, curve.Curve{50, 85, 85, 85, 90}, edit.Curves.RampUp)
	assert.True(t, env.ctl.CurveWritePending(1, curve.RampUp))

	status, _ = env.do(t, http.MethodPost, "/api/fan/1/curve/sideways/1", `{"value":85}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/fan/1/curve/rampdown/5", `{"value":85}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/fan/1/curve/rampdown/0", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEditCurveBeforeLoad(t *testing.T) {
	store := device.NewMemStore(map[string]string{"fan1/mode": "[auto] fixed curve"})
	env := newTestEnv(t, store, 1)

	status, _ := env.do(t, http.MethodPost, "/api/fan/1/curve/rampup/0", `{"value":40}`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, http.MethodPost, "/api/fan/1/curves/refresh", "")
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestPowerMode(t *testing.T) {
	env := newTestEnv(t, device.NewSimulator([]int{1}), 1)

	status, body := env.do(t, http.MethodGet, "/api/power_mode", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"mode":"balanced"}`, body)

	status, body = env.do(t, http.MethodPost, "/api/power_mode", `{"mode":"performance"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, fan.PowerPerformance, env.ctl.PowerMode())
}

func TestWriteFailureIsBadGateway(t *testing.T) {
	store := device.NewMemStore(map[string]string{"fan1/mode": "[auto] fixed curve"})
	env := newTestEnv(t, store, 1)

	status, body := env.do(t, http.MethodPost, "/api/power_mode", `{"mode":"quiet"}`)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body, "device write failed")

	status, body = env.do(t, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, status)
	var events []view.Event
	decode(t, body, &events)
	require.Len(t, events, 1)
	assert.Equal(t, view.EventWriteFailed, events[0].Kind)
	assert.Equal(t, "apu/power_mode", events[0].Key)
}

func TestTelemetry(t *testing.T) {
	env := newTestEnv(t, device.NewSimulator([]int{1}), 1)

	status, _ := env.do(t, http.MethodGet, "/api/telemetry", "")
	assert.Equal(t, http.StatusNoContent, status)

	env.poller.Tick(context.Background())

	status, body := env.do(t, http.MethodGet, "/api/telemetry", "")
	require.Equal(t, http.StatusOK, status)
	var snap telemetry.Snapshot
	decode(t, body, &snap)
	require.NotNil(t, snap.Temperature)
	assert.Equal(t, 45, *snap.Temperature)
	assert.Equal(t, 1800, snap.RPM[1])
}

func TestPollInterval(t *testing.T) {
	env := newTestEnv(t, device.NewSimulator([]int{1}), 1)

	status, body := env.do(t, http.MethodGet, "/api/telemetry/interval", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"interval":"1s"`)

	status, _ = env.do(t, http.MethodPost, "/api/telemetry/interval", `{"interval":"2s"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2*time.Second, env.poller.Interval())

	status, _ = env.do(t, http.MethodPost, "/api/telemetry/interval", `{"interval":"10ms"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/telemetry/interval", `{"interval":"often"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 2*time.Second, env.poller.Interval())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, device.NewSimulator([]int{1}), 1)
	env.poller.Tick(context.Background())

	status, body := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "ecfanctl_telemetry_polls_total 1")
}
