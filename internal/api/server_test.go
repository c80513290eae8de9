package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/resident-x/go-aims/internal/config"
	"github.com/resident-x/go-aims/internal/domain"
	"github.com/resident-x/go-aims/internal/homeassistant"
	"github.com/resident-x/go-aims/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	last    *service.RunResult
	runs    int
	catalog *homeassistant.Catalog
}

func (f *fakeSource) LastResult() *service.RunResult { return f.last }
func (f *fakeSource) Runs() int { return f.runs }
func (f *fakeSource) Catalog() *homeassistant.Catalog { return f.catalog }
func (f *fakeSource) ValidationStatistics() map[string]interface{} {
	return map[string]interface{}{"total_validations": f.runs}
}

type fakeScheduler struct{}

func (fakeScheduler) GetMetrics() map[string]interface{} {
	return map[string]interface{}{"is_running": true, "interval": "30s"}
}

func newTestSource(t *testing.T, last *service.RunResult) *fakeSource {
	t.Helper()
	catalog, err := homeassistant.LoadCatalog()
	require.NoError(t, err)
	return &fakeSource{last: last, runs: 3, catalog: catalog}
}

func successfulRun() *service.RunResult {
	frame := domain.InverterFrame{
		LineVoltage:       "230.0",
		LineVoltageFault:  "230.0",
		OutputVoltage:     "230.0",
		OutputLoadPercent: "023",
		OutputFrequency:   "50.0",
		BatteryVoltage:    "13.5",
		Temperature:       "25.0",
		StatusBits:        "00001001",
	}
	flags := domain.StatusFlags{LineInteractive: true, BeeperOn: true}
	return &service.RunResult{
		RunID:     "run-1",
		State:     service.StateDone,
		Outcome:   service.OutcomeSuccess,
		Raw:       "(230.0 230.0 230.0 023 50.0 13.5 25.0 00001001",
		Frame:     &frame,
		Flags:     &flags,
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration:  150 * time.Millisecond,
		Readings: []service.Reading{
			{
				Name:       "Inverter Load Percentage",
				Component:  homeassistant.ComponentSensor,
				StateTopic: "inverter/aims/inverterloadpercentage",
				Value:      domain.IntegerValue(23),
				Payload:    "23",
			},
		},
		DiscoverySent: 15,
		StateSent:     15,
	}
}

func serve(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return w, body
}

func TestNewServer(t *testing.T) {
	cfg := config.DefaultConfig()
	source := newTestSource(t, nil)

	server := NewServer(cfg, source, "v1.0.0")

	assert.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.NotNil(t, server.router)
	assert.NotZero(t, server.startTime)
}

func TestServer_HandleStatus(t *testing.T) {
	server := NewServer(config.DefaultConfig(), newTestSource(t, successfulRun()), "v1.0.0")
	server.SetScheduler(fakeScheduler{})

	w, body := serve(t, server, "/api/v1/status")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "v1.0.0", body["version"])
	assert.Equal(t, float64(3), body["runs"])
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "validation")

	lastRun, ok := body["last_run"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "run-1", lastRun["run_id"])
	assert.Equal(t, "done", lastRun["state"])
	assert.Equal(t, "success", lastRun["outcome"])
	assert.Equal(t, float64(30), lastRun["published"])
	assert.Equal(t, float64(0), lastRun["failures"])
	assert.NotContains(t, lastRun, "error")

	scheduler, ok := body["scheduler"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, scheduler["is_running"])
}

func TestServer_HandleStatus_BeforeFirstRun(t *testing.T) {
	server := NewServer(config.DefaultConfig(), newTestSource(t, nil), "dev")

	w, body := serve(t, server, "/api/v1/status")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body, "last_run")
	assert.NotContains(t, body, "scheduler")
}

func TestServer_HandleStatus_FailedRun(t *testing.T) {
	failed := &service.RunResult{
		RunID:   "run-2",
		State:   service.StateFailed,
		Outcome: service.OutcomeAborted,
		Error:   "transport error: read timeout",
	}
	server := NewServer(config.DefaultConfig(), newTestSource(t, failed), "dev")

	_, body := serve(t, server, "/api/v1/status")

	lastRun := body["last_run"].(map[string]interface{})
	assert.Equal(t, "failed", lastRun["state"])
	assert.Equal(t, "aborted", lastRun["outcome"])
	assert.Equal(t, "transport error: read timeout", lastRun["error"])
}

func TestServer_HandleFrame(t *testing.T) {
	server := NewServer(config.DefaultConfig(), newTestSource(t, successfulRun()), "dev")

	w, body := serve(t, server, "/api/v1/frame")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "(230.0 230.0 230.0 023 50.0 13.5 25.0 00001001", body["raw"])

	frame := body["frame"].(map[string]interface{})
	assert.Equal(t, "023", frame["output_load_percent"])
	assert.Equal(t, "00001001", frame["status_bits"])

	flags := body["flags"].(map[string]interface{})
	assert.Equal(t, true, flags["line_interactive"])
	assert.Equal(t, false, flags["utility_fail"])
}

func TestServer_HandleFrame_NotFound(t *testing.T) {
	tests := []struct {
		name string
		last *service.RunResult
	}{
		{name: "no runs", last: nil},
		{name: "aborted run", last: &service.RunResult{State: service.StateFailed, Outcome: service.OutcomeAborted}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(config.DefaultConfig(), newTestSource(t, tt.last), "dev")

			w, body := serve(t, server, "/api/v1/frame")

			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "No frame decoded yet", body["error"])
		})
	}
}

func TestServer_HandleMetrics(t *testing.T) {
	server := NewServer(config.DefaultConfig(), newTestSource(t, successfulRun()), "dev")

	w, body := serve(t, server, "/api/v1/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(15), body["count"])

	metrics := body["metrics"].([]interface{})
	require.Len(t, metrics, 15)

	var load map[string]interface{}
	for _, raw := range metrics {
		m := raw.(map[string]interface{})
		if m["key"] == "inverterloadpercentage" {
			load = m
		}
	}
	require.NotNil(t, load)
	assert.Equal(t, "sensor", load["component"])
	assert.Equal(t, "%", load["unit_of_measurement"])
	assert.Equal(t, float64(23), load["value"])
	assert.Equal(t, "23", load["payload"])
	assert.Equal(t, "inverter/aims/inverterloadpercentage", load["state_topic"])
}

func TestServer_HandleMetric(t *testing.T) {
	server := NewServer(config.DefaultConfig(), newTestSource(t, successfulRun()), "dev")

	w, body := serve(t, server, "/api/v1/metrics/inverterloadpercentage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Inverter Load Percentage", body["name"])
	assert.Equal(t, "23", body["payload"])

	w, body = serve(t, server, "/api/v1/metrics/nosuchmetric")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Metric not found", body["error"])
}

func TestServer_StartStop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 0

	server := NewServer(cfg, newTestSource(t, nil), "dev")
	require.NoError(t, server.Start(context.Background()))
	assert.NoError(t, server.Stop(context.Background()))
}

func TestServer_StopWithoutStart(t *testing.T) {
	server := NewServer(config.DefaultConfig(), newTestSource(t, nil), "dev")
	assert.NoError(t, server.Stop(context.Background()))
}
