package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestCollector_SessionGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SessionStarted()
	c.SessionStarted()
	c.SessionStopped("explicit")

	mf := findMetric(t, reg, "livesync_active_sessions")
	if val := mf.GetMetric()[0].GetGauge().GetValue(); val != 1 {
		t.Errorf("active_sessions = %v, want 1", val)
	}

	mf = findMetric(t, reg, "livesync_sessions_stopped_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("sessions_stopped_total = %v, want 1", val)
	}
}

func TestCollector_MessagesByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.MessageReceived("chat")
	c.MessageReceived("chat")
	c.MessageReceived("file_change")

	mf := findMetric(t, reg, "livesync_messages_received_total")
	got := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "type" {
				got[lp.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if got["chat"] != 2 || got["file_change"] != 1 {
		t.Errorf("unexpected message counts %v", got)
	}
}

func TestCollector_Deliveries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.DeliveryAttempted()
	c.DeliveryAttempted()
	c.DeliveryFailed("queue_full")

	if val := findMetric(t, reg, "livesync_delivery_attempts_total").GetMetric()[0].GetCounter().GetValue(); val != 2 {
		t.Errorf("delivery_attempts_total = %v, want 2", val)
	}
	if val := findMetric(t, reg, "livesync_delivery_failures_total").GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("delivery_failures_total = %v, want 1", val)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.FileChangeApplied("watcher")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `livesync_file_changes_total{source="watcher"} 1`) {
		t.Errorf("metrics output missing file change counter:\n%s", body)
	}
}

func TestNop_ImplementsRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.SessionStarted()
	r.DeliveryFailed("closed")
}
