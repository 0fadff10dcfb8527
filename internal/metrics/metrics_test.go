package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStage(t *testing.T) {
	m := New()
	m.ObserveStage("load", 3*time.Millisecond, 4)
	m.ObserveStage("resolve", time.Millisecond, 4)

	if got := testutil.CollectAndCount(m.stageDuration); got != 2 {
		t.Errorf("stage duration series = %d, want 2", got)
	}
	if got := testutil.ToFloat64(m.stagePlugins.WithLabelValues("load")); got != 4 {
		t.Errorf("stage_plugins{load} = %v, want 4", got)
	}
}

func TestLoadFinished(t *testing.T) {
	m := New()
	m.LoadFinished(nil, 3)
	m.LoadFinished(errors.New("boom"), 0)
	m.LoadFinished(nil, 5)

	if got := testutil.ToFloat64(m.loads.WithLabelValues(ResultSuccess)); got != 2 {
		t.Errorf("loads{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.loads.WithLabelValues(ResultFailure)); got != 1 {
		t.Errorf("loads{failure} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.registered); got != 5 {
		t.Errorf("registered_plugins = %v, want 5", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveStage("load", time.Second, 1)
	m.LoadFinished(nil, 1)
	if m.Registry() != nil {
		t.Error("Registry() on nil should be nil")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.LoadFinished(nil, 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"strata_registered_plugins 2", `strata_pipeline_loads_total{result="success"} 1`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
