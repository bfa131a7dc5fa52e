package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"HTTPRequestsInFlight", HTTPRequestsInFlight},
		{"DBQueryTotal", DBQueryTotal},
		{"DBQueryDuration", DBQueryDuration},
		{"DBSizeBytes", DBSizeBytes},
		{"CacheHits", CacheHits},
		{"CacheMisses", CacheMisses},
		{"CacheInvalidations", CacheInvalidations},
		{"CacheBackendErrors", CacheBackendErrors},
		{"GenerationsTotal", GenerationsTotal},
		{"GenerationPhaseDuration", GenerationPhaseDuration},
		{"GenerationQueueDepth", GenerationQueueDepth},
		{"GenerationRunning", GenerationRunning},
		{"GenerationThrottled", GenerationThrottled},
		{"SchedulerPlansTotal", SchedulerPlansTotal},
		{"SchedulerCancellations", SchedulerCancellations},
		{"CleanRunsTotal", CleanRunsTotal},
		{"CleanRemovedTotal", CleanRemovedTotal},
		{"MemoryPaused", MemoryPaused},
		{"AppInfo", AppInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestInitializeMetricsPopulatesLabels(t *testing.T) {
	InitializeMetrics()

	tests := []struct {
		name      string
		collector prometheus.Collector
		minSeries int
	}{
		{"cache hits per backend", CacheHits, len(Backends)},
		{"generation states", GenerationsTotal, len(GenerationStates)},
		{"phases", GenerationPhaseDuration, len(GenerationPhases)},
		{"plans per mode", SchedulerPlansTotal, len(PreloadModes)},
		{"db files", DBSizeBytes, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.CollectAndCount(tt.collector); got < tt.minSeries {
				t.Errorf("series = %d, want at least %d", got, tt.minSeries)
			}
		})
	}
}

func TestMetricNamesArePrefixed(t *testing.T) {
	InitializeMetrics()

	reg := prometheus.NewPedanticRegistry()
	for _, c := range []prometheus.Collector{CacheHits, GenerationsTotal, SchedulerPlansTotal, CleanRunsTotal} {
		if err := reg.Register(c); err != nil {
			t.Fatalf("Register() error: %v", err)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "thumbnail_engine_") {
			t.Errorf("metric %q lacks the thumbnail_engine_ prefix", mf.GetName())
		}
	}
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.2.3", "abc123", "go1.25")

	if got := testutil.ToFloat64(AppInfo.WithLabelValues("1.2.3", "abc123", "go1.25")); got != 1 {
		t.Errorf("AppInfo = %v, want 1", got)
	}
}
