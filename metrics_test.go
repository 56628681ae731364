package tollgate

import (
	"sync"
	"testing"
)

func TestMetrics_IncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricBasicSuccess)
	m.Inc(MetricBasicSuccess)
	m.Add(MetricSweepSessionsPurged, 7)

	if got := m.Value(MetricBasicSuccess); got != 2 {
		t.Fatalf("Value = %d, want 2", got)
	}
	snap := m.Snapshot()
	if snap.Counters[MetricBasicSuccess] != 2 || snap.Counters[MetricSweepSessionsPurged] != 7 {
		t.Fatalf("unexpected snapshot: %+v", snap.Counters)
	}
	if snap.Counters[MetricBearerSuccess] != 0 {
		t.Fatalf("untouched counter non-zero")
	}
}

func TestMetrics_DisabledAndNilAreInert(t *testing.T) {
	var nilMetrics *Metrics
	nilMetrics.Inc(MetricBasicSuccess)
	if nilMetrics.Value(MetricBasicSuccess) != 0 {
		t.Fatal("nil metrics must read zero")
	}

	disabled := NewMetrics(MetricsConfig{})
	disabled.Inc(MetricBasicSuccess)
	if disabled.Value(MetricBasicSuccess) != 0 {
		t.Fatal("disabled metrics must not count")
	}
}

func TestMetrics_ConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricTokenIssued)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricTokenIssued); got != 8000 {
		t.Fatalf("Value = %d, want 8000", got)
	}
}

func TestMetricID_Names(t *testing.T) {
	seen := map[string]bool{}
	for _, id := range MetricIDs() {
		name := id.Name()
		if name == "" || name == "unknown" {
			t.Fatalf("metric %d has no name", id)
		}
		if seen[name] {
			t.Fatalf("duplicate metric name %q", name)
		}
		seen[name] = true
	}
}
