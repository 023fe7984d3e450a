package bindflow

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricRecoveryComplete)

	if got := m.Value(MetricRecoveryComplete); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricRecoveryComplete)
	m.Inc(MetricRecoveryComplete)
	m.Inc(MetricRecoveryComplete)

	if got := m.Value(MetricRecoveryComplete); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricBindComplete)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricBindComplete); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricRequestLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricRequestLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresNonLatencyIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	m.Observe(MetricRecoveryComplete, 3*time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricRecoveryComplete]; ok {
		t.Fatal("expected no histogram for a counter id")
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricRecoveryComplete)
	m.Inc(MetricRecoveryCodeFailure)
	m.Inc(MetricRecoveryCodeFailure)
	m.Observe(MetricRequestLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricRecoveryComplete] != 1 {
		t.Fatalf("expected MetricRecoveryComplete=1 got %d", snap.Counters[MetricRecoveryComplete])
	}
	if snap.Counters[MetricRecoveryCodeFailure] != 2 {
		t.Fatalf("expected MetricRecoveryCodeFailure=2 got %d", snap.Counters[MetricRecoveryCodeFailure])
	}
	if len(snap.Histograms[MetricRequestLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricRequestLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricRequestLatency][0])
	}
}

func TestEngineLatencyHistogramPopulatedByFlow(t *testing.T) {
	f := newFakeAPI(t)
	engine, _, _ := newTestEngine(t, f, func(b *Builder) {
		b.WithLatencyHistograms(true)
	})

	flow, err := engine.StartRecovery(nil)
	if err != nil {
		t.Fatalf("StartRecovery failed: %v", err)
	}
	if err := flow.SubmitEmail(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("SubmitEmail failed: %v", err)
	}

	snap := engine.MetricsSnapshot()
	buckets := snap.Histograms[MetricRequestLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	var total uint64
	for _, v := range buckets {
		total += v
	}
	if total == 0 {
		t.Fatal("expected at least one latency observation")
	}
}

func TestEngineMetricsDisabledSnapshotEmpty(t *testing.T) {
	f := newFakeAPI(t)
	engine, _, _ := newTestEngine(t, f, func(b *Builder) {
		b.WithMetricsEnabled(false)
	})

	flow, err := engine.StartRecovery(nil)
	if err != nil {
		t.Fatalf("StartRecovery failed: %v", err)
	}
	if err := flow.SubmitEmail(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("SubmitEmail failed: %v", err)
	}

	snap := engine.MetricsSnapshot()
	for id, v := range snap.Counters {
		if v != 0 {
			t.Fatalf("expected no counts when disabled, got id %d = %d", id, v)
		}
	}
}
