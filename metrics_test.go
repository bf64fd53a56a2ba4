package authsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authsync/profile"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricProfileHit)

	if got := m.Value(MetricProfileHit); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsNilIsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricProfileHit)
	m.Observe(MetricInitializeLatency, time.Millisecond)
	if m.Value(MetricProfileHit) != 0 || m.Enabled() {
		t.Fatal("nil metrics must record nothing")
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
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
				m.Inc(MetricProfileRetry)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricProfileRetry); got != want {
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
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		510 * time.Millisecond,
		1020 * time.Millisecond,
		2 * time.Second,
		4 * time.Second,
	}

	for _, d := range observations {
		m.Observe(MetricInitializeLatency, d)
	}
	m.Observe(MetricProfileHit, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricInitializeLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestReconcilerCountsLookupOutcomes(t *testing.T) {
	store := newFakeProfiles(testProfile("u1", profile.RoleStudent))
	store.failNext("u1", profile.ErrNotFound)
	r := newTestReconciler(t, newFakeSource(testUser("u1")), store)

	r.Initialize(context.Background())

	snap := r.MetricsSnapshot()
	if snap.Counters[MetricInitialize] != 1 {
		t.Fatalf("expected one initialize, got %d", snap.Counters[MetricInitialize])
	}
	if snap.Counters[MetricProfileMiss] != 1 || snap.Counters[MetricProfileHit] != 1 {
		t.Fatalf("expected one miss and one hit, got %d/%d", snap.Counters[MetricProfileMiss], snap.Counters[MetricProfileHit])
	}
	if snap.Counters[MetricProfileRetry] != 1 {
		t.Fatalf("expected one retry wait, got %d", snap.Counters[MetricProfileRetry])
	}
	var total uint64
	for _, v := range snap.Histograms[MetricInitializeLatency] {
		total += v
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
}

func TestBuildWithMetricsDisabled(t *testing.T) {
	r, err := New().
		WithMetricsEnabled(false).
		WithSessionSource(newFakeSource(nil)).
		WithProfileStore(newFakeProfiles()).
		Build()
	if err != nil {
		t.Fatalf("build with metrics disabled: %v", err)
	}
	defer r.Close()

	if r.Metrics().Enabled() || r.Config().Metrics.EnableLatencyHistograms {
		t.Fatalf("expected metrics and histograms off, got %+v", r.Config().Metrics)
	}
	r.Initialize(context.Background())
	if r.Metrics().Value(MetricProfileMiss) != 0 {
		t.Fatal("disabled metrics must not count")
	}
}
