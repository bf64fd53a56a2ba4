package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/authsync"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authsync.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authsync.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authsync.MetricsSnapshot{
		Counters:   make(map[authsync.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[authsync.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authsync-test")

	src := &fakeSource{
		snapshot: authsync.MetricsSnapshot{
			Counters: map[authsync.MetricID]uint64{
				authsync.MetricProfileHit: 3,
			},
			Histograms: map[authsync.MetricID][]uint64{
				authsync.MetricInitializeLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authsync-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authsync-test")

	src := &fakeSource{
		snapshot: authsync.MetricsSnapshot{
			Counters: map[authsync.MetricID]uint64{
				authsync.MetricProfileHit: 1,
			},
			Histograms: map[authsync.MetricID][]uint64{
				authsync.MetricInitializeLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[authsync.MetricProfileHit] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestExporterReadsReconciler(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authsync-test")

	if _, err := NewOTelExporter(meter, nil); err == nil {
		t.Fatal("expected error for nil reconciler")
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterObservesSnapshotValues(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authsync-test")

	src := &fakeSource{
		snapshot: authsync.MetricsSnapshot{
			Counters: map[authsync.MetricID]uint64{
				authsync.MetricStaleWriteDiscarded: 2,
			},
			Histograms: map[authsync.MetricID][]uint64{
				authsync.MetricInitializeLatency: {1, 2, 0, 0, 0, 0, 0, 1},
			},
		},
		dropped: 5,
	}
	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	got := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					got[m.Name] = data.DataPoints[0].Value
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					got[m.Name] = data.DataPoints[0].Value
				}
			}
		}
	}

	want := map[string]int64{
		"authsync_stale_write_discarded_total":               2,
		"authsync_profile_hit_total":                         0,
		"authsync_initialize_latency_seconds_bucket_le_0_05": 3,
		"authsync_initialize_latency_seconds_bucket_le_inf":  4,
		"authsync_initialize_latency_seconds_count":          4,
		"authsync_audit_dropped_total":                       5,
	}
	for name, v := range want {
		if got[name] != v {
			t.Fatalf("%s: expected %d, got %d (all: %v)", name, v, got[name], got)
		}
	}
}
