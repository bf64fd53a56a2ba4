package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authsync"
	"github.com/MrEthical07/authsync/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no Meter is supplied.
	ErrNilMeter = errors.New("otel exporter: nil meter")
	// ErrNilSource is returned when there is no reconciler to read.
	ErrNilSource = errors.New("otel exporter: nil reconciler")
)

// reconcilerStats is the read-only view of a Reconciler the exporter needs.
type reconcilerStats interface {
	MetricsSnapshot() authsync.MetricsSnapshot
	AuditDropped() uint64
}

// outcomeCounter mirrors one reconciler counter, such as profile hits or
// discarded stale writes.
type outcomeCounter struct {
	id  authsync.MetricID
	ins metric.Int64ObservableCounter
}

// latencyGauges mirrors one latency histogram as cumulative bucket gauges
// plus a sample count.
type latencyGauges struct {
	id      authsync.MetricID
	buckets [8]metric.Int64ObservableGauge
	samples metric.Int64ObservableGauge
}

// OTelExporter publishes reconciler counters and latencies through an
// OpenTelemetry Meter. Values are read at collection time; the exporter
// keeps no copy of its own.
type OTelExporter struct {
	stats        reconcilerStats
	registration metric.Registration
	outcomes     []outcomeCounter
	latencies    []latencyGauges
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers observable instruments on meter that read r on
// every collection.
func NewOTelExporter(meter metric.Meter, r *authsync.Reconciler) (*OTelExporter, error) {
	if r == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, r)
}

// NewOTelExporterFromSource is NewOTelExporter for anything exposing a
// metrics snapshot and an audit drop count.
func NewOTelExporterFromSource(meter metric.Meter, stats reconcilerStats) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if stats == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{stats: stats}
	var observables []metric.Observable
	for _, register := range []func(metric.Meter) ([]metric.Observable, error){
		e.registerOutcomes,
		e.registerLatencies,
		e.registerAuditDrops,
	} {
		obs, err := register(meter)
		if err != nil {
			return nil, err
		}
		observables = append(observables, obs...)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register reconciler callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *OTelExporter) registerOutcomes(meter metric.Meter) ([]metric.Observable, error) {
	obs := make([]metric.Observable, 0, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("reconciler counter %s: %w", def.Name, err)
		}
		e.outcomes = append(e.outcomes, outcomeCounter{id: def.ID, ins: ins})
		obs = append(obs, ins)
	}
	return obs, nil
}

func (e *OTelExporter) registerLatencies(meter metric.Meter) ([]metric.Observable, error) {
	var obs []metric.Observable
	for _, def := range internaldefs.HistogramDefs {
		g := latencyGauges{id: def.ID}
		for i, bound := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + bound
			ins, err := meter.Int64ObservableGauge(name,
				metric.WithDescription(def.Help+" Samples at or below "+internaldefs.HistogramBounds[i]+"s."))
			if err != nil {
				return nil, fmt.Errorf("latency bucket %s: %w", name, err)
			}
			g.buckets[i] = ins
			obs = append(obs, ins)
		}
		samples, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return nil, fmt.Errorf("latency count %s: %w", def.Name, err)
		}
		g.samples = samples
		obs = append(obs, samples)
		e.latencies = append(e.latencies, g)
	}
	return obs, nil
}

func (e *OTelExporter) registerAuditDrops(meter metric.Meter) ([]metric.Observable, error) {
	ins, err := meter.Int64ObservableCounter("authsync_audit_dropped_total",
		metric.WithDescription("Reconciler audit events shed because the dispatcher queue was full."))
	if err != nil {
		return nil, fmt.Errorf("audit drop counter: %w", err)
	}
	e.auditDropped = ins
	return []metric.Observable{ins}, nil
}

// observe reads one snapshot so every instrument in a collection agrees.
func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.stats.MetricsSnapshot()
	for _, c := range e.outcomes {
		o.ObserveInt64(c.ins, int64(snap.Counters[c.id]))
	}
	for _, g := range e.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[g.id]))
		for i, n := range cumulative {
			o.ObserveInt64(g.buckets[i], int64(n))
		}
		o.ObserveInt64(g.samples, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.stats.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
