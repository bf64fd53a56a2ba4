// Package prometheus renders authsync metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] reads a [authsync.Reconciler] and exposes an
// [http.Handler]. Counter names are authsync_*_total; the single histogram is
// authsync_initialize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate reconciler state.
package prometheus
