package internaldefs

import (
	"github.com/MrEthical07/authsync"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authsync.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authsync.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authsync.MetricInitialize, Name: "authsync_initialize_total", Help: "Initialize passes started."},
	{ID: authsync.MetricInitializeNoSession, Name: "authsync_initialize_no_session_total", Help: "Initialize passes that found no session."},
	{ID: authsync.MetricSessionQueryFailure, Name: "authsync_session_query_failure_total", Help: "Session queries that failed in transport."},
	{ID: authsync.MetricProfileHit, Name: "authsync_profile_hit_total", Help: "Profile lookups that returned a row."},
	{ID: authsync.MetricProfileMiss, Name: "authsync_profile_miss_total", Help: "Profile lookups that found no row."},
	{ID: authsync.MetricProfileLookupFailure, Name: "authsync_profile_lookup_failure_total", Help: "Profile lookups that failed in transport."},
	{ID: authsync.MetricProfileRetry, Name: "authsync_profile_retry_total", Help: "Waits between profile lookup attempts."},
	{ID: authsync.MetricProfileRetryExhausted, Name: "authsync_profile_retry_exhausted_total", Help: "Initialize passes that ended without a profile."},
	{ID: authsync.MetricStaleWriteDiscarded, Name: "authsync_stale_write_discarded_total", Help: "Lookup results discarded because the user changed."},
	{ID: authsync.MetricEventSignedIn, Name: "authsync_event_signed_in_total", Help: "Signed-in change events."},
	{ID: authsync.MetricEventSignedOut, Name: "authsync_event_signed_out_total", Help: "Signed-out change events."},
	{ID: authsync.MetricEventTokenRefreshed, Name: "authsync_event_token_refreshed_total", Help: "Token-refreshed change events."},
	{ID: authsync.MetricSignOut, Name: "authsync_sign_out_total", Help: "SignOut calls."},
	{ID: authsync.MetricSignOutFailure, Name: "authsync_sign_out_failure_total", Help: "SignOut calls whose external sign-out failed."},
	{ID: authsync.MetricMount, Name: "authsync_mount_total", Help: "Mount calls."},
	{ID: authsync.MetricUnmount, Name: "authsync_unmount_total", Help: "Effective Unmount calls."},
	{ID: authsync.MetricGuardRender, Name: "authsync_guard_render_total", Help: "Guard decisions to render."},
	{ID: authsync.MetricGuardWait, Name: "authsync_guard_wait_total", Help: "Guard decisions to wait."},
	{ID: authsync.MetricGuardRedirect, Name: "authsync_guard_redirect_total", Help: "Guard decisions to redirect."},
	{ID: authsync.MetricGuardSelfHeal, Name: "authsync_guard_self_heal_total", Help: "Profile refreshes triggered by the guard."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: authsync.MetricInitializeLatency, Name: "authsync_initialize_latency_seconds", Help: "Initialize latency histogram."},
}

// HistogramBounds are the upper bounds of the eight buckets, in seconds.
var HistogramBounds = []string{
	"0.01",
	"0.05",
	"0.1",
	"0.25",
	"0.6",
	"1.1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix are HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_05",
	"0_1",
	"0_25",
	"0_6",
	"1_1",
	"2_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
