package internaldefs

import (
	"github.com/MrEthical07/authlife"
)

type CounterDef struct {
	ID   authlife.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authlife.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authlife.MetricSecretRotated, Name: "authlife_secret_rotated_total", Help: "Completed signing-secret rotations."},
	{ID: authlife.MetricSecretEmergencyRotation, Name: "authlife_secret_emergency_rotation_total", Help: "Emergency rotations that revoked all previous secrets."},
	{ID: authlife.MetricRotationFailed, Name: "authlife_rotation_failed_total", Help: "Rotations that failed to generate or install a secret."},
	{ID: authlife.MetricRotationNotifyFailed, Name: "authlife_rotation_notify_failed_total", Help: "Failed key-management notifications."},
	{ID: authlife.MetricAutoRotationFired, Name: "authlife_auto_rotation_fired_total", Help: "Scheduler firings."},
	{ID: authlife.MetricSessionCreated, Name: "authlife_session_created_total", Help: "Created sessions."},
	{ID: authlife.MetricSessionCreateFailed, Name: "authlife_session_create_failed_total", Help: "Session creations that failed."},
	{ID: authlife.MetricSessionLookupHit, Name: "authlife_session_lookup_hit_total", Help: "Session lookups that returned a live session."},
	{ID: authlife.MetricSessionLookupMiss, Name: "authlife_session_lookup_miss_total", Help: "Session lookups that found no live session."},
	{ID: authlife.MetricSessionExpired, Name: "authlife_session_expired_total", Help: "Expired sessions evicted on read."},
	{ID: authlife.MetricSessionActivityRecorded, Name: "authlife_session_activity_recorded_total", Help: "Activity updates written to the store."},
	{ID: authlife.MetricSessionActivitySkipped, Name: "authlife_session_activity_skipped_total", Help: "Activity updates skipped inside the minimum extension interval."},
	{ID: authlife.MetricSessionExtended, Name: "authlife_session_extended_total", Help: "Activity updates that moved expiry forward."},
	{ID: authlife.MetricSessionInvalidated, Name: "authlife_session_invalidated_total", Help: "Explicit session invalidations."},
	{ID: authlife.MetricUserSessionsInvalidated, Name: "authlife_user_sessions_invalidated_total", Help: "Bulk per-user invalidations."},
	{ID: authlife.MetricSessionMFAVerified, Name: "authlife_session_mfa_verified_total", Help: "Sessions that completed MFA."},
	{ID: authlife.MetricSessionsSwept, Name: "authlife_sessions_swept_total", Help: "Sessions removed by expiry sweeps."},
	{ID: authlife.MetricSessionStoreError, Name: "authlife_session_store_error_total", Help: "Session store failures."},
	{ID: authlife.MetricAuditSinkFailed, Name: "authlife_audit_sink_failed_total", Help: "Audit events rejected by the sink."},
}

var HistogramDefs = []HistogramDef{
	{ID: authlife.MetricSessionLookupLatency, Name: "authlife_session_lookup_latency_seconds", Help: "Session store lookup latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels are the "le" label values, one per engine bucket.
var HistogramBoundLabels = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

const (
	AuditDroppedName = "authlife_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped on a full dispatcher buffer."
)

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
