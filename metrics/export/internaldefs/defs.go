// Package internaldefs carries the metric naming shared by the exporters:
// one definition per engine counter plus the request latency histogram.
// It exists so the prometheus and otel exporters cannot drift apart.
package internaldefs

import (
	bindflow "github.com/kvartin/bindflow"
)

// CounterDef binds one engine counter to its exported name.
type CounterDef struct {
	ID   bindflow.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exported name.
type HistogramDef struct {
	ID   bindflow.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the flow engine.
var CounterDefs = []CounterDef{
	{ID: bindflow.MetricRecoveryRequest, Name: "bindflow_recovery_request_total", Help: "Recovery code dispatch requests accepted by the server."},
	{ID: bindflow.MetricRecoveryRequestFailure, Name: "bindflow_recovery_request_failure_total", Help: "Recovery code dispatch requests rejected."},
	{ID: bindflow.MetricRecoveryCodeSuccess, Name: "bindflow_recovery_code_success_total", Help: "Recovery codes confirmed with a guard token issued."},
	{ID: bindflow.MetricRecoveryCodeFailure, Name: "bindflow_recovery_code_failure_total", Help: "Recovery code confirmations rejected."},
	{ID: bindflow.MetricRecoveryComplete, Name: "bindflow_recovery_complete_total", Help: "Recovery flows completed with a new password."},
	{ID: bindflow.MetricRecoveryRestart, Name: "bindflow_recovery_restart_total", Help: "Recovery flows restarted."},
	{ID: bindflow.MetricBindCredentialsSuccess, Name: "bindflow_bind_credentials_success_total", Help: "Bind credential submissions accepted."},
	{ID: bindflow.MetricBindCredentialsFailure, Name: "bindflow_bind_credentials_failure_total", Help: "Bind credential submissions rejected."},
	{ID: bindflow.MetricBindCodeSuccess, Name: "bindflow_bind_code_success_total", Help: "Bind codes confirmed."},
	{ID: bindflow.MetricBindCodeFailure, Name: "bindflow_bind_code_failure_total", Help: "Bind code confirmations rejected."},
	{ID: bindflow.MetricBindComplete, Name: "bindflow_bind_complete_total", Help: "Bind flows completed."},
	{ID: bindflow.MetricBindRestart, Name: "bindflow_bind_restart_total", Help: "Bind flows restarted."},
	{ID: bindflow.MetricStaleResultDiscarded, Name: "bindflow_stale_result_discarded_total", Help: "Late submission results discarded after restart, back, or logout."},
	{ID: bindflow.MetricResendThrottled, Name: "bindflow_resend_throttled_total", Help: "Code resend requests refused by the local cooldown."},
	{ID: bindflow.MetricSessionSet, Name: "bindflow_session_set_total", Help: "Session tokens installed."},
	{ID: bindflow.MetricSessionCleared, Name: "bindflow_session_cleared_total", Help: "Sessions cleared."},
	{ID: bindflow.MetricProfileRefreshSuccess, Name: "bindflow_profile_refresh_success_total", Help: "Profile snapshot refreshes that succeeded."},
	{ID: bindflow.MetricProfileRefreshFailure, Name: "bindflow_profile_refresh_failure_total", Help: "Profile snapshot refreshes that failed."},
	{ID: bindflow.MetricIdentityBindSuccess, Name: "bindflow_identity_bind_success_total", Help: "Identity assertions bound."},
	{ID: bindflow.MetricIdentityBindFailure, Name: "bindflow_identity_bind_failure_total", Help: "Identity bind exchanges rejected."},
	{ID: bindflow.MetricIdentityAbandoned, Name: "bindflow_identity_abandoned_total", Help: "Identity widgets closed without an assertion."},
}

// HistogramDefs is an exported constant or variable used by the flow engine.
var HistogramDefs = []HistogramDef{
	{ID: bindflow.MetricRequestLatency, Name: "bindflow_request_latency_seconds", Help: "Collaborator round-trip latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the flow engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the flow engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form both
// export formats want.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
