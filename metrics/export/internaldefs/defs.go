package internaldefs

import (
	goGraph "github.com/MrEthical07/goGraph"
)

// CounterDef names one goGraph counter for exporters.
type CounterDef struct {
	ID   goGraph.MetricID
	Name string
	Help string
}

// HistogramDef names one goGraph histogram for exporters.
type HistogramDef struct {
	ID   goGraph.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter of audit events lost to back-pressure.
const AuditDroppedName = "gograph_audit_dropped_total"

// AuditDroppedHelp documents AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

var CounterDefs = []CounterDef{
	{ID: goGraph.MetricCanvasAuthSuccess, Name: "gograph_canvas_auth_success_total", Help: "Canvas authentications ending with a session."},
	{ID: goGraph.MetricCanvasAuthFailure, Name: "gograph_canvas_auth_failure_total", Help: "Canvas authentications ending with an error."},
	{ID: goGraph.MetricOAuthAuthSuccess, Name: "gograph_oauth_auth_success_total", Help: "Successful authorization-code exchanges."},
	{ID: goGraph.MetricOAuthAuthFailure, Name: "gograph_oauth_auth_failure_total", Help: "Failed OAuth authentications."},
	{ID: goGraph.MetricCodeExchange, Name: "gograph_code_exchange_total", Help: "Authorization-code exchanges attempted."},
	{ID: goGraph.MetricSignedRequestRejected, Name: "gograph_signed_request_rejected_total", Help: "Signed requests failing verification."},
	{ID: goGraph.MetricSessionRestored, Name: "gograph_session_restored_total", Help: "Sessions accepted from storage."},
	{ID: goGraph.MetricSessionDiscarded, Name: "gograph_session_discarded_total", Help: "Stored sessions dropped on signature re-verification."},
	{ID: goGraph.MetricSessionSaved, Name: "gograph_session_saved_total", Help: "Sessions written to storage."},
	{ID: goGraph.MetricSessionCleared, Name: "gograph_session_cleared_total", Help: "Sessions deleted from storage."},
	{ID: goGraph.MetricStorageError, Name: "gograph_storage_error_total", Help: "Session storage load and save failures."},
	{ID: goGraph.MetricAppTokenFetch, Name: "gograph_app_token_fetch_total", Help: "Client-credential token fetches sent upstream."},
	{ID: goGraph.MetricAPICall, Name: "gograph_api_call_total", Help: "Outbound API exchanges."},
	{ID: goGraph.MetricAPIError, Name: "gograph_api_error_total", Help: "Outbound API exchanges ending with an error."},
}

var HistogramDefs = []HistogramDef{
	{ID: goGraph.MetricAPILatency, Name: "gograph_api_latency_seconds", Help: "Outbound API exchange latency."},
}

// HistogramBounds are the bucket upper bounds in seconds as rendered in le labels.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramUpperBounds are the finite bounds of HistogramBounds. The +Inf bucket is
// implicit.
var HistogramUpperBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
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
