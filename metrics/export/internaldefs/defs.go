package internaldefs

import (
	authkernel "github.com/authkernel/authkernel"
)

// CounterDef maps one engine counter to its exported metric name.
type CounterDef struct {
	ID   authkernel.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exported metric name.
type HistogramDef struct {
	ID   authkernel.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authkernel.MetricLoginSuccess, Name: "authkernel_login_success_total", Help: "Successful login attempts."},
	{ID: authkernel.MetricLoginFailure, Name: "authkernel_login_failure_total", Help: "Failed login attempts."},
	{ID: authkernel.MetricLoginRateLimited, Name: "authkernel_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authkernel.MetricRegisterSuccess, Name: "authkernel_register_success_total", Help: "Successful user registrations."},
	{ID: authkernel.MetricRegisterDuplicate, Name: "authkernel_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authkernel.MetricRegisterFailure, Name: "authkernel_register_failure_total", Help: "Failed user registrations."},
	{ID: authkernel.MetricRefreshSuccess, Name: "authkernel_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authkernel.MetricRefreshFailure, Name: "authkernel_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: authkernel.MetricRefreshReuseDetected, Name: "authkernel_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authkernel.MetricValidateSuccess, Name: "authkernel_validate_success_total", Help: "Successful access token validations."},
	{ID: authkernel.MetricValidateFailure, Name: "authkernel_validate_failure_total", Help: "Failed access token validations."},
	{ID: authkernel.MetricSessionCreated, Name: "authkernel_session_created_total", Help: "Created sessions."},
	{ID: authkernel.MetricSessionInvalidated, Name: "authkernel_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: authkernel.MetricLogout, Name: "authkernel_logout_total", Help: "Single-session logout operations."},
	{ID: authkernel.MetricLogoutAll, Name: "authkernel_logout_all_total", Help: "Logout-all operations."},
	{ID: authkernel.MetricRateLimitHit, Name: "authkernel_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: authkernel.MetricPermissionCheck, Name: "authkernel_permission_check_total", Help: "Permission evaluations."},
	{ID: authkernel.MetricPermissionDenied, Name: "authkernel_permission_denied_total", Help: "Permission evaluations that denied."},
}

var HistogramDefs = []HistogramDef{
	{ID: authkernel.MetricValidateLatency, Name: "authkernel_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's fixed
// latency buckets. Must match the bucketing in the core package.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket (including the implicit +Inf) for
// backends that flatten histograms into per-bucket gauges.
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

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// expected by Prometheus and OTel.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
