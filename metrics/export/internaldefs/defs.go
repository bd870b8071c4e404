package internaldefs

import (
	mfakit "github.com/averix/mfakit"
)

// CounterDef binds a core metric ID to its exported name and help text.
type CounterDef struct {
	ID   mfakit.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its exported name and help
// text.
type HistogramDef struct {
	ID   mfakit.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: mfakit.MetricSetupStarted, Name: "mfakit_setup_started_total", Help: "Started enrollment setups."},
	{ID: mfakit.MetricSetupDeliveryFailed, Name: "mfakit_setup_delivery_failed_total", Help: "Setup code deliveries rejected by the sender."},
	{ID: mfakit.MetricSetupVerified, Name: "mfakit_setup_verified_total", Help: "Enrollments completed by verification."},
	{ID: mfakit.MetricSetupFailed, Name: "mfakit_setup_failed_total", Help: "Failed setup verification attempts."},
	{ID: mfakit.MetricSetupExpired, Name: "mfakit_setup_expired_total", Help: "Setup verifications rejected for expiry."},
	{ID: mfakit.MetricAttemptsExceeded, Name: "mfakit_attempts_exceeded_total", Help: "Setup challenges invalidated by the attempt cap."},
	{ID: mfakit.MetricMethodDisabled, Name: "mfakit_method_disabled_total", Help: "Method disable operations."},
	{ID: mfakit.MetricBackupCodesGenerated, Name: "mfakit_backup_codes_generated_total", Help: "Backup code set generations."},
	{ID: mfakit.MetricBackupCodeUsed, Name: "mfakit_backup_code_used_total", Help: "Successful backup code redemptions."},
	{ID: mfakit.MetricBackupCodeFailed, Name: "mfakit_backup_code_failed_total", Help: "Failed backup code redemptions."},
	{ID: mfakit.MetricWebAuthnStarted, Name: "mfakit_webauthn_started_total", Help: "Started WebAuthn registration ceremonies."},
	{ID: mfakit.MetricWebAuthnCompleted, Name: "mfakit_webauthn_completed_total", Help: "Completed WebAuthn registration ceremonies."},
	{ID: mfakit.MetricWebAuthnFailed, Name: "mfakit_webauthn_failed_total", Help: "Rejected WebAuthn registration ceremonies."},
	{ID: mfakit.MetricRateLimitHit, Name: "mfakit_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

var HistogramDefs = []HistogramDef{
	{ID: mfakit.MetricVerifyLatency, Name: "mfakit_verify_latency_seconds", Help: "VerifySetup latency histogram."},
}

// HistogramBounds are the upper bounds of the core latency buckets,
// rendered the way Prometheus expects them in le labels.
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

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// OpenTelemetry instrument names.
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

// CumulativeBuckets converts per-bucket counts into the cumulative form
// both exporters emit.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
