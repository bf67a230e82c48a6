package internaldefs

import (
	"github.com/panelkit/passkey"
)

// CounterDef binds one engine counter to its exported metric name.
//
// CounterDef instances are configured at package init and treated as
// immutable afterwards.
type CounterDef struct {
	ID   passkey.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: passkey.MetricRegistrationBegin, Name: "passkey_registration_begin_total", Help: "Started registration ceremonies."},
	{ID: passkey.MetricRegistrationSuccess, Name: "passkey_registration_success_total", Help: "Persisted credentials."},
	{ID: passkey.MetricRegistrationFailure, Name: "passkey_registration_failure_total", Help: "Rejected registration responses."},
	{ID: passkey.MetricAuthenticationBegin, Name: "passkey_authentication_begin_total", Help: "Started authentication ceremonies."},
	{ID: passkey.MetricAuthenticationSuccess, Name: "passkey_authentication_success_total", Help: "Verified assertions."},
	{ID: passkey.MetricAuthenticationFailure, Name: "passkey_authentication_failure_total", Help: "Rejected assertions."},
	{ID: passkey.MetricChallengeReplay, Name: "passkey_challenge_replay_total", Help: "Verification attempts against expired or consumed challenges."},
	{ID: passkey.MetricCounterSuspicious, Name: "passkey_counter_suspicious_total", Help: "Sign counters that failed to advance past a nonzero stored value."},
	{ID: passkey.MetricCacheDegraded, Name: "passkey_challenge_cache_degraded_total", Help: "Challenge writes that fell back to the in-memory store."},
}

// AuditDroppedName is the exported name of the audit drop counter, which
// lives outside the snapshot.
const AuditDroppedName = "passkey_audit_dropped_total"

// AuditDroppedHelp describes the audit drop counter.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
