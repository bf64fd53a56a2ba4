package authsync

import (
	"fmt"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity uint8

const (
	// LintInfo marks a setting worth knowing about.
	LintInfo LintSeverity = iota
	// LintWarn marks a setting that changes user-visible behavior.
	LintWarn
)

// LintWarning is one advisory finding about a valid Config.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list returned by Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that validate but are likely unintended. It never
// fails; call Validate for hard errors.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Retry.MaxAttempts == 1 {
		add("retry_disabled", LintWarn,
			"profile lookup is never retried; a freshly provisioned user may land without a role")
	}
	if c.Retry.Delay == 0 && c.Retry.MaxAttempts > 1 {
		add("retry_no_delay", LintWarn,
			"retries run back to back and cannot absorb provisioning lag")
	}
	if wait := time.Duration(max(c.Retry.MaxAttempts-1, 0)) * c.Retry.Delay; wait > 5*time.Second {
		add("retry_wait_long", LintWarn,
			fmt.Sprintf("initialization may keep views waiting for %s", wait))
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", LintInfo,
			"a slow audit sink will stall reconciliation while the buffer is full")
	}
	if !c.Metrics.Enabled {
		add("metrics_disabled", LintInfo, "retry exhaustion will only be visible in logs")
	}
	if c.Session.TokenTTL > 24*time.Hour {
		add("token_ttl_long", LintInfo, "session tokens outlive a day")
	}
	if n := len(c.Session.SigningSecret); n > 0 && n < 32 {
		add("signing_secret_short", LintWarn, "HS256 signing secret is shorter than 32 bytes")
	}

	return ws
}
