package generation

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"studyforge/internal/services"
)

// QuotaScope is the window a quota limit applies to.
type QuotaScope string

const (
	// ScopeMinute limits recover within about a minute and are retried.
	ScopeMinute QuotaScope = "minute"
	// ScopeDay limits recover at the provider's daily reset.
	ScopeDay QuotaScope = "day"
	// ScopeTier limits come from the account plan and need operator action.
	ScopeTier QuotaScope = "tier"
)

// QuotaError is a structured quota exhaustion carrying a recovery estimate.
type QuotaError struct {
	Generator  string
	Scope      QuotaScope
	Metric     string
	Limit      int64
	RetryAfter time.Duration
	RecoveryAt time.Time
	Message    string
}

func (e *QuotaError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "quota exceeded (%s)", e.Scope)
	if e.Generator != "" {
		fmt.Fprintf(&b, " on %s", e.Generator)
	}
	if e.Metric != "" {
		fmt.Fprintf(&b, ": metric %s", e.Metric)
	}
	if e.Limit > 0 {
		fmt.Fprintf(&b, " limit %d", e.Limit)
	}
	if !e.RecoveryAt.IsZero() {
		fmt.Fprintf(&b, ", recovers at %s", e.RecoveryAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// Retryable reports whether waiting and retrying can succeed within an invocation.
func (e *QuotaError) Retryable() bool {
	return e.Scope == ScopeMinute
}

func (e *QuotaError) Unwrap() error {
	if e.Retryable() {
		return services.ErrTransient
	}
	return services.ErrQuotaExceeded
}

// ErrorKind maps the quota onto the service error taxonomy.
func (e *QuotaError) ErrorKind() services.ErrorKind {
	if e.Retryable() {
		return services.ErrorKindTransient
	}
	return services.ErrorKindQuotaExceeded
}

// Suggestion is the operator-facing next step for a quota pause.
func (e *QuotaError) Suggestion() string {
	switch e.Scope {
	case ScopeTier:
		return "upgrade the provider plan or configure another generator in generation.generators"
	default:
		if e.RecoveryAt.IsZero() {
			return "wait for the provider quota to reset or configure another generator"
		}
		return fmt.Sprintf("wait until %s or configure another generator", e.RecoveryAt.UTC().Format(time.RFC3339))
	}
}

var quotaMarkers = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"quota",
	"resource_exhausted",
	"resource has been exhausted",
	"too many requests",
	"usage limit",
	"requests per",
}

var (
	dayMarkers    = []string{"per_day", "per-day", "perday", "per day", "daily", "requests per day", "rpd"}
	minuteMarkers = []string{"per_minute", "per-minute", "perminute", "per minute", "rpm", "tpm"}
	tierMarkers   = []string{"free_tier", "freetier", "free tier", "free-tier", "insufficient_quota", "billing", "plan limit"}
)

var (
	retryInPattern    = regexp.MustCompile(`(?i)(?:retry|try again) (?:in|after) ([0-9]+(?:\.[0-9]+)?)\s*(ms|milliseconds?|s|sec|seconds?)?`)
	retryDelayPattern = regexp.MustCompile(`(?i)"?retry_?delay"?\s*:\s*"?([0-9]+(?:\.[0-9]+)?)s"?`)
	metricPattern     = regexp.MustCompile(`(?i)(?:"?quota_?metric"?\s*[:=]|for metric\s*:)\s*"?([A-Za-z0-9_./-]+)`)
	perDayPattern     = regexp.MustCompile(`(?i)\b([A-Za-z0-9_./-]*_per_day[A-Za-z0-9_]*)`)
	perMinutePhrase   = regexp.MustCompile(`(?i)requests per minute|tokens per minute|requests per day`)
	limitPattern      = regexp.MustCompile(`(?i)(?:limit|quota_?value)"?\s*[:=]\s*"?([0-9]+)`)
)

// ClassifyQuota inspects a provider failure for quota exhaustion. It returns
// nil when the failure is not quota related. retryAfter is the parsed
// Retry-After header (zero when absent).
func ClassifyQuota(status int, text string, retryAfter time.Duration, now time.Time) *QuotaError {
	lower := strings.ToLower(text)
	if status != http.StatusTooManyRequests && !containsAny(lower, quotaMarkers) {
		return nil
	}
	q := &QuotaError{
		Scope:   quotaScope(lower),
		Metric:  quotaMetric(text),
		Limit:   quotaLimit(text),
		Message: summarize(text),
	}
	q.RetryAfter = retryAfter
	if q.RetryAfter <= 0 {
		q.RetryAfter = retryAfterFromText(text)
	}
	switch {
	case q.RetryAfter > 0:
		q.RecoveryAt = now.Add(q.RetryAfter)
	case q.Scope == ScopeMinute:
		q.RecoveryAt = now.Add(time.Minute)
	default:
		q.RecoveryAt = nextUTCMidnight(now)
	}
	return q
}

func quotaScope(lower string) QuotaScope {
	switch {
	case containsAny(lower, dayMarkers):
		return ScopeDay
	case containsAny(lower, minuteMarkers):
		return ScopeMinute
	case containsAny(lower, tierMarkers):
		return ScopeTier
	default:
		return ScopeMinute
	}
}

func quotaMetric(text string) string {
	if m := metricPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := perDayPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := perMinutePhrase.FindString(text); m != "" {
		return strings.ToLower(m)
	}
	return ""
}

func quotaLimit(text string) int64 {
	m := limitPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func retryAfterFromText(text string) time.Duration {
	if m := retryDelayPattern.FindStringSubmatch(text); m != nil {
		return parseSeconds(m[1], "s")
	}
	if m := retryInPattern.FindStringSubmatch(text); m != nil {
		return parseSeconds(m[1], m[2])
	}
	return 0
}

func parseSeconds(value, unit string) time.Duration {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		return 0
	}
	if strings.HasPrefix(strings.ToLower(unit), "m") {
		return time.Duration(f * float64(time.Millisecond))
	}
	return time.Duration(f * float64(time.Second))
}

func nextUTCMidnight(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
