// ABOUTME: Rate limit and quiet hours gate for outbound notifications
// ABOUTME: Pure decision function over a preference and the last logged send

package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/2389/relay-gateway/internal/store"
)

// Reason explains a gate decision.
type Reason string

const (
	ReasonOK          Reason = "ok"
	ReasonRateLimited Reason = "rate_limited"
	ReasonQuietHours  Reason = "quiet_hours"
)

// Decision is the outcome of the notification gate.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// CanNotify decides whether a user may be notified now. It is a pure
// function: the last-sent timestamp is read from the notification log by the
// caller, so there is no hidden process-wide state.
//
// The rate-limit boundary is inclusive: a send exactly rateLimitSeconds ago
// allows a new one. Quiet-hours suppression is silent and does not consume
// or reset the rate-limit clock; delivery resumes once the window ends.
func CanNotify(pref *store.NotificationPreference, lastSentAt *time.Time, now time.Time) Decision {
	rateLimit := pref.RateLimitSeconds
	if rateLimit <= 0 {
		rateLimit = store.DefaultRateLimitSeconds
	}

	if lastSentAt != nil && now.Sub(*lastSentAt) < time.Duration(rateLimit)*time.Second {
		return Decision{Allowed: false, Reason: ReasonRateLimited}
	}

	if inQuietHours(pref.QuietStart, pref.QuietEnd, now) {
		return Decision{Allowed: false, Reason: ReasonQuietHours}
	}

	return Decision{Allowed: true, Reason: ReasonOK}
}

// inQuietHours reports whether now's wall-clock time falls in the configured
// window. start > end denotes an overnight span (e.g. 22:00-07:00). Absent
// or unparseable fields mean never quiet.
func inQuietHours(start, end string, now time.Time) bool {
	if start == "" || end == "" {
		return false
	}

	startMin, err := parseClock(start)
	if err != nil {
		return false
	}
	endMin, err := parseClock(end)
	if err != nil {
		return false
	}

	nowMin := now.Hour()*60 + now.Minute()

	if startMin <= endMin {
		// Same-day window
		return nowMin >= startMin && nowMin < endMin
	}
	// Overnight window
	return nowMin >= startMin || nowMin < endMin
}

// parseClock parses a wall-clock "HH:MM" string into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}
