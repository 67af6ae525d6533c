package resilience

import (
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// retryDurationPattern matches Go-style duration hints such as
// "Please try again in 7.66s" or "try again in 2m59.5s".
var retryDurationPattern = regexp.MustCompile(`(?i)try again in\s+([0-9][0-9hms.]*)`)

// retrySecondsPatterns match bare second counts: "retry_delay { seconds: 12 }",
// "retryDelay": "12s", "Retry-After: 30", "retry in 30 seconds".
var retrySecondsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry[_ ]?delay\W*(?:seconds\W*)?(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)retry[- _]?after\W*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)(?:retry|try again)\s+in\s+(\d+(?:\.\d+)?)\s*(?:s|sec|secs|seconds)\b`),
}

// ParseRetryAfter mines a retry delay from a provider's diagnostic text.
// It returns false when nothing usable is found.
func ParseRetryAfter(text string) (time.Duration, bool) {
	if strings.TrimSpace(text) == "" {
		return 0, false
	}

	if m := retryDurationPattern.FindStringSubmatch(text); m != nil {
		raw := strings.TrimRight(m[1], ".")
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d, true
		}
	}

	for _, re := range retrySecondsPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		secs, err := strconv.ParseFloat(m[1], 64)
		if err != nil || secs <= 0 {
			continue
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	return 0, false
}

// ParseRetryAfterHeader parses an HTTP Retry-After header value, either
// delta-seconds or an HTTP date.
func ParseRetryAfterHeader(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

// RetryAfterSeconds rounds a delay up to whole seconds, substituting
// fallback when the delay is unknown.
func RetryAfterSeconds(d, fallback time.Duration) int {
	if d <= 0 {
		d = fallback
	}
	return int(math.Ceil(d.Seconds()))
}
