package stats

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DurationUnavailable is returned when either endpoint is missing
	DurationUnavailable = "unavailable"
	// DurationInvalid is returned when an endpoint cannot be parsed
	DurationInvalid = "invalid date"
	// durationZero is returned when the difference rounds down to zero seconds
	durationZero = "less than one second"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// FormatDuration renders the absolute distance between start and end as
// "2 days, 3 hours and 35 minutes". Each endpoint may be epoch milliseconds
// (any integer or float type, or a numeric string), a time.Time, a *time.Time
// or a date string.
func FormatDuration(start, end any) string {
	s, sok, serr := toMillis(start)
	e, eok, eerr := toMillis(end)
	if !sok || !eok {
		return DurationUnavailable
	}
	if serr != nil || eerr != nil {
		return DurationInvalid
	}

	// The span between two int64 values always fits in a uint64.
	var diff uint64
	if e >= s {
		diff = uint64(e) - uint64(s)
	} else {
		diff = uint64(s) - uint64(e)
	}
	return formatSeconds(diff / 1000)
}

// FormatElapsed renders a duration using days, hours, minutes and seconds
func FormatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		return formatSeconds(uint64(-secs))
	}
	return formatSeconds(uint64(secs))
}

func formatSeconds(total uint64) string {
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	var parts []string
	for _, u := range []struct {
		n    uint64
		word string
	}{
		{days, "day"},
		{hours, "hour"},
		{minutes, "minute"},
		{seconds, "second"},
	} {
		if u.n == 0 {
			continue
		}
		parts = append(parts, plural(u.n, u.word))
	}

	switch len(parts) {
	case 0:
		return durationZero
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

func plural(n uint64, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// toMillis converts v to epoch milliseconds. ok is false when v is missing.
func toMillis(v any) (ms int64, ok bool, err error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case int:
		return int64(t), true, nil
	case int64:
		return t, true, nil
	case int32:
		return int64(t), true, nil
	case uint:
		return uintMillis(uint64(t))
	case uint32:
		return int64(t), true, nil
	case uint64:
		return uintMillis(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, true, fmt.Errorf("not a finite number: %v", t)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
		if t < math.MinInt64 || t >= math.MaxInt64 {
			return 0, true, fmt.Errorf("timestamp out of range: %v", t)
		}
		return int64(t), true, nil
	case time.Time:
		if t.IsZero() {
			return 0, false, nil
		}
		return t.UnixMilli(), true, nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return 0, false, nil
		}
		return t.UnixMilli(), true, nil
	case string:
		return parseDateString(t)
	case *string:
		if t == nil {
			return 0, false, nil
		}
		return parseDateString(*t)
	default:
		return 0, true, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func uintMillis(n uint64) (int64, bool, error) {
	if n > math.MaxInt64 {
		return 0, true, fmt.Errorf("timestamp out of range: %d", n)
	}
	return int64(n), true, nil
}

func parseDateString(s string) (int64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true, nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UnixMilli(), true, nil
		}
	}
	return 0, true, fmt.Errorf("unrecognized date %q", s)
}
