package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"linkwatch/app/internal/models"
)

func samples(pattern string) []models.CheckSample {
	out := make([]models.CheckSample, 0, len(pattern))
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range pattern {
		out = append(out, models.CheckSample{
			Success:   c == '+',
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func repeat(c string, n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += c
	}
	return s
}

// --------------- CountDowntimeEvents ---------------

func TestCountDowntimeEvents(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		threshold int
		want      int
	}{
		{"empty", "", 3, 0},
		{"all up", "+++++", 3, 0},
		{"below threshold", "--+--+", 3, 0},
		{"exactly threshold", "---", 3, 1},
		{"longer run counts once", "--------", 3, 1},
		{"two runs", "---+---", 3, 2},
		{"ten failures threshold ten", repeat("-", 10), 10, 1},
		{"ten, one up, ten", repeat("-", 10) + "+" + repeat("-", 10), 10, 2},
		{"nine is not enough", repeat("-", 9) + "+" + repeat("-", 9), 10, 0},
		{"threshold one counts each run", "-+--+---", 1, 3},
		{"zero threshold treated as one", "-+-", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountDowntimeEvents(samples(tt.pattern), tt.threshold))
		})
	}
}

func TestCountDowntimeEvents_MatchesRunCount(t *testing.T) {
	patterns := []string{"-", "--+-", "+-+-+-", "---++---+--", repeat("-+", 20), repeat("---+", 7)}
	for _, p := range patterns {
		for th := 1; th <= 4; th++ {
			runs, cur := 0, 0
			for _, c := range p {
				if c == '-' {
					cur++
					continue
				}
				if cur >= th {
					runs++
				}
				cur = 0
			}
			if cur >= th {
				runs++
			}
			assert.Equal(t, runs, CountDowntimeEvents(samples(p), th), "pattern=%s threshold=%d", p, th)
		}
	}
}

// --------------- FormatDuration ---------------

func TestFormatDuration_Units(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "less than one second"},
		{999, "less than one second"},
		{1000, "1 second"},
		{30000, "30 seconds"},
		{60000, "1 minute"},
		{135000, "2 minutes and 15 seconds"},
		{3600000, "1 hour"},
		{3661000, "1 hour, 1 minute and 1 second"},
		{86400000, "1 day"},
		{185700000, "2 days, 3 hours and 35 minutes"},
		{90061000, "1 day, 1 hour, 1 minute and 1 second"},
		{172800000, "2 days"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(int64(0), tt.ms), "ms=%d", tt.ms)
	}
}

func TestFormatDuration_OrderIndependent(t *testing.T) {
	pairs := [][2]int64{{0, 30000}, {1000, 136000}, {5, 185700005}, {1700000000000, 1700000000001}}
	for _, p := range pairs {
		assert.Equal(t, FormatDuration(p[0], p[1]), FormatDuration(p[1], p[0]))
	}
}

func TestFormatDuration_Missing(t *testing.T) {
	var nilTime *time.Time
	for _, x := range []any{int64(0), "2024-01-01T00:00:00Z", "garbage", time.Now()} {
		assert.Equal(t, DurationUnavailable, FormatDuration(nil, x))
		assert.Equal(t, DurationUnavailable, FormatDuration(x, nil))
	}
	assert.Equal(t, DurationUnavailable, FormatDuration(nilTime, time.Now()))
	assert.Equal(t, DurationUnavailable, FormatDuration("", int64(10)))
}

func TestFormatDuration_Invalid(t *testing.T) {
	assert.Equal(t, DurationInvalid, FormatDuration("not a date", int64(0)))
	assert.Equal(t, DurationInvalid, FormatDuration(int64(0), "31/31/2020"))
	assert.Equal(t, DurationInvalid, FormatDuration(struct{}{}, int64(0)))
}

func TestFormatDuration_DateStrings(t *testing.T) {
	got := FormatDuration("2024-03-01T10:00:00Z", "2024-03-01T12:30:00Z")
	assert.Equal(t, "2 hours and 30 minutes", got)

	got = FormatDuration("2024-03-01 10:00:00", "2024-03-02 10:00:01")
	assert.Equal(t, "1 day and 1 second", got)

	got = FormatDuration("1000", int64(3000))
	assert.Equal(t, "2 seconds", got)
}

func TestFormatDuration_Times(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	assert.Equal(t, "45 minutes", FormatDuration(start, &end))
}

func TestFormatElapsed_Negative(t *testing.T) {
	assert.Equal(t, "1 minute", FormatElapsed(-time.Minute))
	assert.Equal(t, "106751 days, 23 hours, 47 minutes and 16 seconds", FormatElapsed(math.MinInt64))
}

func TestFormatDuration_LongSpans(t *testing.T) {
	// beyond what time.Duration can hold (about 292 years)
	assert.Equal(t, "115740 days, 17 hours, 46 minutes and 40 seconds", FormatDuration(int64(0), int64(1e13)))
	assert.Equal(t, "3652058 days", FormatDuration("0001-01-01", "9999-12-31"))
	assert.Equal(t, "213503982334 days, 14 hours, 25 minutes and 51 seconds",
		FormatDuration(int64(math.MinInt64), int64(math.MaxInt64)))
}

func TestFormatDuration_OutOfRange(t *testing.T) {
	assert.Equal(t, DurationInvalid, FormatDuration(uint64(1<<63), int64(0)))
	assert.Equal(t, DurationInvalid, FormatDuration(int64(0), float64(1e20)))
	assert.Equal(t, DurationInvalid, FormatDuration(float64(-1e20), int64(0)))
	assert.Equal(t, "1 second", FormatDuration(uint64(1000), uint32(0)))
}

func TestUptimePercent(t *testing.T) {
	assert.Equal(t, 100.0, UptimePercent(nil), "no data counts as up")
	assert.Equal(t, 100.0, UptimePercent(samples("+++")))
	assert.Equal(t, 0.0, UptimePercent(samples("--")))
	assert.InDelta(t, 75.0, UptimePercent(samples("+-++")), 0.0001)
}
