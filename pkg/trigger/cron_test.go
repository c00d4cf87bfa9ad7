package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, layout, value string, loc *time.Location) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation(layout, value, loc)
	require.NoError(t, err)
	return parsed
}

func TestParseCronErrors(t *testing.T) {
	for _, expr := range []string{
		"", "* * * *", "* * * * * *", "60 * * * *", "* 24 * * *",
		"* * 0 * *", "* * * 13 *", "* * * * 7", "a * * * *",
		"5-2 * * * *", "*/0 * * * *",
	} {
		_, err := ParseCron(expr, "")
		assert.Error(t, err, "expr %q", expr)
	}

	_, err := ParseCron("* * * * *", "Not/AZone")
	assert.Error(t, err)
}

func TestCronNextTable(t *testing.T) {
	utc := time.UTC
	tests := []struct {
		expr string
		from string
		want string
	}{
		{"* * * * *", "2024-06-01 10:07:30", "2024-06-01 10:08:00"},
		{"0 * * * *", "2024-06-01 10:07:00", "2024-06-01 11:00:00"},
		{"30 9 * * *", "2024-06-01 10:07:00", "2024-06-02 09:30:00"},
		{"*/15 * * * *", "2024-06-01 10:07:00", "2024-06-01 10:15:00"},
		{"*/15 * * * *", "2024-06-01 10:15:00", "2024-06-01 10:30:00"},
		{"10-20/5 * * * *", "2024-06-01 10:16:00", "2024-06-01 10:20:00"},
		{"5,35 * * * *", "2024-06-01 10:05:00", "2024-06-01 10:35:00"},
		{"0 0 1 * *", "2024-06-15 12:00:00", "2024-07-01 00:00:00"},
		{"0 0 31 * *", "2024-04-05 00:00:00", "2024-05-31 00:00:00"},
		{"0 12 * 2 *", "2024-03-01 00:00:00", "2025-02-01 12:00:00"},
		// 2024-06-01 is a Saturday; weekday 0 is Monday, so 5 is Saturday.
		{"0 9 * * 5", "2024-06-01 10:00:00", "2024-06-08 09:00:00"},
		{"0 9 * * 0", "2024-06-01 10:00:00", "2024-06-03 09:00:00"},
		{"0 9 * * 0-4", "2024-06-01 10:00:00", "2024-06-03 09:00:00"},
	}
	for _, tc := range tests {
		s, err := ParseCron(tc.expr, "")
		require.NoError(t, err, tc.expr)
		from := mustTime(t, "2006-01-02 15:04:05", tc.from, utc)
		want := mustTime(t, "2006-01-02 15:04:05", tc.want, utc)
		assert.Equal(t, want, s.Next(from), "expr %q from %s", tc.expr, tc.from)
	}
}

func TestCronNextIsPure(t *testing.T) {
	s, err := ParseCron("*/15 * * * *", "")
	require.NoError(t, err)
	from := mustTime(t, "2006-01-02 15:04:05", "2024-06-01 10:07:00", time.UTC)
	first := s.Next(from)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Next(from))
	}
}

func TestCronScheduleBoundaryInTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	s, err := ParseCron("*/15 * * * *", "Asia/Shanghai")
	require.NoError(t, err)

	created := mustTime(t, "2006-01-02 15:04:05", "2024-06-01 10:07:00", loc)
	first := s.Next(created)
	assert.Equal(t, mustTime(t, "2006-01-02 15:04:05", "2024-06-01 10:15:00", loc), first)

	second := s.Next(first)
	assert.Equal(t, mustTime(t, "2006-01-02 15:04:05", "2024-06-01 10:30:00", loc), second)

	// Without catch-up, an outage from 10:10 to 11:40 produces a single
	// next slot at 11:45: the schedule is recomputed from the recovery
	// time, never replayed.
	recovered := mustTime(t, "2006-01-02 15:04:05", "2024-06-01 11:40:00", loc)
	assert.Equal(t,
		mustTime(t, "2006-01-02 15:04:05", "2024-06-01 11:45:00", loc),
		s.Next(recovered))
}

func TestCronWeekdayAndDayUnion(t *testing.T) {
	// Both fields restricted: fires on day 15 OR on Monday.
	s, err := ParseCron("0 0 15 * 0", "")
	require.NoError(t, err)
	from := mustTime(t, "2006-01-02 15:04:05", "2024-06-01 10:00:00", time.UTC) // Saturday
	next := s.Next(from)
	// Monday 2024-06-03 precedes the 15th.
	assert.Equal(t, mustTime(t, "2006-01-02 15:04:05", "2024-06-03 00:00:00", time.UTC), next)
}
