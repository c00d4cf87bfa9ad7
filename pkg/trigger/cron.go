package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldSpec bounds one cron field.
type fieldSpec struct {
	name     string
	min, max int
}

var cronFields = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6}, // 0 = Monday
}

// CronSchedule is a parsed five-field cron expression bound to a timezone.
// Next is pure: it never reads the wall clock.
type CronSchedule struct {
	expr     string
	loc      *time.Location
	minutes  uint64
	hours    uint64
	days     uint64
	months   uint64
	weekdays uint64
	// dayWild and weekdayWild drive the classic day-vs-weekday rule: when
	// both fields are restricted, a time matches if EITHER does.
	dayWild, weekdayWild bool
}

// ParseCron parses "minute hour day month weekday" with operators
// *, a, a-b, a,b,c, */n, a-b/n. Weekday 0 is Monday. timezone is an IANA
// name; empty means UTC.
func ParseCron(expr, timezone string) (*CronSchedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("cron %q: want 5 fields, got %d", expr, len(parts))
	}

	loc := time.UTC
	if timezone != "" {
		var err error
		if loc, err = time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("cron %q: %w", expr, err)
		}
	}

	s := &CronSchedule{expr: expr, loc: loc}
	masks := [5]*uint64{&s.minutes, &s.hours, &s.days, &s.months, &s.weekdays}
	for i, part := range parts {
		mask, err := parseField(part, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("cron %q: %w", expr, err)
		}
		*masks[i] = mask
	}
	s.dayWild = parts[2] == "*"
	s.weekdayWild = parts[4] == "*"
	return s, nil
}

// parseField expands one field into a bitmask over [spec.min, spec.max].
func parseField(field string, spec fieldSpec) (uint64, error) {
	var mask uint64
	for _, term := range strings.Split(field, ",") {
		lo, hi, step := spec.min, spec.max, 1

		body := term
		if idx := strings.IndexByte(term, '/'); idx >= 0 {
			body = term[:idx]
			n, err := strconv.Atoi(term[idx+1:])
			if err != nil || n < 1 {
				return 0, fmt.Errorf("%s: bad step in %q", spec.name, term)
			}
			step = n
		}

		switch {
		case body == "*":
			// full range
		case strings.Contains(body, "-"):
			bounds := strings.SplitN(body, "-", 2)
			var err1, err2 error
			lo, err1 = strconv.Atoi(bounds[0])
			hi, err2 = strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil {
				return 0, fmt.Errorf("%s: bad range %q", spec.name, term)
			}
		default:
			n, err := strconv.Atoi(body)
			if err != nil {
				return 0, fmt.Errorf("%s: bad value %q", spec.name, term)
			}
			lo, hi = n, n
			if step > 1 {
				// "a/n" means every n starting at a.
				hi = spec.max
			}
		}

		if lo < spec.min || hi > spec.max || lo > hi {
			return 0, fmt.Errorf("%s: %q out of range %d-%d", spec.name, term, spec.min, spec.max)
		}
		for v := lo; v <= hi; v += step {
			mask |= 1 << uint(v)
		}
	}
	return mask, nil
}

func (s *CronSchedule) has(mask uint64, v int) bool { return mask&(1<<uint(v)) != 0 }

// cronWeekday maps Go's Sunday-based weekday onto the Monday=0 dialect.
func cronWeekday(d time.Weekday) int { return (int(d) + 6) % 7 }

// matchDay applies the day-of-month vs weekday rule: both wild matches all,
// one restricted applies alone, both restricted matches on either.
func (s *CronSchedule) matchDay(t time.Time) bool {
	dayOK := s.has(s.days, t.Day())
	wdOK := s.has(s.weekdays, cronWeekday(t.Weekday()))
	switch {
	case s.dayWild && s.weekdayWild:
		return true
	case s.dayWild:
		return wdOK
	case s.weekdayWild:
		return dayOK
	default:
		return dayOK || wdOK
	}
}

// Next returns the first fire time strictly after t, evaluated in the
// schedule's timezone. The zero time is returned if no fire occurs within
// five years (an impossible day/month combination).
func (s *CronSchedule) Next(t time.Time) time.Time {
	t = t.In(s.loc).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !s.has(s.months, int(t.Month())) {
			// Jump to the start of the next month.
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, s.loc).AddDate(0, 1, 0)
			continue
		}
		if !s.matchDay(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
			continue
		}
		if !s.has(s.hours, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, s.loc).Add(time.Hour)
			continue
		}
		if !s.has(s.minutes, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

// String returns the original expression.
func (s *CronSchedule) String() string { return s.expr }

// Location returns the schedule's timezone.
func (s *CronSchedule) Location() *time.Location { return s.loc }
