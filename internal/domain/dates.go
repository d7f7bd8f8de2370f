package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TodayLayout is the date part of the current-date context string.
const TodayLayout = "2006-01-02"

var koreanWeekdays = [...]string{"일", "월", "화", "수", "목", "금", "토"}

// FormatToday renders t as the current-date context shown to models,
// e.g. "2025-08-14 (목)".
func FormatToday(t time.Time) string {
	return fmt.Sprintf("%s (%s)", t.Format(TodayLayout), koreanWeekdays[t.Weekday()])
}

// ParseToday reads the date back out of a FormatToday string, or a bare
// YYYY-MM-DD date, in loc.
func ParseToday(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(TodayLayout) {
		return time.Time{}, fmt.Errorf("%w: today %q", ErrEmptyValue, s)
	}
	return time.ParseInLocation(TodayLayout, s[:len(TodayLayout)], loc)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether day falls on one of the range's days.
func (r DateRange) Contains(day time.Time) bool {
	d := truncateDay(day.In(r.Start.Location()))
	return !d.Before(r.Start) && !d.After(r.End)
}

// EndOfRange returns the last instant of the range.
func (r DateRange) EndOfRange() time.Time {
	return r.End.AddDate(0, 0, 1).Add(-time.Second)
}

var isoDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// ResolveDateRange turns a date expression into a day range relative to
// today. It understands ISO dates (one, or two forming a range) and the
// relative words 오늘/today, 내일/tomorrow, 모레, 이번 주/this week and
// 주말/weekend with an optional 다음/next prefix. Unrecognized
// expressions report false.
func ResolveDateRange(expr string, today time.Time) (DateRange, bool) {
	day := truncateDay(today)
	lower := strings.ToLower(strings.TrimSpace(expr))

	if dates := isoDatePattern.FindAllString(lower, 2); len(dates) > 0 {
		start, err := time.ParseInLocation(TodayLayout, dates[0], day.Location())
		if err != nil {
			return DateRange{}, false
		}
		end := start
		if len(dates) == 2 {
			if end, err = time.ParseInLocation(TodayLayout, dates[1], day.Location()); err != nil || end.Before(start) {
				return DateRange{}, false
			}
		}
		return DateRange{Start: start, End: end}, true
	}

	next := strings.Contains(lower, "다음") || strings.Contains(lower, "next")

	switch {
	case lower == "", strings.Contains(lower, "오늘"), strings.Contains(lower, "today"):
		return single(day), true
	case strings.Contains(lower, "모레"):
		return single(day.AddDate(0, 0, 2)), true
	case strings.Contains(lower, "내일"), strings.Contains(lower, "tomorrow"):
		return single(day.AddDate(0, 0, 1)), true
	case strings.Contains(lower, "주말"), strings.Contains(lower, "weekend"):
		return weekend(day, next), true
	case strings.Contains(lower, "이번 주"), strings.Contains(lower, "이번주"), strings.Contains(lower, "this week"):
		return DateRange{Start: day, End: day.AddDate(0, 0, daysUntilSunday(day))}, true
	}
	return DateRange{}, false
}

// weekend returns the coming Saturday and Sunday. On a Sunday this
// weekend is just today.
func weekend(day time.Time, next bool) DateRange {
	var sat time.Time
	switch day.Weekday() {
	case time.Saturday:
		sat = day
	case time.Sunday:
		sat = day.AddDate(0, 0, -1)
	default:
		sat = day.AddDate(0, 0, int(time.Saturday-day.Weekday()))
	}
	if next {
		sat = sat.AddDate(0, 0, 7)
	}
	r := DateRange{Start: sat, End: sat.AddDate(0, 0, 1)}
	if r.Start.Before(day) {
		r.Start = day
	}
	return r
}

func daysUntilSunday(day time.Time) int {
	return (7 - int(day.Weekday())) % 7
}

func single(day time.Time) DateRange { return DateRange{Start: day, End: day} }

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
