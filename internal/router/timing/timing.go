// Package timing evaluates operating-hours rule strings against an instant.
//
// A rule string is either "24/7" (always active) or a pipe-separated list of
// rules, each of the form "<time-ranges>;<day-spec>":
//
//	09:00-17:00;Mon-Fri
//	09:00-13:00,14:00-18:00;Mon,Wed,Fri
//	22:00-24:00;Mon|00:00-02:00;Tue
//
// Time ranges use the 24-hour clock; the start minute is inclusive and the end
// minute is exclusive. An end of 00:00 with a nonzero start means end of day.
// Day ranges wrap across the week boundary (Fri-Mon covers Fri,Sat,Sun,Mon).
// Overnight ranges on a single day (22:00-02:00;Mon) are not supported and are
// treated as inactive; express them as two day-rules joined with "|".
package timing

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

var dayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Active reports whether the rule string admits the given instant.
// Malformed rules, ranges, or day segments are skipped with a warning.
// An empty rule string never admits.
func Active(rules string, t time.Time) bool {
	rules = strings.TrimSpace(rules)
	if rules == "" {
		return false
	}
	if strings.EqualFold(rules, "24/7") {
		return true
	}

	weekday := int(t.Weekday())
	minute := t.Hour()*60 + t.Minute()

	for _, rule := range strings.Split(rules, "|") {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		parts := strings.SplitN(rule, ";", 2)
		if len(parts) != 2 {
			slog.Warn("Skipping malformed timing rule", "rule", rule)
			continue
		}
		if !dayMatches(parts[1], weekday) {
			continue
		}
		if anyRangeContains(parts[0], minute) {
			return true
		}
	}
	return false
}

// anyRangeContains reports whether any range in the comma-separated list
// contains the given minute of day.
func anyRangeContains(ranges string, minute int) bool {
	for _, r := range strings.Split(ranges, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		start, end, ok := parseRange(r)
		if !ok {
			slog.Warn("Skipping malformed time range", "range", r)
			continue
		}
		if start > end {
			// Overnight ranges must be split into per-day rules.
			slog.Warn("Skipping overnight time range", "range", r)
			continue
		}
		if minute >= start && minute < end {
			return true
		}
	}
	return false
}

// parseRange parses "HH:MM-HH:MM" into start/end minutes of day.
// An end of 00:00 with a nonzero start means end of day (minute 1440).
func parseRange(s string) (start, end int, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, ok = parseClock(parts[0])
	if !ok {
		return 0, 0, false
	}
	end, ok = parseClock(parts[1])
	if !ok {
		return 0, 0, false
	}
	if end == 0 && start > 0 {
		end = minutesPerDay
	}
	return start, end, true
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	// 24:00 is a valid end-of-day marker; anything past it is not a
	// clock time.
	if h == 24 && m != 0 {
		return 0, false
	}
	return h*60 + m, true
}

// dayMatches reports whether the weekday (0=Sun..6=Sat) is covered by the
// comma-separated day spec.
func dayMatches(spec string, weekday int) bool {
	for _, seg := range strings.Split(spec, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if strings.Contains(seg, "-") {
			bounds := strings.SplitN(seg, "-", 2)
			start, ok1 := dayIndex(bounds[0])
			end, ok2 := dayIndex(bounds[1])
			if !ok1 || !ok2 {
				slog.Warn("Skipping malformed day segment", "segment", seg)
				continue
			}
			if inDayRange(weekday, start, end) {
				return true
			}
			continue
		}
		day, ok := dayIndex(seg)
		if !ok {
			slog.Warn("Skipping malformed day segment", "segment", seg)
			continue
		}
		if day == weekday {
			return true
		}
	}
	return false
}

// inDayRange reports whether day falls in the inclusive range start..end,
// wrapping across the week boundary when start > end.
func inDayRange(day, start, end int) bool {
	if start <= end {
		return day >= start && day <= end
	}
	return day >= start || day <= end
}

// dayIndex maps a day name to its index in the Sun..Sat sequence.
func dayIndex(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for i, d := range dayNames {
		if strings.EqualFold(d, name) {
			return i, true
		}
	}
	return 0, false
}
