package timing

import (
	"testing"
	"time"
)

// at builds a time on a fixed week: 2024-01-07 is a Sunday.
func at(weekday time.Weekday, hour, min int) time.Time {
	return time.Date(2024, 1, 7+int(weekday), hour, min, 0, 0, time.UTC)
}

func TestActive(t *testing.T) {
	tests := []struct {
		name  string
		rules string
		t     time.Time
		want  bool
	}{
		{"empty string", "", at(time.Monday, 10, 0), false},
		{"whitespace only", "   ", at(time.Monday, 10, 0), false},
		{"24/7 lowercase", "24/7", at(time.Sunday, 3, 12), true},
		{"24/7 mixed case is case-insensitive", "24/7", at(time.Saturday, 23, 59), true},

		{"weekday business hours match", "09:00-17:00;Mon-Fri", at(time.Wednesday, 12, 30), true},
		{"weekday business hours outside day", "09:00-17:00;Mon-Fri", at(time.Saturday, 12, 30), false},
		{"start minute inclusive", "09:00-17:00;Mon-Fri", at(time.Monday, 9, 0), true},
		{"end minute exclusive", "09:00-17:00;Mon-Fri", at(time.Monday, 17, 0), false},
		{"minute before end", "09:00-17:00;Mon-Fri", at(time.Monday, 16, 59), true},

		{"multiple ranges first", "09:00-13:00,14:00-18:00;Mon", at(time.Monday, 10, 0), true},
		{"multiple ranges gap", "09:00-13:00,14:00-18:00;Mon", at(time.Monday, 13, 30), false},
		{"multiple ranges second", "09:00-13:00,14:00-18:00;Mon", at(time.Monday, 15, 0), true},

		{"single day match", "08:00-12:00;Tue", at(time.Tuesday, 8, 15), true},
		{"single day mismatch", "08:00-12:00;Tue", at(time.Wednesday, 8, 15), false},
		{"day list", "08:00-12:00;Mon,Wed,Fri", at(time.Wednesday, 9, 0), true},
		{"day list miss", "08:00-12:00;Mon,Wed,Fri", at(time.Thursday, 9, 0), false},

		{"wrapping day range covers saturday", "10:00-11:00;Fri-Mon", at(time.Saturday, 10, 30), true},
		{"wrapping day range covers monday", "10:00-11:00;Fri-Mon", at(time.Monday, 10, 30), true},
		{"wrapping day range excludes wednesday", "10:00-11:00;Fri-Mon", at(time.Wednesday, 10, 30), false},

		{"end 00:00 means end of day", "22:00-00:00;Mon", at(time.Monday, 23, 59), true},
		{"end 00:00 start still applies", "22:00-00:00;Mon", at(time.Monday, 21, 59), false},
		{"end 24:00 means end of day", "22:00-24:00;Mon", at(time.Monday, 23, 59), true},
		{"past-midnight end is malformed", "09:00-24:30;Mon", at(time.Monday, 10, 0), false},
		{"past-midnight start is malformed", "24:30-25:00;Mon", at(time.Monday, 10, 0), false},
		{"overnight single-day range is inactive", "22:00-02:00;Mon", at(time.Monday, 23, 0), false},
		{"overnight expressed as two rules late half", "22:00-24:00;Mon|00:00-02:00;Tue", at(time.Monday, 23, 0), true},
		{"overnight expressed as two rules early half", "22:00-24:00;Mon|00:00-02:00;Tue", at(time.Tuesday, 1, 0), true},
		{"overnight expressed as two rules outside", "22:00-24:00;Mon|00:00-02:00;Tue", at(time.Tuesday, 3, 0), false},

		{"malformed rule skipped, good rule admits", "garbage|09:00-17:00;Mon", at(time.Monday, 10, 0), true},
		{"malformed range skipped", "9am-5pm,10:00-11:00;Mon", at(time.Monday, 10, 30), true},
		{"malformed day skipped", "10:00-11:00;Funday,Mon", at(time.Monday, 10, 30), true},
		{"all malformed", "nope|also;bad;day", at(time.Monday, 10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Active(tt.rules, tt.t); got != tt.want {
				t.Errorf("Active(%q, %v) = %v, want %v", tt.rules, tt.t, got, tt.want)
			}
		})
	}
}

func TestAlwaysOpenEveryInstant(t *testing.T) {
	// 24/7 admits arbitrary instants across the week.
	start := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7*24; i++ {
		instant := start.Add(time.Duration(i) * time.Hour)
		if !Active("24/7", instant) {
			t.Fatalf("Active(24/7) = false at %v", instant)
		}
	}
}

func TestRuleUnionIsMonotone(t *testing.T) {
	// Appending a rule can only widen the admitted set.
	base := "09:00-17:00;Mon-Fri"
	wider := base + "|10:00-12:00;Sat"

	instants := []time.Time{
		at(time.Monday, 10, 0),
		at(time.Friday, 16, 59),
		at(time.Saturday, 11, 0),
		at(time.Sunday, 11, 0),
	}
	for _, instant := range instants {
		if Active(base, instant) && !Active(wider, instant) {
			t.Errorf("adding a rule turned true into false at %v", instant)
		}
	}
	if !Active(wider, at(time.Saturday, 11, 0)) {
		t.Error("appended rule did not admit its own window")
	}
}
